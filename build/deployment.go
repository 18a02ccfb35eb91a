package build

// DeploymentType selects whether the library loggers follow the binary that
// links them or the build tags of a test run.
type DeploymentType byte

const (
	// Development builds route the library loggers according to the
	// logging build tags, so unit tests can print to stdout.
	Development DeploymentType = iota

	// Production builds only log through the handler the binary hands to
	// UseLogger.
	Production
)

// String returns a human readable name for a build type.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"

	case Production:
		return "production"

	default:
		return "unknown"
	}
}
