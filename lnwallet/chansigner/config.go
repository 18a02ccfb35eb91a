package chansigner

import (
	"errors"
	"fmt"
)

var (
	// ErrSignerOpDisabled is returned by every operation that was
	// disabled with DisableOp.
	ErrSignerOpDisabled = errors.New("signer operation disabled")

	// ErrPolicyViolation is returned by a signer in refuse mode when a
	// request breaks the commitment sequencing policy.
	ErrPolicyViolation = errors.New("signer policy violation")
)

// Mode selects how the enforcing signer reacts to a policy violation.
type Mode string

const (
	// ModeEnforce panics on a policy violation. A violation means the
	// channel state machine driving the signer is broken, which tests
	// must catch loudly.
	ModeEnforce Mode = "enforce"

	// ModeRefuse returns ErrPolicyViolation instead, the way a hardware
	// or remote signer refuses a request.
	ModeRefuse Mode = "refuse"
)

// Config holds the policy settings of the enforcing signer.
//
//nolint:ll
type Config struct {
	Mode Mode `long:"mode" description:"How a request that breaks the commitment sequencing policy is handled" choice:"enforce" choice:"refuse"`

	DisableRevocationPolicyCheck bool `long:"disablerevocationpolicycheck" description:"Allow signing holder commitments and HTLC transactions outside the two unrevoked commitments"`
}

// DefaultConfig returns the configuration used by tests: every violation is
// fatal.
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeEnforce,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeEnforce, ModeRefuse:
		return nil

	default:
		return fmt.Errorf("unknown signer mode %q", c.Mode)
	}
}
