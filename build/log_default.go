//go:build !stdlog && !nolog

package build

// LoggingType is a log type that hands out sub-loggers from the primary
// handler, if one is supplied.
const LoggingType = LogTypeDefault
