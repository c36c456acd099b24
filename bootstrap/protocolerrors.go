package bootstrap

import "github.com/pkg/errors"

// ProtocolError marks an error as peer-induced (malformed reply, variant
// mismatch, non-monotone frontiers) rather than an internal invariant
// violation, per spec §7's ProtocolError/invariant-violation split.
type ProtocolError struct {
	cause error
}

func (e *ProtocolError) Error() string { return e.cause.Error() }
func (e *ProtocolError) Unwrap() error { return e.cause }

// IsProtocolError reports whether err (or something it wraps) is a
// ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// protocolErrorf builds a peer-induced error, matching the teacher's
// protocolerrors.Errorf call sites.
func protocolErrorf(format string, args ...interface{}) error {
	return &ProtocolError{cause: errors.Errorf(format, args...)}
}

// errConfig marks a fatal construction-time configuration error (spec
// §7 "Invalid configuration ... fatal, surfaced to the caller"). It is
// deliberately not a ProtocolError: misconfiguration is an operator
// mistake, not peer behavior.
func errConfig(format string, args ...interface{}) error {
	return errors.Errorf("invalid bootstrap configuration: "+format, args...)
}
