package agent

import "errors"

var (
	// ErrNoFieldsConfigured is returned by Begin when ConfigureFields has not
	// been called with at least one field.
	ErrNoFieldsConfigured = errors.New("no fields configured: call ConfigureFields first")

	// ErrNoActiveSession is returned when an operation references a session
	// that does not exist and no session is active.
	ErrNoActiveSession = errors.New("no active session")
)
