package tailoring

import "errors"

var (
	ErrJobInProgress     = errors.New("a tailoring job is already in progress")
	ErrPollerActive      = errors.New("status poller already active")
	ErrNoActiveJob       = errors.New("no active tailoring job")
	ErrNoResume          = errors.New("no resume uploaded")
	ErrNoResult          = errors.New("no tailoring result available")
	ErrAttemptDiscarded  = errors.New("tailoring attempt was discarded")
	ErrInvalidTransition = errors.New("invalid job status transition")
)
