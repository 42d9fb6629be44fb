package tracking

import "errors"

var (
	ErrPermissionDenied  = errors.New("location permission denied")
	ErrSubscription      = errors.New("position subscription failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRecorderClosed    = errors.New("recorder closed")
)
