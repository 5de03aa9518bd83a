package push

import "errors"

// Expected steady-state outcomes. Callers retry these later without logging.
var (
	ErrNoActiveConnection      = errors.New("push: no active connection")
	ErrNotSubscribed           = errors.New("push: peer not subscribed to this mode")
	ErrOutOfCredits            = errors.New("push: out of credits")
	ErrSubscriptionUnavailable = errors.New("push: subscription config not written yet")
)

// Contract violations by the stack. Logged by the dispatcher, recoverable.
var (
	ErrMalformedSubscriptionValue = errors.New("push: malformed subscription config value")
	ErrTransportRejected          = errors.New("push: transport rejected push")
)

// ErrSubscriptionCheckFailed wraps any Oracle failure returned from Push.
var ErrSubscriptionCheckFailed = errors.New("push: subscription check failed")

// ErrInvalidTarget is returned for a target whose mode is not exactly
// notify or indicate.
var ErrInvalidTarget = errors.New("push: invalid target")

// IsBackpressure reports whether err is one of the expected outcomes a
// caller should silently retry on its own schedule.
func IsBackpressure(err error) bool {
	return errors.Is(err, ErrNoActiveConnection) ||
		errors.Is(err, ErrNotSubscribed) ||
		errors.Is(err, ErrOutOfCredits) ||
		errors.Is(err, ErrSubscriptionUnavailable)
}

// outcome is the short label used in trace records and stats
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoActiveConnection):
		return "no connection"
	case errors.Is(err, ErrNotSubscribed):
		return "not subscribed"
	case errors.Is(err, ErrOutOfCredits):
		return "out of credits"
	case errors.Is(err, ErrSubscriptionUnavailable):
		return "subscription unavailable"
	case errors.Is(err, ErrMalformedSubscriptionValue):
		return "malformed subscription"
	case errors.Is(err, ErrTransportRejected):
		return "transport rejected"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid target"
	case errors.Is(err, ErrSubscriptionCheckFailed):
		return "subscription check failed"
	default:
		return err.Error()
	}
}
