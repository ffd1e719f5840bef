package errors

import "time"

// RejectError signals that a message must not be processed further and
// should be dropped. Middleware raises this before or after the task body
// runs; the Worker translates it into a drop-nack and a warning log
// (spec §7, "Reject signal").
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return e.Reason }

// Reject constructs a *RejectError with the given reason.
func Reject(reason string) *RejectError {
	return &RejectError{Reason: reason}
}

// RetryError signals that a message should be re-executed after Delay has
// elapsed. The Worker translates this into nack(delay=Delay, drop=false)
// (spec §7, "Retry signal").
type RetryError struct {
	Delay  time.Duration
	Reason string
}

func (e *RetryError) Error() string {
	if e.Reason == "" {
		return "retry requested"
	}
	return e.Reason
}

// Retry constructs a *RetryError requesting re-execution after delay.
func Retry(delay time.Duration, reason string) *RetryError {
	return &RetryError{Delay: delay, Reason: reason}
}
