package ltq

import "context"

// Reporter is the seam a Sentry-compatible error reporter must satisfy.
// No sentry-go client is vendored here (spec §1 lists Sentry as an
// optional, external collaborator); callers wire their own client by
// implementing this one method, the same shape as
// original_source/src/ltq/middleware.py's Sentry middleware
// (sentry_sdk.capture_exception).
type Reporter interface {
	CaptureException(err error)
}

// SentryMiddleware captures exceptions raised by inner layers and
// re-raises them unchanged (spec §4.3, "Sentry (optional, external):
// captures exceptions and re-raises").
type SentryMiddleware struct {
	Reporter Reporter
}

// NewSentryMiddleware returns a SentryMiddleware reporting through r.
func NewSentryMiddleware(r Reporter) *SentryMiddleware {
	return &SentryMiddleware{Reporter: r}
}

func (m *SentryMiddleware) Handle(ctx context.Context, msg *Message, task *Task, next Next) error {
	err := next()
	if err != nil && m.Reporter != nil {
		m.Reporter.CaptureException(err)
	}
	return err
}
