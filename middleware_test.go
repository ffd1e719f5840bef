package ltq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tclesius/ltq/internal/errors"
)

func TestMaxTriesMiddlewareRejectsOnceExhausted(t *testing.T) {
	mw := MaxTriesMiddleware{}
	task := &Task{Options: TaskOptions{MaxTries: 2}}

	failing := func() error { return errors.Retry(0, "keep failing") }

	// Attempt 1: allowed through, body fails, tries becomes 1.
	msg := NewMessage("t", nil, nil)
	err := mw.Handle(context.Background(), msg, task, func() error { return failing() })
	assert.Error(t, err)
	assert.Equal(t, 1, Ctx(msg.Ctx).Int("tries", 0))

	// Attempt 2: allowed through (tries=1 < MaxTries=2), fails, tries becomes 2.
	err = mw.Handle(context.Background(), msg, task, func() error { return failing() })
	assert.Error(t, err)
	assert.Equal(t, 2, Ctx(msg.Ctx).Int("tries", 0))

	// Attempt 3: rejected before the body runs.
	bodyRan := false
	err = mw.Handle(context.Background(), msg, task, func() error { bodyRan = true; return nil })
	require.Error(t, err)
	assert.False(t, bodyRan)
	var reject *errors.RejectError
	assert.True(t, errors.As(err, &reject))
}

func TestMaxTriesMiddlewareDoesNotCountRateLimitedAttempts(t *testing.T) {
	mw := MaxTriesMiddleware{}
	task := &Task{Options: TaskOptions{MaxTries: 1}}
	msg := NewMessage("t", nil, nil)

	err := mw.Handle(context.Background(), msg, task, func() error {
		msg.Ctx["rate_limited"] = true
		return errors.Retry(time.Millisecond, "rate limited")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, Ctx(msg.Ctx).Int("tries", 0), "a rate-limited attempt must not burn the retry budget")
	_, stillSet := msg.Ctx["rate_limited"]
	assert.False(t, stillSet)
}

func TestMaxAgeMiddlewareRejectsOldMessages(t *testing.T) {
	mw := MaxAgeMiddleware{}
	task := &Task{Options: TaskOptions{MaxAge: time.Millisecond}}
	msg := NewMessage("t", nil, nil)
	msg.CreatedAt = time.Now().Add(-time.Hour)

	bodyRan := false
	err := mw.Handle(context.Background(), msg, task, func() error { bodyRan = true; return nil })
	require.Error(t, err)
	assert.False(t, bodyRan)
}

func TestMaxAgeMiddlewareAllowsFreshMessages(t *testing.T) {
	mw := MaxAgeMiddleware{}
	task := &Task{Options: TaskOptions{MaxAge: time.Hour}}
	msg := NewMessage("t", nil, nil)

	bodyRan := false
	err := mw.Handle(context.Background(), msg, task, func() error { bodyRan = true; return nil })
	require.NoError(t, err)
	assert.True(t, bodyRan)
}

func TestMaxRateMiddlewareThrottlesBurst(t *testing.T) {
	mw := NewMaxRateMiddleware()
	task := &Task{Name: "emails:send", Options: TaskOptions{MaxRate: "1/s"}}

	msg1 := NewMessage("emails:send", nil, nil)
	err := mw.Handle(context.Background(), msg1, task, func() error { return nil })
	require.NoError(t, err)

	msg2 := NewMessage("emails:send", nil, nil)
	err = mw.Handle(context.Background(), msg2, task, func() error { return nil })
	require.Error(t, err)
	var retry *errors.RetryError
	require.True(t, errors.As(err, &retry))
	assert.Greater(t, retry.Delay, time.Duration(0))
	assert.True(t, Ctx(msg2.Ctx).Bool("rate_limited", false))
}

func TestSentryMiddlewareReportsErrorsFromInnerLayers(t *testing.T) {
	var captured error
	reporter := &stubReporter{capture: func(err error) { captured = err }}
	mw := NewSentryMiddleware(reporter)

	want := errors.Reject("bad")
	err := mw.Handle(context.Background(), NewMessage("t", nil, nil), &Task{}, func() error { return want })

	assert.Equal(t, want, err)
	assert.Equal(t, want, captured)
}

type stubReporter struct {
	capture func(error)
}

func (s *stubReporter) CaptureException(err error) { s.capture(err) }
