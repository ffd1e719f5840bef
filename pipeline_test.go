package ltq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingMiddleware struct {
	name  string
	trace *[]string
}

func (m recordingMiddleware) Handle(ctx context.Context, msg *Message, task *Task, next Next) error {
	*m.trace = append(*m.trace, m.name+":enter")
	err := next()
	*m.trace = append(*m.trace, m.name+":exit")
	return err
}

func TestRunPipelineEntersOutermostFirstAndExitsInReverse(t *testing.T) {
	var trace []string
	mws := []Middleware{
		recordingMiddleware{"a", &trace},
		recordingMiddleware{"b", &trace},
	}

	err := runPipeline(context.Background(), &Message{}, &Task{}, mws, func() error {
		trace = append(trace, "body")
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"a:enter", "b:enter", "body", "b:exit", "a:exit"}, trace)
}

func TestRunPipelineShortCircuitsOnError(t *testing.T) {
	var trace []string
	mws := []Middleware{
		recordingMiddleware{"a", &trace},
		MiddlewareFunc(func(ctx context.Context, msg *Message, task *Task, next Next) error {
			trace = append(trace, "b:enter")
			return assertError
		}),
	}

	bodyRan := false
	err := runPipeline(context.Background(), &Message{}, &Task{}, mws, func() error {
		bodyRan = true
		return nil
	})

	assert.Equal(t, assertError, err)
	assert.False(t, bodyRan, "body must not run once an outer layer short-circuits")
	assert.Equal(t, []string{"a:enter", "b:enter", "a:exit"}, trace)
}

var assertError = &stubError{"boom"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }
