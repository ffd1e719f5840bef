package ltq

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tclesius/ltq/internal/errors"
)

// TestWorkerSingleSuccess exercises testable property 1: a task sent once
// is consumed, executed, and the queue ends up empty.
func TestWorkerSingleSuccess(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()

	var processed int64
	done := make(chan struct{})

	w := NewWorker("emails", broker, WorkerConfig{Concurrency: 4, BlockDuration: 50 * time.Millisecond})
	task, err := w.Register("send_email", func(ctx context.Context, msg *Message) error {
		atomic.AddInt64(&processed, 1)
		close(done)
		return nil
	}, TaskOptions{})
	require.NoError(t, err)

	require.NoError(t, task.Send(context.Background(), []any{"a", "s", "b"}, nil))

	n, err := broker.Size("emails")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was never processed")
	}

	// Allow the ack to land before checking size.
	time.Sleep(50 * time.Millisecond)
	n, err = broker.Size("emails")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

// TestWorkerRetryWithDelay exercises testable property 2: a retry makes
// the message invisible until its delay elapses, and ctx["tries"] is
// incremented on the next attempt.
func TestWorkerRetryWithDelay(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()

	var attempts int64
	secondAttempt := make(chan *Message, 1)

	w := NewWorker("emails", broker, WorkerConfig{Concurrency: 4, BlockDuration: 20 * time.Millisecond})
	task, err := w.Register("send_email", func(ctx context.Context, msg *Message) error {
		n := atomic.AddInt64(&attempts, 1)
		if n == 1 {
			return errors.Retry(50*time.Millisecond, "try again")
		}
		secondAttempt <- msg
		return nil
	}, TaskOptions{})
	require.NoError(t, err)

	require.NoError(t, task.Send(context.Background(), nil, nil))
	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case msg := <-secondAttempt:
		assert.Equal(t, 1, Ctx(msg.Ctx).Int("tries", 0))
	case <-time.After(3 * time.Second):
		t.Fatal("message was never retried")
	}
}

// TestWorkerMaxTriesExhaustion exercises testable property 3: after
// max_tries executions, the next attempt is rejected before the body
// runs, and the queue ends up empty.
func TestWorkerMaxTriesExhaustion(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()

	var executions int64

	w := NewWorker("emails", broker, WorkerConfig{Concurrency: 4, BlockDuration: 20 * time.Millisecond})
	task, err := w.Register("send_email", func(ctx context.Context, msg *Message) error {
		atomic.AddInt64(&executions, 1)
		return errors.Retry(10*time.Millisecond, "always retries")
	}, TaskOptions{MaxTries: 2})
	require.NoError(t, err)

	require.NoError(t, task.Send(context.Background(), nil, nil))
	require.NoError(t, w.Start())

	require.Eventually(t, func() bool {
		n, _ := broker.Size("emails")
		return n == 0
	}, 3*time.Second, 20*time.Millisecond, "queue must drain once max_tries is exhausted")

	w.Stop()
	assert.EqualValues(t, 2, atomic.LoadInt64(&executions), "body must run exactly max_tries times")
}

func TestWorkerRejectDropsMessage(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()

	w := NewWorker("emails", broker, WorkerConfig{Concurrency: 4, BlockDuration: 20 * time.Millisecond})
	task, err := w.Register("send_email", func(ctx context.Context, msg *Message) error {
		return errors.Reject("poison message")
	}, TaskOptions{})
	require.NoError(t, err)

	require.NoError(t, task.Send(context.Background(), nil, nil))
	require.NoError(t, w.Start())
	defer w.Stop()

	require.Eventually(t, func() bool {
		n, _ := broker.Size("emails")
		return n == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWorkerUnknownTaskNameIsDropped(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()

	w := NewWorker("emails", broker, WorkerConfig{Concurrency: 4, BlockDuration: 20 * time.Millisecond})
	_, err := w.Register("send_email", func(ctx context.Context, msg *Message) error { return nil }, TaskOptions{})
	require.NoError(t, err)

	// Publish directly to bypass Task, simulating a stale or mismatched message.
	require.NoError(t, broker.Publish("emails", NewMessage("emails:unknown", nil, nil), 0))
	require.NoError(t, w.Start())
	defer w.Stop()

	require.Eventually(t, func() bool {
		n, _ := broker.Size("emails")
		return n == 0
	}, 2*time.Second, 20*time.Millisecond)
}
