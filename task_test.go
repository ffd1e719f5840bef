package ltq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskSendPublishesToItsQueue(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()

	w := NewWorker("emails", broker, WorkerConfig{})
	task, err := w.Register("send_welcome", func(context.Context, *Message) error { return nil }, TaskOptions{})
	require.NoError(t, err)
	assert.Equal(t, "emails:send_welcome", task.Name)
	assert.Equal(t, "emails", task.QueueName)

	require.NoError(t, task.Send(context.Background(), []any{1}, nil))

	n, err := broker.Size("emails")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTaskSendInIsNotVisibleImmediately(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()

	w := NewWorker("emails", broker, WorkerConfig{})
	task, err := w.Register("send_welcome", func(context.Context, *Message) error { return nil }, TaskOptions{})
	require.NoError(t, err)

	require.NoError(t, task.SendIn(context.Background(), time.Hour, nil, nil))

	msgs, err := broker.Consume("emails", "w1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTaskMessageRejectsUnserializableArgs(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()

	w := NewWorker("emails", broker, WorkerConfig{})
	task, err := w.Register("send_welcome", func(context.Context, *Message) error { return nil }, TaskOptions{})
	require.NoError(t, err)

	_, err = task.Message([]any{make(chan int)}, nil)
	assert.Error(t, err)
}

func TestTaskOptionsValidateRejectsMalformedMaxRate(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()
	w := NewWorker("emails", broker, WorkerConfig{})

	_, err := w.Register("bad", func(context.Context, *Message) error { return nil }, TaskOptions{MaxRate: "nonsense"})
	assert.Error(t, err)
}

func TestRegisterQueueUsesExplicitSharedQueue(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()
	w := NewWorker("emails", broker, WorkerConfig{})

	task, err := w.RegisterQueue("shared", "send_welcome", func(context.Context, *Message) error { return nil }, TaskOptions{})
	require.NoError(t, err)
	assert.Equal(t, "shared:send_welcome", task.Name)
	assert.Equal(t, "shared", task.QueueName)
}
