package ltq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppPrependsItsMiddlewareAheadOfWorkerStack(t *testing.T) {
	var trace []string

	broker := NewMemoryBroker()
	defer broker.Close()

	app := NewApp("svc", broker, nil)
	app.Use(recordingMiddleware{"app", &trace})

	w, err := app.NewWorker("emails", WorkerConfig{Concurrency: 2, BlockDuration: 20 * time.Millisecond, Middlewares: []Middleware{}})
	require.NoError(t, err)
	w.RegisterMiddleware(recordingMiddleware{"worker", &trace}, -1)

	done := make(chan struct{})
	task, err := w.Register("send", func(ctx context.Context, msg *Message) error {
		close(done)
		return nil
	}, TaskOptions{})
	require.NoError(t, err)
	require.NoError(t, task.Send(context.Background(), nil, nil))

	require.NoError(t, app.Start())
	defer app.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was never processed")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"app:enter", "worker:enter", "worker:exit", "app:exit"}, trace)
}

func TestAppRegisterWorkerRejectsDuplicateName(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()
	app := NewApp("svc", broker, nil)

	w1 := NewWorker("emails", broker, WorkerConfig{})
	require.NoError(t, app.RegisterWorker("emails", w1))

	w2 := NewWorker("emails", broker, WorkerConfig{})
	assert.Error(t, app.RegisterWorker("emails", w2))
}
