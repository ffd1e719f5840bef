package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tclesius/ltq/broker"
	"github.com/tclesius/ltq/internal/base"
)

// newTestMessage builds a base.Message the way the root package's
// NewMessage does, so these tests depend only on package base and not on
// the root package.
func newTestMessage(taskName string, args []any, kwargs map[string]any) *base.Message {
	if kwargs == nil {
		kwargs = make(map[string]any)
	}
	if args == nil {
		args = []any{}
	}
	return &base.Message{
		ID:        uuid.NewString(),
		TaskName:  taskName,
		Args:      args,
		Kwargs:    kwargs,
		Ctx:       make(map[string]any),
		CreatedAt: time.Now(),
	}
}

func TestCronRejectsMalformedExpression(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	s := New(b, time.Hour, nil)

	err := s.Cron("not a cron expr", "reports", newTestMessage("generate", nil, nil))
	assert.Error(t, err)
}

func TestCronRejectsInvalidQueueName(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	s := New(b, time.Hour, nil)

	err := s.Cron("* * * * *", "   ", newTestMessage("generate", nil, nil))
	assert.Error(t, err)
}

// TestTickPublishesDueJobsAndAdvancesNextRun drives the unexported tick
// directly: the five-field cron grain makes waiting for a real minute
// boundary in a unit test both slow and flaky, so the due check is forced
// by backdating nextRun instead of letting schedule.Next pick it.
func TestTickPublishesDueJobsAndAdvancesNextRun(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	s := New(b, time.Hour, nil)

	require.NoError(t, s.Cron("0 0 1 1 *", "reports", newTestMessage("generate_report", []any{"q4"}, nil)))

	s.mu.Lock()
	j := s.jobs[0]
	staleRun := j.nextRun
	j.nextRun = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	s.tick()

	n, err := b.Size("reports")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	s.mu.Lock()
	advanced := j.nextRun
	s.mu.Unlock()
	assert.True(t, advanced.After(staleRun.Add(-time.Minute)))
	assert.NotEqual(t, time.Now().Add(-time.Minute), advanced)
}

// TestTickAssignsFreshIdentityPerFire verifies each publish gets its own
// id and created_at rather than reusing the registered prototype's.
func TestTickAssignsFreshIdentityPerFire(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	s := New(b, time.Hour, nil)

	proto := newTestMessage("generate_report", []any{"q4"}, nil)
	proto.CreatedAt = time.Now().Add(-24 * time.Hour)
	require.NoError(t, s.Cron("0 0 1 1 *", "reports", proto))

	s.mu.Lock()
	s.jobs[0].nextRun = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	s.tick()
	s.mu.Lock()
	s.jobs[0].nextRun = time.Now().Add(-time.Minute)
	s.mu.Unlock()
	s.tick()

	msgs, err := b.Consume("reports", "w1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.NotEqual(t, proto.ID, msgs[0].ID)
	assert.WithinDuration(t, time.Now(), msgs[0].CreatedAt, 5*time.Second)
}

func TestTickLeavesNextRunUnadvancedOnPublishFailure(t *testing.T) {
	s := New(&failingPublishBroker{}, time.Hour, nil)

	schedule, err := cron.ParseStandard("0 0 1 1 *")
	require.NoError(t, err)
	j := &job{
		expr:      "0 0 1 1 *",
		schedule:  schedule,
		prototype: newTestMessage("generate_report", nil, nil),
		queue:     "reports",
	}
	stale := time.Now().Add(-time.Minute)
	j.nextRun = stale

	s.mu.Lock()
	s.jobs = []*job{j}
	s.mu.Unlock()

	s.tick()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, stale, s.jobs[0].nextRun, "nextRun must not advance when the publish fails")
}

// failingPublishBroker implements base.Broker with a Publish that always
// errors, simulating a transient broker outage for
// TestTickLeavesNextRunUnadvancedOnPublishFailure.
type failingPublishBroker struct{}

func (failingPublishBroker) Publish(queue string, msg *base.Message, delay time.Duration) error {
	return errors.New("broker unavailable")
}
func (failingPublishBroker) Consume(queue, workerID string, count int, block time.Duration) ([]*base.Message, error) {
	return nil, nil
}
func (failingPublishBroker) Ack(queue, workerID string, msg *base.Message) error { return nil }
func (failingPublishBroker) Nack(queue, workerID string, msg *base.Message, delay time.Duration, drop bool) error {
	return nil
}
func (failingPublishBroker) Recover(queue string, olderThan time.Duration) error { return nil }
func (failingPublishBroker) Size(queue string) (int64, error)                   { return 0, nil }
func (failingPublishBroker) Clear(queue string) error                           { return nil }
func (failingPublishBroker) Close() error                                       { return nil }

func TestStartStopLifecycleDoesNotDeadlock(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	s := New(b, 10*time.Millisecond, nil)
	require.NoError(t, s.Cron("0 0 1 1 *", "reports", newTestMessage("generate_report", nil, nil)))

	s.StartBackground()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
