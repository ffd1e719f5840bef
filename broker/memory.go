package broker

import (
	"sort"
	"sync"
	"time"

	"github.com/tclesius/ltq/internal/base"
	"github.com/tclesius/ltq/internal/timeutil"
)

// Memory is a single-process base.Broker implementation. It satisfies the
// same contract as Redis, minus any need for Recover to survive a process
// crash (spec §4.1, "Memory broker": "no recovery semantics needed beyond
// in-process liveness").
type Memory struct {
	mu    sync.Mutex
	clock timeutil.Clock
	queue map[string]map[string]memEntry // queue -> id -> entry
	proc  map[string]map[string]map[string]memEntry // queue -> workerID -> id -> entry
}

type memEntry struct {
	msg   *base.Message
	score float64
}

// NewMemory returns an empty in-process broker using the real system
// clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(timeutil.NewRealClock())
}

// NewMemoryWithClock returns an empty in-process broker whose notion of
// "now" is clock, letting tests exercise delayed visibility and Recover's
// lease-age cutoff without sleeping.
func NewMemoryWithClock(clock timeutil.Clock) *Memory {
	return &Memory{
		clock: clock,
		queue: make(map[string]map[string]memEntry),
		proc:  make(map[string]map[string]map[string]memEntry),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) queueFor(queue string) map[string]memEntry {
	q, ok := m.queue[queue]
	if !ok {
		q = make(map[string]memEntry)
		m.queue[queue] = q
	}
	return q
}

func (m *Memory) isInflight(queue, id string) bool {
	for _, workers := range m.proc[queue] {
		if _, ok := workers[id]; ok {
			return true
		}
	}
	return false
}

func (m *Memory) Publish(queue string, msg *base.Message, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isInflight(queue, msg.ID) {
		// Still in flight: do not duplicate into the visible set.
		return nil
	}
	m.queueFor(queue)[msg.ID] = memEntry{msg: msg, score: score(m.clock.Now().Add(delay))}
	return nil
}

func (m *Memory) Consume(queue, workerID string, count int, block time.Duration) ([]*base.Message, error) {
	deadline := time.Now().Add(block)
	for {
		if msgs := m.tryConsume(queue, workerID, count); len(msgs) > 0 {
			return msgs, nil
		}
		if block <= 0 || !time.Now().Before(deadline) {
			return nil, nil
		}
		sleepFor := 20 * time.Millisecond
		if remaining := deadline.Sub(time.Now()); remaining < sleepFor {
			sleepFor = remaining
		}
		if sleepFor <= 0 {
			return nil, nil
		}
		time.Sleep(sleepFor)
	}
}

func (m *Memory) tryConsume(queue, workerID string, count int) []*base.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := score(m.clock.Now())
	q := m.queueFor(queue)

	type candidate struct {
		id    string
		entry memEntry
	}
	var due []candidate
	for id, e := range q {
		if e.score <= now {
			due = append(due, candidate{id, e})
		}
	}
	// Score-ascending, insertion order on tie is not tracked explicitly in
	// this map-based store; sort by score only, which is sufficient since
	// ties are broken arbitrarily per spec §4.1 ("Ordering").
	sort.Slice(due, func(i, j int) bool { return due[i].entry.score < due[j].entry.score })
	if len(due) > count {
		due = due[:count]
	}
	if len(due) == 0 {
		return nil
	}

	workers, ok := m.proc[queue]
	if !ok {
		workers = make(map[string]map[string]memEntry)
		m.proc[queue] = workers
	}
	inflight, ok := workers[workerID]
	if !ok {
		inflight = make(map[string]memEntry)
		workers[workerID] = inflight
	}

	out := make([]*base.Message, 0, len(due))
	for _, c := range due {
		delete(q, c.id)
		inflight[c.id] = memEntry{msg: c.entry.msg, score: now}
		out = append(out, c.entry.msg)
	}
	return out
}

func (m *Memory) Ack(queue, workerID string, msg *base.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if workers, ok := m.proc[queue]; ok {
		if inflight, ok := workers[workerID]; ok {
			delete(inflight, msg.ID)
		}
	}
	return nil
}

func (m *Memory) Nack(queue, workerID string, msg *base.Message, delay time.Duration, drop bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if workers, ok := m.proc[queue]; ok {
		if inflight, ok := workers[workerID]; ok {
			delete(inflight, msg.ID)
		}
	}
	if !drop {
		m.queueFor(queue)[msg.ID] = memEntry{msg: msg, score: score(m.clock.Now().Add(delay))}
	}
	return nil
}

func (m *Memory) Recover(queue string, olderThan time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := score(m.clock.Now().Add(-olderThan))
	now := score(m.clock.Now())
	q := m.queueFor(queue)
	for _, inflight := range m.proc[queue] {
		for id, e := range inflight {
			if e.score <= cutoff {
				delete(inflight, id)
				q[id] = memEntry{msg: e.msg, score: now}
			}
		}
	}
	return nil
}

func (m *Memory) Size(queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queueFor(queue))), nil
}

func (m *Memory) Clear(queue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, queue)
	delete(m.proc, queue)
	return nil
}
