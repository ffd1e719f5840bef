// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package ltq

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tclesius/ltq/internal/base"
	"github.com/tclesius/ltq/internal/errors"
	"github.com/tclesius/ltq/internal/log"
)

// defaultConcurrency is the concurrency limit used when WorkerConfig.
// Concurrency is left at zero (spec §3, "concurrency limit ... default
// 100").
const defaultConcurrency = 100

const (
	defaultBlockDuration = 2 * time.Second
	defaultDrainTimeout  = 8 * time.Second
)

type workerState int32

const (
	workerNew workerState = iota
	workerRunning
	workerStopped
)

// WorkerConfig configures a Worker. Every field follows the teacher's
// Config idiom in server.go: the zero value means "use the default",
// applied inside NewWorker.
type WorkerConfig struct {
	// Concurrency bounds how many messages this Worker processes at once,
	// across every registered queue. Zero or negative uses
	// defaultConcurrency.
	Concurrency int

	// Middlewares overrides the default middleware stack
	// ([MaxTriesMiddleware, MaxAgeMiddleware, MaxRateMiddleware]) if set
	// (spec §4.3, "Default middleware stack").
	Middlewares []Middleware

	// Logger receives this Worker's log output. Nil uses a default
	// stderr logger.
	Logger log.Base

	// LogLevel is the minimum level forwarded to Logger. The zero value
	// (log.DebugLevel) keeps the default, log.InfoLevel; SetLogLevel can
	// select log.DebugLevel.
	LogLevel log.Level

	// RecoverAfter, if positive, makes Start call broker.Recover for
	// every registered queue with this as older_than, before consumption
	// begins (spec §4.4, "Startup").
	RecoverAfter time.Duration

	// BlockDuration bounds how long a single broker.Consume call may wait
	// for a message (spec §4.4 step 2, "T is a small upper bound (seconds)
	// chosen so shutdown is responsive"). Zero uses defaultBlockDuration.
	BlockDuration time.Duration

	// DrainTimeout bounds how long Stop waits for in-flight processing to
	// finish before nacking stragglers (spec §4.4, "Shutdown"). Zero uses
	// defaultDrainTimeout.
	DrainTimeout time.Duration
}

// inflightEntry tracks one message currently being processed, so Stop can
// nack it directly if the processing goroutine doesn't finish by the
// drain deadline (spec §5, "Cancellation and timeout").
type inflightEntry struct {
	queue  string
	msg    *Message
	cancel func()
}

// Worker consumes from one or more queues, enforces a concurrency bound,
// drives the middleware pipeline, and translates outcomes into ack/nack
// (spec §4.4).
type Worker struct {
	// Name is this worker's namespace: the default queue name for any
	// task registered without an explicit shared queue (spec §4.2).
	Name string

	// ID is this run's stable worker_id (spec §3, "Worker state").
	ID string

	Concurrency int

	broker base.Broker
	logger *log.Logger

	recoverAfter  time.Duration
	blockDuration time.Duration
	drainTimeout  time.Duration

	mu          sync.Mutex
	state       workerState
	tasks       map[string]*Task // task_name -> Task
	queues      []string         // distinct queue names, registration order
	queueSeen   map[string]bool
	middlewares []Middleware

	sem      *semaphore.Weighted
	done     chan struct{}
	wg       sync.WaitGroup
	inflight sync.Map // message ID -> *inflightEntry
}

// NewWorker returns a Worker named name, backed by broker.
func NewWorker(name string, broker base.Broker, cfg WorkerConfig) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	block := cfg.BlockDuration
	if block <= 0 {
		block = defaultBlockDuration
	}
	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	mws := cfg.Middlewares
	if mws == nil {
		mws = DefaultMiddleware()
	}
	logger := log.NewLogger(cfg.Logger)
	if cfg.LogLevel != 0 {
		logger.SetLevel(cfg.LogLevel)
	}

	return &Worker{
		Name:          name,
		ID:            uuid.NewString(),
		Concurrency:   concurrency,
		broker:        broker,
		logger:        logger,
		recoverAfter:  cfg.RecoverAfter,
		blockDuration: block,
		drainTimeout:  drain,
		state:         workerNew,
		tasks:         make(map[string]*Task),
		queueSeen:     make(map[string]bool),
		middlewares:   mws,
		sem:           semaphore.NewWeighted(int64(concurrency)),
		done:          make(chan struct{}),
	}
}

// DefaultMiddleware returns a fresh copy of the default middleware stack
// (spec §4.3): MaxTries, MaxAge, MaxRate, outermost first.
func DefaultMiddleware() []Middleware {
	return []Middleware{
		MaxTriesMiddleware{},
		MaxAgeMiddleware{},
		NewMaxRateMiddleware(),
	}
}

// RegisterMiddleware appends mw to this Worker's stack, or inserts it at
// pos if pos >= 0 (spec §4.3's original Python equivalent,
// Worker.register_middleware).
func (w *Worker) RegisterMiddleware(mw Middleware, pos int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pos < 0 || pos >= len(w.middlewares) {
		w.middlewares = append(w.middlewares, mw)
		return
	}
	w.middlewares = append(w.middlewares[:pos:pos], append([]Middleware{mw}, w.middlewares[pos:]...)...)
}

// Register binds fn to a new Task named "{Worker.Name}:{name}" (spec
// §4.2's default namespacing) and adds it to this Worker's task table.
func (w *Worker) Register(name string, fn HandlerFunc, opts TaskOptions) (*Task, error) {
	return w.RegisterQueue(w.Name, name, fn, opts)
}

// RegisterQueue binds fn to a new Task named "{queue}:{name}", publishing
// to an explicit shared queue rather than this Worker's own namespace
// (spec §4.2, "unless an explicit shared queue is declared").
func (w *Worker) RegisterQueue(queue, name string, fn HandlerFunc, opts TaskOptions) (*Task, error) {
	if err := base.ValidateQueueName(queue); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.E(errors.InvalidArgument, "task handler must not be nil")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	taskName := queue + ":" + name

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != workerNew {
		return nil, errors.E(errors.FailedPrecondition, "cannot register tasks after the worker has started")
	}
	if _, exists := w.tasks[taskName]; exists {
		return nil, errors.E(errors.InvalidArgument, fmt.Sprintf("task %q already registered", taskName))
	}

	task := &Task{Name: taskName, QueueName: queue, Options: opts, Fn: fn, worker: w}
	w.tasks[taskName] = task
	if !w.queueSeen[queue] {
		w.queueSeen[queue] = true
		w.queues = append(w.queues, queue)
	}
	return task, nil
}

// SetConcurrency overrides the concurrency bound this Worker was
// constructed with. It must be called before Start, e.g. from the CLI's
// "--concurrency" flag (spec §6, "Common flags on run").
func (w *Worker) SetConcurrency(n int) error {
	if n <= 0 {
		return errors.E(errors.InvalidArgument, "concurrency must be > 0")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != workerNew {
		return errors.E(errors.FailedPrecondition, "cannot change concurrency after the worker has started")
	}
	w.Concurrency = n
	w.sem = semaphore.NewWeighted(int64(n))
	return nil
}

// SetLogLevel sets the minimum level this Worker's logger forwards, e.g.
// from the CLI's "--log-level" flag.
func (w *Worker) SetLogLevel(level log.Level) {
	w.logger.SetLevel(level)
}

// Start brings the Worker to the running state: optionally recovers
// stale in-flight messages, then spawns one consumption goroutine per
// registered queue (spec §4.4, "Startup"). Start does not block.
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.state != workerNew {
		w.mu.Unlock()
		return errors.E(errors.FailedPrecondition, "worker already started")
	}
	w.state = workerRunning
	queues := append([]string(nil), w.queues...)
	w.mu.Unlock()

	if w.recoverAfter > 0 {
		for _, q := range queues {
			if err := w.broker.Recover(q, w.recoverAfter); err != nil {
				w.logger.Errorf("recover %q: %v", q, err)
			}
		}
	}

	for _, q := range queues {
		w.wg.Add(1)
		go w.consumeLoop(q)
	}
	w.logger.Infof("worker %s started (id=%s, queues=%v)", w.Name, w.ID, queues)
	return nil
}

// Stop ceases accepting new leases, waits up to drainTimeout for in-flight
// processing to finish, then nacks anything still unfinished with
// delay=0 so another worker can pick it up (spec §4.4, "Shutdown").
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state != workerRunning {
		w.mu.Unlock()
		return
	}
	w.state = workerStopped
	w.mu.Unlock()

	close(w.done)

	drained := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(w.drainTimeout):
		w.logger.Warnf("worker %s: drain timeout, requeuing stragglers", w.Name)
		w.inflight.Range(func(key, value any) bool {
			id := key.(string)
			entry := value.(*inflightEntry)
			if _, ok := w.inflight.LoadAndDelete(id); !ok {
				return true
			}
			entry.cancel()
			if err := w.broker.Nack(entry.queue, w.ID, entry.msg, 0, false); err != nil {
				w.logger.Errorf("requeue straggler %s: %v", id, err)
			}
			return true
		})
		<-drained
	}
	w.logger.Infof("worker %s stopped", w.Name)
}

func (w *Worker) consumeLoop(queue string) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		default:
		}

		if err := w.sem.Acquire(context.Background(), 1); err != nil {
			return
		}

		msgs, err := w.broker.Consume(queue, w.ID, 1, w.blockDuration)
		if err != nil {
			w.sem.Release(1)
			w.logger.Errorf("consume %q: %v", queue, err)
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if len(msgs) == 0 {
			w.sem.Release(1)
			continue
		}

		w.wg.Add(1)
		go w.process(queue, msgs[0])
	}
}

func (w *Worker) process(queue string, msg *Message) {
	defer w.wg.Done()
	defer w.sem.Release(1)

	task, ok := w.taskFor(msg.TaskName)
	if !ok {
		w.logger.Warnf("message %s for unknown task %q, dropping", msg.ID, msg.TaskName)
		_ = w.broker.Nack(queue, w.ID, msg, 0, true)
		return
	}

	msgCtx, cancel := context.WithCancel(context.Background())
	w.inflight.Store(msg.ID, &inflightEntry{queue: queue, msg: msg, cancel: cancel})
	defer cancel()

	mws := w.middlewaresFor()
	bodyErr := runPipeline(msgCtx, msg, task, mws, func() error {
		return task.Fn(msgCtx, msg)
	})

	if _, stillOwned := w.inflight.LoadAndDelete(msg.ID); !stillOwned {
		// Stop's drain-deadline sweep already requeued this message;
		// do not issue a second, conflicting broker call.
		return
	}

	w.translateOutcome(queue, msg, task, bodyErr)
}

func (w *Worker) translateOutcome(queue string, msg *Message, task *Task, err error) {
	if err == nil {
		if ackErr := w.broker.Ack(queue, w.ID, msg); ackErr != nil {
			w.logger.Errorf("ack %s: %v", msg.ID, ackErr)
		}
		return
	}

	var retry *errors.RetryError
	var reject *errors.RejectError
	switch {
	case stderrors.As(err, &retry):
		w.logger.Debugf("retrying %s in %s: %v", msg.ID, retry.Delay, err)
		if nackErr := w.broker.Nack(queue, w.ID, msg, retry.Delay, false); nackErr != nil {
			w.logger.Errorf("nack(retry) %s: %v", msg.ID, nackErr)
		}
	case stderrors.As(err, &reject):
		w.logger.Warnf("message %s rejected: %v", msg.ID, err)
		if nackErr := w.broker.Nack(queue, w.ID, msg, 0, true); nackErr != nil {
			w.logger.Errorf("nack(drop) %s: %v", msg.ID, nackErr)
		}
	default:
		w.logger.Errorf("unhandled error processing %s (task %s): %v", msg.ID, task.Name, err)
		if nackErr := w.broker.Nack(queue, w.ID, msg, 0, true); nackErr != nil {
			w.logger.Errorf("nack(drop) %s: %v", msg.ID, nackErr)
		}
	}
}

func (w *Worker) taskFor(name string) (*Task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tasks[name]
	return t, ok
}

func (w *Worker) middlewaresFor() []Middleware {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Middleware(nil), w.middlewares...)
}
