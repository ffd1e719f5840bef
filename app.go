// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package ltq

import (
	"sync"

	"github.com/tclesius/ltq/internal/errors"
	"github.com/tclesius/ltq/internal/log"
)

// App groups several named Workers sharing one Broker and one set of
// app-level middleware, and starts or stops all of them together (spec
// §4.5, "[APP]"). App-level middleware runs outermost, ahead of anything
// registered directly on a Worker (spec §4.5, "App middleware is
// prepended to every Worker's own stack").
type App struct {
	Name   string
	broker Broker
	logger *log.Logger

	mu          sync.Mutex
	middlewares []Middleware
	workers     map[string]*Worker
	started     bool
}

// NewApp returns an App named name, backed by broker.
func NewApp(name string, broker Broker, logger log.Base) *App {
	return &App{
		Name:    name,
		broker:  broker,
		logger:  log.NewLogger(logger),
		workers: make(map[string]*Worker),
	}
}

// Use appends mw to this App's middleware stack. Start prepends the whole
// stack ahead of every registered Worker's own stack.
func (a *App) Use(mw Middleware) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middlewares = append(a.middlewares, mw)
}

// RegisterWorker adds w to this App under name. The App's middleware stack
// is prepended to w's own when Start runs (spec §4.5). It must be called
// before Start.
func (a *App) RegisterWorker(name string, w *Worker) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.E(errors.FailedPrecondition, "cannot register a worker after the app has started")
	}
	if _, exists := a.workers[name]; exists {
		return errors.E(errors.InvalidArgument, "worker "+name+" already registered")
	}
	a.workers[name] = w
	return nil
}

// NewWorker is a convenience that builds a Worker sharing this App's
// Broker, registers it under name, and returns it.
func (a *App) NewWorker(name string, cfg WorkerConfig) (*Worker, error) {
	w := NewWorker(name, a.broker, cfg)
	if err := a.RegisterWorker(name, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Start starts every registered Worker. If any Worker fails to start, the
// Workers already started are stopped before returning the error.
func (a *App) Start() error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.E(errors.FailedPrecondition, "app already started")
	}
	a.started = true
	workers := make([]*Worker, 0, len(a.workers))
	for _, w := range a.workers {
		workers = append(workers, w)
	}
	appMiddlewares := append([]Middleware(nil), a.middlewares...)
	a.mu.Unlock()

	// App middleware is prepended to each worker's own stack here, at
	// Start time, rather than at RegisterWorker time, so middleware a
	// worker registers on itself after RegisterWorker is still included
	// (spec §4.5, "App middleware composition").
	if len(appMiddlewares) > 0 {
		for _, w := range workers {
			w.mu.Lock()
			w.middlewares = append(append([]Middleware(nil), appMiddlewares...), w.middlewares...)
			w.mu.Unlock()
		}
	}

	started := make([]*Worker, 0, len(workers))
	for _, w := range workers {
		if err := w.Start(); err != nil {
			for _, s := range started {
				s.Stop()
			}
			return err
		}
		started = append(started, w)
	}
	a.logger.Infof("app %s started with %d worker(s)", a.Name, len(workers))
	return nil
}

// Stop stops every registered Worker concurrently and waits for all of
// them to finish draining.
func (a *App) Stop() {
	a.mu.Lock()
	workers := make([]*Worker, 0, len(a.workers))
	for _, w := range a.workers {
		workers = append(workers, w)
	}
	a.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
	a.logger.Infof("app %s stopped", a.Name)
}

// Worker returns the Worker registered under name, if any.
func (a *App) Worker(name string) (*Worker, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.workers[name]
	return w, ok
}
