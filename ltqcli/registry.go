// Package ltqcli is the thin CLI harness described in spec.md §6. Go has
// no runtime "module:symbol" import-string resolution, so a user program
// builds its Workers and Apps, registers them by name in a Registry, and
// hands the Registry to Main from its own func main() — the idiomatic
// substitute for original_source/src/ltq/cli.py's import_from_string.
package ltqcli

import (
	"sync"

	"github.com/tclesius/ltq"
)

// Registry holds the named Workers and Apps a CLI invocation's target may
// resolve to (spec §6, "target of form module:symbol resolving to a
// Worker" / "...resolving to an App"; here the target is just the
// registered name).
type Registry struct {
	mu      sync.Mutex
	workers map[string]*ltq.Worker
	apps    map[string]*ltq.App
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]*ltq.Worker),
		apps:    make(map[string]*ltq.App),
	}
}

// RegisterWorker makes w resolvable as target name by "run <name>".
func (r *Registry) RegisterWorker(name string, w *ltq.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[name] = w
}

// RegisterApp makes a resolvable as target name by "run --app <name>".
func (r *Registry) RegisterApp(name string, a *ltq.App) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[name] = a
}

func (r *Registry) worker(name string) (*ltq.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[name]
	return w, ok
}

func (r *Registry) app(name string) (*ltq.App, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[name]
	return a, ok
}
