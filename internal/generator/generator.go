// Package generator implements the pluggable task-generator contract: a
// long-running producer that fills the master's task queue and may drain
// its result queue to drive its own progress. The original selects an
// implementation via a (module, class, config_file) triple loaded
// dynamically; a statically compiled binary instead uses a compile-time
// registry mapping a name to a factory, per the design notes' option (a).
package generator

import (
	"context"
	"fmt"
	"sync"

	"github.com/gabrieleiannetti/cyclone/internal/queue"
	"github.com/gabrieleiannetti/cyclone/internal/task"
)

// Generator is implemented by every pluggable task producer.
type Generator interface {
	// Run pushes tasks into taskQueue and optionally drains resultQueue
	// until ctx is cancelled or the generator completes on its own. A
	// natural return (nil error, ctx not yet cancelled) tells the master
	// the generator finished and it's time to begin drain once the task
	// queue empties.
	Run(ctx context.Context, taskQueue *queue.Queue[*task.Wire], resultQueue *queue.Queue[string]) error
}

// Factory builds a Generator from its own config file path.
type Factory func(configFile string) (Generator, error)

var (
	mu       sync.Mutex
	registry = map[string]Factory{}
)

// Register adds a named factory to the compile-time registry. Intended to
// be called from an init() in the package implementing a concrete
// generator.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// Lookup resolves a registered factory by name (the config's
// task_generator.class).
func Lookup(name string) (Factory, error) {
	mu.Lock()
	defer mu.Unlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("generator: no factory registered for %q", name)
	}
	return f, nil
}

// Runner wraps a live Generator with the liveness/shutdown handle the
// master needs: Alive (has it returned yet) and Stop (the SIGUSR1
// equivalent — cooperative cancellation).
type Runner struct {
	gen    Generator
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches gen in its own goroutine.
func Start(ctx context.Context, gen Generator, taskQueue *queue.Queue[*task.Wire], resultQueue *queue.Queue[string]) *Runner {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Runner{gen: gen, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		_ = gen.Run(runCtx, taskQueue, resultQueue)
	}()

	return r
}

// Alive reports whether the generator's Run has not yet returned.
func (r *Runner) Alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Stop signals cooperative shutdown (the SIGUSR1 equivalent).
func (r *Runner) Stop() {
	r.cancel()
}

// Done is closed once Run has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
