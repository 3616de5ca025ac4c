package worker

import (
	"context"
	"time"

	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/task"
)

// Executor runs a task's own Execute method, logging start/finish around
// it. Panic recovery already lives in task.Task.Execute; this layer only
// adds the observability the teacher's handler-dispatch executor used to
// provide per invocation.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// Run executes t, logging the outcome under the worker's own sub-logger.
func (e *Executor) Run(ctx context.Context, workerID string, t *task.Task) error {
	log := logger.WithWorker(workerID)
	start := time.Now()

	err := t.Execute(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("tid", t.Tid).Dur("duration", duration).Msg("task execution failed")
		return err
	}

	log.Debug().Str("tid", t.Tid).Dur("duration", duration).Msg("task executed")
	return nil
}
