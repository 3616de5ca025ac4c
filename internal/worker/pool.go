// Package worker implements the controller-side worker pool: a fixed
// number of identical goroutines sharing a local task queue, a local
// result queue, and a worker-state table under one lock.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/metrics"
	"github.com/gabrieleiannetti/cyclone/internal/queue"
	"github.com/gabrieleiannetti/cyclone/internal/task"
)

// Pool runs Count identical workers against a shared task queue, pushing
// finished tids onto a shared result queue and publishing their lifecycle
// into a StateTable the controller's pull-loop and admin surface can read.
type Pool struct {
	id          string
	count       int
	taskQueue   *queue.Queue[*task.Task]
	resultQueue *queue.Queue[string]
	table       *StateTable
	executor    *Executor

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool builds a pool of count workers. taskQueue and resultQueue are
// owned by the caller (the controller), which also drains resultQueue.
func NewPool(id string, count int, taskQueue *queue.Queue[*task.Task], resultQueue *queue.Queue[string]) *Pool {
	return &Pool{
		id:          id,
		count:       count,
		taskQueue:   taskQueue,
		resultQueue: resultQueue,
		table:       NewStateTable(count),
		executor:    NewExecutor(),
	}
}

// StateTable exposes the published worker-slot table for introspection.
func (p *Pool) StateTable() *StateTable { return p.table }

// Start spawns the worker goroutines. Cancelling ctx (or calling Stop)
// flips each worker's run flag cooperatively — a task already inside
// Execute runs to completion; bounding that is the task body's job.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(runCtx, i)
	}

	logger.WithComponent("worker_pool").Info().
		Str("pool_id", p.id).Int("count", p.count).Msg("worker pool started")
}

// Stop signals shutdown and waits up to timeout for every worker to drain
// its current task.
func (p *Pool) Stop(timeout time.Duration) {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.WithComponent("worker_pool").Warn().
			Str("pool_id", p.id).Msg("worker pool stop timed out, some workers still draining")
	}
}

func (p *Pool) run(ctx context.Context, slot int) {
	defer p.wg.Done()

	workerID := fmt.Sprintf("%s-%d", p.id, slot)
	p.table.Set(slot, Ready, "")

	for {
		t, ok := p.taskQueue.PopBlocking(ctx)
		if !ok {
			p.table.Set(slot, NotReady, "")
			return
		}

		p.table.Set(slot, Executing, t.Tid)
		metrics.WorkerState.WithLabelValues(workerID, Executing.String()).Set(1)

		if err := p.executor.Run(context.WithoutCancel(ctx), workerID, t); err != nil {
			metrics.TaskExecuteErrors.Inc()
		}

		p.resultQueue.Push(t.Tid)

		p.table.Set(slot, Ready, "")
		metrics.WorkerState.WithLabelValues(workerID, Executing.String()).Set(0)
	}
}
