// Package master implements the dispatch core: a single-threaded,
// strict request/reply state machine serving TASK_REQUEST, TASK_FINISHED,
// and HEARTBEAT from controllers, tracking per-task assignment state and
// per-controller liveness, and driving a two-phase shutdown.
package master

import (
	"context"
	"sync"
	"time"

	"github.com/gabrieleiannetti/cyclone/internal/comm"
	"github.com/gabrieleiannetti/cyclone/internal/config"
	"github.com/gabrieleiannetti/cyclone/internal/events"
	"github.com/gabrieleiannetti/cyclone/internal/generator"
	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/metrics"
	"github.com/gabrieleiannetti/cyclone/internal/queue"
	"github.com/gabrieleiannetti/cyclone/internal/task"
	"github.com/rs/zerolog"
)

const maxErrorCount = 100

// Master owns the whole dispatch state machine described in the
// component design: TASK_DISTRIBUTION, the per-tid status table, the
// controller heartbeat map, and the queues a generator feeds and drains.
type Master struct {
	cfg  config.MasterControl
	comm *comm.Master

	taskQueue   *queue.Queue[*task.Wire]
	resultQueue *queue.Queue[string]
	publisher   *events.Publisher

	genRunner *generator.Runner

	mu                     sync.Mutex
	distribution           bool
	status                 map[string]*task.StatusItem
	heartbeat              map[string]int64
	errorCount             int
	controllerWaitDuration int64

	pollTimeout time.Duration
}

// New wires a Master around its comm endpoint and queues. Start the task
// generator separately with generator.Start and attach it with
// AttachGenerator before calling Run.
func New(cfg config.MasterConfig, c *comm.Master, taskQueue *queue.Queue[*task.Wire], resultQueue *queue.Queue[string], publisher *events.Publisher) *Master {
	return &Master{
		cfg:                    cfg.Control,
		comm:                   c,
		taskQueue:              taskQueue,
		resultQueue:            resultQueue,
		publisher:              publisher,
		distribution:           true,
		status:                 make(map[string]*task.StatusItem),
		heartbeat:              make(map[string]int64),
		controllerWaitDuration: int64(cfg.Control.ControllerWaitDuration),
		pollTimeout:            time.Duration(cfg.Comm.PollTimeout) * time.Second,
	}
}

// AttachGenerator records the running task generator so the dispatch loop
// can check its liveness and, at shutdown, signal and wait on it.
func (m *Master) AttachGenerator(r *generator.Runner) {
	m.genRunner = r
}

// StopDistribution flips TASK_DISTRIBUTION off. Safe to call from a
// signal handler or from within the dispatch loop itself.
func (m *Master) StopDistribution() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distribution = false
}

// ErrorCount returns the current count of errors the dispatch loop has
// absorbed (used for the process exit code).
func (m *Master) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorCount
}

// Run drives the dispatch loop until it drains: TASK_DISTRIBUTION off and
// every controller has either unregistered or exceeded controller_timeout.
// It also returns once the error count reaches max_error_count.
// ctx cancellation does not abort the loop directly — a signal only flips
// distribution off via StopDistribution/WatchSignals, and the loop notices
// within one poll_timeout and proceeds through the ordinary drain path so
// every connected controller still gets its EXIT reply.
func (m *Master) Run(ctx context.Context) {
	log := logger.WithComponent("master_dispatch")

	for {
		env, err := m.comm.Recv(m.pollTimeout)
		if err != nil {
			m.onReceiveTimeout(log)
			if m.drained() {
				return
			}
			continue
		}

		m.handleEnvelope(ctx, log, env)

		if m.drained() || m.ErrorCount() >= maxErrorCount {
			return
		}
	}
}

func (m *Master) drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.distribution && len(m.heartbeat) == 0
}

func (m *Master) onReceiveTimeout(log zerolog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.distribution {
		return
	}
	m.pruneHeartbeats()
}

// pruneHeartbeats removes every controller whose last-seen timestamp is
// at least controller_timeout seconds old. Caller must hold m.mu.
func (m *Master) pruneHeartbeats() {
	now := time.Now().Unix()
	for id, last := range m.heartbeat {
		if now >= last+int64(m.cfg.ControllerTimeout) {
			delete(m.heartbeat, id)
		}
	}
}

func (m *Master) handleEnvelope(ctx context.Context, log zerolog.Logger, env comm.Envelope) {
	start := time.Now()
	defer func() { metrics.DispatchLoopDuration.Observe(time.Since(start).Seconds()) }()

	if env.DecodeErr != nil {
		log.Warn().Err(env.DecodeErr).Msg("decode error on received frame")
		metrics.RecordDispatchError("decode")
		_ = env.Reply(ackMessage())
		return
	}

	if err := m.dispatch(ctx, log, env); err != nil {
		m.recordIterationError(log, err)
	}
}

func (m *Master) recordIterationError(log zerolog.Logger, err error) {
	m.mu.Lock()
	m.errorCount++
	count := m.errorCount
	m.distribution = false
	m.mu.Unlock()

	log.Error().Err(err).Int("error_count", count).Msg("dispatch loop error, stopping distribution")

	if count >= maxErrorCount {
		log.Error().Msg("max_error_count exceeded, terminating")
	}
}
