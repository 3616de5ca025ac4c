// Package integration exercises the dispatch loop end-to-end over a real
// websocket transport: a live internal/comm.Master paired with real
// internal/comm.Controller connections, driving the scenarios from the
// component design's testable-properties section (S1-S6) rather than unit
// testing internal/master in isolation.
package integration

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleiannetti/cyclone/internal/comm"
	"github.com/gabrieleiannetti/cyclone/internal/config"
	"github.com/gabrieleiannetti/cyclone/internal/events"
	"github.com/gabrieleiannetti/cyclone/internal/generator"
	"github.com/gabrieleiannetti/cyclone/internal/master"
	"github.com/gabrieleiannetti/cyclone/internal/protocol"
	"github.com/gabrieleiannetti/cyclone/internal/queue"
	"github.com/gabrieleiannetti/cyclone/internal/task"
)

// exhaustedGenerator simulates a task generator that has already produced
// everything it ever will: Run returns immediately, leaving the task
// queue exactly as the master finds it.
type exhaustedGenerator struct{}

func (exhaustedGenerator) Run(ctx context.Context, taskQueue *queue.Queue[*task.Wire], resultQueue *queue.Queue[string]) error {
	return nil
}

type harness struct {
	m           *master.Master
	commMaster  *comm.Master
	taskQueue   *queue.Queue[*task.Wire]
	resultQueue *queue.Queue[string]
	cancel      context.CancelFunc
	runDone     chan struct{}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newHarness(t *testing.T, resendTimeout, controllerTimeout, waitDuration int) (*harness, int) {
	return newHarnessWithGenerator(t, resendTimeout, controllerTimeout, waitDuration, nil)
}

func newHarnessWithGenerator(t *testing.T, resendTimeout, controllerTimeout, waitDuration int, gen generator.Generator) (*harness, int) {
	t.Helper()
	port := freePort(t)

	cfg := config.MasterConfig{
		Control: config.MasterControl{
			PIDFile:                t.TempDir() + "/master.pid",
			ControllerTimeout:      controllerTimeout,
			ControllerWaitDuration: waitDuration,
			TaskResendTimeout:      resendTimeout,
		},
		Comm: config.Comm{Target: "127.0.0.1", Port: port, PollTimeout: 1},
	}

	taskQueue := queue.New[*task.Wire](0)
	resultQueue := queue.New[string](0)
	publisher := events.NewPublisher()
	commMaster := comm.NewMaster(cfg.Comm.Target, cfg.Comm.Port)
	m := master.New(cfg, commMaster, taskQueue, resultQueue, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = commMaster.Serve(ctx) }()

	if gen != nil {
		runner := generator.Start(ctx, gen, taskQueue, resultQueue)
		m.AttachGenerator(runner)
		<-runner.Done()
	}

	runDone := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(runDone)
	}()

	h := &harness{m: m, commMaster: commMaster, taskQueue: taskQueue, resultQueue: resultQueue, cancel: cancel, runDone: runDone}

	waitForListener(t, cfg.Comm.Target, port)
	return h, port
}

func waitForListener(t *testing.T, host string, port int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	addr := fmt.Sprintf("%s:%d", host, port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("master never started listening on %s", addr)
}

func (h *harness) stop() {
	h.cancel()
	_ = h.commMaster.Close()
}

func dial(t *testing.T, port int) *comm.Controller {
	t.Helper()
	c := comm.NewController("127.0.0.1", port)
	require.NoError(t, c.Dial())
	return c
}

func roundTrip(t *testing.T, c *comm.Controller, msg protocol.Message) protocol.Message {
	t.Helper()
	require.NoError(t, c.Send(msg))
	reply, err := c.Recv(2 * time.Second)
	require.NoError(t, err)
	return reply
}

// S1: happy path — assign then finish.
func TestTaskLifecycle_HappyPath(t *testing.T) {
	h, port := newHarness(t, 300, 30, 5)
	defer h.stop()

	h.taskQueue.Push(&task.Wire{Tid: "T1", Body: []byte("payload-1")})

	c1 := dial(t, port)
	defer c1.Close()

	reply := roundTrip(t, c1, protocol.Message{Type: protocol.TaskRequest, Sender: "C1"})
	require.Equal(t, protocol.TaskAssign, reply.Type)
	assert.Equal(t, "T1", reply.Tid)
	assert.Equal(t, []byte("payload-1"), reply.TaskBody)

	reply = roundTrip(t, c1, protocol.Message{Type: protocol.TaskFinished, Sender: "C1", Tid: "T1"})
	assert.Equal(t, protocol.Acknowledge, reply.Type)

	tid, acquired, popped := h.resultQueue.TryPop(time.Second)
	require.True(t, acquired)
	require.True(t, popped)
	assert.Equal(t, "T1", tid)
}

// S2: empty queue returns WAIT with the configured controller_wait_duration.
func TestTaskLifecycle_EmptyQueueWaits(t *testing.T) {
	h, port := newHarness(t, 300, 30, 5)
	defer h.stop()

	c1 := dial(t, port)
	defer c1.Close()

	reply := roundTrip(t, c1, protocol.Message{Type: protocol.TaskRequest, Sender: "C1"})
	assert.Equal(t, protocol.Wait, reply.Type)
	assert.Equal(t, 5, reply.WaitSeconds)
}

// S3: a duplicate push of an already-assigned tid is WAITed on (and
// discarded, never re-enqueued); after task_resend_timeout elapses and the
// generator resurfaces it, the next requester gets a reassignment.
func TestTaskLifecycle_DuplicateProtectionAndReassignment(t *testing.T) {
	h, port := newHarness(t, 1, 30, 5)
	defer h.stop()

	h.taskQueue.Push(&task.Wire{Tid: "T2", Body: []byte("payload-2")})

	c1 := dial(t, port)
	defer c1.Close()
	c2 := dial(t, port)
	defer c2.Close()

	reply := roundTrip(t, c1, protocol.Message{Type: protocol.TaskRequest, Sender: "C1"})
	require.Equal(t, protocol.TaskAssign, reply.Type)
	require.Equal(t, "T2", reply.Tid)

	h.taskQueue.Push(&task.Wire{Tid: "T2", Body: []byte("payload-2")})

	reply = roundTrip(t, c2, protocol.Message{Type: protocol.TaskRequest, Sender: "C2"})
	assert.Equal(t, protocol.Wait, reply.Type, "a still-fresh assignment must not be handed out twice")

	time.Sleep(1200 * time.Millisecond)
	h.taskQueue.Push(&task.Wire{Tid: "T2", Body: []byte("payload-2")})

	reply = roundTrip(t, c2, protocol.Message{Type: protocol.TaskRequest, Sender: "C2"})
	require.Equal(t, protocol.TaskAssign, reply.Type)
	assert.Equal(t, "T2", reply.Tid)

	snap := h.m.Snapshot()
	found := false
	for _, ti := range snap.Tasks {
		if ti.Tid == "T2" {
			found = true
			assert.Equal(t, "C2", ti.ControllerID)
			assert.Equal(t, "assigned", ti.State)
		}
	}
	assert.True(t, found)

	// S4: a late TASK_FINISHED from the original holder is acknowledged but
	// does not affect the current (reassigned) owner's record.
	reply = roundTrip(t, c1, protocol.Message{Type: protocol.TaskFinished, Sender: "C1", Tid: "T2"})
	assert.Equal(t, protocol.Acknowledge, reply.Type)

	snap = h.m.Snapshot()
	for _, ti := range snap.Tasks {
		if ti.Tid == "T2" {
			assert.Equal(t, "C2", ti.ControllerID, "mismatched FINISHED must not steal the record")
			assert.Equal(t, "assigned", ti.State)
		}
	}
}

// S5: graceful shutdown — once distribution stops, every further message
// from a connected controller gets EXIT, the heartbeat map drains, and the
// dispatch loop returns.
func TestTaskLifecycle_GracefulShutdown(t *testing.T) {
	h, port := newHarness(t, 300, 30, 5)
	defer h.stop()

	c1 := dial(t, port)
	defer c1.Close()
	c2 := dial(t, port)
	defer c2.Close()

	roundTrip(t, c1, protocol.Message{Type: protocol.Heartbeat, Sender: "C1"})
	roundTrip(t, c2, protocol.Message{Type: protocol.Heartbeat, Sender: "C2"})

	h.m.StopDistribution()

	reply := roundTrip(t, c1, protocol.Message{Type: protocol.Heartbeat, Sender: "C1"})
	assert.Equal(t, protocol.Exit, reply.Type)

	reply = roundTrip(t, c2, protocol.Message{Type: protocol.Heartbeat, Sender: "C2"})
	assert.Equal(t, protocol.Exit, reply.Type)

	select {
	case <-h.runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not terminate after heartbeat map drained")
	}
}

// S6: a generator that has already exhausted itself, paired with an empty
// task queue, flips TASK_DISTRIBUTION off on the next TASK_REQUEST and sets
// controller_wait_duration to 0; every later message gets EXIT.
func TestTaskLifecycle_GeneratorFinishesNaturally(t *testing.T) {
	h, port := newHarnessWithGenerator(t, 300, 30, 5, exhaustedGenerator{})
	defer h.stop()

	c1 := dial(t, port)
	defer c1.Close()

	reply := roundTrip(t, c1, protocol.Message{Type: protocol.TaskRequest, Sender: "C1"})
	assert.Equal(t, protocol.Wait, reply.Type)

	snap := h.m.Snapshot()
	assert.False(t, snap.Distribution)

	reply = roundTrip(t, c1, protocol.Message{Type: protocol.Heartbeat, Sender: "C1"})
	assert.Equal(t, protocol.Exit, reply.Type)

	select {
	case <-h.runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not terminate after generator exhaustion drained the heartbeat map")
	}
}
