// Package controller implements the network-facing pull-loop: it requests
// tasks from the master on behalf of the local worker pool, hands
// TASK_ASSIGN payloads to the pool's queue after decoding them, reports
// finished tids, and sends HEARTBEAT instead of TASK_REQUEST while the local
// queue has no headroom.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/gabrieleiannetti/cyclone/internal/comm"
	"github.com/gabrieleiannetti/cyclone/internal/config"
	"github.com/gabrieleiannetti/cyclone/internal/logger"
	"github.com/gabrieleiannetti/cyclone/internal/protocol"
	"github.com/gabrieleiannetti/cyclone/internal/queue"
	"github.com/gabrieleiannetti/cyclone/internal/task"
	"github.com/rs/zerolog"
)

// Controller drives one connection to the master and feeds a local worker
// pool. It owns no workers directly — Pool is wired in by the caller.
type Controller struct {
	id   string
	cfg  config.ControllerConfig
	conn *comm.Controller

	taskQueue   *queue.Queue[*task.Task]
	resultQueue *queue.Queue[string]
	decode      task.Decoder
}

// New wires a Controller. decode reconstructs an Executor from a
// TASK_ASSIGN's opaque body — it must match whichever generator the
// target master is running.
func New(id string, cfg config.ControllerConfig, conn *comm.Controller, taskQueue *queue.Queue[*task.Task], resultQueue *queue.Queue[string], decode task.Decoder) *Controller {
	return &Controller{
		id:          id,
		cfg:         cfg,
		conn:        conn,
		taskQueue:   taskQueue,
		resultQueue: resultQueue,
		decode:      decode,
	}
}

// queueHeadroom is the number of additional tasks the local queue is
// willing to hold before the pull-loop stops asking for more.
const queueHeadroom = 1

// Run drives the pull-loop until ctx is cancelled or EXIT is received.
func (c *Controller) Run(ctx context.Context) error {
	log := logger.WithController(c.id)
	pollTimeout := time.Duration(c.cfg.Comm.PollTimeout) * time.Second
	retryWait := time.Duration(c.cfg.Control.RequestRetryWaitDuration) * time.Second

	retries := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.conn.Dial(); err != nil {
			retries++
			if c.cfg.Control.MaxNumRequestRetries > 0 && retries > c.cfg.Control.MaxNumRequestRetries {
				return fmt.Errorf("controller: exceeded max_num_request_retries: %w", err)
			}
			log.Warn().Err(err).Int("retry", retries).Msg("dial failed, retrying")
			time.Sleep(retryWait)
			continue
		}
		retries = 0

		c.drainResults(log)

		exit, err := c.tick(log, pollTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("pull-loop iteration failed, reconnecting")
			time.Sleep(retryWait)
			continue
		}
		if exit {
			return nil
		}
	}
}

// tick performs exactly one request/reply exchange: TASK_REQUEST if there
// is headroom, otherwise HEARTBEAT, then processes whatever the master
// sends back.
func (c *Controller) tick(log zerolog.Logger, pollTimeout time.Duration) (exit bool, err error) {
	var msg protocol.Message
	if c.hasHeadroom() {
		msg = protocol.Message{Type: protocol.TaskRequest, Sender: c.id}
	} else {
		msg = protocol.Message{Type: protocol.Heartbeat, Sender: c.id}
	}

	if err := c.conn.Send(msg); err != nil {
		return false, fmt.Errorf("send %s: %w", msg.Type, err)
	}

	reply, err := c.conn.Recv(pollTimeout)
	if err != nil {
		if err == comm.ErrTimeout {
			return false, nil
		}
		return false, fmt.Errorf("recv reply to %s: %w", msg.Type, err)
	}

	switch reply.Type {
	case protocol.TaskAssign:
		if err := c.assign(reply); err != nil {
			log.Error().Err(err).Str("tid", reply.Tid).Msg("failed to decode assigned task")
		}
	case protocol.Wait:
		time.Sleep(time.Duration(reply.WaitSeconds) * time.Second)
	case protocol.Exit:
		log.Info().Msg("received EXIT, draining")
		return true, nil
	case protocol.Acknowledge:
		// no-op
	default:
		return false, fmt.Errorf("unexpected reply type %s", reply.Type)
	}

	return false, nil
}

func (c *Controller) assign(reply protocol.Message) error {
	body, err := c.decode(reply.TaskBody)
	if err != nil {
		return err
	}
	t, err := task.New(reply.Tid, body)
	if err != nil {
		return err
	}
	c.taskQueue.Push(t)
	return nil
}

func (c *Controller) hasHeadroom() bool {
	return c.taskQueue.Len() < queueHeadroom
}

// drainResults reports every tid the worker pool has finished since the
// last tick. It never blocks: if the queue is empty it returns at once.
func (c *Controller) drainResults(log zerolog.Logger) {
	for {
		tid, acquired, popped := c.resultQueue.TryPop(0)
		if !acquired || !popped {
			return
		}
		msg := protocol.Message{Type: protocol.TaskFinished, Sender: c.id, Tid: tid}
		if err := c.conn.Send(msg); err != nil {
			log.Warn().Err(err).Str("tid", tid).Msg("failed to report TASK_FINISHED")
			return
		}
		if _, err := c.conn.Recv(time.Duration(c.cfg.Comm.PollTimeout) * time.Second); err != nil {
			log.Warn().Err(err).Str("tid", tid).Msg("no reply to TASK_FINISHED")
			return
		}
	}
}
