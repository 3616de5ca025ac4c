package master

import (
	"context"
	"fmt"
	"time"

	"github.com/gabrieleiannetti/cyclone/internal/comm"
	"github.com/gabrieleiannetti/cyclone/internal/events"
	"github.com/gabrieleiannetti/cyclone/internal/metrics"
	"github.com/gabrieleiannetti/cyclone/internal/protocol"
	"github.com/gabrieleiannetti/cyclone/internal/task"
	"github.com/rs/zerolog"
)

const taskQueueTryLockTimeout = 1 * time.Second

// dispatch implements the per-message branch of the dispatch loop: upsert
// the sender's heartbeat, then either run the on-distribution protocol or
// reply EXIT and prune during drain.
func (m *Master) dispatch(ctx context.Context, log zerolog.Logger, env comm.Envelope) error {
	msg := env.Msg
	if msg.Sender == "" && msg.Type != protocol.TaskAssign && msg.Type != protocol.Wait &&
		msg.Type != protocol.Acknowledge && msg.Type != protocol.Exit {
		metrics.RecordDispatchError("decode")
		_ = env.Reply(ackMessage())
		return fmt.Errorf("message %s carries no sender", msg.Type)
	}

	now := time.Now().Unix()

	m.mu.Lock()
	joined := false
	if msg.Sender != "" {
		_, seen := m.heartbeat[msg.Sender]
		joined = !seen
		m.heartbeat[msg.Sender] = now
	}
	distributing := m.distribution
	m.mu.Unlock()

	if joined && m.publisher != nil {
		m.publisher.Publish(events.New(events.ControllerJoined, events.ControllerEventData(msg.Sender)))
	}

	if !distributing {
		return m.replyExitAndPrune(log, env, msg.Sender)
	}

	switch msg.Type {
	case protocol.TaskRequest:
		return m.handleTaskRequest(log, env, msg.Sender, now)
	case protocol.TaskFinished:
		return m.handleTaskFinished(log, env, msg, now)
	case protocol.Heartbeat:
		return env.Reply(ackMessage())
	default:
		metrics.RecordDispatchError("inconsistency")
		_ = env.Reply(ackMessage())
		return fmt.Errorf("unexpected message type %s on an active connection", msg.Type)
	}
}

func (m *Master) handleTaskRequest(log zerolog.Logger, env comm.Envelope, sender string, now int64) error {
	w, acquired, popped := m.taskQueue.TryPop(taskQueueTryLockTimeout)
	if !acquired {
		return env.Reply(m.waitReply())
	}

	if !popped {
		if m.genRunner != nil && !m.genRunner.Alive() {
			m.mu.Lock()
			m.distribution = false
			m.controllerWaitDuration = 0
			m.mu.Unlock()
			log.Info().Msg("task generator finished and queue drained, stopping distribution")
		}
		return env.Reply(m.waitReply())
	}

	m.mu.Lock()
	rec, known := m.status[w.Tid]
	var reply *protocol.Message
	var publish *events.Event

	switch {
	case !known:
		m.status[w.Tid] = &task.StatusItem{Tid: w.Tid, State: task.Assigned, ControllerID: sender, Timestamp: now}
		r := assignReply(w.Tid, w.Body)
		reply = &r
		publish = events.New(events.TaskAssigned, events.TaskEventData(w.Tid, sender))

	case rec.State == task.Finished || now >= rec.Timestamp+int64(m.cfg.TaskResendTimeout):
		wasReassignment := rec.State == task.Assigned
		rec.State = task.Assigned
		rec.ControllerID = sender
		rec.Timestamp = now
		r := assignReply(w.Tid, w.Body)
		reply = &r
		if wasReassignment {
			publish = events.New(events.TaskReassigned, events.TaskEventData(w.Tid, sender))
			metrics.TasksReassigned.Inc()
		} else {
			publish = events.New(events.TaskAssigned, events.TaskEventData(w.Tid, sender))
		}

	case rec.State == task.Assigned:
		r := m.waitReply()
		reply = &r

	default:
		m.mu.Unlock()
		metrics.RecordDispatchError("inconsistency")
		_ = env.Reply(ackMessage())
		return fmt.Errorf("task %s in undefined state combination", w.Tid)
	}
	m.mu.Unlock()

	if publish != nil && m.publisher != nil {
		m.publisher.Publish(publish)
	}
	if reply.Type == protocol.TaskAssign {
		metrics.TasksAssigned.Inc()
	}
	return env.Reply(*reply)
}

func (m *Master) handleTaskFinished(log zerolog.Logger, env comm.Envelope, msg protocol.Message, now int64) error {
	m.mu.Lock()
	rec, known := m.status[msg.Tid]
	if !known {
		m.mu.Unlock()
		metrics.RecordDispatchError("inconsistency")
		_ = env.Reply(ackMessage())
		return fmt.Errorf("TASK_FINISHED for unknown tid %s", msg.Tid)
	}

	if rec.ControllerID != msg.Sender {
		m.mu.Unlock()
		log.Warn().Str("tid", msg.Tid).Str("sender", msg.Sender).Str("assignee", rec.ControllerID).
			Msg("TASK_FINISHED sender mismatch, ignoring")
		return env.Reply(ackMessage())
	}

	rec.State = task.Finished
	rec.Timestamp = now
	m.mu.Unlock()

	m.resultQueue.Push(msg.Tid)
	metrics.TasksFinished.Inc()
	if m.publisher != nil {
		m.publisher.Publish(events.New(events.TaskFinished, events.TaskEventData(msg.Tid, msg.Sender)))
	}
	return env.Reply(ackMessage())
}

func (m *Master) replyExitAndPrune(log zerolog.Logger, env comm.Envelope, sender string) error {
	if err := env.Reply(exitMessage()); err != nil {
		return err
	}
	if sender != "" {
		m.mu.Lock()
		delete(m.heartbeat, sender)
		m.mu.Unlock()
		if m.publisher != nil {
			m.publisher.Publish(events.New(events.ControllerLeft, events.ControllerEventData(sender)))
		}
	}
	return nil
}

func (m *Master) waitReply() protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return protocol.Message{Type: protocol.Wait, WaitSeconds: int(m.controllerWaitDuration)}
}

func assignReply(tid string, body []byte) protocol.Message {
	return protocol.Message{Type: protocol.TaskAssign, Tid: tid, TaskBody: body}
}

func ackMessage() protocol.Message {
	return protocol.Message{Type: protocol.Acknowledge}
}

func exitMessage() protocol.Message {
	return protocol.Message{Type: protocol.Exit}
}
