package master

// ControllerInfo is a read-only snapshot of one controller's heartbeat.
type ControllerInfo struct {
	ID       string `json:"id"`
	LastSeen int64  `json:"last_seen"`
}

// TaskInfo is a read-only snapshot of one task's dispatch status.
type TaskInfo struct {
	Tid          string `json:"tid"`
	State        string `json:"state"`
	ControllerID string `json:"controller_id"`
	Timestamp    int64  `json:"timestamp"`
}

// Snapshot is the whole introspectable state of the dispatch loop at one
// instant, used by the admin surface. It is always built under the same
// lock the dispatch loop itself uses, so it never observes a torn update.
type Snapshot struct {
	Distribution bool             `json:"distribution"`
	ErrorCount   int              `json:"error_count"`
	Controllers  []ControllerInfo `json:"controllers"`
	Tasks        []TaskInfo       `json:"tasks"`
	TaskQueueLen int              `json:"task_queue_len"`
	ResultQueue  int              `json:"result_queue_len"`
}

// Snapshot builds a point-in-time read-only view for the admin surface.
func (m *Master) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{
		Distribution: m.distribution,
		ErrorCount:   m.errorCount,
	}
	for id, ts := range m.heartbeat {
		s.Controllers = append(s.Controllers, ControllerInfo{ID: id, LastSeen: ts})
	}
	for tid, rec := range m.status {
		s.Tasks = append(s.Tasks, TaskInfo{
			Tid:          tid,
			State:        rec.State.String(),
			ControllerID: rec.ControllerID,
			Timestamp:    rec.Timestamp,
		})
	}
	m.mu.Unlock()

	s.TaskQueueLen = m.taskQueue.Len()
	s.ResultQueue = m.resultQueue.Len()
	return s
}
