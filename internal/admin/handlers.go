package admin

import (
	"encoding/json"
	"net/http"

	"github.com/gabrieleiannetti/cyclone/internal/master"
)

// Introspector is the read-only view of the dispatch loop the admin
// surface renders. *master.Master satisfies it; tests can supply a fake.
type Introspector interface {
	Snapshot() master.Snapshot
}

type handlers struct {
	m Introspector
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) controllers(w http.ResponseWriter, r *http.Request) {
	s := h.m.Snapshot()
	writeJSON(w, http.StatusOK, s.Controllers)
}

func (h *handlers) tasks(w http.ResponseWriter, r *http.Request) {
	s := h.m.Snapshot()
	writeJSON(w, http.StatusOK, s.Tasks)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	s := h.m.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"distribution":     s.Distribution,
		"error_count":      s.ErrorCount,
		"task_queue_len":   s.TaskQueueLen,
		"result_queue_len": s.ResultQueue,
		"controller_count": len(s.Controllers),
		"task_count":       len(s.Tasks),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
