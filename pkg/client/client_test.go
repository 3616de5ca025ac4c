package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Status{
			Distribution: true, ErrorCount: 0, TaskQueueLen: 3,
			ResultQueueLen: 1, ControllerCount: 2, TaskCount: 5,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Distribution)
	assert.Equal(t, 3, status.TaskQueueLen)
	assert.Equal(t, 2, status.ControllerCount)
}

func TestClient_Health_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Health(context.Background())
	assert.Error(t, err)
}

func TestClient_Health_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Health(context.Background())
	assert.Error(t, err)
}

func TestClient_Controllers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]ControllerInfo{
			{ID: "ctrl-a", LastSeen: 100},
			{ID: "ctrl-b", LastSeen: 200},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	list, err := c.Controllers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ctrl-a", list[0].ID)
}

func TestClient_WithAPIKey_SetsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]TaskInfo{})
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("secret-token"))
	_, err := c.Tasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}
