package panda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/driver"
)

func TestSubmitTaskReturnsWorkloadID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tasks", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"jediTaskID": 12345})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	id, err := c.SubmitTask(context.Background(), driver.TaskParam{"nFiles": 5})
	require.NoError(t, err)
	require.Equal(t, "12345", id)
}

func TestDoRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "running"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	status, err := c.GetTaskStatus(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "running", status)
	require.GreaterOrEqual(t, attempts, 2)
}

func TestKillTaskSurfacesDriverFailureOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	err := c.KillTask(context.Background(), "missing")
	require.Error(t, err)
}
