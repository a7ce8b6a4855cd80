package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	apiKey string
}

type requestLog struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.reqs...)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.mu.Lock()
		log.reqs = append(log.reqs, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			apiKey: r.Header.Get("X-API-Key"),
		})
		log.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", "secret", time.Second), log
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPClient_GetContainerStatus(t *testing.T) {
	c, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{SprintID: "S1", LifecycleState: domain.SprintActive})
	})

	state, err := c.GetContainerStatus(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, domain.SprintActive, state)
	reqs := got.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/sprints/S1/status", reqs[0].path)
	assert.Equal(t, "secret", reqs[0].apiKey)
}

func TestHTTPClient_Mutations(t *testing.T) {
	c, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	require.NoError(t, c.AddItemToContainer(ctx, "S1", "I1", ""))
	require.NoError(t, c.RemoveItemFromContainer(ctx, "S1", "I1", true))
	require.NoError(t, c.RemoveItemFromContainer(ctx, "S2", "I2", false))
	require.NoError(t, c.AddItemToContainer(ctx, "S2", "I2", "in progress"))

	reqs := got.all()
	require.Len(t, reqs, 4)
	assert.Equal(t, recordedRequest{method: http.MethodPost, path: "/api/sprints/S1/items/I1", apiKey: "secret"}, reqs[0])
	assert.Equal(t, "keep_status=true", reqs[1].query)
	assert.Equal(t, http.MethodDelete, reqs[1].method)
	assert.Empty(t, reqs[2].query)
	assert.Equal(t, "status=in+progress", reqs[3].query)
}

func TestHTTPClient_RefetchContainers(t *testing.T) {
	board := domain.BoardState{
		ProjectID: "p1",
		Backlog:   domain.Backlog{Items: []domain.WorkItem{{ID: "I1", DisplayStatus: domain.StatusBacklog}}},
		Sprints:   []domain.Sprint{{ID: "S1", Name: "One", State: domain.SprintPlanning, Items: []domain.WorkItem{}}},
	}
	c, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, board)
	})

	fetched, err := c.RefetchContainers(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, board.Equal(fetched))
	assert.Equal(t, "/api/projects/p1/board", got.all()[0].path)
}

func TestHTTPClient_SaveMoveRecord(t *testing.T) {
	bodies := make(chan MoveRecord, 1)
	c, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body MoveRecord
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.WriteHeader(http.StatusCreated)
	})

	err := c.SaveMoveRecord(context.Background(), &storage.MoveRecord{
		MoveID:    "m1",
		ProjectID: "p1",
		ItemID:    "I1",
		From:      "backlog",
		To:        "sprint:S1",
		Outcome:   domain.OutcomeApplied,
		Duration:  1500 * time.Millisecond,
	})
	require.NoError(t, err)

	reqs := got.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "/api/moves", reqs[0].path)
	body := <-bodies
	assert.Equal(t, "m1", body.MoveID)
	assert.Equal(t, int64(1500), body.DurationMS)
	assert.Equal(t, 1500*time.Millisecond, body.Storage().Duration)
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     any
		sentinel error
	}{
		{
			name:     "sprint closed",
			status:   http.StatusConflict,
			body:     ErrorResponse{Error: "sprint S3 is completed", Code: CodeSprintClosed},
			sentinel: ErrClosed,
		},
		{
			name:     "not found by code",
			status:   http.StatusNotFound,
			body:     ErrorResponse{Error: "sprint S9", Code: CodeNotFound},
			sentinel: ErrNotFound,
		},
		{
			name:     "not found by status",
			status:   http.StatusNotFound,
			body:     "missing",
			sentinel: ErrNotFound,
		},
		{
			name:     "not in container",
			status:   http.StatusConflict,
			body:     ErrorResponse{Error: "item I2", Code: CodeNotInContainer},
			sentinel: ErrNotInContainer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			err := c.AddItemToContainer(context.Background(), "S1", "I1", "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var remoteErr *Error
			require.ErrorAs(t, err, &remoteErr)
			assert.Equal(t, OpAddItem, remoteErr.Op)
			assert.Equal(t, tt.status, remoteErr.StatusCode)
		})
	}

	t.Run("server error", func(t *testing.T) {
		c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "database is locked"})
		})
		err := c.RemoveItemFromContainer(context.Background(), "S1", "I1", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is locked")
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("transport failure", func(t *testing.T) {
		c := NewHTTPClient("http://127.0.0.1:1", "", 200*time.Millisecond)
		_, err := c.GetContainerStatus(context.Background(), "S1")
		var remoteErr *Error
		require.ErrorAs(t, err, &remoteErr)
		assert.Zero(t, remoteErr.StatusCode)
		assert.Equal(t, OpGetStatus, remoteErr.Op)
	})
}

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/api/ws", WebSocketURL("http://localhost:8080/"))
	assert.Equal(t, "wss://board.example.com/api/ws", WebSocketURL("https://board.example.com"))
}
