package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_DeliversProjectChanges(t *testing.T) {
	keys := make(chan string, 8)
	projects := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case keys <- r.Header.Get("X-API-Key"):
			projects <- r.URL.Query().Get("project")
		default:
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, map[string]any{"type": "pong"})
		_ = wsjson.Write(ctx, conn, map[string]any{"type": EventContainerChanged, "data": ChangeEvent{ProjectID: "other", Op: "item_added"}})
		_ = wsjson.Write(ctx, conn, map[string]any{"type": EventContainerChanged, "data": ChangeEvent{ProjectID: "p1", SprintID: "S1", ItemID: "I1", Op: "item_added"}})
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	events := make(chan ChangeEvent, 4)
	feed := NewFeed(srv.URL, "secret", "p1", func(ev ChangeEvent) { events <- ev }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	select {
	case ev := <-events:
		assert.Equal(t, ChangeEvent{ProjectID: "p1", SprintID: "S1", ItemID: "I1", Op: "item_added"}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event received")
	}
	assert.Equal(t, "secret", <-keys)
	assert.Equal(t, "p1", <-projects)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
	assert.Empty(t, events)
}
