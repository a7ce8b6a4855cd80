package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

const (
	feedMinBackoff = 500 * time.Millisecond
	feedMaxBackoff = 30 * time.Second
)

type feedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Feed subscribes to the server's change events for one project
type Feed struct {
	url       string
	apiKey    string
	projectID string
	onChange  func(ChangeEvent)
	log       zerolog.Logger
}

// NewFeed creates a feed against the server at baseURL. onChange is called
// from the feed goroutine for every change to projectID.
func NewFeed(baseURL, apiKey, projectID string, onChange func(ChangeEvent), log zerolog.Logger) *Feed {
	return &Feed{
		url:       WebSocketURL(baseURL),
		apiKey:    apiKey,
		projectID: projectID,
		onChange:  onChange,
		log:       log.With().Str("component", "feed").Logger(),
	}
}

// WebSocketURL derives the websocket endpoint from an http(s) base URL
func WebSocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/ws"
}

// Run keeps a connection open until ctx is done, reconnecting with backoff
func (f *Feed) Run(ctx context.Context) error {
	backoff := feedMinBackoff
	for {
		connected, err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = feedMinBackoff
		}
		f.log.Warn().Err(err).Dur("retry_in", backoff).Msg("change feed disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, feedMaxBackoff)
	}
}

// session runs one connection; it reports whether the dial succeeded
func (f *Feed) session(ctx context.Context) (bool, error) {
	header := http.Header{}
	if f.apiKey != "" {
		header.Set("X-API-Key", f.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, f.url+"?project="+url.QueryEscape(f.projectID), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()

	f.log.Debug().Str("url", f.url).Msg("change feed connected")

	for {
		var msg feedMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return true, errors.New("server closed the connection")
			}
			return true, err
		}
		if msg.Type != EventContainerChanged {
			continue
		}

		var ev ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			f.log.Debug().Err(err).Msg("skipping malformed change event")
			continue
		}
		if ev.ProjectID != "" && ev.ProjectID != f.projectID {
			continue
		}
		f.onChange(ev)
	}
}
