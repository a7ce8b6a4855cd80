package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsClientBuffer = 64
	wsEventBuffer  = 256
)

// WebSocketMessage is one event pushed to subscribers. Project scopes the
// event; an empty Project reaches every client.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Project   string    `json:"-"`
}

// subscriber is one connected websocket. An empty project subscribes to
// every project.
type subscriber struct {
	conn    *websocket.Conn
	project string
	out     chan WebSocketMessage
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) wants(msg WebSocketMessage) bool {
	return msg.Project == "" || s.project == "" || s.project == msg.Project
}

// offer queues msg without blocking. It reports false when the buffer is
// full.
func (s *subscriber) offer(msg WebSocketMessage) bool {
	select {
	case s.out <- msg:
		return true
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscriber) shutdown(code websocket.StatusCode, reason string) {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(code, reason)
	})
}

func (s *subscriber) writeLoop(log zerolog.Logger) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return

		case msg := <-s.out:
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
			err := wsjson.Write(ctx, s.conn, msg)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				s.shutdown(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ping.C:
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				s.shutdown(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

// readLoop answers client pings until the connection ends
func (s *subscriber) readLoop(log zerolog.Logger) {
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := wsjson.Read(context.Background(), s.conn, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if msg.Type == "ping" {
			s.offer(WebSocketMessage{Type: "pong", Timestamp: time.Now()})
		}
	}
}

// WebSocketHub fans container and history events out to subscribers
type WebSocketHub struct {
	events   chan WebSocketMessage
	stop     chan struct{}
	stopOnce sync.Once
	log      zerolog.Logger

	mu             sync.RWMutex
	subs           map[*subscriber]struct{}
	apiKey         string
	allowedOrigins []string
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		events: make(chan WebSocketMessage, wsEventBuffer),
		stop:   make(chan struct{}),
		subs:   make(map[*subscriber]struct{}),
		log:    zerolog.Nop(),
	}
}

// SetLogger sets the hub's logger
func (h *WebSocketHub) SetLogger(log zerolog.Logger) {
	h.log = log.With().Str("component", "ws").Logger()
}

// SetSecurityConfig sets the API key required to connect and the origins
// browsers may connect from
func (h *WebSocketHub) SetSecurityConfig(apiKey string, allowedOrigins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.apiKey = apiKey
	h.allowedOrigins = allowedOrigins
}

// Run delivers queued events until Stop is called
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			subs := h.subs
			h.subs = make(map[*subscriber]struct{})
			h.mu.Unlock()
			for s := range subs {
				s.shutdown(websocket.StatusGoingAway, "server stopping")
			}
			return

		case msg := <-h.events:
			h.fanout(msg)
		}
	}
}

func (h *WebSocketHub) fanout(msg WebSocketMessage) {
	var slow []*subscriber

	h.mu.RLock()
	for s := range h.subs {
		if s.wants(msg) && !s.offer(msg) {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn().Str("project", s.project).Msg("dropping slow websocket subscriber")
		h.remove(s)
		s.shutdown(websocket.StatusPolicyViolation, "too slow")
	}
}

// Stop disconnects all subscribers and ends Run
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *WebSocketHub) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// Broadcast queues msg for delivery. Messages are dropped once the hub has
// stopped or its queue is full.
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	if h.stopped() {
		return
	}
	select {
	case h.events <- msg:
	default:
		h.log.Warn().Str("type", msg.Type).Msg("event queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *WebSocketHub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped() {
		return false
	}
	h.subs[s] = struct{}{}
	return true
}

func (h *WebSocketHub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// ServeWs upgrades the request and streams events until the client
// leaves. The project query parameter narrows the subscription.
func (h *WebSocketHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	apiKey := h.apiKey
	patterns := originPatterns(h.allowedOrigins)
	h.mu.RUnlock()

	if apiKey != "" && requestAPIKey(r) != apiKey {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: patterns,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	s := &subscriber{
		conn:    conn,
		project: r.URL.Query().Get("project"),
		out:     make(chan WebSocketMessage, wsClientBuffer),
		done:    make(chan struct{}),
	}
	if !h.add(s) {
		conn.Close(websocket.StatusGoingAway, "server stopping")
		return
	}
	h.log.Debug().Str("project", s.project).Msg("websocket subscribed")

	go s.writeLoop(h.log)
	s.readLoop(h.log)

	h.remove(s)
	s.shutdown(websocket.StatusNormalClosure, "closing")
}

// requestAPIKey reads the key from the header, a bearer token or the
// api_key query parameter browsers use
func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("api_key")
}

// originPatterns converts CORS origins into host patterns for websocket.Accept
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if _, host, ok := strings.Cut(origin, "://"); ok {
			origin = host
		}
		patterns = append(patterns, origin)
	}
	return patterns
}
