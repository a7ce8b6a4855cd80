package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/robertguss/sprintboard-go/internal/config"
	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/remote"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

// Server is the REST API server that owns sprint membership
type Server struct {
	config   config.ServerConfig
	storage  storage.Storage
	gatherer prometheus.Gatherer
	wsHub    *WebSocketHub
	log      zerolog.Logger

	mu      sync.Mutex
	server  *http.Server
	running bool
}

// NewServer creates a new API server. A nil gatherer disables /metrics.
func NewServer(cfg config.ServerConfig, store storage.Storage, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	log = log.With().Str("component", "api").Logger()

	wsHub := NewWebSocketHub()
	wsHub.SetLogger(log)
	wsHub.SetSecurityConfig(cfg.APIKey, cfg.CORSAllowedOrigins)

	return &Server{
		config:   cfg,
		storage:  store,
		gatherer: gatherer,
		wsHub:    wsHub,
		log:      log,
	}
}

// GetWebSocketHub returns the WebSocket hub
func (s *Server) GetWebSocketHub() *WebSocketHub {
	return s.wsHub
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves on the configured address until Stop is called
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	go s.wsHub.Run()

	s.log.Info().Str("addr", srv.Addr).Msg("api server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	s.wsHub.Stop()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.config.CORSAllowedOrigins))

	// Public
	r.Get("/health", s.healthHandler)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apiKeyAuthMiddleware(s.config.APIKey))

		// WebSocket endpoint, outside the request timeout
		r.Get("/ws", s.websocketHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			// Projects
			r.Get("/projects", s.listProjectsHandler)
			r.Get("/projects/{projectID}/board", s.getBoardHandler)

			// Sprint membership
			r.Get("/sprints/{sprintID}/status", s.getSprintStatusHandler)
			r.Put("/sprints/{sprintID}/status", s.setSprintStatusHandler)
			r.Post("/sprints/{sprintID}/items/{itemID}", s.addItemHandler)
			r.Delete("/sprints/{sprintID}/items/{itemID}", s.removeItemHandler)

			// Move history
			r.Get("/moves", s.listMovesHandler)
			r.Post("/moves", s.recordMoveHandler)
			r.Get("/moves/stats", s.moveStatsHandler)
		})
	})

	return r
}

// corsMiddleware creates CORS middleware with the given allowed origins
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	exactOrigins := make(map[string]bool)
	var patterns []string

	for _, origin := range allowedOrigins {
		if strings.Contains(origin, "*") {
			patterns = append(patterns, origin)
		} else {
			exactOrigins[origin] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if origin != "" {
				if exactOrigins[origin] {
					allowed = true
				} else {
					for _, pattern := range patterns {
						if matchOriginPattern(origin, pattern) {
							allowed = true
							break
						}
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// apiKeyAuthMiddleware creates middleware that validates the API key from
// the X-API-Key header or a bearer token. An empty key disables the check.
func apiKeyAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get("X-API-Key")
			if providedKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					providedKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			// browsers cannot set headers on websocket upgrades
			if providedKey == "" && r.URL.Path == "/api/ws" {
				providedKey = r.URL.Query().Get("api_key")
			}

			if providedKey != apiKey {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOriginPattern checks if an origin matches a pattern with wildcards
// e.g., "http://localhost:3000" matches "http://localhost:*"
func matchOriginPattern(origin, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(origin, prefix)
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*")
		parts := strings.SplitN(origin, "://", 2)
		if len(parts) == 2 {
			host := strings.Split(parts[1], "/")[0]
			host = strings.Split(host, ":")[0]
			return strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".")
		}
	}
	return false
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, remote.ErrorResponse{Error: message})
}

// respondStorageError maps storage sentinels to status codes and the error
// codes remote clients decode
func respondStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondJSON(w, http.StatusNotFound, remote.ErrorResponse{Error: err.Error(), Code: remote.CodeNotFound})
	case errors.Is(err, storage.ErrSprintClosed):
		respondJSON(w, http.StatusConflict, remote.ErrorResponse{Error: err.Error(), Code: remote.CodeSprintClosed})
	case errors.Is(err, storage.ErrItemNotInSprint):
		respondJSON(w, http.StatusConflict, remote.ErrorResponse{Error: err.Error(), Code: remote.CodeNotInContainer})
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Handlers

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"time":       time.Now().Format(time.RFC3339),
		"ws_clients": s.wsHub.ClientCount(),
	})
}

func (s *Server) listProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := s.storage.ListProjects(r.Context())
	if err != nil {
		respondStorageError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		out = append(out, map[string]any{
			"id":         p.ID,
			"name":       p.Name,
			"created_at": p.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"projects": out,
		"count":    len(out),
	})
}

func (s *Server) getBoardHandler(w http.ResponseWriter, r *http.Request) {
	board, err := s.storage.LoadBoard(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		respondStorageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

func (s *Server) getSprintStatusHandler(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	state, err := s.storage.SprintState(r.Context(), sprintID)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, remote.StatusResponse{SprintID: sprintID, LifecycleState: state})
}

func (s *Server) setSprintStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State domain.LifecycleState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.State.IsValid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid state %q", req.State))
		return
	}

	sprintID := chi.URLParam(r, "sprintID")
	m, err := s.storage.SetSprintState(r.Context(), sprintID, req.State)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	s.broadcastMutation(m)

	respondJSON(w, http.StatusOK, remote.StatusResponse{SprintID: sprintID, LifecycleState: req.State})
}

func (s *Server) addItemHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	m, err := s.storage.AddItemToSprint(r.Context(), chi.URLParam(r, "sprintID"), chi.URLParam(r, "itemID"), status)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	s.broadcastMutation(m)

	respondJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) removeItemHandler(w http.ResponseWriter, r *http.Request) {
	keepStatus := false
	if v := r.URL.Query().Get("keep_status"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid keep_status")
			return
		}
		keepStatus = b
	}

	m, err := s.storage.RemoveItemFromSprint(r.Context(), chi.URLParam(r, "sprintID"), chi.URLParam(r, "itemID"), keepStatus)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	s.broadcastMutation(m)

	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) listMovesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	filter := &storage.MoveFilter{
		ProjectID: q.Get("project"),
		ItemID:    q.Get("item"),
		Outcome:   domain.OutcomeKind(q.Get("outcome")),
		Limit:     limit,
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	records, err := s.storage.ListMoveRecords(r.Context(), filter)
	if err != nil {
		respondStorageError(w, err)
		return
	}

	moves := make([]remote.MoveRecord, 0, len(records))
	for _, rec := range records {
		moves = append(moves, remote.NewMoveRecord(rec))
	}

	total, _ := s.storage.CountMoveRecords(r.Context(), filter)

	respondJSON(w, http.StatusOK, map[string]any{
		"moves": moves,
		"count": len(moves),
		"total": total,
	})
}

func (s *Server) recordMoveHandler(w http.ResponseWriter, r *http.Request) {
	var req remote.MoveRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MoveID == "" || req.ProjectID == "" || req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "move_id, project_id and item_id are required")
		return
	}
	switch req.Outcome {
	case domain.OutcomeApplied, domain.OutcomeRolledBack, domain.OutcomeRejected:
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid outcome %q", req.Outcome))
		return
	}

	rec := req.Storage()
	if err := s.storage.SaveMoveRecord(r.Context(), rec); err != nil {
		respondStorageError(w, err)
		return
	}

	saved := remote.NewMoveRecord(rec)
	s.BroadcastMessage(rec.ProjectID, remote.EventMoveRecorded, saved)
	respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) moveStatsHandler(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project")
	if projectID == "" {
		respondError(w, http.StatusBadRequest, "project is required")
		return
	}

	stats, err := s.storage.GetMoveStats(r.Context(), projectID)
	if err != nil {
		respondStorageError(w, err)
		return
	}

	recent := make([]remote.MoveRecord, 0, len(stats.Recent))
	for _, rec := range stats.Recent {
		recent = append(recent, remote.NewMoveRecord(rec))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total":        stats.Total,
		"applied":      stats.Applied,
		"rolled_back":  stats.RolledBack,
		"rejected":     stats.Rejected,
		"success_rate": stats.SuccessRate,
		"avg_duration": stats.AvgDuration.Seconds(),
		"by_reason":    stats.ByReason,
		"recent":       recent,
	})
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	s.wsHub.ServeWs(w, r)
}

// broadcastMutation announces a container change to feed subscribers
func (s *Server) broadcastMutation(m *storage.Mutation) {
	if m == nil {
		return
	}
	s.log.Debug().
		Str("project", m.ProjectID).
		Str("sprint", m.SprintID).
		Str("item", m.ItemID).
		Str("op", m.Op).
		Msg("container changed")

	s.BroadcastMessage(m.ProjectID, remote.EventContainerChanged, remote.ChangeEvent{
		ProjectID: m.ProjectID,
		SprintID:  m.SprintID,
		ItemID:    m.ItemID,
		Op:        m.Op,
	})
}

// BroadcastMessage sends a message to the clients subscribed to project.
// An empty project reaches every client.
func (s *Server) BroadcastMessage(project, msgType string, data any) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
		Project:   project,
	})
}
