package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/liamcoop/algoshield/catalog"
	"github.com/liamcoop/algoshield/internal/logger"
	"github.com/liamcoop/algoshield/internal/metrics"
	"github.com/liamcoop/algoshield/rules"
	"github.com/liamcoop/algoshield/sessions"
)

const maxBodyBytes = 1 << 20

// Server serves the catalog and session API
type Server struct {
	catalog  *catalog.Catalog
	sessions *sessions.Manager
	metrics  *metrics.Collector
	db       *sql.DB
	started  time.Time
	router   *chi.Mux
}

// NewServer wires the HTTP API. db may be nil when the catalog is not backed
// by Postgres.
func NewServer(cat *catalog.Catalog, mgr *sessions.Manager, collector *metrics.Collector, db *sql.DB) *Server {
	s := &Server{
		catalog:  cat,
		sessions: mgr,
		metrics:  collector,
		db:       db,
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Post("/reload", s.handleReloadCatalog)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListCatalogRules)
			r.Post("/", s.handleCreateCatalogRule)
			r.Get("/{ruleId}", s.handleGetCatalogRule)
			r.Put("/{ruleId}", s.handleUpdateCatalogRule)
			r.Delete("/{ruleId}", s.handleDeleteCatalogRule)
		})
	})

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)

		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/rules", s.handleAddSessionRule)
			r.Get("/rules", s.handleListSessionRules)
			r.Post("/evaluate", s.handleEvaluate)
			r.Get("/narration", s.handleNarration)
			r.Get("/activity", s.handleActivity)
			r.Post("/reload", s.handleReloadSession)
			r.Post("/pause", s.handleSetPaused(true))
			r.Post("/resume", s.handleSetPaused(false))
		})
	})

	s.router = r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger writes one structured record per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logger.Logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unhealthy",
				Error:  err.Error(),
			})
			return
		}
	}

	entries, err := s.catalog.List()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "catalog unavailable", err)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		CatalogRules:   len(entries),
		ActiveSessions: s.sessions.Len(),
		Counters:       logger.Snapshot(),
	})
}

// Catalog handlers

func (s *Server) handleListCatalogRules(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.List()
	if err != nil {
		respondStoreError(w, "failed to list rules", err)
		return
	}

	codec := responseCodec(r)
	data, err := codec.EncodeRules(catalog.EntryRules(entries))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rules", err)
		return
	}
	respondEncoded(w, http.StatusOK, codec, data)
}

func (s *Server) handleCreateCatalogRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := decodeRule(w, r)
	if !ok {
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	entry, err := s.catalog.Add(rule)
	if err != nil {
		respondStoreError(w, "failed to add rule", err)
		return
	}
	s.respondEntry(w, r, http.StatusCreated, entry)
}

func (s *Server) handleGetCatalogRule(w http.ResponseWriter, r *http.Request) {
	entry, err := s.catalog.Get(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondStoreError(w, "rule not found", err)
		return
	}
	s.respondEntry(w, r, http.StatusOK, entry)
}

func (s *Server) handleUpdateCatalogRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	rule, ok := decodeRule(w, r)
	if !ok {
		return
	}
	if rule.ID == "" {
		rule.ID = ruleID
	}
	if rule.ID != ruleID {
		respondError(w, http.StatusBadRequest, "rule id does not match the URL", nil)
		return
	}

	entry, err := s.catalog.Update(rule)
	if err != nil {
		respondStoreError(w, "failed to update rule", err)
		return
	}
	s.respondEntry(w, r, http.StatusOK, entry)
}

func (s *Server) handleDeleteCatalogRule(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(chi.URLParam(r, "ruleId")); err != nil {
		respondStoreError(w, "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	err := s.catalog.Reload()
	s.metrics.CatalogReloaded(err)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "failed to reload catalog", err)
		return
	}

	entries, err := s.catalog.List()
	if err != nil {
		respondStoreError(w, "failed to list rules", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"rules":  len(entries),
	})
}

func (s *Server) respondEntry(w http.ResponseWriter, r *http.Request, status int, entry catalog.Entry) {
	codec := responseCodec(r)
	data, err := codec.EncodeRule(entry.Rule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rule", err)
		return
	}
	w.Header().Set("Last-Modified", entry.UpdatedAt.UTC().Format(http.TimeFormat))
	respondEncoded(w, status, codec, data)
}

// Session handlers

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.List()
	respondJSON(w, http.StatusOK, SessionsListResponse{Sessions: toSessionResponses(infos)})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Create()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session", err)
		return
	}
	respondJSON(w, http.StatusCreated, toSessionResponse(info))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondStoreError(w, "session not found", err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(info))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "sessionId")); err != nil {
		respondStoreError(w, "session not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddSessionRule(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	rule, err := s.sessions.AddRule(chi.URLParam(r, "sessionId"), body, requestCodec(r))
	if err != nil {
		respondStoreError(w, "failed to add rule", err)
		return
	}

	codec := responseCodec(r)
	data, err := codec.EncodeRule(rule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rule", err)
		return
	}
	respondEncoded(w, http.StatusCreated, codec, data)
}

func (s *Server) handleListSessionRules(w http.ResponseWriter, r *http.Request) {
	rs, err := s.sessions.Rules(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondStoreError(w, "session not found", err)
		return
	}

	codec := responseCodec(r)
	data, err := codec.EncodeRules(rs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rules", err)
		return
	}
	respondEncoded(w, http.StatusOK, codec, data)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	actions, err := s.sessions.EvaluateEncoded(chi.URLParam(r, "sessionId"), body, requestCodec(r))
	if err != nil {
		respondStoreError(w, "failed to evaluate context", err)
		return
	}

	codec := responseCodec(r)
	data, err := codec.EncodeActions(actions)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode actions", err)
		return
	}
	respondEncoded(w, http.StatusOK, codec, data)
}

func (s *Server) handleNarration(w http.ResponseWriter, r *http.Request) {
	text, err := s.sessions.Narrate(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondStoreError(w, "session not found", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, text)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.sessions.Activity(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondStoreError(w, "session not found", err)
		return
	}
	respondJSON(w, http.StatusOK, ActivityResponse{Entries: entries})
}

func (s *Server) handleReloadSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Reload(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondStoreError(w, "failed to reload session", err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(info))
}

func (s *Server) handleSetPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.sessions.SetPaused(chi.URLParam(r, "sessionId"), paused)
		if err != nil {
			respondStoreError(w, "session not found", err)
			return
		}
		respondJSON(w, http.StatusOK, toSessionResponse(info))
	}
}

// Helper functions

// requestCodec picks the body codec from Content-Type.
func requestCodec(r *http.Request) rules.Codec {
	return rules.CodecForContentType(r.Header.Get("Content-Type"))
}

// responseCodec honours a YAML Accept header and otherwise answers in the
// request's codec.
func responseCodec(r *http.Request) rules.Codec {
	if accept := r.Header.Get("Accept"); accept != "" {
		if c := rules.CodecForContentType(accept); c.Name() == "yaml" {
			return c
		}
	}
	return requestCodec(r)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return nil, false
	}
	return body, true
}

func decodeRule(w http.ResponseWriter, r *http.Request) (rules.Rule, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return rules.Rule{}, false
	}
	rule, err := requestCodec(r).DecodeRule(body)
	if err != nil {
		respondStoreError(w, "invalid rule", err)
		return rules.Rule{}, false
	}
	return rule, true
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var parseErr *rules.ParseError
	switch {
	case errors.As(err, &parseErr), errors.Is(err, catalog.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, sessions.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrReadOnly):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

func respondStoreError(w http.ResponseWriter, message string, err error) {
	var parseErr *rules.ParseError
	if errors.As(err, &parseErr) {
		logger.ParseFailure()
	}
	respondError(w, errorStatus(err), message, err)
}

func respondEncoded(w http.ResponseWriter, status int, codec rules.Codec, data []byte) {
	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(status)
	w.Write(data)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	logger.HTTPStatus(status)
	if status >= 500 {
		logger.Error(message, "status", status, "error", err)
	}

	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

func toSessionResponse(info sessions.Info) SessionResponse {
	return SessionResponse{
		ID:         info.ID,
		CreatedAt:  info.CreatedAt,
		LastSeen:   info.LastSeen,
		Rules:      info.Rules,
		LocalRules: info.LocalRules,
		Activity:   info.Activity,
		Paused:     info.Paused,
	}
}

func toSessionResponses(infos []sessions.Info) []SessionResponse {
	out := make([]SessionResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toSessionResponse(info))
	}
	return out
}
