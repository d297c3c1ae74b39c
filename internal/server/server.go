package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trendscribe/internal/metrics"
	"trendscribe/internal/ratelimit"
	"trendscribe/internal/usertoken"
	"trendscribe/internal/util"
	"trendscribe/pkg/chat"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/pipeline"
	"trendscribe/pkg/trends"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	Pipeline           *pipeline.Pipeline
	Selector           *trends.Selector
	Related            *trends.RelatedFinder
	// Chat is optional. Without it the /api/chat routes are not mounted.
	Chat               *chat.Service
	TokenVerifier      *usertoken.Verifier
	GenerateLimiter    ratelimit.Limiter
	TrendsLimiter      ratelimit.Limiter
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
	Metrics            *metrics.Metrics
	// Health reports backend readiness for /healthz. Nil means always ready.
	Health func(ctx context.Context) error
}

// Server exposes the content and trend HTTP API.
type Server struct {
	pipeline        *pipeline.Pipeline
	selector        *trends.Selector
	related         *trends.RelatedFinder
	chat            *chat.Service
	tokenVerifier   *usertoken.Verifier
	generateLimiter ratelimit.Limiter
	trendsLimiter   ratelimit.Limiter
	trustedProxies  *util.TrustedProxies
	corsOrigins     []string
	metrics         *metrics.Metrics
	health          func(ctx context.Context) error
	mux             *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server: token verifier is required")
	}
	s := &Server{
		pipeline:        cfg.Pipeline,
		selector:        cfg.Selector,
		related:         cfg.Related,
		chat:            cfg.Chat,
		tokenVerifier:   cfg.TokenVerifier,
		generateLimiter: cfg.GenerateLimiter,
		trendsLimiter:   cfg.TrendsLimiter,
		trustedProxies:  cfg.TrustedProxies,
		corsOrigins:     cfg.CORSAllowedOrigins,
		metrics:         cfg.Metrics,
		health:          cfg.Health,
		mux:             http.NewServeMux(),
	}
	if s.selector == nil {
		s.selector = trends.NewSelector(nil)
	}
	if s.related == nil {
		s.related = trends.NewRelatedFinder(nil)
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("trendscribe", util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())

	// content
	s.mux.Handle("/api/content/draft", s.withUser(s.withQuota(s.handleGenerate(domain.ProjectDraft))))
	s.mux.Handle("/api/content/modify", s.withUser(s.withQuota(s.handleGenerate(domain.ProjectModify))))
	s.mux.Handle("/api/content/image-prompt", s.withUser(s.withQuota(s.handleGenerate(domain.ProjectImagePrompt))))
	s.mux.Handle("/api/content/projects", s.withUser(s.handleProjects))
	s.mux.Handle("/api/content/projects/", s.withUser(s.handleProjectByID))
	s.mux.Handle("/api/content/stats", s.withUser(s.handleStats))
	s.mux.HandleFunc("/api/content/tones", s.handleTones)

	// chat
	if s.chat != nil {
		s.mux.Handle("/api/chat", s.withUser(s.withQuota(s.handleChat)))
		s.mux.Handle("/api/chat/conversations", s.withUser(s.handleConversations))
		s.mux.Handle("/api/chat/conversations/", s.withUser(s.handleConversationByID))
	}

	// trends
	s.mux.HandleFunc("/api/trends/now", s.handleTrendsNow)
	s.mux.HandleFunc("/api/trends/related", s.handleTrendsRelated)
	s.mux.HandleFunc("/api/trends/categories", s.handleCategories)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			util.LoggerFromContext(r.Context()).Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := usertoken.BearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Debug("token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		logger := util.LoggerFromContext(r.Context()).With("user_id", userID)
		next(w, r.WithContext(util.ContextWithLogger(r.Context(), logger)), userID)
	})
}

func (s *Server) withQuota(next userHandler) userHandler {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		if r.Method == http.MethodPost && !s.allowRate(w, r, s.generateLimiter, "generate", "user:"+userID) {
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, route, key string) bool {
	if limiter == nil {
		return true
	}
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	s.metrics.ObserveRateLimited(route)
	if decision.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
	}
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func (s *Server) handleGenerate(projectType domain.ProjectType) userHandler {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req pipeline.Request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Type = projectType
		project, err := s.pipeline.Run(r.Context(), userID, req)
		if err != nil {
			var storageErr *pipeline.StorageError
			if !errors.As(err, &storageErr) || project.Status != domain.StatusCompleted {
				writePipelineError(w, r, err)
				return
			}
			// Only the usage counters failed; the project itself is stored.
			util.LoggerFromContext(r.Context()).Error("project completed without stats update",
				"project_id", project.ID, "op", storageErr.Op, "err", storageErr.Err)
		}
		writeJSON(w, http.StatusCreated, project)
	}
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := s.pipeline.List(r.Context(), userID, limit)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// /api/content/projects/{id} or /api/content/projects/{id}/export
func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/content/projects/"), "/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" || len(parts) > 2 {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "export" {
			notFound(w, "not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		res, err := s.pipeline.Export(r.Context(), userID, id, r.URL.Query().Get("format"))
		if err != nil {
			writePipelineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	switch r.Method {
	case http.MethodGet:
		project, err := s.pipeline.Get(r.Context(), userID, id)
		if err != nil {
			writePipelineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodDelete:
		if err := s.pipeline.Delete(r.Context(), userID, id); err != nil {
			writePipelineError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.pipeline.Stats(r.Context(), userID)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tones": pipeline.Tones()})
}

type trendsResponse struct {
	Category string           `json:"category"`
	Location string           `json:"location"`
	Source   string           `json:"source"`
	Keywords []domain.Keyword `json:"keywords"`
}

func (s *Server) handleTrendsNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.trendsLimiter, "trends", "ip:"+util.ClientIP(r, s.trustedProxies)) {
		return
	}
	q := r.URL.Query()
	query := trends.Query{
		Category: strings.TrimSpace(q.Get("category")),
		Location: strings.TrimSpace(q.Get("location")),
		Language: strings.TrimSpace(q.Get("language")),
	}
	if v := strings.TrimSpace(q.Get("hours")); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 0 {
			writeError(w, http.StatusBadRequest, "hours must be a non-negative integer")
			return
		}
		query.WindowHours = hours
	}
	sel := s.selector.Select(r.Context(), query)
	s.metrics.ObserveKeywordSource(string(sel.Source))
	if sel.Err != nil {
		s.metrics.ObserveTrendError(string(trends.KindOf(sel.Err)))
	}
	keywords := sel.Keywords
	if keywords == nil {
		keywords = []domain.Keyword{}
	}
	writeJSON(w, http.StatusOK, trendsResponse{
		Category: query.Category,
		Location: query.Location,
		Source:   string(sel.Source),
		Keywords: keywords,
	})
}

type relatedResponse struct {
	Category string                `json:"category"`
	Location string                `json:"location"`
	Keyword  string                `json:"keyword"`
	Source   string                `json:"source"`
	Topics   []domain.RelatedTopic `json:"topics"`
}

func (s *Server) handleTrendsRelated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.trendsLimiter, "trends", "ip:"+util.ClientIP(r, s.trustedProxies)) {
		return
	}
	q := r.URL.Query()
	category := strings.TrimSpace(q.Get("category"))
	location := strings.TrimSpace(q.Get("location"))
	res := s.related.Find(r.Context(), category, location)
	if res.Err != nil {
		s.metrics.ObserveTrendError(string(trends.KindOf(res.Err)))
	}
	writeJSON(w, http.StatusOK, relatedResponse{
		Category: category,
		Location: location,
		Keyword:  res.Keyword,
		Source:   string(res.Source),
		Topics:   res.Topics,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": trends.Categories()})
}

// parseLimit reads the optional limit query parameter. It writes the 400
// itself and reports false on a bad value.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var storageErr *pipeline.StorageError
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNotFound):
		notFound(w, "project not found")
	case errors.Is(err, pipeline.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrExportDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &storageErr):
		util.LoggerFromContext(r.Context()).Error("storage failure", "op", storageErr.Op, "err", storageErr.Err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_INPUT"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "PROJECT_NOT_READY"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case http.StatusBadGateway:
		return "GENERATION_FAILED"
	default:
		return "SYSTEM_INTERNAL_ERROR"
	}
}
