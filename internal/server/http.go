package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/skypro1111/voice-analyzer/internal/analysis"
	"github.com/skypro1111/voice-analyzer/internal/audio"
	"github.com/skypro1111/voice-analyzer/internal/config"
	"github.com/skypro1111/voice-analyzer/internal/decoder"
	"github.com/skypro1111/voice-analyzer/internal/metrics"
	"github.com/skypro1111/voice-analyzer/internal/prompt"
	"github.com/skypro1111/voice-analyzer/internal/session"
)

const (
	serviceName    = "voice-analyzer"
	serviceVersion = "1.0.0"
)

// StatsSource reports analysis client statistics
type StatsSource interface {
	GetStats() analysis.ClientStats
}

// HTTPServer provides the session API plus monitoring endpoints
type HTTPServer struct {
	server    *http.Server
	router    chi.Router
	logger    zerolog.Logger
	config    config.HTTPConfig
	sessions  *session.Manager
	pipeline  *session.Pipeline
	stats     StatsSource
	metrics   *metrics.Metrics
	startTime time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewHTTPServer creates a new HTTP API server. stats and m may be nil.
func NewHTTPServer(cfg config.HTTPConfig, logger zerolog.Logger, sessions *session.Manager,
	pipeline *session.Pipeline, stats StatsSource, m *metrics.Metrics) *HTTPServer {

	seed := uint64(time.Now().UnixNano())
	h := &HTTPServer{
		logger:    logger.With().Str("component", "http").Logger(),
		config:    cfg,
		sessions:  sessions,
		pipeline:  pipeline,
		stats:     stats,
		metrics:   m,
		startTime: time.Now(),
		rng:       rand.New(rand.NewPCG(seed, seed>>1)),
	}

	h.router = h.setupRoutes()

	h.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h.router,
		ReadTimeout:  cfg.GetReadTimeoutDuration(),
		WriteTimeout: cfg.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the router serving every endpoint
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", h.withMetrics("/", h.handleRoot))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))
	r.Get("/prompt", h.withMetrics("/prompt", h.handlePrompt))

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.withMetrics("/sessions", h.handleListSessions))
		r.Post("/", h.withMetrics("/sessions", h.handleCreateSession))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.withMetrics("/sessions/{id}", h.handleGetSession))
			r.Delete("/", h.withMetrics("/sessions/{id}", h.handleDeleteSession))
			r.Put("/recording", h.withMetrics("/sessions/{id}/recording", h.handleUploadRecording))
			r.Get("/recording.wav", h.withMetrics("/sessions/{id}/recording.wav", h.handleDownloadWAV))
			r.Post("/analysis", h.withMetrics("/sessions/{id}/analysis", h.handleAnalyze))
		})
	})

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info().Str("address", h.server.Addr).Msg("Starting HTTP API server")

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info().Msg("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]string{
			"GET /":                            "API documentation",
			"GET /health":                      "Service health check",
			"GET /stats":                       "Service statistics",
			"GET /metrics":                     "Prometheus metrics",
			"GET /prompt":                      "Random phrase to read aloud",
			"GET /sessions":                    "List sessions",
			"POST /sessions":                   "Create a session",
			"GET /sessions/{id}":               "Session state",
			"DELETE /sessions/{id}":            "Delete a session",
			"PUT /sessions/{id}/recording":     "Upload a recording; decodes and encodes it",
			"GET /sessions/{id}/recording.wav": "Download the encoded recording",
			"POST /sessions/{id}/analysis":     "Submit the recording for analysis",
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"active_sessions": h.sessions.Count(),
	})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]any{
			"active_count": h.sessions.Count(),
		},
	}
	if h.stats != nil {
		stats["analysis"] = h.stats.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPServer) handlePrompt(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"prompt": h.randomPrompt()})
}

func (h *HTTPServer) randomPrompt() string {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return prompt.Random(h.rng)
}

func (h *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

type createSessionRequest struct {
	Prompt string `json:"prompt"`
}

func (h *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if req.Prompt == "" {
		req.Prompt = h.randomPrompt()
	}

	s, err := h.sessions.Create(req.Prompt)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Location", "/sessions/"+s.ID)
	writeJSON(w, http.StatusCreated, s.Info())
}

// lookup resolves the {id} URL parameter, writing 404 when it is unknown
func (h *HTTPServer) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func (h *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func (h *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPServer) handleUploadRecording(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("recording exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read recording")
		return
	}

	if err := s.SetRecording(data); err != nil {
		h.writeSessionError(w, s, err)
		return
	}

	if err := h.pipeline.Prepare(r.Context(), s); err != nil {
		h.writeSessionError(w, s, err)
		return
	}

	writeJSON(w, http.StatusOK, s.Info())
}

func (h *HTTPServer) handleDownloadWAV(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	wav := s.WAV()
	if wav == nil {
		writeError(w, http.StatusNotFound, session.ErrNoWAV.Error())
		return
	}

	w.Header().Set("Content-Type", analysis.ContentTypeWAV)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(wav)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+analysis.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

type analysisResponse struct {
	SessionID   string           `json:"session_id"`
	Prompt      string           `json:"prompt"`
	DigitsMatch bool             `json:"digits_match"`
	Result      *analysis.Result `json:"result"`
}

func (h *HTTPServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	result, err := h.pipeline.Submit(r.Context(), s)
	if err != nil {
		h.writeSessionError(w, s, err)
		return
	}

	writeJSON(w, http.StatusOK, analysisResponse{
		SessionID:   s.ID,
		Prompt:      s.Prompt,
		DigitsMatch: prompt.Match(s.Prompt, result.Transcription),
		Result:      result,
	})
}

// writeSessionError maps pipeline failures onto status codes
func (h *HTTPServer) writeSessionError(w http.ResponseWriter, s *session.Session, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoRecording), errors.Is(err, session.ErrNoWAV):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, decoder.ErrDecode), errors.Is(err, audio.ErrEncode):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		var stageErr *session.StageError
		if errors.As(err, &stageErr) && stageErr.Stage == session.StageSubmit {
			status = http.StatusBadGateway
		}
	}

	h.logger.Warn().
		Err(err).
		Str("sessionId", s.ID).
		Int("status", status).
		Msg("Session request failed")

	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
