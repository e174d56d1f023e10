// Package server is the HTTP + WebSocket surface over the scan orchestrator.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/ratelimit"
	"github.com/axescan/axescan/internal/scanner"
	"github.com/axescan/axescan/internal/store"
)

// Server routes scan requests to the orchestrator.
type Server struct {
	cfg          Config
	orchestrator *scanner.Orchestrator
	limiter      ratelimit.Store
	gatherer     prometheus.Gatherer
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

func New(cfg Config, orch *scanner.Orchestrator, limiter ratelimit.Store, gatherer prometheus.Gatherer, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	s := &Server{
		cfg:          cfg.withDefaults(),
		orchestrator: orch,
		limiter:      limiter,
		gatherer:     gatherer,
		router:       chi.NewRouter(),
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	r.Options("/scans", s.optionsHandler("GET, POST"))
	r.Options("/scans/{scanID}", s.optionsHandler("GET"))

	r.Post("/scans", s.handleInitiateScan)
	r.Get("/scans", s.handleListScans)
	r.Get("/scans/{scanID}", s.handleGetScan)

	r.Get("/ws/scans/{scanID}", s.handleScanWS)

	r.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && r.Method == http.MethodPost {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleInitiateScan(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var body struct {
		URL       string  `json:"url"`
		Principal *string `json:"principal,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := s.orchestrator.Initiate(r.Context(), body.URL, body.Principal)
	if err != nil {
		var invalid *scanner.InvalidInputError
		var full *scanner.QueueFullError
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, invalid.Error())
		case errors.As(err, &full):
			s.logger.Warn("scan queue full", logging.Field{Key: "scan_id", Value: full.ScanID})
			writeError(w, http.StatusServiceUnavailable, "scan queue full, try again later")
		default:
			s.logger.Warn("initiating scan", logging.Field{Key: "error", Value: err.Error()})
			writeError(w, http.StatusInternalServerError, "failed to initiate scan")
		}
		return
	}

	status := http.StatusAccepted
	if res.Cached {
		status = http.StatusOK
	}
	s.logger.Info("scan initiated",
		logging.Field{Key: "scan_id", Value: res.ScanID},
		logging.Field{Key: "cached", Value: res.Cached})
	writeJSON(w, status, res)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")

	scan, err := s.orchestrator.Get(r.Context(), scanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		s.logger.Warn("getting scan", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if ls := r.URL.Query().Get("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	if limit > s.cfg.MaxListLimit {
		limit = s.cfg.MaxListLimit
	}

	scans, err := s.orchestrator.List(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing scans", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the peer
// address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
