// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"babyrag/internal/domain"
	"babyrag/internal/health"
	"babyrag/internal/observe"
	"babyrag/internal/service"
)

const (
	defaultMaxUpload = 32 << 20
	maxJSONBody      = 1 << 20
)

// Pipeline is the part of service.Service the API needs.
type Pipeline interface {
	Ingest(ctx context.Context, docs []domain.Document) (service.IngestResult, error)
	Ask(ctx context.Context, question string, topK int) (service.Answer, error)
	Reset() error
	Fake() bool
	SetFake(on bool)
}

type Config struct {
	Addr           string
	MaxUploadBytes int64
}

type Server struct {
	cfg     Config
	svc     Pipeline
	health  *health.Handler
	metrics *observe.Metrics
}

// New builds the server. health may be nil, in which case the probes report
// only liveness.
func New(cfg Config, svc Pipeline, hc *health.Handler, m *observe.Metrics) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if hc == nil {
		hc = health.New()
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{cfg: cfg, svc: svc, health: hc, metrics: m}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/mode", s.handleGetMode)
	mux.HandleFunc("PUT /api/mode", s.handleSetMode)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	slog.Info("api listening", "addr", s.cfg.Addr, "fake", s.svc.Fake())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type ingestResponse struct {
	Added   int    `json:"added"`
	Fake    bool   `json:"fake"`
	Summary string `json:"summary,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, domain.Validationf("parse upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, domain.Validationf("no files uploaded"))
		return
	}
	docs := make([]domain.Document, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, fmt.Errorf("read %s: %w", fh.Filename, err))
			return
		}
		docs = append(docs, domain.Document{Name: fh.Filename, Content: string(data)})
	}

	res, err := s.svc.Ingest(r.Context(), docs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Added: res.Added, Fake: res.Fake, Summary: res.Summary})
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type askResponse struct {
	Answer  string           `json:"answer"`
	Sources []map[string]any `json:"sources"`
	Fake    bool             `json:"fake"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, domain.Validationf("invalid json: %v", err))
		return
	}
	ans, err := s.svc.Ask(r.Context(), req.Question, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	sources := ans.Sources
	if sources == nil {
		sources = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, askResponse{Answer: ans.Answer, Sources: sources, Fake: ans.Fake})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.svc.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

type modeBody struct {
	Fake bool `json:"fake"`
}

func (s *Server) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modeBody{Fake: s.svc.Fake()})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, domain.Validationf("invalid json: %v", err))
		return
	}
	s.svc.SetFake(req.Fake)
	writeJSON(w, http.StatusOK, modeBody{Fake: s.svc.Fake()})
}

// StatusFor maps a pipeline error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrTransport),
		errors.Is(err, domain.ErrCollectionResolution),
		errors.Is(err, domain.ErrBackendProtocol),
		errors.Is(err, domain.ErrEmbeddingBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= 500 {
		slog.Error("request failed", "status", status, "kind", domain.KindOf(err), "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}
