package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sriramcse31/ai-test-triage-agent/internal/agent"
	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
	"github.com/sriramcse31/ai-test-triage-agent/internal/logparser"
	"github.com/sriramcse31/ai-test-triage-agent/internal/memory"
)

const maxBodySize = 10 << 20 // 10 MB

type Analyzer interface {
	AnalyzeParsed(ctx context.Context, tf *domain.TestFailure) (*domain.TriageResult, error)
}

// Memory is the part of the failure memory the API exposes.
type Memory interface {
	Add(ctx context.Context, f domain.HistoricalFailure) (string, error)
	GetFlaky(ctx context.Context, threshold float64) ([]domain.HistoricalFailure, error)
	Stats(ctx context.Context) (memory.Stats, error)
}

// Server is the HTTP triage API.
type Server struct {
	analyzer  Analyzer
	ruleBased Analyzer
	mem       Memory
}

// New builds the API. ruleBased serves requests with no_llm set; when nil the
// default analyzer is used for them too.
func New(analyzer, ruleBased Analyzer, mem Memory) *Server {
	if ruleBased == nil {
		ruleBased = analyzer
	}
	return &Server{analyzer: analyzer, ruleBased: ruleBased, mem: mem}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/triage", s.handleTriage)
		r.Get("/stats", s.handleStats)
		r.Get("/flaky", s.handleFlaky)
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("server listening addr=%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Println("server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		writeError(w, http.StatusBadRequest, "request body must contain the raw CI log")
		return
	}

	analyzer := s.analyzer
	if queryFlag(r, "no_llm") {
		analyzer = s.ruleBased
	}

	tf := logparser.Parse(string(body))
	res, err := analyzer.AnalyzeParsed(r.Context(), tf)
	if err != nil {
		log.Printf("server triage error test=%s: %v", tf.TestName, err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if queryFlag(r, "remember") && s.mem != nil {
		if _, err := s.mem.Add(r.Context(), agent.MemoryRecord(tf, res, time.Now())); err != nil {
			log.Printf("server remember error test=%s: %v", tf.TestName, err)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.mem == nil {
		writeError(w, http.StatusNotImplemented, "memory not configured")
		return
	}
	st, err := s.mem.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleFlaky(w http.ResponseWriter, r *http.Request) {
	if s.mem == nil {
		writeError(w, http.StatusNotImplemented, "memory not configured")
		return
	}
	threshold := memory.DefaultFlakyThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be a number between 0 and 1")
			return
		}
		threshold = v
	}
	flaky, err := s.mem.GetFlaky(r.Context(), threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if flaky == nil {
		flaky = []domain.HistoricalFailure{}
	}
	writeJSON(w, http.StatusOK, flaky)
}

func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
