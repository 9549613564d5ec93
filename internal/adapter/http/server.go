package http

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwygoda/ytaudio/internal/batch"
	"github.com/cwygoda/ytaudio/internal/domain"
)

// StatusSource reports the state of the running batch.
type StatusSource interface {
	Snapshot() batch.Status
	Jobs() []domain.JobSnapshot
}

// Server exposes batch status, health and metrics over HTTP.
type Server struct {
	src    StatusSource
	cancel func()
	secret string
	logger *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// Options configures optional server behaviour.
type Options struct {
	// Cancel is called by POST /cancel. The route is not registered when nil.
	Cancel func()
	// Secret, when set, requires signed POST /cancel requests.
	Secret string
	Logger *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(src StatusSource, addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		src:    src,
		cancel: opts.Cancel,
		secret: opts.Secret,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /jobs", s.handleJobs)
	s.mux.HandleFunc("GET /jobs/{index}", s.handleGetJob)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	if s.cancel != nil {
		s.mux.HandleFunc("POST /cancel", s.handleCancel)
	}
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse is the JSON response for GET /status.
type statusResponse struct {
	batch.Status
	SuccessRate float64 `json:"success_rate"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.src.Snapshot()
	resp := statusResponse{Status: st, SuccessRate: 1}
	if done := st.Counts.Completed + st.Counts.Failed + st.Counts.Cancelled; done > 0 {
		resp.SuccessRate = float64(st.Counts.Completed) / float64(done)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.src.Jobs()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := jobs[:0:0]
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	s.writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || idx < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid job index")
		return
	}

	jobs := s.src.Jobs()
	if idx >= len(jobs) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, jobs[idx])
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if s.secret != "" {
		if err := s.verifySignature(r, body); err != nil {
			s.logger.Warn("cancel verification failed", "err", err)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	s.logger.Info("cancel requested over http", "remote", r.RemoteAddr)
	s.cancel()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

const maxTimestampSkew = 5 * time.Minute

func (s *Server) verifySignature(r *http.Request, body []byte) error {
	timestamp := r.Header.Get("X-Timestamp")
	if timestamp == "" {
		return fmt.Errorf("missing X-Timestamp header")
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("invalid X-Timestamp: must be ISO8601/RFC3339 format")
	}

	skew := time.Since(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew {
		return fmt.Errorf("X-Timestamp too far from current time (skew: %v, max: %v)", skew.Truncate(time.Second), maxTimestampSkew)
	}

	signature := r.Header.Get("X-Signature")
	if signature == "" {
		return fmt.Errorf("missing X-Signature header")
	}

	// SHA256("${timestamp}\n${body}\n${secret}")
	expected := Sign(timestamp, body, s.secret)
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return fmt.Errorf("invalid signature")
	}

	return nil
}

// Sign computes the X-Signature value for a request.
func Sign(timestamp string, body []byte, secret string) string {
	payload := fmt.Sprintf("%s\n%s\n%s", timestamp, string(body), secret)
	hash := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(hash[:])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Port extracts the port from the address.
func (s *Server) Port() int {
	addr := s.server.Addr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		port, _ := strconv.Atoi(addr[idx+1:])
		return port
	}
	return 0
}
