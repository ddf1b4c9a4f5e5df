package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/najoast/courier/config"
)

// HealthFunc reports whether the server can take traffic.
type HealthFunc func() error

// Server serves the metrics and health endpoints.
type Server struct {
	cfg    config.MonitorConfig
	http   *http.Server
	health HealthFunc
	log    *zap.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer routes cfg.MetricsPath to m and cfg.HealthPath to health.
func NewServer(cfg config.MonitorConfig, m *Metrics, health HealthFunc, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if health == nil {
		health = func() error { return nil }
	}

	s := &Server{cfg: cfg, health: health, log: log}

	r := mux.NewRouter()
	r.Handle(cfg.MetricsPath, m.Handler()).Methods(http.MethodGet)
	r.HandleFunc(cfg.HealthPath, s.healthz).Methods(http.MethodGet)

	s.http = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("monitor server stopped", zap.Error(err))
		}
	}()

	s.log.Info("monitor listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop shuts the server down, waiting for requests in flight until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body := map[string]string{"status": "ok"}
	if err := s.health(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		body = map[string]string{"status": "unavailable", "error": err.Error()}
	}
	_ = json.NewEncoder(w).Encode(body)
}
