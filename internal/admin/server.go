// Package admin serves the operational HTTP endpoints: liveness,
// readiness and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterStatus reports whether the TCP routing server is accepting
// connections.
type RouterStatus interface {
	Listening() bool
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count() int
}

type Server struct {
	srv      *http.Server
	router   RouterStatus
	sessions SessionCounter
	logger   *zap.Logger
}

func NewServer(addr string, router RouterStatus, sessions SessionCounter, logger *zap.Logger) *Server {
	s := &Server{
		router:   router,
		sessions: sessions,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("admin HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{}
	allOK := true

	if s.router != nil && s.router.Listening() {
		checks["listener"] = "ok"
	} else {
		checks["listener"] = "not_listening"
		allOK = false
	}

	if s.sessions != nil {
		checks["sessions"] = s.sessions.Count()
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
