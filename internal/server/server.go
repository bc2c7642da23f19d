// Package server runs the estated HTTP and gRPC health listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "estatecore.Estate"

// Config holds listener settings.
type Config struct {
	HTTPAddr     string
	GRPCAddr     string // empty disables the gRPC health listener
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string // empty disables /metrics
}

// Server serves the API, health and metrics endpoints.
type Server struct {
	cfg        Config
	logger     *zap.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server

	mu       sync.Mutex
	httpAddr net.Addr
	grpcAddr net.Addr
	errs     chan error
}

// New builds a server mounting api under /api/. gatherer backs /metrics and
// may be nil when metrics are disabled.
func New(cfg Config, api http.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	s := &Server{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		errs: make(chan error, 2),
	}

	if api != nil {
		mux.Handle("/api/", api)
	}
	mux.HandleFunc("/healthz", s.healthHandler)
	if cfg.MetricsPath != "" && gatherer != nil {
		mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.GRPCAddr != "" {
		s.health = health.NewServer()
		s.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.health)
	}
	return s
}

// Start binds the listeners and serves in the background. Serve failures are
// delivered on Errors.
func (s *Server) Start() error {
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.cfg.HTTPAddr, err)
	}
	var grpcLn net.Listener
	if s.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return fmt.Errorf("listen grpc %s: %w", s.cfg.GRPCAddr, err)
		}
	}

	s.mu.Lock()
	s.httpAddr = httpLn.Addr()
	if grpcLn != nil {
		s.grpcAddr = grpcLn.Addr()
	}
	s.mu.Unlock()

	s.logger.Info("starting http server", zap.String("address", httpLn.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
			s.errs <- err
		}
	}()

	if grpcLn != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		s.logger.Info("starting grpc health server", zap.String("address", grpcLn.Addr().String()))
		go func() {
			if err := s.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				s.logger.Error("grpc server failed", zap.Error(err))
				s.errs <- err
			}
		}()
	}
	return nil
}

// Errors reports fatal serve errors.
func (s *Server) Errors() <-chan error { return s.errs }

// HTTPAddr returns the bound HTTP address, or nil before Start.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// GRPCAddr returns the bound gRPC address, or nil when disabled or before Start.
func (s *Server) GRPCAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grpcAddr
}

// Shutdown marks the service NOT_SERVING, drains HTTP requests and stops
// gRPC, forcing the stop once ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down servers")
	if s.health != nil {
		s.health.Shutdown()
	}

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		err = fmt.Errorf("http server shutdown: %w", err)
	}

	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.logger.Warn("grpc server stop timeout, forcing shutdown")
			s.grpcServer.Stop()
		}
	}
	return err
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}
