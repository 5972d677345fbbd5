// Package service runs the HTTP endpoints that live alongside a test session:
// a health check and the Prometheus metrics of the metrics package.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testopt/metrics"
)

const HealthzPort = 8080

type Service struct {
	Healthz *HealthzServer

	cfg     opmetrics.CLIConfig
	metrics *httputil.HTTPServer
}

func New(cfg opmetrics.CLIConfig) *Service {
	return &Service{
		Healthz: &HealthzServer{},
		cfg:     cfg,
	}
}

// Start serves the health check and metrics when metrics are enabled.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		log.Debug("metrics disabled, service not started")
		return nil
	}
	log.Info("service starting")

	go func() {
		addr := net.JoinHostPort(s.cfg.ListenAddr, strconv.Itoa(HealthzPort))
		log.Info("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	log.Info("starting metrics server", "addr", s.cfg.ListenAddr, "port", s.cfg.ListenPort)
	srv, err := opmetrics.StartServer(metrics.Registry, s.cfg.ListenAddr, s.cfg.ListenPort)
	if err != nil {
		metrics.RecordErrorDetails("error starting metrics server", err)
		return err
	}
	s.metrics = srv

	log.Info("service started", "metrics", srv.Addr().String())
	return nil
}

func (s *Service) Shutdown(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	log.Info("healthz stopped")

	if s.metrics != nil {
		_ = s.metrics.Stop(ctx)
		log.Info("metrics stopped")
	}

	log.Info("service stopped")
}
