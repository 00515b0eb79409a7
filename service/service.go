// Package service runs the optional HTTP side servers: healthz and prometheus metrics.
package service

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-cliverify/metrics"
)

// Config selects which servers run. An empty address disables a server.
type Config struct {
	HealthzAddr string
	MetricsAddr string
}

// MetricsAddr joins the host and port of the metrics CLI flags
func MetricsAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg   Config
	log   log.Logger
	addrs map[string]net.Addr
}

func New(cfg Config, logger log.Logger, ready func() bool) *Service {
	if logger == nil {
		logger = log.Root()
	}
	logger = logger.New("component", "service")
	return &Service{
		Healthz: &HealthzServer{Ready: ready, log: logger},
		Metrics: &MetricsServer{},
		cfg:     cfg,
		log:     logger,
		addrs:   map[string]net.Addr{},
	}
}

// Start binds the enabled servers and serves them in the background.
// Binding errors are returned; serving errors are logged.
func (s *Service) Start() error {
	type server struct {
		name  string
		addr  string
		start func(net.Listener, func(error))
	}
	servers := []server{
		{"healthz", s.cfg.HealthzAddr, s.Healthz.Start},
		{"metrics", s.cfg.MetricsAddr, s.Metrics.Start},
	}
	for _, srv := range servers {
		if srv.addr == "" {
			continue
		}
		ln, err := net.Listen("tcp", srv.addr)
		if err != nil {
			return fmt.Errorf("failed to listen for %s on %s: %w", srv.name, srv.addr, err)
		}
		s.addrs[srv.name] = ln.Addr()
		s.log.Info("starting server", "server", srv.name, "addr", ln.Addr())
		srv.start(ln, func(err error) {
			s.log.Error("server failed", "server", srv.name, "err", err)
			metrics.RecordErrorDetails("serving "+srv.name, err)
		})
	}
	return nil
}

// Addr returns the bound address of the named server, or nil if it is not running
func (s *Service) Addr(name string) net.Addr {
	return s.addrs[name]
}

func (s *Service) Shutdown(ctx context.Context) {
	s.log.Info("service shutting down")
	if err := s.Healthz.Shutdown(ctx); err != nil {
		s.log.Warn("healthz shutdown failed", "err", err)
	}
	if err := s.Metrics.Shutdown(ctx); err != nil {
		s.log.Warn("metrics shutdown failed", "err", err)
	}
	s.log.Info("service stopped")
}
