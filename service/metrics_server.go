package service

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the prometheus registry on /metrics
type MetricsServer struct {
	Gatherer prometheus.Gatherer // defaults to the global registry

	server *http.Server
}

func (m *MetricsServer) Start(ln net.Listener, onErr func(error)) {
	m.server = &http.Server{Handler: m.Handler()}
	go serve(m.server, ln, onErr)
}

// Handler serves the metrics in the prometheus exposition format
func (m *MetricsServer) Handler() http.Handler {
	gatherer := m.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
