package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// HealthzServer answers liveness probes. It reports 503 until Ready returns true.
type HealthzServer struct {
	Ready func() bool

	server *http.Server
	log    log.Logger
}

// Start serves on ln in the background until Shutdown. Serving errors go to onErr.
func (h *HealthzServer) Start(ln net.Listener, onErr func(error)) {
	h.server = &http.Server{Handler: h.Handler()}
	go serve(h.server, ln, onErr)
}

// Handler returns the healthz handler wrapped in a permissive CORS policy
func (h *HealthzServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(mux)
}

func (h *HealthzServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	if h.log != nil {
		h.log.Debug("Received health check request", "path", r.URL.Path)
	}
	if h.Ready != nil && !h.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY")) //nolint:errcheck
		return
	}
	w.Write([]byte("OK")) //nolint:errcheck
}

func serve(srv *http.Server, ln net.Listener, onErr func(error)) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		onErr(err)
	}
}
