package service

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// HealthzServer answers liveness probes for the long-running orchestrator.
// It reports process liveness only; run outcomes are exposed through metrics.
type HealthzServer struct {
	ctx    context.Context
	server *http.Server
}

// Start serves /healthz on addr until Shutdown. It blocks, mirroring
// http.Server.ListenAndServe.
func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	h.server = &http.Server{
		Handler: c.Handler(mux),
		Addr:    addr,
	}
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	return h.server.Shutdown(h.ctx)
}

// Handle reports liveness. The orchestrator counts as live as soon as the
// service is up, even between scheduled runs.
func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("healthz probed", "path", r.URL.Path, "remote", r.RemoteAddr)
	w.Write([]byte("OK")) //nolint:errcheck
}
