package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/civ-tools/civscope/internal/logging"
)

// WebServer exposes hub state over HTTP.
type WebServer struct {
	srv *http.Server
	log logging.Logger
}

// NewWebServer builds the HTTP server for the hub's endpoints.
func NewWebServer(addr string, hub *Hub, log logging.Logger) *WebServer {
	if log == nil {
		log = logging.Default()
	}
	return &WebServer{
		log: log,
		srv: &http.Server{Addr: addr, Handler: hub.Routes()},
	}
}

// Routes returns the hub's endpoint mux, usable directly in tests.
func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/live", h.handleLive)
	mux.HandleFunc("/api/waterfall", h.handleWaterfall)
	mux.HandleFunc("/api/status", h.handleStatus)
	return mux
}

// Start begins listening and shuts down when the context is canceled.
func (w *WebServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("telemetry shutdown", logging.F("err", err.Error()))
		}
	}()

	if err := w.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		w.log.Error("telemetry server", logging.F("err", err.Error()))
	}
}
