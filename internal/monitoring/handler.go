// Package monitoring exposes the operational surface the Metrics Recorder
// (C10), Client Pool (C1), and WebSocket Hub (C6) accumulate in-process —
// the "dashboard" half of §6's monitoring route group. The Prometheus
// registry (internal/telemetry) is scraped separately at /metrics; these
// routes answer the UI's own polling instead.
package monitoring

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/kubefleet/internal/httpserver"
	"github.com/wisbric/kubefleet/pkg/clientpool"
	"github.com/wisbric/kubefleet/pkg/reqmetrics"
	"github.com/wisbric/kubefleet/pkg/wshub"
)

// Handler mounts /api/monitoring/{stats,pool,ws}.
type Handler struct {
	recorder *reqmetrics.Recorder
	pool     *clientpool.Pool
	hub      *wshub.Hub
}

func NewHandler(recorder *reqmetrics.Recorder, pool *clientpool.Pool, hub *wshub.Hub) *Handler {
	return &Handler{recorder: recorder, pool: pool, hub: hub}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", h.handleStats)
	r.Get("/pool", h.handlePool)
	r.Get("/ws", h.handleWS)
	return r
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, h.recorder.Snapshot())
}

func (h *Handler) handlePool(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, h.pool.Stats())
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, h.hub.Stats())
}
