package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	api "github.com/NevessSt/Trading-bots-sub000/pkg/contracts/api/v1"
)

// HealthHandler serves GET /health.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// Health reports liveness. It deliberately does not touch the store:
// the issuer can answer health checks even while the store is down, and
// store trouble surfaces as STORE_UNAVAILABLE on the real endpoints.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, &api.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}
