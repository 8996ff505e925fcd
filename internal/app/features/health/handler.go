// internal/app/features/health/handler.go
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/taskhub/internal/app/features/apierr"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the health check endpoint for load balancers and
// orchestrators.
type Handler struct {
	client *mongo.Client
	log    *zap.Logger
}

// NewHandler constructs a health Handler bound to the Mongo client.
func NewHandler(client *mongo.Client, logger *zap.Logger) *Handler {
	return &Handler{client: client, log: logger}
}

// Serve reports process and database health.
// GET /health
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}{Status: "ok", Database: "connected"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.client.Ping(ctx, nil); err != nil {
		h.log.Warn("health check: database unreachable", zap.Error(err))
		resp.Status = "degraded"
		resp.Database = "unreachable"
		apierr.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, resp)
}
