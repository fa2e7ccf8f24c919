package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/a-h/ragchat/models"
	"github.com/a-h/ragchat/pipeline"
	"github.com/a-h/respond"
)

type Reporter interface {
	Health(ctx context.Context) pipeline.Health
}

func New(log *slog.Logger, reporter Reporter) Handler {
	return Handler{
		log:      log,
		reporter: reporter,
	}
}

type Handler struct {
	log      *slog.Logger
	reporter Reporter
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health := h.reporter.Health(r.Context())
	respond.WithJSON(w, models.HealthGetResponse{
		Status:                     health.Status,
		DocumentCount:              health.DocumentCount,
		GenerationBackendAvailable: health.GenerationBackendAvailable,
	}, http.StatusOK)
}
