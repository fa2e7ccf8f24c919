package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/a-h/ragchat/models"
	"github.com/a-h/respond"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

func New(log *slog.Logger, counter Counter) Handler {
	return Handler{
		log:     log,
		counter: counter,
	}
}

type Handler struct {
	log     *slog.Logger
	counter Counter
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	count, err := h.counter.Count(r.Context())
	if err != nil {
		h.log.Error("failed to count documents", slog.Any("error", err))
		respond.WithError(w, "failed to count documents", http.StatusInternalServerError)
		return
	}
	respond.WithJSON(w, models.DocumentsCountGetResponse{Count: count}, http.StatusOK)
}
