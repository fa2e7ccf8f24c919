package post

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/ragchat/models"
	"github.com/a-h/ragchat/pipeline"
	"github.com/a-h/ragchat/synth"
	"github.com/a-h/respond"
)

type Answerer interface {
	Answer(ctx context.Context, query pipeline.ChatQuery) (synth.Answer, error)
}

func New(log *slog.Logger, answerer Answerer) Handler {
	return Handler{
		log:      log,
		answerer: answerer,
	}
}

type Handler struct {
	log      *slog.Logger
	answerer Answerer
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.ChatPostRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		respond.WithError(w, "failed to decode body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respond.WithError(w, "question must not be empty", http.StatusBadRequest)
		return
	}
	if req.TopK < 0 {
		respond.WithError(w, "top_k must be a positive integer", http.StatusBadRequest)
		return
	}

	answer, err := h.answerer.Answer(r.Context(), pipeline.ChatQuery{
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrNotReady) {
			respond.WithError(w, "the index is not ready yet, try again shortly", http.StatusServiceUnavailable)
			return
		}
		h.log.Error("failed to answer", slog.Any("error", err))
		respond.WithError(w, "failed to answer", http.StatusInternalServerError)
		return
	}

	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	respond.WithJSON(w, models.ChatPostResponse{
		Answer:  answer.Answer,
		Sources: sources,
	}, http.StatusOK)
}
