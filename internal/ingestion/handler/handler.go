// Package handler exposes the change-notification intake over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/logger"
)

// maxBodyBytes bounds a change request body.
const maxBodyBytes = 1 << 20

// ChangePublisher is satisfied by *publisher.Publisher.
type ChangePublisher interface {
	Publish(ctx context.Context, req *ingestion.ChangeRequest) (*ingestion.ChangeResponse, error)
}

type Handler struct {
	publisher ChangePublisher
	logger    *slog.Logger
}

func New(pub ChangePublisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/records/changed", h.RecordsChanged)
}

// RecordsChanged validates a change request and queues it for the indexer.
func (h *Handler) RecordsChanged(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.ChangeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateChangeRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Publish(ctx, &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("change notification failed", "error", err, "status_code", status)
		writeError(w, status, "change notification failed")
		return
	}
	log.Info("change notification queued", "event_id", resp.EventID, "records", resp.Accepted)
	writeJSON(w, http.StatusAccepted, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
