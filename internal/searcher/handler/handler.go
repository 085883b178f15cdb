// Package handler serves the search and index administration API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textdex/internal/searcher/planner"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/logger"
)

const maxBodyBytes = 1 << 20

type CandidateFinder interface {
	Candidates(ctx context.Context, term string) (*executor.Result, error)
}

type QueryPlanner interface {
	PlanFor(term string) (*planner.Plan, error)
}

// IndexAdmin is satisfied by *indexer.Engine.
type IndexAdmin interface {
	Status(ctx context.Context) (indexer.Status, error)
	RunOneBatch(ctx context.Context) (bool, error)
	Rebuild(ctx context.Context) error
	Update(ctx context.Context, ids []int64) error
}

// Enqueuer requests a background build run. *scheduler.Scheduler satisfies
// it.
type Enqueuer interface {
	Enqueue()
}

type Handler struct {
	finder  CandidateFinder
	planner QueryPlanner
	admin   IndexAdmin
	kick    Enqueuer
	logger  *slog.Logger
}

// New builds the handler. kick may be nil when no scheduler runs in this
// process.
func New(finder CandidateFinder, p QueryPlanner, admin IndexAdmin, kick Enqueuer) *Handler {
	return &Handler{
		finder:  finder,
		planner: p,
		admin:   admin,
		kick:    kick,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/plan", h.Plan)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("POST /api/v1/index/batch", h.RunBatch)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("POST /api/v1/records/changed", h.RecordsChanged)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	res, err := h.finder.Candidates(ctx, query)
	if err != nil {
		h.fail(ctx, w, "candidate lookup failed", err)
		return
	}
	logger.FromContext(ctx).Info("search completed",
		"term", res.Term,
		"kind", res.Kind,
		"total", res.Total,
	)
	writeJSON(w, http.StatusOK, res)
}

type planResponse struct {
	Kind     planner.Kind `json:"kind"`
	Term     string       `json:"term"`
	Query    string       `json:"query"`
	Args     []any        `json:"args"`
	Shingles []string     `json:"shingles,omitempty"`
}

// Plan shows the statement a search would run without running it.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	plan, err := h.planner.PlanFor(query)
	if err != nil {
		h.fail(r.Context(), w, "planning failed", err)
		return
	}
	sql, args := plan.Build(0)
	writeJSON(w, http.StatusOK, planResponse{
		Kind:     plan.Kind,
		Term:     plan.Term,
		Query:    sql,
		Args:     args,
		Shingles: plan.Shingles,
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.admin.Status(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RunBatch indexes one slice synchronously. When slices remain the
// background scheduler is asked to continue.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	more, err := h.admin.RunOneBatch(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "batch failed", err)
		return
	}
	if more && h.kick != nil {
		h.kick.Enqueue()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"more": more})
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Rebuild(r.Context()); err != nil {
		h.fail(r.Context(), w, "rebuild failed", err)
		return
	}
	h.logger.Info("index rebuild started")
	if h.kick != nil {
		h.kick.Enqueue()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuilding"})
}

// RecordsChanged applies a change notification synchronously.
func (h *Handler) RecordsChanged(w http.ResponseWriter, r *http.Request) {
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
	if err := h.admin.Update(r.Context(), req.RecordIDs); err != nil {
		h.fail(r.Context(), w, "update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(req.RecordIDs)})
}

// fail maps err to its status code. Client errors echo the message; server
// errors are logged and answered generically.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error(msg, "error", err, "status_code", status)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
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
