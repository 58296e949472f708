package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/articleforge/articleforge/internal/breaker"
	"github.com/articleforge/articleforge/internal/job/model"
	"github.com/articleforge/articleforge/internal/job/store"
	"github.com/articleforge/articleforge/internal/metrics"
	"github.com/articleforge/articleforge/internal/orchestrator"
)

// JobService is the slice of the orchestrator the HTTP layer needs.
type JobService interface {
	Submit(ctx context.Context, req *model.Request) (*orchestrator.Ack, error)
	Get(ctx context.Context, id string) (*model.Record, error)
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	jobs     JobService
	breakers *breaker.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(jobs JobService, breakers *breaker.Registry, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:     jobs,
		breakers: breakers,
		metrics:  m,
		logger:   logger.With("component", "api"),
	}
}

// Routes registers all endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/jobs", h.SubmitJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /api/v1/jobs", h.MissingJobID)
	mux.HandleFunc("GET /api/v1/breakers", h.Breakers)
	mux.HandleFunc("GET /healthz", h.Health)
}

// SubmitJob handles POST /api/v1/jobs.
// Accepted jobs get a 202 with the job id; callers poll for the rest.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "/api/v1/jobs", http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := req.Validate(); err != nil {
		h.respondError(w, r, "/api/v1/jobs", http.StatusBadRequest, err.Error())
		return
	}

	ack, err := h.jobs.Submit(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to submit job", "requestId", req.RequestID, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, orchestrator.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		h.respondError(w, r, "/api/v1/jobs", status, "failed to accept job")
		return
	}

	h.respondJSON(w, r, "/api/v1/jobs", http.StatusAccepted, SubmitResponse{
		JobID:     ack.JobID,
		Status:    string(ack.Status),
		RequestID: ack.RequestID,
	})
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.respondError(w, r, "/api/v1/jobs/{id}", http.StatusBadRequest, "jobId required")
		return
	}

	rec, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.respondError(w, r, "/api/v1/jobs/{id}", http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to read job", "jobId", id, "error", err)
		h.respondError(w, r, "/api/v1/jobs/{id}", http.StatusInternalServerError, "failed to read job")
		return
	}

	h.respondJSON(w, r, "/api/v1/jobs/{id}", http.StatusOK, toJobResponse(rec))
}

// MissingJobID handles GET /api/v1/jobs, i.e. a status read without an
// id path segment.
func (h *Handler) MissingJobID(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, r, "/api/v1/jobs", http.StatusBadRequest, "jobId required")
}

// Breakers handles GET /api/v1/breakers: an operator view of circuit
// breaker state.
func (h *Handler) Breakers(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, r, "/api/v1/breakers", http.StatusOK, h.breakers.Snapshot())
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, r, "/healthz", http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, endpoint string, status int, data any) {
	if h.metrics != nil {
		h.metrics.HTTPRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "endpoint", endpoint, "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, endpoint string, status int, message string) {
	h.respondJSON(w, r, endpoint, status, ErrorResponse{Error: message})
}
