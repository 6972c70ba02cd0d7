package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/access"
	"github.com/teacurran/planning-poker/internal/bus"
	"github.com/teacurran/planning-poker/internal/middleware"
	"github.com/teacurran/planning-poker/internal/models"
	"github.com/teacurran/planning-poker/internal/repository/postgres"
)

// ExportHandler handles report export endpoints. Accepting a job means a
// pending row exists and its id is on the durable stream; rendering happens
// in the worker.
type ExportHandler struct {
	jobs     *postgres.ExportJobRepository
	sessions *postgres.SessionHistoryRepository
	gate     *access.Gate
	bus      bus.Bus
}

// NewExportHandler creates a new export handler
func NewExportHandler(jobs *postgres.ExportJobRepository, sessions *postgres.SessionHistoryRepository, gate *access.Gate, b bus.Bus) *ExportHandler {
	return &ExportHandler{jobs: jobs, sessions: sessions, gate: gate, bus: b}
}

// ExportRequest represents an export request
type ExportRequest struct {
	SessionID uuid.UUID           `json:"sessionId"`
	Format    models.ExportFormat `json:"format"`
}

// Export accepts an export job for asynchronous processing
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	logger := middleware.LoggerWithIdentity(ctx)

	if !h.gate.MayExport(identity.Tier) {
		http.Error(w, `{"error": "exports require a pro or team subscription"}`, http.StatusForbidden)
		return
	}

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Format != models.FormatCSV && req.Format != models.FormatPDF {
		http.Error(w, `{"error": "format must be csv or pdf"}`, http.StatusBadRequest)
		return
	}
	if req.SessionID == uuid.Nil {
		http.Error(w, `{"error": "sessionId is required"}`, http.StatusBadRequest)
		return
	}

	if _, err := h.sessions.FindByID(ctx, req.SessionID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "could not load session"}`, http.StatusInternalServerError)
		return
	}

	job, err := h.jobs.Create(ctx, &models.ExportJob{
		UserID:    *identity.UserID,
		SessionID: req.SessionID,
		Format:    req.Format,
	})
	if err != nil {
		logger.Error("create export job failed", "error", err)
		http.Error(w, `{"error": "could not create export job"}`, http.StatusInternalServerError)
		return
	}

	// The job only exists for the worker once the append commits. A failed
	// append is recorded on the job so the client sees a terminal status
	// rather than a pending job nobody will pick up.
	if err := h.bus.AppendJob(ctx, job.ID); err != nil {
		logger.Error("append export job failed", "jobId", job.ID, "error", err)
		_, _ = h.jobs.MarkFailed(ctx, job.ID, "could not enqueue job")
		http.Error(w, `{"error": "could not enqueue export job"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]uuid.UUID{"jobId": job.ID})
}

// GetJob returns an export job; only the requesting user may poll it
func (h *ExportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		http.Error(w, `{"error": "invalid job id"}`, http.StatusBadRequest)
		return
	}

	job, err := h.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			http.Error(w, `{"error": "job not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "could not load job"}`, http.StatusInternalServerError)
		return
	}
	if job.UserID != *identity.UserID {
		http.Error(w, `{"error": "not your job"}`, http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

// ListJobs lists the caller's export jobs, newest first
func (h *ExportHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	jobs, err := h.jobs.ListByUser(ctx, *identity.UserID)
	if err != nil {
		http.Error(w, `{"error": "could not list jobs"}`, http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*models.ExportJob{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobs)
}
