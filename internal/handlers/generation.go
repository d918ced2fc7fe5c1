package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/synthara/forge-api/internal/authz"
	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/realtime"
	"github.com/synthara/forge-api/internal/repository"
	"github.com/synthara/forge-api/internal/temporal"
)

// ProgressNotifier pushes job events to realtime subscribers.
type ProgressNotifier interface {
	EmitJobProgress(jobID string, event realtime.JobProgress)
}

type GenerationHandler struct {
	jobRepository repository.JobRepository
	queue         temporal.JobQueue
	notifier      ProgressNotifier
	logger        zerolog.Logger
}

func NewGenerationHandler(jobs repository.JobRepository, queue temporal.JobQueue, notifier ProgressNotifier, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{
		jobRepository: jobs,
		queue:         queue,
		notifier:      notifier,
		logger:        logger,
	}
}

type createJobRequest struct {
	Prompt                 string            `json:"prompt"`
	Tier                   models.JobTier    `json:"tier"`
	Schema                 []models.FieldDef `json:"schema,omitempty"`
	AIModels               []string          `json:"aiModels,omitempty"`
	ValidationLevel        string            `json:"validationLevel,omitempty"`
	ComplianceRequirements []string          `json:"complianceRequirements,omitempty"`
	KnowledgeDocumentIDs   []string          `json:"knowledgeDocumentIds,omitempty"`
}

// CreateJob persists a pending job and enqueues it. The HTTP response returns
// immediately; progress is delivered over the realtime channel.
func (h *GenerationHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		http.Error(w, "Prompt is required", http.StatusBadRequest)
		return
	}
	if req.Tier == "" {
		req.Tier = models.TierBasic
	}
	if !req.Tier.Valid() {
		http.Error(w, "Unknown tier", http.StatusBadRequest)
		return
	}

	job, err := h.jobRepository.Create(r.Context(), models.GenerationJob{
		UserID:                 userID,
		Prompt:                 req.Prompt,
		Tier:                   req.Tier,
		Schema:                 req.Schema,
		AIModels:               req.AIModels,
		ValidationLevel:        req.ValidationLevel,
		ComplianceRequirements: req.ComplianceRequirements,
		KnowledgeDocumentIDs:   req.KnowledgeDocumentIDs,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create generation job")
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	if err := h.queue.Enqueue(r.Context(), temporal.GenerationParams{JobID: job.ID, UserID: userID}); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue generation job")
		if markErr := h.jobRepository.MarkFailed(r.Context(), job.ID, "failed to enqueue job"); markErr != nil {
			h.logger.Error().Err(markErr).Str("job_id", job.ID).Msg("Failed to mark unenqueued job failed")
		}
		http.Error(w, "Failed to enqueue job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(job)
}

// GetJob returns the current job record, including progress and reports.
func (h *GenerationHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// ListJobs returns the requester's jobs, newest first.
func (h *GenerationHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)

	jobs, err := h.jobRepository.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list generation jobs")
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"jobs": jobs, "limit": limit, "offset": offset})
}

// CancelJob requests cooperative cancellation. A job already in a terminal
// state is reported as a conflict; the worker notices the flag at its next
// stage boundary.
func (h *GenerationHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	cancelled, err := h.jobRepository.Cancel(r.Context(), job.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to cancel job")
		http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}
	if !cancelled {
		http.Error(w, "Job already finished", http.StatusConflict)
		return
	}

	h.notifier.EmitJobProgress(job.ID, realtime.JobProgress{
		JobID:       job.ID,
		UserID:      job.UserID,
		Status:      models.JobStatusCancelled,
		Progress:    job.Progress,
		CurrentStep: "Cancelled",
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": string(models.JobStatusCancelled)})
}

// ownedJob loads the path's job and enforces owner-or-admin access.
func (h *GenerationHandler) ownedJob(w http.ResponseWriter, r *http.Request) (models.GenerationJob, bool) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return models.GenerationJob{}, false
	}

	jobID := mux.Vars(r)["id"]
	job, err := h.jobRepository.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return models.GenerationJob{}, false
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return models.GenerationJob{}, false
	}

	if job.UserID != userID && !authz.IsAdminFromRequest(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return models.GenerationJob{}, false
	}
	return job, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
