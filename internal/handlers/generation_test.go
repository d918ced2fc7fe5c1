package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/synthara/forge-api/internal/authz"
	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/realtime"
	"github.com/synthara/forge-api/internal/repository"
	"github.com/synthara/forge-api/internal/temporal"
)

type stubJobRepo struct {
	repository.JobRepository
	jobs      map[string]models.GenerationJob
	created   []models.GenerationJob
	cancelled []string
	failed    []string
}

func newStubJobRepo(jobs ...models.GenerationJob) *stubJobRepo {
	r := &stubJobRepo{jobs: make(map[string]models.GenerationJob)}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *stubJobRepo) Create(_ context.Context, job models.GenerationJob) (models.GenerationJob, error) {
	job.ID = "job-new"
	job.Status = models.JobStatusPending
	r.created = append(r.created, job)
	r.jobs[job.ID] = job
	return job, nil
}

func (r *stubJobRepo) Get(_ context.Context, jobID string) (models.GenerationJob, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return job, repository.ErrJobNotFound
	}
	return job, nil
}

func (r *stubJobRepo) Cancel(_ context.Context, jobID string) (bool, error) {
	job := r.jobs[jobID]
	if job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = models.JobStatusCancelled
	r.jobs[jobID] = job
	r.cancelled = append(r.cancelled, jobID)
	return true, nil
}

func (r *stubJobRepo) MarkFailed(_ context.Context, jobID, _ string) error {
	r.failed = append(r.failed, jobID)
	return nil
}

func (r *stubJobRepo) ListByUser(_ context.Context, userID string, _, _ int) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	for _, j := range r.jobs {
		if j.UserID == userID {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

type stubQueue struct {
	enqueued []temporal.GenerationParams
	err      error
}

func (q *stubQueue) Enqueue(_ context.Context, params temporal.GenerationParams) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, params)
	return nil
}

type stubNotifier struct {
	events []realtime.JobProgress
}

func (n *stubNotifier) EmitJobProgress(_ string, event realtime.JobProgress) {
	n.events = append(n.events, event)
}

func authenticated(r *http.Request, userID string, admin bool) *http.Request {
	return r.WithContext(authz.WithIdentity(r.Context(), userID, admin))
}

func TestCreateJobEnqueues(t *testing.T) {
	repo := newStubJobRepo()
	queue := &stubQueue{}
	h := NewGenerationHandler(repo, queue, &stubNotifier{}, zerolog.Nop())

	body := `{"prompt": "customer records", "tier": "workflow", "aiModels": ["ensemble-validator"]}`
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/generation/jobs", strings.NewReader(body)), "user-1", false)
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0].JobID != "job-new" {
		t.Fatalf("enqueued = %+v, want job-new", queue.enqueued)
	}
	if len(repo.created) != 1 || repo.created[0].UserID != "user-1" {
		t.Errorf("created = %+v", repo.created)
	}

	var job models.GenerationJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("response is not a job: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("job status = %s, want pending", job.Status)
	}
}

func TestCreateJobReadsCamelCaseFields(t *testing.T) {
	repo := newStubJobRepo()
	h := NewGenerationHandler(repo, &stubQueue{}, &stubNotifier{}, zerolog.Nop())

	body := `{
		"prompt": "patients",
		"tier": "production",
		"aiModels": ["gpt-4", "claude-3.5"],
		"validationLevel": "strict",
		"complianceRequirements": ["GDPR"],
		"knowledgeDocumentIds": ["doc-1"]
	}`
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/generation/jobs", strings.NewReader(body)), "user-1", false)
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	created := repo.created[0]
	if len(created.AIModels) != 2 || created.AIModels[0] != "gpt-4" {
		t.Errorf("aiModels = %v, want [gpt-4 claude-3.5]", created.AIModels)
	}
	if created.ValidationLevel != "strict" {
		t.Errorf("validationLevel = %q, want strict", created.ValidationLevel)
	}
	if len(created.ComplianceRequirements) != 1 || len(created.KnowledgeDocumentIDs) != 1 {
		t.Errorf("compliance = %v, knowledge = %v", created.ComplianceRequirements, created.KnowledgeDocumentIDs)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	for _, key := range []string{"aiModels", "currentStep", "createdAt", "validationLevel"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("response is missing %q: %s", key, rec.Body.String())
		}
	}
}

func TestCreateJobRejectsEmptyPrompt(t *testing.T) {
	h := NewGenerationHandler(newStubJobRepo(), &stubQueue{}, &stubNotifier{}, zerolog.Nop())

	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/generation/jobs", strings.NewReader(`{"prompt": "  "}`)), "user-1", false)
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateJobRejectsUnknownTier(t *testing.T) {
	h := NewGenerationHandler(newStubJobRepo(), &stubQueue{}, &stubNotifier{}, zerolog.Nop())

	body := `{"prompt": "x", "tier": "platinum"}`
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/generation/jobs", strings.NewReader(body)), "user-1", false)
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	repo := newStubJobRepo()
	queue := &stubQueue{err: context.DeadlineExceeded}
	h := NewGenerationHandler(repo, queue, &stubNotifier{}, zerolog.Nop())

	body := `{"prompt": "customer records"}`
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/generation/jobs", strings.NewReader(body)), "user-1", false)
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(repo.failed) != 1 {
		t.Errorf("unenqueued job should be marked failed, got %v", repo.failed)
	}
}

func withJobVar(r *http.Request, jobID string) *http.Request {
	return mux.SetURLVars(r, map[string]string{"id": jobID})
}

func TestGetJobEnforcesOwnership(t *testing.T) {
	repo := newStubJobRepo(models.GenerationJob{ID: "job-1", UserID: "owner", Status: models.JobStatusProcessing})
	h := NewGenerationHandler(repo, &stubQueue{}, &stubNotifier{}, zerolog.Nop())

	req := withJobVar(authenticated(httptest.NewRequest(http.MethodGet, "/api/generation/jobs/job-1", nil), "stranger", false), "job-1")
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger status = %d, want 403", rec.Code)
	}

	req = withJobVar(authenticated(httptest.NewRequest(http.MethodGet, "/api/generation/jobs/job-1", nil), "stranger", true), "job-1")
	rec = httptest.NewRecorder()
	h.GetJob(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}

	req = withJobVar(authenticated(httptest.NewRequest(http.MethodGet, "/api/generation/jobs/job-1", nil), "owner", false), "job-1")
	rec = httptest.NewRecorder()
	h.GetJob(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d, want 200", rec.Code)
	}
}

func TestCancelJobConflictsWhenTerminal(t *testing.T) {
	repo := newStubJobRepo(
		models.GenerationJob{ID: "job-run", UserID: "owner", Status: models.JobStatusProcessing},
		models.GenerationJob{ID: "job-done", UserID: "owner", Status: models.JobStatusCompleted},
	)
	notifier := &stubNotifier{}
	h := NewGenerationHandler(repo, &stubQueue{}, notifier, zerolog.Nop())

	req := withJobVar(authenticated(httptest.NewRequest(http.MethodPost, "/api/generation/jobs/job-run/cancel", nil), "owner", false), "job-run")
	rec := httptest.NewRecorder()
	h.CancelJob(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(notifier.events) != 1 || notifier.events[0].Status != models.JobStatusCancelled {
		t.Errorf("events = %+v, want one cancelled", notifier.events)
	}

	req = withJobVar(authenticated(httptest.NewRequest(http.MethodPost, "/api/generation/jobs/job-done/cancel", nil), "owner", false), "job-done")
	rec = httptest.NewRecorder()
	h.CancelJob(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("terminal cancel status = %d, want 409", rec.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	h := NewGenerationHandler(newStubJobRepo(), &stubQueue{}, &stubNotifier{}, zerolog.Nop())

	req := withJobVar(authenticated(httptest.NewRequest(http.MethodGet, "/api/generation/jobs/nope", nil), "owner", false), "nope")
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
