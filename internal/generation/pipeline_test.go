package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/synthara/forge-api/internal/ensemble"
	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/provider"
	"github.com/synthara/forge-api/internal/realtime"
	"github.com/synthara/forge-api/internal/repository"
)

// eventLog records the interleaving of durable writes and notifications so
// the write-then-notify ordering can be asserted.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]models.GenerationJob
	log  *eventLog
}

func newFakeJobRepo(log *eventLog, jobs ...models.GenerationJob) *fakeJobRepo {
	r := &fakeJobRepo{jobs: make(map[string]models.GenerationJob), log: log}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeJobRepo) Create(_ context.Context, job models.GenerationJob) (models.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return job, nil
}

func (r *fakeJobRepo) Get(_ context.Context, jobID string) (models.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return job, repository.ErrJobNotFound
	}
	return job, nil
}

func (r *fakeJobRepo) ListByUser(_ context.Context, _ string, _, _ int) ([]models.GenerationJob, error) {
	return nil, nil
}

func (r *fakeJobRepo) MarkProcessing(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.jobs[jobID]
	if job.Status.IsTerminal() {
		return nil
	}
	job.Status = models.JobStatusProcessing
	job.Progress = 0
	job.CurrentStep = "Initializing"
	r.jobs[jobID] = job
	return nil
}

func (r *fakeJobRepo) UpdateProgress(_ context.Context, jobID string, progress int, currentStep string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.jobs[jobID]
	if job.Status != models.JobStatusProcessing {
		return nil
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	job.CurrentStep = currentStep
	r.jobs[jobID] = job
	r.log.add("write:" + currentStep)
	return nil
}

func (r *fakeJobRepo) SetValidationReport(_ context.Context, jobID string, report json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.jobs[jobID]
	job.ValidationReport = report
	r.jobs[jobID] = job
	return nil
}

func (r *fakeJobRepo) SetComplianceReport(_ context.Context, jobID string, report json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.jobs[jobID]
	job.ComplianceReport = report
	r.jobs[jobID] = job
	return nil
}

func (r *fakeJobRepo) MarkCompleted(_ context.Context, jobID, resultURL string, qualityScore, rowCount int, fileSize int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.jobs[jobID]
	if job.Status.IsTerminal() {
		return nil
	}
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.CurrentStep = "Completed"
	job.ResultURL = &resultURL
	job.QualityScore = &qualityScore
	job.RowCount = &rowCount
	job.FileSize = &fileSize
	r.jobs[jobID] = job
	return nil
}

func (r *fakeJobRepo) MarkFailed(_ context.Context, jobID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.jobs[jobID]
	if job.Status.IsTerminal() {
		return nil
	}
	job.Status = models.JobStatusFailed
	job.Progress = 0
	job.CurrentStep = "Failed"
	job.ErrorMessage = &errorMessage
	r.jobs[jobID] = job
	return nil
}

func (r *fakeJobRepo) Cancel(_ context.Context, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.jobs[jobID]
	if job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = models.JobStatusCancelled
	job.CurrentStep = "Cancelled"
	r.jobs[jobID] = job
	return true, nil
}

func (r *fakeJobRepo) IsCancelled(_ context.Context, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return false, repository.ErrJobNotFound
	}
	return job.Status == models.JobStatusCancelled, nil
}

type fakeDatasetRepo struct {
	mu     sync.Mutex
	drafts []models.Dataset
}

func (r *fakeDatasetRepo) CreateDraft(_ context.Context, ds models.Dataset) (models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds.ID = fmt.Sprintf("ds-%d", len(r.drafts)+1)
	r.drafts = append(r.drafts, ds)
	return ds, nil
}

func (r *fakeDatasetRepo) Get(_ context.Context, _ string) (models.Dataset, error) {
	return models.Dataset{}, repository.ErrDatasetNotFound
}

func (r *fakeDatasetRepo) HasPurchase(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (r *fakeDatasetRepo) draftCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}

// memStore records uploaded keys and hands out deterministic links.
type memStore struct {
	mu      sync.Mutex
	uploads []string
}

func (s *memStore) Upload(_ context.Context, key string, _ io.Reader, _ int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, key)
	return nil
}

func (s *memStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + key, nil
}

func (s *memStore) uploadedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []realtime.JobProgress
	log    *eventLog
}

func (n *fakeNotifier) EmitJobProgress(_ string, event realtime.JobProgress) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if n.log != nil {
		n.log.add("notify:" + event.CurrentStep)
	}
}

func (n *fakeNotifier) all() []realtime.JobProgress {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]realtime.JobProgress(nil), n.events...)
}

func (n *fakeNotifier) last() realtime.JobProgress {
	events := n.all()
	if len(events) == 0 {
		return realtime.JobProgress{}
	}
	return events[len(events)-1]
}

type fakeEnsembler struct {
	mu     sync.Mutex
	calls  int
	result *ensemble.Result
	err    error
}

func (e *fakeEnsembler) GenerateWithConsensus(_ context.Context, _ provider.GenerateRequest, _ []string) (*ensemble.Result, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func (e *fakeEnsembler) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeValidator struct {
	report ValidationReport
}

func (v *fakeValidator) ValidateDataset(_ []provider.Row, _ []models.FieldDef, _ string) ValidationReport {
	return v.report
}

type fakeCompliance struct {
	reports []StandardReport
}

func (c *fakeCompliance) CheckCompliance(_ []provider.Row, _ []string) []StandardReport {
	return c.reports
}

type fakeRetriever struct {
	text    string
	onFetch func()
}

func (r *fakeRetriever) FetchContext(_ context.Context, _ []string) (string, error) {
	if r.onFetch != nil {
		r.onFetch()
	}
	return r.text, nil
}

type pipelineAdapter struct {
	rows []provider.Row
}

func (a *pipelineAdapter) Name() string           { return "openai" }
func (a *pipelineAdapter) Supports(_ string) bool { return true }
func (a *pipelineAdapter) Generate(_ context.Context, _ provider.GenerateRequest) (*provider.Result, error) {
	return &provider.Result{Rows: a.rows, Provider: "openai", Model: "gpt-4"}, nil
}

type harness struct {
	jobs      *fakeJobRepo
	datasets  *fakeDatasetRepo
	notifier  *fakeNotifier
	ensembler *fakeEnsembler
	retriever *fakeRetriever
	store     *memStore
	log       *eventLog
	pipeline  *Pipeline
}

func newHarness(t *testing.T, job models.GenerationJob, cfg func(*PipelineConfig)) *harness {
	t.Helper()

	log := &eventLog{}
	h := &harness{
		jobs:      newFakeJobRepo(log, job),
		datasets:  &fakeDatasetRepo{},
		notifier:  &fakeNotifier{log: log},
		ensembler: &fakeEnsembler{result: &ensemble.Result{ConsensusScore: 100}},
		retriever: &fakeRetriever{},
		store:     &memStore{},
		log:       log,
	}

	pc := PipelineConfig{
		Jobs:      h.jobs,
		Datasets:  h.datasets,
		Adapters:  []provider.Adapter{&pipelineAdapter{rows: []provider.Row{{"name": "alice"}, {"name": "bob"}}}},
		Ensembler: h.ensembler,
		Validator: &fakeValidator{report: ValidationReport{IsValid: true, Score: 100}},
		Compliance: &fakeCompliance{reports: []StandardReport{
			{Standard: "GDPR", Compliant: true, Score: 100},
		}},
		Retriever: h.retriever,
		Store:     h.store,
		Notifier:  h.notifier,
		Logger:    zerolog.Nop(),
	}
	if cfg != nil {
		cfg(&pc)
	}
	h.pipeline = NewPipeline(pc)
	return h
}

func baseJob(tier models.JobTier) models.GenerationJob {
	return models.GenerationJob{
		ID:     "job-1",
		UserID: "user-1",
		Prompt: "customer records",
		Tier:   tier,
		Status: models.JobStatusPending,
	}
}

func TestBasicTierNeverUsesEnsemble(t *testing.T) {
	job := baseJob(models.TierBasic)
	job.AIModels = []string{"gpt-4", "claude-3.5"}
	h := newHarness(t, job, nil)

	if err := h.pipeline.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if h.ensembler.callCount() != 0 {
		t.Errorf("basic tier invoked the ensembler %d times, want 0", h.ensembler.callCount())
	}

	got, _ := h.jobs.Get(context.Background(), job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", got.Status)
	}
	// Basic tier skips validation; quality is the tier base at full consensus.
	if got.QualityScore == nil || *got.QualityScore != 85 {
		t.Errorf("quality score = %v, want 85", got.QualityScore)
	}
	if h.datasets.draftCount() != 1 {
		t.Errorf("draft datasets = %d, want 1", h.datasets.draftCount())
	}

	final := h.notifier.last()
	if final.Status != models.JobStatusCompleted || final.Progress != 100 {
		t.Errorf("final event = %+v, want completed at 100", final)
	}
	if !strings.HasPrefix(final.ResultURL, "https://files.test/datasets/user-1/job-1") {
		t.Errorf("final event result URL = %q", final.ResultURL)
	}
}

func TestEnsembleConsensusScalesQuality(t *testing.T) {
	job := baseJob(models.TierWorkflow)
	job.AIModels = []string{"gpt-4", "claude-3.5"}
	h := newHarness(t, job, func(pc *PipelineConfig) {
		pc.Ensembler = &fakeEnsembler{result: &ensemble.Result{
			Data:           []provider.Row{{"name": "alice"}},
			ConsensusScore: 80,
		}}
	})

	if err := h.pipeline.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got, _ := h.jobs.Get(context.Background(), job.ID)
	// round(94 * 80 / 100) = 75
	if got.QualityScore == nil || *got.QualityScore != 75 {
		t.Errorf("quality score = %v, want 75", got.QualityScore)
	}
}

func TestValidationScoreAveragedIntoQuality(t *testing.T) {
	job := baseJob(models.TierWorkflow)
	job.AIModels = []string{"gpt-4"}
	job.ValidationLevel = "standard"
	h := newHarness(t, job, func(pc *PipelineConfig) {
		pc.Validator = &fakeValidator{report: ValidationReport{IsValid: true, Score: 90}}
	})

	if err := h.pipeline.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got, _ := h.jobs.Get(context.Background(), job.ID)
	// round((94*100/100 + 90) / 2) = 92
	if got.QualityScore == nil || *got.QualityScore != 92 {
		t.Errorf("quality score = %v, want 92", got.QualityScore)
	}
	if len(got.ValidationReport) == 0 {
		t.Error("validation report was not persisted")
	}
}

func TestValidationFailureAbortsRun(t *testing.T) {
	job := baseJob(models.TierWorkflow)
	job.ValidationLevel = "strict"
	h := newHarness(t, job, func(pc *PipelineConfig) {
		pc.Validator = &fakeValidator{report: ValidationReport{
			IsValid: false,
			Score:   40,
			Errors:  []string{"row 0 is missing field \"name\"", "quality score 40.0 below strict threshold 85"},
		}}
	})

	err := h.pipeline.Run(context.Background(), job.ID)
	var vErr *ValidationFailedError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationFailedError, got %v", err)
	}
	if !strings.Contains(vErr.Error(), "; ") {
		t.Errorf("error message should join individual errors: %q", vErr.Error())
	}

	if keys := h.store.uploadedKeys(); len(keys) != 0 {
		t.Errorf("no artifact should be uploaded after validation failure, got %v", keys)
	}
	got, _ := h.jobs.Get(context.Background(), job.ID)
	if got.Status.IsTerminal() {
		t.Errorf("attempt failure must not finalize the job; status = %s", got.Status)
	}
	if len(got.ValidationReport) == 0 {
		t.Error("failing validation report should still be persisted")
	}
}

func TestComplianceFailureDoesNotBlockCompletion(t *testing.T) {
	job := baseJob(models.TierProduction)
	job.ComplianceRequirements = []string{"HIPAA"}
	h := newHarness(t, job, func(pc *PipelineConfig) {
		pc.Compliance = &fakeCompliance{reports: []StandardReport{
			{Standard: "HIPAA", Compliant: false, Score: 60, Violations: []string{"row 1 field \"phone\" matches a restricted HIPAA pattern"}},
		}}
	})

	if err := h.pipeline.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	got, _ := h.jobs.Get(context.Background(), job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("job status = %s, want completed despite non-compliance", got.Status)
	}
	if len(got.ComplianceReport) == 0 {
		t.Error("compliance report was not persisted")
	}
}

func TestCancellationStopsAtStageBoundary(t *testing.T) {
	job := baseJob(models.TierBasic)
	job.KnowledgeDocumentIDs = []string{"doc-1"}
	h := newHarness(t, job, nil)
	// Cancel out-of-band while the knowledge stage runs; the next boundary
	// must notice the flag.
	h.retriever.onFetch = func() {
		if _, err := h.jobs.Cancel(context.Background(), job.ID); err != nil {
			t.Errorf("cancel failed: %v", err)
		}
	}

	if err := h.pipeline.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("cancelled run should return nil, got %v", err)
	}

	got, _ := h.jobs.Get(context.Background(), job.ID)
	if got.Status != models.JobStatusCancelled {
		t.Errorf("job status = %s, want cancelled", got.Status)
	}
	if keys := h.store.uploadedKeys(); len(keys) != 0 {
		t.Errorf("cancelled job must not upload artifacts, got %v", keys)
	}
	for _, event := range h.notifier.all() {
		if event.Status == models.JobStatusCompleted {
			t.Error("cancelled job must not emit a completed event")
		}
	}
}

func TestTerminalJobIsSkipped(t *testing.T) {
	job := baseJob(models.TierBasic)
	job.Status = models.JobStatusCompleted
	h := newHarness(t, job, nil)

	if err := h.pipeline.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if events := h.notifier.all(); len(events) != 0 {
		t.Errorf("terminal job should emit no events, got %d", len(events))
	}
}

func TestProgressWritePrecedesNotification(t *testing.T) {
	job := baseJob(models.TierBasic)
	h := newHarness(t, job, nil)

	if err := h.pipeline.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	entries := h.log.all()
	seenWrites := make(map[string]bool)
	for _, entry := range entries {
		kind, step, _ := strings.Cut(entry, ":")
		switch kind {
		case "write":
			seenWrites[step] = true
		case "notify":
			if step == "Initializing" || step == "Completed" || step == "Cancelled" || step == "Failed" {
				continue
			}
			if !seenWrites[step] {
				t.Errorf("notification for %q emitted before its durable write; log: %v", step, entries)
			}
		}
	}
}

func TestFailJobMarksTerminalAndNotifies(t *testing.T) {
	job := baseJob(models.TierBasic)
	h := newHarness(t, job, nil)

	if err := h.pipeline.FailJob(context.Background(), job.ID, "all attempts exhausted"); err != nil {
		t.Fatalf("FailJob returned error: %v", err)
	}

	got, _ := h.jobs.Get(context.Background(), job.ID)
	if got.Status != models.JobStatusFailed {
		t.Fatalf("job status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "all attempts exhausted" {
		t.Errorf("error message = %v", got.ErrorMessage)
	}

	final := h.notifier.last()
	if final.Status != models.JobStatusFailed || final.ErrorMessage != "all attempts exhausted" {
		t.Errorf("final event = %+v, want failed with message", final)
	}

	// A second call must be a no-op on the terminal job.
	if err := h.pipeline.FailJob(context.Background(), job.ID, "later message"); err != nil {
		t.Fatalf("repeat FailJob returned error: %v", err)
	}
	got, _ = h.jobs.Get(context.Background(), job.ID)
	if *got.ErrorMessage != "all attempts exhausted" {
		t.Errorf("terminal job error message overwritten: %v", *got.ErrorMessage)
	}
}

func TestQualityScoreBlend(t *testing.T) {
	val := 90.0
	cases := []struct {
		name       string
		tier       models.JobTier
		consensus  int
		validation *float64
		want       int
	}{
		{"basic full consensus", models.TierBasic, 100, nil, 85},
		{"workflow full consensus", models.TierWorkflow, 100, nil, 94},
		{"production full consensus", models.TierProduction, 100, nil, 99},
		{"workflow degraded consensus", models.TierWorkflow, 80, nil, 75},
		{"workflow with validation", models.TierWorkflow, 100, &val, 92},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := qualityScore(tc.tier, tc.consensus, tc.validation); got != tc.want {
				t.Errorf("qualityScore(%s, %d) = %d, want %d", tc.tier, tc.consensus, got, tc.want)
			}
		})
	}
}
