package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/synthara/forge-api/internal/ensemble"
	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/provider"
	"github.com/synthara/forge-api/internal/realtime"
	"github.com/synthara/forge-api/internal/repository"
)

// Fixed progress checkpoints for the pipeline stages.
const (
	progressInit       = 0
	progressKnowledge  = 5
	progressGeneration = 20
	progressConsensus  = 30
	progressValidation = 60
	progressCompliance = 75
	progressFormatting = 85
	progressUpload     = 92
	progressDone       = 100
)

type PipelineConfig struct {
	Jobs         repository.JobRepository
	Datasets     repository.DatasetRepository
	Adapters     []provider.Adapter
	Ensembler    Ensembler
	Validator    Validator
	Compliance   ComplianceChecker
	Retriever    ContextRetriever
	Store        ObjectStore
	Notifier     Notifier
	Logger       zerolog.Logger
	StageTimeout time.Duration
	ResultURLTTL time.Duration
}

// Pipeline drives a generation job through its stages. One Run call is one
// execution attempt; the queue layer retries failed attempts.
type Pipeline struct {
	cfg    PipelineConfig
	logger zerolog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = 2 * time.Minute
	}
	if cfg.ResultURLTTL == 0 {
		cfg.ResultURLTTL = 24 * time.Hour
	}
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "generation_pipeline").Logger(),
	}
}

// Run executes one generation attempt for the job. A cancelled job returns
// nil without touching its state. Any stage error is returned to the caller
// for queue-level retry.
func (p *Pipeline) Run(ctx context.Context, jobID string) error {
	job, err := p.cfg.Jobs.Get(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, "failed to fetch job")
	}
	if job.Status.IsTerminal() {
		p.logger.Info().Str("job_id", jobID).Str("status", string(job.Status)).Msg("job already terminal, skipping")
		return nil
	}

	run := &jobRun{p: p, job: &job, consensus: 100}
	if err := run.execute(ctx); err != nil {
		if errors.Is(err, ErrCancelled) {
			p.logger.Info().Str("job_id", jobID).Msg("job cancelled mid-run")
			return nil
		}
		return err
	}
	return nil
}

// FailJob marks the job failed after queue retries are exhausted and pushes
// the terminal event.
func (p *Pipeline) FailJob(ctx context.Context, jobID, message string) error {
	job, err := p.cfg.Jobs.Get(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, "failed to fetch job for failure marking")
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if err := p.cfg.Jobs.MarkFailed(ctx, jobID, message); err != nil {
		return errors.Wrap(err, "failed to mark job failed")
	}
	p.cfg.Notifier.EmitJobProgress(jobID, realtime.JobProgress{
		JobID:        jobID,
		UserID:       job.UserID,
		Status:       models.JobStatusFailed,
		Progress:     0,
		CurrentStep:  "Failed",
		ErrorMessage: message,
	})
	return nil
}

// jobRun holds the mutable state of a single execution attempt.
type jobRun struct {
	p   *Pipeline
	job *models.GenerationJob

	knowledgeCtx string
	rows         []provider.Row
	consensus    int
	valScore     *float64
	artifact     []byte
	resultURL    string
}

func (r *jobRun) execute(ctx context.Context) error {
	if err := r.p.cfg.Jobs.MarkProcessing(ctx, r.job.ID); err != nil {
		return errors.Wrap(err, "failed to mark job processing")
	}
	r.notify(models.JobStatusProcessing, progressInit, "Initializing")

	if len(r.job.KnowledgeDocumentIDs) > 0 {
		if err := r.stage(ctx, progressKnowledge, "Fetching knowledge context", r.fetchContext); err != nil {
			return err
		}
	}

	if r.singleModel() {
		if err := r.stage(ctx, progressGeneration, "Generating data", r.generateSingle); err != nil {
			return err
		}
	} else {
		if err := r.stage(ctx, progressGeneration, "Generating data across providers", r.generateEnsemble); err != nil {
			return err
		}
		if err := r.stage(ctx, progressConsensus, "Computing consensus", r.recordConsensus); err != nil {
			return err
		}
	}

	if r.job.ValidationLevel != "" && r.job.Tier != models.TierBasic {
		if err := r.stage(ctx, progressValidation, "Validating dataset", r.validate); err != nil {
			return err
		}
	}

	if len(r.job.ComplianceRequirements) > 0 {
		if err := r.stage(ctx, progressCompliance, "Checking compliance", r.checkCompliance); err != nil {
			return err
		}
	}

	if err := r.stage(ctx, progressFormatting, "Formatting export", r.format); err != nil {
		return err
	}
	if err := r.stage(ctx, progressUpload, "Uploading artifact", r.upload); err != nil {
		return err
	}

	return r.complete(ctx)
}

// stage runs one pipeline step: cancellation check, durable progress write,
// progress event, then the step function under a bounded timeout. State is
// persisted before the event is emitted so a polling client never observes
// progress without a durable backing record.
func (r *jobRun) stage(ctx context.Context, progress int, step string, fn func(context.Context) error) error {
	cancelled, err := r.p.cfg.Jobs.IsCancelled(ctx, r.job.ID)
	if err != nil {
		return errors.Wrap(err, "failed to check cancellation")
	}
	if cancelled {
		return ErrCancelled
	}

	if err := r.p.cfg.Jobs.UpdateProgress(ctx, r.job.ID, progress, step); err != nil {
		return errors.Wrapf(err, "failed to persist progress for stage %q", step)
	}
	r.notify(models.JobStatusProcessing, progress, step)

	sctx, cancel := context.WithTimeout(ctx, r.p.cfg.StageTimeout)
	defer cancel()
	if err := fn(sctx); err != nil {
		return errors.Wrapf(err, "stage %q failed", step)
	}
	return nil
}

func (r *jobRun) notify(status models.JobStatus, progress int, step string) {
	r.p.cfg.Notifier.EmitJobProgress(r.job.ID, realtime.JobProgress{
		JobID:       r.job.ID,
		UserID:      r.job.UserID,
		Status:      status,
		Progress:    progress,
		CurrentStep: step,
	})
}

// singleModel reports whether the single-provider path applies: basic tier
// jobs never use the ensemble, nor do jobs requesting at most one model.
func (r *jobRun) singleModel() bool {
	return r.job.Tier == models.TierBasic || len(r.job.AIModels) <= 1
}

func (r *jobRun) fetchContext(ctx context.Context) error {
	text, err := r.p.cfg.Retriever.FetchContext(ctx, r.job.KnowledgeDocumentIDs)
	if err != nil {
		return errors.Wrap(err, "failed to fetch knowledge context")
	}
	r.knowledgeCtx = text
	return nil
}

func (r *jobRun) request() provider.GenerateRequest {
	return provider.GenerateRequest{
		Prompt:   r.job.Prompt,
		Schema:   r.job.Schema,
		Tier:     r.job.Tier,
		RowCount: r.job.Tier.RowCeiling(),
		Context:  r.knowledgeCtx,
	}
}

func (r *jobRun) generateSingle(ctx context.Context) error {
	modelID := "gpt-4"
	if len(r.job.AIModels) > 0 {
		resolved := ensemble.ResolveModels(r.job.AIModels)
		if len(resolved) > 0 {
			modelID = resolved[0]
		}
	}
	adapter, err := provider.Route(r.p.cfg.Adapters, modelID)
	if err != nil {
		return err
	}

	req := r.request()
	req.Model = modelID
	res, err := adapter.Generate(ctx, req)
	if err != nil {
		return err
	}
	r.rows = res.Rows
	r.consensus = 100
	return nil
}

func (r *jobRun) generateEnsemble(ctx context.Context) error {
	res, err := r.p.cfg.Ensembler.GenerateWithConsensus(ctx, r.request(), r.job.AIModels)
	if err != nil {
		return err
	}
	r.rows = res.Data
	r.consensus = res.ConsensusScore
	return nil
}

func (r *jobRun) recordConsensus(_ context.Context) error {
	r.p.logger.Info().
		Str("job_id", r.job.ID).
		Int("consensus_score", r.consensus).
		Int("rows", len(r.rows)).
		Msg("ensemble consensus computed")
	return nil
}

func (r *jobRun) validate(ctx context.Context) error {
	report := r.p.cfg.Validator.ValidateDataset(r.rows, r.job.Schema, r.job.ValidationLevel)

	raw, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to marshal validation report")
	}
	if err := r.p.cfg.Jobs.SetValidationReport(ctx, r.job.ID, raw); err != nil {
		return errors.Wrap(err, "failed to persist validation report")
	}

	if !report.IsValid {
		return &ValidationFailedError{Errors: report.Errors}
	}
	score := report.Score
	r.valScore = &score
	return nil
}

func (r *jobRun) checkCompliance(ctx context.Context) error {
	reports := r.p.cfg.Compliance.CheckCompliance(r.rows, r.job.ComplianceRequirements)

	raw, err := json.Marshal(reports)
	if err != nil {
		return errors.Wrap(err, "failed to marshal compliance report")
	}
	if err := r.p.cfg.Jobs.SetComplianceReport(ctx, r.job.ID, raw); err != nil {
		return errors.Wrap(err, "failed to persist compliance report")
	}

	// Non-compliance never blocks completion; it is logged for the report.
	for _, rep := range reports {
		if !rep.Compliant {
			r.p.logger.Warn().
				Str("job_id", r.job.ID).
				Str("standard", rep.Standard).
				Strs("violations", rep.Violations).
				Msg("dataset not compliant with requested standard")
		}
	}
	return nil
}

func (r *jobRun) format(_ context.Context) error {
	artifact, err := exportCSV(r.job.Schema, r.rows)
	if err != nil {
		return errors.Wrap(err, "failed to format export")
	}
	r.artifact = artifact
	return nil
}

func (r *jobRun) upload(ctx context.Context) error {
	key := fmt.Sprintf("datasets/%s/%s.csv", r.job.UserID, r.job.ID)
	if err := r.p.cfg.Store.Upload(ctx, key, bytes.NewReader(r.artifact), int64(len(r.artifact)), "text/csv"); err != nil {
		return errors.Wrap(err, "failed to upload artifact")
	}

	url, err := r.p.cfg.Store.PresignedURL(ctx, key, r.p.cfg.ResultURLTTL)
	if err != nil {
		return errors.Wrap(err, "failed to presign result URL")
	}
	r.resultURL = url

	preview := r.rows
	if len(preview) > 3 {
		preview = preview[:3]
	}
	previewJSON, err := json.Marshal(preview)
	if err != nil {
		return errors.Wrap(err, "failed to marshal preview")
	}

	_, err = r.p.cfg.Datasets.CreateDraft(ctx, models.Dataset{
		CreatorID:   r.job.UserID,
		JobID:       &r.job.ID,
		Title:       truncate(r.job.Prompt, 120),
		Description: fmt.Sprintf("Synthetic dataset generated from prompt (%s tier)", r.job.Tier),
		ResultURL:   url,
		Preview:     previewJSON,
		RowCount:    len(r.rows),
		FileSize:    int64(len(r.artifact)),
	})
	return errors.Wrap(err, "failed to create draft dataset")
}

func (r *jobRun) complete(ctx context.Context) error {
	cancelled, err := r.p.cfg.Jobs.IsCancelled(ctx, r.job.ID)
	if err != nil {
		return errors.Wrap(err, "failed to check cancellation")
	}
	if cancelled {
		return ErrCancelled
	}

	quality := qualityScore(r.job.Tier, r.consensus, r.valScore)
	if err := r.p.cfg.Jobs.MarkCompleted(ctx, r.job.ID, r.resultURL, quality, len(r.rows), int64(len(r.artifact))); err != nil {
		return errors.Wrap(err, "failed to mark job completed")
	}

	r.p.cfg.Notifier.EmitJobProgress(r.job.ID, realtime.JobProgress{
		JobID:        r.job.ID,
		UserID:       r.job.UserID,
		Status:       models.JobStatusCompleted,
		Progress:     progressDone,
		CurrentStep:  "Completed",
		ResultURL:    r.resultURL,
		QualityScore: quality,
	})
	r.p.logger.Info().
		Str("job_id", r.job.ID).
		Int("quality_score", quality).
		Int("rows", len(r.rows)).
		Msg("generation job completed")
	return nil
}

// qualityScore blends the tier base score with ensemble agreement, then
// averages with the validation score when one was computed.
func qualityScore(tier models.JobTier, consensus int, validation *float64) int {
	score := float64(tier.BaseQualityScore()) * float64(consensus) / 100
	if validation != nil {
		score = (score + *validation) / 2
	}
	return int(math.Round(score))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
