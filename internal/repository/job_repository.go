package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/synthara/forge-api/internal/models"
)

var ErrJobNotFound = errors.New("generation job not found")

type JobRepository interface {
	Create(ctx context.Context, job models.GenerationJob) (models.GenerationJob, error)
	Get(ctx context.Context, jobID string) (models.GenerationJob, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.GenerationJob, error)

	// MarkProcessing transitions a pending job into processing. Terminal
	// states are never overwritten.
	MarkProcessing(ctx context.Context, jobID string) error

	// UpdateProgress persists a stage checkpoint. Progress never decreases
	// and terminal jobs are left untouched.
	UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error

	SetValidationReport(ctx context.Context, jobID string, report json.RawMessage) error
	SetComplianceReport(ctx context.Context, jobID string, report json.RawMessage) error

	MarkCompleted(ctx context.Context, jobID, resultURL string, qualityScore, rowCount int, fileSize int64) error
	MarkFailed(ctx context.Context, jobID, errorMessage string) error

	// Cancel flips a non-terminal job to cancelled. Returns false when the
	// job already reached a terminal state.
	Cancel(ctx context.Context, jobID string) (bool, error)
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `
	id, user_id, prompt, tier, schema, ai_models, validation_level,
	compliance_requirements, knowledge_document_ids, status, progress,
	current_step, result_url, quality_score, row_count, file_size,
	error_message, validation_report, compliance_report, created_at, completed_at
`

func (r *jobRepository) Create(ctx context.Context, job models.GenerationJob) (models.GenerationJob, error) {
	var schemaJSON interface{}
	if len(job.Schema) > 0 {
		b, err := json.Marshal(job.Schema)
		if err != nil {
			return job, fmt.Errorf("failed to marshal schema: %w", err)
		}
		schemaJSON = b
	}

	query := `
		INSERT INTO generation_jobs
			(user_id, prompt, tier, schema, ai_models, validation_level, compliance_requirements, knowledge_document_ids, status, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', 0)
		RETURNING id, status, progress, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		job.UserID,
		job.Prompt,
		job.Tier,
		schemaJSON,
		pq.Array(job.AIModels),
		job.ValidationLevel,
		pq.Array(job.ComplianceRequirements),
		pq.Array(job.KnowledgeDocumentIDs),
	).Scan(&job.ID, &job.Status, &job.Progress, &job.CreatedAt)
	return job, err
}

func (r *jobRepository) Get(ctx context.Context, jobID string) (models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1`
	return r.scanJob(r.db.QueryRowContext(ctx, query, jobID))
}

func (r *jobRepository) scanJob(row *sql.Row) (models.GenerationJob, error) {
	var (
		job        models.GenerationJob
		schemaJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Prompt,
		&job.Tier,
		&schemaJSON,
		pq.Array(&job.AIModels),
		&job.ValidationLevel,
		pq.Array(&job.ComplianceRequirements),
		pq.Array(&job.KnowledgeDocumentIDs),
		&job.Status,
		&job.Progress,
		&job.CurrentStep,
		&job.ResultURL,
		&job.QualityScore,
		&job.RowCount,
		&job.FileSize,
		&job.ErrorMessage,
		&job.ValidationReport,
		&job.ComplianceReport,
		&job.CreatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return job, ErrJobNotFound
		}
		return job, err
	}
	if len(schemaJSON) > 0 {
		if err := json.Unmarshal(schemaJSON, &job.Schema); err != nil {
			return job, fmt.Errorf("failed to unmarshal job schema: %w", err)
		}
	}
	return job, nil
}

func (r *jobRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.GenerationJob, 0, limit)
	for rows.Next() {
		var (
			job        models.GenerationJob
			schemaJSON []byte
		)
		if err := rows.Scan(
			&job.ID,
			&job.UserID,
			&job.Prompt,
			&job.Tier,
			&schemaJSON,
			pq.Array(&job.AIModels),
			&job.ValidationLevel,
			pq.Array(&job.ComplianceRequirements),
			pq.Array(&job.KnowledgeDocumentIDs),
			&job.Status,
			&job.Progress,
			&job.CurrentStep,
			&job.ResultURL,
			&job.QualityScore,
			&job.RowCount,
			&job.FileSize,
			&job.ErrorMessage,
			&job.ValidationReport,
			&job.ComplianceReport,
			&job.CreatedAt,
			&job.CompletedAt,
		); err != nil {
			return nil, err
		}
		if len(schemaJSON) > 0 {
			if err := json.Unmarshal(schemaJSON, &job.Schema); err != nil {
				return nil, fmt.Errorf("failed to unmarshal job schema: %w", err)
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepository) MarkProcessing(ctx context.Context, jobID string) error {
	query := `
		UPDATE generation_jobs
		   SET status = 'processing',
		       progress = 0,
		       current_step = 'Initializing',
		       error_message = NULL
		 WHERE id = $1
		   AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	_, err := r.db.ExecContext(ctx, query, jobID)
	return err
}

func (r *jobRepository) UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error {
	query := `
		UPDATE generation_jobs
		   SET progress = GREATEST(progress, $2),
		       current_step = $3
		 WHERE id = $1
		   AND status = 'processing'
	`
	_, err := r.db.ExecContext(ctx, query, jobID, progress, currentStep)
	return err
}

func (r *jobRepository) SetValidationReport(ctx context.Context, jobID string, report json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE generation_jobs SET validation_report = $2 WHERE id = $1`, jobID, []byte(report))
	return err
}

func (r *jobRepository) SetComplianceReport(ctx context.Context, jobID string, report json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE generation_jobs SET compliance_report = $2 WHERE id = $1`, jobID, []byte(report))
	return err
}

func (r *jobRepository) MarkCompleted(ctx context.Context, jobID, resultURL string, qualityScore, rowCount int, fileSize int64) error {
	query := `
		UPDATE generation_jobs
		   SET status = 'completed',
		       progress = 100,
		       current_step = 'Completed',
		       result_url = $2,
		       quality_score = $3,
		       row_count = $4,
		       file_size = $5,
		       completed_at = now()
		 WHERE id = $1
		   AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	_, err := r.db.ExecContext(ctx, query, jobID, resultURL, qualityScore, rowCount, fileSize)
	return err
}

func (r *jobRepository) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE generation_jobs
		   SET status = 'failed',
		       progress = 0,
		       current_step = 'Failed',
		       error_message = NULLIF($2, ''),
		       completed_at = now()
		 WHERE id = $1
		   AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	_, err := r.db.ExecContext(ctx, query, jobID, errorMessage)
	return err
}

func (r *jobRepository) Cancel(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE generation_jobs
		   SET status = 'cancelled',
		       current_step = 'Cancelled',
		       completed_at = now()
		 WHERE id = $1
		   AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	res, err := r.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *jobRepository) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	var status models.JobStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM generation_jobs WHERE id = $1`, jobID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, ErrJobNotFound
		}
		return false, err
	}
	return status == models.JobStatusCancelled, nil
}
