package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/synthara/forge-api/internal/models"
)

var ErrDatasetNotFound = errors.New("dataset not found")

type DatasetRepository interface {
	CreateDraft(ctx context.Context, ds models.Dataset) (models.Dataset, error)
	Get(ctx context.Context, datasetID string) (models.Dataset, error)
	HasPurchase(ctx context.Context, datasetID, userID string) (bool, error)
}

type datasetRepository struct {
	db *sql.DB
}

func NewDatasetRepository(db *sql.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

func (r *datasetRepository) CreateDraft(ctx context.Context, ds models.Dataset) (models.Dataset, error) {
	query := `
		INSERT INTO datasets (creator_id, job_id, title, description, result_url, preview, row_count, file_size, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'draft')
		RETURNING id, status, created_at, updated_at
	`
	var preview interface{}
	if len(ds.Preview) > 0 {
		preview = []byte(ds.Preview)
	}
	err := r.db.QueryRowContext(ctx, query,
		ds.CreatorID,
		ds.JobID,
		ds.Title,
		ds.Description,
		ds.ResultURL,
		preview,
		ds.RowCount,
		ds.FileSize,
	).Scan(&ds.ID, &ds.Status, &ds.CreatedAt, &ds.UpdatedAt)
	return ds, err
}

func (r *datasetRepository) Get(ctx context.Context, datasetID string) (models.Dataset, error) {
	query := `
		SELECT id, creator_id, job_id, title, description, result_url, preview, row_count, file_size, status, created_at, updated_at
		FROM datasets
		WHERE id = $1
	`
	var (
		ds      models.Dataset
		preview []byte
	)
	err := r.db.QueryRowContext(ctx, query, datasetID).Scan(
		&ds.ID,
		&ds.CreatorID,
		&ds.JobID,
		&ds.Title,
		&ds.Description,
		&ds.ResultURL,
		&preview,
		&ds.RowCount,
		&ds.FileSize,
		&ds.Status,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return ds, ErrDatasetNotFound
		}
		return ds, err
	}
	ds.Preview = json.RawMessage(preview)
	return ds, nil
}

func (r *datasetRepository) HasPurchase(ctx context.Context, datasetID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM dataset_purchases WHERE dataset_id = $1 AND user_id = $2)`,
		datasetID, userID,
	).Scan(&exists)
	return exists, err
}
