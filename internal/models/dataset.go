package models

import (
	"encoding/json"
	"time"
)

type DatasetStatus string

const (
	DatasetStatusDraft  DatasetStatus = "draft"
	DatasetStatusActive DatasetStatus = "active"
)

type Dataset struct {
	ID          string          `json:"id" db:"id"`
	CreatorID   string          `json:"creator_id" db:"creator_id"`
	JobID       *string         `json:"job_id,omitempty" db:"job_id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	ResultURL   string          `json:"result_url" db:"result_url"`
	Preview     json.RawMessage `json:"preview,omitempty" db:"preview"`
	RowCount    int             `json:"row_count" db:"row_count"`
	FileSize    int64           `json:"file_size" db:"file_size"`
	Status      DatasetStatus   `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Public reports whether the dataset is visible to users other than its creator.
func (d Dataset) Public() bool {
	return d.Status == DatasetStatusActive
}

type KnowledgeDocument struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
