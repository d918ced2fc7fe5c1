package generation

import (
	"context"
	"io"
	"time"

	"github.com/synthara/forge-api/internal/ensemble"
	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/provider"
	"github.com/synthara/forge-api/internal/realtime"
)

// Ensembler fans a generation request out to multiple providers and merges
// the results.
type Ensembler interface {
	GenerateWithConsensus(ctx context.Context, req provider.GenerateRequest, modelIDs []string) (*ensemble.Result, error)
}

// Notifier pushes job-progress events to subscribed clients. Delivery is
// advisory; the pipeline never fails on a notification error.
type Notifier interface {
	EmitJobProgress(jobID string, event realtime.JobProgress)
}

// ObjectStore is the artifact storage collaborator.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ValidationReport is the outcome of the structural/statistical checks.
type ValidationReport struct {
	IsValid  bool     `json:"is_valid"`
	Score    float64  `json:"score"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type Validator interface {
	ValidateDataset(rows []provider.Row, schema []models.FieldDef, level string) ValidationReport
}

// StandardReport is the outcome of one compliance standard check.
type StandardReport struct {
	Standard   string   `json:"standard"`
	Compliant  bool     `json:"compliant"`
	Score      float64  `json:"score"`
	Violations []string `json:"violations,omitempty"`
}

type ComplianceChecker interface {
	CheckCompliance(rows []provider.Row, standards []string) []StandardReport
}

// ContextRetriever assembles retrieval context from referenced knowledge
// documents.
type ContextRetriever interface {
	FetchContext(ctx context.Context, documentIDs []string) (string, error)
}
