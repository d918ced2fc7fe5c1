package models

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status may never be mutated again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type JobTier string

const (
	TierBasic      JobTier = "basic"
	TierWorkflow   JobTier = "workflow"
	TierProduction JobTier = "production"
)

func (t JobTier) Valid() bool {
	switch t {
	case TierBasic, TierWorkflow, TierProduction:
		return true
	}
	return false
}

// RowCeiling returns the maximum number of rows generated for the tier.
// The ceiling is tier-determined and not user-overridable.
func (t JobTier) RowCeiling() int {
	switch t {
	case TierWorkflow:
		return 500
	case TierProduction:
		return 1000
	default:
		return 100
	}
}

// BaseQualityScore is the starting score before consensus and validation
// adjustments are applied.
func (t JobTier) BaseQualityScore() int {
	switch t {
	case TierWorkflow:
		return 94
	case TierProduction:
		return 99
	default:
		return 85
	}
}

// FieldDef describes one column of the requested dataset schema.
type FieldDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type GenerationJob struct {
	ID                     string          `json:"id" db:"id"`
	UserID                 string          `json:"userId" db:"user_id"`
	Prompt                 string          `json:"prompt" db:"prompt"`
	Tier                   JobTier         `json:"tier" db:"tier"`
	Schema                 []FieldDef      `json:"schema,omitempty" db:"schema"`
	AIModels               []string        `json:"aiModels" db:"ai_models"`
	ValidationLevel        string          `json:"validationLevel,omitempty" db:"validation_level"`
	ComplianceRequirements []string        `json:"complianceRequirements,omitempty" db:"compliance_requirements"`
	KnowledgeDocumentIDs   []string        `json:"knowledgeDocumentIds,omitempty" db:"knowledge_document_ids"`
	Status                 JobStatus       `json:"status" db:"status"`
	Progress               int             `json:"progress" db:"progress"`
	CurrentStep            string          `json:"currentStep" db:"current_step"`
	ResultURL              *string         `json:"resultUrl,omitempty" db:"result_url"`
	QualityScore           *int            `json:"qualityScore,omitempty" db:"quality_score"`
	RowCount               *int            `json:"rowCount,omitempty" db:"row_count"`
	FileSize               *int64          `json:"fileSize,omitempty" db:"file_size"`
	ErrorMessage           *string         `json:"errorMessage,omitempty" db:"error_message"`
	ValidationReport       json.RawMessage `json:"validationReport,omitempty" db:"validation_report"`
	ComplianceReport       json.RawMessage `json:"complianceReport,omitempty" db:"compliance_report"`
	CreatedAt              time.Time       `json:"createdAt" db:"created_at"`
	CompletedAt            *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
}
