package temporal

import "time"

// TaskQueueName is the Temporal task queue for generation jobs.
const TaskQueueName = "FORGE_GENERATION"

// GenerationWorkflowName is the registered name of the generation workflow.
// The queue references workflows by name to avoid importing them.
const GenerationWorkflowName = "GenerationWorkflow"

// GenerationWorkflowIDPrefix is the prefix used for generation workflow IDs.
const GenerationWorkflowIDPrefix = "forge-generation-"

// DefaultRunTimeout bounds one full pipeline attempt.
const DefaultRunTimeout = 30 * time.Minute

// Retry policy for generation attempts: fixed maximum attempts with
// exponential backoff. Failure is terminal only after these are exhausted.
const (
	MaxGenerationAttempts = 3
	RetryBaseInterval     = 5 * time.Second
	RetryBackoffFactor    = 2.0
)

// GenerationParams is the workflow input for one generation job.
type GenerationParams struct {
	JobID  string
	UserID string
}
