package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/synthara/forge-api/internal/generation"
	"github.com/synthara/forge-api/internal/temporal"
)

// ErrTypeValidationFailed marks validation failures as non-retryable: the
// dataset will fail validation identically on every attempt.
const ErrTypeValidationFailed = "ValidationFailed"

type Activities struct {
	Pipeline *generation.Pipeline
}

// RunGenerationActivity executes one full pipeline attempt. Errors propagate
// to Temporal for retry under the workflow's policy.
func (a *Activities) RunGenerationActivity(ctx context.Context, params temporal.GenerationParams) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Running generation pipeline", "JobID", params.JobID)

	err := a.Pipeline.Run(ctx, params.JobID)
	if err == nil {
		return nil
	}

	var vErr *generation.ValidationFailedError
	if errors.As(err, &vErr) {
		return sdktemporal.NewNonRetryableApplicationError(vErr.Error(), ErrTypeValidationFailed, err)
	}
	logger.Error("Generation attempt failed", "JobID", params.JobID, "error", err)
	return err
}

// MarkJobFailedActivity records terminal failure after retries are exhausted.
func (a *Activities) MarkJobFailedActivity(ctx context.Context, params temporal.GenerationParams, message string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Marking job failed", "JobID", params.JobID)
	return a.Pipeline.FailJob(ctx, params.JobID, message)
}
