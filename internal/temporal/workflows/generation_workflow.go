package workflows

import (
	"errors"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	forgetemporal "github.com/synthara/forge-api/internal/temporal"
	"github.com/synthara/forge-api/internal/temporal/activities"
)

// GenerationWorkflow drives one generation job. The whole pipeline runs as a
// single activity so one activity attempt equals one execution attempt; the
// retry policy gives the queue-level retry semantics. Only after retries are
// exhausted is the job marked failed.
func GenerationWorkflow(ctx workflow.Context, params forgetemporal.GenerationParams) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting generation workflow", "JobID", params.JobID)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: forgetemporal.DefaultRunTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    forgetemporal.RetryBaseInterval,
			BackoffCoefficient: forgetemporal.RetryBackoffFactor,
			MaximumAttempts:    forgetemporal.MaxGenerationAttempts,
			NonRetryableErrorTypes: []string{
				activities.ErrTypeValidationFailed,
			},
		},
	})

	err := workflow.ExecuteActivity(runCtx, a.RunGenerationActivity, params).Get(runCtx, nil)
	if err == nil {
		logger.Info("Generation workflow completed", "JobID", params.JobID)
		return nil
	}

	logger.Error("Generation attempts exhausted, marking job failed", "JobID", params.JobID, "error", err)

	failCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 5},
	})
	message := err.Error()
	var appErr *sdktemporal.ApplicationError
	if errors.As(err, &appErr) {
		message = appErr.Message()
	}
	if markErr := workflow.ExecuteActivity(failCtx, a.MarkJobFailedActivity, params, message).Get(failCtx, nil); markErr != nil {
		logger.Error("Failed to mark job failed", "JobID", params.JobID, "error", markErr)
		return markErr
	}
	return err
}
