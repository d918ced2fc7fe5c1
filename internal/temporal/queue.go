package temporal

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"
)

// JobQueue enqueues generation jobs for asynchronous processing. Durability,
// single delivery, and retention trimming are provided by the broker.
type JobQueue interface {
	Enqueue(ctx context.Context, params GenerationParams) error
}

type jobQueue struct {
	client tc.Client
	logger zerolog.Logger
}

func NewJobQueue(client tc.Client, logger zerolog.Logger) JobQueue {
	return &jobQueue{
		client: client,
		logger: logger.With().Str("component", "job_queue").Logger(),
	}
}

func (q *jobQueue) Enqueue(ctx context.Context, params GenerationParams) error {
	opts := tc.StartWorkflowOptions{
		ID:        GenerationWorkflowIDPrefix + params.JobID,
		TaskQueue: TaskQueueName,
	}
	run, err := q.client.ExecuteWorkflow(ctx, opts, GenerationWorkflowName, params)
	if err != nil {
		return errors.Wrap(err, "failed to start generation workflow")
	}
	q.logger.Info().
		Str("job_id", params.JobID).
		Str("workflow_id", run.GetID()).
		Msg("generation job enqueued")
	return nil
}
