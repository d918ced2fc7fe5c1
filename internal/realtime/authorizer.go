package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/synthara/forge-api/internal/repository"
)

const (
	CodeForbidden      = "forbidden"
	CodeUnknownChannel = "unknown_channel"
)

// Identity of a connected realtime client, extracted from its auth token.
type Identity struct {
	UserID string
	Admin  bool
}

// SubscriptionError is surfaced to the requesting client only; it never
// affects job processing.
type SubscriptionError struct {
	Channel string `json:"channel"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription to %q rejected: %s", e.Channel, e.Message)
}

// ChannelAuthorizer decides whether a client may join a channel.
type ChannelAuthorizer interface {
	Authorize(ctx context.Context, id Identity, channel string) error
}

// Authorizer implements the channel-pattern rules:
//   - user:<id>       only the user itself
//   - job:<id>        the job's owner or an admin
//   - bonding:<dsID>  the dataset's creator or a purchaser
//   - dataset:<id>    anyone when publicly active, otherwise the creator
type Authorizer struct {
	jobs     repository.JobRepository
	datasets repository.DatasetRepository
}

func NewAuthorizer(jobs repository.JobRepository, datasets repository.DatasetRepository) *Authorizer {
	return &Authorizer{jobs: jobs, datasets: datasets}
}

func (a *Authorizer) Authorize(ctx context.Context, id Identity, channel string) error {
	prefix, rest, ok := strings.Cut(channel, ":")
	if !ok || rest == "" {
		return &SubscriptionError{Channel: channel, Code: CodeUnknownChannel, Message: "unrecognized channel pattern"}
	}

	switch prefix {
	case "user":
		if rest == id.UserID {
			return nil
		}
		return forbidden(channel, "cannot join another user's channel")

	case "job":
		job, err := a.jobs.Get(ctx, rest)
		if err != nil {
			return forbidden(channel, "job not found or inaccessible")
		}
		if job.UserID == id.UserID || id.Admin {
			return nil
		}
		return forbidden(channel, "not the job owner")

	case "bonding":
		ds, err := a.datasets.Get(ctx, rest)
		if err != nil {
			return forbidden(channel, "dataset not found or inaccessible")
		}
		if ds.CreatorID == id.UserID {
			return nil
		}
		purchased, err := a.datasets.HasPurchase(ctx, rest, id.UserID)
		if err != nil {
			return forbidden(channel, "purchase lookup failed")
		}
		if purchased {
			return nil
		}
		return forbidden(channel, "requires dataset ownership or purchase")

	case "dataset":
		ds, err := a.datasets.Get(ctx, rest)
		if err != nil {
			return forbidden(channel, "dataset not found or inaccessible")
		}
		if ds.Public() || ds.CreatorID == id.UserID {
			return nil
		}
		return forbidden(channel, "dataset is not public")
	}

	return &SubscriptionError{Channel: channel, Code: CodeUnknownChannel, Message: "unrecognized channel pattern"}
}

func forbidden(channel, message string) *SubscriptionError {
	return &SubscriptionError{Channel: channel, Code: CodeForbidden, Message: message}
}
