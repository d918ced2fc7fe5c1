package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/repository"
)

type stubJobRepo struct {
	repository.JobRepository
	jobs map[string]models.GenerationJob
}

func (r *stubJobRepo) Get(_ context.Context, jobID string) (models.GenerationJob, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return job, repository.ErrJobNotFound
	}
	return job, nil
}

type stubDatasetRepo struct {
	repository.DatasetRepository
	datasets  map[string]models.Dataset
	purchases map[string]string
}

func (r *stubDatasetRepo) Get(_ context.Context, datasetID string) (models.Dataset, error) {
	ds, ok := r.datasets[datasetID]
	if !ok {
		return ds, repository.ErrDatasetNotFound
	}
	return ds, nil
}

func (r *stubDatasetRepo) HasPurchase(_ context.Context, datasetID, userID string) (bool, error) {
	return r.purchases[datasetID] == userID, nil
}

func newTestAuthorizer() *Authorizer {
	jobs := &stubJobRepo{jobs: map[string]models.GenerationJob{
		"job-1": {ID: "job-1", UserID: "owner"},
	}}
	datasets := &stubDatasetRepo{
		datasets: map[string]models.Dataset{
			"ds-public": {ID: "ds-public", CreatorID: "creator", Status: models.DatasetStatusActive},
			"ds-draft":  {ID: "ds-draft", CreatorID: "creator", Status: models.DatasetStatusDraft},
		},
		purchases: map[string]string{"ds-public": "buyer"},
	}
	return NewAuthorizer(jobs, datasets)
}

func TestAuthorizeChannels(t *testing.T) {
	a := newTestAuthorizer()
	ctx := context.Background()

	cases := []struct {
		name     string
		identity Identity
		channel  string
		wantCode string
	}{
		{"own user channel", Identity{UserID: "owner"}, "user:owner", ""},
		{"other user channel", Identity{UserID: "owner"}, "user:someone", CodeForbidden},
		{"job owner", Identity{UserID: "owner"}, "job:job-1", ""},
		{"job stranger", Identity{UserID: "stranger"}, "job:job-1", CodeForbidden},
		{"job admin", Identity{UserID: "stranger", Admin: true}, "job:job-1", ""},
		{"job missing", Identity{UserID: "owner"}, "job:nope", CodeForbidden},
		{"bonding creator", Identity{UserID: "creator"}, "bonding:ds-public", ""},
		{"bonding purchaser", Identity{UserID: "buyer"}, "bonding:ds-public", ""},
		{"bonding stranger", Identity{UserID: "stranger"}, "bonding:ds-public", CodeForbidden},
		{"public dataset", Identity{UserID: "stranger"}, "dataset:ds-public", ""},
		{"draft dataset stranger", Identity{UserID: "stranger"}, "dataset:ds-draft", CodeForbidden},
		{"draft dataset creator", Identity{UserID: "creator"}, "dataset:ds-draft", ""},
		{"unknown prefix", Identity{UserID: "owner"}, "metrics:all", CodeUnknownChannel},
		{"no separator", Identity{UserID: "owner"}, "jobs", CodeUnknownChannel},
		{"empty suffix", Identity{UserID: "owner"}, "job:", CodeUnknownChannel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := a.Authorize(ctx, tc.identity, tc.channel)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("expected access, got %v", err)
				}
				return
			}
			var subErr *SubscriptionError
			if !errors.As(err, &subErr) {
				t.Fatalf("expected SubscriptionError, got %v", err)
			}
			if subErr.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", subErr.Code, tc.wantCode)
			}
			if subErr.Channel != tc.channel {
				t.Errorf("error channel = %q, want %q", subErr.Channel, tc.channel)
			}
		})
	}
}

func TestBusDeliversAndDrops(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("job:1")
	defer cancel()

	bus.publish("job:1", Envelope{Event: "job-progress"})
	bus.publish("job:2", Envelope{Event: "job-progress"})

	select {
	case env := <-ch:
		if env.Event != "job-progress" {
			t.Errorf("event = %q", env.Event)
		}
	default:
		t.Fatal("expected a delivered event")
	}
	select {
	case env := <-ch:
		t.Fatalf("unexpected cross-channel delivery: %+v", env)
	default:
	}

	// Overfill the buffer; publish must never block.
	for i := 0; i < 100; i++ {
		bus.publish("job:1", Envelope{Event: "job-progress"})
	}
}
