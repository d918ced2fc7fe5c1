package ensemble

import (
	"context"
	"encoding/json"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/synthara/forge-api/internal/provider"
)

// Logical aliases expand to fixed default sets of concrete provider ids.
var modelAliases = map[string][]string{
	"ensemble-validator": {"gpt-4", "claude-3.5", "gemini-pro"},
}

// Report carries per-provider response metadata for the caller.
type Report struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
	RowCount   int    `json:"row_count"`
}

// Result of an ensemble generation: merged rows, an agreement score, and
// per-provider reports.
type Result struct {
	Data []provider.Row
	// ConsensusScore is the percentage of field-value slots where at least
	// two providers agreed, 0-100.
	ConsensusScore int
	Reports        []Report
}

type Coordinator struct {
	adapters []provider.Adapter
	logger   zerolog.Logger
}

func NewCoordinator(logger zerolog.Logger, adapters ...provider.Adapter) *Coordinator {
	return &Coordinator{
		adapters: adapters,
		logger:   logger.With().Str("component", "ensemble").Logger(),
	}
}

// ResolveModels expands aliases and deduplicates the id list, preserving
// first-occurrence order.
func ResolveModels(modelIDs []string) []string {
	var resolved []string
	seen := make(map[string]struct{})
	appendID := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		resolved = append(resolved, id)
	}
	for _, id := range modelIDs {
		if expansion, ok := modelAliases[id]; ok {
			for _, e := range expansion {
				appendID(e)
			}
			continue
		}
		appendID(id)
	}
	return resolved
}

// GenerateWithConsensus fans the request out to one adapter per resolved
// model id, waits for the whole batch, and merges the outputs by per-field
// majority vote. Any single adapter failure fails the ensemble.
func (c *Coordinator) GenerateWithConsensus(ctx context.Context, req provider.GenerateRequest, modelIDs []string) (*Result, error) {
	resolved := ResolveModels(modelIDs)

	results := make([]*provider.Result, len(resolved))
	g, gctx := errgroup.WithContext(ctx)
	for i, modelID := range resolved {
		adapter, err := provider.Route(c.adapters, modelID)
		if err != nil {
			return nil, err
		}
		i, modelID, adapter := i, modelID, adapter
		g.Go(func() error {
			r := req
			r.Model = modelID
			res, err := adapter.Generate(gctx, r)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reports := make([]Report, len(results))
	for i, res := range results {
		reports[i] = Report{
			Provider:   res.Provider,
			Model:      res.Model,
			TokensUsed: res.TokensUsed,
			RowCount:   len(res.Rows),
		}
	}

	// A lone model has nothing to disagree with; its data passes through
	// verbatim with a full score.
	if len(results) == 1 {
		return &Result{Data: results[0].Rows, ConsensusScore: 100, Reports: reports}, nil
	}

	merged, score := mergeByMajority(results)
	c.logger.Debug().Int("providers", len(results)).Int("consensus", score).Msg("merged ensemble results")
	return &Result{Data: merged, ConsensusScore: score, Reports: reports}, nil
}

// voteCount tracks occurrences of distinct values in first-seen order so
// ties break deterministically.
type voteCount struct {
	order  []string
	counts map[string]int
	values map[string]interface{}
}

func newVoteCount() *voteCount {
	return &voteCount{counts: make(map[string]int), values: make(map[string]interface{})}
}

func (v *voteCount) add(value interface{}) {
	key := canonicalKey(value)
	if _, ok := v.counts[key]; !ok {
		v.order = append(v.order, key)
		v.values[key] = value
	}
	v.counts[key]++
}

// winner returns the value with the highest count; on equal counts the
// first-seen value wins.
func (v *voteCount) winner() (interface{}, int) {
	best := ""
	bestCount := 0
	for _, key := range v.order {
		if v.counts[key] > bestCount {
			best = key
			bestCount = v.counts[key]
		}
	}
	if best == "" {
		return nil, 0
	}
	return v.values[best], bestCount
}

func canonicalKey(value interface{}) string {
	b, err := json.Marshal(value)
	if err != nil {
		return "unmarshalable"
	}
	return string(b)
}

// mergeByMajority merges per-field by majority vote across providers. The
// first provider is the primary: merged output has its row count and its
// field keys; providers missing a key for a row simply don't vote on it.
func mergeByMajority(results []*provider.Result) ([]provider.Row, int) {
	primary := results[0]
	if len(primary.Rows) == 0 {
		return nil, 100
	}

	merged := make([]provider.Row, len(primary.Rows))
	totalSlots := 0
	agreedSlots := 0

	for i, primaryRow := range primary.Rows {
		out := make(provider.Row, len(primaryRow))
		for key := range primaryRow {
			totalSlots++
			votes := newVoteCount()
			for _, res := range results {
				if i >= len(res.Rows) {
					continue
				}
				if value, ok := res.Rows[i][key]; ok {
					votes.add(value)
				}
			}
			value, count := votes.winner()
			if count == 0 {
				// No provider supplied the field; fall back to the
				// primary's value.
				value = primaryRow[key]
			}
			if count >= 2 {
				agreedSlots++
			}
			out[key] = value
		}
		merged[i] = out
	}

	if totalSlots == 0 {
		return merged, 100
	}
	score := int(math.Round(float64(agreedSlots) / float64(totalSlots) * 100))
	return merged, score
}
