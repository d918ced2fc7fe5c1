package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/synthara/forge-api/internal/models"
)

// Row is one generated record, mapping field names to values.
type Row map[string]interface{}

// GenerateRequest carries everything an adapter needs to produce rows.
type GenerateRequest struct {
	Prompt   string
	Schema   []models.FieldDef
	Tier     models.JobTier
	RowCount int
	Model    string
	// Context holds retrieved knowledge snippets embedded into the system
	// prompt, if any.
	Context string
}

// Result is the canonical, provider-tagged response. Downstream merge logic
// never branches on provider identity; everything it needs is here.
type Result struct {
	Rows       []Row
	Provider   string
	Model      string
	TokensUsed int
}

// Adapter is the uniform interface over one text-generation backend.
type Adapter interface {
	Name() string
	// Supports reports whether the adapter handles the given model id.
	// Routing is by id prefix (gpt-*, claude-*, gemini-*).
	Supports(modelID string) bool
	Generate(ctx context.Context, req GenerateRequest) (*Result, error)
}

// InvalidResponseFormatError marks a provider response that could not be
// parsed into the expected JSON array shape.
type InvalidResponseFormatError struct {
	Provider string
	Cause    error
}

func (e *InvalidResponseFormatError) Error() string {
	return fmt.Sprintf("provider %s returned an invalid response format: %v", e.Provider, e.Cause)
}

func (e *InvalidResponseFormatError) Unwrap() error { return e.Cause }

// Route returns the first adapter supporting the model id.
func Route(adapters []Adapter, modelID string) (Adapter, error) {
	for _, a := range adapters {
		if a.Supports(modelID) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no provider adapter for model %q", modelID)
}

func hasPrefix(modelID string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(modelID, p) {
			return true
		}
	}
	return false
}
