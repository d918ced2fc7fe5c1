package provider

import (
	"context"
	"errors"
	"testing"
)

func TestParseRowsArray(t *testing.T) {
	raw := `[{"name":"alice","age":30},{"name":"bob","age":25}]`
	rows, err := parseRows("openai", raw)
	if err != nil {
		t.Fatalf("parseRows returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["name"] != "alice" {
		t.Errorf("expected first row name alice, got %v", rows[0]["name"])
	}
}

func TestParseRowsFencedOutput(t *testing.T) {
	raw := "```json\n[{\"id\": 1}]\n```"
	rows, err := parseRows("anthropic", raw)
	if err != nil {
		t.Fatalf("parseRows returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestParseRowsFenceWithoutTag(t *testing.T) {
	raw := "```\n[{\"id\": 1}]\n```"
	rows, err := parseRows("gemini", raw)
	if err != nil {
		t.Fatalf("parseRows returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestParseRowsSingleObjectWrapped(t *testing.T) {
	rows, err := parseRows("openai", `{"id": 7}`)
	if err != nil {
		t.Fatalf("parseRows returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected single wrapped row, got %d", len(rows))
	}
}

func TestParseRowsInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":         "here is your data!",
		"scalar":           `42`,
		"array of scalars": `[1, 2, 3]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseRows("openai", raw)
			var formatErr *InvalidResponseFormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("expected InvalidResponseFormatError, got %v", err)
			}
			if formatErr.Provider != "openai" {
				t.Errorf("expected provider openai in error, got %q", formatErr.Provider)
			}
		})
	}
}

func TestRouteByPrefix(t *testing.T) {
	adapters := []Adapter{
		&stubAdapter{name: "openai", prefixes: []string{"gpt-", "o1", "o3"}},
		&stubAdapter{name: "anthropic", prefixes: []string{"claude-"}},
		&stubAdapter{name: "gemini", prefixes: []string{"gemini-"}},
	}

	cases := map[string]string{
		"gpt-4":      "openai",
		"o1-preview": "openai",
		"claude-3.5": "anthropic",
		"gemini-pro": "gemini",
	}
	for modelID, want := range cases {
		adapter, err := Route(adapters, modelID)
		if err != nil {
			t.Fatalf("Route(%q) returned error: %v", modelID, err)
		}
		if adapter.Name() != want {
			t.Errorf("Route(%q) = %s, want %s", modelID, adapter.Name(), want)
		}
	}

	if _, err := Route(adapters, "llama-3"); err == nil {
		t.Error("expected error routing unknown model id")
	}
}

type stubAdapter struct {
	name     string
	prefixes []string
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Supports(modelID string) bool {
	return hasPrefix(modelID, s.prefixes...)
}

func (s *stubAdapter) Generate(_ context.Context, _ GenerateRequest) (*Result, error) {
	return &Result{Provider: s.name}, nil
}
