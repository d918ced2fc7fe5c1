package generation

import (
	"strings"
	"testing"

	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/provider"
)

func TestExportCSVSchemaOrder(t *testing.T) {
	schema := []models.FieldDef{{Name: "b"}, {Name: "a"}}
	rows := []provider.Row{{"a": "1", "b": "2", "extra": "ignored"}}

	out, err := exportCSV(schema, rows)
	if err != nil {
		t.Fatalf("exportCSV returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if lines[0] != "b,a" {
		t.Errorf("header = %q, want schema order b,a", lines[0])
	}
	if lines[1] != "2,1" {
		t.Errorf("row = %q, want 2,1", lines[1])
	}
}

func TestExportCSVSortedFallback(t *testing.T) {
	rows := []provider.Row{{"z": float64(1), "a": true, "m": nil}}

	out, err := exportCSV(nil, rows)
	if err != nil {
		t.Fatalf("exportCSV returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if lines[0] != "a,m,z" {
		t.Errorf("header = %q, want sorted keys a,m,z", lines[0])
	}
	if lines[1] != "true,,1" {
		t.Errorf("row = %q, want true,,1", lines[1])
	}
}
