package provider

import (
	"fmt"
	"strings"

	"github.com/synthara/forge-api/internal/models"
)

// buildSystemPrompt instructs the model to emit a bare JSON array,
// embedding the schema and any retrieved knowledge context.
func buildSystemPrompt(req GenerateRequest) string {
	var b strings.Builder
	b.WriteString("You are a synthetic data generator. ")
	fmt.Fprintf(&b, "Generate exactly %d rows of realistic synthetic data as a JSON array of objects. ", req.RowCount)
	b.WriteString("Respond with ONLY the JSON array. No markdown, no explanations, no code fences.")

	if len(req.Schema) > 0 {
		b.WriteString("\n\nEach object must contain exactly these fields:\n")
		for _, f := range req.Schema {
			fmt.Fprintf(&b, "- %q (%s)", f.Name, f.Type)
			if f.Description != "" {
				fmt.Fprintf(&b, ": %s", f.Description)
			}
			b.WriteString("\n")
		}
	}

	if req.Context != "" {
		b.WriteString("\n\nUse the following reference material to ground the generated values:\n")
		b.WriteString(req.Context)
	}

	return b.String()
}

// placeholderRows deterministically synthesizes rows from the schema field
// names. Used when a backend is disabled by configuration so the rest of the
// pipeline stays exercisable without live network calls. The output depends
// only on (field, row index) so that every disabled provider agrees.
func placeholderRows(req GenerateRequest) []Row {
	fields := req.Schema
	if len(fields) == 0 {
		fields = defaultFields()
	}
	rows := make([]Row, req.RowCount)
	for i := range rows {
		row := make(Row, len(fields))
		for _, f := range fields {
			switch strings.ToLower(f.Type) {
			case "number", "integer", "int", "float":
				row[f.Name] = i + 1
			case "boolean", "bool":
				row[f.Name] = i%2 == 0
			default:
				row[f.Name] = fmt.Sprintf("%s_%d", f.Name, i+1)
			}
		}
		rows[i] = row
	}
	return rows
}

func defaultFields() []models.FieldDef {
	return []models.FieldDef{
		{Name: "id", Type: "integer"},
		{Name: "value", Type: "string"},
	}
}
