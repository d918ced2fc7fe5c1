package generation

import (
	"encoding/json"
	"fmt"

	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/provider"
)

// Minimum acceptable score per validation level.
var validationThresholds = map[string]float64{
	"basic":    50,
	"standard": 70,
	"strict":   85,
}

// HeuristicValidator scores structural quality of the generated rows:
// schema coverage, empty values, and duplicate rows.
type HeuristicValidator struct{}

func NewHeuristicValidator() *HeuristicValidator { return &HeuristicValidator{} }

func (v *HeuristicValidator) ValidateDataset(rows []provider.Row, schema []models.FieldDef, level string) ValidationReport {
	report := ValidationReport{Score: 100}

	if len(rows) == 0 {
		report.IsValid = false
		report.Score = 0
		report.Errors = append(report.Errors, "dataset contains no rows")
		return report
	}

	missingFields := 0
	emptyValues := 0
	totalSlots := 0
	seen := make(map[string]int)
	duplicates := 0

	for i, row := range rows {
		for _, f := range schema {
			totalSlots++
			value, ok := row[f.Name]
			if !ok {
				missingFields++
				if missingFields <= 5 {
					report.Errors = append(report.Errors, fmt.Sprintf("row %d is missing field %q", i, f.Name))
				}
				continue
			}
			if isEmptyValue(value) {
				emptyValues++
			}
		}
		if key, err := json.Marshal(row); err == nil {
			seen[string(key)]++
			if seen[string(key)] > 1 {
				duplicates++
			}
		}
	}

	if len(schema) > 0 && totalSlots > 0 {
		missingRatio := float64(missingFields) / float64(totalSlots)
		emptyRatio := float64(emptyValues) / float64(totalSlots)
		report.Score -= missingRatio * 60
		report.Score -= emptyRatio * 20
		if emptyRatio > 0.1 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%.0f%% of values are empty", emptyRatio*100))
		}
	}

	if duplicates > 0 {
		dupRatio := float64(duplicates) / float64(len(rows))
		report.Score -= dupRatio * 30
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d duplicate rows detected", duplicates))
	}

	if report.Score < 0 {
		report.Score = 0
	}

	threshold, ok := validationThresholds[level]
	if !ok {
		threshold = validationThresholds["standard"]
	}
	report.IsValid = report.Score >= threshold && missingFields == 0
	if report.Score < threshold {
		report.Errors = append(report.Errors, fmt.Sprintf("quality score %.1f below %s threshold %.0f", report.Score, level, threshold))
	}
	return report
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}
