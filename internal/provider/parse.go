package provider

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, from raw model output.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "[{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseRows parses raw model output into rows. A single JSON object is
// wrapped into a one-element array; anything unparsable fails with an
// InvalidResponseFormatError naming the provider.
func parseRows(providerName, raw string) ([]Row, error) {
	cleaned := stripFences(raw)

	var value interface{}
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return nil, &InvalidResponseFormatError{Provider: providerName, Cause: err}
	}

	switch v := value.(type) {
	case []interface{}:
		rows := make([]Row, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, &InvalidResponseFormatError{
					Provider: providerName,
					Cause:    errors.Errorf("array element is %T, expected object", item),
				}
			}
			rows = append(rows, Row(obj))
		}
		return rows, nil
	case map[string]interface{}:
		return []Row{Row(v)}, nil
	default:
		return nil, &InvalidResponseFormatError{
			Provider: providerName,
			Cause:    errors.Errorf("response is %T, expected array or object", value),
		}
	}
}
