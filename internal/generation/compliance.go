package generation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/synthara/forge-api/internal/provider"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`)
	phonePattern = regexp.MustCompile(`\+?\d{1,3}[ \-]?\(?\d{3}\)?[ \-]?\d{3}[ \-]?\d{4}`)
)

// patterns considered violations per supported standard.
var standardPatterns = map[string][]*regexp.Regexp{
	"GDPR":    {emailPattern, phonePattern},
	"HIPAA":   {ssnPattern, phonePattern},
	"PCI-DSS": {cardPattern},
}

// StandardsChecker flags generated values that look like real personal or
// payment data under the requested standards.
type StandardsChecker struct{}

func NewStandardsChecker() *StandardsChecker { return &StandardsChecker{} }

func (c *StandardsChecker) CheckCompliance(rows []provider.Row, standards []string) []StandardReport {
	reports := make([]StandardReport, 0, len(standards))
	for _, standard := range standards {
		normalized := strings.ToUpper(strings.TrimSpace(standard))
		patterns, known := standardPatterns[normalized]
		report := StandardReport{Standard: standard, Compliant: true, Score: 100}
		if !known {
			report.Compliant = false
			report.Score = 0
			report.Violations = append(report.Violations, fmt.Sprintf("unknown compliance standard %q", standard))
			reports = append(reports, report)
			continue
		}

		violations := 0
		for i, row := range rows {
			for field, value := range row {
				s, ok := value.(string)
				if !ok {
					continue
				}
				for _, p := range patterns {
					if p.MatchString(s) {
						violations++
						if len(report.Violations) < 10 {
							report.Violations = append(report.Violations,
								fmt.Sprintf("row %d field %q matches a restricted %s pattern", i, field, normalized))
						}
					}
				}
			}
		}

		if violations > 0 {
			report.Compliant = false
			report.Score = 100 - float64(violations*10)
			if report.Score < 0 {
				report.Score = 0
			}
		}
		reports = append(reports, report)
	}
	return reports
}
