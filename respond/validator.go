package respond

import (
	"strings"

	"github.com/evanhollis/covergraph/store"
)

// Validation holds the outcome of answer validation, by category.
type Validation struct {
	CitationsValid     bool     `json:"citations_valid"`
	CitationIssues     []string `json:"citation_issues,omitempty"`
	ConsistencyValid   bool     `json:"consistency_valid"`
	ConsistencyIssues  []string `json:"consistency_issues,omitempty"`
	CompletenessValid  bool     `json:"completeness_valid"`
	CompletenessIssues []string `json:"completeness_issues,omitempty"`
}

// Summary renders the validation outcome as display text.
func (v Validation) Summary() string {
	var parts []string
	if !v.CitationsValid {
		parts = append(parts, "Citation issues: "+strings.Join(v.CitationIssues, "; "))
	}
	if !v.ConsistencyValid {
		parts = append(parts, "Consistency issues: "+strings.Join(v.ConsistencyIssues, "; "))
	}
	if !v.CompletenessValid {
		parts = append(parts, "Completeness issues: "+strings.Join(v.CompletenessIssues, "; "))
	}
	if len(parts) == 0 {
		return "All validations passed."
	}
	return strings.Join(parts, "\n")
}

// Score deducts per failed category: citations 0.15, consistency 0.2,
// completeness 0.1 per issue, floored at 0.
func (v Validation) Score() float64 {
	score := 1.0
	if !v.CitationsValid {
		score -= 0.15 * float64(len(v.CitationIssues))
	}
	if !v.ConsistencyValid {
		score -= 0.2 * float64(len(v.ConsistencyIssues))
	}
	if !v.CompletenessValid {
		score -= 0.1 * float64(len(v.CompletenessIssues))
	}
	if score < 0 {
		return 0
	}
	return score
}

// Validate runs all answer checks.
func Validate(answer string, in Input) Validation {
	v := Validation{
		CitationsValid:    true,
		ConsistencyValid:  true,
		CompletenessValid: true,
	}
	validateCitations(answer, in.Chunks, &v)
	validateConsistency(answer, in, &v)
	validateCompleteness(answer, &v)
	return v
}

// validateCitations checks that any references the answer makes resolve
// to a retrieved chunk.
func validateCitations(answer string, chunks []store.RetrievalResult, v *Validation) {
	citations := ExtractCitations(answer, chunks)
	for _, c := range citations {
		if !c.Verified {
			v.CitationsValid = false
			v.CitationIssues = append(v.CitationIssues,
				"unresolved reference: "+c.Text)
		}
	}
}

// validateConsistency checks that values stated in the answer came from
// the graph results rather than being invented by a template.
func validateConsistency(answer string, in Input, v *Validation) {
	if in.Results == nil || in.Results.Count == 0 {
		return
	}
	lower := strings.ToLower(answer)

	// Every identifier the caller searched for that the answer states
	// must also be present in the result set.
	check := func(value string) {
		if value == "" || !strings.Contains(lower, strings.ToLower(value)) {
			return
		}
		for _, vs := range in.Results.Properties {
			for _, rv := range vs {
				if strings.EqualFold(rv, value) {
					return
				}
			}
		}
		v.ConsistencyValid = false
		v.ConsistencyIssues = append(v.ConsistencyIssues,
			"answer states '"+value+"' which the graph results do not contain")
	}
	check(in.Params.PolicyNumber)
	check(in.Params.ClaimNumber)
}

// validateCompleteness rejects answers with unfilled {slot} markers or
// degenerate length.
func validateCompleteness(answer string, v *Validation) {
	if m := slotPattern.FindString(answer); m != "" {
		v.CompletenessValid = false
		v.CompletenessIssues = append(v.CompletenessIssues,
			"unfilled placeholder "+m)
	}
	if len(strings.TrimSpace(answer)) < 5 {
		v.CompletenessValid = false
		v.CompletenessIssues = append(v.CompletenessIssues, "answer is empty")
	}
}
