package automate

import "strings"

// Privacy terms an outgoing answer must never expose.
var privacyTerms = []string{
	"ssn", "social security", "credit card", "password", "bank account",
}

// Guarantee language an automated insurance answer must not make.
var guaranteeTerms = []string{
	"guarantee", "promise", "always", "never", "certainly",
}

// CheckCompliance inspects an answer for regulated content. Returns one
// finding per category, empty when the answer is clean.
func CheckCompliance(answer string) []string {
	lower := strings.ToLower(answer)
	var issues []string

	for _, term := range privacyTerms {
		if strings.Contains(lower, term) {
			issues = append(issues, "privacy term in answer: "+term)
			break
		}
	}

	// A denial must state its reason.
	if strings.Contains(lower, "denied") &&
		!strings.Contains(lower, "because") &&
		!strings.Contains(lower, "reason") &&
		!strings.Contains(lower, "due to") {
		issues = append(issues, "claim denial stated without a reason")
	}

	for _, term := range guaranteeTerms {
		if containsWord(lower, term) {
			issues = append(issues, "guarantee language: "+term)
			break
		}
	}

	return issues
}
