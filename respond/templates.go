package respond

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/evanhollis/covergraph/query"
)

// Template is one candidate answer shape for an intent. The first
// template whose required slots are all present and whose condition
// passes is rendered.
type Template struct {
	Text      string
	Required  []string
	Optional  []string
	Condition func(slots map[string]string) bool
}

var slotPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// intentTemplates is ordered most-specific first per intent.
var intentTemplates = map[query.Intent][]Template{
	query.IntentPolicyDetails: {
		{
			Text:     "Policy {policy_number} is a {policy_type} policy held by {insured_name}. It is currently {status}, effective from {effective_date} to {expiration_date}.",
			Required: []string{"policy_number", "policy_type", "insured_name", "status", "effective_date", "expiration_date"},
		},
		{
			Text:     "Policy {policy_number} is currently {status}, effective from {effective_date} to {expiration_date}.",
			Required: []string{"policy_number", "status", "effective_date", "expiration_date"},
		},
		{
			Text:     "Policy {policy_number} is currently {status}.",
			Required: []string{"policy_number", "status"},
		},
		{
			Text:     "Here is what I found for policy {policy_number}.",
			Required: []string{"policy_number"},
		},
	},
	query.IntentCoverageInquiry: {
		{
			Text:      "Policy {policy_number} includes {coverage_count} coverages: {coverages}. The combined limit is ${total_limit}.",
			Required:  []string{"policy_number", "coverage_count", "coverages", "total_limit"},
			Condition: func(s map[string]string) bool { return s["coverage_count"] != "1" },
		},
		{
			Text:     "Policy {policy_number} includes {coverages} coverage with a limit of {limit} and a deductible of {deductible}.",
			Required: []string{"policy_number", "coverages", "limit", "deductible"},
		},
		{
			Text:     "Policy {policy_number} includes the following coverages: {coverages}.",
			Required: []string{"policy_number", "coverages"},
		},
		{
			Text:     "The policy includes the following coverages: {coverages}.",
			Required: []string{"coverages"},
		},
	},
	query.IntentClaimStatus: {
		{
			Text:     "Claim {claim_number} (date of loss {date_of_loss}) is currently {status}. The claim amount is {amount}.",
			Required: []string{"claim_number", "date_of_loss", "status", "amount"},
		},
		{
			Text:     "Claim {claim_number} is currently {status}. The claim amount is {amount}.",
			Required: []string{"claim_number", "status", "amount"},
		},
		{
			Text:     "Claim {claim_number} is currently {status}.",
			Required: []string{"claim_number", "status"},
		},
	},
	query.IntentPremiumInformation: {
		{
			Text:     "The premium for policy {policy_number} is {amount}, billed {payment_frequency}. The next payment is due on {due_date}.",
			Required: []string{"policy_number", "amount", "payment_frequency", "due_date"},
		},
		{
			Text:     "The premium for policy {policy_number} is {amount}, billed {payment_frequency}.",
			Required: []string{"policy_number", "amount", "payment_frequency"},
		},
		{
			Text:     "The premium for policy {policy_number} is {amount}.",
			Required: []string{"policy_number", "amount"},
		},
	},
	query.IntentDefinitionInquiry: {
		{
			Text:     "In your policy, \"{term}\" means: {meaning}",
			Required: []string{"term", "meaning"},
		},
	},
}

// renderTemplates picks and fills the first eligible template for the
// intent. Returns the template text used as an identifier for tracing.
func renderTemplates(intent query.Intent, slots map[string]string) (tmpl, text string, ok bool) {
	for _, t := range intentTemplates[intent] {
		if !slotsPresent(t.Required, slots) {
			continue
		}
		if t.Condition != nil && !t.Condition(slots) {
			continue
		}
		return t.Text, fillSlots(t.Text, slots), true
	}
	return "", "", false
}

func slotsPresent(required []string, slots map[string]string) bool {
	for _, r := range required {
		if slots[r] == "" {
			return false
		}
	}
	return true
}

func fillSlots(text string, slots map[string]string) string {
	return slotPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		if v := slots[name]; v != "" {
			return v
		}
		return m
	})
}

// noResultMessage is the per-intent empty answer, parameterized where a
// searched-for identifier is known.
func noResultMessage(intent query.Intent, params query.Params) string {
	switch intent {
	case query.IntentPolicyDetails:
		if params.PolicyNumber != "" {
			return fmt.Sprintf("I couldn't find any policy with the number %s. Please check the number and try again, or contact customer service for assistance.", params.PolicyNumber)
		}
		return "I couldn't find the policy you asked about. Could you share the policy number?"
	case query.IntentCoverageInquiry:
		return "I couldn't find any coverage information for that policy. The policy may not be on file, or it may have no recorded coverages."
	case query.IntentClaimStatus:
		if params.ClaimNumber != "" {
			return fmt.Sprintf("I couldn't find any claim with the number %s. Please check the number and try again.", params.ClaimNumber)
		}
		return "I couldn't find the claim you asked about. Could you share the claim number?"
	case query.IntentPremiumInformation:
		return "I couldn't find premium information for that policy. Please verify the policy number or contact billing."
	case query.IntentDefinitionInquiry:
		if params.Term != "" {
			return fmt.Sprintf("No definition found for '%s'.", params.Term)
		}
		return "I couldn't tell which term you want defined. Could you rephrase the question?"
	default:
		return "I'm not sure how to help with that. Could you rephrase your question, or mention a policy or claim number?"
	}
}

// followUps suggests up to three next questions per intent.
func followUps(intent query.Intent) []string {
	switch intent {
	case query.IntentPolicyDetails:
		return []string{
			"What coverages does this policy include?",
			"How much is the premium?",
			"When does the policy expire?",
		}
	case query.IntentCoverageInquiry:
		return []string{
			"What is the deductible for this coverage?",
			"Are there any exclusions I should know about?",
			"How do I add more coverage?",
		}
	case query.IntentClaimStatus:
		return []string{
			"What documents do I need to submit?",
			"How long does claim review usually take?",
		}
	case query.IntentPremiumInformation:
		return []string{
			"Can I change my payment frequency?",
			"Why did my premium change?",
		}
	case query.IntentFilingClaim:
		return []string{
			"What information do I need to file?",
			"How do I check the status of an existing claim?",
		}
	case query.IntentDefinitionInquiry:
		return []string{
			"Where does this term appear in my policy?",
		}
	default:
		return nil
	}
}

// money renders a bare numeric value as a dollar amount; values that
// already carry a currency symbol or are non-numeric pass through.
func money(v string) string {
	if v == "" || strings.HasPrefix(v, "$") {
		return v
	}
	if _, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err != nil {
		return v
	}
	return "$" + v
}

// sumAmounts totals numeric values, returning a thousands-separated
// string. Empty when no value parses.
func sumAmounts(values []string) string {
	var total float64
	var parsed int
	for _, v := range values {
		clean := strings.TrimPrefix(strings.ReplaceAll(v, ",", ""), "$")
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			continue
		}
		total += f
		parsed++
	}
	if parsed == 0 {
		return ""
	}
	return groupThousands(total)
}

func groupThousands(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
