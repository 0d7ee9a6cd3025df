package automate

import (
	"log/slog"
	"strings"

	"github.com/evanhollis/covergraph/query"
)

// Canned responses for handled exceptions.
const (
	ambiguousCoverageAnswer = "Your question could refer to more than one coverage. Could you tell me which coverage you mean, for example liability, collision, or comprehensive?"
	clarificationAnswer     = "I want to make sure I help with the right thing. Could you rephrase your question, or mention a policy or claim number?"
	complianceSafeAnswer    = "I can't share that information here. Please contact customer service so an agent can verify your identity and help you directly."
)

// handleExceptions tries the known exception handlers in order. The
// returned Decision is only meaningful when handled is true.
func (r *Reviewer) handleExceptions(c Candidate, reprocess ReprocessFunc) (bool, Decision) {
	// missing_policy_number / missing_claim_number: when the session
	// knows exactly one candidate identifier, reprocess once with it.
	if c.NoResult && reprocess != nil {
		if h, d := r.recoverIdentifier(c, reprocess); h {
			return true, d
		}
	}

	// ambiguous_coverage: a coverage question naming several coverages
	// with nothing found gets a clarification.
	if c.NoResult && c.Intent == query.IntentCoverageInquiry && len(c.Params.CoverageTypes) > 1 {
		return true, Decision{
			Answer:     ambiguousCoverageAnswer,
			Confidence: 0.85,
			Handled:    "ambiguous_coverage",
		}
	}

	// unknown_intent: remap by keyword when one fits, else clarify.
	if c.Intent == query.IntentUnknown {
		if intent, ok := RemapIntent(c.Query); ok && reprocess != nil {
			answer, conf, err := reprocess(c.Query, c.Params)
			if err == nil && answer != "" {
				slog.Debug("automate: unknown intent remapped", "intent", string(intent))
				return true, Decision{Answer: answer, Confidence: conf, Handled: "unknown_intent_remap"}
			}
		}
		return true, Decision{
			Answer:     clarificationAnswer,
			Confidence: 0.7,
			Handled:    "unknown_intent",
		}
	}

	// compliance_issue: replace an answer that leaks regulated content.
	if issues := CheckCompliance(c.Answer); len(issues) > 0 {
		for _, iss := range issues {
			if strings.HasPrefix(iss, "privacy term") {
				return true, Decision{
					Answer:           complianceSafeAnswer,
					Confidence:       c.Confidence,
					Handled:          "compliance_issue",
					ComplianceIssues: issues,
				}
			}
		}
	}

	return false, Decision{}
}

// recoverIdentifier fills a missing policy or claim number from session
// context when the session carries exactly one known value.
func (r *Reviewer) recoverIdentifier(c Candidate, reprocess ReprocessFunc) (bool, Decision) {
	params := c.Params
	var handler string

	switch {
	case needsPolicyNumber(c.Intent) && params.PolicyNumber == "" && len(c.User.KnownPolicies) == 1:
		params.PolicyNumber = c.User.KnownPolicies[0]
		handler = "missing_policy_number"
	case c.Intent == query.IntentClaimStatus && params.ClaimNumber == "" && len(c.User.KnownClaims) == 1:
		params.ClaimNumber = c.User.KnownClaims[0]
		handler = "missing_claim_number"
	default:
		return false, Decision{}
	}

	answer, conf, err := reprocess(c.Query, params)
	if err != nil || answer == "" {
		return false, Decision{}
	}
	slog.Debug("automate: recovered identifier from session", "handler", handler)
	return true, Decision{Answer: answer, Confidence: conf, Handled: handler}
}

func needsPolicyNumber(intent query.Intent) bool {
	switch intent {
	case query.IntentPolicyDetails, query.IntentCoverageInquiry, query.IntentPremiumInformation:
		return true
	}
	return false
}

// intentKeywords drive the unknown-intent remap.
var intentKeywords = map[query.Intent][]string{
	query.IntentPolicyDetails:      {"policy"},
	query.IntentClaimStatus:        {"claim"},
	query.IntentCoverageInquiry:    {"coverage", "covered"},
	query.IntentPremiumInformation: {"premium", "payment", "bill"},
	query.IntentDefinitionInquiry:  {"mean", "definition"},
}

// remapOrder makes the keyword scan deterministic.
var remapOrder = []query.Intent{
	query.IntentClaimStatus,
	query.IntentPremiumInformation,
	query.IntentCoverageInquiry,
	query.IntentDefinitionInquiry,
	query.IntentPolicyDetails,
}

// RemapIntent guesses the closest known intent for a query the
// classifier could not place. Callers use it inside their reprocess
// functions so the remapped pipeline run targets the right builder.
func RemapIntent(q string) (query.Intent, bool) {
	lower := strings.ToLower(q)
	for _, intent := range remapOrder {
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				return intent, true
			}
		}
	}
	return query.IntentUnknown, false
}
