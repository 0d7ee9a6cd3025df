package query

import (
	"regexp"
	"strings"

	"github.com/araddon/dateparse"
)

// UserContext carries session identity that seeds parameter extraction
// and lets the automation layer recover a missing identifier from an
// earlier turn.
type UserContext struct {
	UserID        string   `json:"user_id,omitempty"`
	KnownPolicies []string `json:"known_policies,omitempty"`
	KnownClaims   []string `json:"known_claims,omitempty"`
}

// Params holds the structured values pulled out of a query.
type Params struct {
	PolicyNumber    string   `json:"policy_number,omitempty"`
	ClaimNumber     string   `json:"claim_number,omitempty"`
	PolicyType      string   `json:"policy_type,omitempty"`
	CoverageTypes   []string `json:"coverage_types,omitempty"`
	AmountReference string   `json:"amount_reference,omitempty"`
	DateReference   string   `json:"date_reference,omitempty"`
	Term            string   `json:"term,omitempty"`
	UserID          string   `json:"user_id,omitempty"`

	StatusInquiry        bool `json:"status_inquiry,omitempty"`
	PaymentInquiry       bool `json:"payment_inquiry,omitempty"`
	DueDateInquiry       bool `json:"due_date_inquiry,omitempty"`
	PremiumChangeInquiry bool `json:"premium_change_inquiry,omitempty"`
}

// Map flattens the set parameters into string form, keyed the way the
// audit log and the QA suites refer to them.
func (p Params) Map() map[string]string {
	m := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("policy_number", p.PolicyNumber)
	set("claim_number", p.ClaimNumber)
	set("policy_type", p.PolicyType)
	set("amount_reference", p.AmountReference)
	set("date_reference", p.DateReference)
	set("term", p.Term)
	set("user_id", p.UserID)
	if len(p.CoverageTypes) > 0 {
		m["coverage_types"] = strings.Join(p.CoverageTypes, ", ")
	}
	if p.StatusInquiry {
		m["status_inquiry"] = "true"
	}
	if p.PaymentInquiry {
		m["payment_inquiry"] = "true"
	}
	if p.DueDateInquiry {
		m["due_date_inquiry"] = "true"
	}
	if p.PremiumChangeInquiry {
		m["premium_change_inquiry"] = "true"
	}
	return m
}

var (
	policyNumberRe = regexp.MustCompile(`(?i)policy\s*(?:number|#)?\s*[:#]?\s*([A-Z0-9-]+)`)
	claimNumberRe  = regexp.MustCompile(`(?i)claim\s*(?:number|no\.?|#)?\s*[:#]?\s*([A-Z0-9-]+)`)
	dateRefRe      = regexp.MustCompile(`(?i)(?:on|for|from|since)\s+(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+\d{2,4})`)
	amountRefRe    = regexp.MustCompile(`(?i)(?:amount|limit|deductible|premium)\s+(?:of\s+)?[$€£]?(\d+(?:,\d+)*(?:\.\d+)?)`)

	statusWordsRe  = regexp.MustCompile(`(?i)\b(?:approved|denied|pending|review|progress|decision)\b`)
	paymentWordsRe = regexp.MustCompile(`(?i)\b(?:payment|payout|reimbursement|check)\b`)
	dueWordsRe     = regexp.MustCompile(`(?i)\b(?:due|next|payment date)\b`)
	changeWordsRe  = regexp.MustCompile(`(?i)\b(?:increase|decrease|change|different)\b`)

	definitionNoise = regexp.MustCompile(`(?i)what\s+(?:is|are|does)|mean[s]?|\?|definition|of|the`)
)

var coverageTypes = []string{
	"liability", "collision", "comprehensive", "uninsured motorist",
	"personal injury", "medical payments", "property damage",
	"flood", "fire", "theft", "water damage",
}

var policyTypes = []string{
	"auto", "home", "life", "health", "liability", "umbrella", "commercial",
}

var coverageTypeRes = wordPatterns(coverageTypes)
var policyTypeRes = wordPatterns(policyTypes)

func wordPatterns(terms []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(terms))
	for i, t := range terms {
		res[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t) + `\b`)
	}
	return res
}

// plausibleIdentifier guards the loose identifier patterns: without a
// digit requirement they would capture ordinary words that follow
// "policy" or "claim" ("my policy covers fire" -> "covers").
func plausibleIdentifier(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// Extract pulls structured parameters from a query. The intent steers
// which secondary extractions run; uc seeds session identity.
func Extract(queryText string, intent Intent, uc UserContext) Params {
	var p Params
	p.UserID = uc.UserID

	for _, m := range policyNumberRe.FindAllStringSubmatch(queryText, -1) {
		if plausibleIdentifier(m[1]) {
			p.PolicyNumber = m[1]
			break
		}
	}
	for _, m := range claimNumberRe.FindAllStringSubmatch(queryText, -1) {
		if plausibleIdentifier(m[1]) {
			p.ClaimNumber = m[1]
			break
		}
	}
	if m := dateRefRe.FindStringSubmatch(queryText); m != nil {
		p.DateReference = normalizeDate(m[1])
	}
	if m := amountRefRe.FindStringSubmatch(queryText); m != nil {
		p.AmountReference = strings.ReplaceAll(m[1], ",", "")
	}
	for i, re := range coverageTypeRes {
		if re.MatchString(queryText) {
			p.CoverageTypes = append(p.CoverageTypes, coverageTypes[i])
		}
	}

	switch intent {
	case IntentPolicyDetails:
		for i, re := range policyTypeRes {
			if re.MatchString(queryText) {
				p.PolicyType = policyTypes[i]
				break
			}
		}
	case IntentClaimStatus:
		p.StatusInquiry = statusWordsRe.MatchString(queryText)
		p.PaymentInquiry = paymentWordsRe.MatchString(queryText)
	case IntentPremiumInformation:
		p.DueDateInquiry = dueWordsRe.MatchString(queryText)
		p.PremiumChangeInquiry = changeWordsRe.MatchString(queryText)
	case IntentDefinitionInquiry:
		p.Term = extractTerm(queryText)
	}

	return p
}

// extractTerm pulls the term a definition question asks about: the
// capture group of the first matching definition pattern, else the
// query with question scaffolding stripped.
func extractTerm(queryText string) string {
	trimmed := strings.TrimSpace(queryText)
	for _, re := range definitionPatterns {
		if m := re.FindStringSubmatch(trimmed); len(m) > 1 {
			return strings.ToLower(strings.TrimSpace(m[1]))
		}
	}
	cleaned := definitionNoise.ReplaceAllString(trimmed, " ")
	return strings.ToLower(strings.Join(strings.Fields(cleaned), " "))
}

// normalizeDate renders recognized dates as yyyy-mm-dd; unparseable
// references pass through as written.
func normalizeDate(raw string) string {
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return raw
	}
	return t.Format("2006-01-02")
}
