// Package respond renders natural-language answers for classified
// insurance queries: per-intent templates filled from graph-query
// results, citation matching against retrieved chunks, validation,
// and a blended confidence score.
package respond

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evanhollis/covergraph/query"
	"github.com/evanhollis/covergraph/store"
)

// Input carries everything the responder needs for one query.
type Input struct {
	Query   string
	Intent  query.Intent
	Params  query.Params
	Results *query.Results
	Chunks  []store.RetrievalResult
}

// Output is the rendered response with its supporting evidence.
type Output struct {
	Text       string     `json:"text"`
	Template   string     `json:"template,omitempty"`
	NoResult   bool       `json:"no_result,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
	FollowUps  []string   `json:"follow_ups,omitempty"`
	Validation Validation `json:"validation"`
	Confidence float64    `json:"confidence"`
}

// Responder renders answers. Safe for concurrent use.
type Responder struct {
	weights ConfidenceWeights
}

// New creates a Responder with default confidence weights.
func New() *Responder {
	return &Responder{weights: DefaultConfidenceWeights()}
}

// Render produces the answer for one classified query. It never fails:
// missing data yields the intent's no-result message.
func (r *Responder) Render(in Input) *Output {
	out := &Output{}

	switch {
	case in.Results != nil && in.Results.Procedural:
		out.Text = renderProcedural(in.Results)
		out.Template = "procedural"
	case in.Results == nil || in.Results.Count == 0:
		out.Text = noResultMessage(in.Intent, in.Params)
		out.NoResult = true
	default:
		slots := buildSlots(in.Intent, in.Results, in.Params)
		tmpl, text, ok := renderTemplates(in.Intent, slots)
		if !ok {
			out.Text = noResultMessage(in.Intent, in.Params)
			out.NoResult = true
		} else {
			out.Template = tmpl
			out.Text = text
		}
	}

	out.Citations = ExtractCitations(out.Text, in.Chunks)
	out.FollowUps = followUps(in.Intent)
	out.Validation = Validate(out.Text, in)
	out.Confidence = ComputeConfidence(out.Text, in, out.Validation, r.weights)
	return out
}

func renderProcedural(res *query.Results) string {
	return fmt.Sprintf(
		"To file a claim, you will need: %s. You can start the process by contacting our claims department at %s.",
		res.RequiredInfo, res.Contact)
}

// buildSlots maps "alias.property" result values into template slots.
// Multi-valued properties are deduplicated and joined; money fields are
// rendered with a dollar sign.
func buildSlots(intent query.Intent, res *query.Results, params query.Params) map[string]string {
	slots := make(map[string]string)

	first := func(key string) string {
		if vs := res.Properties[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}
	all := func(key string) []string {
		return res.Properties[key]
	}

	switch intent {
	case query.IntentPolicyDetails:
		put(slots, "policy_number", first("p.policy_number"))
		put(slots, "effective_date", first("p.effective_date"))
		put(slots, "expiration_date", first("p.expiration_date"))
		put(slots, "status", first("p.status"))
		put(slots, "policy_type", first("p.type"))
		put(slots, "insured_name", first("i.name"))

	case query.IntentCoverageInquiry:
		put(slots, "policy_number", first("p.policy_number"))
		put(slots, "coverages", joinSet(all("c.type")))
		put(slots, "coverage_count", fmt.Sprintf("%d", len(dedupe(all("c.type")))))
		if limit := sumAmounts(all("c.limit")); limit != "" {
			slots["total_limit"] = limit
		}
		put(slots, "limit", money(first("c.limit")))
		put(slots, "deductible", money(first("c.deductible")))

	case query.IntentClaimStatus:
		put(slots, "claim_number", first("c.claim_number"))
		put(slots, "status", first("c.status"))
		put(slots, "date_of_loss", first("c.date_of_loss"))
		put(slots, "amount", money(first("c.amount")))

	case query.IntentPremiumInformation:
		put(slots, "policy_number", first("p.policy_number"))
		put(slots, "amount", money(first("pr.amount")))
		put(slots, "payment_frequency", first("pr.payment_frequency"))
		put(slots, "due_date", first("pr.due_date"))

	case query.IntentDefinitionInquiry:
		put(slots, "term", first("d.term"))
		put(slots, "meaning", first("d.meaning"))
		if slots["term"] == "" {
			put(slots, "term", params.Term)
		}
	}

	// Parameters backfill slots the graph did not produce.
	for k, v := range params.Map() {
		if _, ok := slots[k]; !ok && v != "" {
			slots[k] = v
		}
	}
	return slots
}

func put(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// joinSet renders a deduplicated value list as prose: "a, b and c".
func joinSet(values []string) string {
	vs := dedupe(values)
	switch len(vs) {
	case 0:
		return ""
	case 1:
		return vs[0]
	}
	sort.Strings(vs)
	return strings.Join(vs[:len(vs)-1], ", ") + " and " + vs[len(vs)-1]
}
