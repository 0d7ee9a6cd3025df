// Package automate decides whether a rendered answer can go out
// autonomously or needs human review: per-intent confidence
// thresholds, sensitive-content rules, compliance checks, exception
// handling, and escalation learning.
package automate

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/evanhollis/covergraph/query"
)

// Candidate is an answer awaiting the automation decision.
type Candidate struct {
	Query      string
	Intent     query.Intent
	Params     query.Params
	User       query.UserContext
	Answer     string
	Confidence float64
	Failed     bool // upstream processing failed
	NoResult   bool
}

// Decision is the automation outcome for one candidate.
type Decision struct {
	Automated        bool     `json:"automated"`
	Answer           string   `json:"answer"`
	Confidence       float64  `json:"confidence"`
	Reason           string   `json:"reason,omitempty"`  // escalation reason
	Handled          string   `json:"handled,omitempty"` // exception handler that fired
	ComplianceIssues []string `json:"compliance_issues,omitempty"`
}

// ReprocessFunc re-runs the query pipeline with amended parameters.
// Exception handlers use it to recover a missing identifier from
// session context.
type ReprocessFunc func(question string, params query.Params) (answer string, confidence float64, err error)

// Default per-intent automation thresholds.
var defaultThresholds = map[query.Intent]float64{
	query.IntentPolicyDetails:      0.8,
	query.IntentCoverageInquiry:    0.75,
	query.IntentClaimStatus:        0.9,
	query.IntentPremiumInformation: 0.85,
	query.IntentFilingClaim:        0.7,
}

// DefaultThreshold applies to intents without an explicit entry.
const DefaultThreshold = 0.8

// Intents that always route to a human regardless of confidence.
var sensitiveIntents = map[string]bool{
	"policy_cancellation": true,
	"claim_dispute":       true,
	"coverage_denial":     true,
}

// Query terms that always route to a human.
var sensitiveTerms = []string{
	"sue", "lawsuit", "legal", "attorney", "lawyer",
	"compensation", "dispute", "complaint",
}

// Reviewer holds the automation state. Safe for concurrent use.
type Reviewer struct {
	mu         sync.Mutex
	thresholds map[query.Intent]float64
	defaultThr float64
	learned    []string // review terms harvested from escalations

	decisions map[query.Intent]*intentStats
	metrics   Metrics
}

type intentStats struct {
	total   int
	correct int
	scored  int
}

// NewReviewer creates a Reviewer with the default thresholds,
// optionally overridden per intent.
func NewReviewer(overrides map[string]float64, defaultThr float64) *Reviewer {
	if defaultThr <= 0 {
		defaultThr = DefaultThreshold
	}
	thr := make(map[query.Intent]float64, len(defaultThresholds))
	for k, v := range defaultThresholds {
		thr[k] = v
	}
	for k, v := range overrides {
		thr[query.Intent(k)] = v
	}
	return &Reviewer{
		thresholds: thr,
		defaultThr: defaultThr,
		decisions:  make(map[query.Intent]*intentStats),
		metrics:    Metrics{EscalationReasons: make(map[string]int)},
	}
}

// Threshold returns the automation threshold for an intent.
func (r *Reviewer) Threshold(intent query.Intent) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.thresholdLocked(intent)
}

func (r *Reviewer) thresholdLocked(intent query.Intent) float64 {
	if t, ok := r.thresholds[intent]; ok {
		return t
	}
	return r.defaultThr
}

// Decide runs exception handling, compliance, and review rules over a
// candidate. reprocess may be nil; without it the identifier-recovery
// handlers cannot fire.
func (r *Reviewer) Decide(c Candidate, reprocess ReprocessFunc) Decision {
	d := Decision{Answer: c.Answer, Confidence: c.Confidence}

	// Exception handlers run first: they can turn a failed candidate
	// into a serviceable answer.
	if handled, hd := r.handleExceptions(c, reprocess); handled {
		d = hd
		c.Answer = d.Answer
		c.Confidence = d.Confidence
		c.Failed = false
		c.NoResult = false
	}

	d.ComplianceIssues = CheckCompliance(c.Answer)

	r.mu.Lock()
	threshold := r.thresholdLocked(c.Intent)
	learned := append([]string(nil), r.learned...)
	r.mu.Unlock()

	reason := reviewReason(c, threshold, d.ComplianceIssues, learned)
	if reason == "" {
		d.Automated = true
	} else {
		d.Automated = false
		d.Reason = reason
		slog.Info("automate: escalating to human review",
			"intent", string(c.Intent), "reason", reason, "confidence", c.Confidence)
	}
	r.record(c.Intent, d)
	return d
}

// reviewReason returns the first matching escalation reason, empty when
// the answer can go out automatically.
func reviewReason(c Candidate, threshold float64, compliance, learned []string) string {
	if c.Failed {
		return "processing_failed"
	}
	if c.Confidence < threshold {
		return fmt.Sprintf("Confidence %.2f below threshold %.2f", c.Confidence, threshold)
	}
	if sensitiveIntents[string(c.Intent)] {
		return "sensitive_intent: " + string(c.Intent)
	}
	lower := strings.ToLower(c.Query)
	for _, term := range sensitiveTerms {
		if containsWord(lower, term) {
			return "sensitive_term: " + term
		}
	}
	for _, term := range learned {
		if containsWord(lower, term) {
			return "learned_review_rule: " + term
		}
	}
	if len(compliance) > 0 {
		return "compliance: " + compliance[0]
	}
	return ""
}

// containsWord matches term at word boundaries so "legal" does not
// fire on "delegated".
func containsWord(text, term string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		leftOK := start == 0 || !isWordByte(text[start-1])
		rightOK := end == len(text) || !isWordByte(text[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func (r *Reviewer) record(intent query.Intent, d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.decisions[intent]
	if st == nil {
		st = &intentStats{}
		r.decisions[intent] = st
	}
	st.total++

	r.metrics.Decisions++
	if d.Automated {
		r.metrics.Automated++
	} else {
		r.metrics.Escalated++
		r.metrics.EscalationReasons[reasonKey(d.Reason)]++
	}
}

// reasonKey collapses parameterized reasons into stable buckets.
func reasonKey(reason string) string {
	if strings.HasPrefix(reason, "Confidence ") {
		return "low_confidence"
	}
	if k, _, found := strings.Cut(reason, ":"); found {
		return k
	}
	return reason
}
