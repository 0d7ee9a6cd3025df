package automate

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/evanhollis/covergraph/query"
	"github.com/evanhollis/covergraph/store"
)

// Metrics summarizes automation behavior since startup.
type Metrics struct {
	Decisions         int            `json:"decisions"`
	Automated         int            `json:"automated"`
	Escalated         int            `json:"escalated"`
	AutomationRate    float64        `json:"automation_rate"`
	EscalationReasons map[string]int `json:"escalation_reasons,omitempty"`
}

// Snapshot returns current metrics.
func (r *Reviewer) Snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Metrics{
		Decisions:         r.metrics.Decisions,
		Automated:         r.metrics.Automated,
		Escalated:         r.metrics.Escalated,
		EscalationReasons: make(map[string]int, len(r.metrics.EscalationReasons)),
	}
	for k, v := range r.metrics.EscalationReasons {
		m.EscalationReasons[k] = v
	}
	if m.Decisions > 0 {
		m.AutomationRate = float64(m.Automated) / float64(m.Decisions)
	}
	return m
}

// RecordOutcome scores a past automated decision so thresholds can
// adjust. correct means the answer needed no human correction.
func (r *Reviewer) RecordOutcome(intent query.Intent, correct bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.decisions[intent]
	if st == nil {
		st = &intentStats{}
		r.decisions[intent] = st
	}
	st.scored++
	if correct {
		st.correct++
	}
}

// ThresholdChange records one adjustment made by AdjustThresholds.
type ThresholdChange struct {
	Intent   string  `json:"intent"`
	Old      float64 `json:"old"`
	New      float64 `json:"new"`
	Accuracy float64 `json:"accuracy"`
}

// AdjustThresholds tunes per-intent thresholds from scored outcomes:
// accuracy above 0.9 lowers by 0.05 (floor 0.6), below 0.7 raises by
// 0.1 (cap 0.95). Intents with fewer than 5 scored decisions are left
// alone.
func (r *Reviewer) AdjustThresholds() []ThresholdChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changes []ThresholdChange
	intents := make([]query.Intent, 0, len(r.decisions))
	for intent := range r.decisions {
		intents = append(intents, intent)
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i] < intents[j] })

	for _, intent := range intents {
		st := r.decisions[intent]
		if st.scored < 5 {
			continue
		}
		accuracy := float64(st.correct) / float64(st.scored)
		old := r.thresholdLocked(intent)
		next := old
		switch {
		case accuracy > 0.9:
			next = old - 0.05
			if next < 0.6 {
				next = 0.6
			}
		case accuracy < 0.7:
			next = old + 0.1
			if next > 0.95 {
				next = 0.95
			}
		}
		if next != old {
			r.thresholds[intent] = next
			changes = append(changes, ThresholdChange{
				Intent: string(intent), Old: old, New: next, Accuracy: accuracy,
			})
			slog.Info("automate: threshold adjusted",
				"intent", string(intent), "old", old, "new", next, "accuracy", accuracy)
		}
	}
	return changes
}

// escalationStopwords are excluded from harvested review terms.
var escalationStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true,
	"how": true, "can": true, "about": true, "policy": true, "claim": true,
	"insurance": true, "this": true, "that": true, "you": true, "why": true,
	"was": true, "have": true, "has": true, "are": true, "does": true,
	"from": true, "will": true, "when": true, "where": true, "all": true,
}

// LearnFromEscalations harvests recurring terms from escalated queries
// into review rules: needs at least 5 escalations total and 3 for a
// reason bucket; terms appearing at least twice (top 5 per bucket)
// become learned review terms. Returns the newly learned terms.
func (r *Reviewer) LearnFromEscalations(escalations []store.Escalation) []string {
	if len(escalations) < 5 {
		return nil
	}

	byReason := make(map[string][]store.Escalation)
	for _, e := range escalations {
		key := reasonKey(e.Reason)
		byReason[key] = append(byReason[key], e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	known := make(map[string]bool, len(r.learned)+len(sensitiveTerms))
	for _, t := range r.learned {
		known[t] = true
	}
	for _, t := range sensitiveTerms {
		known[t] = true
	}

	var added []string
	reasons := make([]string, 0, len(byReason))
	for k := range byReason {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)

	for _, reason := range reasons {
		group := byReason[reason]
		if len(group) < 3 {
			continue
		}

		freq := make(map[string]int)
		for _, e := range group {
			seen := make(map[string]bool)
			for _, w := range strings.Fields(strings.ToLower(e.Query)) {
				w = strings.Trim(w, `.,;:?!"'()`)
				if len(w) < 4 || escalationStopwords[w] || seen[w] {
					continue
				}
				seen[w] = true
				freq[w]++
			}
		}

		terms := make([]string, 0, len(freq))
		for w, n := range freq {
			if n >= 2 && !known[w] {
				terms = append(terms, w)
			}
		}
		sort.Slice(terms, func(i, j int) bool {
			if freq[terms[i]] != freq[terms[j]] {
				return freq[terms[i]] > freq[terms[j]]
			}
			return terms[i] < terms[j]
		})
		if len(terms) > 5 {
			terms = terms[:5]
		}
		for _, t := range terms {
			known[t] = true
			r.learned = append(r.learned, t)
			added = append(added, t)
		}
	}

	if len(added) > 0 {
		slog.Info("automate: learned review terms from escalations", "terms", added)
	}
	return added
}

// AddReviewRule registers an explicit review term, used by the QA
// harness's automated fixes.
func (r *Reviewer) AddReviewRule(term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.learned {
		if t == term {
			return
		}
	}
	r.learned = append(r.learned, term)
}
