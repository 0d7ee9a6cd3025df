// Package learn carries the feedback loop: per-session conversation
// history, running query metrics, intent learning from positive
// feedback, and discovery of candidate intents among unknown queries.
package learn

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evanhollis/covergraph/query"
	"github.com/evanhollis/covergraph/store"
)

// historyCap bounds how many turns a session remembers.
const historyCap = 10

// Turn is one query/answer exchange in a session.
type Turn struct {
	Query  string            `json:"query"`
	Intent query.Intent      `json:"intent"`
	Params map[string]string `json:"params,omitempty"`
	Answer string            `json:"answer"`
	At     time.Time         `json:"at"`
}

// Session holds the rolling conversation history used as context for
// exception reprocessing. Safe for concurrent use.
type Session struct {
	mu    sync.Mutex
	user  string
	turns []Turn
}

// NewSession creates an empty session for a user ID ("" is anonymous).
func NewSession(userID string) *Session {
	return &Session{user: userID}
}

// Add appends a turn, evicting the oldest past the history cap.
func (s *Session) Add(t Turn) {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	if len(s.turns) > historyCap {
		s.turns = s.turns[len(s.turns)-historyCap:]
	}
}

// Turns returns a copy of the history, oldest first.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Context derives the session identity for parameter extraction:
// identifiers mentioned in earlier turns become known values.
func (s *Session) Context() query.UserContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	uc := query.UserContext{UserID: s.user}
	seenPolicy := make(map[string]bool)
	seenClaim := make(map[string]bool)
	for _, t := range s.turns {
		if pn := t.Params["policy_number"]; pn != "" && !seenPolicy[pn] {
			seenPolicy[pn] = true
			uc.KnownPolicies = append(uc.KnownPolicies, pn)
		}
		if cn := t.Params["claim_number"]; cn != "" && !seenClaim[cn] {
			seenClaim[cn] = true
			uc.KnownClaims = append(uc.KnownClaims, cn)
		}
	}
	return uc
}

// Metrics is a running summary of query traffic.
type Metrics struct {
	TotalQueries      int            `json:"total_queries"`
	SuccessfulQueries int            `json:"successful_queries"`
	AvgResponseMs     float64        `json:"avg_response_ms"`
	IntentCounts      map[string]int `json:"intent_counts"`
	ComplexQueries    int            `json:"complex_queries"`
}

// Tracker accumulates running metrics. Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex
	m  Metrics
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{m: Metrics{IntentCounts: make(map[string]int)}}
}

// Record folds one query into the running metrics. complex marks graph
// queries with more than one path.
func (t *Tracker) Record(intent query.Intent, elapsed time.Duration, success, complex bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := float64(t.m.TotalQueries)
	t.m.AvgResponseMs = (t.m.AvgResponseMs*n + float64(elapsed.Milliseconds())) / (n + 1)
	t.m.TotalQueries++
	if success {
		t.m.SuccessfulQueries++
	}
	if complex {
		t.m.ComplexQueries++
	}
	t.m.IntentCounts[string(intent)]++
}

// Snapshot returns a copy of the current metrics.
func (t *Tracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.m
	out.IntentCounts = make(map[string]int, len(t.m.IntentCounts))
	for k, v := range t.m.IntentCounts {
		out.IntentCounts[k] = v
	}
	return out
}

// UpdateFromFeedback turns positively rated answers into intent
// examples: the original query text is added as a learned pattern for
// the intent it resolved to. Returns how many examples were added.
func UpdateFromFeedback(c *query.Classifier, feedback []store.Feedback, records []store.QueryRecord) int {
	byID := make(map[string]store.QueryRecord, len(records))
	for _, r := range records {
		byID[r.QueryID] = r
	}

	added := 0
	for _, f := range feedback {
		if !PositiveRating(f.Rating) {
			continue
		}
		rec, ok := byID[f.QueryID]
		if !ok || rec.Intent == "" || rec.Intent == string(query.IntentUnknown) {
			continue
		}
		c.AddExample(query.Intent(rec.Intent), rec.Query)
		added++
	}
	if added > 0 {
		slog.Info("learn: added intent examples from feedback", "count", added)
	}
	return added
}

// PositiveRating reports whether a feedback rating counts as an
// endorsement of the answer.
func PositiveRating(rating string) bool {
	switch strings.ToLower(strings.TrimSpace(rating)) {
	case "positive", "good", "helpful", "up", "thumbs_up", "5", "4":
		return true
	}
	return false
}

// DiscoveredIntent is a candidate intent mined from unknown queries.
type DiscoveredIntent struct {
	Name    string   `json:"name"`
	Terms   []string `json:"terms"`
	Queries int      `json:"queries"`
}

var discoveryStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true,
	"how": true, "can": true, "you": true, "about": true, "this": true,
	"that": true, "are": true, "was": true, "have": true, "does": true,
	"why": true, "when": true, "where": true, "from": true, "will": true,
	"please": true, "tell": true, "know": true, "need": true, "want": true,
}

// DiscoverIntents proposes new intents from queries the classifier
// could not place. Needs at least 3 unknown queries; the shared
// non-stopword terms (3+ chars, top 10 by frequency) seed one
// discovered_intent_N candidate.
func DiscoverIntents(unknownQueries []string, existing int) []DiscoveredIntent {
	if len(unknownQueries) < 3 {
		return nil
	}

	freq := make(map[string]int)
	for _, q := range unknownQueries {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(q)) {
			w = strings.Trim(w, `.,;:?!"'()`)
			if len(w) < 3 || discoveryStopwords[w] || seen[w] {
				continue
			}
			seen[w] = true
			freq[w]++
		}
	}

	// Shared terms appear in at least two unknown queries.
	var terms []string
	for w, n := range freq {
		if n >= 2 {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 {
		return nil
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > 10 {
		terms = terms[:10]
	}

	name := "discovered_intent_" + strconv.Itoa(existing+1)
	slog.Info("learn: discovered candidate intent",
		"name", name, "terms", terms, "queries", len(unknownQueries))
	return []DiscoveredIntent{{Name: name, Terms: terms, Queries: len(unknownQueries)}}
}

// OptimizeReport flags traffic patterns worth operator attention.
type OptimizeReport struct {
	Flags []string `json:"flags,omitempty"`
}

// Optimize inspects the running metrics: an intent over 10 queries,
// average latency above 500ms, or more than 10 complex queries each
// raise a flag.
func (t *Tracker) Optimize() OptimizeReport {
	m := t.Snapshot()
	var rep OptimizeReport

	intents := make([]string, 0, len(m.IntentCounts))
	for k := range m.IntentCounts {
		intents = append(intents, k)
	}
	sort.Strings(intents)
	for _, intent := range intents {
		if m.IntentCounts[intent] > 10 {
			rep.Flags = append(rep.Flags,
				"high-traffic intent "+intent+": consider caching its graph query")
		}
	}
	if m.AvgResponseMs > 500 {
		rep.Flags = append(rep.Flags, "average latency above 500ms")
	}
	if m.ComplexQueries > 10 {
		rep.Flags = append(rep.Flags, "frequent multi-hop graph queries: consider widening indexes")
	}
	return rep
}
