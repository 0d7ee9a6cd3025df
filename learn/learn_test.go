package learn

import (
	"fmt"
	"testing"
	"time"

	"github.com/evanhollis/covergraph/query"
	"github.com/evanhollis/covergraph/store"
)

func TestSessionHistoryCap(t *testing.T) {
	s := NewSession("U5001")
	for i := 0; i < 15; i++ {
		s.Add(Turn{Query: fmt.Sprintf("question %d", i)})
	}
	turns := s.Turns()
	if len(turns) != 10 {
		t.Fatalf("history = %d turns, want 10", len(turns))
	}
	if turns[0].Query != "question 5" {
		t.Errorf("oldest retained turn = %q, want question 5", turns[0].Query)
	}
	if turns[9].Query != "question 14" {
		t.Errorf("newest turn = %q", turns[9].Query)
	}
}

func TestSessionContext(t *testing.T) {
	s := NewSession("U5001")
	s.Add(Turn{Query: "details for P1001", Params: map[string]string{"policy_number": "P1001"}})
	s.Add(Turn{Query: "status of CL4001", Params: map[string]string{"claim_number": "CL4001"}})
	s.Add(Turn{Query: "details for P1001 again", Params: map[string]string{"policy_number": "P1001"}})

	uc := s.Context()
	if uc.UserID != "U5001" {
		t.Errorf("user = %q", uc.UserID)
	}
	if len(uc.KnownPolicies) != 1 || uc.KnownPolicies[0] != "P1001" {
		t.Errorf("known policies = %v", uc.KnownPolicies)
	}
	if len(uc.KnownClaims) != 1 || uc.KnownClaims[0] != "CL4001" {
		t.Errorf("known claims = %v", uc.KnownClaims)
	}
}

func TestTrackerRunningMean(t *testing.T) {
	tr := NewTracker()
	tr.Record(query.IntentPolicyDetails, 100*time.Millisecond, true, false)
	tr.Record(query.IntentPolicyDetails, 300*time.Millisecond, true, true)
	tr.Record(query.IntentClaimStatus, 200*time.Millisecond, false, false)

	m := tr.Snapshot()
	if m.TotalQueries != 3 || m.SuccessfulQueries != 2 || m.ComplexQueries != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if m.AvgResponseMs != 200 {
		t.Errorf("avg = %v, want 200", m.AvgResponseMs)
	}
	if m.IntentCounts["policy_details"] != 2 {
		t.Errorf("intent counts = %v", m.IntentCounts)
	}
}

func TestUpdateFromFeedback(t *testing.T) {
	c := query.NewClassifier()
	feedback := []store.Feedback{
		{QueryID: "q1", Rating: "positive"},
		{QueryID: "q2", Rating: "negative"},
		{QueryID: "q3", Rating: "helpful"},
		{QueryID: "missing", Rating: "positive"},
	}
	records := []store.QueryRecord{
		{QueryID: "q1", Query: "how big is my deductible on the house policy", Intent: "coverage_inquiry"},
		{QueryID: "q2", Query: "whatever", Intent: "policy_details"},
		{QueryID: "q3", Query: "did my roof claim go through", Intent: "claim_status"},
	}

	added := UpdateFromFeedback(c, feedback, records)
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	learned := c.LearnedExamples()
	if learned[query.IntentCoverageInquiry] != 1 || learned[query.IntentClaimStatus] != 1 {
		t.Errorf("learned examples = %v", learned)
	}

	// The learned example should now classify its own phrasing.
	got := c.Classify("how big is my deductible on the house policy")
	if got.Intent != query.IntentCoverageInquiry {
		t.Errorf("intent after learning = %s", got.Intent)
	}
}

func TestDiscoverIntents(t *testing.T) {
	queries := []string{
		"can I add my teenager as a driver",
		"add another driver to the car",
		"new driver on my auto, how",
	}
	found := DiscoverIntents(queries, 0)
	if len(found) != 1 {
		t.Fatalf("discovered = %+v, want 1", found)
	}
	d := found[0]
	if d.Name != "discovered_intent_1" {
		t.Errorf("name = %q", d.Name)
	}
	hasDriver := false
	for _, term := range d.Terms {
		if term == "driver" {
			hasDriver = true
		}
	}
	if !hasDriver {
		t.Errorf("terms = %v, want to include driver", d.Terms)
	}
}

func TestDiscoverIntentsNeedsThree(t *testing.T) {
	if got := DiscoverIntents([]string{"a b c", "a b c"}, 0); got != nil {
		t.Errorf("discovered from 2 queries: %+v", got)
	}
}

func TestOptimizeFlags(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 12; i++ {
		tr.Record(query.IntentPremiumInformation, 900*time.Millisecond, true, true)
	}
	rep := tr.Optimize()
	if len(rep.Flags) != 3 {
		t.Errorf("flags = %v, want 3 (hot intent, latency, complex)", rep.Flags)
	}

	quiet := NewTracker()
	quiet.Record(query.IntentPolicyDetails, 50*time.Millisecond, true, false)
	if got := quiet.Optimize(); len(got.Flags) != 0 {
		t.Errorf("unexpected flags: %v", got.Flags)
	}
}
