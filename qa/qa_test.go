//go:build cgo

package qa

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanhollis/covergraph/query"
	"github.com/evanhollis/covergraph/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "qa.db")
	s, err := store.New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seededRunner(t *testing.T) *Runner {
	t.Helper()
	s := newTestStore(t)
	if _, err := BuildSyntheticGraph(context.Background(), s, 42); err != nil {
		t.Fatalf("building synthetic graph: %v", err)
	}
	return NewRunner(s)
}

// ---------------------------------------------------------------------------
// Synthetic graph
// ---------------------------------------------------------------------------

func TestBuildSyntheticGraph(t *testing.T) {
	s := newTestStore(t)
	g, err := BuildSyntheticGraph(context.Background(), s, 42)
	if err != nil {
		t.Fatalf("BuildSyntheticGraph: %v", err)
	}
	if len(g.Policies) != 10 {
		t.Errorf("policies = %d, want 10", len(g.Policies))
	}
	if len(g.Insureds) != 8 {
		t.Errorf("insureds = %d, want 8", len(g.Insureds))
	}
	if len(g.Coverages) != 20 {
		t.Errorf("coverages = %d, want 20", len(g.Coverages))
	}
	if len(g.Claims) != 15 {
		t.Errorf("claims = %d, want 15", len(g.Claims))
	}
	if len(g.Premiums) != 10 {
		t.Errorf("premiums = %d, want 10", len(g.Premiums))
	}
	if g.Relationships == 0 {
		t.Error("expected relationships to be created")
	}
	if g.Policies[0] != "P1001" {
		t.Errorf("first policy = %s, want P1001", g.Policies[0])
	}
}

func TestSyntheticFixtureValues(t *testing.T) {
	s := newTestStore(t)
	if _, err := BuildSyntheticGraph(context.Background(), s, 7); err != nil {
		t.Fatalf("BuildSyntheticGraph: %v", err)
	}
	ents, err := s.GetEntitiesByNames(context.Background(), []string{"P1001", "CL4001", "CL4002"})
	if err != nil {
		t.Fatalf("GetEntitiesByNames: %v", err)
	}
	byName := make(map[string]store.Entity, len(ents))
	for _, e := range ents {
		byName[e.Name] = e
	}
	if e, ok := byName["P1001"]; !ok || !strings.Contains(e.Metadata, `"status":"active"`) {
		t.Errorf("P1001 should be active, got %q", e.Metadata)
	}
	if e, ok := byName["CL4001"]; !ok || !strings.Contains(e.Metadata, `"status":"approved"`) {
		t.Errorf("CL4001 should be approved, got %q", e.Metadata)
	}
	if e, ok := byName["CL4002"]; !ok || !strings.Contains(e.Metadata, `"status":"denied"`) {
		t.Errorf("CL4002 should be denied, got %q", e.Metadata)
	}
}

func TestExtendSyntheticGraph(t *testing.T) {
	s := newTestStore(t)
	added, err := ExtendSyntheticGraph(context.Background(), s, 1, 3)
	if err != nil {
		t.Fatalf("ExtendSyntheticGraph: %v", err)
	}
	if len(added) != 3 {
		t.Fatalf("added = %d, want 3", len(added))
	}
	if added[0] != "P9001" {
		t.Errorf("first added = %s, want P9001", added[0])
	}
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

func TestRunnerPolicyLookup(t *testing.T) {
	r := seededRunner(t)
	out := r.Ask(context.Background(), "Show me the policy details for policy P1001", query.UserContext{})
	if out.Intent != query.IntentPolicyDetails {
		t.Fatalf("intent = %s, want policy_details", out.Intent)
	}
	if out.Params["policy_number"] != "P1001" {
		t.Fatalf("policy_number = %q, want P1001", out.Params["policy_number"])
	}
	if out.Results == nil || out.Results.Count != 1 {
		t.Fatalf("count = %d, want 1", resultCount(out))
	}
	if !strings.Contains(out.Answer, "P1001") || !strings.Contains(out.Answer, "active") {
		t.Errorf("answer %q should state P1001 and active", out.Answer)
	}
	if !out.Automated {
		t.Errorf("expected automation, got escalation: %s", out.Escalated)
	}
}

func TestRunnerClaimStatus(t *testing.T) {
	r := seededRunner(t)
	out := r.Ask(context.Background(), "What's the status of my claim CL4001?", query.UserContext{})
	if out.Intent != query.IntentClaimStatus {
		t.Fatalf("intent = %s, want claim_status", out.Intent)
	}
	if !strings.Contains(out.Answer, "approved") {
		t.Errorf("answer %q should state approved", out.Answer)
	}
	// Claim answers need document-backed citations to clear the 0.9
	// threshold, so a graph-only answer goes to review.
	if out.Automated {
		t.Error("graph-only claim answer should escalate")
	}
}

func TestRunnerPremium(t *testing.T) {
	r := seededRunner(t)
	out := r.Ask(context.Background(), "How much is my premium for policy P1001?", query.UserContext{})
	if !strings.Contains(out.Answer, "$1200") || !strings.Contains(out.Answer, "monthly") {
		t.Errorf("answer %q should state $1200 monthly", out.Answer)
	}
}

func TestRunnerDefinitionFuzzyFallback(t *testing.T) {
	r := seededRunner(t)
	out := r.Ask(context.Background(), "What is a deductible?", query.UserContext{})
	if out.Intent != query.IntentDefinitionInquiry {
		t.Fatalf("intent = %s, want definition_inquiry", out.Intent)
	}
	if !strings.Contains(out.Answer, "deductible") || !strings.Contains(out.Answer, "means") {
		t.Errorf("answer %q should define deductible", out.Answer)
	}
}

func TestRunnerUnknownClarifies(t *testing.T) {
	r := seededRunner(t)
	out := r.Ask(context.Background(), "What will the weather be like tomorrow?", query.UserContext{})
	if out.Intent != query.IntentUnknown {
		t.Fatalf("intent = %s, want unknown", out.Intent)
	}
	if out.Automated {
		t.Error("clarification answers should route to review")
	}
	if out.Answer == "" {
		t.Error("expected a clarification answer")
	}
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

func TestRunAllSuites(t *testing.T) {
	r := seededRunner(t)
	rep := r.RunAll(context.Background())

	if rep.Total == 0 {
		t.Fatal("expected cases to run")
	}
	if len(rep.Suites) != len(BuiltinSuites()) {
		t.Fatalf("suites = %d, want %d", len(rep.Suites), len(BuiltinSuites()))
	}
	if rep.Failed > 0 {
		for _, c := range rep.Failures() {
			t.Errorf("%s/%s failed: %v", c.Suite, c.Case, c.Failures)
		}
	}
	if rep.PassRate != 1.0 {
		t.Errorf("pass rate = %.2f, want 1.0", rep.PassRate)
	}
}

func TestHarnessFailureMessages(t *testing.T) {
	o := &Outcome{
		Intent:  query.IntentCoverageInquiry,
		Params:  map[string]string{},
		Answer:  "Policy P1001 includes liability coverage.",
		Results: &query.Results{Count: 1},
	}
	failures := checkExpect(Expect{
		Intent: query.IntentPolicyDetails,
		Params: map[string]string{"policy_number": "P1001"},
	}, o)
	if len(failures) != 2 {
		t.Fatalf("failures = %v, want 2 entries", failures)
	}
	if failures[0] != "Intent mismatch: expected 'policy_details', got 'coverage_inquiry'" {
		t.Errorf("unexpected message: %s", failures[0])
	}
	if failures[1] != "Missing parameter: 'policy_number'" {
		t.Errorf("unexpected message: %s", failures[1])
	}
}

func TestSessionContextRecovery(t *testing.T) {
	r := seededRunner(t)
	res := r.runCase(context.Background(), "manual", Case{
		Name:    "follow-up",
		Persona: PersonaClaimFiler,
		Setup:   []string{"Show me the policy details for policy P1001"},
		Query:   "What's the status of my claim CL4001?",
		Expect:  Expect{Contains: []string{"CL4001"}},
	})
	if !res.Passed {
		t.Errorf("case failed: %v", res.Failures)
	}
}

// ---------------------------------------------------------------------------
// Diagnosis and fixes
// ---------------------------------------------------------------------------

func TestDiagnoseBuckets(t *testing.T) {
	rep := &Report{
		Total:  4,
		Failed: 4,
		Suites: []SuiteReport{{
			Name: SuiteIntentRecognition,
			Results: []CaseResult{
				{Failures: []string{"Intent mismatch: expected 'claim_status', got 'unknown'"}},
				{Failures: []string{"Intent mismatch: expected 'premium_information', got 'unknown'"}},
				{Failures: []string{"Intent mismatch: expected 'policy_details', got 'unknown'"}},
				{Failures: []string{"Missing parameter: 'policy_number'"}},
			},
		}},
	}
	d := Diagnose(rep)
	if d.Buckets[BucketIntent] != 3 {
		t.Errorf("intent bucket = %d, want 3", d.Buckets[BucketIntent])
	}
	if d.Buckets[BucketParameter] != 1 {
		t.Errorf("parameter bucket = %d, want 1", d.Buckets[BucketParameter])
	}
	if len(d.Recommendations) == 0 {
		t.Error("expected recommendations for repeated intent failures")
	}
}

func TestApplyFixesTeachesClassifier(t *testing.T) {
	r := seededRunner(t)
	rep := r.RunAll(context.Background())
	d := Diagnose(rep)

	before := r.Classifier.LearnedExamples()
	applied := ApplyFixes(context.Background(), r, rep, d)
	after := r.Classifier.LearnedExamples()

	total := 0
	for _, n := range after {
		total += n
	}
	for _, n := range before {
		total -= n
	}
	if total == 0 {
		t.Error("expected high-confidence phrasings to be taught")
	}
	if len(applied) == 0 {
		t.Error("expected applied fixes to be reported")
	}
}

func TestAnalyzePerformance(t *testing.T) {
	rep := &Report{Total: 10, Passed: 5, Failed: 5, PassRate: 0.5, ComplianceFailures: 1}
	p := AnalyzePerformance(rep, &Report{PassRate: 0.9})
	if p.Trend != "degrading" {
		t.Errorf("trend = %s, want degrading", p.Trend)
	}
	var severities []string
	for _, f := range p.Findings {
		severities = append(severities, f.Severity)
	}
	joined := strings.Join(severities, ",")
	if !strings.Contains(joined, "high") || !strings.Contains(joined, "critical") {
		t.Errorf("findings %v should include high and critical severities", severities)
	}

	healthy := AnalyzePerformance(&Report{Total: 10, Passed: 10, PassRate: 1.0}, nil)
	if len(healthy.Findings) != 0 {
		t.Errorf("healthy run should have no findings, got %v", healthy.Findings)
	}
}
