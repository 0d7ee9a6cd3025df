package respond

import (
	"strings"
	"testing"

	"github.com/evanhollis/covergraph/query"
	"github.com/evanhollis/covergraph/store"
)

func results(count int, props map[string][]string) *query.Results {
	return &query.Results{Count: count, Properties: props}
}

// ---------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------

func TestRenderPolicyDetails(t *testing.T) {
	r := New()
	out := r.Render(Input{
		Query:  "What are the details of policy P1001?",
		Intent: query.IntentPolicyDetails,
		Params: query.Params{PolicyNumber: "P1001"},
		Results: results(1, map[string][]string{
			"p.policy_number":   {"P1001"},
			"p.status":          {"active"},
			"p.effective_date":  {"2025-01-01"},
			"p.expiration_date": {"2026-01-01"},
		}),
	})

	if out.NoResult {
		t.Fatalf("expected a rendered answer, got no-result: %q", out.Text)
	}
	for _, want := range []string{"P1001", "active", "2025-01-01", "2026-01-01"} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("answer missing %q: %q", want, out.Text)
		}
	}
	if strings.Contains(out.Text, "{") {
		t.Errorf("unfilled placeholder in %q", out.Text)
	}
	if len(out.FollowUps) == 0 || len(out.FollowUps) > 3 {
		t.Errorf("follow-ups = %d, want 1..3", len(out.FollowUps))
	}
}

func TestRenderCoverageList(t *testing.T) {
	r := New()
	out := r.Render(Input{
		Intent: query.IntentCoverageInquiry,
		Params: query.Params{PolicyNumber: "P1001"},
		Results: results(3, map[string][]string{
			"p.policy_number": {"P1001"},
			"c.type":          {"liability", "collision", "comprehensive"},
			"c.limit":         {"500000", "250000", "250000"},
		}),
	})

	if !strings.Contains(out.Text, "liability") || !strings.Contains(out.Text, "and ") {
		t.Errorf("coverage list not joined as prose: %q", out.Text)
	}
	if !strings.Contains(out.Text, "$1,000,000") {
		t.Errorf("combined limit not formatted: %q", out.Text)
	}
}

func TestRenderProcedural(t *testing.T) {
	r := New()
	out := r.Render(Input{
		Intent: query.IntentFilingClaim,
		Results: &query.Results{
			Procedural:   true,
			RequiredInfo: query.ClaimsRequiredInfo,
			Contact:      query.ClaimsContact,
		},
	})
	if !strings.Contains(out.Text, "file a claim") {
		t.Errorf("procedural answer = %q", out.Text)
	}
	if !strings.Contains(out.Text, query.ClaimsContact) {
		t.Errorf("procedural answer missing contact: %q", out.Text)
	}
}

func TestRenderNoResult(t *testing.T) {
	r := New()
	out := r.Render(Input{
		Intent:  query.IntentPolicyDetails,
		Params:  query.Params{PolicyNumber: "P9999"},
		Results: results(0, nil),
	})
	if !out.NoResult {
		t.Fatal("expected no-result answer")
	}
	if !strings.Contains(out.Text, "P9999") {
		t.Errorf("no-result message should name the policy number: %q", out.Text)
	}
}

func TestTemplateSelectionOrder(t *testing.T) {
	// With only number+status present, the fuller templates must be
	// skipped in favour of the short status one.
	_, text, ok := renderTemplates(query.IntentPolicyDetails, map[string]string{
		"policy_number": "P1", "status": "active",
	})
	if !ok {
		t.Fatal("no template rendered")
	}
	if want := "Policy P1 is currently active."; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

// ---------------------------------------------------------------
// Formatting helpers
// ---------------------------------------------------------------

func TestMoney(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1200", "$1200"},
		{"$500", "$500"},
		{"monthly", "monthly"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := money(tt.in); got != tt.want {
			t.Errorf("money(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1000000, "1,000,000"},
		{500, "500"},
		{1234.5, "1,234.5"},
	}
	for _, tt := range tests {
		if got := groupThousands(tt.in); got != tt.want {
			t.Errorf("groupThousands(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoinSetDeduplicates(t *testing.T) {
	got := joinSet([]string{"fire", "Fire", "theft"})
	if got != "fire and theft" {
		t.Errorf("joinSet = %q", got)
	}
}

// ---------------------------------------------------------------
// Citations
// ---------------------------------------------------------------

func TestExtractCitations(t *testing.T) {
	chunks := []store.RetrievalResult{
		{ChunkID: 1, Filename: "ho3-policy.pdf", Heading: "SECTION I - PROPERTY COVERAGES", PageNumber: 3},
		{ChunkID: 2, Filename: "ho3-policy.pdf", Heading: "EXCLUSIONS", PageNumber: 9},
	}

	answer := "Water damage is excluded under Section I (ho3-policy.pdf). See Form HO-3 and Page 9."
	cits := ExtractCitations(answer, chunks)
	if len(cits) < 3 {
		t.Fatalf("citations = %d, want >= 3: %+v", len(cits), cits)
	}

	byText := map[string]Citation{}
	for _, c := range cits {
		byText[c.Text] = c
	}
	if c := byText["(ho3-policy.pdf)"]; !c.Verified || c.ChunkID != 1 {
		t.Errorf("filename citation not verified: %+v", c)
	}
	if c := byText["Page 9"]; !c.Verified || c.ChunkID != 2 {
		t.Errorf("page citation not verified: %+v", c)
	}
}

func TestCitationUnverified(t *testing.T) {
	cits := ExtractCitations("See Endorsement E-3.", nil)
	if len(cits) != 1 || cits[0].Verified {
		t.Errorf("expected a single unverified citation, got %+v", cits)
	}
}

// ---------------------------------------------------------------
// Validation and confidence
// ---------------------------------------------------------------

func TestValidateUnfilledPlaceholder(t *testing.T) {
	v := Validate("Policy {policy_number} is active.", Input{})
	if v.CompletenessValid {
		t.Error("unfilled placeholder should fail completeness")
	}
	if v.Score() >= 1.0 {
		t.Errorf("score = %v, want < 1", v.Score())
	}
}

func TestValidateConsistency(t *testing.T) {
	in := Input{
		Params: query.Params{PolicyNumber: "P1001"},
		Results: results(1, map[string][]string{
			"p.policy_number": {"P2002"},
		}),
	}
	v := Validate("Policy P1001 is active.", in)
	if v.ConsistencyValid {
		t.Error("answer naming an identifier absent from results should fail consistency")
	}
}

func TestConfidenceBounds(t *testing.T) {
	in := Input{
		Results: results(1, map[string][]string{"p.status": {"active"}}),
		Chunks:  []store.RetrievalResult{{ChunkID: 1, Filename: "policy.pdf"}},
	}
	answer := "Policy P1001 is currently active, effective from 2025-01-01 to 2026-01-01."
	conf := ComputeConfidence(answer, in, Validate(answer, in), DefaultConfidenceWeights())
	if conf <= 0 || conf > 1 {
		t.Errorf("confidence = %v, want (0,1]", conf)
	}

	empty := ComputeConfidence("", Input{}, Validate("", Input{}), DefaultConfidenceWeights())
	if empty >= conf {
		t.Errorf("empty answer confidence %v should be below %v", empty, conf)
	}
}

// ---------------------------------------------------------------
// Definition fallback
// ---------------------------------------------------------------

func TestFindDefinition(t *testing.T) {
	defs := []store.Entity{
		{Name: "actual cash value", Description: "replacement cost minus depreciation", EntityType: "definition"},
		{Name: "occurrence", Description: "an accident, including continuous exposure", EntityType: "definition"},
	}

	tests := []struct {
		term      string
		wantTerm  string
		wantScore float64
		found     bool
	}{
		{"actual cash value", "actual cash value", 1.0, true},
		{"cash value", "actual cash value", 0.8, true},
		{"value of actual cash", "actual cash value", 0, true}, // Jaccard path
		{"subrogation", "", 0, false},
	}
	for _, tt := range tests {
		got, ok := FindDefinition(tt.term, defs)
		if ok != tt.found {
			t.Errorf("FindDefinition(%q) found = %v, want %v", tt.term, ok, tt.found)
			continue
		}
		if !ok {
			continue
		}
		if got.Term != tt.wantTerm {
			t.Errorf("FindDefinition(%q).Term = %q, want %q", tt.term, got.Term, tt.wantTerm)
		}
		if tt.wantScore > 0 && got.Score != tt.wantScore {
			t.Errorf("FindDefinition(%q).Score = %v, want %v", tt.term, got.Score, tt.wantScore)
		}
	}
}
