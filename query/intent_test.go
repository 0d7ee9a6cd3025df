package query

import (
	"math"
	"testing"
)

func TestClassifyIntents(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name       string
		query      string
		wantIntent Intent
		minConf    float64
	}{
		{"policy details", "Show me the policy details for P1001", IntentPolicyDetails, 0.8},
		{"policy info", "I need information about my policy", IntentPolicyDetails, 0.8},
		{"tell me about", "Tell me about my policy", IntentPolicyDetails, 0.8},
		{"coverage question", "What does my policy cover?", IntentCoverageInquiry, 0.8},
		{"am i covered", "Am I covered for water damage?", IntentCoverageInquiry, 0.8},
		{"claim status", "What's the status of my claim CL4001?", IntentClaimStatus, 0.8},
		{"claim location", "Where is my claim?", IntentClaimStatus, 0.8},
		{"premium amount", "How much is my premium?", IntentPremiumInformation, 0.8},
		{"premium changed", "Has my premium changed recently?", IntentPremiumInformation, 0.8},
		{"file claim", "How do I file a claim?", IntentFilingClaim, 0.8},
		{"report accident", "I want to report an accident", IntentFilingClaim, 0.8},
		{"submit claim", "I need to submit a new claim", IntentFilingClaim, 0.8},
		{"definition", "What is a deductible?", IntentDefinitionInquiry, 0.8},
		{"define term", "Define subrogation", IntentDefinitionInquiry, 0.8},
		{"meaning", "What does endorsement mean?", IntentDefinitionInquiry, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.query)
			if got.Intent != tt.wantIntent {
				t.Errorf("Classify(%q) intent = %q, want %q", tt.query, got.Intent, tt.wantIntent)
			}
			if got.Confidence < tt.minConf {
				t.Errorf("Classify(%q) confidence = %.2f, want >= %.2f", tt.query, got.Confidence, tt.minConf)
			}
		})
	}
}

func TestClassifyConfidenceGrowsWithMatches(t *testing.T) {
	c := NewClassifier()

	// One matching pattern.
	single := c.Classify("Has my premium changed recently?")
	if single.Matches != 1 || math.Abs(single.Confidence-0.8) > 1e-9 {
		t.Errorf("single match: got %d matches, confidence %.2f; want 1 and 0.80", single.Matches, single.Confidence)
	}

	// Two matching patterns.
	double := c.Classify("How much is my premium?")
	if double.Matches != 2 || math.Abs(double.Confidence-0.9) > 1e-9 {
		t.Errorf("double match: got %d matches, confidence %.2f; want 2 and 0.90", double.Matches, double.Confidence)
	}

	// Three matching patterns still cap at 0.9.
	triple := c.Classify("How much is my premium payment schedule?")
	if triple.Matches < 3 {
		t.Fatalf("expected >= 3 pattern matches, got %d", triple.Matches)
	}
	if math.Abs(triple.Confidence-0.9) > 1e-9 {
		t.Errorf("capped confidence = %.2f, want 0.90", triple.Confidence)
	}
}

func TestClassifyTieBreaksToEarlierIntent(t *testing.T) {
	c := NewClassifier()

	// Matches both a coverage pattern and an anchored definition pattern;
	// coverage_inquiry is declared first so it wins the tie.
	got := c.Classify("What is my coverage limit?")
	if got.Intent != IntentCoverageInquiry {
		t.Errorf("intent = %q, want %q", got.Intent, IntentCoverageInquiry)
	}
}

func TestClassifyKeywordFallback(t *testing.T) {
	c := NewClassifier()

	got := c.Classify("premium cost and the monthly bill")
	if got.Intent != IntentPremiumInformation {
		t.Fatalf("intent = %q, want %q", got.Intent, IntentPremiumInformation)
	}
	if got.Method != "keyword" {
		t.Errorf("method = %q, want keyword", got.Method)
	}
	if math.Abs(got.Confidence-0.75) > 1e-9 {
		t.Errorf("confidence = %.2f, want 0.75", got.Confidence)
	}
}

func TestClassifyUnknown(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name    string
		query   string
		minConf float64
	}{
		{"nonsense", "the weather is nice today", 0.9},
		{"empty", "", 0.9},
		// A lone keyword hit scores 0.45, below the 0.6 floor, so the
		// classifier reports unknown with confidence 0.55.
		{"single stray keyword", "my claim", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.query)
			if got.Intent != IntentUnknown {
				t.Errorf("intent = %q, want unknown", got.Intent)
			}
			if got.Confidence < tt.minConf {
				t.Errorf("confidence = %.2f, want >= %.2f", got.Confidence, tt.minConf)
			}
		})
	}
}

func TestAddExample(t *testing.T) {
	c := NewClassifier()
	q := "My roof is leaking, what should I do?"

	before := c.Classify(q)
	if before.Intent != IntentUnknown {
		t.Fatalf("before learning: intent = %q, want unknown", before.Intent)
	}

	c.AddExample(IntentFilingClaim, "roof is leaking")

	after := c.Classify(q)
	if after.Intent != IntentFilingClaim {
		t.Errorf("after learning: intent = %q, want %q", after.Intent, IntentFilingClaim)
	}
	if after.Method != "pattern" {
		t.Errorf("after learning: method = %q, want pattern", after.Method)
	}

	counts := c.LearnedExamples()
	if counts[IntentFilingClaim] != 1 {
		t.Errorf("learned count = %d, want 1", counts[IntentFilingClaim])
	}
}

func TestAddExampleIgnoresUnusable(t *testing.T) {
	c := NewClassifier()
	c.AddExample(IntentUnknown, "whatever")
	c.AddExample(IntentClaimStatus, "   ")

	for intent, n := range c.LearnedExamples() {
		if n != 0 {
			t.Errorf("intent %q has %d learned examples, want none", intent, n)
		}
	}
}
