package covergraph

import (
	"strings"
	"testing"
)

func TestExtractSnippetBasicOverlap(t *testing.T) {
	content := "The deductible for collision coverage is $1,000. Claims are paid within 15 business days. This policy renews annually."
	answerWords := significantWords("Your collision deductible is $1,000 per the declarations.")

	snippet := extractSnippet(content, answerWords)
	if snippet == "" {
		t.Fatal("expected non-empty snippet")
	}
	if !strings.Contains(snippet, "deductible") {
		t.Errorf("expected snippet to mention the deductible, got: %q", snippet)
	}
}

func TestExtractSnippetNoOverlap(t *testing.T) {
	content := "The quick brown fox jumps over the lazy dog."
	answerWords := significantWords("liability coverage excludes intentional acts")

	if snippet := extractSnippet(content, answerWords); snippet != "" {
		t.Errorf("expected empty snippet when no overlap, got: %q", snippet)
	}
}

func TestExtractSnippetEmptyInputs(t *testing.T) {
	if s := extractSnippet("", map[string]bool{"test": true}); s != "" {
		t.Errorf("expected empty for empty content, got: %q", s)
	}
	if s := extractSnippet("some content here.", nil); s != "" {
		t.Errorf("expected empty for nil answerWords, got: %q", s)
	}
	if s := extractSnippet("some content here.", map[string]bool{}); s != "" {
		t.Errorf("expected empty for empty answerWords, got: %q", s)
	}
}

func TestExtractSnippetPrefersOperativeLanguage(t *testing.T) {
	// Both sentences overlap equally; the one with the limit wins.
	content := "Liability coverage protects against lawsuits generally. Liability coverage carries a limit of $500,000."
	answerWords := significantWords("liability coverage")

	snippet := extractSnippet(content, answerWords)
	if !strings.Contains(snippet, "$500,000") {
		t.Errorf("expected the limit sentence to lead, got: %q", snippet)
	}
}

func TestExtractSnippetRespectsMaxLen(t *testing.T) {
	content := "First sentence about premiums. Second sentence about deductible amounts. " +
		"Third sentence about liability limits. Fourth sentence about exclusion clauses. " +
		"Fifth sentence about claim procedures. Sixth sentence about renewal schedules."
	answerWords := significantWords("premiums deductible liability exclusion claim renewal")

	snippet := extractSnippet(content, answerWords)
	if len(snippet) > snippetMaxLen {
		t.Errorf("snippet exceeds max length: %d > %d", len(snippet), snippetMaxLen)
	}
}

func TestSignificantWords(t *testing.T) {
	words := significantWords("The policy covers fire damage. This is very important for claims.")

	for _, want := range []string{"policy", "covers", "fire", "damage", "important", "claims"} {
		if !words[want] {
			t.Errorf("expected %q in significant words", want)
		}
	}
	if words["this"] {
		t.Error("'this' should be excluded (stop word)")
	}
	if words["very"] {
		t.Error("'very' should be excluded (stop word)")
	}
	if words["the"] || words["for"] {
		t.Error("short words should be excluded")
	}
}

func TestSnippetSplitSentences(t *testing.T) {
	text := "First sentence. Second sentence? Third sentence! Final text without period"
	sentences := snippetSplitSentences(text)

	want := []string{"First sentence.", "Second sentence?", "Third sentence!", "Final text without period"}
	if len(sentences) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(sentences), sentences)
	}
	for i := range want {
		if sentences[i] != want[i] {
			t.Errorf("sentence %d: got %q, want %q", i, sentences[i], want[i])
		}
	}
}

func TestExtractSnippetAdjacentSentences(t *testing.T) {
	content := "Coverage begins at inception. The premium is $1,200 annually. Payments are due monthly."
	answerWords := significantWords("premium $1,200 payments monthly")

	snippet := extractSnippet(content, answerWords)
	if !strings.Contains(snippet, "premium") {
		t.Errorf("expected premium mention in snippet: %q", snippet)
	}
	if !strings.Contains(snippet, "Payments") {
		t.Errorf("expected the adjacent payments sentence to be included: %q", snippet)
	}
}

func TestOperativeBonus(t *testing.T) {
	if got := operativeBonus("The limit is $500,000 under policy P1001."); got != 2 {
		t.Errorf("expected bonus 2, got %d", got)
	}
	if got := operativeBonus("Coverage protects the insured."); got != 0 {
		t.Errorf("expected bonus 0, got %d", got)
	}
}
