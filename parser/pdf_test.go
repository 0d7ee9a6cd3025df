package parser

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// fixRunningHeaders tests
// ---------------------------------------------------------------------------

func TestFixRunningHeadersBasicReplacement(t *testing.T) {
	// Simulates a policy where the form number "HO 00 03 10 00" appears on
	// every page as a running header. "Coverage C" starts on page 5 and
	// continues onto page 6, where the running header displaces it.
	sections := []Section{
		{Heading: "HO 00 03 10 00", Content: "agreement text", PageNumber: 1, Level: 1},
		{Heading: "DEFINITIONS", Content: "defined terms", PageNumber: 1, Level: 1},
		{Heading: "HO 00 03 10 00", Content: "more definitions", PageNumber: 2, Level: 1},
		{Heading: "SECTION I - PROPERTY COVERAGES", Content: "coverage a text", PageNumber: 2, Level: 1},
		{Heading: "HO 00 03 10 00", Content: "coverage a cont", PageNumber: 3, Level: 1},
		{Heading: "COVERAGE B", Content: "other structures", PageNumber: 3, Level: 1},
		{Heading: "HO 00 03 10 00", Content: "coverage b cont", PageNumber: 4, Level: 1},
		{Heading: "COVERAGE C", Content: "personal property", PageNumber: 5, Level: 1},
		// Page 6: running header displaces "COVERAGE C"
		{Heading: "HO 00 03 10 00", Content: "jewelry watches furs special limits", PageNumber: 6, Level: 1},
		{Heading: "HO 00 03 10 00", Content: "more content", PageNumber: 7, Level: 1},
	}

	result := fixRunningHeaders(sections, 7)

	// The running header should be replaced with the last real heading.
	// On page 6, the last real heading was "COVERAGE C" from page 5.
	for _, s := range result {
		if s.PageNumber == 6 && strings.Contains(s.Content, "jewelry") {
			if s.Heading != "COVERAGE C" {
				t.Errorf("page 6 (jewelry): expected heading %q, got %q", "COVERAGE C", s.Heading)
			}
			return
		}
	}
	t.Error("did not find the jewelry section on page 6")
}

func TestFixRunningHeadersThresholdDetection(t *testing.T) {
	// A heading appearing on exactly 3 pages out of 12 (25%) should be
	// detected as running if threshold = max(3, 12/4) = 3.
	sections := []Section{
		{Heading: "REPEATED", Content: "a", PageNumber: 1, Level: 1},
		{Heading: "1.0 Agreement", Content: "b", PageNumber: 2, Level: 1},
		{Heading: "REPEATED", Content: "c", PageNumber: 5, Level: 1},
		{Heading: "REPEATED", Content: "d", PageNumber: 9, Level: 1},
	}

	result := fixRunningHeaders(sections, 12)

	// Pages 5 and 9 should get "1.0 Agreement" carried over.
	for _, s := range result {
		if s.Content == "c" && s.Heading != "1.0 Agreement" {
			t.Errorf("page 5: expected heading %q, got %q", "1.0 Agreement", s.Heading)
		}
		if s.Content == "d" && s.Heading != "1.0 Agreement" {
			t.Errorf("page 9: expected heading %q, got %q", "1.0 Agreement", s.Heading)
		}
	}
}

func TestFixRunningHeadersBelowThreshold(t *testing.T) {
	// A heading appearing on only 2 pages out of 20 should NOT be treated
	// as a running header (threshold = max(3, 5) = 5).
	sections := []Section{
		{Heading: "APPEARS TWICE", Content: "a", PageNumber: 1, Level: 1},
		{Heading: "1.0 Coverage", Content: "b", PageNumber: 5, Level: 1},
		{Heading: "APPEARS TWICE", Content: "c", PageNumber: 10, Level: 1},
	}

	result := fixRunningHeaders(sections, 20)

	for _, s := range result {
		if s.Content == "c" && s.Heading != "APPEARS TWICE" {
			t.Errorf("expected unchanged heading, got %q", s.Heading)
		}
	}
}

func TestFixRunningHeadersShortDocument(t *testing.T) {
	// Documents under 3 pages are returned untouched.
	sections := []Section{
		{Heading: "TITLE", Content: "a", PageNumber: 1, Level: 1},
		{Heading: "TITLE", Content: "b", PageNumber: 2, Level: 1},
	}

	result := fixRunningHeaders(sections, 2)
	for _, s := range result {
		if s.Heading != "TITLE" {
			t.Errorf("expected unchanged heading, got %q", s.Heading)
		}
	}
}

func TestFixRunningHeadersNoRealHeadingBefore(t *testing.T) {
	// If the running header appears before any real heading, there is
	// nothing to carry over and the section keeps its heading.
	sections := []Section{
		{Heading: "FORM 100", Content: "a", PageNumber: 1, Level: 1},
		{Heading: "FORM 100", Content: "b", PageNumber: 2, Level: 1},
		{Heading: "FORM 100", Content: "c", PageNumber: 3, Level: 1},
		{Heading: "1.0 Agreement", Content: "d", PageNumber: 4, Level: 1},
	}

	result := fixRunningHeaders(sections, 8)
	if result[0].Heading != "FORM 100" {
		t.Errorf("first section: expected %q kept, got %q", "FORM 100", result[0].Heading)
	}
}

// ---------------------------------------------------------------------------
// Running header type reclassification
// ---------------------------------------------------------------------------

func TestFixRunningHeadersReclassifiesType(t *testing.T) {
	sections := []Section{
		{Heading: "HO-3", Content: "x", PageNumber: 1, Level: 1, Type: "section"},
		{Heading: "SECTION I EXCLUSIONS", Content: "earth movement", PageNumber: 2, Level: 1, Type: "exclusion"},
		{Heading: "HO-3", Content: "flood and surface water excluded", PageNumber: 3, Level: 1, Type: "section"},
		{Heading: "HO-3", Content: "y", PageNumber: 4, Level: 1, Type: "section"},
	}

	result := fixRunningHeaders(sections, 10)

	for _, s := range result {
		if s.PageNumber == 3 {
			if s.Heading != "SECTION I EXCLUSIONS" {
				t.Fatalf("page 3: expected exclusions heading, got %q", s.Heading)
			}
			if s.Type != "exclusion" {
				t.Errorf("page 3: expected type exclusion after carry-over, got %q", s.Type)
			}
		}
	}
}
