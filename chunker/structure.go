package chunker

import (
	"regexp"
	"strings"
)

// ---------------------------------------------------------------------------
// Heading pattern detection
// ---------------------------------------------------------------------------

// headingPatterns are compiled regular expressions for common heading
// styles found in policy documents.
var headingPatterns = []*regexp.Regexp{
	// Numbered: "1.", "1.2", "1.2.3", optionally followed by a title
	regexp.MustCompile(`^\s*(\d+\.)+(\d+)?\s+\S`),
	// All-uppercase lines (at least 5 chars), dashes allowed so that
	// "SECTION I - EXCLUSIONS" qualifies
	regexp.MustCompile(`^[A-Z][A-Z\s\p{Pd}]{4,}$`),
	// Markdown-style headings
	regexp.MustCompile(`^#{1,6}\s+\S`),
	// Appendix / Annex / Schedule / Exhibit / Endorsement / Form labels
	regexp.MustCompile(`(?i)^(appendix|annex|schedule|exhibit|endorsement|form)\s+[A-Z0-9]`),
	// Article and Section headings with roman or arabic numerals
	regexp.MustCompile(`(?i)^article\s+[IVXLCDM\d]+`),
	regexp.MustCompile(`(?i)^section\s+[IVX\d]+`),
}

// IsHeading reports whether a line looks like a section heading.
func IsHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > 120 {
		return false
	}
	for _, p := range headingPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// numberingPattern matches hierarchical numbering like "1.", "1.2.", "1.2.3."
var numberingPattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.\s`)

// DetectNumbering extracts the numbering prefix from a line, if any.
func DetectNumbering(line string) (string, bool) {
	m := numberingPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NumberingLevel returns the depth of a hierarchical number ("1.2.3" = 3).
func NumberingLevel(numbering string) int {
	if numbering == "" {
		return 0
	}
	return strings.Count(numbering, ".") + 1
}

// ---------------------------------------------------------------------------
// Content classification
// ---------------------------------------------------------------------------

// ContentType classifies a block of policy text.
func ContentType(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "paragraph"
	}
	switch {
	case looksLikeTable(trimmed):
		return "table"
	case looksLikeDefinition(trimmed):
		return "definition"
	case looksLikeExclusion(trimmed):
		return "exclusion"
	case looksLikeObligation(trimmed):
		return "obligation"
	case IsHeading(firstLine(trimmed)):
		return "section"
	default:
		return "paragraph"
	}
}

// looksLikeTable checks for pipe-delimited rows, heavy tab usage, or
// dash/equals separator lines.
func looksLikeTable(text string) bool {
	lines := strings.Split(text, "\n")
	if len(lines) >= 3 {
		pipeLines := 0
		for _, l := range lines {
			if strings.Contains(l, "|") {
				pipeLines++
			}
		}
		if pipeLines*2 >= len(lines) {
			return true
		}
	}
	tabLines := 0
	for _, l := range lines {
		if strings.Count(l, "\t") >= 2 {
			tabLines++
		}
	}
	if tabLines >= 2 {
		return true
	}
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if len(t) >= 4 && (allChar(t, '-') || allChar(t, '=')) {
			return true
		}
	}
	return false
}

// definitionPattern matches quoted-term definitions and colon-style
// glossary entries.
var definitionPattern = regexp.MustCompile(`(?:^"[^"]+"\s+(?i:means|shall\s+mean|is\s+defined\s+as))|(?:^\S+.*?:\s+\S)`)

// looksLikeDefinition checks whether a block reads like one or more
// term definitions.  Short blocks need a single match, longer blocks
// need at least two.
func looksLikeDefinition(text string) bool {
	lines := strings.Split(text, "\n")
	matches := 0
	for _, l := range lines {
		if definitionPattern.MatchString(strings.TrimSpace(l)) {
			matches++
		}
	}
	if len(lines) <= 3 {
		return matches >= 1
	}
	return matches >= 2
}

// exclusionMarkers are phrases that indicate coverage-exclusion language.
var exclusionMarkers = []string{
	"WE DO NOT COVER",
	"DOES NOT APPLY",
	"IS NOT COVERED",
	"ARE NOT COVERED",
	"WE DO NOT PROVIDE",
	"THIS EXCLUSION",
	"EXCLUDED FROM",
}

func looksLikeExclusion(text string) bool {
	upper := strings.ToUpper(text)
	for _, m := range exclusionMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// obligationKeywords are duty markers commonly found in policy
// conditions.  Negated forms come first so they match whole.
var obligationKeywords = []string{
	"SHALL NOT", "MUST NOT", "MAY NOT", "SHALL", "MUST", "REQUIRED", "AGREES TO",
}

func looksLikeObligation(text string) bool {
	upper := strings.ToUpper(text)
	for _, kw := range obligationKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

// allChar reports whether s consists entirely of the byte c.
func allChar(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != c {
			return false
		}
	}
	return true
}
