package chunker

import (
	"regexp"
	"sort"
	"strings"
)

// Helpers for carving insurance policy text along its native seams:
// numbered clauses, defined terms, cross-references, and the canonical
// ISO-style section layout.

// ---------------------------------------------------------------------------
// Clause boundaries
// ---------------------------------------------------------------------------

// clausePattern matches hierarchical clause numbering at the start of a
// line: "1.1 ", "2.3.4 ", etc.  Single top-level numbers ("1 ") are
// excluded; those are handled by the generic numbering detector.
var clausePattern = regexp.MustCompile(`^(\d+(?:\.\d+)+)\s`)

// ClauseBoundary marks where a numbered clause begins within a text.
type ClauseBoundary struct {
	Number string // e.g. "4.2.1"
	Offset int    // byte offset of the clause start
	Line   int    // 0-based line number
}

// DetectClauseBoundaries finds all numbered clause starts in text.
func DetectClauseBoundaries(text string) []ClauseBoundary {
	var boundaries []ClauseBoundary
	offset := 0
	for i, line := range strings.Split(text, "\n") {
		if m := clausePattern.FindStringSubmatch(line); m != nil {
			boundaries = append(boundaries, ClauseBoundary{
				Number: m[1],
				Offset: offset,
				Line:   i,
			})
		}
		offset += len(line) + 1 // +1 for the newline
	}
	return boundaries
}

// SplitByClauses splits text at clause boundaries.  Content before the
// first clause becomes the first part (the preamble).  Text with no
// clause numbering is returned as a single part.
func SplitByClauses(text string) []string {
	boundaries := DetectClauseBoundaries(text)
	if len(boundaries) == 0 {
		return []string{text}
	}

	var parts []string
	if boundaries[0].Offset > 0 {
		pre := strings.TrimSpace(text[:boundaries[0].Offset])
		if pre != "" {
			parts = append(parts, pre)
		}
	}
	for i, b := range boundaries {
		end := len(text)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].Offset
		}
		part := strings.TrimSpace(text[b.Offset:end])
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// ExtractClauseNumber returns the clause number at the start of a line,
// if present.
func ExtractClauseNumber(line string) (string, bool) {
	m := clausePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ClauseDepth returns the nesting depth of a clause number.
// "4" is depth 1, "4.2" is depth 2, "4.2.1" is depth 3.
func ClauseDepth(number string) int {
	if number == "" {
		return 0
	}
	return strings.Count(number, ".") + 1
}

// ---------------------------------------------------------------------------
// Defined terms
// ---------------------------------------------------------------------------

// definitionMeansPattern matches the quoted-term style used in policy
// definitions sections: "Bodily injury" means ...  Both straight and
// curly quotes are accepted.
var definitionMeansPattern = regexp.MustCompile(`(?i)^["\x{201c}]([^"\x{201d}]+)["\x{201d}]\s+((?:means|shall\s+mean|is\s+defined\s+as)\b.*)$`)

// definitionColonPattern matches glossary-style entries: Term: definition.
var definitionColonPattern = regexp.MustCompile(`^([A-Z][A-Za-z\s]+):\s+(.+)`)

// Definition is a defined term extracted from policy text.
type Definition struct {
	Term       string
	Body       string
	LineNumber int // 0-based
}

// ExtractDefinitions finds defined terms in text.  Continuation lines
// (following lines that are not blank, not headings, and not new
// definitions) are folded into the definition body.
func ExtractDefinitions(text string) []Definition {
	lines := strings.Split(text, "\n")
	var defs []Definition
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := definitionMeansPattern.FindStringSubmatch(trimmed); m != nil {
			defs = append(defs, Definition{
				Term:       strings.TrimSpace(m[1]),
				Body:       collectContinuation(m[2], lines, i+1),
				LineNumber: i,
			})
			continue
		}
		if m := definitionColonPattern.FindStringSubmatch(trimmed); m != nil {
			defs = append(defs, Definition{
				Term:       strings.TrimSpace(m[1]),
				Body:       collectContinuation(m[2], lines, i+1),
				LineNumber: i,
			})
		}
	}
	return defs
}

// collectContinuation appends follow-on lines to a definition body until
// a blank line, a heading, or another definition starts.
func collectContinuation(body string, lines []string, from int) string {
	parts := []string{strings.TrimSpace(body)}
	for i := from; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || IsHeading(trimmed) {
			break
		}
		if definitionMeansPattern.MatchString(trimmed) || definitionColonPattern.MatchString(trimmed) {
			break
		}
		parts = append(parts, trimmed)
	}
	return strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Cross-references
// ---------------------------------------------------------------------------

// CrossReference is a pointer from one part of a policy to another.
type CrossReference struct {
	FullMatch string // the matched text, e.g. "Coverage C"
	Target    string // the referenced identifier, e.g. "C"
	Type      string // clause, section, article, coverage, paragraph, ...
	Offset    int    // byte offset of the match
}

var crossRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bclause\s+(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?i)\bsection\s+([IVX]+\b|\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?i)\barticle\s+([IVXLCDM]+\b|\d+)`),
	regexp.MustCompile(`(?i)\bparagraph\s+(\d+(?:\.[a-z0-9]+)*)`),
	regexp.MustCompile(`\bCoverage\s+([A-F])\b`),
	regexp.MustCompile(`(?i)\bendorsement\s+([A-Z]{2}(?:[ -]?\d{1,4})+)\b`),
	regexp.MustCompile(`(?i)\bform\s+([A-Z]{2}(?:[ -]?\d{1,4})+)\b`),
	regexp.MustCompile(`(?i)\bschedule\s+([A-Z0-9]+)\b`),
	regexp.MustCompile(`(?i)\(see\s+([^)]+)\)`),
}

// typeLabels parallels crossRefPatterns.
var typeLabels = []string{
	"clause", "section", "article", "paragraph", "coverage",
	"endorsement", "form", "schedule", "reference",
}

// DetectCrossReferences finds all cross-references in text, ordered by
// position.
func DetectCrossReferences(text string) []CrossReference {
	var refs []CrossReference
	for pi, p := range crossRefPatterns {
		for _, loc := range p.FindAllStringSubmatchIndex(text, -1) {
			refs = append(refs, CrossReference{
				FullMatch: text[loc[0]:loc[1]],
				Target:    strings.TrimSpace(text[loc[2]:loc[3]]),
				Type:      typeLabels[pi],
				Offset:    loc[0],
			})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Offset < refs[j].Offset })
	return refs
}

// HasCrossReferences reports whether text contains any cross-reference.
func HasCrossReferences(text string) bool {
	for _, p := range crossRefPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Canonical policy sections
// ---------------------------------------------------------------------------

var dashNormalizer = strings.NewReplacer("–", "-", "—", "-")

// CanonicalPolicySection maps a section heading onto the standard
// homeowners/commercial policy layout.  It recognises the agreement,
// declarations, definitions, Section I property coverages and
// exclusions, perils insured against, Section II liability coverages
// and exclusions, and conditions.  The bool result is false for
// headings outside that layout.
func CanonicalPolicySection(heading string) (string, bool) {
	h := strings.ToUpper(strings.TrimSpace(dashNormalizer.Replace(heading)))
	h = strings.Join(strings.Fields(h), " ")
	if h == "" {
		return "", false
	}
	switch {
	case strings.Contains(h, "PERILS INSURED AGAINST"):
		return "perils", true
	// "SECTION II" contains "SECTION I" as a prefix, so match II first.
	case strings.Contains(h, "SECTION II") && strings.Contains(h, "EXCLUSION"):
		return "liability_exclusions", true
	case strings.Contains(h, "SECTION II") && strings.Contains(h, "COVERAGE"):
		return "liability_coverages", true
	case strings.Contains(h, "SECTION I") && strings.Contains(h, "EXCLUSION"):
		return "property_exclusions", true
	case strings.Contains(h, "SECTION I") && strings.Contains(h, "COVERAGE"):
		return "property_coverages", true
	case strings.HasPrefix(h, "DEFINITIONS"):
		return "definitions", true
	case strings.Contains(h, "CONDITIONS"):
		return "conditions", true
	case strings.Contains(h, "DECLARATIONS"):
		return "declarations", true
	case strings.HasPrefix(h, "AGREEMENT"):
		return "agreement", true
	}
	return "", false
}
