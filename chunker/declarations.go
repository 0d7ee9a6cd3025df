package chunker

import (
	"regexp"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Obligation detection
// ---------------------------------------------------------------------------

// obligationPattern matches the duty language of policy conditions.
// Negated forms precede their positive counterparts so that "shall not"
// is not truncated to "shall".
var obligationPattern = regexp.MustCompile(`(?i)\b(shall\s+not|must\s+not|may\s+not|will\s+not|shall|must|agrees?\s+to|is\s+required\s+to|may)\b`)

// Obligation is a duty or permission extracted from policy text.
type Obligation struct {
	Text       string // the full line containing the obligation
	Keyword    string // normalised keyword, e.g. "SHALL NOT"
	Party      string // "insured", "insurer", or "unspecified"
	Level      string // "mandatory", "prohibited", or "permissive"
	LineNumber int    // 0-based
}

// DetectObligations scans text line by line for obligation language.
// Each matching line yields one Obligation based on its first keyword.
func DetectObligations(text string) []Obligation {
	var obligations []Obligation
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		loc := obligationPattern.FindStringSubmatchIndex(trimmed)
		if loc == nil {
			continue
		}
		keyword := normalizeKeyword(trimmed[loc[2]:loc[3]])
		obligations = append(obligations, Obligation{
			Text:       trimmed,
			Keyword:    keyword,
			Party:      obligationParty(trimmed, loc[2]),
			Level:      obligationLevel(keyword),
			LineNumber: i,
		})
	}
	return obligations
}

// IsObligation reports whether a line contains obligation language.
func IsObligation(line string) bool {
	return obligationPattern.MatchString(line)
}

func normalizeKeyword(kw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(kw)), " ")
}

// obligationLevel classifies a normalised keyword.
func obligationLevel(keyword string) string {
	switch keyword {
	case "SHALL NOT", "MUST NOT", "MAY NOT", "WILL NOT":
		return "prohibited"
	case "MAY":
		return "permissive"
	default:
		return "mandatory"
	}
}

var (
	insuredRefPattern = regexp.MustCompile(`(?i)\b(you|your|the\s+insured|named\s+insured|policyholder|claimant)\b`)
	insurerRefPattern = regexp.MustCompile(`(?i)\b(we|us|our|the\s+company|the\s+insurer|the\s+carrier)\b`)
)

// obligationParty identifies who carries the duty.  The party mentioned
// closest before the keyword wins; if neither side appears before it,
// the whole line is consulted.
func obligationParty(line string, keywordStart int) string {
	prefix := line[:keywordStart]
	insured := lastMatchEnd(insuredRefPattern, prefix)
	insurer := lastMatchEnd(insurerRefPattern, prefix)
	if insured < 0 && insurer < 0 {
		insured = lastMatchEnd(insuredRefPattern, line)
		insurer = lastMatchEnd(insurerRefPattern, line)
	}
	switch {
	case insured < 0 && insurer < 0:
		return "unspecified"
	case insured > insurer:
		return "insured"
	default:
		return "insurer"
	}
}

// lastMatchEnd returns the end offset of the last match of p in s, or -1.
func lastMatchEnd(p *regexp.Regexp, s string) int {
	locs := p.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][1]
}

// ---------------------------------------------------------------------------
// Form number references
// ---------------------------------------------------------------------------

// formPatterns match ISO policy form numbers by program prefix, e.g.
// "HO 00 03 10 00", "HO-3", "CP 00 10", "CG 20 10".
var formPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bHO[ -]?\d{1,4}(?:[ -]\d{2})*\b`),
	regexp.MustCompile(`\bDP[ -]?\d{1,4}(?:[ -]\d{2})*\b`),
	regexp.MustCompile(`\bCP[ -]?\d{1,4}(?:[ -]\d{2})*\b`),
	regexp.MustCompile(`\bCG[ -]?\d{1,4}(?:[ -]\d{2})*\b`),
	regexp.MustCompile(`\bBP[ -]?\d{1,4}(?:[ -]\d{2})*\b`),
	regexp.MustCompile(`\bPP[ -]?\d{1,4}(?:[ -]\d{2})*\b`),
	regexp.MustCompile(`\bCA[ -]?\d{1,4}(?:[ -]\d{2})*\b`),
	regexp.MustCompile(`\bIL[ -]?\d{1,4}(?:[ -]\d{2})*\b`),
}

// programNames parallels formPatterns.
var programNames = []string{
	"homeowners", "dwelling", "commercial property", "general liability",
	"businessowners", "personal auto", "commercial auto", "interline",
}

// FormReference is a policy form number found in text.
type FormReference struct {
	FullMatch string
	Program   string
	Offset    int
}

// DetectFormReferences finds ISO-style form numbers in text.
func DetectFormReferences(text string) []FormReference {
	var refs []FormReference
	for pi, p := range formPatterns {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			refs = append(refs, FormReference{
				FullMatch: text[loc[0]:loc[1]],
				Program:   programNames[pi],
				Offset:    loc[0],
			})
		}
	}
	return refs
}

// ---------------------------------------------------------------------------
// Monetary amounts and declarations entries
// ---------------------------------------------------------------------------

// moneyPattern matches dollar amounts: $250,000 or $1,234.56 or $500.
var moneyPattern = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+|\d+)(\.\d{2})?`)

// MonetaryAmount is a dollar figure found in text.
type MonetaryAmount struct {
	Raw    string
	Amount float64
	Offset int
}

// DetectMonetaryAmounts finds all dollar amounts in text.
func DetectMonetaryAmounts(text string) []MonetaryAmount {
	var amounts []MonetaryAmount
	for _, loc := range moneyPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		amounts = append(amounts, MonetaryAmount{
			Raw:    raw,
			Amount: parseMoney(raw),
			Offset: loc[0],
		})
	}
	return amounts
}

func parseMoney(raw string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// DeclarationEntry is a labelled amount from a declarations page, e.g.
// "Coverage A - Dwelling    $250,000".
type DeclarationEntry struct {
	Label      string
	Amount     float64
	LineNumber int // 0-based
}

// DetectDeclarationEntries extracts label/amount pairs from
// declarations-page text.  The label is everything before the first
// dollar amount on the line.
func DetectDeclarationEntries(text string) []DeclarationEntry {
	var entries []DeclarationEntry
	for i, line := range strings.Split(text, "\n") {
		loc := moneyPattern.FindStringIndex(line)
		if loc == nil {
			continue
		}
		label := strings.TrimRight(strings.TrimSpace(line[:loc[0]]), " .-:\t|")
		if label == "" {
			continue
		}
		entries = append(entries, DeclarationEntry{
			Label:      label,
			Amount:     parseMoney(line[loc[0]:loc[1]]),
			LineNumber: i,
		})
	}
	return entries
}

// ---------------------------------------------------------------------------
// Table preservation
// ---------------------------------------------------------------------------

// TableChunk is a contiguous table region within a text block.
type TableChunk struct {
	Content    string
	StartLine  int // 0-based, inclusive
	EndLine    int // 0-based, inclusive
	HasHeaders bool
}

// DetectTables finds contiguous runs of table-like lines.  A run must
// span at least two lines to count as a table.
func DetectTables(text string) []TableChunk {
	lines := strings.Split(text, "\n")
	var tables []TableChunk
	start := -1
	for i := 0; i <= len(lines); i++ {
		isTable := i < len(lines) && isTableLine(lines[i])
		if isTable && start < 0 {
			start = i
		}
		if !isTable && start >= 0 {
			if i-start >= 2 {
				hasHeaders := start+1 < i && isHeaderSeparator(lines[start+1])
				tables = append(tables, TableChunk{
					Content:    strings.Join(lines[start:i], "\n"),
					StartLine:  start,
					EndLine:    i - 1,
					HasHeaders: hasHeaders,
				})
			}
			start = -1
		}
	}
	return tables
}

// PreserveTableChunks splits text into fragments where each detected
// table is kept whole.  Prose between tables becomes separate fragments.
// Text without tables is returned as a single fragment.
func PreserveTableChunks(text string) []string {
	tables := DetectTables(text)
	if len(tables) == 0 {
		return []string{text}
	}
	lines := strings.Split(text, "\n")
	var parts []string
	prev := 0
	for _, t := range tables {
		if t.StartLine > prev {
			pre := strings.TrimSpace(strings.Join(lines[prev:t.StartLine], "\n"))
			if pre != "" {
				parts = append(parts, pre)
			}
		}
		parts = append(parts, t.Content)
		prev = t.EndLine + 1
	}
	if prev < len(lines) {
		post := strings.TrimSpace(strings.Join(lines[prev:], "\n"))
		if post != "" {
			parts = append(parts, post)
		}
	}
	return parts
}

// isTableLine reports whether a line looks like part of a table: it
// contains a pipe, at least two tabs, or is a header separator row.
func isTableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "|") {
		return true
	}
	if strings.Count(line, "\t") >= 2 {
		return true
	}
	return isHeaderSeparator(line)
}

// isHeaderSeparator detects markdown-style separator rows like
// "|---|---|" or "--- | ---".
func isHeaderSeparator(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	stripped := strings.Map(func(r rune) rune {
		if r == '|' || r == ' ' || r == ':' {
			return -1
		}
		return r
	}, trimmed)
	if stripped == "" {
		return false
	}
	return allChar(stripped, '-')
}
