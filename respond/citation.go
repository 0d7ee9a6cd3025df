package respond

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evanhollis/covergraph/store"
)

// Citation is one source reference found in an answer.
type Citation struct {
	Text      string `json:"text"`
	SourceRef string `json:"source_ref"`
	ChunkID   int64  `json:"chunk_id"` // 0 when unmatched
	Verified  bool   `json:"verified"`
}

// Patterns for citation styles that appear in policy answers.
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(([^)]+\.(?:pdf|docx|xlsx|html|txt|md))[^)]*\)`), // (policy.pdf, ...)
	regexp.MustCompile(`(?:Section|Sec\.|§)\s*([IVX]+|\d+(?:\.\d+)*)`),    // Section II, Section 3.2
	regexp.MustCompile(`(?:Clause|Cl\.)\s*(\d+(?:\.\d+)*)`),               // Clause 7.1
	regexp.MustCompile(`Endorsement\s+([A-Z]{1,3}-?\d+)`),                 // Endorsement E-3
	regexp.MustCompile(`\b((?:HO|DP|CP|BP|CA|CG)-?\d{1,4}[A-Z]?)\b`),      // Form HO-3
	regexp.MustCompile(`(?:Page|p\.)\s*(\d+)`),                            // Page 12
	regexp.MustCompile(`\[Source\s*(\d+)\]`),                              // [Source 1]
}

// ExtractCitations finds source references in an answer and verifies
// each against the retrieved chunks.
func ExtractCitations(answer string, chunks []store.RetrievalResult) []Citation {
	var citations []Citation
	seen := make(map[string]bool)

	for _, pattern := range citationPatterns {
		for _, match := range pattern.FindAllStringSubmatch(answer, -1) {
			if len(match) < 2 {
				continue
			}
			ref := strings.TrimSpace(match[0])
			if seen[ref] {
				continue
			}
			seen[ref] = true

			c := Citation{Text: ref, SourceRef: match[1]}
			c.ChunkID, c.Verified = matchCitationToChunk(match[1], chunks)
			citations = append(citations, c)
		}
	}
	return citations
}

// matchCitationToChunk resolves a reference to the chunk it points at:
// filename, then heading, then page number, then [Source n] ordinal.
func matchCitationToChunk(ref string, chunks []store.RetrievalResult) (int64, bool) {
	lowerRef := strings.ToLower(ref)

	for _, c := range chunks {
		if strings.Contains(strings.ToLower(c.Filename), lowerRef) {
			return c.ChunkID, true
		}
	}
	for _, c := range chunks {
		if c.Heading != "" && strings.Contains(strings.ToLower(c.Heading), lowerRef) {
			return c.ChunkID, true
		}
	}

	var pageNum int
	if _, err := fmt.Sscanf(ref, "%d", &pageNum); err == nil && pageNum > 0 {
		for _, c := range chunks {
			if c.PageNumber == pageNum {
				return c.ChunkID, true
			}
		}
		if pageNum <= len(chunks) {
			return chunks[pageNum-1].ChunkID, true
		}
	}

	// Roman section numbers match against headings ("SECTION II - ...").
	for _, c := range chunks {
		if c.Heading != "" && strings.Contains(strings.ToUpper(c.Heading), strings.ToUpper(ref)) {
			return c.ChunkID, true
		}
	}

	return 0, false
}
