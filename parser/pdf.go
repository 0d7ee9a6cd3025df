package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	sections := make([]Section, 0)

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pageSections := splitPageIntoSections(text, i)
		sections = append(sections, pageSections...)
	}

	sections = fixRunningHeaders(sections, totalPages)

	if len(sections) == 0 {
		return &ParseResult{
			Method: "native",
			Sections: []Section{{
				Content:    "Unable to extract text from PDF",
				Type:       "paragraph",
				PageNumber: 1,
			}},
		}, nil
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
	}, nil
}

// splitPageIntoSections breaks page text into logical sections.
func splitPageIntoSections(text string, pageNum int) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var currentContent strings.Builder
	var currentHeading string
	currentLevel := 0

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			continue
		}

		// Detect headings: all-caps lines, numbered sections, keyword prefixes
		if isLikelyHeading(trimmed) {
			// Save previous section
			if currentContent.Len() > 0 {
				sections = append(sections, Section{
					Heading:    currentHeading,
					Content:    strings.TrimSpace(currentContent.String()),
					Level:      currentLevel,
					PageNumber: pageNum,
					Type:       classifySectionType(currentHeading, currentContent.String()),
				})
				currentContent.Reset()
			}
			currentHeading = trimmed
			currentLevel = detectHeadingLevel(trimmed)
		} else {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			currentContent.WriteString(trimmed)
		}
	}

	// Final section
	if currentContent.Len() > 0 {
		sections = append(sections, Section{
			Heading:    currentHeading,
			Content:    strings.TrimSpace(currentContent.String()),
			Level:      currentLevel,
			PageNumber: pageNum,
			Type:       classifySectionType(currentHeading, currentContent.String()),
		})
	}

	// If no sections were created, return the whole page as one section
	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, Section{
			Content:    text,
			PageNumber: pageNum,
			Type:       "paragraph",
		})
	}

	return sections
}

func isLikelyHeading(line string) bool {
	// All caps and short, e.g. "SECTION I - PROPERTY COVERAGES"
	if len(line) < 100 && line == strings.ToUpper(line) && len(line) > 2 {
		return true
	}
	// Numbered section like "1.", "1.1", "3.9.1"
	if len(line) < 120 {
		if len(line) > 0 && line[0] >= '0' && line[0] <= '9' && strings.Contains(line[:min(10, len(line))], ".") {
			return true
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "section ") || strings.HasPrefix(lower, "article ") ||
			strings.HasPrefix(lower, "part ") || strings.HasPrefix(lower, "chapter ") ||
			strings.HasPrefix(lower, "endorsement ") {
			return true
		}
		// "Schedule N..." only when followed by a digit, to avoid matching
		// mid-paragraph text like "schedule of payments is attached"
		if strings.HasPrefix(lower, "schedule ") && len(lower) > 9 && lower[9] >= '0' && lower[9] <= '9' {
			return true
		}
	}
	return false
}

func detectHeadingLevel(heading string) int {
	// Count dots in numbering to determine depth
	parts := strings.SplitN(heading, " ", 2)
	if len(parts) > 0 {
		dots := strings.Count(parts[0], ".")
		if dots > 0 {
			return dots
		}
	}
	// All-caps = top level
	if heading == strings.ToUpper(heading) {
		return 1
	}
	return 2
}

func classifySectionType(heading, content string) string {
	headingLower := strings.ToLower(heading)
	contentLower := strings.ToLower(content)

	// Declarations pages carry the who/what/how-much of the policy
	if strings.Contains(headingLower, "declaration") {
		return "declarations"
	}
	// Defined terms: quoted term followed by "means"
	if strings.Contains(headingLower, "definition") || strings.Contains(headingLower, "glossary") ||
		strings.Contains(contentLower, `" means`) || strings.Contains(contentLower, `" is defined as`) {
		return "definition"
	}
	// Exclusions remove coverage
	if strings.Contains(headingLower, "exclusion") ||
		strings.Contains(contentLower, "we do not cover") ||
		strings.Contains(contentLower, "does not apply to") ||
		strings.Contains(contentLower, "is not covered") {
		return "exclusion"
	}
	// Obligations bind one of the parties
	if strings.Contains(headingLower, "duties") || strings.Contains(headingLower, "conditions") ||
		strings.Contains(headingLower, "obligation") ||
		strings.Contains(contentLower, "you must") || strings.Contains(contentLower, "shall") ||
		strings.Contains(contentLower, "the insured must") {
		return "obligation"
	}
	// Table: check heading for schedule/table keywords
	if strings.Contains(headingLower, "table") || strings.Contains(headingLower, "schedule") {
		return "table"
	}
	// Structural table detection via content: tabs/pipes indicate actual table formatting
	if strings.Count(content, "\t") > 3 || strings.Count(content, "|") > 3 {
		return "table"
	}
	return "section"
}

// fixRunningHeaders repairs sections whose heading is actually a per-page
// running header (form numbers like "HO 00 03 10 00" or the policy title
// repeated on every page). A heading that appears on at least
// max(3, totalPages/4) distinct pages is treated as running; its sections
// inherit the last real heading seen before them, so content split across a
// page break stays under the section it belongs to.
func fixRunningHeaders(sections []Section, totalPages int) []Section {
	if len(sections) == 0 || totalPages < 3 {
		return sections
	}

	pagesByHeading := make(map[string]map[int]bool)
	for _, s := range sections {
		if s.Heading == "" {
			continue
		}
		if pagesByHeading[s.Heading] == nil {
			pagesByHeading[s.Heading] = make(map[int]bool)
		}
		pagesByHeading[s.Heading][s.PageNumber] = true
	}

	threshold := totalPages / 4
	if threshold < 3 {
		threshold = 3
	}

	running := make(map[string]bool)
	for heading, pages := range pagesByHeading {
		if len(pages) >= threshold {
			running[heading] = true
		}
	}
	if len(running) == 0 {
		return sections
	}

	var lastHeading string
	lastLevel := 0
	for i := range sections {
		if running[sections[i].Heading] {
			if lastHeading != "" {
				sections[i].Heading = lastHeading
				sections[i].Level = lastLevel
				sections[i].Type = classifySectionType(lastHeading, sections[i].Content)
			}
		} else if sections[i].Heading != "" {
			lastHeading = sections[i].Heading
			lastLevel = sections[i].Level
		}
	}
	return sections
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
