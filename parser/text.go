package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser handles plain text (.txt) and markdown (.md) files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return &ParseResult{Method: "native"}, nil
	}

	return &ParseResult{
		Sections: splitTextIntoSections(content),
		Method:   "native",
	}, nil
}

// splitTextIntoSections splits plain text or markdown into sections. Markdown
// "#" headings take priority; otherwise the PDF heading heuristics apply, so
// an all-caps "SECTION I - PROPERTY COVERAGES" line in a .txt policy works
// the same as in a PDF.
func splitTextIntoSections(text string) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var currentContent strings.Builder
	var currentHeading string
	currentLevel := 0

	flush := func() {
		if currentContent.Len() == 0 && currentHeading == "" {
			return
		}
		sections = append(sections, Section{
			Heading: currentHeading,
			Content: strings.TrimSpace(currentContent.String()),
			Level:   currentLevel,
			Type:    classifySectionType(currentHeading, currentContent.String()),
		})
		currentContent.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			continue
		}

		if heading, level, ok := markdownHeading(trimmed); ok {
			flush()
			currentHeading = heading
			currentLevel = level
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			currentHeading = trimmed
			currentLevel = detectHeadingLevel(trimmed)
			continue
		}

		if currentContent.Len() > 0 {
			currentContent.WriteString("\n")
		}
		currentContent.WriteString(trimmed)
	}
	flush()

	if len(sections) == 0 {
		sections = append(sections, Section{
			Content: text,
			Level:   1,
			Type:    "paragraph",
		})
	}
	return sections
}

// markdownHeading reports whether the line is a "#" style heading and returns
// the heading text and level.
func markdownHeading(line string) (string, int, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", 0, false
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return "", 0, false
	}
	rest := strings.TrimSpace(line[level:])
	if rest == "" {
		return "", 0, false
	}
	return rest, level, true
}
