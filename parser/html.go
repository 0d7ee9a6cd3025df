package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser handles HTML files, such as policy documents saved from carrier
// portals. Headings delimit sections; list items and table rows keep their
// structure so downstream chunking can recognize them.
type HTMLParser struct{}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html", "htm"} }

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening HTML: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	doc.Find("script, style, noscript, nav, header, footer").Remove()

	sections := htmlSections(doc)
	if len(sections) == 0 {
		// No recognizable structure; fall back to the stripped body text.
		body := strings.TrimSpace(doc.Find("body").Text())
		if body == "" {
			return &ParseResult{Method: "native"}, nil
		}
		sections = []Section{{Content: body, Type: "paragraph", Level: 1}}
	}

	result := &ParseResult{
		Sections: sections,
		Method:   "native",
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		result.Metadata = map[string]string{"title": title}
	}
	return result, nil
}

func htmlSections(doc *goquery.Document) []Section {
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

	doc.Find("h1, h2, h3, h4, h5, h6, p, li, table").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)

		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			flush()
			currentHeading = text
			currentLevel = int(tag[1] - '0')

		case "table":
			var table strings.Builder
			s.Find("tr").Each(func(_ int, row *goquery.Selection) {
				var cells []string
				row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
					cells = append(cells, strings.TrimSpace(cell.Text()))
				})
				if len(cells) > 0 {
					table.WriteString("| " + strings.Join(cells, " | ") + " |\n")
				}
			})
			if table.Len() == 0 {
				return
			}
			flush()
			sections = append(sections, Section{
				Heading: currentHeading,
				Content: table.String(),
				Level:   currentLevel,
				Type:    "table",
			})

		case "p", "li":
			// Cells and nested list items are already captured by the table
			// branch above.
			if s.Closest("table").Length() > 0 {
				return
			}
			// A p inside an li is captured by the li.
			if tag == "p" && s.Closest("li").Length() > 0 {
				return
			}
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			if currentContent.Len() > 0 {
				currentContent.WriteString("\n")
			}
			currentContent.WriteString(text)
		}
	})
	flush()

	return sections
}
