package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is the readable content of one fetched web page.
type Page struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Text         string   `json:"text"`
	DocumentURLs []string `json:"document_urls,omitempty"`
	Insurance    bool     `json:"insurance"`
}

var fetchClient = &http.Client{Timeout: 30 * time.Second}

// FetchURL retrieves one operator-supplied page, extracts its readable
// text, and collects links to downloadable documents in supported
// formats. It never follows links itself.
func FetchURL(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	page := &Page{URL: pageURL}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, nav, header, footer").Remove()
	page.Text = squashSpace(doc.Find("body").Text())
	page.Insurance = IsInsuranceText(page.Text)

	base, _ := url.Parse(pageURL)
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || !SupportedExt(href) {
			return
		}
		resolved := href
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				resolved = base.ResolveReference(ref).String()
			}
		}
		if !seen[resolved] {
			seen[resolved] = true
			page.DocumentURLs = append(page.DocumentURLs, resolved)
		}
	})

	return page, nil
}

func squashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
