// Package discover finds insurance documents to ingest: directory
// scans with a keyword classifier, single-page URL fetches, and a
// filesystem watcher for continuous re-ingestion.
package discover

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// supportedExts are the document formats the parser registry resolves.
var supportedExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".xlsx": true,
	".txt":  true,
	".md":   true,
	".html": true,
}

// SupportedExt reports whether a path carries an ingestable extension.
func SupportedExt(path string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(path))]
}

// insuranceKeywords classify a document as insurance material. A file
// qualifies when more than 3 distinct keywords appear in its opening
// text.
var insuranceKeywords = []string{
	"policy", "insurance", "coverage", "claim", "premium",
	"deductible", "insured", "underwriting", "risk", "peril",
}

// classifyHeadBytes bounds how much of a file the classifier reads.
const classifyHeadBytes = 5000

// Candidate is one discovered document.
type Candidate struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Insurance bool   `json:"insurance"`
}

// ScanDir walks root for supported documents and classifies each.
// Hidden directories are skipped. Unreadable files are logged and
// classified as non-insurance rather than failing the scan.
func ScanDir(ctx context.Context, root string) ([]Candidate, error) {
	var out []Candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !SupportedExt(path) {
			return nil
		}

		c := Candidate{
			Path:   path,
			Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		}
		c.Insurance = classifyFile(path)
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("discover: scan complete", "root", root, "candidates", len(out))
	return out, nil
}

// classifyFile samples the head of a plain-text file. Binary formats
// (pdf, docx, xlsx) are always treated as candidates; their content is
// only reachable through a parser, so classification happens at ingest.
func classifyFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".xlsx":
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("discover: cannot read candidate", "path", path, "error", err)
		return false
	}
	defer f.Close()

	head := make([]byte, classifyHeadBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	return IsInsuranceText(string(head[:n]))
}

// IsInsuranceText reports whether text reads as insurance material:
// more than 3 distinct domain keywords in its head.
func IsInsuranceText(text string) bool {
	if len(text) > classifyHeadBytes {
		text = text[:classifyHeadBytes]
	}
	lower := strings.ToLower(text)
	distinct := 0
	for _, kw := range insuranceKeywords {
		if strings.Contains(lower, kw) {
			distinct++
			if distinct > 3 {
				return true
			}
		}
	}
	return false
}
