package parser

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// createTestDOCX builds a minimal .docx ZIP containing the given document XML.
func createTestDOCX(t *testing.T, docXML string) string {
	t.Helper()
	dir := t.TempDir()
	docxPath := filepath.Join(dir, "test.docx")

	f, err := os.Create(docxPath)
	if err != nil {
		t.Fatalf("creating docx file: %v", err)
	}

	w := zip.NewWriter(f)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := fw.Write([]byte(docXML)); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}

	return docxPath
}

func TestDOCXParserSections(t *testing.T) {
	docXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p>
      <w:pPr><w:pStyle w:val="Heading1"/></w:pPr>
      <w:r><w:t>Definitions</w:t></w:r>
    </w:p>
    <w:p>
      <w:r><w:t>"Insured" means you and residents of your household.</w:t></w:r>
    </w:p>
    <w:p>
      <w:pPr><w:pStyle w:val="Heading2"/></w:pPr>
      <w:r><w:t>Duties After Loss</w:t></w:r>
    </w:p>
    <w:p>
      <w:r><w:t>You must give prompt notice to us or our agent.</w:t></w:r>
    </w:p>
  </w:body>
</w:document>`

	p := &DOCXParser{}
	result, err := p.Parse(context.Background(), createTestDOCX(t, docXML))
	if err != nil {
		t.Fatalf("parsing DOCX: %v", err)
	}

	if len(result.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(result.Sections), result.Sections)
	}

	if result.Sections[0].Heading != "Definitions" {
		t.Errorf("section[0].Heading = %q", result.Sections[0].Heading)
	}
	if result.Sections[0].Level != 1 {
		t.Errorf("section[0].Level = %d, want 1", result.Sections[0].Level)
	}
	if result.Sections[0].Type != "definition" {
		t.Errorf("section[0].Type = %q, want definition", result.Sections[0].Type)
	}

	if result.Sections[1].Heading != "Duties After Loss" {
		t.Errorf("section[1].Heading = %q", result.Sections[1].Heading)
	}
	if result.Sections[1].Level != 2 {
		t.Errorf("section[1].Level = %d, want 2", result.Sections[1].Level)
	}
	if result.Sections[1].Type != "obligation" {
		t.Errorf("section[1].Type = %q, want obligation", result.Sections[1].Type)
	}
}

func TestDOCXParserTable(t *testing.T) {
	docXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Coverage</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>Limit</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Dwelling</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>250000</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`

	p := &DOCXParser{}
	result, err := p.Parse(context.Background(), createTestDOCX(t, docXML))
	if err != nil {
		t.Fatalf("parsing DOCX: %v", err)
	}

	if len(result.Sections) != 1 {
		t.Fatalf("expected 1 table section, got %d", len(result.Sections))
	}
	if result.Sections[0].Type != "table" {
		t.Errorf("type = %q, want table", result.Sections[0].Type)
	}
	if !strings.Contains(result.Sections[0].Content, "| Dwelling | 250000 |") {
		t.Errorf("table content missing row: %q", result.Sections[0].Content)
	}
}

func TestDOCXParserMissingDocumentXML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.docx")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating file: %v", err)
	}
	w := zip.NewWriter(f)
	fw, _ := w.Create("other.xml")
	fw.Write([]byte("<x/>"))
	w.Close()
	f.Close()

	p := &DOCXParser{}
	if _, err := p.Parse(context.Background(), path); err == nil {
		t.Fatal("expected error for DOCX without word/document.xml")
	}
}
