package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const policyText = `HOMEOWNERS POLICY DECLARATIONS
This insurance policy provides coverage for the insured premises.
The premium is due annually and a deductible applies to each claim.`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestIsInsuranceText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"policy declarations", policyText, true},
		{"generic prose", "The quick brown fox jumps over the lazy dog.", false},
		{"three keywords only", "policy insurance coverage", false}, // needs more than 3
		{"four keywords", "policy insurance coverage claim", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInsuranceText(tt.text); got != tt.want {
				t.Errorf("IsInsuranceText = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ho3.txt", policyText)
	writeFile(t, dir, "notes.md", "grocery list: milk, eggs")
	writeFile(t, dir, "image.png", "not a document")

	sub := filepath.Join(dir, "claims")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "claim-register.xlsx", "binary-ish")

	hidden := filepath.Join(dir, ".cache")
	if err := os.Mkdir(hidden, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, hidden, "cached.txt", policyText)

	cands, err := ScanDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}

	byName := map[string]Candidate{}
	for _, c := range cands {
		byName[filepath.Base(c.Path)] = c
	}

	if len(cands) != 3 {
		t.Fatalf("candidates = %d, want 3: %+v", len(cands), cands)
	}
	if c := byName["ho3.txt"]; !c.Insurance {
		t.Error("policy text file should classify as insurance")
	}
	if c := byName["notes.md"]; c.Insurance {
		t.Error("grocery list should not classify as insurance")
	}
	if c, ok := byName["claim-register.xlsx"]; !ok || !c.Insurance {
		t.Error("xlsx in subdirectory should be a candidate (binary formats defer classification)")
	}
	if _, ok := byName["cached.txt"]; ok {
		t.Error("hidden directories must be skipped")
	}
}

func TestSupportedExt(t *testing.T) {
	if !SupportedExt("a/b/Policy.PDF") {
		t.Error("extension match should be case-insensitive")
	}
	if SupportedExt("slides.pptx") {
		t.Error("pptx is not a supported format")
	}
}

func TestWatcherEmitsStablePath(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	path := writeFile(t, dir, "endorsement.txt", policyText)
	// A second write inside the debounce window must not double-emit.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "endorsement.txt", policyText+"\nAmended.")
	writeFile(t, dir, "skipped.png", "x")

	select {
	case got := <-w.Events:
		if got != path {
			t.Errorf("event path = %q, want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event before timeout")
	}

	select {
	case got := <-w.Events:
		t.Errorf("unexpected second event: %q", got)
	case <-time.After(time.Second):
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, ok := <-w.Events; ok {
		// Drain until closed; a closed watcher must close its channel.
		for range w.Events {
		}
	}
}
