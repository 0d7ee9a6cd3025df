package covergraph

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanhollis/covergraph/query"
)

func TestIngestOptions(t *testing.T) {
	opts := &ingestOptions{}
	WithForceReparse()(opts)
	WithMetadata(map[string]string{"source": "intake"})(opts)

	if !opts.forceReparse {
		t.Error("expected forceReparse to be set")
	}
	if opts.metadata["source"] != "intake" {
		t.Errorf("expected metadata to be set, got %v", opts.metadata)
	}
}

func TestQueryOptions(t *testing.T) {
	opts := &queryOptions{}
	WithMaxResults(5)(opts)
	WithWeights(2.0, 1.5, 0.25)(opts)
	WithUser("U5001")(opts)

	if opts.maxResults != 5 {
		t.Errorf("expected maxResults 5, got %d", opts.maxResults)
	}
	if opts.weightVec != 2.0 || opts.weightFTS != 1.5 || opts.weightGraph != 0.25 {
		t.Errorf("unexpected weights: %v %v %v", opts.weightVec, opts.weightFTS, opts.weightGraph)
	}
	if opts.userID != "U5001" {
		t.Errorf("expected userID U5001, got %q", opts.userID)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap at chunk size", func(c *Config) { c.ChunkOverlap = c.MaxChunkTokens }},
		{"negative embedding dim", func(c *Config) { c.EmbeddingDim = -1 }},
		{"confidence above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DBPath = filepath.Join(t.TempDir(), "covergraph.db")
			tc.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestFileHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.txt")
	if err := os.WriteFile(path, []byte("comprehensive auto coverage"), 0o644); err != nil {
		t.Fatal(err)
	}

	h1, err := fileHash(path)
	if err != nil {
		t.Fatalf("fileHash: %v", err)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(h1))
	}

	h2, err := fileHash(path)
	if err != nil {
		t.Fatalf("fileHash second read: %v", err)
	}
	if h1 != h2 {
		t.Error("hash should be stable for unchanged content")
	}

	if err := os.WriteFile(path, []byte("collision coverage only"), 0o644); err != nil {
		t.Fatal(err)
	}
	h3, err := fileHash(path)
	if err != nil {
		t.Fatalf("fileHash after change: %v", err)
	}
	if h3 == h1 {
		t.Error("hash should change with content")
	}
}

func TestFileHashMissingFile(t *testing.T) {
	if _, err := fileHash(filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParamSummary(t *testing.T) {
	p := query.Params{PolicyNumber: "P1001", PolicyType: "auto"}
	got := paramSummary(p)
	if !strings.Contains(got, "policy_number=P1001") {
		t.Errorf("summary missing policy number: %q", got)
	}
	if !strings.Contains(got, "policy_type=auto") {
		t.Errorf("summary missing policy type: %q", got)
	}

	if got := paramSummary(query.Params{}); got != "no parameters" {
		t.Errorf("empty params: got %q", got)
	}
}

func TestGraphSummary(t *testing.T) {
	if got := graphSummary(nil, nil); got != "skipped" {
		t.Errorf("nil results: got %q", got)
	}
	if got := graphSummary(&query.Results{Procedural: true}, nil); got != "procedural" {
		t.Errorf("procedural: got %q", got)
	}
	if got := graphSummary(&query.Results{Count: 3}, nil); got != "3 matches" {
		t.Errorf("count: got %q", got)
	}
}

func TestStepTracer(t *testing.T) {
	a := &Answer{}
	step := stepTracer(a)
	step("classify", "policy_details (0.80, pattern)")
	step("extract", "policy_number=P1001")

	if len(a.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(a.Steps))
	}
	if a.Steps[0].Stage != "classify" || a.Steps[1].Stage != "extract" {
		t.Errorf("unexpected stages: %+v", a.Steps)
	}
}
