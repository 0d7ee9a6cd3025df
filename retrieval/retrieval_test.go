package retrieval

import (
	"testing"

	"github.com/evanhollis/covergraph/store"
)

func TestFuseRRF(t *testing.T) {
	vec := []store.RetrievalResult{
		{ChunkID: 1, Content: "a"},
		{ChunkID: 2, Content: "b"},
	}
	fts := []store.RetrievalResult{
		{ChunkID: 2, Content: "b"},
		{ChunkID: 3, Content: "c"},
	}
	graph := []store.RetrievalResult{
		{ChunkID: 1, Content: "a"},
	}

	results, infoMap := fuseRRF(vec, fts, graph, 1.0, 1.0, 0.5, 10)

	if len(results) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(results))
	}

	// Verify method tracking
	if info, ok := infoMap[1]; !ok || len(info.Methods) != 2 {
		t.Errorf("chunk 1 should have 2 methods (vec+graph), got %v", infoMap[1])
	}
	if info, ok := infoMap[2]; !ok || len(info.Methods) != 2 {
		t.Errorf("chunk 2 should have 2 methods (vec+fts), got %v", infoMap[2])
	}

	// Compute expected scores manually using RRF formula: weight / (k + rank + 1)
	// where k = 60 (rrfK constant).
	//
	// Chunk 1: vec rank 0 -> 1.0/(60+0+1) = 1/61, graph rank 0 -> 0.5/(60+0+1) = 0.5/61
	//          total = 1.5/61
	// Chunk 2: vec rank 1 -> 1.0/(60+1+1) = 1/62, fts rank 0 -> 1.0/(60+0+1) = 1/61
	//          total = 1/62 + 1/61
	// Chunk 3: fts rank 1 -> 1.0/(60+1+1) = 1/62

	chunk1Score := 1.0/61.0 + 0.5/61.0
	chunk2Score := 1.0/62.0 + 1.0/61.0
	chunk3Score := 1.0 / 62.0

	// Chunk 2 should have the highest score (appears in both vec and fts).
	if results[0].ChunkID != 2 {
		t.Errorf("expected chunk 2 first (highest score), got chunk %d", results[0].ChunkID)
	}
	// Chunk 1 should be second.
	if results[1].ChunkID != 1 {
		t.Errorf("expected chunk 1 second, got chunk %d", results[1].ChunkID)
	}
	// Chunk 3 should be last.
	if results[2].ChunkID != 3 {
		t.Errorf("expected chunk 3 last, got chunk %d", results[2].ChunkID)
	}

	// Verify actual score values with a tolerance.
	const eps = 1e-9
	if diff := results[0].Score - chunk2Score; diff < -eps || diff > eps {
		t.Errorf("chunk 2 score: got %f, want %f", results[0].Score, chunk2Score)
	}
	if diff := results[1].Score - chunk1Score; diff < -eps || diff > eps {
		t.Errorf("chunk 1 score: got %f, want %f", results[1].Score, chunk1Score)
	}
	if diff := results[2].Score - chunk3Score; diff < -eps || diff > eps {
		t.Errorf("chunk 3 score: got %f, want %f", results[2].Score, chunk3Score)
	}
}

func TestFuseRRFTieBreaksOnChunkID(t *testing.T) {
	// Same rank in the same list gives equal scores; ChunkID decides.
	vec := []store.RetrievalResult{
		{ChunkID: 9, Content: "a"},
	}
	fts := []store.RetrievalResult{
		{ChunkID: 4, Content: "b"},
	}

	results, _ := fuseRRF(vec, fts, nil, 1.0, 1.0, 0.0, 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != 4 || results[1].ChunkID != 9 {
		t.Errorf("expected chunk order [4 9], got [%d %d]", results[0].ChunkID, results[1].ChunkID)
	}
}

func TestFuseRRFMaxResults(t *testing.T) {
	vec := []store.RetrievalResult{
		{ChunkID: 1, Content: "a"},
		{ChunkID: 2, Content: "b"},
		{ChunkID: 3, Content: "c"},
	}

	results, _ := fuseRRF(vec, nil, nil, 1.0, 1.0, 1.0, 2)
	if len(results) != 2 {
		t.Errorf("expected 2 results with maxResults=2, got %d", len(results))
	}
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	results, _ := fuseRRF(nil, nil, nil, 1.0, 1.0, 1.0, 10)
	if len(results) != 0 {
		t.Errorf("expected 0 results for empty inputs, got %d", len(results))
	}
}

func TestFuseRRFWeightZero(t *testing.T) {
	vec := []store.RetrievalResult{
		{ChunkID: 1, Content: "a"},
	}
	fts := []store.RetrievalResult{
		{ChunkID: 2, Content: "b"},
	}

	// Weight for vec is 0, so chunk 1 should have score 0. Only fts contributes.
	results, _ := fuseRRF(vec, fts, nil, 0.0, 1.0, 0.0, 10)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	// fts chunk should be ranked first since vec weight is 0.
	if results[0].ChunkID != 2 {
		t.Errorf("expected chunk 2 first when vec weight=0, got chunk %d", results[0].ChunkID)
	}
}

func TestDetectIdentifiers(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"What is my deductible?", false},
		{"Show me policy number P1001", true},
		{"Tell me about claim CL4001", true},
		{"Is $250,000 enough dwelling coverage?", true},
		{"Does form HO 04 16 apply?", true},
		{"What does Section II exclude?", true},
		{"how do I file a claim", false},
		{"what perils are covered", false},
	}
	for _, tt := range tests {
		if got := detectIdentifiers(tt.query); got != tt.want {
			t.Errorf("detectIdentifiers(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "plain text",
			input: "dwelling coverage limit",
		},
		{
			name:  "special characters removed",
			input: `"policy P1001" + (deductible) - premium*`,
		},
		{
			name:  "colons and carets",
			input: "coverage:dwelling type:policy ^boost",
		},
		{
			name:  "single word",
			input: "exclusions",
		},
		{
			name:  "short words filtered",
			input: "a to be or not",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizeFTSQuery(tt.input, nil)

			// Result should never contain unescaped FTS5 operators.
			for _, ch := range []string{"*", "(", ")", "+", "^", ":"} {
				if contains(result, ch) {
					t.Errorf("sanitized query still contains %q: %s", ch, result)
				}
			}

			// Result should not be empty for non-empty input with real words.
			if tt.name == "plain text" && result == "" {
				t.Error("expected non-empty result for plain text input")
			}
		})
	}
}

func TestSanitizeFTSQueryMultiWord(t *testing.T) {
	result := sanitizeFTSQuery("water damage exclusion", nil)

	// Multi-word inputs should produce quoted phrase + individual terms joined with OR.
	if result == "" {
		t.Fatal("expected non-empty result")
	}
	if !containsStr(result, "OR") {
		t.Errorf("expected OR in multi-word query, got: %s", result)
	}
}

func TestSanitizeFTSQueryExpandedTerms(t *testing.T) {
	result := sanitizeFTSQuery("car damage", []string{"auto", "vehicle"})

	for _, term := range []string{"auto", "vehicle", "OR"} {
		if !containsStr(result, term) {
			t.Errorf("expected %q in expanded query, got: %s", term, result)
		}
	}
}

func TestExtractQueryEntities(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []string // at least these should be found
	}{
		{
			name:     "policy identifier",
			query:    "What is my deductible for policy P1001?",
			expected: []string{"P1001", "deductible"},
		},
		{
			name:     "quoted terms",
			query:    `Tell me about "water damage" and "loss of use"`,
			expected: []string{"water damage", "loss of use"},
		},
		{
			name:     "claim identifier",
			query:    "Has claim CL4001 been approved?",
			expected: []string{"CL4001"},
		},
		{
			name:     "form number",
			query:    "Does form HO 04 16 change my coverage?",
			expected: []string{"HO 04 16"},
		},
		{
			name:     "coverage letter",
			query:    "What does Coverage A cover?",
			expected: []string{"coverage a"},
		},
		{
			name:     "section references",
			query:    "What does section 3.2 require?",
			expected: []string{"Section 3.2"},
		},
		{
			name:     "significant words in simple query",
			query:    "what is the meaning of this?",
			expected: []string{"meaning"},
		},
		{
			name:     "capitalized names",
			query:    "Is John Doe the named insured on P1002?",
			expected: []string{"John Doe", "P1002", "insured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := extractQueryEntities(tt.query, nil)

			for _, exp := range tt.expected {
				found := false
				for _, e := range entities {
					if containsStr(e, exp) || containsStr(exp, e) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("expected to find entity matching %q in %v", exp, entities)
				}
			}
		})
	}
}

func TestExtractQueryEntitiesSingleQuotes(t *testing.T) {
	entities := extractQueryEntities("What is 'personal liability' in this policy?", nil)
	found := false
	for _, e := range entities {
		if containsStr(e, "personal liability") {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("expected to find 'personal liability' in entities: %v", entities)
	}
}

func TestIsSynthesisQuery(t *testing.T) {
	synthesis := []string{
		"List all exclusions in my policy",
		"What are all the coverages on P1001?",
		"Give me a complete list of covered perils",
		"what are the things which are covered and how much will the policy pay when there is damage",
	}
	for _, q := range synthesis {
		if !isSynthesisQuery(q) {
			t.Errorf("expected synthesis query: %q", q)
		}
	}

	point := []string{
		"What is my deductible?",
		"Is flood covered?",
		"When does my policy expire?",
	}
	for _, q := range point {
		if isSynthesisQuery(q) {
			t.Errorf("expected point lookup, not synthesis: %q", q)
		}
	}
}

func TestExpanderClusters(t *testing.T) {
	x := NewExpander()

	out := x.Expand([]string{"car"})
	for _, want := range []string{"auto", "automobile", "vehicle", "cars"} {
		found := false
		for _, f := range out {
			if f == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Expand(car) missing %q, got %v", want, out)
		}
	}
	for _, f := range out {
		if f == "car" {
			t.Errorf("Expand should not repeat the input term, got %v", out)
		}
	}
}

func TestExpanderPlurals(t *testing.T) {
	x := NewExpander()

	tests := []struct {
		in   string
		want string
	}{
		{"policies", "policy"},
		{"premiums", "premium"},
		{"exclusion", "exclusions"},
		{"loss", "losses"},
	}
	for _, tt := range tests {
		out := x.Expand([]string{tt.in})
		found := false
		for _, f := range out {
			if f == tt.want {
				found = true
			}
		}
		if !found {
			t.Errorf("Expand(%s) missing %q, got %v", tt.in, tt.want, out)
		}
	}
}

func TestExpanderEmptyAndUnknown(t *testing.T) {
	x := NewExpander()
	if out := x.Expand(nil); out != nil {
		t.Errorf("Expand(nil) = %v, want nil", out)
	}

	// Unknown terms still get a number variant but no synonyms.
	out := x.Expand([]string{"subrogation"})
	if len(out) != 1 || out[0] != "subrogations" {
		t.Errorf("Expand(subrogation) = %v, want [subrogations]", out)
	}
}

func TestExtractSignificantTerms(t *testing.T) {
	terms := extractSignificantTerms("What is the deductible for my auto policy?")
	for _, want := range []string{"deductible", "auto", "policy"} {
		found := false
		for _, term := range terms {
			if term == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing significant term %q in %v", want, terms)
		}
	}
	for _, term := range terms {
		if term == "the" || term == "is" || term == "for" {
			t.Errorf("stop word %q survived extraction: %v", term, terms)
		}
	}
}

func TestIsStopWord(t *testing.T) {
	stop := []string{"the", "a", "an", "and", "or", "is", "are", "in", "on"}
	for _, w := range stop {
		if !isStopWord(w) {
			t.Errorf("expected %q to be a stop word", w)
		}
	}

	nonStop := []string{"coverage", "deductible", "policy", "P1001", "claim"}
	for _, w := range nonStop {
		if isStopWord(w) {
			t.Errorf("expected %q not to be a stop word", w)
		}
	}
}

// contains checks whether s contains the substring sub.
func contains(s, sub string) bool {
	return len(s) >= len(sub) && searchStr(s, sub)
}

func searchStr(s, sub string) bool {
	for i := 0; i <= len(s)-len(sub); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func containsStr(haystack, needle string) bool {
	return len(haystack) >= len(needle) && searchStr(haystack, needle)
}
