package chunker

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/evanhollis/covergraph/parser"
)

// ---------------------------------------------------------------------------
// Core chunker tests
// ---------------------------------------------------------------------------

func TestChunkSimple(t *testing.T) {
	c := New(Config{MaxTokens: 512, Overlap: 64})
	sections := []parser.Section{
		{
			Heading:    "AGREEMENT",
			Content:    "We will provide the insurance described in this policy in return for the premium.",
			Level:      1,
			PageNumber: 1,
			Type:       "section",
		},
	}

	chunks := c.Chunk(sections)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (parent + child), got %d", len(chunks))
	}

	parent := chunks[0]
	if parent.ParentChunkID != nil {
		t.Errorf("parent chunk should have nil ParentChunkID, got %v", *parent.ParentChunkID)
	}
	if parent.ChunkType != "section" {
		t.Errorf("parent ChunkType = %q, want section", parent.ChunkType)
	}
	if parent.Heading != "AGREEMENT" {
		t.Errorf("parent Heading = %q", parent.Heading)
	}
	if !strings.HasPrefix(parent.Content, "AGREEMENT") {
		t.Errorf("parent content should start with the heading, got %q", parent.Content)
	}
	if parent.PositionInDoc != 0 {
		t.Errorf("parent PositionInDoc = %d, want 0", parent.PositionInDoc)
	}
	if parent.PageNumber != 1 {
		t.Errorf("parent PageNumber = %d, want 1", parent.PageNumber)
	}
	if len(parent.ContentHash) != 64 {
		t.Errorf("ContentHash length = %d, want 64", len(parent.ContentHash))
	}

	child := chunks[1]
	if child.ParentChunkID == nil || *child.ParentChunkID != 0 {
		t.Errorf("child ParentChunkID should point at position 0, got %v", child.ParentChunkID)
	}
	if child.ChunkType != "paragraph" {
		t.Errorf("child ChunkType = %q, want paragraph", child.ChunkType)
	}
	if child.PositionInDoc != 1 {
		t.Errorf("child PositionInDoc = %d, want 1", child.PositionInDoc)
	}
	if child.TokenCount <= 0 {
		t.Errorf("child TokenCount = %d, want > 0", child.TokenCount)
	}
}

func TestChunkHierarchical(t *testing.T) {
	c := New(Config{})
	sections := []parser.Section{
		{
			Heading: "SECTION I - PROPERTY COVERAGES",
			Content: "We cover the property described below.",
			Level:   1,
			Type:    "section",
			Children: []parser.Section{
				{
					Heading: "Coverage A - Dwelling",
					Content: "We cover the dwelling on the residence premises.",
					Level:   2,
					Type:    "section",
				},
			},
		},
	}

	chunks := c.Chunk(sections)
	// parent, its content child, sub-parent, sub-content child
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	sub := chunks[2]
	if sub.Heading != "Coverage A - Dwelling" {
		t.Fatalf("chunk 2 heading = %q, expected subsection parent", sub.Heading)
	}
	if sub.ParentChunkID == nil || *sub.ParentChunkID != 0 {
		t.Errorf("subsection parent should link to top section (0), got %v", sub.ParentChunkID)
	}
	subChild := chunks[3]
	if subChild.ParentChunkID == nil || *subChild.ParentChunkID != 2 {
		t.Errorf("subsection content should link to subsection (2), got %v", subChild.ParentChunkID)
	}
}

func TestChunkLongContent(t *testing.T) {
	c := New(Config{MaxTokens: 50, Overlap: 10})

	// Ten paragraphs of ten words each: well over the 50-token budget.
	para := "the insured shall keep an accurate record of all property"
	content := strings.Repeat(para+"\n\n", 10)

	chunks := c.Chunk([]parser.Section{
		{Heading: "CONDITIONS", Content: content, Type: "section"},
	})

	if len(chunks) < 4 {
		t.Fatalf("expected parent plus several fragments, got %d chunks", len(chunks))
	}
	for i, ch := range chunks[1:] {
		if ch.ParentChunkID == nil || *ch.ParentChunkID != 0 {
			t.Errorf("fragment %d not linked to parent: %v", i, ch.ParentChunkID)
		}
		if ch.Content == "" {
			t.Errorf("fragment %d has empty content", i)
		}
	}
}

func TestChunkTableSectionAtomic(t *testing.T) {
	c := New(Config{})
	content := "Limits shown below.\n\n| Coverage | Limit |\n| --- | --- |\n| Dwelling | $250,000 |"

	chunks := c.Chunk([]parser.Section{
		{Heading: "Schedule of Coverages", Content: content, Type: "table"},
	})

	// parent + prose fragment + intact table fragment
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	table := chunks[2]
	if table.ChunkType != "table" {
		t.Errorf("table fragment ChunkType = %q", table.ChunkType)
	}
	for _, row := range []string{"| Coverage | Limit |", "| Dwelling | $250,000 |"} {
		if !strings.Contains(table.Content, row) {
			t.Errorf("table fragment missing row %q:\n%s", row, table.Content)
		}
	}
}

func TestChunkPreservesMetadata(t *testing.T) {
	c := New(Config{})
	chunks := c.Chunk([]parser.Section{
		{
			Heading:  "Premium Schedule",
			Content:  "Annual premium by coverage.",
			Type:     "table",
			Metadata: map[string]string{"sheet_name": "Premiums"},
		},
	})
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(chunks[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	if meta["sheet_name"] != "Premiums" {
		t.Errorf("sheet_name = %q, want Premiums", meta["sheet_name"])
	}
}

func TestChunkPolicySectionMetadata(t *testing.T) {
	c := New(Config{})
	chunks := c.Chunk([]parser.Section{
		{
			Heading: "SECTION I - EXCLUSIONS",
			Content: "We do not cover loss caused by flood.",
			Type:    "exclusion",
		},
	})
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(chunks[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	if meta["policy_section"] != "property_exclusions" {
		t.Errorf("policy_section = %q, want property_exclusions", meta["policy_section"])
	}
	// Children inherit the parent metadata.
	if chunks[1].Metadata != chunks[0].Metadata {
		t.Errorf("child metadata %q differs from parent %q", chunks[1].Metadata, chunks[0].Metadata)
	}
}

func TestChunkNilMetadata(t *testing.T) {
	c := New(Config{})
	chunks := c.Chunk([]parser.Section{
		{Heading: "Mortgage Clause", Content: "Loss payable to the mortgagee named.", Type: "section"},
	})
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	if chunks[0].Metadata != "{}" {
		t.Errorf("nil metadata should marshal to {}, got %q", chunks[0].Metadata)
	}
}

func TestChunkEmptySections(t *testing.T) {
	c := New(Config{})
	if got := c.Chunk(nil); len(got) != 0 {
		t.Errorf("Chunk(nil) produced %d chunks", len(got))
	}
	if got := c.Chunk([]parser.Section{}); len(got) != 0 {
		t.Errorf("Chunk(empty) produced %d chunks", len(got))
	}
}

func TestChunkPositionInDoc(t *testing.T) {
	c := New(Config{})
	sections := []parser.Section{
		{Heading: "DEFINITIONS", Content: "Terms defined here.", Type: "definition"},
		{Heading: "SECTION I - PROPERTY COVERAGES", Content: "Coverages described here.", Type: "section",
			Children: []parser.Section{
				{Heading: "Coverage A - Dwelling", Content: "Dwelling coverage.", Type: "section"},
			}},
	}
	chunks := c.Chunk(sections)
	for i := 1; i < len(chunks); i++ {
		if chunks[i].PositionInDoc <= chunks[i-1].PositionInDoc {
			t.Fatalf("positions not strictly increasing at %d: %d then %d",
				i, chunks[i-1].PositionInDoc, chunks[i].PositionInDoc)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.cfg.MaxTokens != 1024 {
		t.Errorf("default MaxTokens = %d, want 1024", c.cfg.MaxTokens)
	}
	if c.cfg.Overlap != 128 {
		t.Errorf("default Overlap = %d, want 128", c.cfg.Overlap)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"premium", 2},
		{"annual premium", 3},
		{strings.Repeat("w ", 10), 13},
	}
	for _, tc := range cases {
		if got := estimateTokens(tc.text); got != tc.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestChunkTypes(t *testing.T) {
	cases := []struct {
		secType   string
		wantType  string
		wantChild string
	}{
		{"section", "section", "paragraph"},
		{"table", "table", "table"},
		{"definition", "definition", "definition"},
		{"exclusion", "exclusion", "exclusion"},
		{"obligation", "obligation", "obligation"},
		{"declarations", "declarations", "paragraph"},
		{"paragraph", "paragraph", "paragraph"},
		{"", "section", "paragraph"},
	}
	for _, tc := range cases {
		sec := parser.Section{Type: tc.secType}
		if got := chunkTypeFromSection(sec); got != tc.wantType {
			t.Errorf("chunkTypeFromSection(%q) = %q, want %q", tc.secType, got, tc.wantType)
		}
		if got := childChunkType(sec); got != tc.wantChild {
			t.Errorf("childChunkType(%q) = %q, want %q", tc.secType, got, tc.wantChild)
		}
	}
}

func TestContentHash(t *testing.T) {
	h1 := contentHash("hurricane deductible")
	h2 := contentHash("hurricane deductible")
	h3 := contentHash("wind deductible")
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
	if h1 != h2 {
		t.Error("identical content should produce identical hashes")
	}
	if h1 == h3 {
		t.Error("different content should produce different hashes")
	}
}

func TestBuildParentContent(t *testing.T) {
	long := strings.Repeat("duties after loss ", 20) // 360 chars
	sec := parser.Section{Heading: "CONDITIONS", Content: long}

	got := buildParentContent(sec)
	if !strings.HasPrefix(got, "CONDITIONS\n\n") {
		t.Errorf("parent content should start with heading:\n%s", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long content should be abbreviated with ellipsis:\n%s", got)
	}
	if len(got) > len("CONDITIONS\n\n")+203 {
		t.Errorf("abbreviated content too long: %d chars", len(got))
	}

	short := buildParentContent(parser.Section{Heading: "AGREEMENT", Content: "We insure you."})
	if strings.Contains(short, "...") {
		t.Errorf("short content should not be abbreviated: %q", short)
	}
}

func TestSplitContentShort(t *testing.T) {
	c := New(Config{})
	got := c.splitContent("  A single short paragraph.  ")
	if len(got) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(got))
	}
	if got[0] != "A single short paragraph." {
		t.Errorf("fragment = %q", got[0])
	}
}

func TestSplitContentOverlap(t *testing.T) {
	c := New(Config{MaxTokens: 30, Overlap: 5})

	p1 := "alpha one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen"
	p2 := "beta one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen"
	p3 := "gamma one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen"

	got := c.splitContent(p1 + "\n\n" + p2 + "\n\n" + p3)
	if len(got) != 3 {
		t.Fatalf("expected 3 fragments, got %d: %v", len(got), got)
	}
	// Overlap = 5 tokens = 3 words carried from the previous fragment.
	if !strings.HasPrefix(got[1], "seventeen eighteen nineteen") {
		t.Errorf("fragment 2 should start with overlap from fragment 1: %q", got[1])
	}
	if !strings.Contains(got[1], "beta") {
		t.Errorf("fragment 2 should contain the second paragraph: %q", got[1])
	}
}

func TestSplitBySentences(t *testing.T) {
	c := New(Config{MaxTokens: 20, Overlap: 4})

	sent := "The insured gave notice of the loss."
	para := strings.TrimSpace(strings.Repeat(sent+" ", 10))

	got := c.splitBySentences(para, "")
	if len(got) < 3 {
		t.Fatalf("expected several fragments, got %d", len(got))
	}
	for i, f := range got {
		if strings.TrimSpace(f) == "" {
			t.Errorf("fragment %d is empty", i)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("We insure your home. Did you file a claim? Yes! The limit is $2.5 million.")
	want := []string{
		"We insure your home.",
		"Did you file a claim?",
		"Yes!",
		"The limit is $2.5 million.",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sentences %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractOverlap(t *testing.T) {
	text := "one two three four five six seven eight nine ten"

	got := extractOverlap(text, 5) // 5 / 1.3 = 3 words
	if got != "eight nine ten" {
		t.Errorf("overlap = %q, want last three words", got)
	}

	if got := extractOverlap(text, 1000); got != text {
		t.Errorf("large budget should return full text, got %q", got)
	}
	if got := extractOverlap("", 10); got != "" {
		t.Errorf("empty text should return empty overlap, got %q", got)
	}
}

func TestMarshalMeta(t *testing.T) {
	if got := marshalMeta(nil); got != "{}" {
		t.Errorf("marshalMeta(nil) = %q, want {}", got)
	}
	got := marshalMeta(map[string]string{"policy_section": "conditions"})
	var m map[string]string
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if m["policy_section"] != "conditions" {
		t.Errorf("round-trip lost value: %q", got)
	}
}

// ---------------------------------------------------------------------------
// Structure detection tests
// ---------------------------------------------------------------------------

func TestIsHeading(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"SECTION I - PROPERTY COVERAGES", true},
		{"1.2 Deductibles", true},
		{"# Coverage Summary", true},
		{"Endorsement HO-300", true},
		{"Schedule A", true},
		{"ARTICLE IV", true},
		{"Section 4", true},
		{"we pay for direct physical loss.", false},
		{"", false},
		{strings.Repeat("LOSS ", 30), false}, // too long
	}
	for _, tc := range cases {
		if got := IsHeading(tc.line); got != tc.want {
			t.Errorf("IsHeading(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestDetectNumbering(t *testing.T) {
	if num, ok := DetectNumbering("1.2. Duties After Loss"); !ok || num != "1.2" {
		t.Errorf("got (%q, %v), want (1.2, true)", num, ok)
	}
	if num, ok := DetectNumbering("3. Limits of Liability"); !ok || num != "3" {
		t.Errorf("got (%q, %v), want (3, true)", num, ok)
	}
	if _, ok := DetectNumbering("Limits of Liability"); ok {
		t.Error("unnumbered line should not match")
	}
}

func TestNumberingLevel(t *testing.T) {
	cases := map[string]int{"": 0, "3": 1, "1.2": 2, "1.2.3": 3}
	for num, want := range cases {
		if got := NumberingLevel(num); got != want {
			t.Errorf("NumberingLevel(%q) = %d, want %d", num, got, want)
		}
	}
}

func TestContentType(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"pipe table", "| Coverage | Limit |\n| --- | --- |\n| Dwelling | $250,000 |", "table"},
		{"tab table", "Coverage\tLimit\tPremium\nDwelling\t$250,000\t$900", "table"},
		{"definition", `"Bodily injury" means bodily harm, sickness or disease.`, "definition"},
		{"exclusion", "We do not cover loss caused by flood or surface water.", "exclusion"},
		{"obligation", "You will give prompt notice to us or our agent as required.", "obligation"},
		{"section", "SECTION II - LIABILITY COVERAGES\nCoverage E pays damages.", "section"},
		{"paragraph", "The premium reflects local construction costs.", "paragraph"},
		{"empty", "", "paragraph"},
	}
	for _, tc := range cases {
		if got := ContentType(tc.text); got != tc.want {
			t.Errorf("%s: ContentType = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLooksLikeDefinitionMultiline(t *testing.T) {
	two := "Deductible: The amount of loss you pay first.\n" +
		"Premium: The amount you pay for this insurance.\n" +
		"These terms appear throughout the policy.\n" +
		"Read them carefully before filing.\n" +
		"Contact your agent with questions."
	if !looksLikeDefinition(two) {
		t.Error("block with two glossary entries should classify as definition")
	}

	one := "Deductible: The amount of loss you pay first.\n" +
		"These terms appear throughout the policy.\n" +
		"Read them carefully before filing.\n" +
		"Contact your agent with questions.\n" +
		"Thank you for your business."
	if looksLikeDefinition(one) {
		t.Error("long block with a single entry should not classify as definition")
	}
}

func TestLooksLikeExclusion(t *testing.T) {
	if !looksLikeExclusion("This exclusion applies to Coverage A and Coverage B.") {
		t.Error("expected exclusion")
	}
	if !looksLikeExclusion("Flood damage is not covered under this policy.") {
		t.Error("expected exclusion")
	}
	if looksLikeExclusion("We cover sudden and accidental water damage.") {
		t.Error("covering language should not classify as exclusion")
	}
}

// ---------------------------------------------------------------------------
// Clause and definition tests
// ---------------------------------------------------------------------------

func TestDetectClauseBoundaries(t *testing.T) {
	lines := []string{
		"4.1 Give prompt notice to us or our agent.",
		"Include the time and cause of loss.",
		"4.2 Protect the property from further damage.",
	}
	text := strings.Join(lines, "\n")

	got := DetectClauseBoundaries(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 boundaries, got %d", len(got))
	}
	if got[0].Number != "4.1" || got[0].Line != 0 || got[0].Offset != 0 {
		t.Errorf("boundary 0 = %+v", got[0])
	}
	wantOffset := len(lines[0]) + len(lines[1]) + 2
	if got[1].Number != "4.2" || got[1].Line != 2 || got[1].Offset != wantOffset {
		t.Errorf("boundary 1 = %+v, want offset %d", got[1], wantOffset)
	}
}

func TestSplitByClauses(t *testing.T) {
	text := "DUTIES AFTER LOSS\n" +
		"4.1 Give prompt notice.\nInclude the time and cause of loss.\n" +
		"4.2 Protect the property."

	parts := SplitByClauses(text)
	if len(parts) != 3 {
		t.Fatalf("expected preamble + 2 clauses, got %d parts: %v", len(parts), parts)
	}
	if parts[0] != "DUTIES AFTER LOSS" {
		t.Errorf("preamble = %q", parts[0])
	}
	if !strings.HasPrefix(parts[1], "4.1 ") || !strings.Contains(parts[1], "cause of loss") {
		t.Errorf("clause 1 = %q", parts[1])
	}
	if !strings.HasPrefix(parts[2], "4.2 ") {
		t.Errorf("clause 2 = %q", parts[2])
	}
}

func TestSplitByClausesNoClauses(t *testing.T) {
	text := "No numbered clauses appear in this text."
	parts := SplitByClauses(text)
	if len(parts) != 1 || parts[0] != text {
		t.Errorf("unclaused text should come back whole, got %v", parts)
	}
}

func TestExtractClauseNumber(t *testing.T) {
	if num, ok := ExtractClauseNumber("4.2.1 Appraisal procedure"); !ok || num != "4.2.1" {
		t.Errorf("got (%q, %v)", num, ok)
	}
	if _, ok := ExtractClauseNumber("Appraisal procedure"); ok {
		t.Error("unnumbered line should not match")
	}
	if _, ok := ExtractClauseNumber("7 Appraisal"); ok {
		t.Error("single top-level number should not match the clause pattern")
	}
}

func TestClauseDepth(t *testing.T) {
	cases := map[string]int{"": 0, "4": 1, "4.2": 2, "4.2.1": 3}
	for num, want := range cases {
		if got := ClauseDepth(num); got != want {
			t.Errorf("ClauseDepth(%q) = %d, want %d", num, got, want)
		}
	}
}

func TestExtractDefinitions(t *testing.T) {
	text := `"Bodily injury" means bodily harm, sickness or disease.
"Insured" means you and residents of your household.
Deductible: The amount of covered loss you pay before we pay.`

	defs := ExtractDefinitions(text)
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d: %+v", len(defs), defs)
	}
	if defs[0].Term != "Bodily injury" {
		t.Errorf("term 0 = %q", defs[0].Term)
	}
	if defs[0].Body != "means bodily harm, sickness or disease." {
		t.Errorf("body 0 = %q", defs[0].Body)
	}
	if defs[1].Term != "Insured" || defs[1].LineNumber != 1 {
		t.Errorf("definition 1 = %+v", defs[1])
	}
	if defs[2].Term != "Deductible" {
		t.Errorf("term 2 = %q", defs[2].Term)
	}
	if defs[2].Body != "The amount of covered loss you pay before we pay." {
		t.Errorf("body 2 = %q", defs[2].Body)
	}
}

func TestExtractDefinitionsContinuation(t *testing.T) {
	text := "\"Residence premises\" means the one family dwelling where you reside\n" +
		"and which is shown in the Declarations.\n" +
		"\n" +
		"\u201cBusiness\u201d means a trade or profession."

	defs := ExtractDefinitions(text)
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d: %+v", len(defs), defs)
	}
	wantBody := "means the one family dwelling where you reside and which is shown in the Declarations."
	if defs[0].Body != wantBody {
		t.Errorf("continuation not folded:\ngot  %q\nwant %q", defs[0].Body, wantBody)
	}
	if defs[1].Term != "Business" || defs[1].LineNumber != 3 {
		t.Errorf("curly-quoted definition = %+v", defs[1])
	}
}

// ---------------------------------------------------------------------------
// Cross-reference tests
// ---------------------------------------------------------------------------

func TestDetectCrossReferences(t *testing.T) {
	text := "Jewelry limits are described in Coverage C. See also Section II and " +
		"Paragraph 5.b for liability. Endorsement HO-300 modifies this. (see Schedule A)"

	refs := DetectCrossReferences(text)
	if len(refs) < 5 {
		t.Fatalf("expected at least 5 references, got %d: %+v", len(refs), refs)
	}
	if refs[0].Type != "coverage" || refs[0].Target != "C" {
		t.Errorf("first reference should be Coverage C, got %+v", refs[0])
	}
	for i := 1; i < len(refs); i++ {
		if refs[i].Offset < refs[i-1].Offset {
			t.Fatalf("references not ordered by offset: %+v", refs)
		}
	}

	want := map[string]string{
		"coverage":    "C",
		"section":     "II",
		"paragraph":   "5.b",
		"endorsement": "HO-300",
		"schedule":    "A",
	}
	for typ, target := range want {
		found := false
		for _, r := range refs {
			if r.Type == typ && r.Target == target {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing %s reference to %q in %+v", typ, target, refs)
		}
	}
}

func TestDetectCrossReferencesClause(t *testing.T) {
	refs := DetectCrossReferences("Subject to clause 4.2.1 and Article IV of this policy.")
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
	if refs[0].Type != "clause" || refs[0].Target != "4.2.1" {
		t.Errorf("clause ref = %+v", refs[0])
	}
	if refs[1].Type != "article" || refs[1].Target != "IV" {
		t.Errorf("article ref = %+v", refs[1])
	}
}

func TestHasCrossReferences(t *testing.T) {
	if !HasCrossReferences("Subject to Clause 4.2 above.") {
		t.Error("expected cross-reference")
	}
	if HasCrossReferences("No pointers appear in this text.") {
		t.Error("plain text should have no cross-references")
	}
}

func TestCanonicalPolicySection(t *testing.T) {
	cases := []struct {
		heading string
		want    string
		ok      bool
	}{
		{"SECTION I - PROPERTY COVERAGES", "property_coverages", true},
		{"SECTION I - EXCLUSIONS", "property_exclusions", true},
		{"SECTION II - LIABILITY COVERAGES", "liability_coverages", true},
		{"SECTION II - EXCLUSIONS", "liability_exclusions", true},
		{"SECTION I - PERILS INSURED AGAINST", "perils", true},
		{"SECTION II \u2013 EXCLUSIONS", "liability_exclusions", true},
		{"DEFINITIONS", "definitions", true},
		{"Definitions", "definitions", true},
		{"SECTIONS I AND II - CONDITIONS", "conditions", true},
		{"DECLARATIONS", "declarations", true},
		{"AGREEMENT", "agreement", true},
		{"Coverage A - Dwelling", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := CanonicalPolicySection(tc.heading)
		if got != tc.want || ok != tc.ok {
			t.Errorf("CanonicalPolicySection(%q) = (%q, %v), want (%q, %v)",
				tc.heading, got, ok, tc.want, tc.ok)
		}
	}
}

// ---------------------------------------------------------------------------
// Obligation tests
// ---------------------------------------------------------------------------

func TestDetectObligations(t *testing.T) {
	text := "You must give prompt notice to us or our agent.\n" +
		"We agree to pay the cost to repair or replace.\n" +
		"The insured shall not abandon the property.\n" +
		"You may make reasonable repairs to protect the property."

	got := DetectObligations(text)
	if len(got) != 4 {
		t.Fatalf("expected 4 obligations, got %d: %+v", len(got), got)
	}

	want := []struct {
		keyword, party, level string
	}{
		{"MUST", "insured", "mandatory"},
		{"AGREE TO", "insurer", "mandatory"},
		{"SHALL NOT", "insured", "prohibited"},
		{"MAY", "insured", "permissive"},
	}
	for i, w := range want {
		o := got[i]
		if o.Keyword != w.keyword || o.Party != w.party || o.Level != w.level {
			t.Errorf("obligation %d = {%s %s %s}, want {%s %s %s}",
				i, o.Keyword, o.Party, o.Level, w.keyword, w.party, w.level)
		}
		if o.LineNumber != i {
			t.Errorf("obligation %d LineNumber = %d", i, o.LineNumber)
		}
	}
}

func TestObligationPartyFallback(t *testing.T) {
	// No party before the keyword: the rest of the line decides.
	got := DetectObligations("Notice must be given to us immediately after a loss.")
	if len(got) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(got))
	}
	if got[0].Party != "insurer" {
		t.Errorf("party = %q, want insurer (from trailing 'us')", got[0].Party)
	}

	got = DetectObligations("Payment must be made promptly.")
	if len(got) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(got))
	}
	if got[0].Party != "unspecified" {
		t.Errorf("party = %q, want unspecified", got[0].Party)
	}
}

func TestIsObligation(t *testing.T) {
	if !IsObligation("You must notify the police in case of theft.") {
		t.Error("expected obligation")
	}
	if IsObligation("The deductible is shown on the declarations page.") {
		t.Error("descriptive text should not register as obligation")
	}
}

func TestObligationLevel(t *testing.T) {
	cases := map[string]string{
		"SHALL NOT": "prohibited",
		"MUST NOT":  "prohibited",
		"MAY NOT":   "prohibited",
		"WILL NOT":  "prohibited",
		"MAY":       "permissive",
		"SHALL":     "mandatory",
		"MUST":      "mandatory",
		"AGREES TO": "mandatory",
	}
	for kw, want := range cases {
		if got := obligationLevel(kw); got != want {
			t.Errorf("obligationLevel(%q) = %q, want %q", kw, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Form number and amount tests
// ---------------------------------------------------------------------------

func TestDetectFormReferences(t *testing.T) {
	text := "This policy consists of form HO 00 03 10 00 and endorsement HO-300. " +
		"Commercial locations use CP 00 10."

	refs := DetectFormReferences(text)
	if len(refs) != 3 {
		t.Fatalf("expected 3 form references, got %d: %+v", len(refs), refs)
	}

	homeowners := 0
	for _, r := range refs {
		if r.Program == "homeowners" {
			homeowners++
		}
	}
	if homeowners != 2 {
		t.Errorf("expected 2 homeowners forms, got %d", homeowners)
	}

	foundCP := false
	for _, r := range refs {
		if r.Program == "commercial property" && r.FullMatch == "CP 00 10" {
			foundCP = true
		}
	}
	if !foundCP {
		t.Errorf("missing CP 00 10 reference: %+v", refs)
	}
}

func TestDetectMonetaryAmounts(t *testing.T) {
	text := "Coverage A limit is $250,000 with a $1,000 deductible and a $2,500.50 special limit."

	amounts := DetectMonetaryAmounts(text)
	if len(amounts) != 3 {
		t.Fatalf("expected 3 amounts, got %d: %+v", len(amounts), amounts)
	}
	want := []float64{250000, 1000, 2500.50}
	for i, w := range want {
		if amounts[i].Amount != w {
			t.Errorf("amount %d = %v, want %v", i, amounts[i].Amount, w)
		}
	}
	if amounts[0].Raw != "$250,000" {
		t.Errorf("raw 0 = %q", amounts[0].Raw)
	}
}

func TestDetectDeclarationEntries(t *testing.T) {
	text := "Coverage A - Dwelling                 $250,000\n" +
		"Coverage B - Other Structures          $25,000\n" +
		"Deductible: $1,000\n" +
		"Total annual premium                    $1,200\n" +
		" $500"

	entries := DetectDeclarationEntries(text)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d: %+v", len(entries), entries)
	}

	want := []struct {
		label  string
		amount float64
	}{
		{"Coverage A - Dwelling", 250000},
		{"Coverage B - Other Structures", 25000},
		{"Deductible", 1000},
		{"Total annual premium", 1200},
	}
	for i, w := range want {
		if entries[i].Label != w.label || entries[i].Amount != w.amount {
			t.Errorf("entry %d = %+v, want {%s %v}", i, entries[i], w.label, w.amount)
		}
	}
}

// ---------------------------------------------------------------------------
// Table preservation tests
// ---------------------------------------------------------------------------

func TestDetectTables(t *testing.T) {
	text := "Premium Schedule\n" +
		"Coverage | Limit | Premium\n" +
		"Dwelling | $250,000 | $900\n" +
		"Liability | $300,000 | $300\n" +
		"Questions? Call your agent."

	tables := DetectTables(text)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d: %+v", len(tables), tables)
	}
	tbl := tables[0]
	if tbl.StartLine != 1 || tbl.EndLine != 3 {
		t.Errorf("table lines = %d..%d, want 1..3", tbl.StartLine, tbl.EndLine)
	}
	if tbl.HasHeaders {
		t.Error("no separator row, HasHeaders should be false")
	}
}

func TestDetectTablesWithHeaders(t *testing.T) {
	text := "| Coverage | Limit |\n| --- | --- |\n| Dwelling | $250,000 |"
	tables := DetectTables(text)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	if !tables[0].HasHeaders {
		t.Error("separator after first row should set HasHeaders")
	}
}

func TestPreserveTableChunks(t *testing.T) {
	text := "The following limits apply.\n" +
		"| Coverage | Limit |\n| Dwelling | $250,000 |\n" +
		"All limits are per occurrence."

	parts := PreserveTableChunks(text)
	if len(parts) != 3 {
		t.Fatalf("expected prose/table/prose, got %d parts: %v", len(parts), parts)
	}
	if parts[0] != "The following limits apply." {
		t.Errorf("leading prose = %q", parts[0])
	}
	if !strings.Contains(parts[1], "| Dwelling | $250,000 |") {
		t.Errorf("table part = %q", parts[1])
	}
	if parts[2] != "All limits are per occurrence." {
		t.Errorf("trailing prose = %q", parts[2])
	}

	plain := "No tables in this paragraph at all."
	if parts := PreserveTableChunks(plain); len(parts) != 1 || parts[0] != plain {
		t.Errorf("plain text should come back whole, got %v", parts)
	}
}

func TestIsTableLine(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"| Coverage | Limit |", true},
		{"Dwelling\t$250,000\t$900", true},
		{"|---|---|", true},
		{"plain prose about coverage", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isTableLine(tc.line); got != tc.want {
			t.Errorf("isTableLine(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestIsHeaderSeparator(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"|---|---|", true},
		{"--- | ---", true},
		{"| :--- | ---: |", true},
		{"| Coverage | Limit |", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isHeaderSeparator(tc.line); got != tc.want {
			t.Errorf("isHeaderSeparator(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}
