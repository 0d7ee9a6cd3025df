// Package extract pulls insurance entities and relationships out of
// chunk text using deterministic pattern rules.  No model calls are
// involved: the same chunk always yields the same graph facts.
package extract

import "strings"

// Entity types the extractor is allowed to produce.  Anything outside
// this set is a bug in a rule.
var EntityTypes = []string{
	"policy", "claim", "coverage", "exclusion", "premium", "deductible",
	"insured", "insurer", "beneficiary", "term", "endorsement", "rider",
	"underwriting", "risk", "peril", "definition", "limit", "condition",
	"property", "liability", "additional_coverage",
}

var entityTypeSet = func() map[string]bool {
	m := make(map[string]bool, len(EntityTypes))
	for _, t := range EntityTypes {
		m[t] = true
	}
	return m
}()

// ValidType reports whether t is a known entity type.
func ValidType(t string) bool {
	return entityTypeSet[t]
}

// Relationship types produced by the extractor.
const (
	RelCovers          = "covers"
	RelExcludes        = "excludes"
	RelHas             = "has"
	RelAppliesTo       = "applies_to"
	RelPaysTo          = "pays_to"
	RelDefinesConcept  = "defines_concept_in"
	RelExcludesFrom    = "excludes_from"
	RelLimitsAmountFor = "limits_amount_for"
	RelModifiesCover   = "modifies_coverage"
)

// Mention is one extracted entity occurrence within a chunk.
type Mention struct {
	Type        string
	Name        string
	Description string
	Attributes  map[string]string
}

// Key returns the deduplication key for a mention: type plus
// case-folded name.
func (m Mention) Key() string {
	return Key(m.Type, m.Name)
}

// Key builds the deduplication key "type:name" with the name lowercased.
func Key(entityType, name string) string {
	return entityType + ":" + strings.ToLower(strings.TrimSpace(name))
}

// Relation links two mentions by their dedup keys.
type Relation struct {
	SourceKey   string
	TargetKey   string
	Type        string
	Weight      float64
	Description string
}

// Result is everything extracted from a single chunk.
type Result struct {
	Mentions  []Mention
	Relations []Relation
}

// Context carries chunk-level signals that gate extraction rules.
type Context struct {
	ChunkType string // chunk type: section, definition, exclusion, ...
	Heading   string // section heading the chunk came from
	Kind      string // canonical policy section, "" when unknown
}

// FromChunk runs all extraction rules against one chunk of policy text
// and returns the deduplicated mentions plus the relations inferred
// between them.
func FromChunk(content string, ctx Context) Result {
	if strings.TrimSpace(content) == "" {
		return Result{}
	}

	var mentions []Mention
	mentions = append(mentions, extractIdentifiers(content)...)
	mentions = append(mentions, extractParties(content)...)
	mentions = append(mentions, extractCoverages(content, ctx)...)
	mentions = append(mentions, extractPerils(content, ctx)...)
	mentions = append(mentions, extractExclusions(content)...)
	mentions = append(mentions, extractDefinitions(content, ctx)...)
	mentions = append(mentions, extractAmounts(content, ctx)...)
	mentions = append(mentions, extractEndorsements(content)...)
	mentions = append(mentions, extractConditions(content, ctx)...)
	mentions = append(mentions, extractPolicyTerm(content)...)

	merged := Merge(mentions)
	return Result{
		Mentions:  merged,
		Relations: relate(merged, ctx),
	}
}

// Merge deduplicates mentions by key.  Attributes from later duplicates
// fill gaps in the first occurrence; existing values are never
// overwritten.  Output order follows first appearance.
func Merge(mentions []Mention) []Mention {
	seen := make(map[string]int, len(mentions))
	var out []Mention
	for _, m := range mentions {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" || !ValidType(m.Type) {
			continue
		}
		key := m.Key()
		idx, ok := seen[key]
		if !ok {
			if m.Attributes == nil {
				m.Attributes = map[string]string{}
			}
			seen[key] = len(out)
			out = append(out, m)
			continue
		}
		dst := &out[idx]
		for k, v := range m.Attributes {
			if _, exists := dst.Attributes[k]; !exists {
				dst.Attributes[k] = v
			}
		}
		if dst.Description == "" {
			dst.Description = m.Description
		}
	}
	return out
}

// byType indexes merged mentions for relation building.
func byType(mentions []Mention) map[string][]Mention {
	m := make(map[string][]Mention)
	for _, mn := range mentions {
		m[mn.Type] = append(m[mn.Type], mn)
	}
	return m
}
