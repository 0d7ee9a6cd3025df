// Package query turns natural-language insurance questions into
// structured graph queries: intent classification, parameter
// extraction, query construction, and execution against the entity
// graph in the store.
package query

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Intent is a recognized question category.
type Intent string

const (
	IntentPolicyDetails      Intent = "policy_details"
	IntentCoverageInquiry    Intent = "coverage_inquiry"
	IntentClaimStatus        Intent = "claim_status"
	IntentPremiumInformation Intent = "premium_information"
	IntentFilingClaim        Intent = "filing_claim"
	IntentDefinitionInquiry  Intent = "definition_inquiry"
	IntentUnknown            Intent = "unknown"
)

// Classification is the outcome of intent analysis. For IntentUnknown
// the confidence expresses how sure the classifier is that the query
// matches none of the known intents.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Matches    int     `json:"matches"`
	Method     string  `json:"method"` // pattern, keyword or default
}

// intentDef couples an intent with its recognition patterns and the
// fallback keywords consulted when no pattern fires. Slice order is the
// tie-break: the earlier intent wins an equal match count.
type intentDef struct {
	intent   Intent
	patterns []*regexp.Regexp
	keywords []string
}

func compile(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(`(?i)` + p)
	}
	return res
}

// definitionPatterns are anchored so that only queries opening with a
// definition phrasing qualify. The capture group is the candidate term,
// shared with parameter extraction.
var definitionPatterns = compile(
	`^what\s+(?:is|are)\s+([\w\s-]+?)(?:\?|$)`,
	`^what\s+does\s+([\w\s-]+?)\s+mean(?:\?|$)`,
	`^define\s+([\w\s-]+?)(?:\?|$)`,
	`^meaning\s+of\s+([\w\s-]+?)(?:\?|$)`,
	`^definition\s+of\s+([\w\s-]+?)(?:\?|$)`,
)

func builtinIntents() []intentDef {
	return []intentDef{
		{
			intent: IntentPolicyDetails,
			patterns: compile(
				`policy\s+details`,
				`information\s+about\s+(?:my|a|the)\s+policy`,
				`what\s+(?:is|are)\s+(?:in|on|the)\s+(?:my|the)\s+policy`,
				`tell\s+me\s+about\s+(?:my|a|the)\s+policy`,
			),
			keywords: []string{"policy", "details", "declarations"},
		},
		{
			intent: IntentCoverageInquiry,
			patterns: compile(
				`what\s+(?:is|does)\s+(?:my|the)\s+policy\s+cover`,
				`coverage\s+(?:details|information)`,
				`what\s+(?:are|is)\s+(?:my|the)\s+coverage`,
				`covered\s+under\s+(?:my|the)\s+policy`,
				`am\s+i\s+covered`,
			),
			keywords: []string{"coverage", "covered", "cover", "protection"},
		},
		{
			intent: IntentClaimStatus,
			patterns: compile(
				`status\s+of\s+(?:my|the|a)\s+claim`,
				`claim\s+(?:status|update|progress)`,
				`what'?s\s+happening\s+with\s+(?:my|the)\s+claim`,
				`where\s+is\s+(?:my|the)\s+claim`,
			),
			keywords: []string{"claim", "status", "update", "progress", "processed"},
		},
		{
			intent: IntentPremiumInformation,
			patterns: compile(
				`(?:my|the)\s+premium`,
				`how\s+much\s+(?:is|does|do)\s+(?:my|the|i)\s+(?:premium|pay|cost)`,
				`payment\s+(?:amount|details|schedule)`,
				`when\s+(?:is|are)\s+(?:my|the)\s+payment`,
			),
			keywords: []string{"premium", "payment", "pay", "cost", "bill", "due"},
		},
		{
			intent: IntentFilingClaim,
			patterns: compile(
				`(?:how|can|do)\s+(?:to|i|you)\s+file\s+a\s+claim`,
				`(?:submit|start|begin|initiate)\s+a\s+(?:new\s+)?claim`,
				`claim\s+(?:filing|submission)\s+process`,
				`report\s+(?:a|an|the)\s+(?:accident|incident|loss|damage)`,
			),
			keywords: []string{"file", "submit", "report", "accident", "incident", "loss"},
		},
		{
			intent:   IntentDefinitionInquiry,
			patterns: definitionPatterns,
			keywords: []string{"mean", "meaning", "define", "definition", "term"},
		},
	}
}

// Classifier assigns an intent to a raw query string. Learned examples
// extend the pattern set at runtime, so all methods are safe for
// concurrent use.
type Classifier struct {
	mu      sync.RWMutex
	intents []intentDef
	learned map[Intent][]*regexp.Regexp
}

// NewClassifier builds a classifier over the built-in intents.
func NewClassifier() *Classifier {
	return &Classifier{
		intents: builtinIntents(),
		learned: make(map[Intent][]*regexp.Regexp),
	}
}

// AddExample teaches the classifier that queries resembling example
// belong to intent. The example becomes a literal substring pattern, so
// repeated phrasings route correctly even when no built-in pattern
// covers them.
func (c *Classifier) AddExample(intent Intent, example string) {
	example = strings.TrimSpace(example)
	if example == "" || intent == IntentUnknown {
		return
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(example))
	if err != nil {
		return
	}
	c.mu.Lock()
	c.learned[intent] = append(c.learned[intent], re)
	c.mu.Unlock()
}

// LearnedExamples reports how many learned patterns each intent carries.
func (c *Classifier) LearnedExamples() map[Intent]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[Intent]int, len(c.learned))
	for intent, res := range c.learned {
		counts[intent] = len(res)
	}
	return counts
}

// Classify runs pattern matching first, then keyword overlap. Pattern
// confidence is min(0.9, 0.7 + 0.1*matches); keyword confidence is
// min(0.75, 0.3 + 0.15*hits). Anything below 0.6 lands on
// IntentUnknown with confidence 1 - best.
func (c *Classifier) Classify(query string) Classification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Classification{Intent: IntentUnknown, Confidence: 1.0, Method: "default"}
	}

	best := Classification{Intent: IntentUnknown, Method: "default"}
	for _, def := range c.intents {
		matches := 0
		for _, re := range def.patterns {
			if re.MatchString(trimmed) {
				matches++
			}
		}
		for _, re := range c.learned[def.intent] {
			if re.MatchString(trimmed) {
				matches++
			}
		}
		if matches > best.Matches {
			best = Classification{
				Intent:     def.intent,
				Confidence: math.Min(0.9, 0.7+0.1*float64(matches)),
				Matches:    matches,
				Method:     "pattern",
			}
		}
	}
	if best.Matches > 0 {
		return best
	}

	words := tokenSet(trimmed)
	for _, def := range c.intents {
		hits := 0
		for _, kw := range def.keywords {
			if words[kw] {
				hits++
			}
		}
		if hits > best.Matches {
			best = Classification{
				Intent:     def.intent,
				Confidence: math.Min(0.75, 0.3+0.15*float64(hits)),
				Matches:    hits,
				Method:     "keyword",
			}
		}
	}
	if best.Confidence >= 0.6 {
		return best
	}
	return Classification{
		Intent:     IntentUnknown,
		Confidence: 1.0 - best.Confidence,
		Method:     "default",
	}
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = true
	}
	return set
}
