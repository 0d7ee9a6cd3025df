package respond

import (
	"encoding/json"
	"strings"

	"github.com/evanhollis/covergraph/store"
)

// DefinitionMatch is a fuzzy definition lookup result.
type DefinitionMatch struct {
	Term    string
	Meaning string
	Score   float64
}

// FindDefinition locates the best definition for a term when the exact
// graph lookup came up empty: exact match first, then substring (0.8),
// then token-set Jaccard above 0.5.
func FindDefinition(term string, defs []store.Entity) (DefinitionMatch, bool) {
	want := strings.ToLower(strings.TrimSpace(term))
	if want == "" {
		return DefinitionMatch{}, false
	}

	var best DefinitionMatch
	for _, d := range defs {
		name := strings.ToLower(d.Name)
		var score float64
		switch {
		case name == want:
			score = 1.0
		case strings.Contains(name, want) || strings.Contains(want, name):
			score = 0.8
		default:
			score = jaccard(tokenize(name), tokenize(want))
			if score <= 0.5 {
				continue
			}
		}
		if score > best.Score {
			best = DefinitionMatch{Term: d.Name, Meaning: meaningOf(d), Score: score}
			if score == 1.0 {
				break
			}
		}
	}
	return best, best.Score > 0
}

// meaningOf pulls the meaning out of the entity: attribute bag first,
// description as fallback.
func meaningOf(d store.Entity) string {
	if d.Metadata != "" {
		var attrs map[string]any
		if err := json.Unmarshal([]byte(d.Metadata), &attrs); err == nil {
			if m, ok := attrs["meaning"].(string); ok && m != "" {
				return m
			}
			if m, ok := attrs["definition"].(string); ok && m != "" {
				return m
			}
		}
	}
	return d.Description
}

func tokenize(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(s) {
		f = strings.Trim(strings.ToLower(f), `.,;:"'()`)
		if len(f) > 1 {
			set[f] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
