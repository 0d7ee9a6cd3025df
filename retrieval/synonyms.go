package retrieval

import (
	"sort"
	"strings"
	"sync"
)

// synonymClusters groups policyholder vocabulary with the form vocabulary
// it maps to. Queries arrive in everyday words ("car", "house", "stolen")
// while policy forms are written in drafting terms ("auto", "dwelling",
// "theft"); expansion bridges the two for FTS and graph search. All
// members are single words: FTS5 treats juxtaposed words as AND, so a
// multi-word synonym would narrow the query instead of widening it.
var synonymClusters = [][]string{
	{"auto", "car", "vehicle", "automobile"},
	{"home", "house", "dwelling", "residence"},
	{"belongings", "contents"},
	{"cancel", "cancellation", "terminate", "termination", "nonrenewal"},
	{"flood", "flooding"},
	{"theft", "stolen", "burglary"},
	{"lawsuit", "suit"},
	{"renter", "tenant"},
	{"damage", "loss"},
	{"premium", "payment", "price", "cost"},
	{"deductible", "excess"},
	{"injury", "harm"},
	{"wind", "windstorm"},
	{"doctor", "physician"},
	{"accident", "collision"},
}

// Expander adds synonym and plural forms to query terms. Results are
// cached per term so repeated queries over the same vocabulary do no
// recomputation.
type Expander struct {
	mu    sync.RWMutex
	cache map[string][]string
}

// NewExpander creates an Expander over the built-in insurance vocabulary.
func NewExpander() *Expander {
	return &Expander{cache: make(map[string][]string)}
}

// Expand returns additional search terms for the given query terms:
// cluster synonyms plus singular/plural variants. Terms already present
// in the input are not repeated in the output.
func (x *Expander) Expand(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}

	inQuery := make(map[string]bool, len(terms))
	for _, t := range terms {
		inQuery[strings.ToLower(t)] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, t := range terms {
		lower := strings.ToLower(t)
		for _, form := range x.expandTerm(lower) {
			if !inQuery[form] && !seen[form] {
				seen[form] = true
				out = append(out, form)
			}
		}
	}
	return out
}

func (x *Expander) expandTerm(term string) []string {
	x.mu.RLock()
	cached, ok := x.cache[term]
	x.mu.RUnlock()
	if ok {
		return cached
	}

	forms := computeForms(term)
	x.mu.Lock()
	x.cache[term] = forms
	x.mu.Unlock()
	return forms
}

// computeForms collects cluster synonyms and morphological variants for
// one lowercase term, sorted for stable output.
func computeForms(term string) []string {
	set := make(map[string]bool)
	for _, cluster := range synonymClusters {
		member := false
		for _, s := range cluster {
			if s == term {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		for _, s := range cluster {
			if s != term {
				set[s] = true
			}
		}
	}
	for _, m := range numberVariants(term) {
		if m != term {
			set[m] = true
		}
	}

	if len(set) == 0 {
		return nil
	}
	forms := make([]string, 0, len(set))
	for f := range set {
		forms = append(forms, f)
	}
	sort.Strings(forms)
	return forms
}

// numberVariants guesses the other grammatical number of a term. The
// rules are naive English morphology; a wrong guess only adds an OR
// term that matches nothing.
func numberVariants(term string) []string {
	n := len(term)
	switch {
	case n < 3:
		return nil
	case strings.HasSuffix(term, "ies"):
		return []string{term[:n-3] + "y"}
	case strings.HasSuffix(term, "sses"), strings.HasSuffix(term, "xes"),
		strings.HasSuffix(term, "ches"), strings.HasSuffix(term, "shes"):
		return []string{term[:n-2]}
	case strings.HasSuffix(term, "ss"), strings.HasSuffix(term, "x"),
		strings.HasSuffix(term, "ch"), strings.HasSuffix(term, "sh"):
		return []string{term + "es"}
	case strings.HasSuffix(term, "s"):
		return []string{term[:n-1]}
	case strings.HasSuffix(term, "y") && n > 3 && !isVowel(term[n-2]):
		return []string{term[:n-1] + "ies"}
	default:
		return []string{term + "s"}
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
