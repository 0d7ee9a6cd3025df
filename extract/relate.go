package extract

import "strings"

// relate infers relationships between the merged mentions of one chunk.
// Rules key off entity type pairs plus the chunk's policy-section kind:
// a peril named in exclusion text is being removed from coverage, the
// same peril in coverage text is being granted.
func relate(mentions []Mention, ctx Context) []Relation {
	if len(mentions) < 2 {
		return nil
	}
	idx := byType(mentions)
	var rels []Relation
	add := func(src, dst Mention, typ string, w float64) {
		rels = append(rels, Relation{
			SourceKey: src.Key(),
			TargetKey: dst.Key(),
			Type:      typ,
			Weight:    w,
		})
	}

	policies := idx["policy"]
	coverages := idx["coverage"]
	exclusionCtx := ctx.ChunkType == "exclusion" ||
		ctx.Kind == "property_exclusions" || ctx.Kind == "liability_exclusions"

	for _, p := range policies {
		for _, c := range coverages {
			add(p, c, RelCovers, 0.9)
		}
		for _, e := range idx["exclusion"] {
			add(p, e, RelExcludes, 0.85)
		}
		for _, t := range []string{"premium", "deductible", "term", "condition"} {
			for _, m := range idx[t] {
				add(p, m, RelHas, 0.85)
			}
		}
		for _, b := range idx["beneficiary"] {
			add(p, b, RelPaysTo, 0.8)
		}
		for _, i := range idx["insured"] {
			add(p, i, RelCovers, 0.8)
		}
		for _, a := range idx["additional_coverage"] {
			add(p, a, RelCovers, 0.8)
		}
		for _, r := range idx["risk"] {
			add(p, r, RelCovers, 0.7)
		}
	}

	for _, ins := range idx["insurer"] {
		for _, p := range policies {
			add(ins, p, RelHas, 0.75)
		}
	}
	for _, i := range idx["insured"] {
		for _, c := range idx["claim"] {
			add(i, c, RelHas, 0.75)
		}
	}
	for _, c := range idx["claim"] {
		for _, p := range policies {
			add(c, p, RelAppliesTo, 0.75)
		}
	}

	for _, peril := range idx["peril"] {
		switch {
		case exclusionCtx && len(coverages) > 0:
			for _, c := range coverages {
				add(peril, c, RelExcludesFrom, 0.8)
			}
		case exclusionCtx:
			for _, p := range policies {
				add(p, peril, RelExcludes, 0.8)
			}
		case len(coverages) > 0:
			for _, c := range coverages {
				add(c, peril, RelCovers, 0.8)
			}
		default:
			for _, p := range policies {
				add(p, peril, RelCovers, 0.75)
			}
		}
	}

	for _, e := range idx["exclusion"] {
		for _, c := range coverages {
			add(e, c, RelAppliesTo, 0.8)
		}
	}
	for _, d := range idx["definition"] {
		for _, p := range policies {
			add(d, p, RelDefinesConcept, 0.8)
		}
	}

	for _, l := range idx["limit"] {
		for _, c := range matchLimitCoverages(l, coverages) {
			add(l, c, RelLimitsAmountFor, 0.85)
		}
	}

	modifiers := make([]Mention, 0, len(idx["endorsement"])+len(idx["rider"]))
	modifiers = append(modifiers, idx["endorsement"]...)
	modifiers = append(modifiers, idx["rider"]...)
	for _, modifier := range modifiers {
		if len(coverages) > 0 {
			for _, c := range coverages {
				add(modifier, c, RelModifiesCover, 0.8)
			}
		} else {
			for _, p := range policies {
				add(modifier, p, RelModifiesCover, 0.75)
			}
		}
	}

	for _, cond := range idx["condition"] {
		for _, c := range coverages {
			add(cond, c, RelAppliesTo, 0.75)
		}
	}
	for _, l := range idx["liability"] {
		for _, c := range coverages {
			add(c, l, RelCovers, 0.75)
		}
	}
	for _, pr := range idx["property"] {
		if len(coverages) > 0 {
			for _, c := range coverages {
				add(c, pr, RelCovers, 0.8)
			}
		} else {
			for _, p := range policies {
				add(p, pr, RelCovers, 0.7)
			}
		}
	}
	for _, u := range idx["underwriting"] {
		for _, p := range policies {
			add(u, p, RelAppliesTo, 0.6)
		}
	}
	return rels
}

// matchLimitCoverages binds a limit to the coverages named in its
// label, by name or by coverage letter, falling back to a sole
// coverage mention in the same chunk.
func matchLimitCoverages(limit Mention, coverages []Mention) []Mention {
	lowerLabel := strings.ToLower(limit.Name)
	letter := limit.Attributes["letter"]
	var out []Mention
	for _, c := range coverages {
		if strings.Contains(lowerLabel, strings.ToLower(c.Name)) {
			out = append(out, c)
			continue
		}
		if letter != "" && letter == c.Attributes["letter"] {
			out = append(out, c)
		}
	}
	if len(out) == 0 && len(coverages) == 1 {
		out = coverages[:1]
	}
	return out
}
