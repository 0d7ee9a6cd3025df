package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/evanhollis/covergraph/extract"
	"github.com/evanhollis/covergraph/store"
)

// ResultPath is one matched binding of query aliases to graph entities.
type ResultPath struct {
	Nodes      map[string]int64  `json:"nodes"`
	Properties map[string]string `json:"properties"`
}

// Results holds the outcome of executing a graph query. Properties is
// keyed "alias.property" with distinct values in first-seen order.
type Results struct {
	Count      int                 `json:"count"`
	Properties map[string][]string `json:"properties"`
	Paths      []ResultPath        `json:"paths,omitempty"`

	Procedural   bool   `json:"procedural,omitempty"`
	RequiredInfo string `json:"required_info,omitempty"`
	Contact      string `json:"contact,omitempty"`
}

// Extraction writes lowercase verb edges while schema-level queries use
// the conventional relationship names. Either spelling resolves to the
// same edges.
var relAliases = map[string]string{
	"has_coverage": extract.RelCovers,
	"has_premium":  extract.RelHas,
}

const entityBatchSize = 200

// Execute runs a graph query against the entity graph. Procedural
// queries return their canned payload without touching the store.
func Execute(ctx context.Context, s *store.Store, q *GraphQuery) (*Results, error) {
	if q.Procedural {
		return &Results{
			Procedural:   true,
			RequiredInfo: q.RequiredInfo,
			Contact:      q.Contact,
		}, nil
	}

	res := &Results{Properties: make(map[string][]string)}
	if len(q.StartNodes) == 0 {
		return res, nil
	}

	start := q.StartNodes[0]
	ents, err := s.EntitiesByType(ctx, strings.ToLower(start.Label))
	if err != nil {
		return nil, fmt.Errorf("query.Execute: start nodes %q: %w", start.Label, err)
	}

	matched := make([]store.Entity, 0, len(ents))
	for _, e := range ents {
		if matchesFilters(e, start.Alias, q.Filters) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return res, nil
	}

	if len(q.Paths) == 0 {
		res.Count = len(matched)
		for _, e := range matched {
			props := entityProps(e)
			for _, spec := range q.ReturnProperties {
				if spec.Node != start.Alias {
					continue
				}
				if v, ok := props[spec.Property]; ok {
					key := start.Alias + "." + spec.Property
					res.Properties[key] = appendDistinct(res.Properties[key], v)
				}
			}
		}
		return res, nil
	}

	rows := make([]row, 0, len(matched))
	for _, e := range matched {
		rows = append(rows, row{start.Alias: e})
	}
	for _, p := range q.Paths {
		rows, err = expand(ctx, s, rows, p, q.Filters)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return res, nil
		}
	}

	seen := make(map[string]bool)
	for _, r := range rows {
		sig := r.signature()
		if seen[sig] {
			continue
		}
		seen[sig] = true

		rp := ResultPath{
			Nodes:      make(map[string]int64, len(r)),
			Properties: make(map[string]string),
		}
		for alias, e := range r {
			rp.Nodes[alias] = e.ID
		}
		for _, spec := range q.ReturnProperties {
			e, ok := r[spec.Node]
			if !ok {
				continue
			}
			if v, ok := entityProps(e)[spec.Property]; ok {
				rp.Properties[spec.Node+"."+spec.Property] = v
			}
		}
		res.Paths = append(res.Paths, rp)
	}
	res.Count = len(res.Paths)

	for _, rp := range res.Paths {
		keys := make([]string, 0, len(rp.Properties))
		for k := range rp.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			res.Properties[k] = appendDistinct(res.Properties[k], rp.Properties[k])
		}
	}
	return res, nil
}

// row binds aliases to concrete entities while paths expand.
type row map[string]store.Entity

func (r row) signature() string {
	aliases := make([]string, 0, len(r))
	for a := range r {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	var b strings.Builder
	for _, a := range aliases {
		fmt.Fprintf(&b, "%s=%d;", a, r[a].ID)
	}
	return b.String()
}

// expand advances every row through one path hop, dropping rows with no
// matching edge and fanning out rows with several.
func expand(ctx context.Context, s *store.Store, rows []row, p Path, filters []Filter) ([]row, error) {
	edges, err := edgesForType(ctx, s, p.Rel.Type)
	if err != nil {
		return nil, err
	}

	out := make(map[int64][]int64)
	in := make(map[int64][]int64)
	for _, e := range edges {
		out[e.SourceEntityID] = append(out[e.SourceEntityID], e.TargetEntityID)
		in[e.TargetEntityID] = append(in[e.TargetEntityID], e.SourceEntityID)
	}
	neighbors := func(id int64) []int64 {
		switch p.Rel.Direction {
		case DirectionIn:
			return in[id]
		case DirectionBoth:
			return append(append([]int64{}, out[id]...), in[id]...)
		default:
			return out[id]
		}
	}

	idSet := make(map[int64]bool)
	for _, r := range rows {
		if from, ok := r[p.From.Alias]; ok {
			for _, id := range neighbors(from.ID) {
				idSet[id] = true
			}
		}
	}
	targets, err := fetchEntities(ctx, s, idSet)
	if err != nil {
		return nil, err
	}

	var next []row
	for _, r := range rows {
		from, ok := r[p.From.Alias]
		if !ok {
			continue
		}
		for _, id := range neighbors(from.ID) {
			e, ok := targets[id]
			if !ok || !strings.EqualFold(e.EntityType, p.To.Label) {
				continue
			}
			if !matchesFilters(e, p.To.Alias, filters) {
				continue
			}
			nr := make(row, len(r)+1)
			for k, v := range r {
				nr[k] = v
			}
			nr[p.To.Alias] = e
			next = append(next, nr)
		}
	}
	return next, nil
}

// edgesForType loads relationships matching the query type under any of
// its known spellings.
func edgesForType(ctx context.Context, s *store.Store, relType string) ([]store.Relationship, error) {
	types := []string{relType}
	lower := strings.ToLower(relType)
	if alias, ok := relAliases[lower]; ok {
		types = append(types, alias)
	}
	for schema, verb := range relAliases {
		if verb == lower {
			types = append(types, schema)
		}
	}

	var all []store.Relationship
	seen := make(map[int64]bool)
	for _, t := range types {
		rels, err := s.RelationshipsByType(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("query.Execute: relationships %q: %w", t, err)
		}
		for _, r := range rels {
			if !seen[r.ID] {
				seen[r.ID] = true
				all = append(all, r)
			}
		}
	}
	return all, nil
}

func fetchEntities(ctx context.Context, s *store.Store, idSet map[int64]bool) (map[int64]store.Entity, error) {
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	targets := make(map[int64]store.Entity, len(ids))
	for i := 0; i < len(ids); i += entityBatchSize {
		end := i + entityBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := s.GetEntitiesByIDs(ctx, ids[i:end])
		if err != nil {
			return nil, fmt.Errorf("query.Execute: fetch entities: %w", err)
		}
		for _, e := range batch {
			targets[e.ID] = e
		}
	}
	return targets, nil
}

// matchesFilters reports whether an entity satisfies every filter scoped
// to the given alias. OR groups pass when any of their conditions for
// this alias passes; groups with no condition for the alias do not
// apply.
func matchesFilters(e store.Entity, alias string, filters []Filter) bool {
	props := entityProps(e)
	for _, f := range filters {
		if f.Operator == OpOr {
			applicable := false
			passed := false
			for _, c := range f.Conditions {
				if c.Node != alias {
					continue
				}
				applicable = true
				if evalFilter(props, c) {
					passed = true
					break
				}
			}
			if applicable && !passed {
				return false
			}
			continue
		}
		if f.Node != alias {
			continue
		}
		if !evalFilter(props, f) {
			return false
		}
	}
	return true
}

func evalFilter(props map[string]string, f Filter) bool {
	v, ok := props[strings.ToLower(f.Property)]
	if !ok {
		return false
	}
	switch f.Operator {
	case OpEqual:
		if strings.EqualFold(v, f.Value) {
			return true
		}
		a, aok := parseNumber(v)
		b, bok := parseNumber(f.Value)
		return aok && bok && a == b
	case OpNotEqual:
		return !strings.EqualFold(v, f.Value)
	case OpGreater:
		a, aok := parseNumber(v)
		b, bok := parseNumber(f.Value)
		return aok && bok && a > b
	case OpLess:
		a, aok := parseNumber(v)
		b, bok := parseNumber(f.Value)
		return aok && bok && a < b
	case OpContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(f.Value))
	default:
		return false
	}
}

func parseNumber(s string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(cleaned, 64)
	return f, err == nil
}

// entityProps flattens an entity into a property map: the metadata bag
// first, then the fixed columns under their conventional names.
// Extraction stores identifiers as entity names, so policy and claim
// names double as their identifier properties when the metadata carries
// none.
func entityProps(e store.Entity) map[string]string {
	props := make(map[string]string)
	if e.Metadata != "" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(e.Metadata), &raw); err == nil {
			for k, v := range raw {
				props[strings.ToLower(k)] = stringifyProp(v)
			}
		}
	}
	if _, ok := props["name"]; !ok {
		props["name"] = e.Name
	}
	if e.Description != "" {
		if _, ok := props["description"]; !ok {
			props["description"] = e.Description
		}
		if _, ok := props["meaning"]; !ok {
			props["meaning"] = e.Description
		}
	}
	switch e.EntityType {
	case "policy":
		if _, ok := props["policy_number"]; !ok {
			props["policy_number"] = e.Name
		}
	case "claim":
		if _, ok := props["claim_number"]; !ok {
			props["claim_number"] = e.Name
		}
	case "coverage":
		if _, ok := props["type"]; !ok {
			props["type"] = e.Name
		}
	case "definition":
		if _, ok := props["term"]; !ok {
			props["term"] = e.Name
		}
	case "premium":
		if v, ok := props["period"]; ok {
			if _, exists := props["payment_frequency"]; !exists {
				props["payment_frequency"] = v
			}
		}
	}
	return props
}

func stringifyProp(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func appendDistinct(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
