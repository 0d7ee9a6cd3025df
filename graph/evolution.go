package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/evanhollis/covergraph/store"
)

// Evolution thresholds and denominators. An entity type needs ten
// instances for full confidence, a relationship type five.
const (
	defaultEvolveThreshold = 0.7
	bootstrapThreshold     = 0.6
	entityConfDenom        = 10.0
	relationConfDenom      = 5.0
	minPropertyCount       = 3
	requiredPropertyCount  = 5
	maxEnumValues          = 5
	minEnumCount           = 5
)

// PropertyDef describes one property of a schema entity or relationship.
type PropertyDef struct {
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Values   []string `json:"values,omitempty"`
}

// EvolutionResult reports what one Evolve pass changed.
type EvolutionResult struct {
	Version          int      `json:"version"`
	Bootstrap        bool     `json:"bootstrap"`
	Threshold        float64  `json:"threshold"`
	AppliedEntities  []string `json:"applied_entities,omitempty"`
	SkippedEntities  []string `json:"skipped_entities,omitempty"`
	AppliedRelations []string `json:"applied_relations,omitempty"`
	SkippedRelations []string `json:"skipped_relations,omitempty"`
}

// QualityReport scores how well the schema fits the instance graph.
type QualityReport struct {
	Coverage      float64 `json:"coverage"`
	Connectivity  float64 `json:"connectivity"`
	Consistency   float64 `json:"consistency"`
	Overall       float64 `json:"overall"`
	EntityTypes   int     `json:"entity_types"`
	RelationTypes int     `json:"relation_types"`
	Entities      int     `json:"entities"`
	Relationships int     `json:"relationships"`
}

// ---------------------------------------------------------------------------
// Default schema
// ---------------------------------------------------------------------------

// DefaultSchema returns the seed insurance schema: the six core entity
// types and the five core relationship types, named to match what the
// extraction rules actually produce.
func DefaultSchema() ([]store.SchemaEntity, []store.SchemaRelationship) {
	entities := []store.SchemaEntity{
		{Name: "policy", Confidence: 0.9, Properties: marshalProps(map[string]PropertyDef{
			"policy_number": {Type: "string", Required: true},
		})},
		{Name: "insured", Confidence: 0.9, Properties: "{}"},
		{Name: "coverage", Confidence: 0.9, Properties: marshalProps(map[string]PropertyDef{
			"letter": {Type: "string"},
		})},
		{Name: "claim", Confidence: 0.9, Properties: marshalProps(map[string]PropertyDef{
			"claim_number": {Type: "string", Required: true},
		})},
		{Name: "premium", Confidence: 0.9, Properties: marshalProps(map[string]PropertyDef{
			"amount": {Type: "number", Required: true},
			"period": {Type: "string"},
		})},
		{Name: "definition", Confidence: 0.9, Properties: "{}"},
	}
	relationships := []store.SchemaRelationship{
		{Name: "covers", SourceType: "policy", TargetType: "coverage", Cardinality: "one_to_many", Confidence: 0.9},
		{Name: "excludes", SourceType: "policy", TargetType: "exclusion", Cardinality: "one_to_many", Confidence: 0.9},
		{Name: "has", SourceType: "policy", TargetType: "premium", Cardinality: "one_to_many", Confidence: 0.9},
		{Name: "applies_to", SourceType: "claim", TargetType: "policy", Cardinality: "many_to_one", Confidence: 0.9},
		{Name: "pays_to", SourceType: "policy", TargetType: "beneficiary", Cardinality: "one_to_many", Confidence: 0.9},
	}
	return entities, relationships
}

// SeedSchema installs the default schema when none exists yet and
// records it as version 1. It is a no-op on an already-seeded store.
func SeedSchema(ctx context.Context, s *store.Store) error {
	existing, err := s.SchemaEntities(ctx)
	if err != nil {
		return fmt.Errorf("graph.SeedSchema: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	if err := applyDefaults(ctx, s); err != nil {
		return err
	}

	current, err := s.CurrentSchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("graph.SeedSchema: reading version: %w", err)
	}
	ents, rels := DefaultSchema()
	if err := s.InsertSchemaVersion(ctx, store.SchemaVersion{
		Version:           current + 1,
		Description:       "seed: default insurance schema",
		EntityCount:       len(ents),
		RelationshipCount: len(rels),
	}); err != nil {
		return fmt.Errorf("graph.SeedSchema: recording version: %w", err)
	}
	slog.Info("schema: seeded defaults", "entity_types", len(ents), "relationship_types", len(rels))
	return nil
}

func applyDefaults(ctx context.Context, s *store.Store) error {
	ents, rels := DefaultSchema()
	for _, se := range ents {
		if _, err := s.UpsertSchemaEntity(ctx, se); err != nil {
			return fmt.Errorf("graph: seeding schema entity %q: %w", se.Name, err)
		}
	}
	for _, sr := range rels {
		if _, err := s.UpsertSchemaRelationship(ctx, sr); err != nil {
			return fmt.Errorf("graph: seeding schema relationship %q: %w", sr.Name, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

// propStats aggregates how often a property key appears for an entity
// type, and which values it takes.
type propStats struct {
	count  int
	values map[string]int
}

// typePair keys relationship endpoint counting.
type typePair struct {
	src, dst string
}

// observation is everything the instance graph tells us in one pass.
type observation struct {
	entityCounts map[string]int
	entityProps  map[string]map[string]*propStats
	relCounts    map[string]int
	relEndpoints map[string]map[typePair]int
	relSources   map[string]map[int64]bool
	relTargets   map[string]map[int64]bool
}

// observe aggregates entity and relationship statistics from the
// stored graph.
func observe(ctx context.Context, s *store.Store) (*observation, error) {
	entities, err := s.AllEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: observing entities: %w", err)
	}
	rels, err := s.AllRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: observing relationships: %w", err)
	}

	obs := &observation{
		entityCounts: make(map[string]int),
		entityProps:  make(map[string]map[string]*propStats),
		relCounts:    make(map[string]int),
		relEndpoints: make(map[string]map[typePair]int),
		relSources:   make(map[string]map[int64]bool),
		relTargets:   make(map[string]map[int64]bool),
	}

	typeOf := make(map[int64]string, len(entities))
	for _, e := range entities {
		typeOf[e.ID] = e.EntityType
		obs.entityCounts[e.EntityType]++

		attrs := parseAttributes(e.Metadata)
		if len(attrs) == 0 {
			continue
		}
		props := obs.entityProps[e.EntityType]
		if props == nil {
			props = make(map[string]*propStats)
			obs.entityProps[e.EntityType] = props
		}
		for k, v := range attrs {
			ps := props[k]
			if ps == nil {
				ps = &propStats{values: make(map[string]int)}
				props[k] = ps
			}
			ps.count++
			// Cap distinct-value tracking; past the enum limit the
			// exact set no longer matters.
			if len(ps.values) <= maxEnumValues*4 {
				ps.values[v]++
			}
		}
	}

	for _, r := range rels {
		obs.relCounts[r.RelationType]++

		pair := typePair{src: typeOf[r.SourceEntityID], dst: typeOf[r.TargetEntityID]}
		pairs := obs.relEndpoints[r.RelationType]
		if pairs == nil {
			pairs = make(map[typePair]int)
			obs.relEndpoints[r.RelationType] = pairs
		}
		pairs[pair]++

		if obs.relSources[r.RelationType] == nil {
			obs.relSources[r.RelationType] = make(map[int64]bool)
		}
		if obs.relTargets[r.RelationType] == nil {
			obs.relTargets[r.RelationType] = make(map[int64]bool)
		}
		obs.relSources[r.RelationType][r.SourceEntityID] = true
		obs.relTargets[r.RelationType][r.TargetEntityID] = true
	}

	return obs, nil
}

// ---------------------------------------------------------------------------
// Evolution
// ---------------------------------------------------------------------------

// Evolve observes the instance graph and folds well-supported entity
// and relationship types into the stored schema. threshold <= 0 uses
// the default; an empty schema is first seeded with the defaults and
// evolved at the bootstrap threshold. Each pass records one schema
// version.
func Evolve(ctx context.Context, s *store.Store, threshold float64) (*EvolutionResult, error) {
	if threshold <= 0 {
		threshold = defaultEvolveThreshold
	}

	existingEnts, err := s.SchemaEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.Evolve: %w", err)
	}
	bootstrap := len(existingEnts) == 0
	if bootstrap {
		if err := applyDefaults(ctx, s); err != nil {
			return nil, err
		}
		threshold = bootstrapThreshold
		existingEnts, err = s.SchemaEntities(ctx)
		if err != nil {
			return nil, fmt.Errorf("graph.Evolve: %w", err)
		}
	}
	existingRels, err := s.SchemaRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.Evolve: %w", err)
	}

	entDefs := make(map[string]store.SchemaEntity, len(existingEnts))
	for _, se := range existingEnts {
		entDefs[se.Name] = se
	}
	relDefs := make(map[string]store.SchemaRelationship, len(existingRels))
	for _, sr := range existingRels {
		relDefs[sr.Name] = sr
	}

	obs, err := observe(ctx, s)
	if err != nil {
		return nil, err
	}

	result := &EvolutionResult{Bootstrap: bootstrap, Threshold: threshold}

	// Entity types, deterministic order.
	for _, name := range sortedKeys(obs.entityCounts) {
		count := obs.entityCounts[name]
		conf := math.Min(1, float64(count)/entityConfDenom)
		if conf < threshold {
			result.SkippedEntities = append(result.SkippedEntities, name)
			continue
		}

		props := mergeProps(entDefs[name].Properties, proposeProps(obs.entityProps[name]))
		if _, err := s.UpsertSchemaEntity(ctx, store.SchemaEntity{
			Name:       name,
			Properties: marshalProps(props),
			Confidence: conf,
		}); err != nil {
			return nil, fmt.Errorf("graph.Evolve: upserting entity type %q: %w", name, err)
		}
		result.AppliedEntities = append(result.AppliedEntities, name)
	}

	// Relationship types.
	for _, name := range sortedKeys(obs.relCounts) {
		count := obs.relCounts[name]
		conf := math.Min(1, float64(count)/relationConfDenom)
		if conf < threshold {
			result.SkippedRelations = append(result.SkippedRelations, name)
			continue
		}

		src, dst := dominantEndpoints(obs.relEndpoints[name])
		def := store.SchemaRelationship{
			Name:        name,
			SourceType:  src,
			TargetType:  dst,
			Cardinality: inferCardinality(count, len(obs.relSources[name]), len(obs.relTargets[name])),
			Properties:  relDefs[name].Properties,
			Confidence:  conf,
		}
		if _, err := s.UpsertSchemaRelationship(ctx, def); err != nil {
			return nil, fmt.Errorf("graph.Evolve: upserting relationship type %q: %w", name, err)
		}
		result.AppliedRelations = append(result.AppliedRelations, name)
	}

	// Record the pass.
	finalEnts, err := s.SchemaEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.Evolve: %w", err)
	}
	finalRels, err := s.SchemaRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.Evolve: %w", err)
	}
	current, err := s.CurrentSchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.Evolve: reading version: %w", err)
	}
	result.Version = current + 1

	desc := fmt.Sprintf("evolve: %d entity types, %d relationship types applied (threshold %.2f)",
		len(result.AppliedEntities), len(result.AppliedRelations), threshold)
	if bootstrap {
		desc = "bootstrap " + desc
	}
	if err := s.InsertSchemaVersion(ctx, store.SchemaVersion{
		Version:           result.Version,
		Description:       desc,
		EntityCount:       len(finalEnts),
		RelationshipCount: len(finalRels),
	}); err != nil {
		return nil, fmt.Errorf("graph.Evolve: recording version: %w", err)
	}

	slog.Info("schema: evolved",
		"version", result.Version,
		"applied_entities", len(result.AppliedEntities),
		"applied_relations", len(result.AppliedRelations),
		"skipped_entities", len(result.SkippedEntities),
		"skipped_relations", len(result.SkippedRelations),
		"threshold", threshold, "bootstrap", bootstrap)
	return result, nil
}

// proposeProps turns observed property statistics into definitions.
// A property needs minPropertyCount sightings; it becomes required past
// requiredPropertyCount or when its name marks an identifier.
func proposeProps(stats map[string]*propStats) map[string]PropertyDef {
	if len(stats) == 0 {
		return nil
	}
	out := make(map[string]PropertyDef)
	for key, ps := range stats {
		if ps.count < minPropertyCount {
			continue
		}
		def := PropertyDef{
			Type:     inferPropertyType(key, ps.values),
			Required: ps.count > requiredPropertyCount || strings.Contains(key, "id") || strings.Contains(key, "number"),
		}
		if len(ps.values) <= maxEnumValues && ps.count >= minEnumCount {
			def.Values = sortedKeys(ps.values)
		}
		out[key] = def
	}
	return out
}

// inferPropertyType types a property from its name and observed values.
func inferPropertyType(key string, values map[string]int) string {
	if strings.HasSuffix(key, "_date") || key == "date" {
		return "date"
	}
	if len(values) == 0 {
		return "string"
	}

	allNumber := true
	for v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allNumber = false
			break
		}
	}
	if allNumber {
		return "number"
	}

	allDate := true
	for v := range values {
		if !strings.ContainsAny(v, "-/") {
			allDate = false
			break
		}
		if _, err := dateparse.ParseAny(v); err != nil {
			allDate = false
			break
		}
	}
	if allDate {
		return "date"
	}
	return "string"
}

// inferCardinality derives cardinality from repeat counts: a source
// appearing on several edges fans out, a target appearing on several
// fans in.
func inferCardinality(total, distinctSources, distinctTargets int) string {
	fanOut := total > distinctSources
	fanIn := total > distinctTargets
	switch {
	case fanOut && fanIn:
		return "many_to_many"
	case fanOut:
		return "one_to_many"
	case fanIn:
		return "many_to_one"
	default:
		return "one_to_one"
	}
}

// dominantEndpoints picks the most frequent (source type, target type)
// pair for a relationship type.
func dominantEndpoints(pairs map[typePair]int) (string, string) {
	var best typePair
	bestCount := -1
	for p, n := range pairs {
		if n > bestCount || (n == bestCount && (p.src < best.src || (p.src == best.src && p.dst < best.dst))) {
			best = p
			bestCount = n
		}
	}
	return best.src, best.dst
}

// mergeProps overlays newly proposed properties onto an existing
// definition so an evolve pass can refine the schema without erasing
// what an earlier pass or the seed established.
func mergeProps(existingJSON string, proposed map[string]PropertyDef) map[string]PropertyDef {
	merged := parseProps(existingJSON)
	if merged == nil {
		merged = make(map[string]PropertyDef)
	}
	for k, v := range proposed {
		merged[k] = v
	}
	return merged
}

func parseProps(raw string) map[string]PropertyDef {
	if raw == "" || raw == "{}" {
		return nil
	}
	var props map[string]PropertyDef
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil
	}
	return props
}

func marshalProps(props map[string]PropertyDef) string {
	if len(props) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// Quality
// ---------------------------------------------------------------------------

// SchemaQuality scores the current schema against the instance graph.
// Coverage grows with schema breadth, connectivity is undirected graph
// density, consistency is the share of required properties across
// definitions. Overall is their mean.
func SchemaQuality(ctx context.Context, s *store.Store) (*QualityReport, error) {
	entDefs, err := s.SchemaEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.SchemaQuality: %w", err)
	}
	relDefs, err := s.SchemaRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.SchemaQuality: %w", err)
	}
	entities, err := s.AllEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.SchemaQuality: %w", err)
	}
	rels, err := s.AllRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.SchemaQuality: %w", err)
	}

	report := &QualityReport{
		EntityTypes:   len(entDefs),
		RelationTypes: len(relDefs),
		Entities:      len(entities),
		Relationships: len(rels),
	}

	report.Coverage = math.Min(1, (float64(len(entDefs))/15+float64(len(relDefs))/25)/2)

	if n := len(entities); n > 1 {
		report.Connectivity = math.Min(1, 2*float64(len(rels))/float64(n*(n-1)))
	}

	var ratios []float64
	for _, def := range entDefs {
		props := parseProps(def.Properties)
		if len(props) == 0 {
			continue
		}
		required := 0
		for _, p := range props {
			if p.Required {
				required++
			}
		}
		ratios = append(ratios, float64(required)/float64(len(props)))
	}
	if len(ratios) == 0 {
		report.Consistency = 1.0
	} else {
		sum := 0.0
		for _, r := range ratios {
			sum += r
		}
		report.Consistency = sum / float64(len(ratios))
	}

	report.Overall = (report.Coverage + report.Connectivity + report.Consistency) / 3
	return report, nil
}
