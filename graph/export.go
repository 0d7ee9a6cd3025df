package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/evanhollis/covergraph/store"
)

// ExportNode is one entity in the exported graph.
type ExportNode struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// ExportEdge is one relationship in the exported graph.
type ExportEdge struct {
	Source int64   `json:"source"`
	Target int64   `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// ExportStats summarises the exported graph.
type ExportStats struct {
	Entities      int            `json:"entities"`
	Relationships int            `json:"relationships"`
	EntityTypes   map[string]int `json:"entity_types"`
	RelationTypes map[string]int `json:"relation_types"`
}

// Export is the full graph in a shape convenient for visualisation
// tools and for the QA harness.
type Export struct {
	Nodes []ExportNode `json:"nodes"`
	Edges []ExportEdge `json:"edges"`
	Stats ExportStats  `json:"stats"`
}

// ExportGraph loads the whole entity graph into the export shape.
// Entity metadata is unpacked into node attributes so consumers do not
// need to parse JSON-in-JSON.
func ExportGraph(ctx context.Context, s *store.Store) (*Export, error) {
	entities, err := s.AllEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.ExportGraph: loading entities: %w", err)
	}
	rels, err := s.AllRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.ExportGraph: loading relationships: %w", err)
	}

	out := &Export{
		Nodes: make([]ExportNode, 0, len(entities)),
		Edges: make([]ExportEdge, 0, len(rels)),
		Stats: ExportStats{
			Entities:      len(entities),
			Relationships: len(rels),
			EntityTypes:   make(map[string]int),
			RelationTypes: make(map[string]int),
		},
	}

	known := make(map[int64]bool, len(entities))
	for _, e := range entities {
		known[e.ID] = true
		out.Stats.EntityTypes[e.EntityType]++
		out.Nodes = append(out.Nodes, ExportNode{
			ID:          e.ID,
			Name:        e.Name,
			Type:        e.EntityType,
			Description: e.Description,
			Attributes:  parseAttributes(e.Metadata),
		})
	}

	for _, r := range rels {
		// Orphan edges can appear mid-rebuild; do not export them.
		if !known[r.SourceEntityID] || !known[r.TargetEntityID] {
			continue
		}
		out.Stats.RelationTypes[r.RelationType]++
		out.Edges = append(out.Edges, ExportEdge{
			Source: r.SourceEntityID,
			Target: r.TargetEntityID,
			Type:   r.RelationType,
			Weight: r.Weight,
		})
	}

	return out, nil
}

// ExportJSON writes the full graph export to path as indented JSON.
func ExportJSON(ctx context.Context, s *store.Store, path string) error {
	ex, err := ExportGraph(ctx, s)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		return fmt.Errorf("graph.ExportJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("graph.ExportJSON: %w", err)
	}
	return nil
}

// parseAttributes unpacks the entity metadata column, nil when empty or
// malformed.
func parseAttributes(metadata string) map[string]string {
	if metadata == "" || metadata == "{}" {
		return nil
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(metadata), &attrs); err != nil {
		return nil
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
