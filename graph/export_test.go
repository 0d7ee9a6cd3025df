//go:build cgo

package graph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestExportGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entityIDs, _ := seedInsuranceGraph(t, s)

	ex, err := ExportGraph(ctx, s)
	if err != nil {
		t.Fatalf("exporting graph: %v", err)
	}
	if ex.Stats.Entities != len(entityIDs) {
		t.Errorf("expected %d entities, got %d", len(entityIDs), ex.Stats.Entities)
	}
	if ex.Stats.Relationships != 5 {
		t.Errorf("expected 5 relationships, got %d", ex.Stats.Relationships)
	}
	if got := ex.Stats.EntityTypes["coverage"]; got != 2 {
		t.Errorf("expected 2 coverage entities, got %d", got)
	}
	if len(ex.Edges) != 5 {
		t.Errorf("expected 5 edges, got %d", len(ex.Edges))
	}
	known := make(map[int64]bool, len(ex.Nodes))
	for _, n := range ex.Nodes {
		known[n.ID] = true
	}
	for _, e := range ex.Edges {
		if !known[e.Source] || !known[e.Target] {
			t.Errorf("edge %d->%d references an unexported node", e.Source, e.Target)
		}
	}
}

func TestExportJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedInsuranceGraph(t, s)

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := ExportJSON(ctx, s, path); err != nil {
		t.Fatalf("writing export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	var ex Export
	if err := json.Unmarshal(data, &ex); err != nil {
		t.Fatalf("unmarshalling export: %v", err)
	}
	if len(ex.Nodes) == 0 || len(ex.Edges) == 0 {
		t.Errorf("expected nodes and edges in the export, got %d/%d", len(ex.Nodes), len(ex.Edges))
	}
	if ex.Stats.Entities != len(ex.Nodes) {
		t.Errorf("stats disagree with node count: %d vs %d", ex.Stats.Entities, len(ex.Nodes))
	}
}
