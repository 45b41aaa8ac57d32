package graph

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// testDocument builds a small valid graph: one endpoint whose handler calls a
// service that reads a collection.
func testDocument() Document {
	return Document{
		Metadata: Metadata{
			Project:                 "shop",
			GeneratedAt:             time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			ScannerVersion:          "1.4.0",
			TotalFilesAnalyzed:      42,
			AnalysisDurationSeconds: 3.5,
		},
		Nodes: []Node{
			{ID: "endpoint:GET:/api/orders", Type: NodeEndpoint, Label: "GET /api/orders", File: "api/orders.py", Line: 10, Ring: RingCore},
			{ID: "service:orders", Type: NodeService, Label: "OrderService", File: "services/orders.py", Line: 5, Ring: RingCore},
			{ID: "collection:orders", Type: NodeCollection, Label: "orders", File: "models/orders.py", Line: 1, Ring: RingAdjacent},
		},
		Edges: []Edge{
			{Source: "endpoint:GET:/api/orders", Target: "service:orders", Type: EdgeEndpointHandler, File: "api/orders.py", Line: 10},
			{Source: "service:orders", Target: "collection:orders", Type: EdgeDBRead, Context: "find", File: "services/orders.py", Line: 22},
		},
	}
}

func loadTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(nil)
	if err := s.LoadDocument(testDocument()); err != nil {
		t.Fatalf("LoadDocument() failed: %v", err)
	}
	return s
}

func TestStore_LoadSaveRoundTrip(t *testing.T) {
	doc := testDocument()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}

	s := NewStore(nil)
	if err := s.Load(raw); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	saved, err := s.Save()
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if !reflect.DeepEqual(doc, saved) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", saved, doc)
	}
}

func TestStore_LoadMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"metadata": `},
		{"wrong field type", `{"metadata": {}, "nodes": [{"id": "a", "type": "service", "line": "ten"}], "edges": []}`},
		{"node missing id", `{"metadata": {}, "nodes": [{"type": "service", "label": "x", "line": 1}], "edges": []}`},
		{"edge missing target", `{"metadata": {}, "nodes": [], "edges": [{"source": "a", "type": "calls"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(nil)
			err := s.Load([]byte(tt.raw))
			var malformed *MalformedError
			if !errors.As(err, &malformed) {
				t.Errorf("Load() = %v, want *MalformedError", err)
			}
		})
	}
}

func TestStore_LoadSchemaViolations(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Document)
		invariant string
		subject   string
	}{
		{
			name: "duplicate node id",
			mutate: func(d *Document) {
				d.Nodes = append(d.Nodes, Node{ID: "service:orders", Type: NodeService, Label: "dup", Line: 1})
			},
			invariant: "duplicate node id",
			subject:   "service:orders",
		},
		{
			name: "ring out of range",
			mutate: func(d *Document) {
				d.Nodes[0].Ring = 7
			},
			invariant: "ring out of range",
			subject:   "endpoint:GET:/api/orders",
		},
		{
			name: "unknown node type",
			mutate: func(d *Document) {
				d.Nodes[1].Type = "microservice"
			},
			invariant: "unknown node type",
			subject:   "service:orders",
		},
		{
			name: "unknown edge type",
			mutate: func(d *Document) {
				d.Edges[1].Type = "db_delete"
			},
			invariant: "unknown edge type",
		},
		{
			name: "dangling edge target",
			mutate: func(d *Document) {
				d.Edges[1].Target = "collection:missing"
			},
			invariant: "dangling edge target",
		},
		{
			name: "non-positive line",
			mutate: func(d *Document) {
				d.Nodes[2].Line = 0
			},
			invariant: "line must be positive",
			subject:   "collection:orders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			tt.mutate(&doc)

			s := NewStore(nil)
			err := s.LoadDocument(doc)

			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("LoadDocument() = %v, want *SchemaError", err)
			}

			found := false
			for _, v := range schemaErr.Violations {
				if v.Invariant == tt.invariant && (tt.subject == "" || v.Subject == tt.subject) {
					found = true
				}
			}
			if !found {
				t.Errorf("violations %v missing %q on %q", schemaErr.Violations, tt.invariant, tt.subject)
			}
		})
	}
}

func TestStore_LoadCollectsAllViolations(t *testing.T) {
	doc := testDocument()
	doc.Nodes[0].Ring = 9
	doc.Edges[1].Target = "collection:missing"

	s := NewStore(nil)
	err := s.LoadDocument(doc)

	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("LoadDocument() = %v, want *SchemaError", err)
	}
	if len(schemaErr.Violations) != 2 {
		t.Errorf("expected 2 violations, got %d: %v", len(schemaErr.Violations), schemaErr.Violations)
	}
}

func TestStore_UpsertNode(t *testing.T) {
	s := loadTestStore(t)

	// Update in place: identity is stable.
	if err := s.UpsertNode(Node{ID: "service:orders", Type: NodeService, Label: "OrderService v2", File: "services/orders.py", Line: 5, Ring: RingAdjacent}); err != nil {
		t.Fatalf("UpsertNode(update) failed: %v", err)
	}
	g, _ := s.Snapshot()
	if got := g.Node("service:orders"); got == nil || got.Label != "OrderService v2" || got.Ring != RingAdjacent {
		t.Errorf("node not updated: %+v", got)
	}
	if len(g.Nodes) != 3 {
		t.Errorf("expected 3 nodes after update, got %d", len(g.Nodes))
	}

	// Insert a new node.
	if err := s.UpsertNode(Node{ID: "env_var:STRIPE_KEY", Type: NodeEnvVar, Label: "STRIPE_KEY", File: "config.py", Line: 3, Ring: RingInfrastructure}); err != nil {
		t.Fatalf("UpsertNode(insert) failed: %v", err)
	}
	g, _ = s.Snapshot()
	if !g.HasNode("env_var:STRIPE_KEY") {
		t.Error("inserted node missing")
	}

	// Invalid node is rejected.
	err := s.UpsertNode(Node{ID: "service:bad", Type: "nope", Line: 1})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Errorf("UpsertNode(invalid) = %v, want *SchemaError", err)
	}
}

func TestStore_UpsertEdge(t *testing.T) {
	s := loadTestStore(t)

	// Same identity refreshes detail instead of duplicating.
	if err := s.UpsertEdge(Edge{Source: "service:orders", Target: "collection:orders", Type: EdgeDBRead, Context: "find_one", Line: 30}); err != nil {
		t.Fatalf("UpsertEdge(update) failed: %v", err)
	}
	g, _ := s.Snapshot()
	if len(g.Edges) != 2 {
		t.Errorf("expected 2 edges after identity update, got %d", len(g.Edges))
	}

	// New relationship appends.
	if err := s.UpsertEdge(Edge{Source: "service:orders", Target: "collection:orders", Type: EdgeDBWrite, Context: "insert"}); err != nil {
		t.Fatalf("UpsertEdge(insert) failed: %v", err)
	}
	g, _ = s.Snapshot()
	if len(g.Edges) != 3 {
		t.Errorf("expected 3 edges after insert, got %d", len(g.Edges))
	}

	// Dangling endpoints are rejected.
	err := s.UpsertEdge(Edge{Source: "service:orders", Target: "collection:ghost", Type: EdgeDBWrite})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Errorf("UpsertEdge(dangling) = %v, want *SchemaError", err)
	}
}

func TestStore_SnapshotImmutableAcrossUpserts(t *testing.T) {
	s := loadTestStore(t)

	before, _ := s.Snapshot()
	nodesBefore := len(before.Nodes)

	if err := s.UpsertNode(Node{ID: "task:cleanup", Type: NodeTask, Label: "cleanup", File: "tasks.py", Line: 8, Ring: RingAdjacent}); err != nil {
		t.Fatal(err)
	}

	if len(before.Nodes) != nodesBefore {
		t.Error("borrowed snapshot mutated by upsert")
	}
	after, _ := s.Snapshot()
	if len(after.Nodes) != nodesBefore+1 {
		t.Error("new snapshot missing upserted node")
	}
}

func TestStore_Neighbors(t *testing.T) {
	s := loadTestStore(t)

	out, err := s.Neighbors("service:orders", DirectionOut)
	if err != nil {
		t.Fatalf("Neighbors(out) failed: %v", err)
	}
	if len(out) != 1 || out[0].ID != "collection:orders" {
		t.Errorf("Neighbors(out) = %v, want [collection:orders]", out)
	}

	in, err := s.Neighbors("service:orders", DirectionIn)
	if err != nil {
		t.Fatalf("Neighbors(in) failed: %v", err)
	}
	if len(in) != 1 || in[0].ID != "endpoint:GET:/api/orders" {
		t.Errorf("Neighbors(in) = %v, want [endpoint:GET:/api/orders]", in)
	}

	both, err := s.Neighbors("service:orders", DirectionBoth)
	if err != nil {
		t.Fatalf("Neighbors(both) failed: %v", err)
	}
	if len(both) != 2 {
		t.Errorf("Neighbors(both) returned %d nodes, want 2", len(both))
	}
	// Sorted by ID for determinism.
	if both[0].ID > both[1].ID {
		t.Errorf("Neighbors(both) not sorted: %s before %s", both[0].ID, both[1].ID)
	}

	// Edge type filter.
	filtered, err := s.Neighbors("service:orders", DirectionOut, EdgeDBWrite)
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 0 {
		t.Errorf("Neighbors(out, db_write) = %v, want none", filtered)
	}

	if _, err := s.Neighbors("service:ghost", DirectionOut); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Neighbors(unknown) = %v, want ErrNodeNotFound", err)
	}
}

func TestStore_RemoveFile(t *testing.T) {
	s := loadTestStore(t)

	if err := s.RemoveFile("services/orders.py"); err != nil {
		t.Fatal(err)
	}

	g, _ := s.Snapshot()
	if g.HasNode("service:orders") {
		t.Error("node from removed file still present")
	}
	// Both edges touched service:orders.
	if len(g.Edges) != 0 {
		t.Errorf("expected 0 edges after removal, got %d", len(g.Edges))
	}
}

func TestStore_SaveFileLoadFile(t *testing.T) {
	s := loadTestStore(t)

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() failed: %v", err)
	}

	s2 := NewStore(nil)
	if err := s2.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	d1, _ := s.Save()
	d2, _ := s2.Save()
	if !reflect.DeepEqual(d1, d2) {
		t.Error("file round-trip mismatch")
	}
}
