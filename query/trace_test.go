package query

import (
	"errors"
	"testing"
	"time"

	"github.com/codeloom/codeloom/graph"
)

func TestEngine_Trace(t *testing.T) {
	e := NewEngine(queryGraph(t))

	tr, err := e.Trace("endpoint:GET:/api/orders")
	if err != nil {
		t.Fatalf("Trace() failed: %v", err)
	}

	if tr.Root.ID != "endpoint:GET:/api/orders" {
		t.Errorf("root = %s", tr.Root.ID)
	}

	// The chain: handler -> orders service, which fans out to billing, the
	// collection (twice), and the email task; billing reaches stripe and
	// calls back into orders.
	if len(tr.Steps) != 7 {
		t.Fatalf("trace has %d steps, want 7: %+v", len(tr.Steps), tr.Steps)
	}

	if tr.Steps[0].Depth != 1 || tr.Steps[0].Node.ID != "service:orders" {
		t.Errorf("first step = depth %d node %s, want depth 1 service:orders",
			tr.Steps[0].Depth, tr.Steps[0].Node.ID)
	}

	// Depth-2 fan-out is sorted by edge type: calls, db_read, db_write,
	// enqueues.
	wantDepth2 := []graph.EdgeType{graph.EdgeCalls, graph.EdgeDBRead, graph.EdgeDBWrite, graph.EdgeEnqueues}
	for i, want := range wantDepth2 {
		step := tr.Steps[1+i]
		if step.Depth != 2 || step.Edge.Type != want {
			t.Errorf("step[%d] = depth %d type %s, want depth 2 type %s",
				1+i, step.Depth, step.Edge.Type, want)
		}
	}

	// The read and write branches converge on the collection; the second
	// encounter is recorded but is not a loop.
	if tr.Steps[3].Edge.Type != graph.EdgeDBWrite || tr.Steps[3].Cycle {
		t.Errorf("converging db_write step = %+v, want unflagged", tr.Steps[3])
	}

	if !tr.HasCycle {
		t.Error("trace through billing -> orders should flag a cycle")
	}
	// The call back into the orders service re-enters its own chain and
	// terminates the branch.
	last := tr.Steps[len(tr.Steps)-1]
	if last.Node.ID != "service:orders" || !last.Cycle {
		t.Errorf("last step = %s (cycle=%v), want cycle-flagged service:orders",
			last.Node.ID, last.Cycle)
	}
	for i, s := range tr.Steps[:len(tr.Steps)-1] {
		if s.Cycle {
			t.Errorf("step[%d] flagged as a cycle: %+v", i, s)
		}
	}
}

func TestEngine_TraceDiamondIsNotACycle(t *testing.T) {
	doc := graph.Document{
		Metadata: graph.Metadata{
			Project:     "shop",
			GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Nodes: []graph.Node{
			{ID: "endpoint:POST:/audit", Type: graph.NodeEndpoint, Label: "POST /audit", File: "api/audit.py", Line: 1, Ring: graph.RingCore},
			{ID: "service:front", Type: graph.NodeService, Label: "Front", File: "services/front.py", Line: 1, Ring: graph.RingCore},
			{ID: "service:left", Type: graph.NodeService, Label: "Left", File: "services/left.py", Line: 1, Ring: graph.RingCore},
			{ID: "service:right", Type: graph.NodeService, Label: "Right", File: "services/right.py", Line: 1, Ring: graph.RingCore},
			{ID: "collection:audit", Type: graph.NodeCollection, Label: "audit", File: "models/audit.py", Line: 1, Ring: graph.RingAdjacent},
		},
		Edges: []graph.Edge{
			{Source: "endpoint:POST:/audit", Target: "service:front", Type: graph.EdgeEndpointHandler, File: "api/audit.py", Line: 1},
			{Source: "service:front", Target: "service:left", Type: graph.EdgeCalls, File: "services/front.py", Line: 5},
			{Source: "service:front", Target: "service:right", Type: graph.EdgeCalls, File: "services/front.py", Line: 6},
			{Source: "service:left", Target: "collection:audit", Type: graph.EdgeDBWrite, Context: "insert", File: "services/left.py", Line: 9},
			{Source: "service:right", Target: "collection:audit", Type: graph.EdgeDBWrite, Context: "insert", File: "services/right.py", Line: 9},
		},
	}
	s := graph.NewStore(nil)
	if err := s.LoadDocument(doc); err != nil {
		t.Fatalf("LoadDocument() failed: %v", err)
	}
	g, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	tr, err := NewEngine(g).Trace("endpoint:POST:/audit")
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Steps) != 5 {
		t.Fatalf("trace has %d steps, want 5: %+v", len(tr.Steps), tr.Steps)
	}
	if tr.HasCycle {
		t.Error("acyclic diamond reported as a cycle")
	}
	for i, s := range tr.Steps {
		if s.Cycle {
			t.Errorf("step[%d] flagged as a cycle: %+v", i, s)
		}
	}
	// The shared collection is reached from both branches.
	hits := 0
	for _, s := range tr.Steps {
		if s.Node.ID == "collection:audit" {
			hits++
		}
	}
	if hits != 2 {
		t.Errorf("collection:audit reached %d times, want 2", hits)
	}
}

func TestEngine_TraceSkipsStructuralEdges(t *testing.T) {
	e := NewEngine(queryGraph(t))

	tr, err := e.Trace("service:billing")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range tr.Steps {
		if s.Edge.Type == graph.EdgeImports {
			t.Errorf("trace followed structural edge %v", s.Edge)
		}
	}
}

func TestEngine_TraceUnknownRoot(t *testing.T) {
	e := NewEngine(queryGraph(t))

	if _, err := e.Trace("endpoint:GET:/nope"); !errors.Is(err, graph.ErrNodeNotFound) {
		t.Errorf("Trace(unknown) = %v, want ErrNodeNotFound", err)
	}
}
