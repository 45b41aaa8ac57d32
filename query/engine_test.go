package query

import (
	"errors"
	"testing"
	"time"

	"github.com/codeloom/codeloom/graph"
)

// queryGraph builds a small but structurally interesting snapshot: two
// endpoints share an order service that calls billing (which calls back,
// forming a cycle), reads and writes the orders collection, and enqueues an
// email task. An admin service deletes from the collection, and a formatting
// utility is referenced by nobody.
func queryGraph(t *testing.T) *graph.Graph {
	t.Helper()

	doc := graph.Document{
		Metadata: graph.Metadata{
			Project:     "shop",
			GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Nodes: []graph.Node{
			{ID: "endpoint:GET:/api/orders", Type: graph.NodeEndpoint, Label: "GET /api/orders", File: "api/orders.py", Line: 10, Ring: graph.RingCore},
			{ID: "endpoint:POST:/api/orders", Type: graph.NodeEndpoint, Label: "POST /api/orders", File: "api/orders.py", Line: 30, Ring: graph.RingCore},
			{ID: "service:orders", Type: graph.NodeService, Label: "OrderService", File: "services/orders.py", Line: 5, Ring: graph.RingCore},
			{ID: "service:billing", Type: graph.NodeService, Label: "BillingService", File: "services/billing.py", Line: 8, Ring: graph.RingCore},
			{ID: "service:admin", Type: graph.NodeService, Label: "AdminService", File: "services/admin.py", Line: 4, Ring: graph.RingAdjacent},
			{ID: "util:format", Type: graph.NodeUtility, Label: "format_price", File: "utils/format.py", Line: 1, Ring: graph.RingAdjacent},
			{ID: "collection:orders", Type: graph.NodeCollection, Label: "orders", File: "models/orders.py", Line: 1, Ring: graph.RingAdjacent},
			{ID: "external_api:stripe", Type: graph.NodeExternalAPI, Label: "Stripe", File: "services/billing.py", Line: 2, Ring: graph.RingInfrastructure},
			{ID: "env_var:STRIPE_KEY", Type: graph.NodeEnvVar, Label: "STRIPE_KEY", File: "config.py", Line: 3, Ring: graph.RingInfrastructure},
			{ID: "task:send_email", Type: graph.NodeTask, Label: "send_email", File: "tasks/email.py", Line: 6, Ring: graph.RingAdjacent},
		},
		Edges: []graph.Edge{
			{Source: "endpoint:GET:/api/orders", Target: "service:orders", Type: graph.EdgeEndpointHandler, File: "api/orders.py", Line: 10},
			{Source: "endpoint:POST:/api/orders", Target: "service:orders", Type: graph.EdgeEndpointHandler, File: "api/orders.py", Line: 30},
			{Source: "service:orders", Target: "collection:orders", Type: graph.EdgeDBRead, Context: "find", File: "services/orders.py", Line: 22},
			{Source: "service:orders", Target: "collection:orders", Type: graph.EdgeDBWrite, Context: "insert_one", File: "services/orders.py", Line: 40},
			{Source: "service:orders", Target: "service:billing", Type: graph.EdgeCalls, Context: "charge", File: "services/orders.py", Line: 45},
			{Source: "service:orders", Target: "task:send_email", Type: graph.EdgeEnqueues, Context: "confirmation", File: "services/orders.py", Line: 50},
			{Source: "service:billing", Target: "external_api:stripe", Type: graph.EdgeAPICall, Context: "POST /v1/charges", File: "services/billing.py", Line: 15},
			{Source: "service:billing", Target: "service:orders", Type: graph.EdgeCalls, Context: "mark_paid", File: "services/billing.py", Line: 20},
			{Source: "service:admin", Target: "collection:orders", Type: graph.EdgeDBWrite, Context: "delete expired", File: "services/admin.py", Line: 12},
			{Source: "service:billing", Target: "env_var:STRIPE_KEY", Type: graph.EdgeImports, File: "services/billing.py", Line: 3},
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
	return g
}

func TestEngine_UsesDoes(t *testing.T) {
	e := NewEngine(queryGraph(t))

	uses, err := e.Uses("collection:orders")
	if err != nil {
		t.Fatalf("Uses() failed: %v", err)
	}
	if len(uses) != 3 {
		t.Fatalf("Uses(collection:orders) returned %d edges, want 3", len(uses))
	}
	// Sorted by source, then type.
	if uses[0].Source != "service:admin" {
		t.Errorf("first user = %s, want service:admin", uses[0].Source)
	}
	if uses[1].Type != graph.EdgeDBRead || uses[2].Type != graph.EdgeDBWrite {
		t.Errorf("service:orders edges not ordered read before write: %v", uses[1:])
	}

	does, err := e.Does("service:billing")
	if err != nil {
		t.Fatalf("Does() failed: %v", err)
	}
	if len(does) != 3 {
		t.Fatalf("Does(service:billing) returned %d edges, want 3", len(does))
	}
	if does[0].Target != "env_var:STRIPE_KEY" || does[2].Target != "service:orders" {
		t.Errorf("Does() not sorted by target: %v", does)
	}

	if _, err := e.Uses("service:ghost"); !errors.Is(err, graph.ErrNodeNotFound) {
		t.Errorf("Uses(unknown) = %v, want ErrNodeNotFound", err)
	}
}

func TestEngine_Hotspots(t *testing.T) {
	e := NewEngine(queryGraph(t))

	top := e.Hotspots(3)
	if len(top) != 3 {
		t.Fatalf("Hotspots(3) returned %d, want 3", len(top))
	}
	want := []struct {
		id    string
		total int
	}{
		{"service:orders", 7},
		{"service:billing", 4},
		{"collection:orders", 3},
	}
	for i, w := range want {
		if top[i].Node.ID != w.id || top[i].Total != w.total {
			t.Errorf("hotspot[%d] = %s(%d), want %s(%d)",
				i, top[i].Node.ID, top[i].Total, w.id, w.total)
		}
	}

	all := e.Hotspots(0)
	if len(all) != 10 {
		t.Errorf("Hotspots(0) returned %d nodes, want all 10", len(all))
	}
	// Equal-degree nodes tie-break by ID ascending.
	for i := 1; i < len(all); i++ {
		if all[i].Total == all[i-1].Total && all[i].Node.ID < all[i-1].Node.ID {
			t.Errorf("tie not broken by ID: %s after %s", all[i].Node.ID, all[i-1].Node.ID)
		}
	}
}

func TestEngine_Dead(t *testing.T) {
	e := NewEngine(queryGraph(t))

	dead := e.Dead()
	if len(dead) != 2 {
		t.Fatalf("Dead() = %v, want [service:admin util:format]", dead)
	}
	if dead[0].ID != "service:admin" || dead[1].ID != "util:format" {
		t.Errorf("Dead() = [%s %s], want [service:admin util:format]", dead[0].ID, dead[1].ID)
	}
	// Endpoints have no in-graph callers but are never dead.
	for _, n := range dead {
		if n.Type.IsEntryPoint() {
			t.Errorf("entry point %s reported dead", n.ID)
		}
	}
}

func TestEngine_Risks(t *testing.T) {
	e := NewEngine(queryGraph(t))

	risks := e.Risks()
	if len(risks.ExternalAPIs) != 1 || risks.ExternalAPIs[0].ID != "external_api:stripe" {
		t.Errorf("ExternalAPIs = %v, want [external_api:stripe]", risks.ExternalAPIs)
	}
	if len(risks.EnvVars) != 1 || risks.EnvVars[0].ID != "env_var:STRIPE_KEY" {
		t.Errorf("EnvVars = %v, want [env_var:STRIPE_KEY]", risks.EnvVars)
	}
	if len(risks.Edges) != 2 {
		t.Errorf("connecting edges = %d, want 2", len(risks.Edges))
	}
}

func TestEngine_Overview(t *testing.T) {
	e := NewEngine(queryGraph(t))

	ov := e.Overview()
	if ov.Project != "shop" {
		t.Errorf("Project = %q, want shop", ov.Project)
	}
	if ov.NodeCount != 10 || ov.EdgeCount != 10 {
		t.Errorf("counts = %d nodes / %d edges, want 10/10", ov.NodeCount, ov.EdgeCount)
	}
	if ov.ByType[graph.NodeService] != 3 {
		t.Errorf("service count = %d, want 3", ov.ByType[graph.NodeService])
	}
	if ov.ByRing[graph.RingInfrastructure] != 2 {
		t.Errorf("infrastructure ring count = %d, want 2", ov.ByRing[graph.RingInfrastructure])
	}
	if len(ov.EntryPoints) != 2 {
		t.Errorf("entry points = %d, want 2", len(ov.EntryPoints))
	}
}
