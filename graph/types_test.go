package graph

import "testing"

func TestNodeType_IsValid(t *testing.T) {
	valid := []NodeType{
		NodeEndpoint, NodeCollection, NodeFile, NodeRouter, NodeScript,
		NodeTask, NodeCacheKey, NodeService, NodeUtility, NodeWebhook,
		NodeEvent, NodeExternalAPI, NodeEnvVar, NodeComponent, NodePage,
	}
	for _, nt := range valid {
		if !nt.IsValid() {
			t.Errorf("NodeType(%q).IsValid() = false, want true", nt)
		}
	}

	for _, nt := range []NodeType{"", "module", "ENDPOINT", "db"} {
		if nt.IsValid() {
			t.Errorf("NodeType(%q).IsValid() = true, want false", nt)
		}
	}
}

func TestEdgeType_IsValid(t *testing.T) {
	valid := []EdgeType{
		EdgeDBRead, EdgeDBWrite, EdgeEndpointHandler, EdgeAPICall,
		EdgeCacheRead, EdgeCacheWrite, EdgeWebhookReceive, EdgeWebhookSend,
		EdgeEventPublish, EdgeEventSubscribe, EdgeImports, EdgeCalls,
		EdgeEnqueues, EdgeRenders, EdgeFetches,
	}
	for _, et := range valid {
		if !et.IsValid() {
			t.Errorf("EdgeType(%q).IsValid() = false, want true", et)
		}
	}

	for _, et := range []EdgeType{"", "db_delete", "reads", "writes"} {
		if et.IsValid() {
			t.Errorf("EdgeType(%q).IsValid() = true, want false", et)
		}
	}
}

func TestRing_IsValid(t *testing.T) {
	tests := []struct {
		ring Ring
		want bool
	}{
		{RingCore, true},
		{RingAdjacent, true},
		{RingInfrastructure, true},
		{Ring(-1), false},
		{Ring(3), false},
	}
	for _, tt := range tests {
		if got := tt.ring.IsValid(); got != tt.want {
			t.Errorf("Ring(%d).IsValid() = %v, want %v", tt.ring, got, tt.want)
		}
	}
}

func TestNodeType_IsEntryPoint(t *testing.T) {
	entry := []NodeType{NodeEndpoint, NodePage, NodeScript, NodeWebhook}
	for _, nt := range entry {
		if !nt.IsEntryPoint() {
			t.Errorf("NodeType(%q).IsEntryPoint() = false, want true", nt)
		}
	}
	for _, nt := range []NodeType{NodeService, NodeCollection, NodeTask, NodeEvent} {
		if nt.IsEntryPoint() {
			t.Errorf("NodeType(%q).IsEntryPoint() = true, want false", nt)
		}
	}
}

func TestEdge_Key(t *testing.T) {
	a := Edge{Source: "service:x", Target: "collection:orders", Type: EdgeDBWrite, Context: "insert", Line: 10}
	b := Edge{Source: "service:x", Target: "collection:orders", Type: EdgeDBWrite, Context: "delete", Line: 99}

	if a.Key() != b.Key() {
		t.Error("edges differing only in context/line should share identity")
	}

	c := Edge{Source: "service:x", Target: "collection:orders", Type: EdgeDBRead}
	if a.Key() == c.Key() {
		t.Error("edges with different types must not share identity")
	}
}
