// Package query provides read-only analytical queries over a graph snapshot.
// Every query is pure given the graph: the engine borrows an immutable
// snapshot and never mutates it, so no locking is required.
package query

import (
	"fmt"
	"sort"

	"github.com/codeloom/codeloom/graph"
)

// Engine answers structural queries against one immutable graph snapshot.
type Engine struct {
	g *graph.Graph
}

// NewEngine creates an engine over the given snapshot.
func NewEngine(g *graph.Graph) *Engine {
	return &Engine{g: g}
}

// Graph returns the underlying snapshot.
func (e *Engine) Graph() *graph.Graph {
	return e.g
}

// Uses returns all incoming edges of a node: who references it. Results are
// sorted by (source, type) for determinism.
func (e *Engine) Uses(nodeID string) ([]graph.Edge, error) {
	if !e.g.HasNode(nodeID) {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}
	return sortedEdges(e.g.Incoming(nodeID)), nil
}

// Does returns all outgoing edges of a node: what it does. Results are sorted
// by (target, type) for determinism.
func (e *Engine) Does(nodeID string) ([]graph.Edge, error) {
	if !e.g.HasNode(nodeID) {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}
	return sortedEdges(e.g.Outgoing(nodeID)), nil
}

// Hotspot is a node ranked by connectivity.
type Hotspot struct {
	Node graph.Node `json:"node"`
	In   int        `json:"in"`
	Out  int        `json:"out"`
	// Total is indegree + outdegree.
	Total int `json:"total"`
}

// Hotspots ranks nodes by total degree descending. Ties break by node ID
// ascending, so the ranking is deterministic under input reordering. A
// limit <= 0 returns all nodes.
func (e *Engine) Hotspots(limit int) []Hotspot {
	spots := make([]Hotspot, 0, len(e.g.Nodes))
	for i := range e.g.Nodes {
		n := e.g.Nodes[i]
		in := len(e.g.Incoming(n.ID))
		out := len(e.g.Outgoing(n.ID))
		spots = append(spots, Hotspot{Node: n, In: in, Out: out, Total: in + out})
	}

	sort.Slice(spots, func(i, j int) bool {
		if spots[i].Total != spots[j].Total {
			return spots[i].Total > spots[j].Total
		}
		return spots[i].Node.ID < spots[j].Node.ID
	})

	if limit > 0 && len(spots) > limit {
		spots = spots[:limit]
	}
	return spots
}

// Dead returns nodes with zero incoming edges, excluding entry-point types
// (endpoints, pages, scripts, webhooks are invoked externally and
// legitimately have no in-graph caller) and pure-target types (collections,
// external APIs, env vars, cache keys never call anything). Sorted by ID.
func (e *Engine) Dead() []graph.Node {
	var dead []graph.Node
	for i := range e.g.Nodes {
		n := e.g.Nodes[i]
		if n.Type.IsEntryPoint() || n.Type.IsTargetOnly() {
			continue
		}
		if len(e.g.Incoming(n.ID)) == 0 {
			dead = append(dead, n)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].ID < dead[j].ID })
	return dead
}

// RiskSurface is the externally-facing attack/availability surface: all
// external API and environment-variable nodes plus their connecting edges.
type RiskSurface struct {
	ExternalAPIs []graph.Node `json:"external_apis"`
	EnvVars      []graph.Node `json:"env_vars"`
	Edges        []graph.Edge `json:"edges"`
}

// Risks returns the risk surface of the whole graph.
func (e *Engine) Risks() *RiskSurface {
	return e.risksAmong(nil)
}

// risksAmong restricts the surface to the given node IDs (nil = all nodes).
func (e *Engine) risksAmong(scope map[string]bool) *RiskSurface {
	inScope := func(id string) bool {
		return scope == nil || scope[id]
	}

	surface := &RiskSurface{}
	riskIDs := make(map[string]bool)

	for i := range e.g.Nodes {
		n := e.g.Nodes[i]
		if !inScope(n.ID) {
			continue
		}
		switch n.Type {
		case graph.NodeExternalAPI:
			surface.ExternalAPIs = append(surface.ExternalAPIs, n)
			riskIDs[n.ID] = true
		case graph.NodeEnvVar:
			surface.EnvVars = append(surface.EnvVars, n)
			riskIDs[n.ID] = true
		}
	}

	var connecting []*graph.Edge
	for i := range e.g.Edges {
		edge := &e.g.Edges[i]
		if riskIDs[edge.Source] || riskIDs[edge.Target] {
			connecting = append(connecting, edge)
		}
	}
	surface.Edges = sortedEdges(connecting)

	sort.Slice(surface.ExternalAPIs, func(i, j int) bool {
		return surface.ExternalAPIs[i].ID < surface.ExternalAPIs[j].ID
	})
	sort.Slice(surface.EnvVars, func(i, j int) bool {
		return surface.EnvVars[i].ID < surface.EnvVars[j].ID
	})
	return surface
}

// Overview is a condensed summary of a graph snapshot: counts by node type
// and ring, entry points, and the most connected nodes.
type Overview struct {
	Project     string                 `json:"project"`
	NodeCount   int                    `json:"node_count"`
	EdgeCount   int                    `json:"edge_count"`
	ByType      map[graph.NodeType]int `json:"by_type"`
	ByRing      map[graph.Ring]int     `json:"by_ring"`
	EntryPoints []graph.Node           `json:"entry_points"`
	TopHotspots []Hotspot              `json:"top_hotspots"`
}

// Overview summarizes the snapshot. The hotspot list is capped at ten.
func (e *Engine) Overview() *Overview {
	ov := &Overview{
		Project:   e.g.Metadata.Project,
		NodeCount: len(e.g.Nodes),
		EdgeCount: len(e.g.Edges),
		ByType:    make(map[graph.NodeType]int),
		ByRing:    make(map[graph.Ring]int),
	}
	for i := range e.g.Nodes {
		n := e.g.Nodes[i]
		ov.ByType[n.Type]++
		ov.ByRing[n.Ring]++
		if n.Type.IsEntryPoint() {
			ov.EntryPoints = append(ov.EntryPoints, n)
		}
	}
	sort.Slice(ov.EntryPoints, func(i, j int) bool {
		return ov.EntryPoints[i].ID < ov.EntryPoints[j].ID
	})
	ov.TopHotspots = e.Hotspots(10)
	return ov
}

// sortedEdges copies edge pointers into a deterministic value slice.
func sortedEdges(in []*graph.Edge) []graph.Edge {
	out := make([]graph.Edge, 0, len(in))
	for _, e := range in {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Type < out[j].Type
	})
	return out
}
