package query

import (
	"fmt"
	"sort"

	"github.com/codeloom/codeloom/graph"
)

// traceEdgeTypes are the execution-flow edges a trace follows. Structural
// edges (imports, renders, fetches) and inbound webhook edges describe
// wiring, not runtime flow, and are skipped.
var traceEdgeTypes = map[graph.EdgeType]bool{
	graph.EdgeEndpointHandler: true,
	graph.EdgeCalls:           true,
	graph.EdgeEnqueues:        true,
	graph.EdgeDBRead:          true,
	graph.EdgeDBWrite:         true,
	graph.EdgeAPICall:         true,
	graph.EdgeCacheRead:       true,
	graph.EdgeCacheWrite:      true,
	graph.EdgeEventPublish:    true,
}

// TraceStep is one hop in an execution trace.
type TraceStep struct {
	// Depth is the distance from the root, starting at 1.
	Depth int `json:"depth"`

	// Edge is the relationship that was followed.
	Edge graph.Edge `json:"edge"`

	// Node is the edge target.
	Node graph.Node `json:"node"`

	// Cycle is true when the edge re-enters a node on the chain leading to
	// it, i.e. the flow genuinely loops. Re-encountering a node reached by
	// another branch (a diamond) records the step without the flag; either
	// way the branch stops here and the target is not expanded again.
	Cycle bool `json:"cycle,omitempty"`
}

// Trace is the execution chain reachable from a single entry point.
type Trace struct {
	Root     graph.Node  `json:"root"`
	Steps    []TraceStep `json:"steps"`
	HasCycle bool        `json:"has_cycle,omitempty"`
}

// Trace walks execution-flow edges breadth-first from the given node and
// returns the full downstream chain. Each node is expanded at most once, so
// traces terminate on cyclic graphs. A re-encountered node records a step and
// stops that branch; the step is cycle-flagged only when the target sits on
// the chain that led here (a back edge), not when two branches merely
// converge. Expansion order at each node is sorted by (type, target) for
// deterministic output.
func (e *Engine) Trace(rootID string) (*Trace, error) {
	root := e.g.Node(rootID)
	if root == nil {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, rootID)
	}

	tr := &Trace{Root: *root}

	type frame struct {
		id    string
		depth int
	}
	visited := map[string]bool{rootID: true}
	parent := map[string]string{}
	queue := []frame{{id: rootID, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		edges := followable(e.g.Outgoing(cur.id))
		for _, edge := range edges {
			target := e.g.Node(edge.Target)
			if target == nil {
				continue
			}

			step := TraceStep{Depth: cur.depth + 1, Edge: edge, Node: *target}
			if visited[edge.Target] {
				if backEdge(parent, cur.id, edge.Target) {
					step.Cycle = true
					tr.HasCycle = true
				}
				tr.Steps = append(tr.Steps, step)
				continue
			}

			visited[edge.Target] = true
			parent[edge.Target] = cur.id
			tr.Steps = append(tr.Steps, step)
			queue = append(queue, frame{id: edge.Target, depth: cur.depth + 1})
		}
	}

	return tr, nil
}

// backEdge reports whether target is on the chain from the root to from in
// the traversal tree. Following such an edge would re-enter the current
// execution path, which is a genuine loop; anything else is two branches
// converging on a shared node. A self-loop (from == target) counts.
func backEdge(parent map[string]string, from, target string) bool {
	for id := from; ; {
		if id == target {
			return true
		}
		p, ok := parent[id]
		if !ok {
			return false
		}
		id = p
	}
}

// followable filters to execution-flow edges and sorts them by (type, target).
func followable(in []*graph.Edge) []graph.Edge {
	var out []graph.Edge
	for _, e := range in {
		if traceEdgeTypes[e.Type] {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Target < out[j].Target
	})
	return out
}
