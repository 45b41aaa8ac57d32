package drift

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeloom/codeloom/graph"
)

// cycleEdgeTypes restricts cycle detection to structural dependency edges.
// Data-plane edges (db_read, event_publish, ...) routinely form benign loops
// and are not dependencies in the import/call sense.
var cycleEdgeTypes = map[graph.EdgeType]bool{
	graph.EdgeImports: true,
	graph.EdgeCalls:   true,
}

// detectNewCycles finds circular dependencies present in current but absent
// from baseline. Cycle identity is the sorted set of participating node ids,
// so edge detail changes within an existing cycle do not re-trigger it.
func (d *Detector) detectNewCycles(baseline, current *graph.Graph, report *Report) {
	baseCycles := findCycles(baseline)
	curCycles := findCycles(current)

	keys := make([]string, 0, len(curCycles))
	for key := range curCycles {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, existed := baseCycles[key]; existed {
			continue
		}
		members := curCycles[key]
		report.Blocks = append(report.Blocks, Finding{
			Rule:      RuleNewCycle,
			Severity:  SeverityBlock,
			Nodes:     members,
			Edges:     cycleEdges(current, members),
			Rationale: fmt.Sprintf("new circular dependency: %s", strings.Join(members, " -> ")),
		})
	}
}

// findCycles runs Tarjan's strongly-connected-components algorithm on the
// imports/calls subgraph. The result maps each cycle's identity key to its
// sorted member ids. Single-node components only count when the node depends
// on itself.
func findCycles(g *graph.Graph) map[string][]string {
	ids := make([]string, 0, len(g.Nodes))
	for i := range g.Nodes {
		ids = append(ids, g.Nodes[i].ID)
	}
	sort.Strings(ids)

	adj := make(map[string][]string, len(ids))
	selfLoop := make(map[string]bool)
	for i := range g.Edges {
		e := &g.Edges[i]
		if !cycleEdgeTypes[e.Type] {
			continue
		}
		if e.Source == e.Target {
			selfLoop[e.Source] = true
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	for _, targets := range adj {
		sort.Strings(targets)
	}

	t := &tarjan{
		adj:     adj,
		index:   make(map[string]int, len(ids)),
		lowlink: make(map[string]int, len(ids)),
		onStack: make(map[string]bool, len(ids)),
	}
	for _, id := range ids {
		if _, seen := t.index[id]; !seen {
			t.strongConnect(id)
		}
	}

	cycles := make(map[string][]string)
	for _, scc := range t.components {
		if len(scc) == 1 && !selfLoop[scc[0]] {
			continue
		}
		sort.Strings(scc)
		cycles[strings.Join(scc, "|")] = scc
	}
	return cycles
}

// tarjan holds the traversal state for one SCC computation.
type tarjan struct {
	adj     map[string][]string
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	counter int

	components [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}
	var scc []string
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	t.components = append(t.components, scc)
}

// cycleEdges collects the imports/calls edges connecting cycle members, so a
// finding names the exact relationships forming the loop.
func cycleEdges(g *graph.Graph, members []string) []graph.Edge {
	inCycle := make(map[string]bool, len(members))
	for _, id := range members {
		inCycle[id] = true
	}

	var edges []graph.Edge
	for i := range g.Edges {
		e := g.Edges[i]
		if cycleEdgeTypes[e.Type] && inCycle[e.Source] && inCycle[e.Target] {
			edges = append(edges, e)
		}
	}
	sortEdgeList(edges)
	return edges
}
