package query

import (
	"sort"
	"strings"

	"github.com/codeloom/codeloom/graph"
)

// Synthesis is the reconciled view of one feature area: the matching nodes,
// the execution traces of its entry points, the contracts of every collection
// it touches, and its risk surface.
type Synthesis struct {
	Scope     string       `json:"scope"`
	Nodes     []graph.Node `json:"nodes"`
	Traces    []*Trace     `json:"traces"`
	Contracts []*Contract  `json:"contracts"`
	Risks     *RiskSurface `json:"risks"`
	Dead      []graph.Node `json:"dead,omitempty"`
}

// Reconcile assembles the synthesis for a feature scope. A node is in scope
// when the scope string appears, case-insensitively, in its ID, label, or
// file path. The aggregation is built from the individual queries so its
// parts always agree with them.
func (e *Engine) Reconcile(scope string) *Synthesis {
	needle := strings.ToLower(scope)
	syn := &Synthesis{Scope: scope}

	inScope := make(map[string]bool)
	for i := range e.g.Nodes {
		n := e.g.Nodes[i]
		if matchesScope(n, needle) {
			syn.Nodes = append(syn.Nodes, n)
			inScope[n.ID] = true
		}
	}
	sort.Slice(syn.Nodes, func(i, j int) bool { return syn.Nodes[i].ID < syn.Nodes[j].ID })

	// Trace every in-scope entry point.
	for _, n := range syn.Nodes {
		if !n.Type.IsEntryPoint() {
			continue
		}
		if tr, err := e.Trace(n.ID); err == nil {
			syn.Traces = append(syn.Traces, tr)
		}
	}

	// Contracts for every collection in scope, plus collections an in-scope
	// caller reads or writes.
	collections := make(map[string]bool)
	for _, n := range syn.Nodes {
		if n.Type == graph.NodeCollection {
			collections[n.ID] = true
		}
	}
	for i := range e.g.Edges {
		edge := &e.g.Edges[i]
		if edge.Type != graph.EdgeDBRead && edge.Type != graph.EdgeDBWrite {
			continue
		}
		if inScope[edge.Source] {
			collections[edge.Target] = true
		}
	}
	ids := make([]string, 0, len(collections))
	for id := range collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if c, err := e.Contract(id); err == nil {
			syn.Contracts = append(syn.Contracts, c)
		}
	}

	syn.Risks = e.risksAmong(inScope)

	for _, n := range e.Dead() {
		if inScope[n.ID] {
			syn.Dead = append(syn.Dead, n)
		}
	}

	return syn
}

// matchesScope reports whether a node belongs to the feature scope.
func matchesScope(n graph.Node, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(n.ID), needle) ||
		strings.Contains(strings.ToLower(n.Label), needle) ||
		strings.Contains(strings.ToLower(n.File), needle)
}
