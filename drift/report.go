// Package drift compares two graph snapshots of the same project and reports
// structural changes. Informational diffs (what was added, removed, modified)
// are separated from rule findings, which carry a severity: FLAG findings are
// advisory, BLOCK findings fail the run.
package drift

import (
	"sort"
	"time"

	"github.com/codeloom/codeloom/graph"
)

// Severity classifies a drift finding.
type Severity string

const (
	// SeverityFlag marks an advisory finding. Flags never fail a run.
	SeverityFlag Severity = "FLAG"

	// SeverityBlock marks a hard-fail finding.
	SeverityBlock Severity = "BLOCK"
)

// Rule identifiers for drift findings.
const (
	RuleNewExternalAPICall   = "new_external_api_call"
	RuleWriteToReadOnly      = "write_to_readonly_collection"
	RuleNewEnvVar            = "new_env_var"
	RuleRingReclassification = "ring_reclassification"
	RuleOrphanedCode         = "orphaned_code"
	RuleNewCycle             = "new_circular_dependency"
)

// Finding is one rule hit: the rule that fired, its severity, the nodes and
// edges involved, a source location when one exists, and a human-readable
// rationale.
type Finding struct {
	Rule      string       `json:"rule"`
	Severity  Severity     `json:"severity"`
	Nodes     []string     `json:"nodes,omitempty"`
	Edges     []graph.Edge `json:"edges,omitempty"`
	File      string       `json:"file,omitempty"`
	Line      int          `json:"line,omitempty"`
	Rationale string       `json:"rationale"`
}

// FieldChange records one field differing between baseline and current.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// NodeChange is a shared node whose ring, type, or metadata changed.
type NodeChange struct {
	ID      string        `json:"id"`
	Changes []FieldChange `json:"changes"`
}

// EdgeChange is a shared relationship whose detail (context, file, line)
// changed. Detail changes are informational and never flagged.
type EdgeChange struct {
	Source  string         `json:"source"`
	Target  string         `json:"target"`
	Type    graph.EdgeType `json:"type"`
	Changes []FieldChange  `json:"changes"`
}

// Summary holds the diff counts.
type Summary struct {
	NodesAdded    int `json:"nodes_added"`
	NodesRemoved  int `json:"nodes_removed"`
	NodesModified int `json:"nodes_modified"`
	EdgesAdded    int `json:"edges_added"`
	EdgesRemoved  int `json:"edges_removed"`
	Flags         int `json:"flags"`
	Blocks        int `json:"blocks"`
}

// Report is the persisted outcome of one drift comparison.
type Report struct {
	Timestamp           time.Time `json:"timestamp"`
	BaselineGeneratedAt time.Time `json:"baseline_generated_at"`
	CurrentGeneratedAt  time.Time `json:"current_generated_at"`
	ScannerVersion      string    `json:"scanner_version"`

	Summary Summary `json:"summary"`

	Flags  []Finding `json:"flags"`
	Blocks []Finding `json:"blocks"`

	NodesAdded    []graph.Node `json:"nodes_added"`
	NodesRemoved  []graph.Node `json:"nodes_removed"`
	NodesModified []NodeChange `json:"nodes_modified"`
	EdgesAdded    []graph.Edge `json:"edges_added"`
	EdgesRemoved  []graph.Edge `json:"edges_removed"`
	EdgesModified []EdgeChange `json:"edges_modified"`
}

// HasBlocks reports whether the run must fail. Flags never affect status.
func (r *Report) HasBlocks() bool {
	return len(r.Blocks) > 0
}

// sortReport puts every list in a canonical order so identical inputs always
// produce an identical report.
func sortReport(r *Report) {
	sortNodes := func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	}
	sortNodes(r.NodesAdded)
	sortNodes(r.NodesRemoved)

	sort.Slice(r.NodesModified, func(i, j int) bool {
		return r.NodesModified[i].ID < r.NodesModified[j].ID
	})

	sortEdgeList(r.EdgesAdded)
	sortEdgeList(r.EdgesRemoved)
	sort.Slice(r.EdgesModified, func(i, j int) bool {
		a, b := r.EdgesModified[i], r.EdgesModified[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Type < b.Type
	})

	sortFindings(r.Flags)
	sortFindings(r.Blocks)
}

func sortEdgeList(edges []graph.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Type < edges[j].Type
	})
}

func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Rule != findings[j].Rule {
			return findings[i].Rule < findings[j].Rule
		}
		return findingSubject(findings[i]) < findingSubject(findings[j])
	})
}

// findingSubject derives a stable comparison key from the involved ids.
func findingSubject(f Finding) string {
	if len(f.Nodes) > 0 {
		return f.Nodes[0]
	}
	if len(f.Edges) > 0 {
		e := f.Edges[0]
		return e.Source + "|" + e.Target + "|" + string(e.Type)
	}
	return f.Rationale
}
