package drift

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/codeloom/codeloom/graph"
)

// Detector compares a baseline snapshot against a current one. Both graphs
// are borrowed read-only; a detector is stateless and safe for reuse.
type Detector struct {
	logger *slog.Logger

	// now is swapped out in tests for deterministic report timestamps.
	now func() time.Time
}

// NewDetector creates a detector. A nil logger disables logging.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Detector{logger: logger, now: time.Now}
}

// Compare diffs current against baseline and evaluates the drift rules. The
// output is fully sorted: identical inputs produce an identical report on
// every run.
func (d *Detector) Compare(baseline, current *graph.Graph) *Report {
	report := &Report{
		Timestamp:           d.now().UTC(),
		BaselineGeneratedAt: baseline.Metadata.GeneratedAt,
		CurrentGeneratedAt:  current.Metadata.GeneratedAt,
		ScannerVersion:      current.Metadata.ScannerVersion,
	}

	d.diffNodes(baseline, current, report)
	d.diffEdges(baseline, current, report)
	d.evaluateRules(baseline, current, report)
	d.detectNewCycles(baseline, current, report)

	report.Summary = Summary{
		NodesAdded:    len(report.NodesAdded),
		NodesRemoved:  len(report.NodesRemoved),
		NodesModified: len(report.NodesModified),
		EdgesAdded:    len(report.EdgesAdded),
		EdgesRemoved:  len(report.EdgesRemoved),
		Flags:         len(report.Flags),
		Blocks:        len(report.Blocks),
	}
	sortReport(report)

	d.logger.Info("drift comparison complete",
		"nodes_added", report.Summary.NodesAdded,
		"nodes_removed", report.Summary.NodesRemoved,
		"edges_added", report.Summary.EdgesAdded,
		"edges_removed", report.Summary.EdgesRemoved,
		"flags", report.Summary.Flags,
		"blocks", report.Summary.Blocks)
	return report
}

// diffNodes partitions node ids into added, removed, and shared; shared nodes
// are compared on ring, type, and metadata.
func (d *Detector) diffNodes(baseline, current *graph.Graph, report *Report) {
	for i := range current.Nodes {
		n := current.Nodes[i]
		old := baseline.Node(n.ID)
		if old == nil {
			report.NodesAdded = append(report.NodesAdded, n)
			continue
		}
		if change := compareNode(*old, n); change != nil {
			report.NodesModified = append(report.NodesModified, *change)
		}
	}
	for i := range baseline.Nodes {
		n := baseline.Nodes[i]
		if !current.HasNode(n.ID) {
			report.NodesRemoved = append(report.NodesRemoved, n)
		}
	}
}

// compareNode returns the field-level changes between two versions of a node,
// or nil when ring, type, and metadata all match.
func compareNode(old, cur graph.Node) *NodeChange {
	var changes []FieldChange
	if old.Ring != cur.Ring {
		changes = append(changes, FieldChange{
			Field: "ring",
			Old:   fmt.Sprintf("%d", old.Ring),
			New:   fmt.Sprintf("%d", cur.Ring),
		})
	}
	if old.Type != cur.Type {
		changes = append(changes, FieldChange{
			Field: "type",
			Old:   string(old.Type),
			New:   string(cur.Type),
		})
	}

	keys := make(map[string]bool)
	for k := range old.Metadata {
		keys[k] = true
	}
	for k := range cur.Metadata {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		if old.Metadata[k] != cur.Metadata[k] {
			changes = append(changes, FieldChange{
				Field: "metadata." + k,
				Old:   old.Metadata[k],
				New:   cur.Metadata[k],
			})
		}
	}

	if len(changes) == 0 {
		return nil
	}
	return &NodeChange{ID: cur.ID, Changes: changes}
}

// diffEdges partitions edges by their (source, target, type) identity. Shared
// relationships with changed detail are recorded as modified but never
// flagged.
func (d *Detector) diffEdges(baseline, current *graph.Graph, report *Report) {
	baseEdges := make(map[graph.EdgeKey]graph.Edge, len(baseline.Edges))
	for _, e := range baseline.Edges {
		baseEdges[e.Key()] = e
	}
	curEdges := make(map[graph.EdgeKey]graph.Edge, len(current.Edges))
	for _, e := range current.Edges {
		curEdges[e.Key()] = e
	}

	for _, e := range current.Edges {
		old, ok := baseEdges[e.Key()]
		if !ok {
			report.EdgesAdded = append(report.EdgesAdded, e)
			continue
		}
		if change := compareEdgeDetail(old, e); change != nil {
			report.EdgesModified = append(report.EdgesModified, *change)
		}
	}
	for _, e := range baseline.Edges {
		if _, ok := curEdges[e.Key()]; !ok {
			report.EdgesRemoved = append(report.EdgesRemoved, e)
		}
	}
}

func compareEdgeDetail(old, cur graph.Edge) *EdgeChange {
	var changes []FieldChange
	if old.Context != cur.Context {
		changes = append(changes, FieldChange{Field: "context", Old: old.Context, New: cur.Context})
	}
	if old.File != cur.File {
		changes = append(changes, FieldChange{Field: "file", Old: old.File, New: cur.File})
	}
	if old.Line != cur.Line {
		changes = append(changes, FieldChange{
			Field: "line",
			Old:   fmt.Sprintf("%d", old.Line),
			New:   fmt.Sprintf("%d", cur.Line),
		})
	}
	if len(changes) == 0 {
		return nil
	}
	return &EdgeChange{Source: cur.Source, Target: cur.Target, Type: cur.Type, Changes: changes}
}

// evaluateRules runs the advisory rule set over the computed diffs.
func (d *Detector) evaluateRules(baseline, current *graph.Graph, report *Report) {
	for _, e := range report.EdgesAdded {
		switch e.Type {
		case graph.EdgeAPICall:
			report.Flags = append(report.Flags, Finding{
				Rule:      RuleNewExternalAPICall,
				Severity:  SeverityFlag,
				Edges:     []graph.Edge{e},
				File:      e.File,
				Line:      e.Line,
				Rationale: fmt.Sprintf("%s now calls external API %s", e.Source, e.Target),
			})

		case graph.EdgeDBWrite:
			if wasReadOnly(baseline, e.Target) {
				report.Flags = append(report.Flags, Finding{
					Rule:     RuleWriteToReadOnly,
					Severity: SeverityFlag,
					Edges:    []graph.Edge{e},
					File:     e.File,
					Line:     e.Line,
					Rationale: fmt.Sprintf("%s writes to %s, which was read-only in the baseline",
						e.Source, e.Target),
				})
			}
		}
	}

	for _, n := range report.NodesAdded {
		if n.Type == graph.NodeEnvVar {
			report.Flags = append(report.Flags, Finding{
				Rule:      RuleNewEnvVar,
				Severity:  SeverityFlag,
				Nodes:     []string{n.ID},
				File:      n.File,
				Line:      n.Line,
				Rationale: fmt.Sprintf("new environment variable dependency %s", n.Label),
			})
		}
	}

	for _, change := range report.NodesModified {
		for _, fc := range change.Changes {
			if fc.Field != "ring" {
				continue
			}
			n := current.Node(change.ID)
			finding := Finding{
				Rule:      RuleRingReclassification,
				Severity:  SeverityFlag,
				Nodes:     []string{change.ID},
				Rationale: fmt.Sprintf("%s moved from ring %s to ring %s", change.ID, fc.Old, fc.New),
			}
			if n != nil {
				finding.File = n.File
				finding.Line = n.Line
			}
			report.Flags = append(report.Flags, finding)
		}
	}

	// Orphaned code: a node that had callers in the baseline and has none
	// now. Nodes orphaned in both snapshots are not re-flagged.
	for i := range current.Nodes {
		n := current.Nodes[i]
		if n.Type.IsEntryPoint() {
			continue
		}
		if !baseline.HasNode(n.ID) {
			continue
		}
		if len(baseline.Incoming(n.ID)) > 0 && len(current.Incoming(n.ID)) == 0 {
			report.Flags = append(report.Flags, Finding{
				Rule:      RuleOrphanedCode,
				Severity:  SeverityFlag,
				Nodes:     []string{n.ID},
				File:      n.File,
				Line:      n.Line,
				Rationale: fmt.Sprintf("%s lost all callers since the baseline", n.ID),
			})
		}
	}
}

// wasReadOnly reports whether the collection had at least one db_read edge
// and no db_write edges in the baseline.
func wasReadOnly(baseline *graph.Graph, collectionID string) bool {
	reads, writes := 0, 0
	for _, e := range baseline.Incoming(collectionID) {
		switch e.Type {
		case graph.EdgeDBRead:
			reads++
		case graph.EdgeDBWrite:
			writes++
		}
	}
	return reads >= 1 && writes == 0
}
