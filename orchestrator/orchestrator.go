// Package orchestrator drives a plan through the builder/validator loop:
// phases run strictly in order, tasks within a phase run concurrently, and
// the graph is updated between phases from the files completed tasks touched.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeloom/codeloom/agent"
	"github.com/codeloom/codeloom/graph"
	"github.com/codeloom/codeloom/plan"
)

// MaxAttempts bounds builder invocations per task, counting the first
// attempt. Exhausting it marks the task BLOCKED.
const MaxAttempts = 3

// Config wires the orchestrator's collaborators and policies.
type Config struct {
	// Store is the shared graph, mutated only at phase boundaries.
	Store *graph.Store

	// Builder and Validator drive each task. Required.
	Builder   agent.Builder
	Validator agent.Validator

	// Scanner performs incremental re-scans between phases. Optional; when
	// nil, phase boundaries skip the graph update.
	Scanner agent.Scanner

	// MaxConcurrent caps how many tasks of one phase run at once. Zero or
	// negative means no cap.
	MaxConcurrent int

	// ProjectRules are passed to the builder with every task.
	ProjectRules []string

	Logger  *slog.Logger
	Metrics *Metrics
}

// Orchestrator executes plans. Safe for one Run at a time.
type Orchestrator struct {
	config  Config
	logger  *slog.Logger
	metrics *Metrics

	// now is swapped out in tests.
	now func() time.Time
}

// New creates an orchestrator. Builder and Validator are required.
func New(config Config) (*Orchestrator, error) {
	if config.Builder == nil {
		return nil, fmt.Errorf("orchestrator requires a builder")
	}
	if config.Validator == nil {
		return nil, fmt.Errorf("orchestrator requires a validator")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Orchestrator{
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Run executes the plan to completion. The plan is validated first: a phase
// with overlapping task file scopes is rejected before any task executes. A
// blocked task never aborts its siblings or later phases; the report records
// it and execution continues.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan) (*BuildReport, error) {
	if err := plan.Validate(p); err != nil {
		return nil, err
	}

	report := &BuildReport{
		RunID:   uuid.New().String(),
		PlanID:  p.ID,
		Project: p.Project,
		Started: o.now().UTC(),
	}

	baseNodes, baseEdges := o.graphSize()

	o.logger.Info("plan run started",
		"run_id", report.RunID,
		"plan", p.ID,
		"phases", len(p.Phases),
		"tasks", p.TaskCount())

	for pi := range p.Phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		phase := &p.Phases[pi]
		phaseStart := o.now()

		outcomes := o.runPhase(ctx, phase)

		var completedFiles []string
		for _, outcome := range outcomes {
			switch outcome.Status {
			case plan.StatusComplete:
				report.Completed = append(report.Completed, outcome)
				completedFiles = append(completedFiles, outcome.Files...)
			case plan.StatusBlocked:
				report.Blocked = append(report.Blocked, outcome)
			}
		}
		report.FilesModified = mergeFiles(report.FilesModified, completedFiles)

		// Phase barrier: refresh the graph from completed work only, so the
		// next phase plans against reality. Blocked tasks' partial edits are
		// deliberately not reflected.
		if err := o.updateGraph(ctx, p.Project, completedFiles); err != nil {
			o.logger.Error("incremental graph update failed",
				"phase", phase.Name, "error", err)
		}

		o.metrics.PhaseDuration.Observe(o.now().Sub(phaseStart).Seconds())
		o.logger.Info("phase finished",
			"phase", phase.Name,
			"completed", len(completedFiles) > 0,
			"blocked", len(report.Blocked))
	}

	curNodes, curEdges := o.graphSize()
	report.NodesDelta = curNodes - baseNodes
	report.EdgesDelta = curEdges - baseEdges
	report.finish(o.now().UTC())

	o.logger.Info("plan run finished",
		"run_id", report.RunID,
		"completed", len(report.Completed),
		"blocked", len(report.Blocked),
		"nodes_delta", report.NodesDelta,
		"edges_delta", report.EdgesDelta)
	return report, nil
}

// runPhase executes every task of one phase concurrently and waits for all
// of them to reach a terminal state.
func (o *Orchestrator) runPhase(ctx context.Context, phase *plan.Phase) []TaskOutcome {
	outcomes := make([]TaskOutcome, len(phase.Tasks))

	var sem chan struct{}
	if o.config.MaxConcurrent > 0 {
		sem = make(chan struct{}, o.config.MaxConcurrent)
	}

	var wg sync.WaitGroup
	for i := range phase.Tasks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			outcomes[i] = o.runTask(ctx, phase.Name, &phase.Tasks[i])
		}(i)
	}
	wg.Wait()

	return outcomes
}

// updateGraph re-scans the files touched by completed tasks and folds the
// result into the store. Runs single-threaded at the phase boundary; in-flight
// tasks never mutate the graph.
func (o *Orchestrator) updateGraph(ctx context.Context, project string, files []string) error {
	if o.config.Scanner == nil || o.config.Store == nil || len(files) == 0 {
		return nil
	}

	files = mergeFiles(nil, files)
	result, err := o.config.Scanner.Scan(ctx, agent.ScanRequest{Project: project, Files: files})
	if err != nil {
		return fmt.Errorf("incremental scan: %w", err)
	}

	// Replace each file's prior contribution, then apply the fresh scan.
	for _, f := range files {
		if err := o.config.Store.RemoveFile(f); err != nil {
			return fmt.Errorf("remove %s from graph: %w", f, err)
		}
	}
	for _, n := range result.Nodes {
		if err := o.config.Store.UpsertNode(n); err != nil {
			return fmt.Errorf("upsert node %s: %w", n.ID, err)
		}
		o.metrics.GraphUpdateNodes.Inc()
	}
	for _, e := range result.Edges {
		if err := o.config.Store.UpsertEdge(e); err != nil {
			return fmt.Errorf("upsert edge %s -> %s: %w", e.Source, e.Target, err)
		}
		o.metrics.GraphUpdateEdges.Inc()
	}

	if doc, err := o.config.Store.Save(); err == nil {
		meta := doc.Metadata
		meta.GeneratedAt = o.now().UTC()
		if result.ScannerVersion != "" {
			meta.ScannerVersion = result.ScannerVersion
		}
		if err := o.config.Store.SetMetadata(meta); err != nil {
			return err
		}
	}

	o.logger.Info("graph updated incrementally",
		"files", len(files),
		"nodes", len(result.Nodes),
		"edges", len(result.Edges))
	return nil
}

// graphSize returns the current node and edge counts, or zeros without a
// loaded graph.
func (o *Orchestrator) graphSize() (int, int) {
	if o.config.Store == nil {
		return 0, 0
	}
	g, err := o.config.Store.Snapshot()
	if err != nil {
		return 0, 0
	}
	return len(g.Nodes), len(g.Edges)
}

// mergeFiles unions two file lists, deduplicated and sorted.
func mergeFiles(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
