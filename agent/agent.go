// Package agent defines the contracts for the external AI collaborators:
// scanner, planner, builder, and validator. They are opaque, non-deterministic
// providers; the core depends only on these request/response shapes, never on
// how a provider produces them.
package agent

import (
	"context"

	"github.com/codeloom/codeloom/graph"
	"github.com/codeloom/codeloom/plan"
)

// Verdict is the validator's judgement of a builder attempt.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// IsValid checks if the verdict is a known value.
func (v Verdict) IsValid() bool {
	return v == VerdictPass || v == VerdictFail
}

// Change describes one file edit the builder made.
type Change struct {
	File    string `json:"file"`
	Action  string `json:"action"`
	Summary string `json:"summary"`
}

// BuildRequest is the context bundle handed to the builder.
type BuildRequest struct {
	TaskID             string   `json:"task_id"`
	Description        string   `json:"description"`
	Files              []string `json:"files"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	GraphContext       string   `json:"graph_context,omitempty"`
	ProjectRules       []string `json:"project_rules,omitempty"`

	// Attempt is 1-based. Retries carry the validator feedback from every
	// prior attempt so the builder can correct course.
	Attempt  int      `json:"attempt"`
	Feedback []string `json:"feedback,omitempty"`
}

// BuildResult is the builder's structured output.
type BuildResult struct {
	TaskID  string   `json:"task_id"`
	Changes []Change `json:"changes"`
	Issues  []string `json:"issues,omitempty"`
}

// ModifiedFiles returns the distinct files the builder reports changing, in
// input order.
func (r *BuildResult) ModifiedFiles() []string {
	seen := make(map[string]bool, len(r.Changes))
	var files []string
	for _, c := range r.Changes {
		if c.File == "" || seen[c.File] {
			continue
		}
		seen[c.File] = true
		files = append(files, c.File)
	}
	return files
}

// ValidateRequest asks the validator to judge a builder attempt against the
// task's acceptance criteria.
type ValidateRequest struct {
	TaskID             string   `json:"task_id"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Changes            []Change `json:"changes"`
	GraphContext       string   `json:"graph_context,omitempty"`
	ModifiedFiles      []string `json:"modified_files,omitempty"`
}

// CriterionEvidence is the validator's judgement of one acceptance criterion.
type CriterionEvidence struct {
	Criterion string `json:"criterion"`
	Met       bool   `json:"met"`
	Evidence  string `json:"evidence"`
}

// ValidateResult is the validator's structured output. On FAIL, Feedback is
// passed back to the builder on the next attempt.
type ValidateResult struct {
	TaskID   string              `json:"task_id"`
	Verdict  Verdict             `json:"verdict"`
	Evidence []CriterionEvidence `json:"evidence,omitempty"`
	Feedback string              `json:"feedback,omitempty"`
}

// ScanRequest asks the scanner to (re-)analyze files. An empty Files slice
// means a full project scan.
type ScanRequest struct {
	Project string   `json:"project"`
	Files   []string `json:"files,omitempty"`
}

// ScanResult carries the node and edge additions the scanner extracted.
type ScanResult struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`

	FilesAnalyzed   int     `json:"files_analyzed"`
	DurationSeconds float64 `json:"duration_seconds"`
	ScannerVersion  string  `json:"scanner_version,omitempty"`
}

// PlanRequest asks the planner for a build plan toward a goal.
type PlanRequest struct {
	Project string `json:"project"`
	Goal    string `json:"goal"`

	// Synthesis is the query-engine report for the feature scope, serialized
	// for the planner's consumption.
	Synthesis any `json:"synthesis,omitempty"`

	ProjectRules []string `json:"project_rules,omitempty"`
}

// Builder turns a task description into file changes.
type Builder interface {
	Build(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

// Validator judges a builder attempt against acceptance criteria.
type Validator interface {
	Validate(ctx context.Context, req ValidateRequest) (*ValidateResult, error)
}

// Scanner extracts graph nodes and edges from source files.
type Scanner interface {
	Scan(ctx context.Context, req ScanRequest) (*ScanResult, error)
}

// Planner produces a phased build plan.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*plan.Plan, error)
}

// Provider bundles all four collaborator roles behind one transport.
type Provider interface {
	Builder
	Validator
	Scanner
	Planner

	// Name identifies the provider implementation.
	Name() string

	// Close releases the provider's transport resources.
	Close() error
}
