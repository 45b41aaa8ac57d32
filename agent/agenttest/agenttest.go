// Package agenttest provides scripted in-process collaborators for tests.
// Each fake records its invocations and replays a scripted sequence of
// results, so orchestration logic can be exercised without a transport.
package agenttest

import (
	"context"
	"errors"
	"sync"

	"github.com/codeloom/codeloom/agent"
	"github.com/codeloom/codeloom/plan"
)

// ErrScriptExhausted is returned when a fake runs out of scripted results.
var ErrScriptExhausted = errors.New("agenttest: script exhausted")

// Builder replays scripted build results in order. When the script runs dry
// it keeps returning the last result, so simple tests can script one success.
type Builder struct {
	mu       sync.Mutex
	script   []*agent.BuildResult
	err      error
	requests []agent.BuildRequest
}

// NewBuilder creates a builder that replays the given results.
func NewBuilder(results ...*agent.BuildResult) *Builder {
	return &Builder{script: results}
}

// Fail makes every invocation return err.
func (b *Builder) Fail(err error) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
	return b
}

// Build implements agent.Builder.
func (b *Builder) Build(ctx context.Context, req agent.BuildRequest) (*agent.BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if len(b.script) == 0 {
		return nil, ErrScriptExhausted
	}

	result := b.script[0]
	if len(b.script) > 1 {
		b.script = b.script[1:]
	}
	return result, nil
}

// Calls returns how many times the builder was invoked.
func (b *Builder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Requests returns a copy of every request received, in order.
func (b *Builder) Requests() []agent.BuildRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]agent.BuildRequest(nil), b.requests...)
}

// Validator replays scripted verdicts in order, per task. Tasks not covered
// by a per-task script fall back to the default script.
type Validator struct {
	mu       sync.Mutex
	script   []*agent.ValidateResult
	perTask  map[string][]*agent.ValidateResult
	err      error
	requests []agent.ValidateRequest
}

// NewValidator creates a validator replaying the given results for every task.
func NewValidator(results ...*agent.ValidateResult) *Validator {
	return &Validator{script: results, perTask: make(map[string][]*agent.ValidateResult)}
}

// ScriptTask scripts results for one task id, overriding the default script.
func (v *Validator) ScriptTask(taskID string, results ...*agent.ValidateResult) *Validator {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.perTask[taskID] = results
	return v
}

// Fail makes every invocation return err.
func (v *Validator) Fail(err error) *Validator {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
	return v
}

// Validate implements agent.Validator.
func (v *Validator) Validate(ctx context.Context, req agent.ValidateRequest) (*agent.ValidateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.requests = append(v.requests, req)
	if v.err != nil {
		return nil, v.err
	}

	if script, ok := v.perTask[req.TaskID]; ok {
		if len(script) == 0 {
			return nil, ErrScriptExhausted
		}
		result := script[0]
		if len(script) > 1 {
			v.perTask[req.TaskID] = script[1:]
		}
		return result, nil
	}

	if len(v.script) == 0 {
		return nil, ErrScriptExhausted
	}
	result := v.script[0]
	if len(v.script) > 1 {
		v.script = v.script[1:]
	}
	return result, nil
}

// Calls returns how many times the validator was invoked.
func (v *Validator) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.requests)
}

// Scanner returns a fixed scan result and records the requested file sets.
type Scanner struct {
	mu       sync.Mutex
	result   *agent.ScanResult
	err      error
	requests []agent.ScanRequest
}

// NewScanner creates a scanner returning result on every call.
func NewScanner(result *agent.ScanResult) *Scanner {
	return &Scanner{result: result}
}

// Fail makes every invocation return err.
func (s *Scanner) Fail(err error) *Scanner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Scan implements agent.Scanner.
func (s *Scanner) Scan(ctx context.Context, req agent.ScanRequest) (*agent.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// Requests returns a copy of every scan request received, in order.
func (s *Scanner) Requests() []agent.ScanRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.ScanRequest(nil), s.requests...)
}

// Planner returns a fixed plan.
type Planner struct {
	mu       sync.Mutex
	plan     *plan.Plan
	err      error
	requests []agent.PlanRequest
}

// NewPlanner creates a planner returning p on every call.
func NewPlanner(p *plan.Plan) *Planner {
	return &Planner{plan: p}
}

// Plan implements agent.Planner.
func (pl *Planner) Plan(ctx context.Context, req agent.PlanRequest) (*plan.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.requests = append(pl.requests, req)
	if pl.err != nil {
		return nil, pl.err
	}
	return pl.plan, nil
}

// Pass builds a PASS result for a task.
func Pass(taskID string) *agent.ValidateResult {
	return &agent.ValidateResult{TaskID: taskID, Verdict: agent.VerdictPass}
}

// FailVerdict builds a FAIL result carrying feedback for the next attempt.
func FailVerdict(taskID, feedback string) *agent.ValidateResult {
	return &agent.ValidateResult{
		TaskID:   taskID,
		Verdict:  agent.VerdictFail,
		Feedback: feedback,
		Evidence: []agent.CriterionEvidence{
			{Criterion: "acceptance", Met: false, Evidence: feedback},
		},
	}
}

// Built builds a BuildResult claiming the given files were modified.
func Built(taskID string, files ...string) *agent.BuildResult {
	result := &agent.BuildResult{TaskID: taskID}
	for _, f := range files {
		result.Changes = append(result.Changes, agent.Change{File: f, Action: "modify", Summary: "updated " + f})
	}
	return result
}
