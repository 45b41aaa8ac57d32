// Package plan defines the build plan consumed by the orchestrator: ordered
// phases of independently verifiable tasks, each naming its file scope,
// acceptance criteria, and the graph context it was planned against.
package plan

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	// StatusPending means the task has not started.
	StatusPending TaskStatus = "PENDING"

	// StatusInProgress means a builder attempt is underway or being retried.
	StatusInProgress TaskStatus = "IN_PROGRESS"

	// StatusComplete means the validator passed the task. Terminal.
	StatusComplete TaskStatus = "COMPLETE"

	// StatusBlocked means the task exhausted its attempts. Terminal.
	StatusBlocked TaskStatus = "BLOCKED"
)

// IsValid checks if the status is a known value.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusComplete, StatusBlocked:
		return true
	}
	return false
}

// IsTerminal reports whether the task can never change state again.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusBlocked
}

// CanTransitionTo checks if a status transition is allowed. Retries stay in
// IN_PROGRESS; the terminal states accept no further transitions.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	switch s {
	case StatusPending:
		return target == StatusInProgress
	case StatusInProgress:
		return target == StatusInProgress || target == StatusComplete || target == StatusBlocked
	default:
		return false
	}
}

// Task is one verifiable unit of work within a phase.
type Task struct {
	// ID identifies the task within its plan.
	ID string `json:"id"`

	// Description tells the builder what to do, in natural language.
	Description string `json:"description"`

	// Files is the task's target file scope. Entries may be glob patterns.
	Files []string `json:"files"`

	// AcceptanceCriteria are opaque verification goals handed to the
	// validator verbatim.
	AcceptanceCriteria []string `json:"acceptance_criteria"`

	// GraphContext is the query-engine excerpt the planner attached, giving
	// the builder the structural neighborhood of the change.
	GraphContext string `json:"graph_context,omitempty"`

	// Status is the lifecycle state.
	Status TaskStatus `json:"status"`

	// Attempts counts builder invocations so far.
	Attempts int `json:"attempts,omitempty"`

	// Feedback accumulates validator failure feedback across attempts.
	Feedback []string `json:"feedback,omitempty"`

	// BlockReason holds the validator's last failure evidence verbatim when
	// the task is BLOCKED, so a human can resume manually.
	BlockReason string `json:"block_reason,omitempty"`
}

// Transition moves the task to a new status, enforcing the lifecycle rules.
func (t *Task) Transition(target TaskStatus) error {
	if !target.IsValid() {
		return fmt.Errorf("unknown task status %q", target)
	}
	if !t.Status.CanTransitionTo(target) {
		return fmt.Errorf("task %s: invalid transition %s -> %s", t.ID, t.Status, target)
	}
	t.Status = target
	return nil
}

// Phase is an unordered set of tasks that may run concurrently. Phases form
// a hard barrier: the next phase starts only after every task here is
// terminal.
type Phase struct {
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

// Terminal reports whether every task in the phase reached a terminal state.
func (p *Phase) Terminal() bool {
	for i := range p.Tasks {
		if !p.Tasks[i].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// FileAction classifies what a plan does to a file.
type FileAction string

const (
	ActionCreate FileAction = "create"
	ActionModify FileAction = "modify"
	ActionDelete FileAction = "delete"
)

// FileInvolvement is one row of the plan's files-involved summary table.
type FileInvolvement struct {
	File   string     `json:"file"`
	Action FileAction `json:"action"`
	Risk   string     `json:"risk"`
	Phase  int        `json:"phase"`
}

// Plan is an ordered list of phases plus a summary of every file touched.
type Plan struct {
	// ID identifies the plan, assigned by the planner.
	ID string `json:"id"`

	// Project names the codebase the plan applies to.
	Project string `json:"project"`

	// Description summarizes the overall goal.
	Description string `json:"description"`

	// CreatedAt is when the planner produced the plan.
	CreatedAt time.Time `json:"created_at"`

	// Phases execute strictly in order.
	Phases []Phase `json:"phases"`

	// FilesInvolved is the summary table of every file the plan touches.
	FilesInvolved []FileInvolvement `json:"files_involved,omitempty"`
}

// TaskCount returns the total number of tasks across all phases.
func (p *Plan) TaskCount() int {
	count := 0
	for i := range p.Phases {
		count += len(p.Phases[i].Tasks)
	}
	return count
}

// Task finds a task by ID across phases, or nil.
func (p *Plan) Task(id string) *Task {
	for i := range p.Phases {
		for j := range p.Phases[i].Tasks {
			if p.Phases[i].Tasks[j].ID == id {
				return &p.Phases[i].Tasks[j]
			}
		}
	}
	return nil
}
