package orchestrator

import (
	"sort"
	"time"

	"github.com/codeloom/codeloom/agent"
	"github.com/codeloom/codeloom/plan"
)

// TaskOutcome is the terminal record of one task execution.
type TaskOutcome struct {
	TaskID   string          `json:"task_id"`
	Phase    string          `json:"phase"`
	Status   plan.TaskStatus `json:"status"`
	Attempts int             `json:"attempts"`

	// Files the builder reported modifying on the accepted attempt.
	Files []string `json:"files,omitempty"`

	// Evidence is the validator's last per-criterion judgement, kept
	// verbatim so a human can resume a blocked task manually.
	Evidence []agent.CriterionEvidence `json:"evidence,omitempty"`

	// Feedback is the validator's last failure feedback for blocked tasks.
	Feedback string `json:"feedback,omitempty"`
}

// BuildReport summarizes a full plan run.
type BuildReport struct {
	RunID    string    `json:"run_id"`
	PlanID   string    `json:"plan_id"`
	Project  string    `json:"project"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Completed []TaskOutcome `json:"completed"`
	Blocked   []TaskOutcome `json:"blocked"`

	// FilesModified is the union of files changed by COMPLETE tasks.
	FilesModified []string `json:"files_modified"`

	// Net graph delta across the run's incremental updates.
	NodesDelta int `json:"nodes_delta"`
	EdgesDelta int `json:"edges_delta"`
}

// Success reports whether every task completed.
func (r *BuildReport) Success() bool {
	return len(r.Blocked) == 0
}

// finish sorts the report's lists so output is stable regardless of task
// completion order.
func (r *BuildReport) finish(now time.Time) {
	r.Finished = now
	sort.Slice(r.Completed, func(i, j int) bool { return r.Completed[i].TaskID < r.Completed[j].TaskID })
	sort.Slice(r.Blocked, func(i, j int) bool { return r.Blocked[i].TaskID < r.Blocked[j].TaskID })
	sort.Strings(r.FilesModified)
}
