package plan

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ConflictError reports two tasks in the same phase with overlapping file
// scopes. Overlap invalidates the intra-phase parallelism assumption and is
// fatal at plan-acceptance time, never silently resolved.
type ConflictError struct {
	Phase string
	File  string
	Tasks []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("phase %q: tasks %s declare overlapping file scope %q",
		e.Phase, strings.Join(e.Tasks, ", "), e.File)
}

// Normalize fills in the defaults a plan producer may omit: tasks without a
// status start PENDING.
func Normalize(p *Plan) {
	for pi := range p.Phases {
		for ti := range p.Phases[pi].Tasks {
			if p.Phases[pi].Tasks[ti].Status == "" {
				p.Phases[pi].Tasks[ti].Status = StatusPending
			}
		}
	}
}

// Validate checks a plan's structural soundness: every task has an id, a
// description, at least one target file and one acceptance criterion, a valid
// status, ids are unique plan-wide, and no two tasks in the same phase claim
// overlapping files. The first problem found is returned.
func Validate(p *Plan) error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan %s has no phases", p.ID)
	}

	seen := make(map[string]bool)
	for pi := range p.Phases {
		phase := &p.Phases[pi]
		if len(phase.Tasks) == 0 {
			return fmt.Errorf("phase %q has no tasks", phase.Name)
		}
		for ti := range phase.Tasks {
			task := &phase.Tasks[ti]
			if task.ID == "" {
				return fmt.Errorf("phase %q: task %d has no id", phase.Name, ti)
			}
			if seen[task.ID] {
				return fmt.Errorf("duplicate task id %s", task.ID)
			}
			seen[task.ID] = true

			if task.Description == "" {
				return fmt.Errorf("task %s has no description", task.ID)
			}
			if len(task.Files) == 0 {
				return fmt.Errorf("task %s has no target files", task.ID)
			}
			if len(task.AcceptanceCriteria) == 0 {
				return fmt.Errorf("task %s has no acceptance criteria", task.ID)
			}
			if !task.Status.IsValid() {
				return fmt.Errorf("task %s has unknown status %q", task.ID, task.Status)
			}
		}

		if err := checkFileConflicts(phase); err != nil {
			return err
		}
	}
	return nil
}

// checkFileConflicts rejects a phase where two tasks claim overlapping file
// scopes. Scopes are glob patterns, so overlap is checked by matching each
// pattern against the other.
func checkFileConflicts(phase *Phase) error {
	for i := range phase.Tasks {
		for j := i + 1; j < len(phase.Tasks); j++ {
			a, b := &phase.Tasks[i], &phase.Tasks[j]
			if file := scopesOverlap(a.Files, b.Files); file != "" {
				return &ConflictError{
					Phase: phase.Name,
					File:  file,
					Tasks: []string{a.ID, b.ID},
				}
			}
		}
	}
	return nil
}

// scopesOverlap returns the first file claimed by both scopes, or "".
func scopesOverlap(a, b []string) string {
	for _, pa := range a {
		for _, pb := range b {
			if patternsOverlap(pa, pb) {
				return pb
			}
		}
	}
	return ""
}

// patternsOverlap reports whether two file patterns can claim the same path.
// Matching each pattern against the other covers the literal-vs-glob cases;
// an invalid pattern is treated as a literal path.
func patternsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	if ok, err := doublestar.Match(a, b); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match(b, a); err == nil && ok {
		return true
	}
	return false
}
