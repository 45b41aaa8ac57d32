package orchestrator

import (
	"context"

	"github.com/codeloom/codeloom/agent"
	"github.com/codeloom/codeloom/plan"
)

// runTask drives one task through the builder/validator loop until it reaches
// a terminal state. A task gets at most MaxAttempts builder invocations; each
// retry carries the accumulated validator feedback.
func (o *Orchestrator) runTask(ctx context.Context, phaseName string, task *plan.Task) TaskOutcome {
	outcome := TaskOutcome{TaskID: task.ID, Phase: phaseName}

	if err := task.Transition(plan.StatusInProgress); err != nil {
		// Already terminal, e.g. a resumed plan. Report it as-is.
		outcome.Status = task.Status
		outcome.Attempts = task.Attempts
		return outcome
	}

	logger := o.logger.With("task", task.ID, "phase", phaseName)

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		task.Attempts = attempt
		outcome.Attempts = attempt

		if err := ctx.Err(); err != nil {
			o.block(task, &outcome, "run cancelled: "+err.Error())
			return outcome
		}

		o.metrics.BuilderAttempts.Inc()
		buildResult, err := o.config.Builder.Build(ctx, agent.BuildRequest{
			TaskID:             task.ID,
			Description:        task.Description,
			Files:              task.Files,
			AcceptanceCriteria: task.AcceptanceCriteria,
			GraphContext:       task.GraphContext,
			ProjectRules:       o.config.ProjectRules,
			Attempt:            attempt,
			Feedback:           task.Feedback,
		})
		if err != nil {
			logger.Warn("builder attempt failed", "attempt", attempt, "error", err)
			task.Feedback = append(task.Feedback, "builder error: "+err.Error())
			if attempt == MaxAttempts {
				o.block(task, &outcome, "builder error: "+err.Error())
				return outcome
			}
			continue
		}

		validation, err := o.config.Validator.Validate(ctx, agent.ValidateRequest{
			TaskID:             task.ID,
			Description:        task.Description,
			AcceptanceCriteria: task.AcceptanceCriteria,
			Changes:            buildResult.Changes,
			GraphContext:       task.GraphContext,
			ModifiedFiles:      buildResult.ModifiedFiles(),
		})
		if err != nil {
			logger.Warn("validator attempt failed", "attempt", attempt, "error", err)
			task.Feedback = append(task.Feedback, "validator error: "+err.Error())
			if attempt == MaxAttempts {
				o.block(task, &outcome, "validator error: "+err.Error())
				return outcome
			}
			continue
		}

		outcome.Evidence = validation.Evidence

		if validation.Verdict == agent.VerdictPass {
			if err := task.Transition(plan.StatusComplete); err != nil {
				// Only reachable if the task was mutated behind our back.
				logger.Error("completion transition rejected", "error", err)
			}
			outcome.Status = plan.StatusComplete
			outcome.Files = buildResult.ModifiedFiles()
			o.metrics.TasksCompleted.Inc()
			logger.Info("task complete", "attempts", attempt)
			return outcome
		}

		o.metrics.ValidatorFails.Inc()
		task.Feedback = append(task.Feedback, validation.Feedback)
		logger.Info("validation failed",
			"attempt", attempt,
			"feedback", validation.Feedback)

		if attempt == MaxAttempts {
			o.block(task, &outcome, validation.Feedback)
			return outcome
		}
	}

	// Unreachable; the loop always returns from its final attempt.
	return outcome
}

// block marks the task BLOCKED with the validator's last failure evidence.
func (o *Orchestrator) block(task *plan.Task, outcome *TaskOutcome, reason string) {
	task.BlockReason = reason
	if err := task.Transition(plan.StatusBlocked); err != nil {
		o.logger.Error("block transition rejected", "task", task.ID, "error", err)
	}
	outcome.Status = plan.StatusBlocked
	outcome.Feedback = reason
	o.metrics.TasksBlocked.Inc()
	o.logger.Warn("task blocked", "task", task.ID, "reason", reason)
}
