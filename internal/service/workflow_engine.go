package service

import (
	"time"

	"github.com/itsm-core/incident-engine/internal/domain"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

// validateSteps checks the step set before a workflow is created.
func validateSteps(steps []domain.WorkflowStep) error {
	if len(steps) == 0 {
		return apperrors.NewFieldError("steps", "at least one step is required")
	}
	ids := make(map[string]bool, len(steps))
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			return apperrors.NewValidationError("step id is required", map[string]any{"field": "steps", "index": i})
		}
		if ids[step.ID] {
			return apperrors.NewValidationError("duplicate step id", map[string]any{"field": "steps", "step_id": step.ID})
		}
		ids[step.ID] = true
		stepType, ok := domain.ParseStepType(string(step.Type))
		if !ok {
			return apperrors.NewValidationError("unknown step type", map[string]any{"field": "steps", "step_id": step.ID, "type": step.Type})
		}
		step.Type = stepType
	}
	for _, step := range steps {
		for _, next := range step.NextSteps {
			if !ids[next] {
				return apperrors.NewValidationError("next step does not exist", map[string]any{
					"field":     "nextSteps",
					"step_id":   step.ID,
					"next_step": next,
				})
			}
		}
	}
	return nil
}

// startWorkflow activates the first step.
func startWorkflow(wf *domain.Workflow) {
	for i := range wf.Steps {
		if i == 0 {
			wf.Steps[i].ResetProgress(domain.StepStatusInProgress)
			continue
		}
		wf.Steps[i].ResetProgress(domain.StepStatusPending)
	}
	wf.CurrentStepID = strPtr(wf.Steps[0].ID)
	wf.Status = domain.WorkflowStatusInProgress
	wf.CompletedAt = nil
}

// stepMove records what an advance or rollback changed, for audit and events.
type stepMove struct {
	PreviousStepID *string
	PreviousStatus domain.WorkflowStatus
	StepStatus     domain.StepStatus
	CurrentStepID  *string
	Status         domain.WorkflowStatus
}

func (m stepMove) oldValue() map[string]any {
	return map[string]any{"stepId": derefString(m.PreviousStepID), "status": m.PreviousStatus}
}

func (m stepMove) newValue() map[string]any {
	return map[string]any{
		"stepId":     derefString(m.CurrentStepID),
		"status":     m.Status,
		"stepStatus": m.StepStatus,
	}
}

// advanceWorkflow closes the current step and moves to the next one.
func advanceWorkflow(wf *domain.Workflow, action domain.StepAction, data map[string]any, nextStepID *string, actorID string, now time.Time) (stepMove, error) {
	move := stepMove{PreviousStatus: wf.Status}
	if wf.Status == domain.WorkflowStatusCompleted || wf.Status == domain.WorkflowStatusCancelled {
		return move, apperrors.NewIllegalTransition("workflow is no longer active", map[string]any{
			"workflow_id": wf.ID,
			"status":      wf.Status,
		})
	}
	current, idx, ok := wf.CurrentStep()
	if !ok {
		return move, apperrors.NewCorruptState("current step not found in workflow", map[string]any{
			"workflow_id":     wf.ID,
			"current_step_id": derefString(wf.CurrentStepID),
		})
	}

	var next *domain.WorkflowStep
	if nextStepID != nil && *nextStepID != "" {
		step, found := wf.Step(*nextStepID)
		if !found {
			return move, apperrors.NewNotFound("step", map[string]any{"field": "nextStepId", "step_id": *nextStepID})
		}
		next = step
	} else if idx+1 < len(wf.Steps) {
		next = &wf.Steps[idx+1]
	}

	move.PreviousStepID = strPtr(current.ID)
	switch action {
	case domain.StepActionReject:
		current.Status = domain.StepStatusFailed
	case domain.StepActionSkip:
		current.Status = domain.StepStatusSkipped
	case domain.StepActionApprove:
		current.Status = domain.StepStatusCompleted
	default:
		return move, apperrors.NewFieldError("action", "unknown step action")
	}
	current.CompletedAt = timePtr(now)
	current.CompletedBy = strPtr(actorID)
	current.Output = domain.CloneMap(data)
	move.StepStatus = current.Status

	if action == domain.StepActionReject {
		wf.Status = domain.WorkflowStatusFailed
	} else if next != nil {
		next.ResetProgress(domain.StepStatusInProgress)
		wf.CurrentStepID = strPtr(next.ID)
		wf.Status = domain.WorkflowStatusInProgress
	} else {
		wf.Status = domain.WorkflowStatusCompleted
		wf.CurrentStepID = nil
		wf.CompletedAt = timePtr(now)
	}

	if len(data) > 0 {
		wf.Context.Merge(data)
	}
	wf.UpdatedAt = now
	move.CurrentStepID = wf.CurrentStepID
	move.Status = wf.Status
	return move, nil
}

// rollbackWorkflow reactivates targetStepID and resets every later step. Earlier steps keep their history.
func rollbackWorkflow(wf *domain.Workflow, targetStepID, reason, actorID string, now time.Time) (stepMove, error) {
	move := stepMove{PreviousStatus: wf.Status, PreviousStepID: wf.CurrentStepID}
	if wf.Status == domain.WorkflowStatusCancelled {
		return move, apperrors.NewIllegalTransition("cancelled workflows cannot be rolled back", map[string]any{
			"workflow_id": wf.ID,
			"status":      wf.Status,
		})
	}
	idx := wf.StepIndex(targetStepID)
	if idx < 0 {
		return move, apperrors.NewNotFound("step", map[string]any{"field": "targetStepId", "step_id": targetStepID})
	}

	wf.Steps[idx].ResetProgress(domain.StepStatusInProgress)
	for i := idx + 1; i < len(wf.Steps); i++ {
		wf.Steps[i].ResetProgress(domain.StepStatusPending)
	}
	wf.Status = domain.WorkflowStatusInProgress
	wf.CurrentStepID = strPtr(targetStepID)
	wf.CompletedAt = nil
	wf.Context.RollbackReason = reason
	wf.Context.RolledBackBy = actorID
	wf.Context.RolledBackAt = timePtr(now)
	wf.UpdatedAt = now

	move.StepStatus = domain.StepStatusInProgress
	move.CurrentStepID = wf.CurrentStepID
	move.Status = wf.Status
	return move, nil
}

// cancelWorkflow stops a workflow that has not completed.
func cancelWorkflow(wf *domain.Workflow, reason, actorID string, now time.Time) (stepMove, error) {
	move := stepMove{PreviousStatus: wf.Status, PreviousStepID: wf.CurrentStepID}
	if wf.Status == domain.WorkflowStatusCompleted {
		return move, apperrors.NewIllegalTransition("completed workflows cannot be cancelled", map[string]any{
			"workflow_id": wf.ID,
			"status":      wf.Status,
		})
	}
	wf.Status = domain.WorkflowStatusCancelled
	wf.Context.CancellationReason = reason
	wf.Context.CancelledBy = actorID
	wf.Context.CancelledAt = timePtr(now)
	wf.UpdatedAt = now

	move.CurrentStepID = wf.CurrentStepID
	move.Status = wf.Status
	return move, nil
}
