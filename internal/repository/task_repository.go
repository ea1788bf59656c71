package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/itsm-core/incident-engine/internal/domain"
)

const taskColumns = `id, org_id, title, description, status, priority, assignee_id, due_date, estimated_minutes,
       tags, workflow_id, workflow_step_id, incident_id, source_entity_type, source_entity_id, created_by,
       created_at, updated_at`

type taskRepository struct {
	conn
}

// CreateMany inserts all tasks in a single batch.
func (r *taskRepository) CreateMany(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const width = 18
	args := make([]any, 0, len(tasks)*width)
	values := make([]string, 0, len(tasks))
	for i, task := range tasks {
		placeholders := make([]string, width)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ",")+")")
		args = append(args,
			task.ID,
			task.OrgID,
			task.Title,
			task.Description,
			task.Status,
			task.Priority,
			task.AssigneeID,
			task.DueDate,
			task.EstimatedMinutes,
			task.Tags,
			task.WorkflowID,
			task.WorkflowStepID,
			task.IncidentID,
			task.SourceEntityType,
			task.SourceEntityID,
			task.CreatedBy,
			task.CreatedAt,
			task.UpdatedAt,
		)
	}
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES ` + strings.Join(values, ",")
	_, err := r.q.Exec(ctx, query, args...)
	return err
}

func (r *taskRepository) Count(ctx context.Context, filter TaskFilter) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := taskWhere(filter)
	var count int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE `+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *taskRepository) List(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := taskWhere(filter)
	rows, err := r.q.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func taskWhere(filter TaskFilter) (string, []any) {
	args := []any{filter.OrgID}
	clauses := []string{"org_id=$1"}

	if filter.IncidentID != nil {
		args = append(args, *filter.IncidentID)
		clauses = append(clauses, fmt.Sprintf("incident_id=$%d", len(args)))
	}
	if filter.WorkflowID != nil {
		args = append(args, *filter.WorkflowID)
		clauses = append(clauses, fmt.Sprintf("workflow_id=$%d", len(args)))
	}
	if filter.WorkflowLinkedOnly {
		args = append(args, domain.SourceEntityWorkflow)
		clauses = append(clauses, fmt.Sprintf("(workflow_id IS NOT NULL OR source_entity_type=$%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	return strings.Join(clauses, " AND "), args
}

func scanTasks(rows pgx.Rows) ([]domain.Task, error) {
	var result []domain.Task
	for rows.Next() {
		var task domain.Task
		if err := rows.Scan(
			&task.ID,
			&task.OrgID,
			&task.Title,
			&task.Description,
			&task.Status,
			&task.Priority,
			&task.AssigneeID,
			&task.DueDate,
			&task.EstimatedMinutes,
			&task.Tags,
			&task.WorkflowID,
			&task.WorkflowStepID,
			&task.IncidentID,
			&task.SourceEntityType,
			&task.SourceEntityID,
			&task.CreatedBy,
			&task.CreatedAt,
			&task.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}
