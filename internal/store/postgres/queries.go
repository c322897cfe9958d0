package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

// projectColumns is the column list used for SELECT statements on the projects table.
const projectColumns = `id, org_id, name, start_date, end_date, progress,
	completion_hours, schedule_version, created_at, created_by, updated_at`

// taskColumns is the column list used for SELECT statements on the tasks table.
const taskColumns = `id, org_id, project_id, parent_id, task_number, wbs_code, level,
	title, status, percent_complete, estimated_hours, planned_start, planned_end,
	dependencies, early_start, early_finish, late_start, late_finish, slack,
	is_critical_path, created_at, created_by, updated_at`

// milestoneColumns is the column list used for SELECT statements on the milestones table.
const milestoneColumns = `id, org_id, project_id, name, type, planned_date,
	baseline_date, actual_date, status, is_gate, gate_category, approval_required,
	approvers, approval_status, approved_by, approved_at, milestone_dependencies,
	task_dependencies, progress_weight, reminder_days, achieved_by, created_at,
	created_by, updated_at`

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound converts sql.ErrNoRows into a *model.NotFoundError.
func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// requireAffected returns a *model.NotFoundError when res touched no rows.
func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &model.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// Projects

func queryCreateProject(ctx context.Context, db executor, p *model.Project) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO projects (
			id, org_id, name, start_date, end_date, progress,
			completion_hours, schedule_version, created_at, created_by, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID,
		p.OrgID,
		p.Name,
		p.StartDate,
		p.EndDate,
		p.Progress,
		p.CompletionHours,
		p.ScheduleVersion,
		p.CreatedAt,
		nullString(p.CreatedBy),
		p.UpdatedAt,
	)
	return err
}

func queryGetProject(ctx context.Context, db executor, orgID, id string) (*model.Project, error) {
	row := db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE org_id = $1 AND id = $2`, orgID, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

func queryListProjects(ctx context.Context, db executor, orgID string) ([]*model.Project, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE org_id = $1 ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan projects: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan projects: %w", err)
	}
	return projects, nil
}

func queryListOrgIDs(ctx context.Context, db executor) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT org_id FROM projects ORDER BY org_id`)
	if err != nil {
		return nil, fmt.Errorf("list orgs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryUpdateProjectProgress(ctx context.Context, db executor, orgID, projectID string, progress int) error {
	res, err := db.ExecContext(ctx, `
		UPDATE projects SET progress = $3, updated_at = NOW()
		WHERE org_id = $1 AND id = $2`,
		orgID, projectID, progress,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "project", projectID)
}

func querySequence(ctx context.Context, db executor, orgID, projectID, scope string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(c.value, 0)
		FROM projects p
		LEFT JOIN numbering_counters c ON c.project_id = p.id AND c.scope = $3
		WHERE p.org_id = $1 AND p.id = $2`,
		orgID, projectID, scope,
	).Scan(&n)
	if err != nil {
		return 0, notFound(err, "project", projectID)
	}
	return n, nil
}

// queryNextSequence is a single upsert, so concurrent writers serialize on
// the counter row even without the project lock.
func queryNextSequence(ctx context.Context, db executor, orgID, projectID, scope string, floor int) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		INSERT INTO numbering_counters (project_id, scope, value)
		SELECT id, $3, $4 + 1 FROM projects WHERE org_id = $1 AND id = $2
		ON CONFLICT (project_id, scope) DO UPDATE
		SET value = GREATEST(numbering_counters.value, $4) + 1
		RETURNING value`,
		orgID, projectID, scope, floor,
	).Scan(&n)
	if err != nil {
		return 0, notFound(err, "project", projectID)
	}
	return n, nil
}

// querySaveSchedule bumps the project's schedule version if it still equals
// expected and writes every task's computed fields. It must run inside a
// transaction so a lost race leaves no partial write.
func querySaveSchedule(ctx context.Context, db executor, orgID, projectID string, expected int64, fields []model.ScheduleFields, completion float64) (int64, error) {
	var version int64
	err := db.QueryRowContext(ctx, `
		UPDATE projects
		SET schedule_version = schedule_version + 1, completion_hours = $4, updated_at = NOW()
		WHERE org_id = $1 AND id = $2 AND schedule_version = $3
		RETURNING schedule_version`,
		orgID, projectID, expected, completion,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := queryGetProject(ctx, db, orgID, projectID); gerr != nil {
			return 0, gerr
		}
		return 0, &model.ConcurrentModificationError{ProjectID: projectID, Expected: expected}
	}
	if err != nil {
		return 0, fmt.Errorf("bump schedule version: %w", err)
	}

	for _, f := range fields {
		_, err := db.ExecContext(ctx, `
			UPDATE tasks SET
				early_start = $3,
				early_finish = $4,
				late_start = $5,
				late_finish = $6,
				slack = $7,
				is_critical_path = $8,
				updated_at = NOW()
			WHERE org_id = $1 AND id = $2`,
			orgID, f.TaskID, f.EarlyStart, f.EarlyFinish, f.LateStart, f.LateFinish, f.Slack, f.IsCriticalPath,
		)
		if err != nil {
			return 0, fmt.Errorf("write schedule for task %s: %w", f.TaskID, err)
		}
	}
	return version, nil
}

// Tasks

func queryCreateTask(ctx context.Context, db executor, t *model.Task) error {
	deps, err := dependenciesJSON(t.Dependencies)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, org_id, project_id, parent_id, task_number, wbs_code, level,
			title, status, percent_complete, estimated_hours, planned_start, planned_end,
			dependencies, created_at, created_by, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17
		)`,
		t.ID,
		t.OrgID,
		t.ProjectID,
		nullString(t.ParentID),
		t.TaskNumber,
		t.WBSCode,
		t.Level,
		t.Title,
		string(t.Status),
		nullIntPtr(t.PercentComplete),
		nullFloatPtr(t.EstimatedHours),
		nullTimePtr(t.PlannedStart),
		nullTimePtr(t.PlannedEnd),
		deps,
		t.CreatedAt,
		nullString(t.CreatedBy),
		t.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("create task %s: %w (%s)", t.ID, store.ErrDuplicate, pqErr.Constraint)
	}
	return err
}

func queryGetTask(ctx context.Context, db executor, orgID, id string) (*model.Task, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE org_id = $1 AND id = $2`, orgID, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	return t, nil
}

func queryListTasks(ctx context.Context, db executor, orgID, projectID string) ([]*model.Task, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE org_id = $1 AND project_id = $2
		ORDER BY created_at ASC, id ASC`,
		orgID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	return tasks, nil
}

// queryUpdateTask writes the caller-editable task fields. Identity (number,
// WBS code, level) and computed CPM fields are not touched.
func queryUpdateTask(ctx context.Context, db executor, t *model.Task) error {
	deps, err := dependenciesJSON(t.Dependencies)
	if err != nil {
		return err
	}
	err = db.QueryRowContext(ctx, `
		UPDATE tasks SET
			title = $3,
			status = $4,
			percent_complete = $5,
			estimated_hours = $6,
			planned_start = $7,
			planned_end = $8,
			dependencies = $9,
			updated_at = NOW()
		WHERE org_id = $1 AND id = $2
		RETURNING updated_at`,
		t.OrgID,
		t.ID,
		t.Title,
		string(t.Status),
		nullIntPtr(t.PercentComplete),
		nullFloatPtr(t.EstimatedHours),
		nullTimePtr(t.PlannedStart),
		nullTimePtr(t.PlannedEnd),
		deps,
	).Scan(&t.UpdatedAt)
	return notFound(err, "task", t.ID)
}

func queryDeleteTask(ctx context.Context, db executor, orgID, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "task", id)
}

// Milestones

func queryCreateMilestone(ctx context.Context, db executor, m *model.Milestone) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO milestones (
			id, org_id, project_id, name, type, planned_date,
			baseline_date, actual_date, status, is_gate, gate_category, approval_required,
			approvers, approval_status, approved_by, approved_at, milestone_dependencies,
			task_dependencies, progress_weight, reminder_days, achieved_by, created_at,
			created_by, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22,
			$23, $24
		)`,
		m.ID,
		m.OrgID,
		m.ProjectID,
		m.Name,
		nullString(m.Type),
		m.PlannedDate,
		nullTimePtr(m.BaselineDate),
		nullTimePtr(m.ActualDate),
		string(m.Status),
		m.IsGate,
		nullString(m.GateCategory),
		m.ApprovalRequired,
		textArray(m.Approvers),
		string(m.ApprovalStatus),
		nullString(m.ApprovedBy),
		nullTimePtr(m.ApprovedAt),
		textArray(m.MilestoneDependencies),
		textArray(m.TaskDependencies),
		m.ProgressWeight,
		m.ReminderDays,
		nullString(m.AchievedBy),
		m.CreatedAt,
		nullString(m.CreatedBy),
		m.UpdatedAt,
	)
	return err
}

func queryGetMilestone(ctx context.Context, db executor, orgID, id string) (*model.Milestone, error) {
	row := db.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE org_id = $1 AND id = $2`, orgID, id)
	m, err := scanMilestone(row)
	if err != nil {
		return nil, notFound(err, "milestone", id)
	}
	return m, nil
}

func queryListMilestones(ctx context.Context, db executor, orgID, projectID string) ([]*model.Milestone, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+milestoneColumns+` FROM milestones
		WHERE org_id = $1 AND project_id = $2
		ORDER BY planned_date ASC, id ASC`,
		orgID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*model.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan milestones: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan milestones: %w", err)
	}
	return milestones, nil
}

func queryUpdateMilestone(ctx context.Context, db executor, m *model.Milestone) error {
	err := db.QueryRowContext(ctx, `
		UPDATE milestones SET
			name = $3,
			type = $4,
			planned_date = $5,
			baseline_date = $6,
			actual_date = $7,
			status = $8,
			is_gate = $9,
			gate_category = $10,
			approval_required = $11,
			approvers = $12,
			approval_status = $13,
			approved_by = $14,
			approved_at = $15,
			milestone_dependencies = $16,
			task_dependencies = $17,
			progress_weight = $18,
			reminder_days = $19,
			achieved_by = $20,
			updated_at = NOW()
		WHERE org_id = $1 AND id = $2
		RETURNING updated_at`,
		m.OrgID,
		m.ID,
		m.Name,
		nullString(m.Type),
		m.PlannedDate,
		nullTimePtr(m.BaselineDate),
		nullTimePtr(m.ActualDate),
		string(m.Status),
		m.IsGate,
		nullString(m.GateCategory),
		m.ApprovalRequired,
		textArray(m.Approvers),
		string(m.ApprovalStatus),
		nullString(m.ApprovedBy),
		nullTimePtr(m.ApprovedAt),
		textArray(m.MilestoneDependencies),
		textArray(m.TaskDependencies),
		m.ProgressWeight,
		m.ReminderDays,
		nullString(m.AchievedBy),
	).Scan(&m.UpdatedAt)
	return notFound(err, "milestone", m.ID)
}

func queryDeleteMilestone(ctx context.Context, db executor, orgID, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM milestones WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "milestone", id)
}

// Events

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (org_id, topic, project_id, entity_id, actor, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		e.OrgID, e.Topic, e.ProjectID, nullString(e.EntityID), nullString(e.Actor), jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryListEvents(ctx context.Context, db executor, orgID, projectID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, org_id, topic, project_id, entity_id, actor, payload, created_at
		FROM events
		WHERE org_id = $1 AND project_id = $2
		ORDER BY created_at ASC, id ASC`,
		orgID, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// dependenciesJSON encodes the typed edge list for the JSONB column. A nil
// list is stored as an empty array.
func dependenciesJSON(deps model.DependencyList) ([]byte, error) {
	if deps == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(deps)
	if err != nil {
		return nil, fmt.Errorf("marshal dependencies: %w", err)
	}
	return data, nil
}
