package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/planline/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanProject scans a single row into a model.Project.
// The row must contain columns in the order defined by projectColumns.
func scanProject(row scannable) (*model.Project, error) {
	var p model.Project
	var createdBy sql.NullString

	err := row.Scan(
		&p.ID,
		&p.OrgID,
		&p.Name,
		&p.StartDate,
		&p.EndDate,
		&p.Progress,
		&p.CompletionHours,
		&p.ScheduleVersion,
		&p.CreatedAt,
		&createdBy,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedBy = createdBy.String
	return &p, nil
}

// scanTask scans a single row into a model.Task.
// The row must contain columns in the order defined by taskColumns.
// Dependencies go through the normalizer, so legacy id lists stored by older
// writers come back as typed edges.
func scanTask(row scannable) (*model.Task, error) {
	var t model.Task
	var (
		parentID     sql.NullString
		percent      sql.NullInt64
		hours        sql.NullFloat64
		plannedStart sql.NullTime
		plannedEnd   sql.NullTime
		deps         []byte
		createdBy    sql.NullString
	)

	err := row.Scan(
		&t.ID,
		&t.OrgID,
		&t.ProjectID,
		&parentID,
		&t.TaskNumber,
		&t.WBSCode,
		&t.Level,
		&t.Title,
		&t.Status,
		&percent,
		&hours,
		&plannedStart,
		&plannedEnd,
		&deps,
		&t.EarlyStart,
		&t.EarlyFinish,
		&t.LateStart,
		&t.LateFinish,
		&t.Slack,
		&t.IsCriticalPath,
		&t.CreatedAt,
		&createdBy,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ParentID = parentID.String
	t.CreatedBy = createdBy.String
	if percent.Valid {
		v := int(percent.Int64)
		t.PercentComplete = &v
	}
	if hours.Valid {
		v := hours.Float64
		t.EstimatedHours = &v
	}
	t.PlannedStart = timePtr(plannedStart)
	t.PlannedEnd = timePtr(plannedEnd)

	edges, err := model.NormalizeDependencies(deps)
	if err != nil {
		return nil, fmt.Errorf("task %s dependencies: %w", t.ID, err)
	}
	t.Dependencies = edges

	return &t, nil
}

// scanMilestone scans a single row into a model.Milestone.
// The row must contain columns in the order defined by milestoneColumns.
func scanMilestone(row scannable) (*model.Milestone, error) {
	var m model.Milestone
	var (
		typ          sql.NullString
		baselineDate sql.NullTime
		actualDate   sql.NullTime
		gateCategory sql.NullString
		approvers    []string
		approvedBy   sql.NullString
		approvedAt   sql.NullTime
		msDeps       []string
		taskDeps     []string
		achievedBy   sql.NullString
		createdBy    sql.NullString
	)

	err := row.Scan(
		&m.ID,
		&m.OrgID,
		&m.ProjectID,
		&m.Name,
		&typ,
		&m.PlannedDate,
		&baselineDate,
		&actualDate,
		&m.Status,
		&m.IsGate,
		&gateCategory,
		&m.ApprovalRequired,
		pq.Array(&approvers),
		&m.ApprovalStatus,
		&approvedBy,
		&approvedAt,
		pq.Array(&msDeps),
		pq.Array(&taskDeps),
		&m.ProgressWeight,
		&m.ReminderDays,
		&achievedBy,
		&m.CreatedAt,
		&createdBy,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Type = typ.String
	m.GateCategory = gateCategory.String
	m.ApprovedBy = approvedBy.String
	m.AchievedBy = achievedBy.String
	m.CreatedBy = createdBy.String
	m.BaselineDate = timePtr(baselineDate)
	m.ActualDate = timePtr(actualDate)
	m.ApprovedAt = timePtr(approvedAt)
	m.Approvers = nilIfEmpty(approvers)
	m.MilestoneDependencies = nilIfEmpty(msDeps)
	m.TaskDependencies = nilIfEmpty(taskDeps)

	return &m, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var entityID, actor sql.NullString
	var payload []byte
	err := row.Scan(&e.ID, &e.OrgID, &e.Topic, &e.ProjectID, &entityID, &actor, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.EntityID = entityID.String
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullIntPtr converts an *int to sql.NullInt64.
func nullIntPtr(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// nullFloatPtr converts a *float64 to sql.NullFloat64.
func nullFloatPtr(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// textArray converts a string slice for a NOT NULL text[] column.
func textArray(s []string) any {
	if s == nil {
		s = []string{}
	}
	return pq.Array(s)
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
