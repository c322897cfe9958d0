// Package postgres is the PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	connectTimeout  = 10 * time.Second
)

// PostgresStore owns the connection pool. Writes that must be atomic go
// through RunInTransaction.
type PostgresStore struct {
	queries
	db *sql.DB
}

var (
	_ store.Store = (*PostgresStore)(nil)
	_ store.Store = (*txStore)(nil)
)

// New connects to databaseURL and applies pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return newStore(db), nil
}

func newStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: queries{db}, db: db}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// SaveSchedule bumps the schedule version and writes every task's computed
// fields atomically.
func (s *PostgresStore) SaveSchedule(ctx context.Context, orgID, projectID string, expectedVersion int64, fields []model.ScheduleFields, completionHours float64) (version int64, err error) {
	err = s.RunInTransaction(ctx, func(tx store.Store) error {
		version, err = tx.SaveSchedule(ctx, orgID, projectID, expectedVersion, fields, completionHours)
		return err
	})
	return version, err
}

func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&txStore{queries: queries{tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore runs every call inside one open transaction. Nested
// RunInTransaction calls join it.
type txStore struct {
	queries
}

func (s *txStore) SaveSchedule(ctx context.Context, orgID, projectID string, expectedVersion int64, fields []model.ScheduleFields, completionHours float64) (int64, error) {
	return querySaveSchedule(ctx, s.exec, orgID, projectID, expectedVersion, fields, completionHours)
}

func (s *txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) Close() error { return nil }

// queries binds the query functions to a pool or a transaction.
type queries struct {
	exec executor
}

func (q queries) CreateProject(ctx context.Context, p *model.Project) error {
	return queryCreateProject(ctx, q.exec, p)
}

func (q queries) GetProject(ctx context.Context, orgID, id string) (*model.Project, error) {
	return queryGetProject(ctx, q.exec, orgID, id)
}

func (q queries) ListProjects(ctx context.Context, orgID string) ([]*model.Project, error) {
	return queryListProjects(ctx, q.exec, orgID)
}

func (q queries) ListOrgIDs(ctx context.Context) ([]string, error) {
	return queryListOrgIDs(ctx, q.exec)
}

func (q queries) UpdateProjectProgress(ctx context.Context, orgID, projectID string, progress int) error {
	return queryUpdateProjectProgress(ctx, q.exec, orgID, projectID, progress)
}

func (q queries) Sequence(ctx context.Context, orgID, projectID, scope string) (int, error) {
	return querySequence(ctx, q.exec, orgID, projectID, scope)
}

func (q queries) NextSequence(ctx context.Context, orgID, projectID, scope string, floor int) (int, error) {
	return queryNextSequence(ctx, q.exec, orgID, projectID, scope, floor)
}

func (q queries) CreateTask(ctx context.Context, t *model.Task) error {
	return queryCreateTask(ctx, q.exec, t)
}

func (q queries) GetTask(ctx context.Context, orgID, id string) (*model.Task, error) {
	return queryGetTask(ctx, q.exec, orgID, id)
}

func (q queries) ListTasks(ctx context.Context, orgID, projectID string) ([]*model.Task, error) {
	return queryListTasks(ctx, q.exec, orgID, projectID)
}

func (q queries) UpdateTask(ctx context.Context, t *model.Task) error {
	return queryUpdateTask(ctx, q.exec, t)
}

func (q queries) DeleteTask(ctx context.Context, orgID, id string) error {
	return queryDeleteTask(ctx, q.exec, orgID, id)
}

func (q queries) CreateMilestone(ctx context.Context, m *model.Milestone) error {
	return queryCreateMilestone(ctx, q.exec, m)
}

func (q queries) GetMilestone(ctx context.Context, orgID, id string) (*model.Milestone, error) {
	return queryGetMilestone(ctx, q.exec, orgID, id)
}

func (q queries) ListMilestones(ctx context.Context, orgID, projectID string) ([]*model.Milestone, error) {
	return queryListMilestones(ctx, q.exec, orgID, projectID)
}

func (q queries) UpdateMilestone(ctx context.Context, m *model.Milestone) error {
	return queryUpdateMilestone(ctx, q.exec, m)
}

func (q queries) DeleteMilestone(ctx context.Context, orgID, id string) error {
	return queryDeleteMilestone(ctx, q.exec, orgID, id)
}

func (q queries) RecordEvent(ctx context.Context, e *model.Event) error {
	return queryRecordEvent(ctx, q.exec, e)
}

func (q queries) ListEvents(ctx context.Context, orgID, projectID string) ([]*model.Event, error) {
	return queryListEvents(ctx, q.exec, orgID, projectID)
}
