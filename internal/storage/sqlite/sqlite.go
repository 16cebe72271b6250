package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage"
	"github.com/applyflow/applyflow/internal/storage/migrations"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(migrations.MigratorConfig{
		Files:        migrationFiles,
		Dir:          "sql",
		DatabaseName: "sqlite",
		Driver: func() (database.Driver, error) {
			return migratesqlite.WithInstance(db, &migratesqlite.Config{})
		},
		Logger: cfg.Logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateApplication creates a new application in the repository.
func (r *Repository) CreateApplication(ctx context.Context, a model.Application) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid application: %w", err)
	}

	tmpl, err := storage.EncodeTemplate(a.Template)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (
			id, user_id, job_url,
			company_name, position, company_config_id,
			template_json, generation,
			status, run_state, progress, blocked_reason,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		a.ID,
		a.UserID,
		a.JobURL,
		a.CompanyName,
		a.Position,
		a.CompanyConfigID,
		string(tmpl),
		a.Generation,
		a.Status,
		a.RunState,
		a.Progress,
		a.BlockedReason,
		a.CreatedAt.UnixMilli(),
		a.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: applications.") {
			return fmt.Errorf("application already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert application: %w", err)
	}

	r.logger.Debugf("Created application in repository: %s", a.ID)
	return nil
}

const selectApplication = `
	SELECT
		id, user_id, job_url,
		company_name, position, company_config_id,
		template_json, generation,
		status, run_state, progress, blocked_reason,
		created_at, updated_at
	FROM applications
`

// GetApplication retrieves an application by ID.
func (r *Repository) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	row := r.db.QueryRowContext(ctx, selectApplication+` WHERE id = ?`, id)
	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query application: %w", err)
	}

	return &a, nil
}

// ListApplications returns the applications of a user, newest first.
func (r *Repository) ListApplications(ctx context.Context, userID string) ([]model.Application, error) {
	rows, err := r.db.QueryContext(ctx, selectApplication+` WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("could not query applications: %w", err)
	}
	defer rows.Close()

	apps := []model.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		apps = append(apps, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return apps, nil
}

// UpdateApplication updates an existing application.
func (r *Repository) UpdateApplication(ctx context.Context, a model.Application) error {
	tmpl, err := storage.EncodeTemplate(a.Template)
	if err != nil {
		return err
	}

	query := `
		UPDATE applications
		SET
			company_name = ?,
			position = ?,
			company_config_id = ?,
			template_json = ?,
			generation = ?,
			status = ?,
			run_state = ?,
			progress = ?,
			blocked_reason = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		a.CompanyName,
		a.Position,
		a.CompanyConfigID,
		string(tmpl),
		a.Generation,
		a.Status,
		a.RunState,
		a.Progress,
		a.BlockedReason,
		a.UpdatedAt.UnixMilli(),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update application: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("application %s: %w", a.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated application in repository: %s", a.ID)
	return nil
}

// LoadSession retrieves the session data of an application.
func (r *Repository) LoadSession(ctx context.Context, applicationID string) (*model.SessionData, error) {
	query := `SELECT application_id, cursor, blob, updated_at FROM session_data WHERE application_id = ?`

	var s model.SessionData
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, query, applicationID).Scan(&s.ApplicationID, &s.Cursor, &s.Blob, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session of application %s: %w", applicationID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query session: %w", err)
	}
	s.UpdatedAt = timeFromUnixMilli(updatedAt)

	return &s, nil
}

// SaveSession overwrites the session data of an application in a single upsert.
func (r *Repository) SaveSession(ctx context.Context, s model.SessionData) error {
	if s.ApplicationID == "" {
		return fmt.Errorf("application id is required: %w", model.ErrNotValid)
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO session_data (application_id, cursor, blob, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (application_id) DO UPDATE SET
			cursor = excluded.cursor,
			blob = excluded.blob,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, s.ApplicationID, s.Cursor, s.Blob, s.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("could not save session: %w", err)
	}

	r.logger.Debugf("Saved session of application %s at cursor %q", s.ApplicationID, s.Cursor)
	return nil
}

// DeleteSession deletes the session data of an application, missing sessions are ignored.
func (r *Repository) DeleteSession(ctx context.Context, applicationID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_data WHERE application_id = ?`, applicationID); err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}
	return nil
}

// RecordStep appends a step log entry.
func (r *Repository) RecordStep(ctx context.Context, s model.ApplicationStep) error {
	if s.ID == "" || s.ApplicationID == "" || s.StepID == "" {
		return fmt.Errorf("id, application id and step id are required: %w", model.ErrNotValid)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO application_steps (
			id, application_id, generation, step_id,
			attempt, status, details, requires_action, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.ApplicationID,
		s.Generation,
		s.StepID,
		s.Attempt,
		s.Status,
		s.Details,
		s.RequiresAction,
		s.Timestamp.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: application_steps.") {
			return fmt.Errorf("step log entry %s: %w", s.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert step log entry: %w", err)
	}

	return nil
}

// ListSteps returns the step log of an application in recording order.
func (r *Repository) ListSteps(ctx context.Context, applicationID string) ([]model.ApplicationStep, error) {
	query := `
		SELECT
			id, application_id, generation, step_id,
			attempt, status, details, requires_action, created_at
		FROM application_steps
		WHERE application_id = ?
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("could not query step log: %w", err)
	}
	defer rows.Close()

	steps := []model.ApplicationStep{}
	for rows.Next() {
		var s model.ApplicationStep
		var createdAt int64
		err := rows.Scan(&s.ID, &s.ApplicationID, &s.Generation, &s.StepID, &s.Attempt, &s.Status, &s.Details, &s.RequiresAction, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		s.Timestamp = timeFromUnixMilli(createdAt)
		steps = append(steps, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return steps, nil
}

// SaveAnswer creates or replaces a question bank answer.
func (r *Repository) SaveAnswer(ctx context.Context, a model.QuestionAnswer) error {
	if a.UserID == "" || a.Key == "" {
		return fmt.Errorf("user id and key are required: %w", model.ErrNotValid)
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO question_answers (user_id, key, question, answer, category, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			category = excluded.category,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, a.UserID, a.Key, a.Question, a.Answer, a.Category, a.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("could not save answer: %w", err)
	}

	return nil
}

// ListAnswers returns the question bank of a user ordered by key.
func (r *Repository) ListAnswers(ctx context.Context, userID string) ([]model.QuestionAnswer, error) {
	query := `
		SELECT user_id, key, question, answer, category, updated_at
		FROM question_answers
		WHERE user_id = ?
		ORDER BY key ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("could not query answers: %w", err)
	}
	defer rows.Close()

	answers := []model.QuestionAnswer{}
	for rows.Next() {
		var a model.QuestionAnswer
		var updatedAt int64
		if err := rows.Scan(&a.UserID, &a.Key, &a.Question, &a.Answer, &a.Category, &updatedAt); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		a.UpdatedAt = timeFromUnixMilli(updatedAt)
		answers = append(answers, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return answers, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(s scanner) (model.Application, error) {
	var a model.Application
	var tmpl string
	var createdAt, updatedAt int64

	err := s.Scan(
		&a.ID,
		&a.UserID,
		&a.JobURL,
		&a.CompanyName,
		&a.Position,
		&a.CompanyConfigID,
		&tmpl,
		&a.Generation,
		&a.Status,
		&a.RunState,
		&a.Progress,
		&a.BlockedReason,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.Application{}, err
	}

	a.Template, err = storage.DecodeTemplate([]byte(tmpl))
	if err != nil {
		return model.Application{}, err
	}
	a.CreatedAt = timeFromUnixMilli(createdAt)
	a.UpdatedAt = timeFromUnixMilli(updatedAt)

	return a, nil
}

func timeFromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
