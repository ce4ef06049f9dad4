// Package journal keeps a durable record of every transition attempt and its
// step events in a SQLite database next to the environment records. The
// journal is advisory: commands consult it for history, but the lifecycle
// never depends on it, and recording failures do not fail transitions.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Status values for transitions and step events.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDetail    = "detail"
)

// TransitionRecord is one row of the transitions table.
type TransitionRecord struct {
	ID          string     `json:"id"`
	Environment string     `json:"environment"`
	Transition  string     `json:"transition"`
	FromState   string     `json:"from_state"`
	ToState     string     `json:"to_state,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepEventRecord is one row of the step_events table.
type StepEventRecord struct {
	TransitionID string    `json:"transition_id"`
	StepIndex    int       `json:"step_index"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Journal is the SQLite-backed transition journal. It implements the step
// engine's Recorder interface.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the journal database at path and applies pending
// migrations. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	j := &Journal{db: db, path: path}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func (j *Journal) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply journal migrations: %w", err)
	}
	return nil
}

// TransitionStarted records a new transition attempt and returns its id.
func (j *Journal) TransitionStarted(ctx context.Context, env string, transition environment.Transition, from environment.State) (string, error) {
	id := uuid.New().String()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO transitions (id, environment, transition, from_state, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, env, string(transition), string(from), StatusStarted, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("record transition start: %w", err)
	}
	return id, nil
}

// TransitionCompleted marks the transition successful.
func (j *Journal) TransitionCompleted(ctx context.Context, id string, to environment.State) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE transitions SET status = ?, to_state = ?, completed_at = ? WHERE id = ?`,
		StatusCompleted, string(to), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("record transition completion: %w", err)
	}
	return nil
}

// TransitionFailed marks the transition failed with the given cause.
func (j *Journal) TransitionFailed(ctx context.Context, id string, to environment.State, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := j.db.ExecContext(ctx, `
		UPDATE transitions SET status = ?, to_state = ?, error = ?, completed_at = ? WHERE id = ?`,
		StatusFailed, string(to), msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("record transition failure: %w", err)
	}
	return nil
}

// StepEvent records one step boundary, detail, or failure.
func (j *Journal) StepEvent(ctx context.Context, transitionID string, index int, description, status, detail string) error {
	if transitionID == "" {
		// The transition start itself failed to record; nothing to attach to.
		return nil
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO step_events (transition_id, step_index, description, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		transitionID, index, description, status, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record step event: %w", err)
	}
	return nil
}

// Transitions returns the transition history for an environment, most recent
// first.
func (j *Journal) Transitions(ctx context.Context, env string) ([]TransitionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, environment, transition, from_state, COALESCE(to_state, ''),
		       status, COALESCE(error, ''), started_at, completed_at
		FROM transitions WHERE environment = ? ORDER BY started_at DESC`, env)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var records []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var completedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Environment, &rec.Transition, &rec.FromState,
			&rec.ToState, &rec.Status, &rec.Error, &rec.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StepEvents returns the step events for one transition, in order.
func (j *Journal) StepEvents(ctx context.Context, transitionID string) ([]StepEventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT transition_id, step_index, description, status, COALESCE(detail, ''), created_at
		FROM step_events WHERE transition_id = ? ORDER BY id`, transitionID)
	if err != nil {
		return nil, fmt.Errorf("query step events: %w", err)
	}
	defer rows.Close()

	var records []StepEventRecord
	for rows.Next() {
		var rec StepEventRecord
		if err := rows.Scan(&rec.TransitionID, &rec.StepIndex, &rec.Description,
			&rec.Status, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan step event: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
