package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/infra/storage"
)

// FailureRepo implements storage.FailureRepository using PostgreSQL.
type FailureRepo struct {
	db *DB
}

// NewFailureRepo creates a new PostgreSQL failure repository.
func NewFailureRepo(db *DB) *FailureRepo {
	return &FailureRepo{db: db}
}

// eventRow mirrors the error_events table.
type eventRow struct {
	ID              string         `db:"id"`
	Kind            string         `db:"kind"`
	Severity        int            `db:"severity"`
	Message         string         `db:"message"`
	OperationID     string         `db:"operation_id"`
	Resource        string         `db:"resource"`
	Stage           string         `db:"stage"`
	RetryCount      int            `db:"retry_count"`
	MaxRetries      int            `db:"max_retries"`
	Metadata        []byte         `db:"metadata"`
	Timestamp       time.Time      `db:"created_at"`
	Recoverable     bool           `db:"recoverable"`
	Recovered       bool           `db:"recovered"`
	RecoveryActions pq.StringArray `db:"recovery_actions"`
	DurationMs      int64          `db:"duration_ms"`
	Status          string         `db:"status"`
}

func toRow(e *domain.ErrorEvent) (*eventRow, error) {
	meta, err := json.Marshal(e.Context.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return &eventRow{
		ID:              e.ID,
		Kind:            string(e.Kind),
		Severity:        int(e.Severity),
		Message:         e.Message,
		OperationID:     e.Context.OperationID,
		Resource:        e.Context.Resource,
		Stage:           string(e.Context.Stage),
		RetryCount:      e.Context.RetryCount,
		MaxRetries:      e.Context.MaxRetries,
		Metadata:        meta,
		Timestamp:       e.Timestamp,
		Recoverable:     e.Recoverable,
		Recovered:       e.Recovered,
		RecoveryActions: pq.StringArray(e.RecoveryActions),
		DurationMs:      e.Duration.Milliseconds(),
		Status:          string(e.Status),
	}, nil
}

func (r *eventRow) toDomain() *domain.ErrorEvent {
	var meta map[string]string
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &meta)
	}
	return &domain.ErrorEvent{
		ID:       r.ID,
		Kind:     domain.ErrorKind(r.Kind),
		Severity: domain.Severity(r.Severity),
		Message:  r.Message,
		Context: domain.ExecutionContext{
			OperationID: r.OperationID,
			Resource:    r.Resource,
			Stage:       domain.Stage(r.Stage),
			RetryCount:  r.RetryCount,
			MaxRetries:  r.MaxRetries,
			Metadata:    meta,
		},
		Timestamp:       r.Timestamp,
		Recoverable:     r.Recoverable,
		Recovered:       r.Recovered,
		RecoveryActions: []string(r.RecoveryActions),
		Duration:        time.Duration(r.DurationMs) * time.Millisecond,
		Status:          domain.ErrorEventStatus(r.Status),
	}
}

// Add stores a new failure event.
func (r *FailureRepo) Add(ctx context.Context, event *domain.ErrorEvent) error {
	row, err := toRow(event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO error_events (
			id, kind, severity, message, operation_id, resource, stage,
			retry_count, max_retries, metadata, created_at,
			recoverable, recovered, recovery_actions, duration_ms, status
		) VALUES (
			:id, :kind, :severity, :message, :operation_id, :resource, :stage,
			:retry_count, :max_retries, :metadata, :created_at,
			:recoverable, :recovered, :recovery_actions, :duration_ms, :status
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save error event: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing event.
func (r *FailureRepo) Update(ctx context.Context, event *domain.ErrorEvent) error {
	query := `
		UPDATE error_events
		SET recovered = $2, recovery_actions = $3, status = $4, retry_count = $5
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Recovered,
		pq.StringArray(event.RecoveryActions),
		string(event.Status),
		event.Context.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update error event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrEventNotFound
	}
	return nil
}

// GetByID retrieves a single event.
func (r *FailureRepo) GetByID(ctx context.Context, id string) (*domain.ErrorEvent, error) {
	var row eventRow
	query := `SELECT * FROM error_events WHERE id = $1`

	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get error event: %w", err)
	}
	return row.toDomain(), nil
}

// ListRecent returns up to limit events, newest first.
func (r *FailureRepo) ListRecent(ctx context.Context, limit int) ([]*domain.ErrorEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []eventRow
	query := `SELECT * FROM error_events ORDER BY created_at DESC LIMIT $1`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list error events: %w", err)
	}

	out := make([]*domain.ErrorEvent, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// CountByKind returns failure counts grouped by kind.
func (r *FailureRepo) CountByKind(ctx context.Context) (map[domain.ErrorKind]int, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT kind, COUNT(*) FROM error_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count error events: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ErrorKind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		out[domain.ErrorKind(kind)] = count
	}
	return out, rows.Err()
}

// Count returns the number of retained events.
func (r *FailureRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM error_events`); err != nil {
		return 0, fmt.Errorf("failed to count error events: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes events recorded before the cutoff.
func (r *FailureRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM error_events WHERE created_at < $1`, cutoff); err != nil {
		return fmt.Errorf("failed to prune error events: %w", err)
	}
	return nil
}

// Clear removes all events.
func (r *FailureRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `TRUNCATE error_events`); err != nil {
		return fmt.Errorf("failed to clear error events: %w", err)
	}
	return nil
}
