package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/sendrelay/sendrelay/internal/notification"
)

// PostgresRecorder implements Recorder using PostgreSQL.
type PostgresRecorder struct {
	db *sql.DB
}

// Open connects to Postgres with OpenTelemetry instrumentation and
// verifies the connection.
func Open(databaseURL string) (*PostgresRecorder, error) {
	db, err := otelsql.Open("postgres", databaseURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to register database metrics: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgresRecorder{db: db}, nil
}

// NewPostgresRecorder wraps an existing connection pool.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// EnsureSchema creates the audit tables when they do not exist yet.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			body TEXT NOT NULL,
			status TEXT NOT NULL,
			last_error TEXT,
			error_code TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			delivered_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS notification_attempts (
			id UUID PRIMARY KEY,
			notification_id UUID NOT NULL REFERENCES notifications(id),
			success BOOLEAN NOT NULL,
			error_message TEXT,
			error_code TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			duration_ms INTEGER NOT NULL,
			worker_id TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
		CREATE INDEX IF NOT EXISTS idx_attempts_notification ON notification_attempts(notification_id);
	`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Create inserts a new record in pending state.
func (r *PostgresRecorder) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.Status = StatusPending
	rec.CreatedAt = now
	rec.UpdatedAt = now

	const query = `
		INSERT INTO notifications (id, channel, recipient, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, string(rec.Channel), rec.Recipient, rec.Body, string(rec.Status),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// GetByID retrieves a record, or ErrNotFound.
func (r *PostgresRecorder) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	const query = `
		SELECT id, channel, recipient, body, status, last_error, error_code,
			created_at, updated_at, delivered_at
		FROM notifications
		WHERE id = $1
	`

	var rec Record
	var channel, status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &channel, &rec.Recipient, &rec.Body, &status,
		&rec.LastError, &rec.ErrorCode,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.DeliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	rec.Channel = notification.Channel(channel)
	rec.Status = Status(status)
	return &rec, nil
}

// MarkDelivered transitions a record to delivered.
func (r *PostgresRecorder) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `
		UPDATE notifications
		SET status = $2, delivered_at = $3, updated_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, string(StatusDelivered), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	return requireRow(res)
}

// MarkFailed transitions a record to failed with the final error.
func (r *PostgresRecorder) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, code notification.ErrorCode, at time.Time) error {
	const query = `
		UPDATE notifications
		SET status = $2, last_error = $3, error_code = $4, updated_at = $5
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		id, string(StatusFailed), errMsg, string(code), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return requireRow(res)
}

// RecordAttempt stores one delivery attempt.
func (r *PostgresRecorder) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}

	const query = `
		INSERT INTO notification_attempts (
			id, notification_id, success, error_message, error_code,
			started_at, duration_ms, worker_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID, attempt.NotificationID, attempt.Success,
		attempt.ErrorMessage, attempt.ErrorCode,
		attempt.StartedAt.UTC(), attempt.DurationMs, attempt.WorkerID)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
