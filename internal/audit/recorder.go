// Package audit persists the delivery history: one record per
// notification plus one row per delivery attempt.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sendrelay/sendrelay/internal/notification"
)

// Status is the lifecycle state of a notification. Delivery is a single
// attempt, so failed and delivered are both terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Record is the audit row for one notification.
type Record struct {
	ID          uuid.UUID            `json:"id"`
	Channel     notification.Channel `json:"channel"`
	Recipient   string               `json:"recipient"`
	Body        string               `json:"body"`
	Status      Status               `json:"status"`
	LastError   *string              `json:"last_error,omitempty"`
	ErrorCode   *string              `json:"error_code,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	DeliveredAt *time.Time           `json:"delivered_at,omitempty"`
}

// Attempt is one delivery attempt against a channel.
type Attempt struct {
	ID             uuid.UUID `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	Success        bool      `json:"success"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	ErrorCode      *string   `json:"error_code,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	DurationMs     int       `json:"duration_ms"`
	WorkerID       string    `json:"worker_id"`
}

// ErrNotFound is returned when a notification record does not exist.
var ErrNotFound = errors.New("notification not found")

// Recorder stores notification records and their attempts.
type Recorder interface {
	// Create inserts a new record in pending state.
	Create(ctx context.Context, rec *Record) error

	// GetByID retrieves a record, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// MarkDelivered transitions a record to delivered.
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkFailed transitions a record to failed with the final error.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, code notification.ErrorCode, at time.Time) error

	// RecordAttempt stores one delivery attempt.
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

// NopRecorder discards everything. Used when no database is configured;
// lookups always miss.
type NopRecorder struct{}

func (NopRecorder) Create(context.Context, *Record) error { return nil }

func (NopRecorder) GetByID(context.Context, uuid.UUID) (*Record, error) {
	return nil, ErrNotFound
}

func (NopRecorder) MarkDelivered(context.Context, uuid.UUID, time.Time) error { return nil }

func (NopRecorder) MarkFailed(context.Context, uuid.UUID, string, notification.ErrorCode, time.Time) error {
	return nil
}

func (NopRecorder) RecordAttempt(context.Context, Attempt) error { return nil }
