// Package dispatch resolves a sender for each notification and performs
// the single delivery attempt, recording the outcome in the audit log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sendrelay/sendrelay/internal/audit"
	"github.com/sendrelay/sendrelay/internal/notification"
	"github.com/sendrelay/sendrelay/internal/queue"
	"github.com/sendrelay/sendrelay/internal/telemetry"
)

// ErrQueueDisabled is returned by Enqueue when no queue is configured.
var ErrQueueDisabled = errors.New("queueing is not configured")

const lockTTL = 30 * time.Second

// Dispatcher performs notification delivery. Every notification gets
// exactly one attempt; a failure is terminal and lands in the audit log.
type Dispatcher struct {
	registry *notification.Registry
	recorder audit.Recorder
	queue    queue.Queue // nil when queueing is disabled
	log      *telemetry.Logger

	dispatches metric.Int64Counter
	durationMs metric.Float64Histogram
}

// New creates a dispatcher. q may be nil, which disables Enqueue.
func New(registry *notification.Registry, recorder audit.Recorder, q queue.Queue, log *telemetry.Logger) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		recorder: recorder,
		queue:    q,
		log:      log,
	}

	meter := otel.Meter("github.com/sendrelay/sendrelay/internal/dispatch")

	var err error
	d.dispatches, err = meter.Int64Counter("sendrelay.dispatch.count",
		metric.WithDescription("Delivery attempts by channel and status"))
	if err != nil {
		log.WithContext(context.Background()).WithField("error", err).Warn("failed to create dispatch counter")
	}

	d.durationMs, err = meter.Float64Histogram("sendrelay.dispatch.duration_ms",
		metric.WithDescription("Delivery attempt duration in milliseconds"))
	if err != nil {
		log.WithContext(context.Background()).WithField("error", err).Warn("failed to create dispatch histogram")
	}

	return d
}

// QueueEnabled reports whether Enqueue is available.
func (d *Dispatcher) QueueEnabled() bool {
	return d.queue != nil
}

// Dispatch performs one synchronous delivery attempt through the channel
// selected by tag. The returned record reflects the terminal status; the
// error, when non-nil, is the sender's *ChannelError.
func (d *Dispatcher) Dispatch(ctx context.Context, tag string, msg notification.Message) (*audit.Record, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	snd := d.registry.SenderFor(tag)

	rec := &audit.Record{
		ID:        uuid.New(),
		Channel:   snd.Channel(),
		Recipient: msg.Recipient,
		Body:      msg.Body,
	}
	if err := d.recorder.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create audit record: %w", err)
	}

	err := d.attempt(ctx, rec, snd, "inline")
	return rec, err
}

// Enqueue stores the notification and queues it for a worker. The
// channel is resolved at enqueue time so the audit record always names
// the channel that will carry the message.
func (d *Dispatcher) Enqueue(ctx context.Context, tag string, msg notification.Message, priority int) (*audit.Record, error) {
	if d.queue == nil {
		return nil, ErrQueueDisabled
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	snd := d.registry.SenderFor(tag)

	rec := &audit.Record{
		ID:        uuid.New(),
		Channel:   snd.Channel(),
		Recipient: msg.Recipient,
		Body:      msg.Body,
		Status:    audit.StatusPending,
	}
	if err := d.recorder.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create audit record: %w", err)
	}

	if err := d.queue.Enqueue(ctx, rec.ID, priority); err != nil {
		return nil, fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return rec, nil
}

// Process handles one queued notification. Called by the worker; the
// lock guarantees a notification is not delivered twice concurrently.
func (d *Dispatcher) Process(ctx context.Context, id uuid.UUID, workerID string) error {
	acquired, err := d.queue.AcquireLock(ctx, id, workerID, lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := d.queue.ReleaseLock(ctx, id, workerID); err != nil {
			d.log.WithContext(ctx).WithField("notification_id", id.String()).
				WithField("error", err).Warn("failed to release lock")
		}
	}()

	rec, err := d.recorder.GetByID(ctx, id)
	if errors.Is(err, audit.ErrNotFound) {
		// Stale queue entry, drop it.
		_ = d.queue.Remove(ctx, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load notification: %w", err)
	}

	if rec.Status != audit.StatusPending {
		_ = d.queue.Remove(ctx, id)
		return nil
	}

	snd := d.registry.SenderFor(string(rec.Channel))

	// Outcome is terminal either way, so the entry always leaves the queue.
	sendErr := d.attempt(ctx, rec, snd, workerID)
	if err := d.queue.Remove(ctx, id); err != nil {
		d.log.WithContext(ctx).WithField("notification_id", id.String()).
			WithField("error", err).Warn("failed to remove notification from queue")
	}

	return sendErr
}

// Get retrieves a notification's audit record.
func (d *Dispatcher) Get(ctx context.Context, id uuid.UUID) (*audit.Record, error) {
	return d.recorder.GetByID(ctx, id)
}

// attempt performs the delivery and records the outcome.
func (d *Dispatcher) attempt(ctx context.Context, rec *audit.Record, snd notification.Sender, workerID string) error {
	msg := notification.Message{Recipient: rec.Recipient, Body: rec.Body}

	start := time.Now()
	sendErr := snd.Send(ctx, msg)
	elapsed := time.Since(start)

	att := audit.Attempt{
		NotificationID: rec.ID,
		Success:        sendErr == nil,
		StartedAt:      start,
		DurationMs:     int(elapsed.Milliseconds()),
		WorkerID:       workerID,
	}
	if sendErr != nil {
		errMsg := sendErr.Error()
		code := string(notification.CodeOf(sendErr))
		att.ErrorMessage = &errMsg
		att.ErrorCode = &code
	}
	if err := d.recorder.RecordAttempt(ctx, att); err != nil {
		d.log.WithContext(ctx).WithField("notification_id", rec.ID.String()).
			WithField("error", err).Warn("failed to record attempt")
	}

	logger := d.log.WithContext(ctx).WithFields(map[string]interface{}{
		"notification_id": rec.ID.String(),
		"channel":         string(rec.Channel),
		"duration_ms":     elapsed.Milliseconds(),
	})

	if sendErr == nil {
		now := time.Now()
		rec.Status = audit.StatusDelivered
		rec.DeliveredAt = &now
		if err := d.recorder.MarkDelivered(ctx, rec.ID, now); err != nil {
			logger.WithField("error", err).Warn("failed to mark delivered")
		}
		d.record(ctx, rec.Channel, "delivered", elapsed)
		logger.Info("notification delivered")
		return nil
	}

	code := notification.CodeOf(sendErr)
	errMsg := sendErr.Error()
	rec.Status = audit.StatusFailed
	rec.LastError = &errMsg
	codeStr := string(code)
	rec.ErrorCode = &codeStr
	if err := d.recorder.MarkFailed(ctx, rec.ID, errMsg, code, time.Now()); err != nil {
		logger.WithField("error", err).Warn("failed to mark failed")
	}
	d.record(ctx, rec.Channel, "failed", elapsed)
	logger.WithFields(map[string]interface{}{
		"error_code": string(code),
		"error":      sendErr,
	}).Error("notification failed")

	return sendErr
}

func (d *Dispatcher) record(ctx context.Context, ch notification.Channel, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("channel", string(ch)),
		attribute.String("status", status),
	)
	if d.dispatches != nil {
		d.dispatches.Add(ctx, 1, attrs)
	}
	if d.durationMs != nil {
		d.durationMs.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}
