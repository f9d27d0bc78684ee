package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sendrelay/sendrelay/internal/telemetry"
)

// Handler processes one queued notification. The handler owns locking,
// delivery, and removing the notification from the queue.
type Handler func(ctx context.Context, id uuid.UUID, workerID string) error

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	// Concurrency is the number of goroutines processing notifications.
	Concurrency int

	// BatchSize is how many notifications to fetch per poll.
	BatchSize int

	// PollInterval is how often to poll the pending queue.
	PollInterval time.Duration

	// Prefix identifies this worker in locks and logs.
	Prefix string
}

// DefaultWorkerConfig returns sensible worker defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  4,
		BatchSize:    10,
		PollInterval: 500 * time.Millisecond,
		Prefix:       "relay-worker",
	}
}

// Worker drains the pending queue and hands each notification to the
// handler once.
type Worker struct {
	queue    Queue
	handler  Handler
	config   WorkerConfig
	log      *telemetry.Logger
	workerID string

	mu        sync.Mutex
	isRunning bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewWorker creates a worker pool over the queue.
func NewWorker(q Queue, handler Handler, config WorkerConfig, log *telemetry.Logger) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultWorkerConfig().Concurrency
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWorkerConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if config.Prefix == "" {
		config.Prefix = DefaultWorkerConfig().Prefix
	}

	return &Worker{
		queue:    q,
		handler:  handler,
		config:   config,
		log:      log,
		workerID: fmt.Sprintf("%s-%s", config.Prefix, uuid.New().String()[:8]),
		stopCh:   make(chan struct{}),
	}
}

// WorkerID returns the identifier used for queue locks.
func (w *Worker) WorkerID() string {
	return w.workerID
}

// Start polls the queue until the context is cancelled or Stop is
// called. It blocks; run it in a goroutine. Only one Start may be
// active at a time.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.isRunning = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.isRunning = false
		w.mu.Unlock()
	}()

	logger := w.log.WithContext(ctx).WithField("worker_id", w.workerID)
	logger.Infof("starting %d dispatch processors", w.config.Concurrency)

	workCh := make(chan uuid.UUID, w.config.BatchSize*2)

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, workCh, i)
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(workCh)
			w.wg.Wait()
			return ctx.Err()
		case <-w.stopCh:
			close(workCh)
			w.wg.Wait()
			return nil
		case <-ticker.C:
			ids, err := w.queue.Dequeue(ctx, w.config.BatchSize)
			if err != nil {
				logger.WithField("error", err).Warn("failed to poll queue")
				continue
			}

			for _, id := range ids {
				select {
				case workCh <- id:
				case <-w.stopCh:
					close(workCh)
					w.wg.Wait()
					return nil
				case <-ctx.Done():
					close(workCh)
					w.wg.Wait()
					return ctx.Err()
				}
			}
		}
	}
}

// Stop shuts the worker down and waits for in-flight work.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// IsRunning reports whether Start is currently active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning
}

func (w *Worker) processLoop(ctx context.Context, ch <-chan uuid.UUID, n int) {
	defer w.wg.Done()

	processorID := fmt.Sprintf("%s-%d", w.workerID, n)

	for id := range ch {
		if ctx.Err() != nil {
			return
		}

		if err := w.handler(ctx, id, processorID); err != nil {
			w.log.WithContext(ctx).WithFields(map[string]interface{}{
				"worker_id":       processorID,
				"notification_id": id.String(),
				"error":           err,
			}).Error("failed to process notification")
		}
	}
}
