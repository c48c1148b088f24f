package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

// ErrNoHandler marks events nobody registered a handler for. They go
// straight to the dead letter table.
var ErrNoHandler = errors.New("no handler for event type")

// Handler delivers one outbox event. A returned error schedules a retry.
type Handler func(ctx context.Context, evt *model.OutboxEvent) error

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

type OutboxProcessor struct {
	repo     repository.OutboxRepository
	config   OutboxProcessorConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	config OutboxProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &OutboxProcessor{
		repo:     repo,
		config:   config,
		logger:   log.With("outbox"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		handlers: map[string]Handler{},
	}
}

func (p *OutboxProcessor) Register(eventType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = h
}

func (p *OutboxProcessor) handler(eventType string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[eventType]
	return h, ok
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims up to BatchSize due events and settles each of them in
// the same transaction. It returns how many were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	events, err := p.repo.GetPendingEventsWithLock(ctx, tx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.OutboxBatchSize.Set(float64(len(events)))

	delivered := 0
	for _, evt := range events {
		ok, err := p.processEvent(ctx, tx, evt)
		if err != nil {
			return delivered, err
		}
		if ok {
			delivered++
		}
	}

	if err := tx.Commit(); err != nil {
		return delivered, fmt.Errorf("failed to commit outbox batch: %w", err)
	}
	return delivered, nil
}

// processEvent returns an error only when the event's new state could not
// be recorded.
func (p *OutboxProcessor) processEvent(ctx context.Context, tx *sql.Tx, evt *model.OutboxEvent) (bool, error) {
	err := ErrNoHandler
	if h, ok := p.handler(evt.EventType); ok {
		err = h(ctx, evt)
	}

	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		if err := p.repo.UpdateStatusTx(ctx, tx, evt.ID, model.OutboxStatusProcessed, nil, evt.RetryCount, nil); err != nil {
			return false, err
		}
		return true, nil
	}

	p.metrics.OutboxEventsFailed.Inc()
	msg := err.Error()
	evt.ErrorMessage = &msg
	evt.RetryCount++

	if errors.Is(err, ErrNoHandler) || evt.RetryCount >= p.config.RetryAttempts {
		p.logger.Error(err, "Outbox event exhausted",
			"event_id", evt.ID.String(), "event_type", evt.EventType, "retries", evt.RetryCount)
		p.metrics.OutboxEventsDeadLetter.Inc()
		if err := p.repo.UpdateStatusTx(ctx, tx, evt.ID, model.OutboxStatusFailed, &msg, evt.RetryCount, nil); err != nil {
			return false, err
		}
		return false, p.repo.MoveToDeadLetter(ctx, tx, evt)
	}

	retryAt := p.now().Add(p.backoff(evt.RetryCount))
	evt.RetryAt = &retryAt
	p.metrics.OutboxRetries.WithLabelValues(evt.EventType).Inc()
	p.logger.Warn("Outbox event failed, will retry",
		"event_id", evt.ID.String(), "event_type", evt.EventType,
		"retry_at", retryAt.Format(time.RFC3339), "error", msg)
	return false, p.repo.UpdateStatusTx(ctx, tx, evt.ID, model.OutboxStatusRetry, &msg, evt.RetryCount, &retryAt)
}

// backoff doubles RetryDelay per attempt.
func (p *OutboxProcessor) backoff(attempt int) time.Duration {
	d := p.config.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
