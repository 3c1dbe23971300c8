package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"posbridge/internal/clickhouse"
	"posbridge/models"
	"posbridge/pkg/logger"
)

// QueueConsumer delivers raw message bodies to a handler until the queue
// closes.
type QueueConsumer interface {
	ConsumeQueue(queueName string, handler func([]byte) error) error
}

// SyncLogStore is where sync events end up for reporting.
type SyncLogStore interface {
	InsertSyncEvent(ctx context.Context, row clickhouse.SyncLogRow) error
	InsertUnmappedItems(ctx context.Context, evt models.OrderSyncEvent) error
}

// SyncLogWorker copies order sync events from the queue into ClickHouse:
// one log row per event plus one row per unmapped product line. A message
// is requeued only while its log row has not been written.
type SyncLogWorker struct {
	consumer  QueueConsumer
	store     SyncLogStore
	queueName string

	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

func NewSyncLogWorker(consumer QueueConsumer, store SyncLogStore, queueName string) *SyncLogWorker {
	return &SyncLogWorker{
		consumer:   consumer,
		store:      store,
		queueName:  queueName,
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
		now:        time.Now,
	}
}

func (w *SyncLogWorker) Start() error {
	logger.L().Infof("🚀 Starting sync log worker for queue: %s", w.queueName)
	return w.consumer.ConsumeQueue(w.queueName, w.handleMessage)
}

func (w *SyncLogWorker) handleMessage(body []byte) error {
	var evt models.OrderSyncEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		// Requeueing a message that can never decode would spin forever.
		logger.L().WithError(err).Errorf("✗ Dropping undecodable sync event (%d bytes)", len(body))
		return nil
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = w.now().UTC()
	}

	log := logger.WithRequest(evt.RequestID).WithField("city", evt.City)
	log.Infof("📦 Processing sync event: type=%s, order=%s", evt.Event, evt.ExternalNumber)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	row := clickhouse.RowFromEvent(evt)
	if err := w.retry(ctx, "sync log", func() error { return w.store.InsertSyncEvent(ctx, row) }); err != nil {
		return err
	}
	// The log row is in; a requeue now would write it twice. Unmapped rows
	// are best effort from here on.
	if err := w.retry(ctx, "unmapped items", func() error { return w.store.InsertUnmappedItems(ctx, evt) }); err != nil {
		log.WithError(err).Errorf("✗ Unmapped items lost for order %s (%d lines)", evt.ExternalNumber, len(evt.Unmapped))
	}

	log.Infof("✓ Sync event stored: event=%s, mapped=%d, unmapped=%d", evt.Event, evt.MappedItems, len(evt.Unmapped))
	return nil
}

// retry runs fn up to maxRetries times, doubling the pause between tries.
func (w *SyncLogWorker) retry(ctx context.Context, what string, fn func() error) error {
	delay := w.retryDelay
	var err error
	for i := 0; i < w.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("failed to insert %s: %w", what, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		logger.L().Warnf("Retry %d/%d: insert %s failed: %v", i+1, w.maxRetries, what, err)
	}
	return fmt.Errorf("failed to insert %s after %d retries: %w", what, w.maxRetries, err)
}
