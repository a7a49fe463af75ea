// Package recorder persists usage records and audit entries off the
// request path. Callers enqueue and move on: a durable write failure
// is retried, dead-lettered, and logged, but never surfaces to the
// generation caller.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"acadgen/internal/models"
	"acadgen/internal/queue"
	"acadgen/internal/utils"
)

// UsageStore is the durable sink for usage records
type UsageStore interface {
	Create(ctx context.Context, record *models.UsageRecord) error
}

// AuditStore is the durable sink for audit entries
type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
}

// Recorder batches usage and audit writes through queues
type Recorder struct {
	usageQueue queue.Queue
	auditQueue queue.Queue
	dlq        queue.DeadLetterQueue

	usageStore UsageStore
	auditStore AuditStore

	config *queue.Config
	logger *utils.Logger

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// New creates a recorder over the given queues and stores
func New(usageQueue, auditQueue queue.Queue, dlq queue.DeadLetterQueue, usageStore UsageStore, auditStore AuditStore, config *queue.Config) *Recorder {
	if config == nil {
		config = queue.DefaultConfig("records")
	}

	return &Recorder{
		usageQueue:  usageQueue,
		auditQueue:  auditQueue,
		dlq:         dlq,
		usageStore:  usageStore,
		auditStore:  auditStore,
		config:      config,
		logger:      utils.NewLogger("recorder"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (r *Recorder) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop gracefully stops the worker after a final drain pass
func (r *Recorder) Stop() error {
	close(r.stopChan)
	<-r.stoppedChan
	return nil
}

// RecordUsage enqueues a usage record. It never returns an error:
// an enqueue failure is logged and the record is written to the dead
// letter queue so it can be replayed.
func (r *Recorder) RecordUsage(ctx context.Context, record *models.UsageRecord) {
	if err := r.usageQueue.Enqueue(ctx, record); err != nil {
		r.logger.Error("Failed to enqueue usage record",
			"request_id", record.RequestID,
			"error", err)
		r.deadLetter(ctx, record, err)
	}
}

// RecordAudit enqueues an audit entry, same contract as RecordUsage
func (r *Recorder) RecordAudit(ctx context.Context, entry *models.AuditEntry) {
	if err := r.auditQueue.Enqueue(ctx, entry); err != nil {
		r.logger.Error("Failed to enqueue audit entry",
			"actor_id", entry.ActorID,
			"action", entry.Action,
			"error", err)
		r.deadLetter(ctx, entry, err)
	}
}

// run is the main worker loop
func (r *Recorder) run(ctx context.Context) {
	defer close(r.stoppedChan)

	for {
		select {
		case <-r.stopChan:
			r.drain(ctx)
			r.logger.Info("Recorder stopping")
			return
		case <-ctx.Done():
			r.logger.Info("Recorder context cancelled")
			return
		default:
			r.processUsageBatch(ctx)
			r.processAuditBatch(ctx)
		}
	}
}

// drain flushes whatever is still queued before shutdown
func (r *Recorder) drain(ctx context.Context) {
	deadline := time.Now().Add(r.config.BatchTimeout)
	for time.Now().Before(deadline) {
		usageLen, _ := r.usageQueue.Length(ctx)
		auditLen, _ := r.auditQueue.Length(ctx)
		if usageLen == 0 && auditLen == 0 {
			return
		}
		r.processUsageBatch(ctx)
		r.processAuditBatch(ctx)
	}
}

// processUsageBatch dequeues and persists a batch of usage records
func (r *Recorder) processUsageBatch(ctx context.Context) {
	items, err := r.usageQueue.DequeueWithTimeout(ctx, r.config.BatchSize, r.config.BatchTimeout)
	if err != nil {
		r.logger.Error("Failed to dequeue usage records", "error", err)
		time.Sleep(1 * time.Second)
		return
	}

	for _, item := range items {
		var record models.UsageRecord
		if err := unmarshalItem(item, &record); err != nil {
			r.logger.Error("Failed to unmarshal usage record", "error", err)
			continue
		}

		insert := func(ctx context.Context) error {
			return r.usageStore.Create(ctx, &record)
		}
		if err := r.persistWithRetry(ctx, insert); err != nil {
			r.logger.Error("Failed to persist usage record",
				"request_id", record.RequestID,
				"error", err)
			r.deadLetter(ctx, &record, err)
		}
	}
}

// processAuditBatch dequeues and persists a batch of audit entries
func (r *Recorder) processAuditBatch(ctx context.Context) {
	items, err := r.auditQueue.DequeueWithTimeout(ctx, r.config.BatchSize, r.config.BatchTimeout)
	if err != nil {
		r.logger.Error("Failed to dequeue audit entries", "error", err)
		time.Sleep(1 * time.Second)
		return
	}

	for _, item := range items {
		var entry models.AuditEntry
		if err := unmarshalItem(item, &entry); err != nil {
			r.logger.Error("Failed to unmarshal audit entry", "error", err)
			continue
		}

		insert := func(ctx context.Context) error {
			return r.auditStore.Create(ctx, &entry)
		}
		if err := r.persistWithRetry(ctx, insert); err != nil {
			r.logger.Error("Failed to persist audit entry",
				"actor_id", entry.ActorID,
				"action", entry.Action,
				"error", err)
			r.deadLetter(ctx, &entry, err)
		}
	}
}

// persistWithRetry runs an insert with exponential backoff
func (r *Recorder) persistWithRetry(ctx context.Context, insert func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			r.logger.Debug("Retrying insert", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if err := insert(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// deadLetter parks an item that could not be persisted
func (r *Recorder) deadLetter(ctx context.Context, item interface{}, cause error) {
	if r.dlq == nil {
		return
	}
	if err := r.dlq.Add(ctx, item, cause); err != nil {
		r.logger.Error("Failed to add to dead letter queue", "error", err)
	} else {
		r.logger.Warn("Item moved to DLQ", "error", cause)
	}
}

// RetryDeadLetterItem re-enqueues a parked usage record by DLQ id
func (r *Recorder) RetryDeadLetterItem(ctx context.Context, id string) error {
	if r.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := r.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID == id {
			if err := r.usageQueue.Enqueue(ctx, dlItem.Item); err != nil {
				return fmt.Errorf("failed to re-enqueue item: %w", err)
			}
			if err := r.dlq.Remove(ctx, id); err != nil {
				return fmt.Errorf("failed to remove from DLQ: %w", err)
			}
			return nil
		}
	}

	return fmt.Errorf("item not found in dead letter queue")
}

// unmarshalItem converts a queue item back into its record type
func unmarshalItem(item interface{}, target interface{}) error {
	switch v := item.(type) {
	case []byte:
		return json.Unmarshal(v, target)
	case json.RawMessage:
		return json.Unmarshal(v, target)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return json.Unmarshal(data, target)
	}
}
