package recorder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"acadgen/internal/models"
	"acadgen/internal/queue"
)

// mockUsageStore simulates database operations for testing
type mockUsageStore struct {
	mu        sync.Mutex
	records   []*models.UsageRecord
	failCount int
	maxFails  int
}

func newMockUsageStore() *mockUsageStore {
	return &mockUsageStore{records: make([]*models.UsageRecord, 0)}
}

func (m *mockUsageStore) Create(ctx context.Context, record *models.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCount < m.maxFails {
		m.failCount++
		return fmt.Errorf("simulated database error")
	}

	m.records = append(m.records, record)
	return nil
}

func (m *mockUsageStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockUsageStore) setFailures(maxFails int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount = 0
	m.maxFails = maxFails
}

type mockAuditStore struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (m *mockAuditStore) Create(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func testConfig() *queue.Config {
	return &queue.Config{
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
		MaxRetries:   2,
		RetryBackoff: 10 * time.Millisecond,
		QueueName:    "records-test",
	}
}

func newTestRecorder(t *testing.T) (*Recorder, *mockUsageStore, *mockAuditStore, *queue.MemoryDeadLetterQueue) {
	t.Helper()

	cfg := testConfig()
	usageQueue := queue.NewMemoryQueue(cfg)
	auditQueue := queue.NewMemoryQueue(cfg)
	dlq := queue.NewMemoryDeadLetterQueue()
	usageStore := newMockUsageStore()
	auditStore := &mockAuditStore{}

	rec := New(usageQueue, auditQueue, dlq, usageStore, auditStore, cfg)
	return rec, usageStore, auditStore, dlq
}

func sampleRecord() *models.UsageRecord {
	return &models.UsageRecord{
		ID:           uuid.New(),
		RequestID:    uuid.New(),
		ActorID:      "actor-1",
		Kind:         models.OpSummarize,
		SourceRef:    "doc-1",
		Provider:     "gemini",
		Attempt:      1,
		InputTokens:  120,
		OutputTokens: 80,
		Success:      true,
		CreatedAt:    time.Now(),
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestRecorderPersistsUsageRecords(t *testing.T) {
	rec, usageStore, _, _ := newTestRecorder(t)

	ctx := context.Background()
	rec.Start(ctx)
	defer rec.Stop()

	for i := 0; i < 5; i++ {
		rec.RecordUsage(ctx, sampleRecord())
	}

	waitFor(t, 2*time.Second, func() bool { return usageStore.count() == 5 })
}

func TestRecorderPersistsAuditEntries(t *testing.T) {
	rec, _, auditStore, _ := newTestRecorder(t)

	ctx := context.Background()
	rec.Start(ctx)
	defer rec.Stop()

	rec.RecordAudit(ctx, &models.AuditEntry{
		ID:        uuid.New(),
		ActorID:   "actor-1",
		Action:    models.AuditActionRateLimited,
		ObjectRef: "doc-1",
		CreatedAt: time.Now(),
	})

	waitFor(t, 2*time.Second, func() bool { return auditStore.count() == 1 })
}

func TestRecorderRetriesTransientFailures(t *testing.T) {
	rec, usageStore, _, dlq := newTestRecorder(t)
	usageStore.setFailures(2)

	ctx := context.Background()
	rec.Start(ctx)
	defer rec.Stop()

	rec.RecordUsage(ctx, sampleRecord())

	// Two failures fit within MaxRetries, so the record lands in the
	// store rather than the DLQ
	waitFor(t, 2*time.Second, func() bool { return usageStore.count() == 1 })

	items, err := dlq.List(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list DLQ: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty DLQ, got %d items", len(items))
	}
}

func TestRecorderDeadLettersAfterMaxRetries(t *testing.T) {
	rec, usageStore, _, dlq := newTestRecorder(t)
	usageStore.setFailures(100)

	ctx := context.Background()
	rec.Start(ctx)
	defer rec.Stop()

	rec.RecordUsage(ctx, sampleRecord())

	waitFor(t, 2*time.Second, func() bool {
		items, err := dlq.List(ctx, 0)
		return err == nil && len(items) == 1
	})

	if usageStore.count() != 0 {
		t.Errorf("expected no persisted records, got %d", usageStore.count())
	}
}

func TestRecorderRetryDeadLetterItem(t *testing.T) {
	rec, usageStore, _, dlq := newTestRecorder(t)
	usageStore.setFailures(100)

	ctx := context.Background()
	rec.Start(ctx)

	rec.RecordUsage(ctx, sampleRecord())

	waitFor(t, 2*time.Second, func() bool {
		items, err := dlq.List(ctx, 0)
		return err == nil && len(items) == 1
	})

	// Heal the store and replay the parked record
	usageStore.setFailures(0)

	items, err := dlq.List(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list DLQ: %v", err)
	}
	if err := rec.RetryDeadLetterItem(ctx, items[0].ID); err != nil {
		t.Fatalf("failed to retry DLQ item: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return usageStore.count() == 1 })

	items, err = dlq.List(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list DLQ: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty DLQ after retry, got %d items", len(items))
	}

	rec.Stop()
}

func TestRecorderStopDrainsQueue(t *testing.T) {
	rec, usageStore, _, _ := newTestRecorder(t)

	ctx := context.Background()
	rec.Start(ctx)

	for i := 0; i < 3; i++ {
		rec.RecordUsage(ctx, sampleRecord())
	}

	if err := rec.Stop(); err != nil {
		t.Fatalf("failed to stop recorder: %v", err)
	}

	if usageStore.count() != 3 {
		t.Errorf("expected 3 records after drain, got %d", usageStore.count())
	}
}
