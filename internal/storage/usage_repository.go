package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"acadgen/internal/models"
)

// UsageRepository handles usage record database operations
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Create inserts a single usage record
func (r *UsageRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO usage_records (
			id, request_id, actor_id, operation_kind, source_ref, provider,
			attempt, input_tokens, output_tokens, latency_ms,
			cached, success, error_kind, created_at
		) VALUES (
			:id, :request_id, :actor_id, :operation_kind, :source_ref, :provider,
			:attempt, :input_tokens, :output_tokens, :latency_ms,
			:cached, :success, :error_kind, :created_at
		)
	`

	_, err := r.db.conn.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	return nil
}

// CreateInTx inserts a usage record within an existing transaction
func (r *UsageRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, record *models.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO usage_records (
			id, request_id, actor_id, operation_kind, source_ref, provider,
			attempt, input_tokens, output_tokens, latency_ms,
			cached, success, error_kind, created_at
		) VALUES (
			:id, :request_id, :actor_id, :operation_kind, :source_ref, :provider,
			:attempt, :input_tokens, :output_tokens, :latency_ms,
			:cached, :success, :error_kind, :created_at
		)
	`

	_, err := tx.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	return nil
}

// ListByActor returns the most recent usage records for an actor
func (r *UsageRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var records []models.UsageRecord
	query := `
		SELECT id, request_id, actor_id, operation_kind, source_ref, provider,
		       attempt, input_tokens, output_tokens, latency_ms,
		       cached, success, error_kind, created_at
		FROM usage_records
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := r.db.conn.SelectContext(ctx, &records, query, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}

	return records, nil
}

// ListByRequest returns all attempt records for a generation request,
// oldest first, so the attempt sequence reads in order
func (r *UsageRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	query := `
		SELECT id, request_id, actor_id, operation_kind, source_ref, provider,
		       attempt, input_tokens, output_tokens, latency_ms,
		       cached, success, error_kind, created_at
		FROM usage_records
		WHERE request_id = $1
		ORDER BY created_at ASC
	`

	err := r.db.conn.SelectContext(ctx, &records, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}

	return records, nil
}

// ActorTotals summarizes an actor's spend over a time window
type ActorTotals struct {
	Requests     int `db:"requests"`
	InputTokens  int `db:"input_tokens"`
	OutputTokens int `db:"output_tokens"`
	CacheHits    int `db:"cache_hits"`
}

// TotalsByActor aggregates usage for an actor since the given time
func (r *UsageRepository) TotalsByActor(ctx context.Context, actorID string, since time.Time) (*ActorTotals, error) {
	var totals ActorTotals
	query := `
		SELECT COUNT(DISTINCT request_id) AS requests,
		       COALESCE(SUM(input_tokens), 0) AS input_tokens,
		       COALESCE(SUM(output_tokens), 0) AS output_tokens,
		       COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) AS cache_hits
		FROM usage_records
		WHERE actor_id = $1 AND created_at >= $2
	`

	err := r.db.conn.GetContext(ctx, &totals, query, actorID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	return &totals, nil
}
