package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"acadgen/internal/models"
)

// AuditRepository handles audit entry database operations
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a single audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO audit_entries (id, actor_id, action, object_ref, changes, origin, created_at)
		VALUES (:id, :actor_id, :action, :object_ref, :changes, :origin, :created_at)
	`

	_, err := r.db.conn.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// CreateInTx inserts an audit entry within an existing transaction
func (r *AuditRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO audit_entries (id, actor_id, action, object_ref, changes, origin, created_at)
		VALUES (:id, :actor_id, :action, :object_ref, :changes, :origin, :created_at)
	`

	_, err := tx.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// ListByActor returns the most recent audit entries for an actor
func (r *AuditRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []models.AuditEntry
	query := `
		SELECT id, actor_id, action, object_ref, changes, origin, created_at
		FROM audit_entries
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := r.db.conn.SelectContext(ctx, &entries, query, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	return entries, nil
}

// ListByAction returns recent audit entries for a given action type
func (r *AuditRepository) ListByAction(ctx context.Context, action string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []models.AuditEntry
	query := `
		SELECT id, actor_id, action, object_ref, changes, origin, created_at
		FROM audit_entries
		WHERE action = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := r.db.conn.SelectContext(ctx, &entries, query, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	return entries, nil
}
