package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"acadgen/internal/models"
)

// DocumentRepository handles document database operations with caching
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// GetBySourceRef retrieves a document by its source reference (with caching).
// Cached entries are keyed by ref only; a version bump lands in the cache
// on the next TTL expiry, and callers always fingerprint against the
// version they were handed.
func (r *DocumentRepository) GetBySourceRef(ctx context.Context, sourceRef string) (*models.Document, error) {
	if cached, found := r.db.documentCache.Get(sourceRef); found {
		return cached.(*models.Document), nil
	}

	var doc models.Document
	query := `
		SELECT id, source_ref, title, content, version, owner_id, created_at, updated_at
		FROM documents
		WHERE source_ref = $1
	`

	err := r.db.conn.GetContext(ctx, &doc, query, sourceRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	r.db.documentCache.Set(sourceRef, &doc)

	return &doc, nil
}

// GetVersion returns only the current version for a source reference.
// Used to validate cached results without pulling full content.
func (r *DocumentRepository) GetVersion(ctx context.Context, sourceRef string) (int, error) {
	if cached, found := r.db.documentCache.Get(sourceRef); found {
		return cached.(*models.Document).Version, nil
	}

	var version int
	query := `SELECT version FROM documents WHERE source_ref = $1`

	err := r.db.conn.GetContext(ctx, &version, query, sourceRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrDocumentNotFound
		}
		return 0, fmt.Errorf("failed to get document version: %w", err)
	}

	return version, nil
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, source_ref, title, content, version, owner_id, created_at, updated_at)
		VALUES (:id, :source_ref, :title, :content, :version, :owner_id, NOW(), NOW())
	`

	_, err := r.db.conn.NamedExecContext(ctx, query, doc)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// UpdateContent replaces a document's content and bumps its version,
// which retires cached generation results derived from the old text
func (r *DocumentRepository) UpdateContent(ctx context.Context, sourceRef, content string) error {
	query := `
		UPDATE documents
		SET content = $2, version = version + 1, updated_at = NOW()
		WHERE source_ref = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query, sourceRef, content)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrDocumentNotFound
	}

	r.db.documentCache.Delete(sourceRef)

	return nil
}
