package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a stored source text that generation operations read.
// Version is bumped whenever the content changes, which invalidates
// any cached results derived from the older content.
type Document struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SourceRef string    `db:"source_ref" json:"source_ref"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Version   int       `db:"version" json:"version"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
