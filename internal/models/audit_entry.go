package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by this service.
const (
	AuditActionRateLimited   = "generation.rate_limited"
	AuditActionQuotaExceeded = "generation.quota_exceeded"
	AuditActionDeniedAccess  = "access.denied"
)

// AuditEntry is an append-only record of a security-relevant action.
// It is orthogonal to UsageRecord: usage tracks upstream spend, audit
// tracks who was refused what and why.
type AuditEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	Action    string    `db:"action" json:"action"`
	ObjectRef string    `db:"object_ref" json:"object_ref"`
	Changes   JSONB     `db:"changes" json:"changes,omitempty"`
	Origin    string    `db:"origin" json:"origin,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
