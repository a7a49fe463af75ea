package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one row per upstream attempt (or one row per cache hit).
// Rows are append-only; nothing updates them after insertion.
type UsageRecord struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	RequestID    uuid.UUID     `db:"request_id" json:"request_id"`
	ActorID      string        `db:"actor_id" json:"actor_id"`
	Kind         OperationKind `db:"operation_kind" json:"operation_kind"`
	SourceRef    string        `db:"source_ref" json:"source_ref"`
	Provider     string        `db:"provider" json:"provider"`
	Attempt      int           `db:"attempt" json:"attempt"`
	InputTokens  int           `db:"input_tokens" json:"input_tokens"`
	OutputTokens int           `db:"output_tokens" json:"output_tokens"`
	LatencyMS    int           `db:"latency_ms" json:"latency_ms"`
	Cached       bool          `db:"cached" json:"cached"`
	Success      bool          `db:"success" json:"success"`
	ErrorKind    string        `db:"error_kind" json:"error_kind,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// TotalTokens returns the combined token count for the attempt
func (r *UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}
