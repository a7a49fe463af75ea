package logging

import "time"

// GenerationLog is the structure shipped to S3 for offline analysis.
// One record per completed generation request, after all attempts.
type GenerationLog struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
	ActorID      string    `json:"actor_id"`
	Operation    string    `json:"operation"`
	SourceRef    string    `json:"source_ref"`
	Fingerprint  string    `json:"fingerprint"`
	Provider     string    `json:"provider,omitempty"`
	Attempts     int       `json:"attempts"`
	Cached       bool      `json:"cached"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	Error        string    `json:"error,omitempty"`
}

// Sink receives generation logs from the orchestrator.
type Sink interface {
	Enqueue(rec *GenerationLog) error
}

// NoopSink discards logs. Used when the S3 sink is not configured.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *GenerationLog) error {
	return nil
}
