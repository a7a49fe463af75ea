package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"acadgen/internal/utils"
)

// BatchWriter ships a batch of logs to durable storage.
// S3Writer is the production implementation.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*GenerationLog) (string, error)
}

// BufferedSink accumulates generation logs in memory and flushes them
// in batches, either when the buffer fills or on a timer. Enqueue is
// non-blocking: when the buffer is full the record is dropped and
// counted, because the request path must not stall on log shipping.
type BufferedSink struct {
	writer        BatchWriter
	flushSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration
	logger        *utils.Logger

	mu      sync.Mutex
	buffer  []*GenerationLog
	dropped int64
	closed  bool

	flushCh chan struct{}
	doneCh  chan struct{}
	wg      sync.WaitGroup
}

// BufferedSinkConfig sizes the sink
type BufferedSinkConfig struct {
	// BufferSize bounds held records; beyond it Enqueue drops
	BufferSize int

	// FlushSize triggers an early flush when reached
	FlushSize int

	// FlushInterval is the maximum time a record sits unflushed
	FlushInterval time.Duration

	// WriteTimeout bounds a single WriteBatch call
	WriteTimeout time.Duration
}

// DefaultBufferedSinkConfig returns the standard sink sizing
func DefaultBufferedSinkConfig() BufferedSinkConfig {
	return BufferedSinkConfig{
		BufferSize:    10000,
		FlushSize:     500,
		FlushInterval: 30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// NewBufferedSink creates a sink and starts its flush loop
func NewBufferedSink(writer BatchWriter, cfg BufferedSinkConfig) *BufferedSink {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &BufferedSink{
		writer:        writer,
		flushSize:     cfg.FlushSize,
		flushInterval: cfg.FlushInterval,
		writeTimeout:  cfg.WriteTimeout,
		logger:        utils.NewLogger("log-sink"),
		buffer:        make([]*GenerationLog, 0, cfg.BufferSize),
		flushCh:       make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s
}

// Enqueue adds a record to the buffer. It never blocks.
func (s *BufferedSink) Enqueue(rec *GenerationLog) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("sink is closed")
	}

	if len(s.buffer) >= cap(s.buffer) {
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		if dropped%1000 == 1 {
			s.logger.Warn("Log buffer full, dropping records", "dropped_total", dropped)
		}
		return nil
	}

	s.buffer = append(s.buffer, rec)
	shouldFlush := len(s.buffer) >= s.flushSize
	s.mu.Unlock()

	if shouldFlush {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}

	return nil
}

// Dropped returns how many records were discarded due to backpressure
func (s *BufferedSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// flushLoop flushes on size triggers and on the interval timer
func (s *BufferedSink) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.doneCh:
			s.flush()
			return
		case <-s.flushCh:
			s.flush()
		case <-ticker.C:
			s.flush()
		}
	}
}

// flush swaps the buffer out and ships it
func (s *BufferedSink) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = make([]*GenerationLog, 0, cap(batch))
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if _, err := s.writer.WriteBatch(ctx, batch); err != nil {
		s.logger.Error("Failed to write log batch", "count", len(batch), "error", err)
	}
}

// Shutdown stops the flush loop after a final flush
func (s *BufferedSink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.doneCh)

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
