package logging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]*GenerationLog
}

func (w *fakeWriter) WriteBatch(ctx context.Context, records []*GenerationLog) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, records)
	return "fake-key", nil
}

func (w *fakeWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func (w *fakeWriter) batchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func sampleLog(requestID string) *GenerationLog {
	return &GenerationLog{
		Timestamp: time.Now(),
		RequestID: requestID,
		ActorID:   "actor-1",
		Operation: "summarize",
		SourceRef: "doc-1",
	}
}

func TestBufferedSink_FlushesOnSize(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewBufferedSink(writer, BufferedSinkConfig{
		BufferSize:    100,
		FlushSize:     3,
		FlushInterval: time.Hour,
	})
	defer sink.Shutdown(context.Background())

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Enqueue(sampleLog("req-1")))
	}

	assert.Eventually(t, func() bool { return writer.total() == 3 },
		time.Second, 10*time.Millisecond)
}

func TestBufferedSink_FlushesOnInterval(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewBufferedSink(writer, BufferedSinkConfig{
		BufferSize:    100,
		FlushSize:     1000,
		FlushInterval: 30 * time.Millisecond,
	})
	defer sink.Shutdown(context.Background())

	require.NoError(t, sink.Enqueue(sampleLog("req-1")))

	assert.Eventually(t, func() bool { return writer.total() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestBufferedSink_ShutdownFlushesRemainder(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewBufferedSink(writer, BufferedSinkConfig{
		BufferSize:    100,
		FlushSize:     1000,
		FlushInterval: time.Hour,
	})

	require.NoError(t, sink.Enqueue(sampleLog("req-1")))
	require.NoError(t, sink.Enqueue(sampleLog("req-2")))

	require.NoError(t, sink.Shutdown(context.Background()))
	assert.Equal(t, 2, writer.total())

	// Closed sink rejects further records
	assert.Error(t, sink.Enqueue(sampleLog("req-3")))
}

func TestBufferedSink_DropsWhenFull(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewBufferedSink(writer, BufferedSinkConfig{
		BufferSize:    2,
		FlushSize:     1000,
		FlushInterval: time.Hour,
	})
	defer sink.Shutdown(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Enqueue(sampleLog("req-1")))
	}

	assert.Equal(t, int64(3), sink.Dropped())
}

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()
	assert.NoError(t, sink.Enqueue(sampleLog("req-1")))
}
