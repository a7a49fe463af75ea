package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acadgen/internal/models"
)

// fakeProvider returns scripted responses per call
type fakeProvider struct {
	name  string
	calls int
	fn    func(call int) (*Result, error)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	p.calls++
	return p.fn(p.calls)
}

func (p *fakeProvider) Close() error { return nil }

func newTestFailover(primary, secondary Provider) (*Failover, *[]time.Duration) {
	f := NewFailover(primary, secondary, FailoverConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		CallTimeout: time.Minute,
	})

	// Capture backoff delays instead of sleeping
	var slept []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	f.jitter = func(max time.Duration) time.Duration { return 0 }

	return f, &slept
}

func okResult() *Result {
	return &Result{Text: "generated text", InputTokens: 100, OutputTokens: 50}
}

func transientErr() error {
	return &Error{Kind: ErrServer, Status: 503, Message: "upstream unavailable"}
}

func TestFailover_SucceedsFirstAttempt(t *testing.T) {
	primary := &fakeProvider{name: "gemini", fn: func(call int) (*Result, error) {
		return okResult(), nil
	}}
	f, slept := newTestFailover(primary, nil)

	var attempts []Attempt
	res, provider, n, err := f.Generate(context.Background(), Request{Kind: models.OpSummarize, Prompt: "p"}, func(a Attempt) {
		attempts = append(attempts, a)
	})

	require.NoError(t, err)
	assert.Equal(t, "generated text", res.Text)
	assert.Equal(t, "gemini", provider)
	assert.Equal(t, 1, n)
	assert.Len(t, attempts, 1)
	assert.Empty(t, *slept)
}

func TestFailover_RetriesTransientThenSucceeds(t *testing.T) {
	primary := &fakeProvider{name: "gemini", fn: func(call int) (*Result, error) {
		if call < 3 {
			return nil, transientErr()
		}
		return okResult(), nil
	}}
	f, slept := newTestFailover(primary, nil)

	var attempts []Attempt
	res, provider, n, err := f.Generate(context.Background(), Request{Prompt: "p"}, func(a Attempt) {
		attempts = append(attempts, a)
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "gemini", provider)
	assert.Equal(t, 3, n)
	require.Len(t, attempts, 3)
	assert.Error(t, attempts[0].Err)
	assert.Error(t, attempts[1].Err)
	assert.NoError(t, attempts[2].Err)

	// Backoff delays must strictly increase
	require.Len(t, *slept, 2)
	assert.Equal(t, time.Second, (*slept)[0])
	assert.Equal(t, 2*time.Second, (*slept)[1])
}

func TestFailover_FatalErrorNotRetried(t *testing.T) {
	primary := &fakeProvider{name: "gemini", fn: func(call int) (*Result, error) {
		return nil, &Error{Kind: ErrInvalid, Status: 400, Message: "bad input"}
	}}
	secondary := &fakeProvider{name: "openai", fn: func(call int) (*Result, error) {
		return okResult(), nil
	}}
	f, _ := newTestFailover(primary, secondary)

	_, _, n, err := f.Generate(context.Background(), Request{Prompt: "p"}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls, "fatal errors must not fall over to the secondary")
	assert.Equal(t, ErrInvalid, Classify(err))
}

func TestFailover_FallsOverToSecondary(t *testing.T) {
	primary := &fakeProvider{name: "gemini", fn: func(call int) (*Result, error) {
		return nil, transientErr()
	}}
	secondary := &fakeProvider{name: "openai", fn: func(call int) (*Result, error) {
		return okResult(), nil
	}}
	f, _ := newTestFailover(primary, secondary)

	var attempts []Attempt
	res, provider, n, err := f.Generate(context.Background(), Request{Prompt: "p"}, func(a Attempt) {
		attempts = append(attempts, a)
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, 4, n)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 1, secondary.calls)

	require.Len(t, attempts, 4)
	assert.Equal(t, "openai", attempts[3].Provider)
}

func TestFailover_TerminalFailure(t *testing.T) {
	primary := &fakeProvider{name: "gemini", fn: func(call int) (*Result, error) {
		return nil, transientErr()
	}}
	secondary := &fakeProvider{name: "openai", fn: func(call int) (*Result, error) {
		return nil, &Error{Kind: ErrThrottled, Status: 429, Message: "quota exceeded"}
	}}
	f, _ := newTestFailover(primary, secondary)

	_, _, n, err := f.Generate(context.Background(), Request{Prompt: "p"}, nil)

	require.Error(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, ErrThrottled, Classify(err))
}

func TestFailover_NoSecondaryConfigured(t *testing.T) {
	primary := &fakeProvider{name: "gemini", fn: func(call int) (*Result, error) {
		return nil, transientErr()
	}}
	f, _ := newTestFailover(primary, nil)

	_, _, n, err := f.Generate(context.Background(), Request{Prompt: "p"}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, n)
}

func TestFailover_BackoffCappedAtMaxDelay(t *testing.T) {
	primary := &fakeProvider{name: "gemini", fn: func(call int) (*Result, error) {
		return nil, transientErr()
	}}
	f := NewFailover(primary, nil, FailoverConfig{
		MaxAttempts: 6,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
		CallTimeout: time.Minute,
	})

	var slept []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	f.jitter = func(max time.Duration) time.Duration { return 0 }

	_, _, _, err := f.Generate(context.Background(), Request{Prompt: "p"}, nil)
	require.Error(t, err)

	require.Len(t, slept, 5)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second,
	}, slept)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"provider timeout", &Error{Kind: ErrTimeout}, ErrTimeout},
		{"provider throttled", &Error{Kind: ErrThrottled}, ErrThrottled},
		{"deadline exceeded", context.DeadlineExceeded, ErrTimeout},
		{"unknown error", assert.AnError, ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
