// Package orchestrator ties the generation pipeline together: document
// lookup, result cache, rate limiting, quota, dedup dispatch, and the
// failover upstream client. It is the only package that sees the whole
// request lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"acadgen/internal/cache"
	"acadgen/internal/dispatch"
	"acadgen/internal/logging"
	"acadgen/internal/models"
	"acadgen/internal/providers"
	"acadgen/internal/quota"
	"acadgen/internal/ratelimit"
	"acadgen/internal/utils"
)

// Status classifies the outcome of a generation call.
type Status string

const (
	// StatusCompleted means a result is available now, from cache or
	// from a synchronous upstream call
	StatusCompleted Status = "completed"

	// StatusAccepted means the job is running; poll with the request ID
	StatusAccepted Status = "accepted"

	// StatusRateLimited means the actor exhausted its window budget
	StatusRateLimited Status = "rate_limited"

	// StatusQuotaExceeded means the actor spent its monthly tokens
	StatusQuotaExceeded Status = "quota_exceeded"

	// StatusBusy means the service itself is saturated. Unrelated to
	// the actor's own budget.
	StatusBusy Status = "busy"

	// StatusFailed means all upstream attempts were exhausted
	StatusFailed Status = "failed"
)

// Outcome is the result of a generation call.
type Outcome struct {
	Status     Status
	RequestID  uuid.UUID
	Result     *models.GenerationResult
	Cached     bool
	RetryAfter time.Duration
	ErrorKind  string
}

// Actor identifies the caller for limiting and accounting.
type Actor struct {
	ID      string
	Trusted bool
}

// DocumentSource resolves source references into documents.
// Satisfied by storage.DocumentRepository.
type DocumentSource interface {
	GetBySourceRef(ctx context.Context, sourceRef string) (*models.Document, error)
}

// Recorder receives usage and audit records off the request path.
// Satisfied by recorder.Recorder.
type Recorder interface {
	RecordUsage(ctx context.Context, record *models.UsageRecord)
	RecordAudit(ctx context.Context, entry *models.AuditEntry)
}

// Config holds orchestrator tuning.
type Config struct {
	// SyncWait is how long a call waits for the job before returning
	// StatusAccepted with a pollable request ID
	SyncWait time.Duration
}

// DefaultConfig returns standard orchestrator tuning
func DefaultConfig() Config {
	return Config{SyncWait: 25 * time.Second}
}

// Orchestrator runs generation operations end to end.
type Orchestrator struct {
	cfg        Config
	documents  DocumentSource
	results    cache.ResultStore
	limiter    ratelimit.Limiter
	quota      quota.Service
	failover   *providers.Failover
	recorder   Recorder
	sink       logging.Sink
	logger     *utils.Logger
	dispatcher *dispatch.Dispatcher
}

// New wires an orchestrator and starts its dispatcher
func New(cfg Config, dispatchCfg dispatch.Config, documents DocumentSource, results cache.ResultStore,
	limiter ratelimit.Limiter, quotaSvc quota.Service, failover *providers.Failover,
	rec Recorder, sink logging.Sink) *Orchestrator {

	if cfg.SyncWait <= 0 {
		cfg.SyncWait = 25 * time.Second
	}
	if sink == nil {
		sink = logging.NewNoopSink()
	}

	o := &Orchestrator{
		cfg:       cfg,
		documents: documents,
		results:   results,
		limiter:   limiter,
		quota:     quotaSvc,
		failover:  failover,
		recorder:  rec,
		sink:      sink,
		logger:    utils.NewLogger("orchestrator"),
	}
	o.dispatcher = dispatch.New(dispatchCfg, o.execute)

	return o
}

// Summarize produces a bounded summary of a document
func (o *Orchestrator) Summarize(ctx context.Context, actor Actor, sourceRef string, maxWords int) (*Outcome, error) {
	return o.Generate(ctx, actor, models.OpSummarize, sourceRef, models.GenerationInput{MaxWords: maxWords})
}

// GenerateQuestions produces quiz questions over a document
func (o *Orchestrator) GenerateQuestions(ctx context.Context, actor Actor, sourceRef string, qt models.QuestionType, count int) (*Outcome, error) {
	return o.Generate(ctx, actor, models.OpGenerateQuestions, sourceRef, models.GenerationInput{QuestionType: qt, Count: count})
}

// AskQuestion answers a free-form question grounded in a document
func (o *Orchestrator) AskQuestion(ctx context.Context, actor Actor, sourceRef, question string) (*Outcome, error) {
	return o.Generate(ctx, actor, models.OpAnswerQuestion, sourceRef, models.GenerationInput{Question: question})
}

// Generate runs one generation operation through the full pipeline
func (o *Orchestrator) Generate(ctx context.Context, actor Actor, kind models.OperationKind, sourceRef string, input models.GenerationInput) (*Outcome, error) {
	if !kind.IsValid() {
		return nil, ErrInvalidOperation
	}
	if err := validateInput(kind, input); err != nil {
		return nil, err
	}

	doc, err := o.documents.GetBySourceRef(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	version := strconv.Itoa(doc.Version)

	fingerprint := cache.Fingerprint(kind, sourceRef, version, input)

	// Cache first: hits cost nothing and bypass every guard
	if entry, hit := o.lookupCache(ctx, fingerprint, version); hit {
		o.recordCacheHit(ctx, actor, kind, sourceRef, fingerprint, entry)
		return &Outcome{
			Status: StatusCompleted,
			Result: entry.Result,
			Cached: true,
		}, nil
	}

	if !actor.Trusted {
		if outcome := o.checkLimits(ctx, actor, kind, sourceRef); outcome != nil {
			return outcome, nil
		}
	}

	req := &models.GenerationRequest{
		ID:            uuid.New(),
		Fingerprint:   fingerprint,
		Kind:          kind,
		ActorID:       actor.ID,
		SourceRef:     sourceRef,
		SourceVersion: version,
		Input:         input,
		CreatedAt:     time.Now(),
	}

	job, attached, err := o.dispatcher.Submit(req)
	if err != nil {
		if errors.Is(err, dispatch.ErrBackpressure) {
			o.logger.Warn("Rejecting request under backpressure",
				"actor_id", actor.ID, "kind", kind)
			return &Outcome{Status: StatusBusy, ErrorKind: "backpressure"}, nil
		}
		return nil, err
	}
	if attached {
		o.logger.Debug("Attached to in-flight request",
			"fingerprint", fingerprint, "request_id", job.Request.ID)
	}

	result, jerr, done := o.dispatcher.Await(ctx, job, o.cfg.SyncWait)
	if !done {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Outcome{Status: StatusAccepted, RequestID: job.Request.ID}, nil
	}
	if jerr != nil {
		return &Outcome{
			Status:    StatusFailed,
			RequestID: job.Request.ID,
			ErrorKind: errorKind(jerr),
		}, nil
	}

	return &Outcome{
		Status:    StatusCompleted,
		RequestID: job.Request.ID,
		Result:    result,
	}, nil
}

// Poll reports the state of a previously accepted request
func (o *Orchestrator) Poll(ctx context.Context, requestID string) (*Outcome, error) {
	job, err := o.dispatcher.Lookup(requestID)
	if err != nil {
		return nil, err
	}

	select {
	case <-job.Done():
		result, jerr := job.Outcome()
		if jerr != nil {
			return &Outcome{
				Status:    StatusFailed,
				RequestID: job.Request.ID,
				ErrorKind: errorKind(jerr),
			}, nil
		}
		return &Outcome{
			Status:    StatusCompleted,
			RequestID: job.Request.ID,
			Result:    result,
		}, nil
	default:
		return &Outcome{Status: StatusAccepted, RequestID: job.Request.ID}, nil
	}
}

// Shutdown drains the dispatcher
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.dispatcher.Shutdown(ctx)
}

// lookupCache swallows cache errors; a broken cache degrades to a
// cache miss, never to a failed request
func (o *Orchestrator) lookupCache(ctx context.Context, fingerprint, version string) (*cache.Entry, bool) {
	entry, hit, err := o.results.Lookup(ctx, fingerprint, version)
	if err != nil {
		o.logger.Warn("Cache lookup failed", "error", err)
		return nil, false
	}
	return entry, hit
}

// checkLimits applies the rate limiter and then the monthly quota.
// A non-nil outcome means the request was refused.
func (o *Orchestrator) checkLimits(ctx context.Context, actor Actor, kind models.OperationKind, sourceRef string) *Outcome {
	decision, err := o.limiter.Allow(ctx, actor.ID, kind)
	if err != nil {
		// A broken limiter fails open; generation availability wins
		o.logger.Warn("Rate limiter error, allowing request", "error", err)
		return nil
	}
	if !decision.Allowed {
		o.recorder.RecordAudit(ctx, &models.AuditEntry{
			ID:        uuid.New(),
			ActorID:   actor.ID,
			Action:    models.AuditActionRateLimited,
			ObjectRef: sourceRef,
			Changes:   models.JSONB{"operation": kind.String(), "retry_after_ms": decision.RetryAfter.Milliseconds()},
			CreatedAt: time.Now(),
		})
		return &Outcome{
			Status:     StatusRateLimited,
			RetryAfter: decision.RetryAfter,
		}
	}

	if !o.quota.WithinAllowance(ctx, actor.ID) {
		o.recorder.RecordAudit(ctx, &models.AuditEntry{
			ID:        uuid.New(),
			ActorID:   actor.ID,
			Action:    models.AuditActionQuotaExceeded,
			ObjectRef: sourceRef,
			Changes:   models.JSONB{"operation": kind.String()},
			CreatedAt: time.Now(),
		})
		return &Outcome{Status: StatusQuotaExceeded}
	}

	return nil
}

// execute runs one job against the upstream providers. It is called
// from dispatcher workers, never directly.
func (o *Orchestrator) execute(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	start := time.Now()

	doc, err := o.documents.GetBySourceRef(ctx, req.SourceRef)
	if err != nil {
		return nil, err
	}

	prompt, maxTokens, err := providers.BuildPrompt(req.Kind, doc.Content, req.Input)
	if err != nil {
		return nil, err
	}

	observer := func(a providers.Attempt) {
		req.Attempts = a.Number
		record := &models.UsageRecord{
			ID:        uuid.New(),
			RequestID: req.ID,
			ActorID:   req.ActorID,
			Kind:      req.Kind,
			SourceRef: req.SourceRef,
			Provider:  a.Provider,
			Attempt:   a.Number,
			LatencyMS: int(a.Duration.Milliseconds()),
			Success:   a.Err == nil,
			CreatedAt: time.Now(),
		}
		if a.Err != nil {
			record.ErrorKind = errorKind(a.Err)
		}
		if a.Result != nil {
			record.InputTokens = a.Result.InputTokens
			record.OutputTokens = a.Result.OutputTokens
		}
		o.recorder.RecordUsage(ctx, record)
	}

	upstream, providerName, attempts, err := o.failover.Generate(ctx, providers.Request{
		Kind:      req.Kind,
		Prompt:    prompt,
		MaxTokens: maxTokens,
	}, observer)

	if err != nil {
		o.shipLog(req, "", attempts, 0, 0, time.Since(start), err)
		return nil, err
	}

	result, err := buildResult(req, upstream, providerName)
	if err != nil {
		o.shipLog(req, providerName, attempts, upstream.InputTokens, upstream.OutputTokens, time.Since(start), err)
		return nil, err
	}

	if err := o.results.Store(ctx, req.Fingerprint, result, req.SourceVersion); err != nil {
		// The result is still good; the next identical request just
		// pays the upstream cost again
		o.logger.Warn("Failed to cache result", "fingerprint", req.Fingerprint, "error", err)
	}

	if err := o.quota.AddTokens(ctx, req.ActorID, result.InputTokens+result.OutputTokens); err != nil {
		o.logger.Warn("Failed to update quota", "actor_id", req.ActorID, "error", err)
	}

	o.shipLog(req, providerName, attempts, result.InputTokens, result.OutputTokens, time.Since(start), nil)

	return result, nil
}

// buildResult converts the raw upstream text into a typed result
func buildResult(req *models.GenerationRequest, upstream *providers.Result, providerName string) (*models.GenerationResult, error) {
	result := &models.GenerationResult{
		Kind:          req.Kind,
		Provider:      providerName,
		SourceVersion: req.SourceVersion,
		InputTokens:   upstream.InputTokens,
		OutputTokens:  upstream.OutputTokens,
		GeneratedAt:   time.Now(),
	}

	if req.Kind == models.OpGenerateQuestions {
		questions, err := providers.ParseQuestions(upstream.Text)
		if err != nil {
			return nil, err
		}
		result.Questions = questions
	} else {
		result.Text = upstream.Text
	}

	return result, nil
}

// recordCacheHit books a zero-cost usage record for a served cache hit
func (o *Orchestrator) recordCacheHit(ctx context.Context, actor Actor, kind models.OperationKind, sourceRef, fingerprint string, entry *cache.Entry) {
	o.recorder.RecordUsage(ctx, &models.UsageRecord{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		ActorID:   actor.ID,
		Kind:      kind,
		SourceRef: sourceRef,
		Provider:  entry.Result.Provider,
		Cached:    true,
		Success:   true,
		CreatedAt: time.Now(),
	})

	o.sink.Enqueue(&logging.GenerationLog{
		Timestamp:   time.Now(),
		ActorID:     actor.ID,
		Operation:   kind.String(),
		SourceRef:   sourceRef,
		Fingerprint: fingerprint,
		Provider:    entry.Result.Provider,
		Cached:      true,
	})
}

// shipLog sends one ops record per completed execution
func (o *Orchestrator) shipLog(req *models.GenerationRequest, provider string, attempts, inTokens, outTokens int, latency time.Duration, err error) {
	rec := &logging.GenerationLog{
		Timestamp:    time.Now(),
		RequestID:    req.ID.String(),
		ActorID:      req.ActorID,
		Operation:    req.Kind.String(),
		SourceRef:    req.SourceRef,
		Fingerprint:  req.Fingerprint,
		Provider:     provider,
		Attempts:     attempts,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		LatencyMs:    latency.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	o.sink.Enqueue(rec)
}

// validateInput checks operation-specific input constraints
func validateInput(kind models.OperationKind, input models.GenerationInput) error {
	switch kind {
	case models.OpAnswerQuestion:
		if input.Question == "" {
			return ErrInvalidInput
		}
	case models.OpGenerateQuestions:
		if input.QuestionType != "" && !input.QuestionType.IsValid() {
			return ErrInvalidInput
		}
		if input.Count < 0 {
			return ErrInvalidInput
		}
	}
	return nil
}

// errorKind maps an error to its classification label
func errorKind(err error) string {
	return string(providers.Classify(err))
}
