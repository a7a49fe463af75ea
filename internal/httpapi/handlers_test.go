package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acadgen/internal/auth"
	"acadgen/internal/dispatch"
	"acadgen/internal/models"
	"acadgen/internal/orchestrator"
)

var testSecret = []byte("httpapi-test-secret")

// fakeGenerator returns scripted outcomes and captures calls
type fakeGenerator struct {
	outcome   *orchestrator.Outcome
	err       error
	lastActor orchestrator.Actor
	lastRef   string
	lastInput models.GenerationInput
}

func (f *fakeGenerator) Summarize(ctx context.Context, actor orchestrator.Actor, sourceRef string, maxWords int) (*orchestrator.Outcome, error) {
	f.lastActor, f.lastRef = actor, sourceRef
	f.lastInput = models.GenerationInput{MaxWords: maxWords}
	return f.outcome, f.err
}

func (f *fakeGenerator) GenerateQuestions(ctx context.Context, actor orchestrator.Actor, sourceRef string, qt models.QuestionType, count int) (*orchestrator.Outcome, error) {
	f.lastActor, f.lastRef = actor, sourceRef
	f.lastInput = models.GenerationInput{QuestionType: qt, Count: count}
	return f.outcome, f.err
}

func (f *fakeGenerator) AskQuestion(ctx context.Context, actor orchestrator.Actor, sourceRef, question string) (*orchestrator.Outcome, error) {
	f.lastActor, f.lastRef = actor, sourceRef
	f.lastInput = models.GenerationInput{Question: question}
	return f.outcome, f.err
}

func (f *fakeGenerator) Poll(ctx context.Context, requestID string) (*orchestrator.Outcome, error) {
	return f.outcome, f.err
}

type fakeUsage struct {
	records []models.UsageRecord
}

func (f *fakeUsage) ListByActor(ctx context.Context, actorID string, limit int) ([]models.UsageRecord, error) {
	return f.records, nil
}

type noopAudits struct{}

func (noopAudits) RecordAudit(ctx context.Context, entry *models.AuditEntry) {}

func newTestMux(gen *fakeGenerator, usage *fakeUsage) *http.ServeMux {
	if usage == nil {
		usage = &fakeUsage{}
	}
	deps := &Dependencies{
		Generator: gen,
		Usage:     usage,
		Audits:    noopAudits{},
		JWTSecret: testSecret,
	}
	mux := http.NewServeMux()
	registerRoutes(mux, deps)
	return mux
}

func authedRequest(t *testing.T, method, path string, body interface{}, roles ...auth.Role) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	if len(roles) == 0 {
		roles = []auth.Role{auth.RoleStudent}
	}
	token, _, err := auth.GenerateActorJWT("student-1", roles, testSecret, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleSummarize_Completed(t *testing.T) {
	gen := &fakeGenerator{outcome: &orchestrator.Outcome{
		Status:    orchestrator.StatusCompleted,
		RequestID: uuid.New(),
		Result:    &models.GenerationResult{Kind: models.OpSummarize, Text: "a summary", Provider: "gemini"},
	}}
	mux := newTestMux(gen, nil)

	req := authedRequest(t, http.MethodPost, "/api/ai/summaries", summaryRequest{SourceRef: "doc-1", MaxWords: 300})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", gen.lastActor.ID)
	assert.Equal(t, "doc-1", gen.lastRef)
	assert.Equal(t, 300, gen.lastInput.MaxWords)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "completed", body["status"])
}

func TestHandleSummarize_RequiresAuth(t *testing.T) {
	mux := newTestMux(&fakeGenerator{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ai/summaries", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleSummarize_MissingSourceRef(t *testing.T) {
	mux := newTestMux(&fakeGenerator{}, nil)

	req := authedRequest(t, http.MethodPost, "/api/ai/summaries", summaryRequest{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSummarize_RateLimited(t *testing.T) {
	gen := &fakeGenerator{outcome: &orchestrator.Outcome{
		Status:     orchestrator.StatusRateLimited,
		RetryAfter: 42 * time.Second,
	}}
	mux := newTestMux(gen, nil)

	req := authedRequest(t, http.MethodPost, "/api/ai/summaries", summaryRequest{SourceRef: "doc-1"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "43", rec.Header().Get("Retry-After"))
}

func TestHandleSummarize_SourceNotFound(t *testing.T) {
	gen := &fakeGenerator{err: orchestrator.ErrSourceNotFound}
	mux := newTestMux(gen, nil)

	req := authedRequest(t, http.MethodPost, "/api/ai/summaries", summaryRequest{SourceRef: "ghost"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleQuestions_Accepted(t *testing.T) {
	id := uuid.New()
	gen := &fakeGenerator{outcome: &orchestrator.Outcome{
		Status:    orchestrator.StatusAccepted,
		RequestID: id,
	}}
	mux := newTestMux(gen, nil)

	req := authedRequest(t, http.MethodPost, "/api/ai/questions", questionsRequest{
		SourceRef:    "doc-1",
		QuestionType: models.QuestionMCQ,
		Count:        5,
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id.String(), body["request_id"])
	assert.Equal(t, models.QuestionMCQ, gen.lastInput.QuestionType)
	assert.Equal(t, 5, gen.lastInput.Count)
}

func TestHandleAnswer_Busy(t *testing.T) {
	gen := &fakeGenerator{outcome: &orchestrator.Outcome{
		Status:    orchestrator.StatusBusy,
		ErrorKind: "backpressure",
	}}
	mux := newTestMux(gen, nil)

	req := authedRequest(t, http.MethodPost, "/api/ai/answers", answerRequest{
		SourceRef: "doc-1",
		Question:  "Why does heat flow?",
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlePoll_NotFound(t *testing.T) {
	gen := &fakeGenerator{err: dispatch.ErrHandleNotFound}
	mux := newTestMux(gen, nil)

	req := authedRequest(t, http.MethodGet, "/api/ai/requests/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePoll_Completed(t *testing.T) {
	gen := &fakeGenerator{outcome: &orchestrator.Outcome{
		Status:    orchestrator.StatusCompleted,
		RequestID: uuid.New(),
		Result:    &models.GenerationResult{Kind: models.OpSummarize, Text: "done"},
	}}
	mux := newTestMux(gen, nil)

	req := authedRequest(t, http.MethodGet, "/api/ai/requests/"+gen.outcome.RequestID.String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleUsage_RequiresInstructor(t *testing.T) {
	mux := newTestMux(&fakeGenerator{}, nil)

	req := authedRequest(t, http.MethodGet, "/api/ai/usage", nil, auth.RoleStudent)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleUsage_ListsRecords(t *testing.T) {
	usage := &fakeUsage{records: []models.UsageRecord{
		{ID: uuid.New(), ActorID: "student-1", Kind: models.OpSummarize, Provider: "gemini", Success: true},
	}}
	mux := newTestMux(&fakeGenerator{}, usage)

	req := authedRequest(t, http.MethodGet, "/api/ai/usage", nil, auth.RoleInstructor)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ActorID string               `json:"actor_id"`
		Records []models.UsageRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "student-1", body.ActorID)
	require.Len(t, body.Records, 1)
}

func TestHandleServiceToken(t *testing.T) {
	hash, err := auth.HashServiceKey("svc-key")
	require.NoError(t, err)

	deps := &Dependencies{
		Generator: &fakeGenerator{},
		Usage:     &fakeUsage{},
		Audits:    noopAudits{},
		JWTSecret: testSecret,
		ServiceKeys: auth.NewInMemoryServiceKeyStore([]*auth.ServiceAccount{
			{ID: "svc-1", Name: "indexer", KeyHash: hash},
		}),
	}
	mux := http.NewServeMux()
	registerRoutes(mux, deps)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", nil)
	req.Header.Set("X-API-Key", "svc-key")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	claims, err := auth.ValidateActorJWT(body.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", claims.ActorID())
	assert.True(t, claims.Trusted())

	// Wrong key is refused
	req = httptest.NewRequest(http.MethodPost, "/api/auth/token", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	mux := newTestMux(&fakeGenerator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
