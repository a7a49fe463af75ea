package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"acadgen/internal/dispatch"
	"acadgen/internal/middleware"
	"acadgen/internal/models"
	"acadgen/internal/orchestrator"
	"acadgen/internal/storage"
	"acadgen/internal/utils"
)

type summaryRequest struct {
	SourceRef string `json:"source_ref"`
	MaxWords  int    `json:"max_words,omitempty"`
}

type questionsRequest struct {
	SourceRef    string              `json:"source_ref"`
	QuestionType models.QuestionType `json:"question_type,omitempty"`
	Count        int                 `json:"count,omitempty"`
}

type answerRequest struct {
	SourceRef string `json:"source_ref"`
	Question  string `json:"question"`
}

// handleSummarize serves POST /api/ai/summaries
func (d *Dependencies) handleSummarize(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SourceRef == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'source_ref' field")
		return
	}

	outcome, err := d.Generator.Summarize(r.Context(), actor, req.SourceRef, req.MaxWords)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	writeOutcome(w, outcome)
}

// handleQuestions serves POST /api/ai/questions
func (d *Dependencies) handleQuestions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req questionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SourceRef == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'source_ref' field")
		return
	}

	outcome, err := d.Generator.GenerateQuestions(r.Context(), actor, req.SourceRef, req.QuestionType, req.Count)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	writeOutcome(w, outcome)
}

// handleAnswer serves POST /api/ai/answers
func (d *Dependencies) handleAnswer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SourceRef == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'source_ref' field")
		return
	}

	outcome, err := d.Generator.AskQuestion(r.Context(), actor, req.SourceRef, req.Question)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	writeOutcome(w, outcome)
}

// handlePoll serves GET /api/ai/requests/{id}
func (d *Dependencies) handlePoll(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	requestID := strings.TrimPrefix(r.URL.Path, "/api/ai/requests/")
	if requestID == "" || strings.Contains(requestID, "/") {
		utils.RespondWithError(w, http.StatusBadRequest, "missing request ID")
		return
	}

	outcome, err := d.Generator.Poll(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, dispatch.ErrHandleNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "unknown request ID")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeOutcome(w, outcome)
}

// requireActor pulls the authenticated actor out of the context
func requireActor(w http.ResponseWriter, r *http.Request) (orchestrator.Actor, bool) {
	claims, ok := middleware.GetActorClaims(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "missing actor identity")
		return orchestrator.Actor{}, false
	}
	return orchestrator.Actor{ID: claims.ActorID(), Trusted: claims.Trusted()}, true
}

// writeOutcome maps an orchestrator outcome to an HTTP response
func writeOutcome(w http.ResponseWriter, outcome *orchestrator.Outcome) {
	switch outcome.Status {
	case orchestrator.StatusCompleted:
		utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":     outcome.Status,
			"request_id": outcome.RequestID,
			"cached":     outcome.Cached,
			"result":     outcome.Result,
		})
	case orchestrator.StatusAccepted:
		utils.RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":     outcome.Status,
			"request_id": outcome.RequestID,
		})
	case orchestrator.StatusRateLimited:
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(outcome.RetryAfter.Seconds())+1))
		utils.RespondWithJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"status":           outcome.Status,
			"retry_after_secs": int(outcome.RetryAfter.Seconds()) + 1,
		})
	case orchestrator.StatusQuotaExceeded:
		utils.RespondWithJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"status": outcome.Status,
		})
	case orchestrator.StatusBusy:
		utils.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": outcome.Status,
		})
	case orchestrator.StatusFailed:
		utils.RespondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
			"status":     outcome.Status,
			"request_id": outcome.RequestID,
			"error_kind": outcome.ErrorKind,
		})
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "unexpected outcome")
	}
}

// writeGenerationError maps orchestrator errors to HTTP statuses
func writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrSourceNotFound), errors.Is(err, storage.ErrDocumentNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "source document not found")
	case errors.Is(err, orchestrator.ErrInvalidInput):
		utils.RespondWithError(w, http.StatusBadRequest, "invalid generation input")
	case errors.Is(err, orchestrator.ErrInvalidOperation):
		utils.RespondWithError(w, http.StatusBadRequest, "invalid operation")
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
	}
}
