package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationKind identifies one of the supported generation operations.
type OperationKind string

const (
	OpSummarize         OperationKind = "summarize"
	OpGenerateQuestions OperationKind = "generate_questions"
	OpAnswerQuestion    OperationKind = "answer_question"
)

// IsValid checks if the operation kind is one of the supported kinds
func (k OperationKind) IsValid() bool {
	switch k {
	case OpSummarize, OpGenerateQuestions, OpAnswerQuestion:
		return true
	default:
		return false
	}
}

// String returns the string representation of the operation kind
func (k OperationKind) String() string {
	return string(k)
}

// QuestionType identifies the style of generated quiz questions.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "mcq"
	QuestionTrueFalse   QuestionType = "true_false"
	QuestionShortAnswer QuestionType = "short_answer"
	QuestionMixed       QuestionType = "mixed"
)

// IsValid checks if the question type is supported
func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionMCQ, QuestionTrueFalse, QuestionShortAnswer, QuestionMixed:
		return true
	default:
		return false
	}
}

// RequestState tracks a generation request through its lifecycle.
// Succeeded, Failed and CachedHit are terminal.
type RequestState string

const (
	StateQueued    RequestState = "queued"
	StateRunning   RequestState = "running"
	StateRetrying  RequestState = "retrying"
	StateSucceeded RequestState = "succeeded"
	StateFailed    RequestState = "failed"
	StateCachedHit RequestState = "cached_hit"
)

// Terminal reports whether the state is final
func (s RequestState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCachedHit:
		return true
	default:
		return false
	}
}

// Defaults applied to omitted generation parameters. Resolved in one
// place so a request with an omitted parameter and a request with the
// default spelled out are the same unit of work everywhere: same
// prompt, same fingerprint, same cache entry.
const (
	DefaultSummaryMaxWords = 500
	DefaultQuestionCount   = 5
)

// GenerationInput holds the operation-specific parameters of a request.
type GenerationInput struct {
	// Question is the free-form question text for answer_question
	Question string `json:"question,omitempty"`

	// QuestionType and Count apply to generate_questions
	QuestionType QuestionType `json:"question_type,omitempty"`
	Count        int          `json:"count,omitempty"`

	// MaxWords caps the summary length for summarize
	MaxWords int `json:"max_words,omitempty"`
}

// WithDefaults resolves the omitted parameters for kind
func (in GenerationInput) WithDefaults(kind OperationKind) GenerationInput {
	switch kind {
	case OpSummarize:
		if in.MaxWords <= 0 {
			in.MaxWords = DefaultSummaryMaxWords
		}
	case OpGenerateQuestions:
		if in.Count <= 0 {
			in.Count = DefaultQuestionCount
		}
		if in.QuestionType == "" {
			in.QuestionType = QuestionMixed
		}
	}
	return in
}

// GenerationRequest is one logical unit of generation work. A given
// fingerprint has at most one in-flight request; the executing worker
// is its only mutator after submission.
type GenerationRequest struct {
	ID            uuid.UUID       `json:"id"`
	Fingerprint   string          `json:"fingerprint"`
	Kind          OperationKind   `json:"kind"`
	ActorID       string          `json:"actor_id"`
	SourceRef     string          `json:"source_ref"`
	SourceVersion string          `json:"source_version"`
	Input         GenerationInput `json:"input"`
	State         RequestState    `json:"state"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Question is a single generated quiz question.
type Question struct {
	Type        QuestionType `json:"type"`
	Question    string       `json:"question"`
	Options     []string     `json:"options,omitempty"`
	Answer      string       `json:"answer"`
	Explanation string       `json:"explanation,omitempty"`
}

// GenerationResult is the payload produced by a completed generation.
// Text carries the summary or answer; Questions is set for question
// generation. The struct round-trips through JSON for the result cache.
type GenerationResult struct {
	Kind          OperationKind `json:"kind"`
	Text          string        `json:"text,omitempty"`
	Questions     []Question    `json:"questions,omitempty"`
	Provider      string        `json:"provider"`
	SourceVersion string        `json:"source_version"`
	InputTokens   int           `json:"input_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	GeneratedAt   time.Time     `json:"generated_at"`
}
