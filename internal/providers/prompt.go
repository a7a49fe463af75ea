package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"acadgen/internal/models"
)

const (
	// maxInputChars bounds the document text included in a prompt.
	// Question generation uses a tighter bound so the model has room
	// for the structured JSON answer.
	maxInputChars         = 30000
	maxQuestionInputChars = 10000

	answerMaxTokens    = 500
	questionsMaxTokens = 2000
)

// BuildPrompt assembles the upstream prompt for an operation over the
// given document text. Returns the prompt and the token cap to request.
// Omitted parameters resolve through models.GenerationInput.WithDefaults,
// the same resolution the fingerprint uses.
func BuildPrompt(kind models.OperationKind, documentText string, input models.GenerationInput) (string, int, error) {
	input = input.WithDefaults(kind)

	switch kind {
	case models.OpSummarize:
		maxWords := input.MaxWords
		text := truncate(documentText, maxInputChars)
		prompt := fmt.Sprintf(`You are an academic assistant that summarizes educational content.

Summarize the following text concisely. Focus on:
- the main points and core concepts
- the most important information
- preserving factual accuracy

Text:
%s

Summary (at most %d words):`, text, maxWords)
		return prompt, maxWords * 2, nil

	case models.OpGenerateQuestions:
		count := input.Count
		qt := input.QuestionType
		text := truncate(documentText, maxQuestionInputChars)
		prompt := fmt.Sprintf(`You are a teacher creating exam questions from educational content.

Create %d questions from the text below.
Requested question style: %s

Return ONLY a JSON array, no extra text:
[
    {
        "type": "mcq" | "true_false" | "short_answer",
        "question": "the question text",
        "options": ["option1", "option2", "option3", "option4"],
        "answer": "the correct answer",
        "explanation": "a short explanation"
    }
]

Notes:
- for true_false questions the options are ["true", "false"]
- for short_answer questions omit the options field

Text:
%s

Questions (JSON only):`, count, questionStyle(qt), text)
		return prompt, questionsMaxTokens, nil

	case models.OpAnswerQuestion:
		question := strings.TrimSpace(input.Question)
		if question == "" {
			return "", 0, fmt.Errorf("question text is required")
		}
		text := truncate(documentText, maxInputChars)
		prompt := fmt.Sprintf(`You are an academic assistant that answers questions based on the provided document content.

Rules:
1. Answer only from the provided content
2. If the answer is not in the content, say so clearly
3. Be clear and concise

Content:
%s

Question: %s

Answer:`, text, question)
		return prompt, answerMaxTokens, nil

	default:
		return "", 0, fmt.Errorf("unsupported operation kind: %s", kind)
	}
}

func questionStyle(qt models.QuestionType) string {
	switch qt {
	case models.QuestionMCQ:
		return "multiple choice questions (4 options each)"
	case models.QuestionTrueFalse:
		return "true or false questions"
	case models.QuestionShortAnswer:
		return "short answer questions"
	default:
		return "a mix of question styles"
	}
}

// truncate bounds text to maxLen bytes, marking the cut. The cut backs
// up to a rune boundary so a multi-byte character is never split.
func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// ParseQuestions decodes the question JSON a model returned. Models
// routinely wrap the array in markdown fences, so those are stripped
// before decoding.
func ParseQuestions(raw string) ([]models.Question, error) {
	raw = strings.TrimSpace(raw)

	if idx := strings.Index(raw, "```json"); idx >= 0 {
		raw = raw[idx+len("```json"):]
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	} else if idx := strings.Index(raw, "```"); idx >= 0 {
		raw = raw[idx+len("```"):]
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	}

	raw = strings.TrimSpace(raw)

	var questions []models.Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse questions JSON: %w", err)
	}

	return questions, nil
}
