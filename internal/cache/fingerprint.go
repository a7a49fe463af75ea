package cache

import (
	"fmt"
	"sort"
	"strings"

	"acadgen/internal/models"
	"acadgen/internal/utils"
)

// Fingerprint derives the stable identity of a unit of generation work:
// a sha256 over the operation kind, source document reference, source
// version and the normalized operation parameters. Two logically
// identical requests map to the same fingerprint regardless of actor,
// so cached results are shared across users. The question text is part
// of the key for answer_question, since answers are question-specific.
func Fingerprint(kind models.OperationKind, sourceRef, sourceVersion string, input models.GenerationInput) string {
	params := normalizeParams(kind, input)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte(0)
	b.WriteString(sourceRef)
	b.WriteByte(0)
	b.WriteString(sourceVersion)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	return utils.HashString(b.String())
}

// normalizeParams reduces the input to the parameters that affect the
// generated output for the given operation kind. Omitted parameters
// are resolved to their defaults first, so an omitted parameter and
// its default spelled out key the same cache entry.
func normalizeParams(kind models.OperationKind, input models.GenerationInput) map[string]string {
	input = input.WithDefaults(kind)
	params := make(map[string]string)

	switch kind {
	case models.OpSummarize:
		params["max_words"] = fmt.Sprintf("%d", input.MaxWords)
	case models.OpGenerateQuestions:
		params["count"] = fmt.Sprintf("%d", input.Count)
		params["question_type"] = string(input.QuestionType)
	case models.OpAnswerQuestion:
		params["question"] = NormalizeQuestion(input.Question)
	}

	return params
}

// NormalizeQuestion canonicalizes free-form question text so trivially
// different phrasings of the same question share a cache entry.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
