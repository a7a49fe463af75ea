package orchestrator

import "errors"

var (
	// ErrSourceNotFound is returned when the referenced document does
	// not exist
	ErrSourceNotFound = errors.New("source document not found")

	// ErrInvalidOperation is returned for an unknown operation kind
	ErrInvalidOperation = errors.New("invalid operation kind")

	// ErrInvalidInput is returned when the input does not fit the
	// operation, for example answer_question without a question
	ErrInvalidInput = errors.New("invalid generation input")
)
