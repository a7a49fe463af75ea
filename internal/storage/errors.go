package storage

import "errors"

var (
	// ErrDocumentNotFound is returned when a document is not found
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUsageRecordNotFound is returned when a usage record is not found
	ErrUsageRecordNotFound = errors.New("usage record not found")

	// ErrAuditEntryNotFound is returned when an audit entry is not found
	ErrAuditEntryNotFound = errors.New("audit entry not found")
)
