package rewrite

import (
	"errors"
	"fmt"
)

// TranslationError is a fatal failure of a rewrite pass. A pass that returns one produces
// no tree.
type TranslationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Operator names the offending query operator or node, when there is one.
	Operator string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes translation errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedQueryShape indicates an operator whose lambda arguments do not have
	// the single-lambda, single-parameter shape the pass relies on.
	ErrCodeUnsupportedQueryShape ErrorCode = "UNSUPPORTED_QUERY_SHAPE"

	// ErrCodeMissingPrimaryKey indicates an entity comparison on a type without a key.
	ErrCodeMissingPrimaryKey ErrorCode = "MISSING_PRIMARY_KEY"

	// ErrCodeMaxDepthExceeded indicates the tree is nested deeper than the configured limit.
	ErrCodeMaxDepthExceeded ErrorCode = "MAX_DEPTH_EXCEEDED"

	// ErrCodeUnsupportedNode indicates a node the pass cannot walk.
	ErrCodeUnsupportedNode ErrorCode = "UNSUPPORTED_NODE"
)

// Error implements the error interface.
func (e *TranslationError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("%s: %s (operator=%s)", e.Code, e.Message, e.Operator)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newTranslationError(code ErrorCode, operator, format string, args ...interface{}) *TranslationError {
	return &TranslationError{Code: code, Operator: operator, Message: fmt.Sprintf(format, args...)}
}

// IsUnsupportedQuery returns true if err reports a query the pass cannot translate.
// Uses errors.As to handle wrapped errors.
func IsUnsupportedQuery(err error) bool {
	var te *TranslationError
	if errors.As(err, &te) {
		switch te.Code {
		case ErrCodeUnsupportedQueryShape, ErrCodeUnsupportedNode, ErrCodeMaxDepthExceeded:
			return true
		}
	}
	return false
}

// IsMetadataError returns true if err reports an inconsistent metadata model.
func IsMetadataError(err error) bool {
	var te *TranslationError
	if errors.As(err, &te) {
		return te.Code == ErrCodeMissingPrimaryKey
	}
	return false
}
