package generator

import (
	"errors"
	"fmt"
)

// ErrNoOutput means neither the structured channel nor the history channel
// produced anything parseable.
var ErrNoOutput = errors.New("no output produced")

// ConfigurationError reports a generative backend that is missing, rejected
// our credential, or could not be reached. Callers may fall back to the mock.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generator not configured: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generator not configured: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SchemaMismatchError reports raw output that failed structural parsing.
type SchemaMismatchError struct {
	Detail string
}

func (e *SchemaMismatchError) Error() string {
	if e.Detail == "" {
		return "schema mismatch"
	}
	return "schema mismatch: " + e.Detail
}

func schemaMismatch(format string, args ...any) *SchemaMismatchError {
	return &SchemaMismatchError{Detail: fmt.Sprintf(format, args...)}
}

type InvariantKind string

const (
	HintRequired         InvariantKind = "hint_required"
	QuizAnswerOutOfRange InvariantKind = "quiz_answer_out_of_range"
	QuizTooFewOptions    InvariantKind = "quiz_too_few_options"
	FillBlankKeyMissing  InvariantKind = "fill_blank_key_missing"
	TypeMismatch         InvariantKind = "type_mismatch"
	CountOutOfRange      InvariantKind = "count_out_of_range"
)

// InvariantViolationError reports a structurally valid payload that breaks a
// business rule. Card is the 1-based card (or lesson) position, 0 when the
// violation concerns the whole payload.
type InvariantViolationError struct {
	Kind   InvariantKind
	Card   int
	Reason string
}

func (e *InvariantViolationError) Error() string {
	if e.Card > 0 {
		return fmt.Sprintf("card %d: %s", e.Card, e.Reason)
	}
	return e.Reason
}

func violation(kind InvariantKind, card int, format string, args ...any) *InvariantViolationError {
	return &InvariantViolationError{Kind: kind, Card: card, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is, or wraps, a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
