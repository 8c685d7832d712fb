package internalerr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the run outcomes a caller can act on
var (
	ErrInsufficientCorpus   = errors.New("insufficient corpus")
	ErrDegenerateVocabulary = errors.New("degenerate vocabulary")
	ErrModelFit             = errors.New("model fit failure")
	ErrPersistence          = errors.New("persistence failure")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrCanceled             = errors.New("run canceled")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// FitError records why a single candidate topic count was rejected.
type FitError struct {
	K   int
	Err error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit k=%d: %v", e.K, e.Err)
}

// Unwrap exposes both the cause and ErrModelFit to errors.Is.
func (e *FitError) Unwrap() []error {
	return []error{ErrModelFit, e.Err}
}

// Outcome names the typed result of a pipeline run.
type Outcome string

const (
	OutcomeSucceeded            Outcome = "succeeded"
	OutcomeInsufficientCorpus   Outcome = "insufficient_corpus"
	OutcomeDegenerateVocabulary Outcome = "degenerate_vocabulary"
	OutcomeModelFitFailure      Outcome = "model_fit_failure"
	OutcomePersistenceFailure   Outcome = "persistence_failure"
	OutcomeCanceled             Outcome = "canceled"
	OutcomeFailed               Outcome = "failed"
)

// OutcomeOf classifies err. A nil error is a success.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, ErrCanceled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, ErrInsufficientCorpus):
		return OutcomeInsufficientCorpus
	case errors.Is(err, ErrDegenerateVocabulary):
		return OutcomeDegenerateVocabulary
	case errors.Is(err, ErrPersistence):
		return OutcomePersistenceFailure
	case errors.Is(err, ErrModelFit):
		return OutcomeModelFitFailure
	default:
		return OutcomeFailed
	}
}

// Canceled wraps a context error so it matches both ErrCanceled and the
// original context sentinel.
func Canceled(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCanceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCanceled, err)
}
