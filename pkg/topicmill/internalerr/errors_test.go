package internalerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSucceeded},
		{"corpus", fmt.Errorf("filter: %w", ErrInsufficientCorpus), OutcomeInsufficientCorpus},
		{"vocab", fmt.Errorf("vectorize: %w", ErrDegenerateVocabulary), OutcomeDegenerateVocabulary},
		{"fit", errors.Join(ErrModelFit, &FitError{K: 3, Err: errors.New("nan")}), OutcomeModelFitFailure},
		{"persist", fmt.Errorf("save: %w", ErrPersistence), OutcomePersistenceFailure},
		{"deadline", fmt.Errorf("select: %w", context.DeadlineExceeded), OutcomeCanceled},
		{"canceled", Canceled(context.Canceled), OutcomeCanceled},
		{"other", errors.New("boom"), OutcomeFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OutcomeOf(tc.err))
		})
	}
}

func TestFitErrorUnwrap(t *testing.T) {
	cause := errors.New("did not converge")
	err := fmt.Errorf("candidate: %w", &FitError{K: 5, Err: cause})

	assert.ErrorIs(t, err, ErrModelFit)
	assert.ErrorIs(t, err, cause)

	var fe *FitError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, 5, fe.K)
	assert.Contains(t, err.Error(), "k=5")
}

func TestCanceledKeepsContextSentinel(t *testing.T) {
	err := Canceled(context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Same(t, err, Canceled(err))
	assert.Nil(t, Canceled(nil))
}
