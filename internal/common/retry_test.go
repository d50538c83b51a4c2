package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/norkodev/finbot/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = service.RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset")
			}
			return nil
		}, fastRetry)

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		boom := errors.New("bad request")
		err := WithRetry(context.Background(), func() error {
			calls++
			return Permanent(boom)
		}, fastRetry)

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errors.New("still down")
		}, fastRetry)

		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry past the deadline", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			cancel()
			return errors.New("timeout")
		}, fastRetry)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestDomainErrors(t *testing.T) {
	cause := errors.New("missing OPERACIONES section")
	var err error = NewExtractionError("bbva", "transactions", cause)

	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "bbva", extractionErr.Bank)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transactions")

	err = &ClassificationServiceUnavailableError{Provider: "ollama", Err: errors.New("connection refused")}
	assert.True(t, IsServiceUnavailable(err))
	assert.False(t, IsServiceUnavailable(cause))

	err = NewUserError("could not process statements", &UnrecognizedSourceError{Path: "a.pdf"})
	var unrecognized *UnrecognizedSourceError
	assert.ErrorAs(t, err, &unrecognized)
}

func TestParseLevel(t *testing.T) {
	_, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())
}
