package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

var (
	errTransient = errors.New("connection reset by peer")
	errTimeout   = fmt.Errorf("llm call: %w", context.DeadlineExceeded)
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		Name:          "test",
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      5 * time.Millisecond,
		Classifier:    IsRetryable,
	}
}

func TestPolicy_RetriesTransientUntilSuccess(t *testing.T) {
	var calls atomic.Int32

	err := fastPolicy(3).Execute(context.Background(), func(context.Context) error {
		if calls.Add(1) < 3 {
			return errTransient
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPolicy_ReturnsLastErrorWhenExhausted(t *testing.T) {
	var calls atomic.Int32

	err := fastPolicy(2).Execute(context.Background(), func(context.Context) error {
		calls.Add(1)
		return errTimeout
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestPolicy_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	failure := &apperrors.ParseFailure{MessageID: "1", Model: "m", Raw: "{", Cause: apperrors.ErrSchemaValidation}

	err := fastPolicy(5).Execute(context.Background(), func(context.Context) error {
		calls.Add(1)
		return fmt.Errorf("parse chunk: %w", failure)
	})

	var got *apperrors.ParseFailure
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "{", got.Raw)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPolicy_InjectedClassifier(t *testing.T) {
	var calls atomic.Int32

	p := fastPolicy(5)
	p.Classifier = func(error) bool { return false }

	err := p.Execute(context.Background(), func(context.Context) error {
		calls.Add(1)
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPolicy_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := fastPolicy(10)
	p.InitialDelay = time.Hour
	p.MaxDelay = time.Hour

	var calls atomic.Int32

	done := make(chan error, 1)

	go func() {
		done <- p.Execute(ctx, func(context.Context) error {
			calls.Add(1)
			return errTransient
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after cancel")
	}
}

func TestDo_ReturnsValue(t *testing.T) {
	var calls atomic.Int32

	got, err := Do(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errTransient
		}

		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestIsRetryable(t *testing.T) {
	var numErr error = &strconv.NumError{Func: "ParseInt", Num: "x", Err: strconv.ErrSyntax}

	var syntaxErr error

	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = err
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", errTransient, true},
		{"deadline", errTimeout, true},
		{"canceled", context.Canceled, false},
		{"invalid input", fmt.Errorf("x: %w", apperrors.ErrInvalidInput), false},
		{"missing field", apperrors.ErrMissingField, false},
		{"schema", apperrors.ErrSchemaValidation, false},
		{"empty reply", fmt.Errorf("chat completion: %w", apperrors.ErrEmptyResponse), false},
		{"num error", numErr, false},
		{"json syntax", syntaxErr, false},
		{"integrity", &pgconn.PgError{Code: "23505"}, false},
		{"sql syntax", &pgconn.PgError{Code: "42P01"}, false},
		{"data exception", &pgconn.PgError{Code: "22P02"}, false},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"request error 503", &openai.RequestError{HTTPStatusCode: http.StatusServiceUnavailable}, true},
		{"circuit open", apperrors.ErrCircuitBreakerOpen, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsRetryableDB(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection", &pgconn.PgError{Code: "08006"}, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"undefined column", &pgconn.PgError{Code: "42703"}, false},
		{"invalid text", &pgconn.PgError{Code: "22P02"}, false},
		{"invalid input", apperrors.ErrInvalidInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableDB(tt.err))
		})
	}
}

func TestIsRetryableFile(t *testing.T) {
	assert.False(t, IsRetryableFile(apperrors.ErrMalformedLine))
	assert.False(t, IsRetryableFile(fmt.Errorf("decode: %w", apperrors.ErrMalformedCustomID)))
	assert.True(t, IsRetryableFile(errTransient))
}
