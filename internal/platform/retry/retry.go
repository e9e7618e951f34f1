// Package retry implements the retry harness used around model calls, batch file
// transfers and database writes. A Policy pairs an exponential backoff with a fault
// classifier: errors the classifier rejects are returned immediately, everything else
// is retried until MaxRetries is exhausted and the last error is returned.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
)

const (
	defaultMaxRetries    = 3
	defaultInitialDelay  = time.Second
	defaultBackoffFactor = 2.0
	defaultMaxDelay      = time.Minute

	logFieldPolicy  = "policy"
	logFieldAttempt = "attempt"
	logFieldDelay   = "delay"
)

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Policy configures a retry loop.
type Policy struct {
	Name          string
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	Classifier    Classifier
	Logger        *zerolog.Logger
}

// DefaultPolicy is the general-purpose policy for model and network calls.
func DefaultPolicy() Policy {
	return Policy{
		Name:          "default",
		MaxRetries:    defaultMaxRetries,
		InitialDelay:  defaultInitialDelay,
		BackoffFactor: defaultBackoffFactor,
		MaxDelay:      defaultMaxDelay,
		Classifier:    IsRetryable,
	}
}

// DBPolicy retries only connection, serialization and lock-availability faults.
func DBPolicy() Policy {
	return Policy{
		Name:          "db",
		MaxRetries:    4,
		InitialDelay:  200 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      5 * time.Second,
		Classifier:    IsRetryableDB,
	}
}

// FilePolicy is used for batch file upload/download; any decode fault is permanent.
func FilePolicy() Policy {
	return Policy{
		Name:          "file",
		MaxRetries:    2,
		InitialDelay:  time.Second,
		BackoffFactor: 3,
		MaxDelay:      30 * time.Second,
		Classifier:    IsRetryableFile,
	}
}

// WithLogger returns a copy of p that logs retried attempts.
func (p Policy) WithLogger(logger *zerolog.Logger) Policy {
	p.Logger = logger
	return p
}

// Execute runs fn until it succeeds, the classifier rejects the error, retries are
// exhausted, or ctx is done.
func (p Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	attempt := 0

	operation := func() error {
		attempt++

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !p.Classifier(err) {
			observability.RetryGiveUps.WithLabelValues(p.Name, "permanent").Inc()
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, delay time.Duration) {
		observability.RetryAttempts.WithLabelValues(p.Name).Inc()

		if p.Logger != nil {
			p.Logger.Warn().Err(err).
				Str(logFieldPolicy, p.Name).
				Int(logFieldAttempt, attempt).
				Dur(logFieldDelay, delay).
				Msg("retrying after transient error")
		}
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(p.backOff(), ctx), notify)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("retry %s interrupted after %d attempts: %w", p.Name, attempt, err)
	}

	if attempt > p.MaxRetries {
		observability.RetryGiveUps.WithLabelValues(p.Name, "exhausted").Inc()
	}

	return err
}

// Do is Execute for functions that return a value.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T

	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}

		out = v

		return nil
	})

	return out, err
}

func (p Policy) withDefaults() Policy {
	if p.Name == "" {
		p.Name = "default"
	}

	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}

	if p.BackoffFactor < 1 {
		p.BackoffFactor = defaultBackoffFactor
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}

	if p.Classifier == nil {
		p.Classifier = IsRetryable
	}

	return p
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.BackoffFactor
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithMaxRetries(b, uint64(p.MaxRetries)) //nolint:gosec // MaxRetries clamped to >= 0
}
