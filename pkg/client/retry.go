package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// newBackOff builds the backoff policy for one call.
func (c RetryConfig) newBackOff(ctx context.Context, last **BackendError) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialBackoff
	exp.MaxInterval = c.MaxBackoff
	exp.Multiplier = c.BackoffMultiplier
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0

	retries := c.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	var b backoff.BackOff = &retryAfterBackOff{BackOff: exp, last: last}
	b = backoff.WithMaxRetries(b, uint64(retries))
	return backoff.WithContext(b, ctx)
}

// retryAfterBackOff waits at least as long as a rate limited response asked for.
type retryAfterBackOff struct {
	backoff.BackOff
	last **BackendError
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if last := *b.last; last != nil && last.ErrorClass == ErrorClassRateLimit && last.RetryAfter > next {
		return last.RetryAfter
	}
	return next
}

// retryWithBackoff executes op until it succeeds, returns a non retryable
// error, or the attempts are used up. op reports failures as *BackendError;
// any other error ends the loop immediately.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, op func() error) error {
	var last *BackendError
	attempts := 0

	operation := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		var be *BackendError
		if !errors.As(err, &be) || !be.Retryable() {
			return backoff.Permanent(err)
		}
		last = be
		return err
	}

	notify := func(err error, wait time.Duration) {
		retriesTotal.WithLabelValues(string(last.ErrorClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(last.ErrorClass)).Observe(wait.Seconds())
		logger.Debug().
			Err(err).
			Str("error_class", string(last.ErrorClass)).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")
	}

	err := backoff.RetryNotify(operation, config.newBackOff(ctx, &last), notify)
	if err == nil {
		if attempts > 1 {
			logger.Info().
				Int("attempt", attempts).
				Msg("Request succeeded after retry")
		}
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn().
			Int("attempt", attempts).
			Msg("Context cancelled during retry")
		return fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
	}

	var be *BackendError
	if errors.As(err, &be) && be.Retryable() {
		retryExhaustedTotal.WithLabelValues(string(be.ErrorClass)).Inc()
		logger.Warn().
			Str("error_class", string(be.ErrorClass)).
			Int("attempts", attempts).
			Msg("Retry attempts exhausted")
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err)
	}

	return err
}
