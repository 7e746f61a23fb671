package source

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tuleva/camt-reconciler/internal/logging"
)

// RetryConfig bounds the retries of a RetryingSource
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the retry settings used when none are configured
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// RetryingSource retries transient Source failures with exponential backoff
type RetryingSource struct {
	next   Source
	cfg    RetryConfig
	logger logging.Logger
}

// NewRetryingSource decorates next with retries
func NewRetryingSource(next Source, cfg RetryConfig, logger logging.Logger) *RetryingSource {
	defaults := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	return &RetryingSource{next: next, cfg: cfg, logger: logger}
}

// FetchPending retries the wrapped FetchPending
func (s *RetryingSource) FetchPending(ctx context.Context) ([]Envelope, error) {
	return retry(ctx, s, "fetch", func() ([]Envelope, error) {
		return s.next.FetchPending(ctx)
	})
}

// RequestStatement retries the wrapped RequestStatement
func (s *RetryingSource) RequestStatement(ctx context.Context, payload []byte) (Acknowledgement, error) {
	return retry(ctx, s, "request", func() (Acknowledgement, error) {
		return s.next.RequestStatement(ctx, payload)
	})
}

// Acknowledge retries the wrapped Acknowledge. Unknown envelopes are not retried.
func (s *RetryingSource) Acknowledge(ctx context.Context, envelopeID string, failed bool) error {
	_, err := retry(ctx, s, "acknowledge", func() (struct{}, error) {
		return struct{}{}, s.next.Acknowledge(ctx, envelopeID, failed)
	})
	return err
}

func (s *RetryingSource) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.cfg.InitialInterval),
		backoff.WithMaxInterval(s.cfg.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx)
}

func retry[T any](ctx context.Context, s *RetryingSource, operation string, fn func() (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		v, err := fn()
		if errors.Is(err, ErrEnvelopeNotFound) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("Source call failed, retrying",
			logging.F(logging.FieldOperation, operation),
			logging.F(logging.FieldAttempt, attempt),
			logging.F(logging.FieldError, err),
			logging.F(logging.FieldDuration, wait.Milliseconds()))
	}

	v, err := backoff.RetryNotifyWithData(op, s.newBackOff(ctx), notify)
	if err != nil && !errors.Is(err, ErrEnvelopeNotFound) {
		s.logger.Error("Source call failed",
			logging.F(logging.FieldOperation, operation),
			logging.F(logging.FieldAttempt, attempt),
			logging.F(logging.FieldError, err))
	}
	return v, err
}
