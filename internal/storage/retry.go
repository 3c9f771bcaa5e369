package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/afroash/greenhouse-collector/internal/config"
	"github.com/afroash/greenhouse-collector/internal/models"
)

// Retrier retries failed submissions with bounded exponential backoff
type Retrier struct {
	next            Submitter
	backend         string
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          zerolog.Logger

	submitted atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
}

// RetrierStats counts submissions since startup
type RetrierStats struct {
	Submitted int64 `json:"submitted"`
	Retried   int64 `json:"retried"`
	Failed    int64 `json:"failed"`
}

var _ Submitter = (*Retrier)(nil)

// NewRetrier wraps next, naming the backend in errors and logs
func NewRetrier(next Submitter, backend string, cfg config.RetryConfig, logger zerolog.Logger) *Retrier {
	return &Retrier{
		next:            next,
		backend:         backend,
		maxAttempts:     max(cfg.MaxAttempts, 1),
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		logger:          logger.With().Str("backend", backend).Logger(),
	}
}

// Submit writes rec, retrying up to the configured number of attempts.
// A record that still fails is returned as a *WriteError and counted.
func (r *Retrier) Submit(ctx context.Context, rec *models.Record) error {
	if !rec.IsValid() {
		r.failed.Add(1)
		return &WriteError{Backend: r.backend, Err: errors.New("invalid record")}
	}

	attempts := 0
	op := func() error {
		attempts++
		err := r.next.Submit(ctx, rec)
		if err != nil && (ctx.Err() != nil || errors.Is(err, ErrRejected)) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.retried.Add(1)
		r.logger.Warn().
			Err(err).
			Str("measurement", rec.Measurement).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("Database write failed, retrying")
	}

	if err := backoff.RetryNotify(op, r.policy(ctx), notify); err != nil {
		r.failed.Add(1)
		return &WriteError{Backend: r.backend, Attempts: attempts, Err: err}
	}
	r.submitted.Add(1)
	return nil
}

func (r *Retrier) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxAttempts-1)), ctx)
}

// Stats returns the submission counters
func (r *Retrier) Stats() RetrierStats {
	return RetrierStats{
		Submitted: r.submitted.Load(),
		Retried:   r.retried.Load(),
		Failed:    r.failed.Load(),
	}
}
