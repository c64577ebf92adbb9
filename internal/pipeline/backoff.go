package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/soyeahso/deskd/internal/domain"
)

const (
	maxBackoff     = 30 * time.Second
	jitterFraction = 0.2
)

// backoffDelay doubles the base per attempt, caps at maxBackoff, and
// spreads retries with up to ±20% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			d = maxBackoff
			break
		}
	}
	jitter := 1 + (rand.Float64()*2-1)*jitterFraction
	return time.Duration(float64(d) * jitter)
}

// withRetry runs fn up to MaxRetries times, backing off between
// attempts. Non-retryable errors return immediately; the last error is
// returned unwrapped so callers can classify it.
func (p *Pipeline) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) || attempt == p.opts.MaxRetries {
			return err
		}
		delay := backoffDelay(p.opts.RetryBackoff, attempt)
		p.log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("retrying after transient failure")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
