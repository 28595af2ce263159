// Package retry wraps outbound platform calls with bounded retry and
// backoff, honoring platform-issued rate-limit directives.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/dperhar/Karma-app-sub001/internal/health"
	"github.com/dperhar/Karma-app-sub001/internal/platform"
	"github.com/dperhar/Karma-app-sub001/internal/vault"
)

type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	return c
}

// Coordinator retries transient platform failures with exponential backoff.
// Rate-limit signals sleep exactly the mandated duration and do not consume
// a generic attempt. Authentication and credential errors propagate
// immediately.
type Coordinator struct {
	cfg     Config
	monitor *health.Monitor
	log     *zap.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewCoordinator(cfg Config, monitor *health.Monitor, log *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg.withDefaults(),
		monitor: monitor,
		log:     log,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func terminal(err error) bool {
	return platform.IsAuth(err) || vault.IsCryptoError(err)
}

// Do runs fn with the retry policy. op names the platform call for logging
// and metrics; userID attributes outcomes to a connection.
func (c *Coordinator) Do(ctx context.Context, userID uint, op string, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts, not wall time

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		c.monitor.RecordCall(userID, op, err)
		if err == nil {
			return nil
		}

		if terminal(err) {
			return err
		}

		if delay, ok := platform.RateLimitDelay(err); ok {
			// Authoritative wait, not a failure: does not consume an attempt.
			c.monitor.RecordRateLimit(userID, op, delay)
			c.log.Warn("rate limited by platform",
				zap.Uint("user_id", userID),
				zap.String("op", op),
				zap.Duration("retry_after", delay),
			)
			if serr := c.sleep(ctx, delay); serr != nil {
				return serr
			}
			continue
		}

		attempts++
		if attempts >= c.cfg.MaxAttempts {
			return err
		}

		wait := bo.NextBackOff()
		c.monitor.RecordRetry(userID, op)
		c.log.Debug("retrying platform call",
			zap.Uint("user_id", userID),
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if serr := c.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}
