package notify

import (
	"context"
	"time"

	"interbot/internal/transport"
	"interbot/pkg/logx"

	"golang.org/x/time/rate"
)

// Config tunes delivery pacing and retries.
type Config struct {
	// RatePerSec caps outgoing messages per second across all users.
	RatePerSec int
	// RetryMax is the number of re-attempts after a failed send.
	RetryMax int
	// RetryBase is the delay before the first retry; each retry doubles it.
	RetryBase time.Duration
}

func (c *Config) applyDefaults() {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
}

// Sink delivers scheduler notifications to users over the chat transport.
// Sends are paced by a shared token bucket so a burst of loops waking at
// once does not trip the transport's flood limits.
type Sink struct {
	log     logx.Logger
	adapter transport.Adapter
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Sink {
	cfg.applyDefaults()
	return &Sink{
		log:     log,
		adapter: adapter,
		cfg:     cfg,
		// Burst equals the per-second rate so short spikes drain quickly.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Send delivers text to the user's chat, retrying transient failures with
// exponential backoff. Blocks until delivered, retries are exhausted or ctx
// is cancelled.
func (s *Sink) Send(ctx context.Context, userID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBase << (attempt - 1)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: userID}, text, nil)
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Warn("notification send failed",
			logx.Int64("user_id", userID),
			logx.Int("attempt", attempt+1),
			logx.Err(err))
	}
	return lastErr
}
