package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kbirk/wamp/pkg/wamp"
)

type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// MaxAttempts bounds consecutive failed connects, 0 means unlimited.
	MaxAttempts int
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Reconnect keeps a session to uri alive until ctx is done. onSession is
// called with every newly joined session; when that session disconnects the
// client connects again, backing off after failed attempts. The live session
// is closed when ctx is done.
func (c *Client) Reconnect(ctx context.Context, uri string, realm string, backoff BackoffConfig, onSession func(*wamp.Session)) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0

	for {
		session, err := c.Connect(ctx, uri, realm)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			attempt++
			if backoff.MaxAttempts > 0 && attempt >= backoff.MaxAttempts {
				return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
			}

			delay := NextBackoffDelay(backoff, attempt, rng)
			c.logWarn(fmt.Sprintf("Failed to connect: %v, retrying in %s", err, delay))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		attempt = 0
		c.logInfo(fmt.Sprintf("Connected to %s as session %d", uri, session.ID()))
		if onSession != nil {
			onSession(session)
		}

		select {
		case <-ctx.Done():
			session.Close()
			return ctx.Err()
		case <-session.Done():
			c.logWarn("Session disconnected, reconnecting")
		}
	}
}
