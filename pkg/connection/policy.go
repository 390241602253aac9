package connection

import (
	"math"
	"time"

	"github.com/MrWong99/parley/pkg/transport"
)

// Default reconnection parameters.
const (
	defaultMinDelay      = 500 * time.Millisecond
	defaultMaxDelay      = 30 * time.Second
	defaultBackoffFactor = 2.0
	defaultJitterRatio   = 0.2
)

// ReconnectPolicy controls automatic reconnection after an unexpected close.
// Zero fields fall back to the defaults of [DefaultReconnectPolicy], except
// JitterRatio and MaxAttempts whose zero values are meaningful.
type ReconnectPolicy struct {
	// MinDelay is the delay before the first attempt.
	MinDelay time.Duration

	// MaxDelay caps every computed delay, jitter included.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay on each further attempt. Values
	// below 1 are treated as 1.
	BackoffFactor float64

	// JitterRatio is the fraction of the raw delay added or subtracted at
	// random. Clamped to [0, 1].
	JitterRatio float64

	// MaxAttempts bounds consecutive attempts without a successful open.
	// Zero means unlimited.
	MaxAttempts int

	// ShouldReconnect, when set, can veto a retry. attempts is the number of
	// attempts already made since the last successful open. It runs with the
	// manager's lock held and must not call back into the manager.
	ShouldReconnect func(ev transport.CloseEvent, attempts int) bool
}

// DefaultReconnectPolicy returns a policy with a 500ms first delay doubling
// up to 30s, 20% jitter and unlimited attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MinDelay:      defaultMinDelay,
		MaxDelay:      defaultMaxDelay,
		BackoffFactor: defaultBackoffFactor,
		JitterRatio:   defaultJitterRatio,
	}
}

func (p ReconnectPolicy) normalized() ReconnectPolicy {
	if p.MinDelay <= 0 {
		p.MinDelay = defaultMinDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.BackoffFactor == 0 {
		p.BackoffFactor = defaultBackoffFactor
	}
	if p.BackoffFactor < 1 || math.IsNaN(p.BackoffFactor) {
		p.BackoffFactor = 1
	}
	switch {
	case p.JitterRatio < 0 || math.IsNaN(p.JitterRatio):
		p.JitterRatio = 0
	case p.JitterRatio > 1:
		p.JitterRatio = 1
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

// Delay returns the wait before the given 1-based attempt. r is a uniform
// random number in [0, 1) selecting the jitter offset; r = 0.5 means no
// jitter. The result always lies in [0, MaxDelay], and for a fixed r it is
// non-decreasing in attempt.
func (p ReconnectPolicy) Delay(attempt int, r float64) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	maxDelay := float64(p.MaxDelay)

	raw := float64(p.MinDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	raw = math.Min(raw, maxDelay)

	jitter := raw * p.JitterRatio
	d := raw + (2*r-1)*jitter
	d = math.Max(0, math.Min(d, maxDelay))
	return time.Duration(d)
}
