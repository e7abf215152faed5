package guard

import (
	"context"
	"math"
	"time"
)

// DelayPolicy slows repeated authentication attempts with a capped
// exponential response delay, so credential stuffing gets expensive well
// before the hard lock. It only ever suspends the current request's flow.
type DelayPolicy struct {
	lockout *LockoutManager
	cfg     *Config
}

func NewDelayPolicy(lockout *LockoutManager, cfg *Config) *DelayPolicy {
	return &DelayPolicy{lockout: lockout, cfg: cfg}
}

// Wait sleeps for the computed delay before returning. A clean identity
// (zero recent failures) or a disabled policy is a no-op, and Wait never
// fails: an unreadable failure count degrades to no delay, not rejection.
// Cancelling the context ends the wait early.
func (p *DelayPolicy) Wait(ctx context.Context, email string) {
	cfg := p.cfg.delay()
	if !cfg.Enabled {
		return
	}
	failures := p.lockout.FailureCount(ctx, email)
	d := computeDelay(cfg, failures)
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// computeDelay returns base * multiplier^min(failures-1, cap), and zero for
// a clean first attempt.
func computeDelay(cfg DelaySettings, failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	exp := failures - 1
	if exp > cfg.CapExponent {
		exp = cfg.CapExponent
	}
	return time.Duration(float64(cfg.Base) * math.Pow(cfg.Multiplier, float64(exp)))
}
