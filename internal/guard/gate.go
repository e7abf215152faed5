package guard

import (
	"context"
	"errors"
	"time"
)

// ErrMissingIdentity marks a caller contract violation: a login-class check
// without an email or source address. Callers map it to a 4xx response,
// distinct from a rate-limit rejection.
var ErrMissingIdentity = errors.New("guard: missing identity")

// LoginCheck carries the identity of one login-class request.
type LoginCheck struct {
	Email        string
	IP           string
	UserAgent    string
	CaptchaToken string
}

// Gate is the single entry point callers invoke before processing a
// sensitive request. It owns the configuration and composes the quota
// tracker, lockout manager, IP reputation tracker, correlator and delay
// policy.
type Gate struct {
	cfg        *Config
	quota      *QuotaTracker
	lockout    *LockoutManager
	reputation *IPReputationTracker
	delay      *DelayPolicy
}

func New(store CounterStore, ledger AttemptLedger, cfg *Config) *Gate {
	reputation := NewIPReputationTracker(store, cfg)
	correlator := NewCorrelator(ledger, reputation, cfg)
	lockout := NewLockoutManager(store, ledger, cfg, correlator)
	return &Gate{
		cfg:        cfg,
		quota:      NewQuotaTracker(store, cfg),
		lockout:    lockout,
		reputation: reputation,
		delay:      NewDelayPolicy(lockout, cfg),
	}
}

// Config exposes the gate-owned configuration for admin reads and updates.
func (g *Gate) Config() *Config { return g.cfg }

// CheckLogin runs the full login admission sequence: account lock, IP ban,
// CAPTCHA requirement, then the progressive delay. When the request is
// admitted the returned Reporter must be used to report the login outcome;
// it is nil on denial.
func (g *Gate) CheckLogin(ctx context.Context, check LoginCheck) (Decision, *Reporter, error) {
	if check.Email == "" || check.IP == "" {
		return Decision{}, nil, ErrMissingIdentity
	}

	start := time.Now()
	cfg := g.cfg.lockout()

	// Denied and allowed exits alike land in the histogram; the allowed
	// path records before the progressive delay so the artificial wait
	// doesn't pollute the latency.
	observed := false
	observeLatency := func() {
		if !observed {
			observed = true
			decisionDuration.Observe(time.Since(start).Seconds())
		}
	}
	defer observeLatency()

	if st := g.lockout.CheckLocked(ctx, check.Email); st.Locked {
		observeDecision("login", false)
		return deniedFor(st, cfg.Threshold), nil, nil
	}
	if st := g.reputation.CheckBanned(ctx, check.IP); st.Locked {
		observeDecision("login", false)
		return deniedFor(st, cfg.Threshold), nil, nil
	}

	failures := g.lockout.FailureCount(ctx, check.Email)
	remaining := cfg.Threshold - failures
	if remaining < 0 {
		remaining = 0
	}

	if failures >= cfg.CaptchaThreshold && check.CaptchaToken == "" {
		observeDecision("login", false)
		return Decision{
			Allowed:         false,
			Limit:           cfg.Threshold,
			Remaining:       remaining,
			ResetAt:         time.Now().Add(cfg.ResetWindow),
			RequiresCaptcha: true,
		}, nil, nil
	}
	observeLatency()

	// The only intentional suspension point.
	g.delay.Wait(ctx, check.Email)

	observeDecision("login", true)
	return Decision{
		Allowed:         true,
		Limit:           cfg.Threshold,
		Remaining:       remaining,
		ResetAt:         time.Now().Add(cfg.ResetWindow),
		RequiresCaptcha: failures >= cfg.CaptchaThreshold,
	}, &Reporter{gate: g, check: check}, nil
}

// CheckRequest is the general-API path: quota only, no login bookkeeping.
func (g *Gate) CheckRequest(ctx context.Context, req Request) Decision {
	start := time.Now()
	d := g.quota.Admit(ctx, req)
	decisionDuration.Observe(time.Since(start).Seconds())
	return d
}

// ResetLimits is the administrative quota reset for one identity.
func (g *Gate) ResetLimits(ctx context.Context, subject, endpoint string) (int, error) {
	return g.quota.Reset(ctx, subject, endpoint)
}

// UnlockAccount is the administrative unlock (cache and ledger).
func (g *Gate) UnlockAccount(ctx context.Context, email string) error {
	return g.lockout.Unlock(ctx, email)
}

// LiftBan removes an address ban (admin action).
func (g *Gate) LiftBan(ctx context.Context, ip string) error {
	return g.reputation.Lift(ctx, ip)
}

// LockStatus reports an account's lock state for the admin status view.
func (g *Gate) LockStatus(ctx context.Context, email string) (LockStatus, int) {
	return g.lockout.CheckLocked(ctx, email), g.lockout.FailureCount(ctx, email)
}

func deniedFor(st LockStatus, limit int) Decision {
	return Decision{
		Allowed:           false,
		RetryAfterSeconds: st.RemainingSeconds,
		Limit:             limit,
		ResetAt:           time.Now().Add(time.Duration(st.RemainingSeconds) * time.Second),
	}
}

// Reporter carries the outcome callbacks for one admitted login attempt.
// Exactly one of Failure or Success should be called once the underlying
// authentication outcome is known.
type Reporter struct {
	gate  *Gate
	check LoginCheck
}

// Failure records the failed attempt against both the account and the
// source address. The returned result tells the caller whether the account
// just locked and whether a CAPTCHA is now required.
func (r *Reporter) Failure(ctx context.Context, reason string) (FailureResult, error) {
	res, err := r.gate.lockout.RecordFailure(ctx, r.check.Email, r.check.IP, r.check.UserAgent, reason)
	r.gate.reputation.RecordAttempt(ctx, r.check.IP)
	return res, err
}

// Success clears the account's failure state. The IP-side counters are left
// alone on purpose; see LockoutManager.ClearOnSuccess.
func (r *Reporter) Success(ctx context.Context) {
	r.gate.lockout.ClearOnSuccess(ctx, r.check.Email)
}
