package guard

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// LockStatus reports whether an identity is currently denied and for how
// much longer.
type LockStatus struct {
	Locked           bool `json:"locked"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

// FailureResult is the outcome of recording one failed authentication
// attempt.
type FailureResult struct {
	FailedAttempts  int  `json:"failed_attempts"`
	Locked          bool `json:"locked"`
	RequiresCaptcha bool `json:"requires_captcha"`
}

// LockoutManager tracks consecutive authentication failures per email and
// locks the account for a fixed duration once the threshold is reached.
// Lock state is two-tier: the cache block mark is the fast path, and the
// durable ledger is the recovery path after a cache flush.
type LockoutManager struct {
	store      CounterStore
	ledger     AttemptLedger
	cfg        *Config
	correlator *Correlator
}

func NewLockoutManager(store CounterStore, ledger AttemptLedger, cfg *Config, correlator *Correlator) *LockoutManager {
	return &LockoutManager{store: store, ledger: ledger, cfg: cfg, correlator: correlator}
}

// CheckLocked reports whether the account is locked. The cache is checked
// first; on a cache miss the state is reconstructed from the ledger. The
// check never errors: store failures report the account as unlocked.
func (m *LockoutManager) CheckLocked(ctx context.Context, email string) LockStatus {
	email = strings.ToLower(email)
	key := accountLockKey(email)
	ttl, err := m.store.TTL(ctx, key)
	if err != nil {
		return failOpenLocked(storeErr("ttl", key, err))
	}
	if ttl > 0 {
		return LockStatus{Locked: true, RemainingSeconds: ceilSeconds(ttl)}
	}
	return m.resolveLockState(ctx, email)
}

// resolveLockState reconstructs lock state from the ledger after the cache
// has gone cold. It is idempotent and its only side effect is lazily
// repopulating the cache block mark when the account turns out to be
// locked. Ledger failures degrade to "unlocked".
func (m *LockoutManager) resolveLockState(ctx context.Context, email string) LockStatus {
	cfg := m.cfg.lockout()

	latest, err := m.ledger.LatestAttempt(ctx, email)
	if err != nil {
		return failOpenLocked(storeErr("latest-attempt", email, err))
	}
	if latest == nil || !latest.Locked {
		return LockStatus{}
	}

	count, err := m.ledger.CountSince(ctx, email, time.Now().Add(-cfg.ResetWindow))
	if err != nil {
		return failOpenLocked(storeErr("count-attempts", email, err))
	}
	if count < cfg.Threshold {
		return LockStatus{}
	}

	remaining := time.Until(latest.CreatedAt.Add(cfg.LockFor))
	if remaining <= 0 {
		return LockStatus{}
	}

	if err := m.store.SetEX(ctx, accountLockKey(email), "1", remaining); err != nil {
		log.Printf("[GUARD] could not repopulate lock mark for %s: %v", email, err)
	}
	return LockStatus{Locked: true, RemainingSeconds: ceilSeconds(remaining)}
}

// RecordFailure appends a ledger row for one failed attempt, escalating to
// a lock when the consecutive count crosses the threshold. The returned
// error reflects only the ledger append; all cache failures degrade and are
// logged. The attack correlator runs as a side effect.
func (m *LockoutManager) RecordFailure(ctx context.Context, email, ip, userAgent, reason string) (FailureResult, error) {
	// Ledger rows share the cache's case folding so both tiers agree on
	// which account a row belongs to.
	email = strings.ToLower(email)
	cfg := m.cfg.lockout()
	failures := m.bumpFailures(ctx, email, cfg)

	res := FailureResult{
		FailedAttempts:  failures,
		Locked:          failures >= cfg.Threshold,
		RequiresCaptcha: failures >= cfg.CaptchaThreshold,
	}

	if res.Locked {
		key := accountLockKey(email)
		if err := m.store.SetEX(ctx, key, "1", cfg.LockFor); err != nil {
			log.Printf("[GUARD] could not write lock mark for %s: %v", email, err)
		}
		log.Printf("[SECURITY] account locked: email=%s ip=%s failures=%d", email, ip, failures)
	}

	err := m.ledger.InsertAttempt(ctx, Attempt{
		Email:            email,
		IP:               ip,
		UserAgent:        userAgent,
		Reason:           reason,
		ConsecutiveFails: failures,
		Locked:           res.Locked,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		log.Printf("[GUARD] ledger append failed for %s: %v", email, err)
		return res, fmt.Errorf("record failed attempt: %w", err)
	}

	if m.correlator != nil {
		m.correlator.Analyze(ctx, email, ip)
	}
	return res, nil
}

// ClearOnSuccess drops the account's cache state (failure counter and block
// mark) after a successful login. Ledger rows are retained for audit, and
// IP-side counters are deliberately untouched: one good login must not
// whitewash an address that is attacking other accounts.
func (m *LockoutManager) ClearOnSuccess(ctx context.Context, email string) {
	if _, err := m.store.Del(ctx, accountFailKey(email), accountLockKey(email)); err != nil {
		log.Printf("[GUARD] could not clear failure state for %s: %v", email, err)
	}
}

// Unlock is the administrative unlock: it clears the fast-path cache state
// and retroactively flips the locked flag on the ledger rows, so status
// queries served from either tier agree.
func (m *LockoutManager) Unlock(ctx context.Context, email string) error {
	email = strings.ToLower(email)
	if _, err := m.store.Del(ctx, accountFailKey(email), accountLockKey(email)); err != nil {
		return storeErr("del", accountLockKey(email), err)
	}
	if err := m.ledger.MarkUnlocked(ctx, email); err != nil {
		return fmt.Errorf("mark ledger unlocked: %w", err)
	}
	log.Printf("[SECURITY] account unlocked by admin: email=%s", email)
	return nil
}

// FailureCount returns the account's current consecutive-failure count from
// the cache. It reads the cache only: ledger rows outlive a successful
// login on purpose, so consulting them here would re-punish an account that
// already cleared its state. Any failure reads as zero.
func (m *LockoutManager) FailureCount(ctx context.Context, email string) int {
	val, ok, err := m.store.Get(ctx, accountFailKey(email))
	if err != nil {
		log.Printf("[GUARD] failure-count read failed for %s: %v", email, err)
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}

// bumpFailures increments the cache failure counter, creating it with the
// reset-window TTL. If the cache is down, the count is reconstructed from
// the ledger so the lock threshold still works, just more slowly.
func (m *LockoutManager) bumpFailures(ctx context.Context, email string, cfg LockoutSettings) int {
	key := accountFailKey(email)
	n, err := m.store.Incr(ctx, key)
	if err == nil {
		if n == 1 {
			if err := m.store.Expire(ctx, key, cfg.ResetWindow); err != nil {
				log.Printf("[GUARD] could not set expiry on %s: %v", key, err)
			}
		}
		return int(n)
	}
	log.Printf("[GUARD] failure-counter increment failed for %s: %v", email, err)

	count, lerr := m.ledger.CountSince(ctx, email, time.Now().Add(-cfg.ResetWindow))
	if lerr != nil {
		return 1
	}
	return count + 1
}
