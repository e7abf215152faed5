package guard

import (
	"context"
	"log"
	"time"
)

// IPReputationTracker bans source addresses by failed-attempt volume. Unlike
// the account lockout it does not count consecutive failures against one
// account: an address can spread its attempts across many accounts without
// any of them locking, and still earn a ban. The ban lives only in the
// cache; there is no ledger-reconstruction path on this axis.
type IPReputationTracker struct {
	store CounterStore
	cfg   *Config
}

func NewIPReputationTracker(store CounterStore, cfg *Config) *IPReputationTracker {
	return &IPReputationTracker{store: store, cfg: cfg}
}

// CheckBanned reports whether the address is currently banned. Store
// failures report it as clean.
func (t *IPReputationTracker) CheckBanned(ctx context.Context, ip string) LockStatus {
	key := ipBanKey(ip)
	ttl, err := t.store.TTL(ctx, key)
	if err != nil {
		return failOpenLocked(storeErr("ttl", key, err))
	}
	if ttl > 0 {
		return LockStatus{Locked: true, RemainingSeconds: ceilSeconds(ttl)}
	}
	return LockStatus{}
}

// RecordAttempt counts one failed attempt from the address and bans it once
// the volume threshold is reached. All failures are swallowed and logged;
// recording reputation must never block the caller's flow.
func (t *IPReputationTracker) RecordAttempt(ctx context.Context, ip string) {
	cfg := t.cfg.ip()
	key := ipAttemptKey(ip)

	n, err := t.store.Incr(ctx, key)
	if err != nil {
		log.Printf("[GUARD] ip attempt count failed for %s: %v", ip, err)
		return
	}
	if n == 1 {
		if err := t.store.Expire(ctx, key, cfg.Window); err != nil {
			log.Printf("[GUARD] could not set expiry on %s: %v", key, err)
		}
	}
	if int(n) >= cfg.Threshold {
		t.Ban(ctx, ip, cfg.BanFor)
	}
}

// Ban writes the ban mark directly. Also used by the attack correlator for
// escalated bans and by the admin API.
func (t *IPReputationTracker) Ban(ctx context.Context, ip string, d time.Duration) {
	if err := t.store.SetEX(ctx, ipBanKey(ip), "1", d); err != nil {
		log.Printf("[GUARD] could not write ip ban for %s: %v", ip, err)
		return
	}
	log.Printf("[SECURITY] ip banned: ip=%s duration=%s", ip, d)
}

// Lift removes a ban and the accumulated attempt counter (admin action).
func (t *IPReputationTracker) Lift(ctx context.Context, ip string) error {
	if _, err := t.store.Del(ctx, ipBanKey(ip), ipAttemptKey(ip)); err != nil {
		return storeErr("del", ipBanKey(ip), err)
	}
	return nil
}
