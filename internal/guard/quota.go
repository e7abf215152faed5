package guard

import (
	"context"
	"strconv"
	"time"
)

// Request identifies the caller of a general API request for quota purposes.
// UserID and Role are empty for unauthenticated callers; Endpoint names a
// configured endpoint category and may be empty.
type Request struct {
	UserID   string
	Role     string
	IP       string
	Endpoint string
}

// Decision is the structured outcome of an admission check. HTTP callers
// map Allowed=false to a 429 with Retry-After = RetryAfterSeconds, and
// RequiresCaptcha=true without a verification token to the same.
type Decision struct {
	Allowed           bool      `json:"allowed"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetAt           time.Time `json:"reset_at"`
	RequiresCaptcha   bool      `json:"requires_captcha"`
}

// QuotaTracker is the generic per-identity, per-scope sliding-window
// counter. Windows live entirely in the ephemeral store; a window is the
// counter key's TTL, and overflow converts into a block mark rather than
// extending the window, to punish sustained abuse.
type QuotaTracker struct {
	store CounterStore
	cfg   *Config
}

func NewQuotaTracker(store CounterStore, cfg *Config) *QuotaTracker {
	return &QuotaTracker{store: store, cfg: cfg}
}

// Admit decides whether one request fits the caller's quota and consumes a
// point if it does. The read-then-increment sequence is deliberately not
// atomic as a unit; under N concurrent racers at the quota boundary at most
// N-1 extra requests slip through before the block lands.
func (t *QuotaTracker) Admit(ctx context.Context, req Request) Decision {
	scope, bucket, subject, rule := t.cfg.resolveLimit(req)

	cntKey := counterKey(scope, bucket, subject)
	blkKey := blockKey(scope, bucket, subject)
	now := time.Now()

	allowAll := Decision{
		Allowed:   true,
		Limit:     rule.Points,
		Remaining: rule.Points,
		ResetAt:   now.Add(rule.Window),
	}

	// A live block mark is authoritative; the counter is not consulted.
	blockTTL, err := t.store.TTL(ctx, blkKey)
	if err != nil {
		return failOpen(storeErr("ttl", blkKey, err), allowAll)
	}
	if blockTTL > 0 {
		d := Decision{
			Allowed:           false,
			RetryAfterSeconds: ceilSeconds(blockTTL),
			Limit:             rule.Points,
			ResetAt:           now.Add(blockTTL),
		}
		observeDecision("quota", false)
		return d
	}

	count, err := t.currentCount(ctx, cntKey)
	if err != nil {
		return failOpen(storeErr("get", cntKey, err), allowAll)
	}

	if count >= rule.Points {
		// Overflow transition: the window becomes a block.
		if err := t.store.SetEX(ctx, blkKey, "1", rule.BlockFor); err != nil {
			return failOpen(storeErr("setex", blkKey, err), allowAll)
		}
		d := Decision{
			Allowed:           false,
			RetryAfterSeconds: ceilSeconds(rule.BlockFor),
			Limit:             rule.Points,
			ResetAt:           now.Add(rule.BlockFor),
		}
		observeDecision("quota", false)
		return d
	}

	newCount, err := t.store.Incr(ctx, cntKey)
	if err != nil {
		return failOpen(storeErr("incr", cntKey, err), allowAll)
	}
	if newCount == 1 {
		// First request of a fresh window; Incr does not set expiry.
		if err := t.store.Expire(ctx, cntKey, rule.Window); err != nil {
			return failOpen(storeErr("expire", cntKey, err), allowAll)
		}
	}

	resetAt := now.Add(rule.Window)
	if ttl, err := t.store.TTL(ctx, cntKey); err == nil && ttl > 0 {
		resetAt = now.Add(ttl)
	}

	remaining := rule.Points - int(newCount)
	if remaining < 0 {
		remaining = 0
	}
	observeDecision("quota", true)
	return Decision{
		Allowed:   true,
		Limit:     rule.Points,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Reset removes the counter and any block mark for an identity, optionally
// narrowed to one endpoint category, and reports how many keys were removed.
func (t *QuotaTracker) Reset(ctx context.Context, subject, endpoint string) (int, error) {
	var keys []string
	for _, pattern := range resetPatterns(subject, endpoint) {
		matches, err := t.store.Scan(ctx, pattern)
		if err != nil {
			return 0, storeErr("scan", pattern, err)
		}
		keys = append(keys, matches...)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := t.store.Del(ctx, keys...)
	if err != nil {
		return 0, storeErr("del", keys[0], err)
	}
	return int(removed), nil
}

func (t *QuotaTracker) currentCount(ctx context.Context, key string) (int, error) {
	val, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		// A corrupt counter is treated as absent; the window restarts.
		return 0, nil
	}
	return n, nil
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
