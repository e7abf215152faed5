package guard

import (
	"fmt"
	"strings"
)

// Scope is the axis a counter or block mark is partitioned along. Keys are
// always built through the functions below so two scopes can never collide
// on the same Redis key.
type Scope int

const (
	ScopeRole Scope = iota
	ScopeEndpoint
	ScopeGuest
	ScopeAccount
	ScopeIP
)

func (s Scope) String() string {
	switch s {
	case ScopeRole:
		return "role"
	case ScopeEndpoint:
		return "endpoint"
	case ScopeGuest:
		return "guest"
	case ScopeAccount:
		return "account"
	case ScopeIP:
		return "ip"
	}
	return "unknown"
}

const keyRoot = "guard"

// counterKey addresses the sliding-window counter for one identity within
// one scope bucket (a role name, an endpoint name, or a literal bucket such
// as "fail" for consecutive account failures).
func counterKey(scope Scope, bucket, subject string) string {
	return fmt.Sprintf("%s:cnt:%s:%s:%s", keyRoot, scope, bucket, subject)
}

// blockKey addresses the block mark for one identity within one scope
// bucket. A live block mark is authoritative over any counter value.
func blockKey(scope Scope, bucket, subject string) string {
	return fmt.Sprintf("%s:blk:%s:%s:%s", keyRoot, scope, bucket, subject)
}

// Account lockout keys. Emails are case-folded so "User@X" and "user@x"
// share one lock state.

func accountFailKey(email string) string {
	return counterKey(ScopeAccount, "fail", strings.ToLower(email))
}

func accountLockKey(email string) string {
	return blockKey(ScopeAccount, "lock", strings.ToLower(email))
}

// IP reputation keys.

func ipAttemptKey(ip string) string {
	return counterKey(ScopeIP, "fail", ip)
}

func ipBanKey(ip string) string {
	return blockKey(ScopeIP, "ban", ip)
}

// resetPatterns returns the scan patterns matching every quota counter and
// block mark held for subject, optionally narrowed to one endpoint bucket.
func resetPatterns(subject, endpoint string) []string {
	if endpoint != "" {
		return []string{
			counterKey(ScopeEndpoint, endpoint, subject),
			blockKey(ScopeEndpoint, endpoint, subject),
		}
	}
	return []string{
		fmt.Sprintf("%s:cnt:*:*:%s", keyRoot, subject),
		fmt.Sprintf("%s:blk:*:*:%s", keyRoot, subject),
	}
}
