package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys_ScopesNeverCollide(t *testing.T) {
	// The same subject string across every scope/bucket combination must
	// yield distinct keys; a collision would let one axis's block leak
	// into another.
	subject := "203.0.113.7"
	keys := []string{
		counterKey(ScopeRole, "Admin", subject),
		counterKey(ScopeEndpoint, "login", subject),
		counterKey(ScopeGuest, "ip", subject),
		accountFailKey(subject),
		ipAttemptKey(subject),
		blockKey(ScopeRole, "Admin", subject),
		blockKey(ScopeEndpoint, "login", subject),
		blockKey(ScopeGuest, "ip", subject),
		accountLockKey(subject),
		ipBanKey(subject),
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %q", k)
		seen[k] = true
	}
}

func TestKeys_CounterAndBlockDiffer(t *testing.T) {
	assert.NotEqual(t,
		counterKey(ScopeEndpoint, "login", "42"),
		blockKey(ScopeEndpoint, "login", "42"))
}

func TestKeys_EmailCaseFolded(t *testing.T) {
	assert.Equal(t, accountLockKey("User@Example.COM"), accountLockKey("user@example.com"))
	assert.Equal(t, accountFailKey("User@Example.COM"), accountFailKey("user@example.com"))
}

func TestResetPatterns(t *testing.T) {
	patterns := resetPatterns("42", "")
	assert.Len(t, patterns, 2)

	scoped := resetPatterns("42", "telemetry")
	assert.Contains(t, scoped, counterKey(ScopeEndpoint, "telemetry", "42"))
	assert.Contains(t, scoped, blockKey(ScopeEndpoint, "telemetry", "42"))
}
