package guard

import (
	"sync"
	"time"
)

// LimitRule is one quota configuration: how many requests fit in a window
// and how long an identity is blocked after overflowing it.
type LimitRule struct {
	Points   int           `mapstructure:"points" json:"points"`
	Window   time.Duration `mapstructure:"window" json:"window"`
	BlockFor time.Duration `mapstructure:"block_for" json:"block_for"`
}

// LockoutSettings governs the per-account consecutive-failure lockout.
type LockoutSettings struct {
	Threshold        int           `mapstructure:"threshold" json:"threshold"`
	CaptchaThreshold int           `mapstructure:"captcha_threshold" json:"captcha_threshold"`
	ResetWindow      time.Duration `mapstructure:"reset_window" json:"reset_window"`
	LockFor          time.Duration `mapstructure:"lock_for" json:"lock_for"`
}

// IPSettings governs the per-address attempt-volume ban.
type IPSettings struct {
	Threshold int           `mapstructure:"threshold" json:"threshold"`
	Window    time.Duration `mapstructure:"window" json:"window"`
	BanFor    time.Duration `mapstructure:"ban_for" json:"ban_for"`
}

// CorrelatorSettings governs cross-signal attack detection.
type CorrelatorSettings struct {
	Threshold int           `mapstructure:"threshold" json:"threshold"`
	Window    time.Duration `mapstructure:"window" json:"window"`
}

// DelaySettings governs the progressive response delay.
type DelaySettings struct {
	Enabled     bool          `mapstructure:"enabled" json:"enabled"`
	Base        time.Duration `mapstructure:"base" json:"base"`
	Multiplier  float64       `mapstructure:"multiplier" json:"multiplier"`
	CapExponent int           `mapstructure:"cap_exponent" json:"cap_exponent"`
}

// Settings is the full tunable surface of the guard. It is a plain value:
// all access goes through Config, which owns the synchronization.
type Settings struct {
	Roles     map[string]LimitRule `mapstructure:"roles" json:"roles"`
	Endpoints map[string]LimitRule `mapstructure:"endpoints" json:"endpoints"`
	Guest     LimitRule            `mapstructure:"guest" json:"guest"`

	Lockout    LockoutSettings    `mapstructure:"lockout" json:"lockout"`
	IP         IPSettings         `mapstructure:"ip" json:"ip"`
	Correlator CorrelatorSettings `mapstructure:"correlator" json:"correlator"`
	Delay      DelaySettings      `mapstructure:"delay" json:"delay"`
}

// DefaultSettings returns the static defaults. Every value is overridable
// through configuration or the admin API.
func DefaultSettings() Settings {
	return Settings{
		Roles: map[string]LimitRule{
			"Admin":    {Points: 300, Window: time.Minute, BlockFor: time.Minute},
			"Operator": {Points: 120, Window: time.Minute, BlockFor: time.Minute},
			"Viewer":   {Points: 60, Window: time.Minute, BlockFor: time.Minute},
		},
		Endpoints: map[string]LimitRule{
			"login":           {Points: 10, Window: time.Minute, BlockFor: 5 * time.Minute},
			"password-change": {Points: 5, Window: time.Minute, BlockFor: 5 * time.Minute},
			"device-command":  {Points: 30, Window: time.Minute, BlockFor: time.Minute},
		},
		Guest: LimitRule{Points: 30, Window: time.Minute, BlockFor: 5 * time.Minute},
		Lockout: LockoutSettings{
			Threshold:        5,
			CaptchaThreshold: 3,
			ResetWindow:      15 * time.Minute,
			LockFor:          30 * time.Minute,
		},
		IP: IPSettings{
			Threshold: 10,
			Window:    15 * time.Minute,
			BanFor:    time.Hour,
		},
		Correlator: CorrelatorSettings{
			Threshold: 5,
			Window:    time.Hour,
		},
		Delay: DelaySettings{
			Enabled:     true,
			Base:        500 * time.Millisecond,
			Multiplier:  2,
			CapExponent: 4,
		},
	}
}

// Config holds the guard's mutable configuration. It is owned by the Gate
// and passed by reference to the sub-components; admin updates go through
// Update so readers never observe a half-applied table.
type Config struct {
	mu sync.RWMutex
	s  Settings
}

func NewConfig(s Settings) *Config {
	return &Config{s: s}
}

// Snapshot returns a copy of the current settings. The maps are copied so
// callers can't mutate shared state through the snapshot.
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.s
	s.Roles = copyRules(c.s.Roles)
	s.Endpoints = copyRules(c.s.Endpoints)
	return s
}

// Update replaces the settings wholesale.
func (c *Config) Update(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s = s
}

func (c *Config) lockout() LockoutSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.Lockout
}

func (c *Config) ip() IPSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.IP
}

func (c *Config) correlator() CorrelatorSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.Correlator
}

func (c *Config) delay() DelaySettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.Delay
}

// resolveLimit picks the limit configuration for a request: an endpoint
// rule wins over the caller's role default; unauthenticated callers fall
// back to the guest rule keyed by source address. Unknown roles also land
// on the guest rule rather than erroring.
func (c *Config) resolveLimit(req Request) (scope Scope, bucket, subject string, rule LimitRule) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	caller := req.UserID
	if caller == "" {
		caller = req.IP
	}

	if req.Endpoint != "" {
		if r, ok := c.s.Endpoints[req.Endpoint]; ok {
			return ScopeEndpoint, req.Endpoint, caller, r
		}
	}
	if req.UserID != "" {
		if r, ok := c.s.Roles[req.Role]; ok {
			return ScopeRole, req.Role, req.UserID, r
		}
	}
	return ScopeGuest, "ip", req.IP, c.s.Guest
}

func copyRules(src map[string]LimitRule) map[string]LimitRule {
	dst := make(map[string]LimitRule, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
