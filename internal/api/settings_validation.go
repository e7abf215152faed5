package api

import (
	"fmt"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
)

// validateSettings rejects guard configurations that would disable the
// protections outright or make counters meaningless.
func validateSettings(s guard.Settings) error {
	check := func(name string, r guard.LimitRule) error {
		if r.Points <= 0 {
			return fmt.Errorf("%s: points must be positive", name)
		}
		if r.Window <= 0 {
			return fmt.Errorf("%s: window must be positive", name)
		}
		if r.BlockFor <= 0 {
			return fmt.Errorf("%s: block_for must be positive", name)
		}
		return nil
	}

	for role, r := range s.Roles {
		if err := check("roles."+role, r); err != nil {
			return err
		}
	}
	for ep, r := range s.Endpoints {
		if err := check("endpoints."+ep, r); err != nil {
			return err
		}
	}
	if err := check("guest", s.Guest); err != nil {
		return err
	}

	if s.Lockout.Threshold <= 0 {
		return fmt.Errorf("lockout.threshold must be positive")
	}
	if s.Lockout.CaptchaThreshold < 0 || s.Lockout.CaptchaThreshold > s.Lockout.Threshold {
		return fmt.Errorf("lockout.captcha_threshold must be between 0 and the lockout threshold")
	}
	if s.Lockout.ResetWindow <= 0 || s.Lockout.LockFor <= 0 {
		return fmt.Errorf("lockout windows must be positive")
	}
	if s.IP.Threshold <= 0 || s.IP.Window <= 0 || s.IP.BanFor <= 0 {
		return fmt.Errorf("ip settings must be positive")
	}
	if s.Correlator.Threshold <= 0 || s.Correlator.Window <= 0 {
		return fmt.Errorf("correlator settings must be positive")
	}
	if s.Delay.Enabled {
		if s.Delay.Base <= 0 {
			return fmt.Errorf("delay.base must be positive")
		}
		if s.Delay.Multiplier < 1 {
			return fmt.Errorf("delay.multiplier must be at least 1")
		}
		if s.Delay.CapExponent < 0 {
			return fmt.Errorf("delay.cap_exponent must not be negative")
		}
	}
	return nil
}
