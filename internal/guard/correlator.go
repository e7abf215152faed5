package guard

import (
	"context"
	"log"
	"time"
)

// Correlator cross-references the ledger after every recorded failure to
// spot attack shapes no single-identity counter can see: one account hit
// from many addresses (distributed), or one address walking many accounts
// (concentrated). Detection is read-then-maybe-write; failures are logged
// and swallowed, never propagated.
type Correlator struct {
	ledger     AttemptLedger
	reputation *IPReputationTracker
	cfg        *Config
}

func NewCorrelator(ledger AttemptLedger, reputation *IPReputationTracker, cfg *Config) *Correlator {
	return &Correlator{ledger: ledger, reputation: reputation, cfg: cfg}
}

// Analyze runs both correlation queries for the attempt that was just
// recorded. A distributed attack only raises a signal (the account lockout
// already protects the account); a concentrated attack escalates straight
// to an IP ban at twice the normal duration, without waiting for the
// ordinary volume threshold.
func (c *Correlator) Analyze(ctx context.Context, email, ip string) {
	cfg := c.cfg.correlator()
	since := time.Now().Add(-cfg.Window)

	ips, err := c.ledger.DistinctIPsForEmail(ctx, email, since)
	if err != nil {
		log.Printf("[GUARD] correlator distinct-ip query failed for %s: %v", email, err)
	} else if ips >= cfg.Threshold {
		log.Printf("[SECURITY] distributed attack suspected: email=%s distinct_ips=%d window=%s",
			email, ips, cfg.Window)
	}

	emails, err := c.ledger.DistinctEmailsForIP(ctx, ip, since)
	if err != nil {
		log.Printf("[GUARD] correlator distinct-email query failed for %s: %v", ip, err)
		return
	}
	if emails >= cfg.Threshold {
		log.Printf("[SECURITY] concentrated attack detected: ip=%s distinct_emails=%d window=%s",
			ip, emails, cfg.Window)
		c.reputation.Ban(ctx, ip, 2*c.cfg.ip().BanFor)
	}
}
