package guard

import "log"

// failOpen is the single place where store failures become decisions.
// Availability of the protected service takes priority over strict
// enforcement: every component routes its *StoreError here and returns
// the permissive fallback, so the safety property is auditable in one spot.
func failOpen(err *StoreError, fallback Decision) Decision {
	log.Printf("[GUARD] store failure, failing open: %v", err)
	failOpenTotal.Inc()
	return fallback
}

// failOpenLocked is the lockout-side counterpart: a failed lock check
// reports the account as unlocked.
func failOpenLocked(err *StoreError) LockStatus {
	log.Printf("[GUARD] store failure, failing open: %v", err)
	failOpenTotal.Inc()
	return LockStatus{}
}
