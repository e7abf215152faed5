package models

import "time"

// FailedLoginAttempt is one row of the durable attempt ledger, exposed here
// for the admin listing views. The guard reads and writes the same table
// through its own ledger interface.
type FailedLoginAttempt struct {
	ID               uint      `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	IPAddress        string    `db:"ip_address" json:"ip_address"`
	UserAgent        string    `db:"user_agent" json:"user_agent"`
	Reason           string    `db:"reason" json:"reason"`
	ConsecutiveFails int       `db:"consecutive_fails" json:"consecutive_fails"`
	Locked           bool      `db:"locked" json:"locked"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
