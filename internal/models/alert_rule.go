package models

import "time"

// AlertRule fires when a device metric crosses a threshold. Delivery of the
// resulting notifications is handled elsewhere; the dashboard only manages
// the rules.
type AlertRule struct {
	ID        uint      `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	DeviceID  *string   `db:"device_id" json:"device_id"`
	Metric    string    `db:"metric" json:"metric"`
	Operator  string    `db:"operator" json:"operator"`
	Threshold float64   `db:"threshold" json:"threshold"`
	Severity  string    `db:"severity" json:"severity"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type AlertRuleRequest struct {
	Name      string  `json:"name" binding:"required"`
	DeviceID  *string `json:"device_id"`
	Metric    string  `json:"metric" binding:"required"`
	Operator  string  `json:"operator" binding:"required,oneof=gt gte lt lte eq"`
	Threshold float64 `json:"threshold"`
	Severity  string  `json:"severity" binding:"required,oneof=info warning critical"`
	Enabled   *bool   `json:"enabled"`
}
