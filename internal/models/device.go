package models

import "time"

// Device is one managed IoT node. LastSeenAt is bumped by the heartbeat the
// firmware sends with each sensor reading batch.
type Device struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Kind        string     `db:"kind" json:"kind"`
	LocationID  *uint      `db:"location_id" json:"location_id"`
	FirmwareRev string     `db:"firmware_rev" json:"firmware_rev"`
	Status      string     `db:"status" json:"status"`
	LastSeenAt  *time.Time `db:"last_seen_at" json:"last_seen_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

type CreateDeviceRequest struct {
	Name        string `json:"name" binding:"required"`
	Kind        string `json:"kind" binding:"required"`
	LocationID  *uint  `json:"location_id"`
	FirmwareRev string `json:"firmware_rev"`
}

type UpdateDeviceRequest struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	LocationID  *uint  `json:"location_id"`
	FirmwareRev string `json:"firmware_rev"`
	Status      string `json:"status" binding:"omitempty,oneof=online offline maintenance retired"`
}
