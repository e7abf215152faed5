package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
)

// DeviceRepository handles database operations for fleet devices.
type DeviceRepository struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, name, kind, location_id, firmware_rev, status, last_seen_at, created_at, updated_at`

func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	var device models.Device
	query := r.db.Rebind(`SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`)
	err := r.db.GetContext(ctx, &device, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *DeviceRepository) Create(ctx context.Context, device *models.Device) error {
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now
	query := r.db.Rebind(`
		INSERT INTO devices (id, name, kind, location_id, firmware_rev, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		device.ID, device.Name, device.Kind, device.LocationID,
		device.FirmwareRev, device.Status, device.CreatedAt, device.UpdatedAt)
	return err
}

func (r *DeviceRepository) Update(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now()
	query := r.db.Rebind(`
		UPDATE devices SET name = ?, kind = ?, location_id = ?, firmware_rev = ?, status = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query,
		device.Name, device.Kind, device.LocationID, device.FirmwareRev,
		device.Status, device.UpdatedAt, device.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DeviceRepository) Delete(ctx context.Context, id string) error {
	query := r.db.Rebind(`DELETE FROM devices WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DeviceRepository) List(ctx context.Context, locationID *uint) ([]models.Device, error) {
	var devices []models.Device
	if locationID != nil {
		query := r.db.Rebind(`SELECT ` + deviceColumns + ` FROM devices WHERE location_id = ? ORDER BY name`)
		err := r.db.SelectContext(ctx, &devices, query, *locationID)
		return devices, err
	}
	err := r.db.SelectContext(ctx, &devices, `SELECT `+deviceColumns+` FROM devices ORDER BY name`)
	return devices, err
}

// TouchHeartbeat records that a device checked in.
func (r *DeviceRepository) TouchHeartbeat(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE devices SET last_seen_at = ?, status = ?, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, query, at, "online", at, id)
	return err
}
