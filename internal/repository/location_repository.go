package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
)

// LocationRepository handles database operations for sites.
type LocationRepository struct {
	db *sqlx.DB
}

func NewLocationRepository(db *sqlx.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

func (r *LocationRepository) GetByID(ctx context.Context, id uint) (*models.Location, error) {
	var loc models.Location
	query := r.db.Rebind(`SELECT id, name, address, timezone, created_at, updated_at FROM locations WHERE id = ?`)
	err := r.db.GetContext(ctx, &loc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (r *LocationRepository) Create(ctx context.Context, loc *models.Location) error {
	now := time.Now()
	loc.CreatedAt = now
	loc.UpdatedAt = now
	query := r.db.Rebind(`
		INSERT INTO locations (name, address, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, loc.Name, loc.Address, loc.Timezone, loc.CreatedAt, loc.UpdatedAt)
	return err
}

func (r *LocationRepository) Update(ctx context.Context, loc *models.Location) error {
	loc.UpdatedAt = time.Now()
	query := r.db.Rebind(`UPDATE locations SET name = ?, address = ?, timezone = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, loc.Name, loc.Address, loc.Timezone, loc.UpdatedAt, loc.ID)
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

func (r *LocationRepository) Delete(ctx context.Context, id uint) error {
	query := r.db.Rebind(`DELETE FROM locations WHERE id = ?`)
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

func (r *LocationRepository) List(ctx context.Context) ([]models.Location, error) {
	var locs []models.Location
	err := r.db.SelectContext(ctx, &locs,
		`SELECT id, name, address, timezone, created_at, updated_at FROM locations ORDER BY name`)
	return locs, err
}
