package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
)

// AlertRuleRepository handles database operations for alert rules.
type AlertRuleRepository struct {
	db *sqlx.DB
}

func NewAlertRuleRepository(db *sqlx.DB) *AlertRuleRepository {
	return &AlertRuleRepository{db: db}
}

const alertRuleColumns = `id, name, device_id, metric, operator, threshold, severity, enabled, created_at, updated_at`

func (r *AlertRuleRepository) GetByID(ctx context.Context, id uint) (*models.AlertRule, error) {
	var rule models.AlertRule
	query := r.db.Rebind(`SELECT ` + alertRuleColumns + ` FROM alert_rules WHERE id = ?`)
	err := r.db.GetContext(ctx, &rule, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *AlertRuleRepository) Create(ctx context.Context, rule *models.AlertRule) error {
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	query := r.db.Rebind(`
		INSERT INTO alert_rules (name, device_id, metric, operator, threshold, severity, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.DeviceID, rule.Metric, rule.Operator,
		rule.Threshold, rule.Severity, rule.Enabled, rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (r *AlertRuleRepository) Update(ctx context.Context, rule *models.AlertRule) error {
	rule.UpdatedAt = time.Now()
	query := r.db.Rebind(`
		UPDATE alert_rules SET name = ?, device_id = ?, metric = ?, operator = ?, threshold = ?, severity = ?, enabled = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.DeviceID, rule.Metric, rule.Operator,
		rule.Threshold, rule.Severity, rule.Enabled, rule.UpdatedAt, rule.ID)
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

func (r *AlertRuleRepository) Delete(ctx context.Context, id uint) error {
	query := r.db.Rebind(`DELETE FROM alert_rules WHERE id = ?`)
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

func (r *AlertRuleRepository) List(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := r.db.SelectContext(ctx, &rules, `SELECT `+alertRuleColumns+` FROM alert_rules ORDER BY name`)
	return rules, err
}
