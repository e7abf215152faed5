package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
)

// AttemptRepository is the durable attempt ledger. It implements
// guard.AttemptLedger and additionally serves the admin listing views and
// the retention job. Queries are written with ? placeholders and rebound
// per driver, since deployments run either MySQL or PostgreSQL.
type AttemptRepository struct {
	db *sqlx.DB
}

func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// InsertAttempt appends one failed-attempt row. Rows are never updated
// afterwards except for the locked flag via MarkUnlocked.
func (r *AttemptRepository) InsertAttempt(ctx context.Context, a guard.Attempt) error {
	query := r.db.Rebind(`
		INSERT INTO failed_login_attempts
			(email, ip_address, user_agent, reason, consecutive_fails, locked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		a.Email, a.IP, a.UserAgent, a.Reason, a.ConsecutiveFails, a.Locked, a.CreatedAt)
	return err
}

// CountSince counts an email's failures after the given instant.
func (r *AttemptRepository) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	query := r.db.Rebind(`
		SELECT COUNT(*) FROM failed_login_attempts
		WHERE email = ? AND created_at > ?`)
	err := r.db.GetContext(ctx, &count, query, email, since)
	return count, err
}

// LatestAttempt returns the most recent row for an email, or nil when the
// email has no history.
func (r *AttemptRepository) LatestAttempt(ctx context.Context, email string) (*guard.Attempt, error) {
	var row models.FailedLoginAttempt
	query := r.db.Rebind(`
		SELECT id, email, ip_address, user_agent, reason, consecutive_fails, locked, created_at
		FROM failed_login_attempts
		WHERE email = ?
		ORDER BY created_at DESC
		LIMIT 1`)
	err := r.db.GetContext(ctx, &row, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &guard.Attempt{
		Email:            row.Email,
		IP:               row.IPAddress,
		UserAgent:        row.UserAgent,
		Reason:           row.Reason,
		ConsecutiveFails: row.ConsecutiveFails,
		Locked:           row.Locked,
		CreatedAt:        row.CreatedAt,
	}, nil
}

// DistinctIPsForEmail counts how many distinct addresses produced failures
// against one email since the given instant.
func (r *AttemptRepository) DistinctIPsForEmail(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	query := r.db.Rebind(`
		SELECT COUNT(DISTINCT ip_address) FROM failed_login_attempts
		WHERE email = ? AND created_at > ?`)
	err := r.db.GetContext(ctx, &count, query, email, since)
	return count, err
}

// DistinctEmailsForIP counts how many distinct emails one address attacked
// since the given instant.
func (r *AttemptRepository) DistinctEmailsForIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	query := r.db.Rebind(`
		SELECT COUNT(DISTINCT email) FROM failed_login_attempts
		WHERE ip_address = ? AND created_at > ?`)
	err := r.db.GetContext(ctx, &count, query, ip, since)
	return count, err
}

// MarkUnlocked retroactively clears the locked flag on an email's rows, so
// ledger-based status queries agree with the cache after an admin unlock.
func (r *AttemptRepository) MarkUnlocked(ctx context.Context, email string) error {
	query := r.db.Rebind(`
		UPDATE failed_login_attempts SET locked = ? WHERE email = ? AND locked = ?`)
	_, err := r.db.ExecContext(ctx, query, false, email, true)
	return err
}

// ListRecent returns an email's most recent rows for the admin status view.
func (r *AttemptRepository) ListRecent(ctx context.Context, email string, limit int) ([]models.FailedLoginAttempt, error) {
	var rows []models.FailedLoginAttempt
	query := r.db.Rebind(`
		SELECT id, email, ip_address, user_agent, reason, consecutive_fails, locked, created_at
		FROM failed_login_attempts
		WHERE email = ?
		ORDER BY created_at DESC
		LIMIT ?`)
	err := r.db.SelectContext(ctx, &rows, query, email, limit)
	return rows, err
}

// PruneOlderThan deletes rows past the retention horizon and returns how
// many were removed.
func (r *AttemptRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM failed_login_attempts WHERE created_at < ?`)
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
