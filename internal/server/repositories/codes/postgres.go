// Package codes provides the PostgreSQL-backed verification code store.
package codes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/dbx"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores code and fills its ID.
func (r *PostgresRepository) Insert(ctx context.Context, code *models.VerificationCode) (*models.VerificationCode, error) {
	query := `
		INSERT INTO sms_verification_codes (phone_number, code, purpose, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		code.PhoneNumber, code.Code, string(code.Purpose), code.CreatedAt, code.ExpiresAt).Scan(&code.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	code.Used = false
	return code, nil
}

// FindLatestValid returns the newest unused, unexpired code for
// (phone, purpose), or common.ErrorNotFound. Ties on created_at go to the
// highest id.
func (r *PostgresRepository) FindLatestValid(ctx context.Context, phone string, purpose models.Purpose, now time.Time) (*models.VerificationCode, error) {
	query := `
		SELECT id, phone_number, code, purpose, created_at, expires_at, used
		FROM sms_verification_codes
		WHERE phone_number = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, phone, string(purpose), now)
}

// FindLatestAny returns the newest code for (phone, purpose) regardless of
// its state, or common.ErrorNotFound.
func (r *PostgresRepository) FindLatestAny(ctx context.Context, phone string, purpose models.Purpose) (*models.VerificationCode, error) {
	query := `
		SELECT id, phone_number, code, purpose, created_at, expires_at, used
		FROM sms_verification_codes
		WHERE phone_number = $1 AND purpose = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, phone, string(purpose))
}

// MarkUsed flips used to true. Marking an already used code is not an error.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id int64) error {
	query := `
		UPDATE sms_verification_codes
		SET used = TRUE
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete removes a single code. Used to roll back a failed send.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `
		DELETE FROM sms_verification_codes
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired purges codes whose expiry is not after now and reports how
// many rows went away.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM sms_verification_codes
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.VerificationCode, error) {
	c := &models.VerificationCode{}
	var purpose string
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&c.ID, &c.PhoneNumber, &c.Code, &purpose, &c.CreatedAt, &c.ExpiresAt, &c.Used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	c.Purpose = models.Purpose(purpose)
	return c, nil
}
