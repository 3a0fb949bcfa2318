package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/auth-api/internal/models"
)

const resetTokenColumns = `id, account_id, expire_at, created_at, updated_at`

// ResetPasswordRepository persists password reset tokens. Rows are only ever
// inserted or expired, never deleted.
type ResetPasswordRepository struct {
	db *sqlx.DB
}

// NewResetPasswordRepository creates a new instance of ResetPasswordRepository.
func NewResetPasswordRepository(db *sqlx.DB) *ResetPasswordRepository {
	return &ResetPasswordRepository{db: db}
}

// FindByID returns a reset token by identifier.
func (r *ResetPasswordRepository) FindByID(ctx context.Context, id string) (*models.ResetPasswordToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM reset_password_tokens WHERE id = $1 LIMIT 1`, resetTokenColumns)
	var token models.ResetPasswordToken
	if err := r.db.GetContext(ctx, &token, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	return &token, nil
}

// Rotate expires every active token of the account and inserts token, all
// while holding the account row lock so concurrent requests for the same
// account serialize.
func (r *ResetPasswordRepository) Rotate(ctx context.Context, token *models.ResetPasswordToken, now time.Time) (expired int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset token transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockAccount(ctx, tx, token.AccountID); err != nil {
		return 0, err
	}

	const expireQuery = `UPDATE reset_password_tokens SET expire_at = $2, updated_at = $2 WHERE account_id = $1 AND expire_at > $2`
	res, err := tx.ExecContext(ctx, expireQuery, token.AccountID, now)
	if err != nil {
		return 0, fmt.Errorf("expire previous reset tokens: %w", err)
	}
	expired, _ = res.RowsAffected()

	token.CreatedAt = now
	token.UpdatedAt = now
	const insertQuery = `INSERT INTO reset_password_tokens (id, account_id, expire_at, created_at, updated_at) VALUES (:id, :account_id, :expire_at, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, token); err != nil {
		return 0, fmt.Errorf("insert reset token: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset token: %w", err)
	}
	return expired, nil
}

// Consume stores passwordHash on the token's account and expires the token in
// one transaction. It fails with ErrNotFound or ErrExpired when the token can
// no longer be redeemed at now.
func (r *ResetPasswordRepository) Consume(ctx context.Context, tokenID, passwordHash string, now time.Time) (token *models.ResetPasswordToken, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reset redeem transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked models.ResetPasswordToken
	query := fmt.Sprintf(`SELECT %s FROM reset_password_tokens WHERE id = $1 FOR UPDATE`, resetTokenColumns)
	if err = tx.GetContext(ctx, &locked, query, tokenID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock reset token: %w", err)
	}
	if locked.IsExpired(now) {
		return &locked, ErrExpired
	}

	const passwordQuery = `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, passwordQuery, locked.AccountID, passwordHash, now); err != nil {
		return nil, fmt.Errorf("update account password: %w", err)
	}

	const expireQuery = `UPDATE reset_password_tokens SET expire_at = $2, updated_at = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, expireQuery, locked.ID, now); err != nil {
		return nil, fmt.Errorf("expire reset token: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reset redeem: %w", err)
	}
	locked.ExpireAt = now
	locked.UpdatedAt = now
	return &locked, nil
}

// ForceExpire rewrites expire_at to now. Already expired tokens are left as
// they are, so the call is idempotent.
func (r *ResetPasswordRepository) ForceExpire(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE reset_password_tokens SET expire_at = $2, updated_at = $2 WHERE id = $1 AND expire_at > $2`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("force expire reset token: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func lockAccount(ctx context.Context, tx *sqlx.Tx, accountID string) error {
	var id string
	const query = `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &id, query, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock account: %w", err)
	}
	return nil
}
