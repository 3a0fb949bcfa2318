package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/auth-api/internal/models"
)

const accountColumns = `id, email, password_hash, confirmed, confirmation_key, last_login, created_at, updated_at`

// AccountRepository provides database access for accounts.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByID returns an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, "id", id)
}

// FindByEmail returns an account by email address.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, "email", strings.ToLower(email))
}

// FindByConfirmationKey returns the account owning the confirmation key.
func (r *AccountRepository) FindByConfirmationKey(ctx context.Context, key string) (*models.Account, error) {
	return r.findOne(ctx, "confirmation_key", key)
}

func (r *AccountRepository) findOne(ctx context.Context, column, value string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s = $1 LIMIT 1`, accountColumns, column)
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find account by %s: %w", column, err)
	}
	return &account, nil
}

// Create inserts a new account. A taken email yields ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.ConfirmationKey == "" {
		account.ConfirmationKey = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.UpdatedAt = account.CreatedAt
	account.Email = strings.ToLower(account.Email)

	const query = `INSERT INTO accounts (id, email, password_hash, confirmed, confirmation_key, last_login, created_at, updated_at) VALUES (:id, :email, :password_hash, :confirmed, :confirmation_key, :last_login, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Update writes only the fields set on update and returns the stored row.
func (r *AccountRepository) Update(ctx context.Context, id string, update models.AccountUpdate, updatedAt time.Time) (*models.Account, error) {
	if update.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	sets, args := updateAssignments(update)
	args = append(args, updatedAt, id)
	query := fmt.Sprintf(`UPDATE accounts SET %s, updated_at = $%d WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), accountColumns)

	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	return &account, nil
}

// Confirm flips an unconfirmed account to confirmed. ErrNotFound means no
// unconfirmed account with that id exists, either because it is gone or
// because another request confirmed it first.
func (r *AccountRepository) Confirm(ctx context.Context, id string, updatedAt time.Time) (*models.Account, error) {
	query := fmt.Sprintf(`UPDATE accounts SET confirmed = TRUE, updated_at = $1 WHERE id = $2 AND confirmed = FALSE RETURNING %s`, accountColumns)
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, updatedAt, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("confirm account: %w", err)
	}
	return &account, nil
}

// Delete removes an account. Its reset tokens go with it.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func updateAssignments(update models.AccountUpdate) ([]string, []interface{}) {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Email != nil {
		add("email", strings.ToLower(*update.Email))
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.LastLogin != nil {
		add("last_login", *update.LastLogin)
	}
	return sets, args
}
