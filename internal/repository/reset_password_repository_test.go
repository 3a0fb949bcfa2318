package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/auth-api/internal/models"
)

var resetRowColumns = []string{"id", "account_id", "expire_at", "created_at", "updated_at"}

func TestRotateExpiresPreviousAndInserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResetPasswordRepository(db)

	now := time.Date(2023, 7, 15, 13, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM accounts WHERE id = \\$1 FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectExec("UPDATE reset_password_tokens SET expire_at = \\$2, updated_at = \\$2 WHERE account_id = \\$1 AND expire_at > \\$2").
		WithArgs("a1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO reset_password_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	token := &models.ResetPasswordToken{ID: "t2", AccountID: "a1", ExpireAt: now.Add(3 * time.Hour)}
	expired, err := repo.Rotate(context.Background(), token, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
	assert.Equal(t, now, token.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResetPasswordRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectExec("UPDATE reset_password_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO reset_password_tokens").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Rotate(context.Background(), &models.ResetPasswordToken{ID: "t1", AccountID: "a1", ExpireAt: now}, now)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeUpdatesPasswordAndExpiresToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResetPasswordRepository(db)

	now := time.Date(2023, 7, 15, 13, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM reset_password_tokens WHERE id = \\$1 FOR UPDATE").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(resetRowColumns).AddRow("t1", "a1", now.Add(time.Hour), now, now))
	mock.ExpectExec("UPDATE accounts SET password_hash").
		WithArgs("a1", "new-hash", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE reset_password_tokens SET expire_at").
		WithArgs("t1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	token, err := repo.Consume(context.Background(), "t1", "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, now, token.ExpireAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeExpiredToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResetPasswordRepository(db)

	now := time.Date(2023, 7, 15, 13, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(resetRowColumns).AddRow("t1", "a1", now, now, now))
	mock.ExpectRollback()

	_, err := repo.Consume(context.Background(), "t1", "new-hash", now)
	assert.ErrorIs(t, err, ErrExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeMissingToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResetPasswordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(resetRowColumns))
	mock.ExpectRollback()

	_, err := repo.Consume(context.Background(), "nope", "hash", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForceExpireIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResetPasswordRepository(db)

	now := time.Now()
	mock.ExpectExec("UPDATE reset_password_tokens SET expire_at = \\$2, updated_at = \\$2 WHERE id = \\$1 AND expire_at > \\$2").
		WithArgs("t1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE reset_password_tokens").
		WithArgs("t1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.ForceExpire(context.Background(), "t1", now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.ForceExpire(context.Background(), "t1", now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
