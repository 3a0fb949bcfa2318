package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/internal/repository"
	"github.com/noah-isme/auth-api/pkg/clock"
	appErrors "github.com/noah-isme/auth-api/pkg/errors"
)

type resetTokenRepository interface {
	FindByID(ctx context.Context, id string) (*models.ResetPasswordToken, error)
	Rotate(ctx context.Context, token *models.ResetPasswordToken, now time.Time) (int64, error)
	Consume(ctx context.Context, tokenID, passwordHash string, now time.Time) (*models.ResetPasswordToken, error)
	ForceExpire(ctx context.Context, id string, now time.Time) (bool, error)
}

// ResetPasswordConfig defines the reset window and write behaviour.
type ResetPasswordConfig struct {
	TokenExpiry  time.Duration
	WriteTimeout time.Duration
}

// ResetPasswordService drives the single-use password reset tokens. A token
// is active until it expires, is redeemed or is superseded by a newer request
// for the same account; each account has at most one active token.
type ResetPasswordService struct {
	repo    resetTokenRepository
	hasher  *PasswordHasher
	logger  *zap.Logger
	metrics *MetricsService
	clock   clock.Clock
	config  ResetPasswordConfig
}

// NewResetPasswordService constructs a ResetPasswordService instance.
func NewResetPasswordService(repo resetTokenRepository, hasher *PasswordHasher, logger *zap.Logger, metrics *MetricsService, clk clock.Clock, config ResetPasswordConfig) *ResetPasswordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResetPasswordService{repo: repo, hasher: hasher, logger: logger, metrics: metrics, clock: clock.OrSystem(clk), config: config}
}

// RequestReset expires any active token of account and issues a new one.
func (s *ResetPasswordService) RequestReset(ctx context.Context, account *models.Account) (*models.ResetPasswordToken, error) {
	now := s.clock.Now()
	token := &models.ResetPasswordToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		ExpireAt:  now.Add(s.config.TokenExpiry),
	}

	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	superseded, err := s.repo.Rotate(writeCtx, token, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrAccountNotFound
		}
		return nil, appErrors.Unavailable(err, "failed to create reset password token")
	}
	if superseded > 0 {
		s.logger.Info("superseded active reset token", zap.String("account_id", account.ID), zap.Int64("count", superseded))
	}
	s.metrics.ResetTokenEvent("requested")
	return token, nil
}

// Redeem stores newPassword on the owning account and expires the token.
// Stale links fail with ErrResetTokenExpired rather than succeeding.
func (s *ResetPasswordService) Redeem(ctx context.Context, tokenID, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return passwordError(err)
	}

	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	if _, err := s.repo.Consume(writeCtx, tokenID, hash, s.clock.Now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return appErrors.ErrResetTokenNotFound.WithContext("token_id", tokenID)
		case errors.Is(err, repository.ErrExpired):
			return appErrors.ErrResetTokenExpired.WithContext("token_id", tokenID)
		default:
			return appErrors.Unavailable(err, "failed to reset password")
		}
	}
	s.metrics.ResetTokenEvent("redeemed")
	return nil
}

// ForceExpire ends the token now. Expiring an expired token is a no-op.
func (s *ResetPasswordService) ForceExpire(ctx context.Context, tokenID string) error {
	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	changed, err := s.repo.ForceExpire(writeCtx, tokenID, s.clock.Now())
	if err != nil {
		return appErrors.Unavailable(err, "failed to expire reset password token")
	}
	if changed {
		s.metrics.ResetTokenEvent("expired")
	}
	return nil
}

// Check returns the token while it can still be redeemed.
func (s *ResetPasswordService) Check(ctx context.Context, tokenID string) (*models.ResetPasswordToken, error) {
	token, err := s.repo.FindByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrResetTokenNotFound.WithContext("token_id", tokenID)
		}
		return nil, appErrors.Unavailable(err, "failed to load reset password token")
	}
	if token.IsExpired(s.clock.Now()) {
		return nil, appErrors.ErrResetTokenExpired.WithContext("token_id", tokenID)
	}
	return token, nil
}

func passwordError(err error) error {
	if errors.Is(err, ErrPasswordLength) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
}
