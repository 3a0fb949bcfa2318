package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/internal/repository"
	"github.com/noah-isme/auth-api/pkg/clock"
	appErrors "github.com/noah-isme/auth-api/pkg/errors"
)

type accountRepository interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByConfirmationKey(ctx context.Context, key string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, id string, update models.AccountUpdate, updatedAt time.Time) (*models.Account, error)
	Confirm(ctx context.Context, id string, updatedAt time.Time) (*models.Account, error)
	Delete(ctx context.Context, id string) error
}

type accountNotifier interface {
	SendConfirmationEmail(ctx context.Context, address, key string) error
	SendResetEmail(ctx context.Context, address, tokenID string) error
}

type resetTokenIssuer interface {
	RequestReset(ctx context.Context, account *models.Account) (*models.ResetPasswordToken, error)
	Redeem(ctx context.Context, tokenID, newPassword string) error
	Check(ctx context.Context, tokenID string) (*models.ResetPasswordToken, error)
	ForceExpire(ctx context.Context, tokenID string) error
}

type tokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// AccountConfig governs the confirmation window and write behaviour.
type AccountConfig struct {
	ActivationWindow time.Duration
	WriteTimeout     time.Duration
}

// AccountService handles registration, email confirmation and password
// management for accounts.
type AccountService struct {
	repo      accountRepository
	resets    resetTokenIssuer
	revoker   tokenRevoker
	notifier  accountNotifier
	hasher    *PasswordHasher
	validator *validator.Validate
	logger    *zap.Logger
	clock     clock.Clock
	config    AccountConfig
}

// NewAccountService constructs an AccountService instance.
func NewAccountService(repo accountRepository, resets resetTokenIssuer, revoker tokenRevoker, notifier accountNotifier, hasher *PasswordHasher, validate *validator.Validate, logger *zap.Logger, clk clock.Clock, config AccountConfig) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AccountService{
		repo:      repo,
		resets:    resets,
		revoker:   revoker,
		notifier:  notifier,
		hasher:    hasher,
		validator: validate,
		logger:    logger,
		clock:     clock.OrSystem(clk),
		config:    config,
	}
}

// Register creates an unconfirmed account and sends its confirmation link.
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, passwordError(err)
	}

	account := &models.Account{
		ID:              uuid.NewString(),
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:    hash,
		ConfirmationKey: uuid.NewString(),
		CreatedAt:       s.clock.Now(),
	}

	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	if err := s.repo.Create(writeCtx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrDuplicateAccount.WithContext("email", account.Email)
		}
		return nil, appErrors.Unavailable(err, "failed to create account")
	}

	if err := s.notifier.SendConfirmationEmail(ctx, account.Email, account.ConfirmationKey); err != nil {
		s.logger.Warn("failed to send confirmation email", zap.String("account_id", account.ID), zap.Error(err))
	}
	return account, nil
}

// ConfirmEmail confirms the account owning key.
func (s *AccountService) ConfirmEmail(ctx context.Context, req models.ConfirmEmailRequest) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid confirmation key")
	}
	account, err := s.repo.FindByConfirmationKey(ctx, req.Key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrConfirmationUnknown.WithContext("key", req.Key)
		}
		return nil, appErrors.Unavailable(err, "failed to load account")
	}
	return s.Confirm(ctx, account)
}

// Confirm marks account as confirmed. It fails once the activation window
// after creation has passed, and for accounts already confirmed.
func (s *AccountService) Confirm(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.Confirmed {
		return nil, appErrors.ErrAlreadyConfirmed.WithContext("account_id", account.ID)
	}
	now := s.clock.Now()
	if now.After(account.ConfirmationDeadline(s.config.ActivationWindow)) {
		return nil, appErrors.ErrConfirmationExpired.WithContext("account_id", account.ID)
	}

	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	updated, err := s.repo.Confirm(writeCtx, account.ID, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrAlreadyConfirmed.WithContext("account_id", account.ID)
		}
		return nil, appErrors.Unavailable(err, "failed to confirm account")
	}
	s.logger.Info("account confirmed", zap.String("account_id", account.ID))
	return updated, nil
}

// RequestPasswordReset issues a reset token for email and mails it. Unknown
// addresses succeed silently so callers cannot enumerate accounts.
func (s *AccountService) RequestPasswordReset(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email")
	}
	account, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return appErrors.Unavailable(err, "failed to load account")
	}

	token, err := s.resets.RequestReset(ctx, account)
	if err != nil {
		return err
	}
	if err := s.notifier.SendResetEmail(ctx, account.Email, token.ID); err != nil {
		s.logger.Warn("failed to send reset email", zap.String("account_id", account.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword redeems a reset token.
func (s *AccountService) ResetPassword(ctx context.Context, req models.ConfirmResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}
	return s.resets.Redeem(ctx, req.Token, req.NewPassword)
}

// CheckResetToken reports whether a reset link can still be redeemed.
func (s *AccountService) CheckResetToken(ctx context.Context, tokenID string) error {
	if err := s.validator.Var(tokenID, "required,uuid"); err != nil {
		return appErrors.ErrResetTokenNotFound.WithContext("token_id", tokenID)
	}
	_, err := s.resets.Check(ctx, tokenID)
	return err
}

// CancelPasswordReset expires a reset link the account holder did not ask
// for. Unknown, malformed or already expired links are accepted silently.
func (s *AccountService) CancelPasswordReset(ctx context.Context, tokenID string) error {
	if err := s.validator.Var(tokenID, "required,uuid"); err != nil {
		return nil
	}
	return s.resets.ForceExpire(ctx, tokenID)
}

// Current resolves the authenticated subject to its active account.
func (s *AccountService) Current(ctx context.Context, principal *models.Principal) (*models.Account, error) {
	if principal == nil {
		return nil, appErrors.ErrNotAuthenticated
	}
	account, err := s.repo.FindByID(ctx, principal.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("token subject no longer exists", zap.String("account_id", principal.AccountID), zap.String("jti", principal.TokenID))
			return nil, appErrors.ErrAccountNotFound
		}
		return nil, appErrors.Unavailable(err, "failed to load account")
	}
	if !account.IsActive() {
		return nil, appErrors.ErrInactiveAccount
	}
	return account, nil
}

// ChangePassword replaces the password of the authenticated account and
// revokes the token used to do it. It requires a fresh access token.
func (s *AccountService) ChangePassword(ctx context.Context, principal *models.Principal, token string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}
	if principal == nil || !principal.Fresh {
		return appErrors.ErrFreshTokenRequired
	}
	account, err := s.Current(ctx, principal)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(req.OldPassword, account.PasswordHash) {
		return appErrors.ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return passwordError(err)
	}

	now := s.clock.Now()
	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	if _, err := s.repo.Update(writeCtx, account.ID, models.AccountUpdate{PasswordHash: &hash}, now); err != nil {
		return appErrors.Unavailable(err, "failed to update password")
	}
	return s.revoker.Revoke(writeCtx, token)
}

// Get returns the account identified by id. Callers may only read their own
// account.
func (s *AccountService) Get(ctx context.Context, principal *models.Principal, id string) (*models.Account, error) {
	return s.ownAccount(ctx, principal, id)
}

// Update applies a partial update to the caller's own account. Changing the
// password requires a fresh access token.
func (s *AccountService) Update(ctx context.Context, principal *models.Principal, id string, req models.UpdateAccountRequest) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid account payload")
	}
	account, err := s.ownAccount(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	var update models.AccountUpdate
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		update.Email = &email
	}
	if req.Password != nil {
		if !principal.Fresh {
			return nil, appErrors.ErrFreshTokenRequired
		}
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return nil, passwordError(err)
		}
		update.PasswordHash = &hash
	}
	if update.IsEmpty() {
		return account, nil
	}

	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	updated, err := s.repo.Update(writeCtx, account.ID, update, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.ErrDuplicateAccount.WithContext("email", *update.Email)
		case errors.Is(err, repository.ErrNotFound):
			return nil, appErrors.ErrAccountNotFound
		}
		return nil, appErrors.Unavailable(err, "failed to update account")
	}
	s.logger.Info("account updated", zap.String("account_id", account.ID), zap.Bool("email_changed", update.Email != nil), zap.Bool("password_changed", update.PasswordHash != nil))
	return updated, nil
}

// Delete removes the caller's own account and revokes the token that
// authorised the request.
func (s *AccountService) Delete(ctx context.Context, principal *models.Principal, token, id string) error {
	account, err := s.ownAccount(ctx, principal, id)
	if err != nil {
		return err
	}

	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	if err := s.repo.Delete(writeCtx, account.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.ErrAccountNotFound
		}
		return appErrors.Unavailable(err, "failed to delete account")
	}
	s.logger.Info("account deleted", zap.String("account_id", account.ID))

	// the account is gone, so a token that outlives a failed revoke cannot resolve
	if token != "" {
		if err := s.revoker.Revoke(writeCtx, token); err != nil {
			s.logger.Warn("failed to revoke token of deleted account", zap.String("account_id", account.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *AccountService) ownAccount(ctx context.Context, principal *models.Principal, id string) (*models.Account, error) {
	account, err := s.Current(ctx, principal)
	if err != nil {
		return nil, err
	}
	if account.ID != id {
		s.logger.Info("account access denied", zap.String("account_id", account.ID), zap.String("requested_id", id))
		return nil, appErrors.ErrForbidden.WithContext("id", id)
	}
	return account, nil
}
