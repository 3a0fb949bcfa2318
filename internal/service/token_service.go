package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/internal/repository"
	"github.com/noah-isme/auth-api/pkg/clock"
	appErrors "github.com/noah-isme/auth-api/pkg/errors"
	"github.com/noah-isme/auth-api/pkg/middleware/requestid"
)

type tokenAccountRepository interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, id string, update models.AccountUpdate, updatedAt time.Time) (*models.Account, error)
}

type revocationStore interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, seconds int64) error
}

// TokenConfig defines token lifetimes and write behaviour.
type TokenConfig struct {
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	WriteTimeout       time.Duration
}

// TokenService issues, refreshes, revokes and authenticates bearer tokens.
type TokenService struct {
	accounts    tokenAccountRepository
	revocations revocationStore
	codec       *TokenCodec
	hasher      *PasswordHasher
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	clock       clock.Clock
	config      TokenConfig

	dummyOnce sync.Once
	dummyHash string
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(accounts tokenAccountRepository, revocations revocationStore, codec *TokenCodec, hasher *PasswordHasher, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, clk clock.Clock, config TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TokenService{
		accounts:    accounts,
		revocations: revocations,
		codec:       codec,
		hasher:      hasher,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
		clock:       clock.OrSystem(clk),
		config:      config,
	}
}

// ObtainTokens exchanges an email and password for an access and refresh
// token pair. Unknown accounts, wrong passwords and unconfirmed accounts all
// fail with the same ErrInvalidCredentials value.
func (s *TokenService) ObtainTokens(ctx context.Context, req models.LoginRequest) (*models.Tokens, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "username and password are required")
	}

	account, err := s.accounts.FindByEmail(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// keep the response time in line with a real comparison
			s.hasher.Verify(req.Password, s.timingHash())
			return nil, s.rejectLogin(ctx, "unknown account")
		}
		return nil, appErrors.Unavailable(err, "failed to load account")
	}

	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		return nil, s.rejectLogin(ctx, "password mismatch", zap.String("account_id", account.ID))
	}
	if !account.IsActive() {
		return nil, s.rejectLogin(ctx, "account not confirmed", zap.String("account_id", account.ID))
	}

	now := s.clock.Now()
	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()
	if _, err := s.accounts.Update(writeCtx, account.ID, models.AccountUpdate{LastLogin: &now}, now); err != nil {
		s.logger.Warn("failed to update last login", zap.String("account_id", account.ID), zap.Error(err))
	}

	access, _, err := s.codec.Issue(account.ID, models.TokenKindAccess, true, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refresh, _, err := s.codec.Issue(account.ID, models.TokenKindRefresh, false, s.config.RefreshTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	s.metrics.TokenIssued(models.TokenKindAccess)
	s.metrics.TokenIssued(models.TokenKindRefresh)

	return &models.Tokens{AccessToken: access, RefreshToken: refresh, TokenType: models.TokenTypeBearer}, nil
}

// Refresh mints a non-fresh access token from a valid refresh token.
func (s *TokenService) Refresh(ctx context.Context, token string) (*models.AccessToken, error) {
	principal, err := s.Authenticate(ctx, token, models.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByID(ctx, principal.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.AuthenticationFailed(appErrors.ErrAccountNotFound.Code)
			s.logger.Warn("refresh token subject no longer exists", zap.String("account_id", principal.AccountID), zap.String("jti", principal.TokenID))
			return nil, appErrors.ErrAccountNotFound
		}
		return nil, appErrors.Unavailable(err, "failed to load account")
	}
	if !account.IsActive() {
		return nil, appErrors.ErrInactiveAccount
	}

	access, _, err := s.codec.Issue(account.ID, models.TokenKindAccess, false, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	s.metrics.TokenIssued(models.TokenKindAccess)

	return &models.AccessToken{AccessToken: access, TokenType: models.TokenTypeBearer}, nil
}

// Revoke writes a revocation marker for token that lives as long as the token
// would have. Expired and already revoked tokens revoke successfully. Tokens
// without an exp claim are revoked permanently.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.codec.Decode(token, false)
	if err != nil {
		return err
	}

	writeCtx, cancel := detached(ctx, s.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	exp, ok := claims.Expiry()
	if ok {
		remaining := int64(exp.Sub(s.clock.Now()) / time.Second)
		if remaining < 1 {
			remaining = 1
		}
		err = s.revocations.SetWithTTL(writeCtx, claims.ID, repository.RevokedValue, remaining)
	} else {
		s.logger.Warn("revoking token without expiry, marker will not expire", zap.String("jti", claims.ID), zap.String("account_id", claims.Subject))
		err = s.revocations.Set(writeCtx, claims.ID, repository.RevokedValue)
	}
	s.metrics.ObserveRevocationStore("write", time.Since(start))
	if err != nil {
		s.logger.Error("failed to write revocation marker", zap.String("jti", claims.ID), zap.String("request_id", requestid.FromContext(ctx)), zap.Error(err))
		return appErrors.Unavailable(err, "failed to revoke token")
	}

	s.metrics.TokenRevoked(!ok)
	return nil
}

// Authenticate validates token for the required kind and returns the subject
// it was issued to.
func (s *TokenService) Authenticate(ctx context.Context, token string, required models.TokenKind) (*models.Principal, error) {
	claims, err := s.codec.Decode(token, true)
	if err != nil {
		s.metrics.AuthenticationFailed(appErrors.FromError(err).Code)
		return nil, err
	}

	if claims.Kind != required {
		s.metrics.AuthenticationFailed(appErrors.ErrWrongTokenKind.Code)
		return nil, appErrors.Clone(appErrors.ErrWrongTokenKind, string(required)+" token required")
	}

	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, appErrors.Unavailable(err, "failed to check token revocation")
	}
	if revoked {
		s.metrics.AuthenticationFailed(appErrors.ErrRevokedToken.Code)
		return nil, appErrors.ErrRevokedToken
	}

	principal := &models.Principal{
		AccountID: claims.Subject,
		TokenID:   claims.ID,
		Kind:      claims.Kind,
		Fresh:     claims.Fresh,
	}
	if exp, ok := claims.Expiry(); ok {
		principal.ExpiresAt = &exp
	}
	return principal, nil
}

func (s *TokenService) isRevoked(ctx context.Context, jti string) (bool, error) {
	start := time.Now()
	revoked, err := s.revocations.IsRevoked(ctx, jti)
	s.metrics.ObserveRevocationStore("read", time.Since(start))
	return revoked, err
}

func (s *TokenService) rejectLogin(ctx context.Context, reason string, fields ...zap.Field) error {
	s.metrics.AuthenticationFailed(appErrors.ErrInvalidCredentials.Code)
	fields = append(fields, zap.String("reason", reason), zap.String("request_id", requestid.FromContext(ctx)))
	s.logger.Info("login rejected", fields...)
	return appErrors.ErrInvalidCredentials
}

// fallbackTimingHash is a well-formed cost 10 bcrypt hash used when the
// configured hasher cannot produce one.
const fallbackTimingHash = "$2y$10$.vGA1O9wmRjrwAVXD98HNOgsNpDczlqm3Jq7KnEd1rVAGv3Fykk1a"

func (s *TokenService) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.hash("timing-equalizer")
		if err != nil {
			s.logger.Warn("failed to prepare timing hash, using fallback", zap.Error(err))
			hash = fallbackTimingHash
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
