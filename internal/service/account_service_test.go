package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/pkg/clock"
	appErrors "github.com/noah-isme/auth-api/pkg/errors"
)

type fakeRevoker struct {
	revoked []string
	err     error
}

func (f *fakeRevoker) Revoke(_ context.Context, token string) error {
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, token)
	return nil
}

type accountFixture struct {
	svc      *AccountService
	accounts *fakeAccountRepository
	resets   *fakeResetRepository
	notifier *fakeNotifier
	revoker  *fakeRevoker
	hasher   *PasswordHasher
	clock    *clock.Mock
}

func newAccountFixture() *accountFixture {
	clk := clock.NewMock(epoch)
	accounts := newFakeAccountRepository()
	resets := newFakeResetRepository(accounts)
	hasher := newTestHasher()
	notifier := &fakeNotifier{}
	revoker := &fakeRevoker{}
	resetSvc := NewResetPasswordService(resets, hasher, nil, nil, clk, ResetPasswordConfig{TokenExpiry: 3 * time.Hour})
	svc := NewAccountService(accounts, resetSvc, revoker, notifier, hasher, nil, nil, clk, AccountConfig{
		ActivationWindow: 7 * 24 * time.Hour,
		WriteTimeout:     time.Second,
	})
	return &accountFixture{svc: svc, accounts: accounts, resets: resets, notifier: notifier, revoker: revoker, hasher: hasher, clock: clk}
}

func TestRegisterCreatesUnconfirmedAccount(t *testing.T) {
	f := newAccountFixture()

	account, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "U@x.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", account.Email)
	assert.False(t, account.IsActive())
	assert.Equal(t, epoch, account.CreatedAt)
	assert.True(t, f.hasher.Verify("password123", account.PasswordHash))

	sent := f.notifier.last()
	assert.Equal(t, jobKindConfirmEmail, sent.kind)
	assert.Equal(t, "u@x.com", sent.address)
	assert.Equal(t, account.ConfirmationKey, sent.value)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAccountFixture()
	f.accounts.seed(t, "u@x.com", "password123", true, epoch)

	_, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "u@x.com", Password: "password123"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateAccount)
	assert.Equal(t, "u@x.com", appErrors.FromError(err).Context["email"])
}

func TestRegisterValidation(t *testing.T) {
	f := newAccountFixture()

	_, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "not-an-email", Password: "password123"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Register(context.Background(), models.RegisterRequest{Email: "u@x.com", Password: "short"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRegisterSucceedsWhenNotificationFails(t *testing.T) {
	f := newAccountFixture()
	f.notifier.err = errors.New("queue full")

	_, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "u@x.com", Password: "password123"})
	assert.NoError(t, err)
}

func TestConfirmScenario(t *testing.T) {
	f := newAccountFixture()
	account, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "u@x.com", Password: "password123"})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	confirmed, err := f.svc.ConfirmEmail(context.Background(), models.ConfirmEmailRequest{Key: account.ConfirmationKey})
	require.NoError(t, err)
	assert.True(t, confirmed.IsActive())

	_, err = f.svc.ConfirmEmail(context.Background(), models.ConfirmEmailRequest{Key: account.ConfirmationKey})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyConfirmed)
	assert.Equal(t, account.ID, appErrors.FromError(err).Context["account_id"])
}

func TestConfirmAfterActivationWindow(t *testing.T) {
	f := newAccountFixture()
	account, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "u@x.com", Password: "password123"})
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.svc.Confirm(context.Background(), account)
	require.NoError(t, err, "the window end is still inside the window")

	other, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "v@x.com", Password: "password123"})
	require.NoError(t, err)
	f.clock.Advance(7*24*time.Hour + time.Second)
	_, err = f.svc.Confirm(context.Background(), other)
	assert.ErrorIs(t, err, appErrors.ErrConfirmationExpired)
	assert.False(t, f.accounts.get(other.ID).Confirmed)
}

func TestConfirmEmailUnknownKey(t *testing.T) {
	f := newAccountFixture()

	_, err := f.svc.ConfirmEmail(context.Background(), models.ConfirmEmailRequest{Key: "9b2d8f3e-2b4a-4a0b-8d6e-4b1f3b2a7c10"})
	assert.ErrorIs(t, err, appErrors.ErrConfirmationUnknown)

	_, err = f.svc.ConfirmEmail(context.Background(), models.ConfirmEmailRequest{Key: "nope"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRequestPasswordReset(t *testing.T) {
	f := newAccountFixture()
	account := f.accounts.seed(t, "u@x.com", "password123", true, epoch)

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Email: "u@x.com"}))
	sent := f.notifier.last()
	assert.Equal(t, jobKindResetPassword, sent.kind)
	assert.Equal(t, "u@x.com", sent.address)

	active := f.resets.active(account.ID, f.clock.Now())
	require.Len(t, active, 1)
	assert.Equal(t, active[0].ID, sent.value)

	require.NoError(t, f.svc.ResetPassword(context.Background(), models.ConfirmResetPasswordRequest{Token: sent.value, NewPassword: "brand-new-pass"}))
	assert.True(t, f.hasher.Verify("brand-new-pass", f.accounts.get(account.ID).PasswordHash))
}

func TestRequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newAccountFixture()

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Email: "nobody@x.com"}))
	assert.Empty(t, f.notifier.sent)
}

func TestCurrent(t *testing.T) {
	f := newAccountFixture()
	active := f.accounts.seed(t, "u@x.com", "password123", true, epoch)
	pending := f.accounts.seed(t, "v@x.com", "password123", false, epoch)

	account, err := f.svc.Current(context.Background(), &models.Principal{AccountID: active.ID})
	require.NoError(t, err)
	assert.Equal(t, active.ID, account.ID)

	_, err = f.svc.Current(context.Background(), &models.Principal{AccountID: pending.ID})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)

	_, err = f.svc.Current(context.Background(), &models.Principal{AccountID: "gone"})
	assert.ErrorIs(t, err, appErrors.ErrAccountNotFound)
}

func TestChangePassword(t *testing.T) {
	f := newAccountFixture()
	account := f.accounts.seed(t, "u@x.com", "password123", true, epoch)
	fresh := &models.Principal{AccountID: account.ID, Kind: models.TokenKindAccess, Fresh: true}
	req := models.ChangePasswordRequest{OldPassword: "password123", NewPassword: "password456"}

	err := f.svc.ChangePassword(context.Background(), &models.Principal{AccountID: account.ID}, "stale", req)
	assert.ErrorIs(t, err, appErrors.ErrFreshTokenRequired)

	err = f.svc.ChangePassword(context.Background(), fresh, "tok", models.ChangePasswordRequest{OldPassword: "password000", NewPassword: "password456"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	require.NoError(t, f.svc.ChangePassword(context.Background(), fresh, "tok", req))
	assert.True(t, f.hasher.Verify("password456", f.accounts.get(account.ID).PasswordHash))
	assert.Equal(t, []string{"tok"}, f.revoker.revoked)
}

func TestConfirmConcurrentRequestsConfirmOnce(t *testing.T) {
	f := newAccountFixture()
	account, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "u@x.com", Password: "password123"})
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// every caller loaded the account before anyone confirmed it
			_, err := f.svc.Confirm(context.Background(), account)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, appErrors.ErrAlreadyConfirmed)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, f.accounts.get(account.ID).Confirmed)
}

func TestGetOwnAccountOnly(t *testing.T) {
	f := newAccountFixture()
	owner := f.accounts.seed(t, "u@x.com", "password123", true, epoch)
	other := f.accounts.seed(t, "v@x.com", "password123", true, epoch)
	principal := &models.Principal{AccountID: owner.ID}

	account, err := f.svc.Get(context.Background(), principal, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", account.Email)

	_, err = f.svc.Get(context.Background(), principal, other.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Equal(t, other.ID, appErrors.FromError(err).Context["id"])

	_, err = f.svc.Get(context.Background(), nil, owner.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotAuthenticated)
}

func TestUpdateAccount(t *testing.T) {
	f := newAccountFixture()
	account := f.accounts.seed(t, "u@x.com", "password123", true, epoch)
	f.accounts.seed(t, "taken@x.com", "password123", true, epoch)
	stale := &models.Principal{AccountID: account.ID, Kind: models.TokenKindAccess}
	fresh := &models.Principal{AccountID: account.ID, Kind: models.TokenKindAccess, Fresh: true}

	email := " New@X.com "
	updated, err := f.svc.Update(context.Background(), stale, account.ID, models.UpdateAccountRequest{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", updated.Email)
	assert.True(t, f.hasher.Verify("password123", f.accounts.get(account.ID).PasswordHash))

	taken := "taken@x.com"
	_, err = f.svc.Update(context.Background(), stale, account.ID, models.UpdateAccountRequest{Email: &taken})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateAccount)

	password := "password456"
	_, err = f.svc.Update(context.Background(), stale, account.ID, models.UpdateAccountRequest{Password: &password})
	assert.ErrorIs(t, err, appErrors.ErrFreshTokenRequired)

	short := "short"
	_, err = f.svc.Update(context.Background(), fresh, account.ID, models.UpdateAccountRequest{Password: &short})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Update(context.Background(), fresh, account.ID, models.UpdateAccountRequest{Password: &password})
	require.NoError(t, err)
	stored := f.accounts.get(account.ID)
	assert.True(t, f.hasher.Verify("password456", stored.PasswordHash))
	assert.NotEqual(t, "password456", stored.PasswordHash)

	invalid := "not-an-email"
	_, err = f.svc.Update(context.Background(), fresh, account.ID, models.UpdateAccountRequest{Email: &invalid})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	unchanged, err := f.svc.Update(context.Background(), fresh, account.ID, models.UpdateAccountRequest{})
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", unchanged.Email)
}

func TestUpdateOtherAccountForbidden(t *testing.T) {
	f := newAccountFixture()
	owner := f.accounts.seed(t, "u@x.com", "password123", true, epoch)
	other := f.accounts.seed(t, "v@x.com", "password123", true, epoch)

	email := "w@x.com"
	_, err := f.svc.Update(context.Background(), &models.Principal{AccountID: owner.ID, Fresh: true}, other.ID, models.UpdateAccountRequest{Email: &email})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Equal(t, "v@x.com", f.accounts.get(other.ID).Email)
}

func TestDeleteAccount(t *testing.T) {
	f := newAccountFixture()
	owner := f.accounts.seed(t, "u@x.com", "password123", true, epoch)
	other := f.accounts.seed(t, "v@x.com", "password123", true, epoch)
	principal := &models.Principal{AccountID: owner.ID}

	err := f.svc.Delete(context.Background(), principal, "tok", other.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.NotNil(t, f.accounts.get(other.ID))

	require.NoError(t, f.svc.Delete(context.Background(), principal, "tok", owner.ID))
	assert.Nil(t, f.accounts.get(owner.ID))
	assert.Equal(t, []string{"tok"}, f.revoker.revoked)

	_, err = f.svc.Current(context.Background(), principal)
	assert.ErrorIs(t, err, appErrors.ErrAccountNotFound)
}

func TestDeleteAccountSurvivesRevokeFailure(t *testing.T) {
	f := newAccountFixture()
	owner := f.accounts.seed(t, "u@x.com", "password123", true, epoch)
	f.revoker.err = appErrors.Unavailable(errors.New("redis down"), "failed to revoke token")

	require.NoError(t, f.svc.Delete(context.Background(), &models.Principal{AccountID: owner.ID}, "tok", owner.ID))
	assert.Nil(t, f.accounts.get(owner.ID))
}

func TestCancelPasswordReset(t *testing.T) {
	f := newAccountFixture()
	account := f.accounts.seed(t, "u@x.com", "password123", true, epoch)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, models.ResetPasswordRequest{Email: "u@x.com"}))
	tokenID := f.notifier.last().value
	require.NoError(t, f.svc.CheckResetToken(ctx, tokenID))

	require.NoError(t, f.svc.CancelPasswordReset(ctx, tokenID))
	require.NoError(t, f.svc.CancelPasswordReset(ctx, tokenID))
	assert.Empty(t, f.resets.active(account.ID, f.clock.Now()))

	err := f.svc.CheckResetToken(ctx, tokenID)
	assert.ErrorIs(t, err, appErrors.ErrResetTokenExpired)
	err = f.svc.ResetPassword(ctx, models.ConfirmResetPasswordRequest{Token: tokenID, NewPassword: "password456"})
	assert.ErrorIs(t, err, appErrors.ErrResetTokenExpired)

	assert.NoError(t, f.svc.CancelPasswordReset(ctx, "not-a-token"))
	assert.ErrorIs(t, f.svc.CheckResetToken(ctx, "not-a-token"), appErrors.ErrResetTokenNotFound)
}
