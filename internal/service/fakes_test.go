package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/auth-api/internal/models"
	"github.com/noah-isme/auth-api/internal/repository"
	"github.com/noah-isme/auth-api/pkg/jobs"
)

const revocationPrefix = "revoked_token:"

type fakeAccountRepository struct {
	mu        sync.Mutex
	accounts  map[string]*models.Account
	findErr   error
	createErr error
	updates   []models.AccountUpdate
}

func newFakeAccountRepository() *fakeAccountRepository {
	return &fakeAccountRepository{accounts: map[string]*models.Account{}}
}

func (f *fakeAccountRepository) seed(t *testing.T, email, password string, confirmed bool, createdAt time.Time) *models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	account := &models.Account{
		ID:              uuid.NewString(),
		Email:           email,
		PasswordHash:    string(hash),
		Confirmed:       confirmed,
		ConfirmationKey: uuid.NewString(),
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	f.mu.Lock()
	f.accounts[account.ID] = account
	f.mu.Unlock()
	clone := *account
	return &clone
}

func (f *fakeAccountRepository) get(id string) *models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil
	}
	clone := *account
	return &clone
}

func (f *fakeAccountRepository) delete(id string) {
	f.mu.Lock()
	delete(f.accounts, id)
	f.mu.Unlock()
}

func (f *fakeAccountRepository) find(match func(*models.Account) bool) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, account := range f.accounts {
		if match(account) {
			clone := *account
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountRepository) FindByID(_ context.Context, id string) (*models.Account, error) {
	return f.find(func(a *models.Account) bool { return a.ID == id })
}

func (f *fakeAccountRepository) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	return f.find(func(a *models.Account) bool { return a.Email == strings.ToLower(email) })
}

func (f *fakeAccountRepository) FindByConfirmationKey(_ context.Context, key string) (*models.Account, error) {
	return f.find(func(a *models.Account) bool { return a.ConfirmationKey == key })
}

func (f *fakeAccountRepository) Create(_ context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.accounts {
		if existing.Email == account.Email {
			return repository.ErrDuplicate
		}
	}
	account.UpdatedAt = account.CreatedAt
	clone := *account
	f.accounts[account.ID] = &clone
	return nil
}

func (f *fakeAccountRepository) Update(_ context.Context, id string, update models.AccountUpdate, updatedAt time.Time) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if update.Email != nil {
		for _, other := range f.accounts {
			if other.ID != id && other.Email == strings.ToLower(*update.Email) {
				return nil, repository.ErrDuplicate
			}
		}
	}
	f.updates = append(f.updates, update)
	if update.Email != nil {
		account.Email = strings.ToLower(*update.Email)
	}
	if update.PasswordHash != nil {
		account.PasswordHash = *update.PasswordHash
	}
	if update.LastLogin != nil {
		lastLogin := *update.LastLogin
		account.LastLogin = &lastLogin
	}
	account.UpdatedAt = updatedAt
	clone := *account
	return &clone, nil
}

func (f *fakeAccountRepository) Confirm(_ context.Context, id string, updatedAt time.Time) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok || account.Confirmed {
		return nil, repository.ErrNotFound
	}
	account.Confirmed = true
	account.UpdatedAt = updatedAt
	clone := *account
	return &clone, nil
}

func (f *fakeAccountRepository) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

// fakeResetRepository mirrors the transactional behaviour of the SQL
// repository under a single mutex.
type fakeResetRepository struct {
	mu       sync.Mutex
	accounts *fakeAccountRepository
	tokens   map[string]*models.ResetPasswordToken
}

func newFakeResetRepository(accounts *fakeAccountRepository) *fakeResetRepository {
	return &fakeResetRepository{accounts: accounts, tokens: map[string]*models.ResetPasswordToken{}}
}

func (f *fakeResetRepository) active(accountID string, now time.Time) []*models.ResetPasswordToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ResetPasswordToken
	for _, token := range f.tokens {
		if token.AccountID == accountID && !token.IsExpired(now) {
			clone := *token
			out = append(out, &clone)
		}
	}
	return out
}

func (f *fakeResetRepository) FindByID(_ context.Context, id string) (*models.ResetPasswordToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

func (f *fakeResetRepository) Rotate(_ context.Context, token *models.ResetPasswordToken, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accounts.get(token.AccountID) == nil {
		return 0, repository.ErrNotFound
	}
	var expired int64
	for _, existing := range f.tokens {
		if existing.AccountID == token.AccountID && existing.ExpireAt.After(now) {
			existing.ExpireAt = now
			existing.UpdatedAt = now
			expired++
		}
	}
	token.CreatedAt = now
	token.UpdatedAt = now
	clone := *token
	f.tokens[token.ID] = &clone
	return expired, nil
}

func (f *fakeResetRepository) Consume(ctx context.Context, tokenID, passwordHash string, now time.Time) (*models.ResetPasswordToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if token.IsExpired(now) {
		clone := *token
		return &clone, repository.ErrExpired
	}
	if _, err := f.accounts.Update(ctx, token.AccountID, models.AccountUpdate{PasswordHash: &passwordHash}, now); err != nil {
		return nil, err
	}
	token.ExpireAt = now
	token.UpdatedAt = now
	clone := *token
	return &clone, nil
}

func (f *fakeResetRepository) ForceExpire(_ context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[id]
	if !ok || !token.ExpireAt.After(now) {
		return false, nil
	}
	token.ExpireAt = now
	token.UpdatedAt = now
	return true, nil
}

type sentEmail struct {
	kind    string
	address string
	value   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeNotifier) SendConfirmationEmail(_ context.Context, address, key string) error {
	return f.record(jobKindConfirmEmail, address, key)
}

func (f *fakeNotifier) SendResetEmail(_ context.Context, address, tokenID string) error {
	return f.record(jobKindResetPassword, address, tokenID)
}

func (f *fakeNotifier) record(kind, address, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{kind: kind, address: address, value: value})
	return nil
}

func (f *fakeNotifier) last() sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentEmail{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []EmailMessage
}

func (m *recordingMailer) Send(_ context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func newRevocationStore(t *testing.T) (*repository.RevocationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewRevocationRepository(client, revocationPrefix), mr
}

func newTestHasher() *PasswordHasher {
	return NewPasswordHasher(bcrypt.MinCost, 8, 32)
}
