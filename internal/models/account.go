package models

import "time"

// Account represents a user account stored in the accounts table.
type Account struct {
	ID              string     `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	PasswordHash    string     `db:"password_hash" json:"-"`
	Confirmed       bool       `db:"confirmed" json:"confirmed"`
	ConfirmationKey string     `db:"confirmation_key" json:"-"`
	LastLogin       *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the account may authenticate. An account becomes
// active once its email address is confirmed.
func (a *Account) IsActive() bool {
	return a != nil && a.Confirmed
}

// ConfirmationDeadline is the last instant the embedded confirmation key
// may be redeemed.
func (a *Account) ConfirmationDeadline(window time.Duration) time.Time {
	return a.CreatedAt.Add(window)
}

// AccountUpdate lists the columns to change. Nil fields are left untouched.
type AccountUpdate struct {
	Email        *string
	PasswordHash *string
	LastLogin    *time.Time
}

// IsEmpty reports whether no field is set.
func (u AccountUpdate) IsEmpty() bool {
	return u.Email == nil && u.PasswordHash == nil && u.LastLogin == nil
}

// AccountInfo describes an account in API responses.
type AccountInfo struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Info returns the public view of the account.
func (a *Account) Info() AccountInfo {
	return AccountInfo{ID: a.ID, Email: a.Email, IsActive: a.IsActive(), LastLogin: a.LastLogin}
}
