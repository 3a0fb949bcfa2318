package models

import "time"

// ResetPasswordToken is a single-use password reset link. Tokens are never
// deleted; redeemed or superseded tokens keep their row with expire_at
// rewritten to the moment they stopped being valid.
type ResetPasswordToken struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"account_id"`
	ExpireAt  time.Time `db:"expire_at" json:"expire_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsExpired reports whether the token is no longer redeemable at now.
func (t *ResetPasswordToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpireAt)
}
