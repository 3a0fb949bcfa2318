package models

// LoginRequest holds credentials for the password grant.
type LoginRequest struct {
	Username string `form:"username" json:"username" validate:"required"`
	Password string `form:"password" json:"password" validate:"required"`
}

// TokenRequest carries a token in the request body.
type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ConfirmEmailRequest redeems the confirmation key sent by email.
type ConfirmEmailRequest struct {
	Key string `json:"key" validate:"required,uuid"`
}

// ResetPasswordRequest initiates the reset flow.
type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ConfirmResetPasswordRequest completes the reset flow.
type ConfirmResetPasswordRequest struct {
	Token       string `json:"token" validate:"required,uuid"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePasswordRequest updates the password of the authenticated account.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// UpdateAccountRequest partially updates an account. Omitted fields keep
// their stored value.
type UpdateAccountRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password"`
}
