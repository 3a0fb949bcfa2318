package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/auth-api/internal/middleware"
	"github.com/noah-isme/auth-api/internal/models"
	appErrors "github.com/noah-isme/auth-api/pkg/errors"
	"github.com/noah-isme/auth-api/pkg/response"
)

type accountService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.Account, error)
	ConfirmEmail(ctx context.Context, req models.ConfirmEmailRequest) (*models.Account, error)
	Current(ctx context.Context, principal *models.Principal) (*models.Account, error)
	ChangePassword(ctx context.Context, principal *models.Principal, token string, req models.ChangePasswordRequest) error
	RequestPasswordReset(ctx context.Context, req models.ResetPasswordRequest) error
	ResetPassword(ctx context.Context, req models.ConfirmResetPasswordRequest) error
	CheckResetToken(ctx context.Context, tokenID string) error
	CancelPasswordReset(ctx context.Context, tokenID string) error
	Get(ctx context.Context, principal *models.Principal, id string) (*models.Account, error)
	Update(ctx context.Context, principal *models.Principal, id string, req models.UpdateAccountRequest) (*models.Account, error)
	Delete(ctx context.Context, principal *models.Principal, token, id string) error
}

// AccountHandler exposes registration and self-service account endpoints.
type AccountHandler struct {
	service accountService
}

// NewAccountHandler creates a new handler.
func NewAccountHandler(svc accountService) *AccountHandler {
	return &AccountHandler{service: svc}
}

// Register godoc
// @Summary Register account
// @Description Create an account and send its confirmation email
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Account"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *AccountHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	account, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.Created(c, account.Info())
}

// Me godoc
// @Summary Current account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me [get]
func (h *AccountHandler) Me(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}

	account, err := h.service.Current(c.Request.Context(), principal)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account.Info())
}

// ConfirmEmail godoc
// @Summary Confirm email
// @Description Redeem the confirmation key sent after registration
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body models.ConfirmEmailRequest true "Confirmation key"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /me/email [put]
func (h *AccountHandler) ConfirmEmail(c *gin.Context) {
	var req models.ConfirmEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid confirmation payload"))
		return
	}

	account, err := h.service.ConfirmEmail(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account.Info())
}

// ChangePassword godoc
// @Summary Change password
// @Description Requires a fresh access token; the token is revoked afterwards
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ChangePasswordRequest true "Passwords"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me/password [put]
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), principal, c.GetString(middleware.ContextTokenKey), req); err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RequestPasswordReset godoc
// @Summary Request password reset
// @Description Always accepted so callers cannot discover registered emails
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body models.ResetPasswordRequest true "Email"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /me/password/request-reset [post]
func (h *AccountHandler) RequestPasswordReset(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), req); err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"message": "if the email exists, a reset link will be sent"})
}

// ResetPassword godoc
// @Summary Reset password
// @Description Redeem a single-use reset token
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body models.ConfirmResetPasswordRequest true "Reset"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /me/password/reset [put]
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req models.ConfirmResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get godoc
// @Summary Get account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}

	account, err := h.service.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account.Info())
}

// Update godoc
// @Summary Update account
// @Description Partial update; changing the password needs a fresh access token
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param payload body models.UpdateAccountRequest true "Fields to change"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/{id} [patch]
func (h *AccountHandler) Update(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}

	var req models.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if _, err := h.service.Update(c.Request.Context(), principal, c.Param("id"), req); err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete account
// @Description Deletes the caller's account and revokes the presented token
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *AccountHandler) Delete(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}

	if err := h.service.Delete(c.Request.Context(), principal, c.GetString(middleware.ContextTokenKey), c.Param("id")); err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CheckResetToken godoc
// @Summary Check reset link
// @Description Reports whether a reset token can still be redeemed
// @Tags Accounts
// @Produce json
// @Param token path string true "Reset token"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /me/password/reset/{token} [get]
func (h *AccountHandler) CheckResetToken(c *gin.Context) {
	if err := h.service.CheckResetToken(c.Request.Context(), c.Param("token")); err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CancelPasswordReset godoc
// @Summary Cancel reset link
// @Description Expires a reset token; unknown tokens are accepted
// @Tags Accounts
// @Produce json
// @Param token path string true "Reset token"
// @Success 204 {object} response.Envelope
// @Router /me/password/reset/{token} [delete]
func (h *AccountHandler) CancelPasswordReset(c *gin.Context) {
	if err := h.service.CancelPasswordReset(c.Request.Context(), c.Param("token")); err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
