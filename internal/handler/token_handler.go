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

type tokenService interface {
	ObtainTokens(ctx context.Context, req models.LoginRequest) (*models.Tokens, error)
	Refresh(ctx context.Context, token string) (*models.AccessToken, error)
	Revoke(ctx context.Context, token string) error
}

// TokenHandler wires HTTP endpoints to the token service.
type TokenHandler struct {
	service tokenService
}

// NewTokenHandler creates a new handler.
func NewTokenHandler(svc tokenService) *TokenHandler {
	return &TokenHandler{service: svc}
}

// Obtain godoc
// @Summary Obtain tokens
// @Description Password grant returning an access and a refresh token
// @Tags Tokens
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Email"
// @Param password formData string true "Password"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /token [post]
func (h *TokenHandler) Obtain(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	tokens, err := h.service.ObtainTokens(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tokens)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange a refresh token, sent as bearer or in the body, for a new access token
// @Tags Tokens
// @Accept json
// @Produce json
// @Param payload body models.TokenRequest false "Refresh token"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /token/refresh [post]
func (h *TokenHandler) Refresh(c *gin.Context) {
	token, ok := presentedToken(c)
	if !ok {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}

	access, err := h.service.Refresh(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, access)
}

// Revoke godoc
// @Summary Revoke token
// @Description Revoke an access or refresh token until it would have expired
// @Tags Tokens
// @Accept json
// @Produce json
// @Param payload body models.TokenRequest false "Token to revoke"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /token/revoke [post]
func (h *TokenHandler) Revoke(c *gin.Context) {
	token, ok := presentedToken(c)
	if !ok {
		response.Error(c, appErrors.ErrNotAuthenticated)
		return
	}

	if err := h.service.Revoke(c.Request.Context(), token); err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// presentedToken prefers the JSON body and falls back to the bearer header.
func presentedToken(c *gin.Context) (string, bool) {
	var req models.TokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err == nil && req.Token != "" {
			return req.Token, true
		}
	}
	return middleware.BearerToken(c)
}
