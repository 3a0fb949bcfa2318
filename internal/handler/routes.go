package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/auth-api/internal/middleware"
)

// Routes groups the handlers mounted under the API prefix.
type Routes struct {
	Tokens   *TokenHandler
	Accounts *AccountHandler
	Metrics  *MetricsHandler
	// Auth guards the /me and /users/:id endpoints.
	Auth gin.HandlerFunc
}

// Register mounts every endpoint on r.
func (rt Routes) Register(r *gin.Engine, prefix string) {
	r.GET("/health", rt.Metrics.Health)
	r.GET("/ready", rt.Metrics.Ready)
	r.GET("/metrics", rt.Metrics.Prometheus)

	api := r.Group(prefix)

	token := api.Group("/token")
	token.POST("", rt.Tokens.Obtain)
	token.POST("/refresh", rt.Tokens.Refresh)
	token.POST("/revoke", rt.Tokens.Revoke)

	api.POST("/users", rt.Accounts.Register)
	users := api.Group("/users", rt.Auth)
	users.GET("/:id", rt.Accounts.Get)
	users.PATCH("/:id", rt.Accounts.Update)
	users.DELETE("/:id", rt.Accounts.Delete)

	me := api.Group("/me")
	me.PUT("/email", rt.Accounts.ConfirmEmail)
	me.POST("/password/request-reset", rt.Accounts.RequestPasswordReset)
	me.PUT("/password/reset", rt.Accounts.ResetPassword)
	me.GET("/password/reset/:token", rt.Accounts.CheckResetToken)
	me.DELETE("/password/reset/:token", rt.Accounts.CancelPasswordReset)

	protected := me.Group("", rt.Auth)
	protected.GET("", rt.Accounts.Me)
	protected.PUT("/password", middleware.RequireFresh(), rt.Accounts.ChangePassword)
}
