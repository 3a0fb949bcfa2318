package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/auth-api/api/swagger"
	"github.com/noah-isme/auth-api/internal/handler"
	"github.com/noah-isme/auth-api/internal/middleware"
	"github.com/noah-isme/auth-api/internal/migrations"
	"github.com/noah-isme/auth-api/internal/repository"
	"github.com/noah-isme/auth-api/internal/service"
	"github.com/noah-isme/auth-api/pkg/cache"
	"github.com/noah-isme/auth-api/pkg/clock"
	"github.com/noah-isme/auth-api/pkg/config"
	"github.com/noah-isme/auth-api/pkg/database"
	"github.com/noah-isme/auth-api/pkg/jobs"
	"github.com/noah-isme/auth-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/auth-api/pkg/middleware/requestid"
)

// @title Auth API
// @version 1.0.0
// @description Credential and token service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, migrations.FS); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	revocations := repository.NewRevocationRepository(redisClient, cfg.Redis.KeyPrefix)
	defer revocations.Close() //nolint:errcheck

	clk := clock.System{}
	validate := validator.New()
	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	accounts := repository.NewAccountRepository(db)
	resetTokens := repository.NewResetPasswordRepository(db)

	codec, err := service.NewTokenCodec(cfg.Token.Secret, cfg.Token.Issuer, clk)
	if err != nil {
		return err
	}
	hasher := service.NewPasswordHasher(cfg.Account.BcryptCost, cfg.Account.PasswordMinLength, cfg.Account.PasswordMaxLength)

	notifications := service.NewNotificationService(service.LogMailer{Logger: logr.Named("mailer")}, logr, service.NotificationConfig{
		ConfirmEmailURL:  cfg.Notifications.ConfirmEmailURL,
		ResetPasswordURL: cfg.Notifications.ResetPasswordURL,
	})
	queue := jobs.NewQueue("notifications", notifications.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		Logger:     logr,
	})
	// the queue outlives the signal context; it is stopped once in-flight requests are done
	queue.Start(context.WithoutCancel(ctx))
	defer queue.Stop()
	notifications.UseQueue(queue)

	tokenSvc := service.NewTokenService(accounts, revocations, codec, hasher, validate, logr, metrics, clk, service.TokenConfig{
		AccessTokenExpiry:  cfg.Token.AccessExpiration,
		RefreshTokenExpiry: cfg.Token.RefreshExpiration,
		WriteTimeout:       cfg.Requests.WriteTimeout,
	})
	resetSvc := service.NewResetPasswordService(resetTokens, hasher, logr, metrics, clk, service.ResetPasswordConfig{
		TokenExpiry:  cfg.Account.ResetTokenExpiry,
		WriteTimeout: cfg.Requests.WriteTimeout,
	})
	accountSvc := service.NewAccountService(accounts, resetSvc, tokenSvc, notifications, hasher, validate, logr, clk, service.AccountConfig{
		ActivationWindow: cfg.Account.ActivationWindow,
		WriteTimeout:     cfg.Requests.WriteTimeout,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.Timeout(cfg.Requests.Timeout))

	handler.Routes{
		Tokens:   handler.NewTokenHandler(tokenSvc),
		Accounts: handler.NewAccountHandler(accountSvc),
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
		Auth: middleware.JWT(tokenSvc),
	}.Register(r, cfg.APIPrefix)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	queue.Stop()
	return err
}
