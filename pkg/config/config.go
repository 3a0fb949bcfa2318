package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Token         TokenConfig
	Account       AccountConfig
	Notifications NotificationConfig
	Requests      RequestConfig
	CORS          CORSConfig
	Log           LogConfig
	Metrics       MetricsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// TokenConfig holds the single signing secret and lifetimes of bearer tokens.
type TokenConfig struct {
	Secret            string
	Issuer            string
	AccessExpiration  time.Duration
	RefreshExpiration time.Duration
}

// AccountConfig governs confirmation and password reset windows.
type AccountConfig struct {
	ActivationWindow  time.Duration
	ResetTokenExpiry  time.Duration
	PasswordMinLength int
	PasswordMaxLength int
	BcryptCost        int
}

// NotificationConfig configures the outbound email dispatcher.
type NotificationConfig struct {
	ConfirmEmailURL  string
	ResetPasswordURL string
	Workers          int
	MaxRetries       int
}

// RequestConfig bounds request handling and non-cancellable writes.
type RequestConfig struct {
	Timeout      time.Duration
	WriteTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.Token = TokenConfig{
		Secret:            v.GetString("TOKEN_SECRET"),
		Issuer:            v.GetString("TOKEN_ISSUER"),
		AccessExpiration:  parseDuration(v.GetString("ACCESS_TOKEN_EXPIRATION"), 30*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 24*time.Hour),
	}

	cfg.Account = AccountConfig{
		ActivationWindow:  parseDuration(v.GetString("ACCOUNT_ACTIVATION_WINDOW"), 7*24*time.Hour),
		ResetTokenExpiry:  parseDuration(v.GetString("RESET_PASSWORD_TOKEN_EXPIRATION"), 3*time.Hour),
		PasswordMinLength: v.GetInt("PASSWORD_MIN_LENGTH"),
		PasswordMaxLength: v.GetInt("PASSWORD_MAX_LENGTH"),
		BcryptCost:        v.GetInt("BCRYPT_COST"),
	}

	cfg.Notifications = NotificationConfig{
		ConfirmEmailURL:  v.GetString("CONFIRM_EMAIL_URL"),
		ResetPasswordURL: v.GetString("RESET_PASSWORD_URL"),
		Workers:          v.GetInt("NOTIFICATION_WORKERS"),
		MaxRetries:       v.GetInt("NOTIFICATION_RETRIES"),
	}

	cfg.Requests = RequestConfig{
		Timeout:      parseDuration(v.GetString("REQUEST_TIMEOUT"), 10*time.Second),
		WriteTimeout: parseDuration(v.GetString("WRITE_TIMEOUT"), 5*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg
}

// Validate rejects configurations that would issue forgeable or unusable tokens.
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return errors.New("TOKEN_SECRET must be set")
	}
	if c.Env == EnvProduction && c.Token.Secret == defaultTokenSecret {
		return errors.New("TOKEN_SECRET must be overridden in production")
	}
	if c.Token.AccessExpiration <= 0 || c.Token.RefreshExpiration <= 0 {
		return errors.New("token expirations must be positive")
	}
	if c.Account.PasswordMinLength <= 0 || c.Account.PasswordMaxLength < c.Account.PasswordMinLength {
		return errors.New("invalid password length bounds")
	}
	// bcrypt ignores input past 72 bytes
	if c.Account.PasswordMaxLength > 72 {
		return errors.New("PASSWORD_MAX_LENGTH cannot exceed 72")
	}
	return nil
}

const defaultTokenSecret = "dev_secret"

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "auth")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "revoked_token:")

	v.SetDefault("TOKEN_SECRET", defaultTokenSecret)
	v.SetDefault("TOKEN_ISSUER", "auth-api")
	v.SetDefault("ACCESS_TOKEN_EXPIRATION", "30m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "24h")

	v.SetDefault("ACCOUNT_ACTIVATION_WINDOW", "168h")
	v.SetDefault("RESET_PASSWORD_TOKEN_EXPIRATION", "3h")
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("PASSWORD_MAX_LENGTH", 32)
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("CONFIRM_EMAIL_URL", "http://localhost:3000/confirm-email")
	v.SetDefault("RESET_PASSWORD_URL", "http://localhost:3000/reset-password")
	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_RETRIES", 3)

	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("WRITE_TIMEOUT", "5s")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ENABLE_METRICS", true)
}

// SetConfigFile reports a missing .env as a path error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
