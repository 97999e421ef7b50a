package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "COMICHUB"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = DriverSQLite
	defaultDatabasePath   = "comichub.db"
	defaultLogLevel       = "info"
	defaultCookieName     = "app_session"
	defaultSessionIssuer  = "tauth"
	defaultBatchWindow    = 60 * time.Minute
	defaultRetentionDays  = 30
	defaultFeedLimit      = 100
	defaultRecordAttempts = 5
	defaultAMQPQueue      = "notification_events"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// AppConfig captures runtime configuration for the notification service.
type AppConfig struct {
	HTTPAddress        string
	AllowedOrigins     []string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	DatabaseReplicas   []string
	LogLevel           string
	TAuthSigningKey    string
	TAuthCookieName    string
	TAuthIssuer        string
	InternalToken      string
	BatchWindow        time.Duration
	LikeBatchWindow    time.Duration
	CommentBatchWindow time.Duration
	RetentionDays      int
	FeedLimit          int
	RecordAttempts     int
	AMQPURL            string
	AMQPQueue          string
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("database.replicas", []string{})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("tauth.signing_secret", "")
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultSessionIssuer)
	configViper.SetDefault("internal.token", "")
	configViper.SetDefault("notifications.batch_window", defaultBatchWindow)
	configViper.SetDefault("notifications.like_batch_window", time.Duration(0))
	configViper.SetDefault("notifications.comment_batch_window", time.Duration(0))
	configViper.SetDefault("notifications.retention_days", defaultRetentionDays)
	configViper.SetDefault("notifications.feed_limit", defaultFeedLimit)
	configViper.SetDefault("notifications.record_attempts", defaultRecordAttempts)
	configViper.SetDefault("amqp.url", "")
	configViper.SetDefault("amqp.queue", defaultAMQPQueue)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		AllowedOrigins:     nonEmpty(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		DatabaseReplicas:   nonEmpty(configViper.GetStringSlice("database.replicas")),
		LogLevel:           configViper.GetString("log.level"),
		TAuthSigningKey:    configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:    configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:        configViper.GetString("tauth.issuer"),
		InternalToken:      configViper.GetString("internal.token"),
		BatchWindow:        configViper.GetDuration("notifications.batch_window"),
		LikeBatchWindow:    configViper.GetDuration("notifications.like_batch_window"),
		CommentBatchWindow: configViper.GetDuration("notifications.comment_batch_window"),
		RetentionDays:      configViper.GetInt("notifications.retention_days"),
		FeedLimit:          configViper.GetInt("notifications.feed_limit"),
		RecordAttempts:     configViper.GetInt("notifications.record_attempts"),
		AMQPURL:            configViper.GetString("amqp.url"),
		AMQPQueue:          configViper.GetString("amqp.queue"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireSessionSecret reports an error when the server cannot validate sessions.
func (c AppConfig) RequireSessionSecret() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if strings.TrimSpace(c.TAuthIssuer) == "" {
		return fmt.Errorf("tauth.issuer is required")
	}
	if c.BatchWindow <= 0 {
		return fmt.Errorf("notifications.batch_window must be positive")
	}
	if c.LikeBatchWindow < 0 || c.CommentBatchWindow < 0 {
		return fmt.Errorf("notifications family batch windows must not be negative")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("notifications.retention_days must be positive")
	}
	if c.FeedLimit <= 0 {
		return fmt.Errorf("notifications.feed_limit must be positive")
	}
	if c.RecordAttempts <= 0 {
		return fmt.Errorf("notifications.record_attempts must be positive")
	}
	if strings.TrimSpace(c.AMQPURL) != "" && strings.TrimSpace(c.AMQPQueue) == "" {
		return fmt.Errorf("amqp.queue is required when amqp.url is set")
	}
	return nil
}

func nonEmpty(values []string) []string {
	filtered := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			filtered = append(filtered, trimmed)
		}
	}
	return filtered
}
