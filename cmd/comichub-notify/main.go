package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/auth"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/config"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/database"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/follows"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/ingest"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/logging"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const consumerTag = "comichub-notify"

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "comichub-notify",
		Short: "ComicHub notification service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the notification API and consume queued events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete read notifications older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd.Context())
		},
	}
	purgeCmd.Flags().Int("days", config.NewViper().GetInt("notifications.retention_days"), "Retention period in days")
	if err := viper.BindPFlag("notifications.retention_days", purgeCmd.Flags().Lookup("days")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd, purgeCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before reading the environment")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "Postgres or MySQL DSN")
	flags.StringSlice("database-replicas", nil, "Read replica DSNs")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.String("internal-token", "", "Shared secret for collaborator routes")
	flags.Duration("batch-window", defaults.GetDuration("notifications.batch_window"), "Batching window for likes and comments")
	flags.String("amqp-url", defaults.GetString("amqp.url"), "AMQP broker URL; empty disables the consumer")
	flags.String("amqp-queue", defaults.GetString("amqp.queue"), "AMQP queue carrying notification events")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "database.replicas", "database-replicas")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "internal.token", "internal-token")
	bindFlag(cmd, "notifications.batch_window", "batch-window")
	bindFlag(cmd, "amqp.url", "amqp-url")
	bindFlag(cmd, "amqp.queue", "amqp-queue")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

type application struct {
	config  config.AppConfig
	logger  *zap.Logger
	db      *gorm.DB
	service *notifications.Service
}

func (r *application) close() {
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = r.logger.Sync()
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Config{
		Driver:   appConfig.DatabaseDriver,
		Path:     appConfig.DatabasePath,
		DSN:      appConfig.DatabaseDSN,
		Replicas: appConfig.DatabaseReplicas,
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	graph, err := follows.NewGraph(follows.GraphConfig{Database: db})
	if err != nil {
		return nil, err
	}

	service, err := notifications.NewService(notifications.ServiceConfig{
		Database:    db,
		Clock:       time.Now,
		IDProvider:  notifications.NewUUIDProvider(),
		FollowGraph: graph,
		Logger:      logger,
		BatchWindow: appConfig.BatchWindow,
		BatchWindowOverrides: map[notifications.EventFamily]time.Duration{
			notifications.FamilyLike:    appConfig.LikeBatchWindow,
			notifications.FamilyComment: appConfig.CommentBatchWindow,
		},
		FeedLimit:      appConfig.FeedLimit,
		RecordAttempts: appConfig.RecordAttempts,
	})
	if err != nil {
		return nil, err
	}

	return &application{config: appConfig, logger: logger, db: db, service: service}, nil
}

func runPurge(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()

	deleted, err := app.service.PurgeReadOlderThan(ctx, app.config.RetentionDays)
	if err != nil {
		return err
	}
	app.logger.Info("retention purge finished",
		zap.Int64("deleted", deleted),
		zap.Int("days", app.config.RetentionDays))
	return nil
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()
	appConfig, logger := app.config, app.logger

	if err := appConfig.RequireSessionSecret(); err != nil {
		return err
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Notifications:  app.service,
		Sessions:       sessions,
		InternalToken:  appConfig.InternalToken,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	if appConfig.AMQPURL != "" {
		subscription, err := ingest.Subscribe(appConfig.AMQPURL, appConfig.AMQPQueue, consumerTag)
		if err != nil {
			return err
		}
		defer subscription.Close() //nolint:errcheck

		consumer, err := ingest.NewConsumer(ingest.ConsumerConfig{
			Recorder: notifications.NewBestEffortRecorder(app.service, logger),
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		go func() {
			logger.Info("event consumer starting", zap.String("queue", appConfig.AMQPQueue))
			if err := consumer.Run(signalCtx, subscription.Deliveries); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", zap.String("queue", appConfig.AMQPQueue), zap.Error(err))
				errCh <- err
			}
		}()
	}

	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown failed", zap.Error(shutdownErr))
		}
		return err
	}
}
