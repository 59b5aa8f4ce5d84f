package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bashirbobboi/elevator-pitch/internal/assets"
	"github.com/bashirbobboi/elevator-pitch/internal/auth"
	"github.com/bashirbobboi/elevator-pitch/internal/config"
	"github.com/bashirbobboi/elevator-pitch/internal/database"
	"github.com/bashirbobboi/elevator-pitch/internal/logging"
	"github.com/bashirbobboi/elevator-pitch/internal/pitches"
	"github.com/bashirbobboi/elevator-pitch/internal/profiles"
	"github.com/bashirbobboi/elevator-pitch/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pitch-api",
		Short: "Elevator pitch hosting and engagement analytics service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newHashPasswordCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Owner token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().Duration("view-window", defaults.GetDuration("tracking.view_window"), "Window in which repeat opens by one viewer count once")
	cmd.PersistentFlags().String("storage-backend", defaults.GetString("storage.backend"), "Asset storage backend (local, gcs)")
	cmd.PersistentFlags().String("storage-local-dir", defaults.GetString("storage.local_dir"), "Directory for locally stored uploads")
	cmd.PersistentFlags().String("storage-gcs-bucket", "", "Bucket for the gcs storage backend")
	cmd.PersistentFlags().String("public-base-url", defaults.GetString("public.base_url"), "Base URL used to build share links")
	cmd.PersistentFlags().String("signing-secret", "", "Owner token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "tracking.view_window", "view-window")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "storage.local_dir", "storage-local-dir")
	bindFlag(cmd, "storage.gcs_bucket", "storage-gcs-bucket")
	bindFlag(cmd, "public.base_url", "public-base-url")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

// newHashPasswordCommand prints a bcrypt hash suitable for auth.password_hash.
func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	assetStore, static, closeAssets, err := openAssetStore(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeAssets()

	passwordGate, err := auth.NewPasswordGate(appConfig.PasswordHash)
	if err != nil {
		return err
	}
	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	dispatcher := server.NewRealtimeDispatcher()
	pitchService, err := pitches.NewService(pitches.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: pitches.NewUUIDProvider(),
		ViewWindow: appConfig.ViewWindow,
		Assets:     assetStore,
		Publisher:  dispatcher,
		Metrics:    pitches.NewMetrics(registry),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Database:   db,
		IDProvider: pitches.NewUUIDProvider(),
		Assets:     assetStore,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		PasswordGate:    passwordGate,
		TokenManager:    tokenManager,
		PitchService:    pitchService,
		ProfileService:  profileService,
		Assets:          assetStore,
		Realtime:        dispatcher,
		TrackingLimiter: server.NewRateLimiter(appConfig.TrackingRateLimit),
		LoginLimiter:    server.NewRateLimiter(appConfig.LoginRateLimit),
		MetricsGatherer: registry,
		Static:          static,
		AllowedOrigins:  appConfig.CORSAllowedOrigins,
		PublicBaseURL:   appConfig.PublicBaseURL,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("storage_backend", appConfig.StorageBackend),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// openAssetStore selects the upload backend. Local uploads are also served by the API.
func openAssetStore(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (assets.Store, *server.StaticAssets, func(), error) {
	switch appConfig.StorageBackend {
	case config.StorageBackendGCS:
		store, err := assets.NewGCSStore(ctx, assets.GCSConfig{
			Bucket: appConfig.StorageGCSBucket,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close asset store", zap.Error(err))
			}
		}
		return store, nil, closeStore, nil
	default:
		store, err := assets.NewLocalStore(assets.LocalConfig{
			Root:       appConfig.StorageLocalDir,
			PublicPath: appConfig.StoragePublicPath,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		static := &server.StaticAssets{URLPath: store.PublicPath(), Dir: store.Root()}
		return store, static, func() {}, nil
	}
}
