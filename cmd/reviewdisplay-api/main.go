package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/reviewdisplay/reviewdisplay/internal/auth"
	"github.com/reviewdisplay/reviewdisplay/internal/config"
	"github.com/reviewdisplay/reviewdisplay/internal/dashboard"
	"github.com/reviewdisplay/reviewdisplay/internal/database"
	"github.com/reviewdisplay/reviewdisplay/internal/logging"
	"github.com/reviewdisplay/reviewdisplay/internal/places"
	"github.com/reviewdisplay/reviewdisplay/internal/ratelimit"
	"github.com/reviewdisplay/reviewdisplay/internal/reviews"
	"github.com/reviewdisplay/reviewdisplay/internal/server"
	"github.com/reviewdisplay/reviewdisplay/internal/widgets"
	"github.com/reviewdisplay/reviewdisplay/internal/widgetscript"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reviewdisplay-api",
		Short: "Review widget backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional dotenv file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("places-api-key", "", "Google Places API key (overrides env)")
	cmd.PersistentFlags().Int("cache-ttl-hours", defaults.GetInt("reviews.cache_ttl_hours"), "Hours before cached reviews are refetched")
	cmd.PersistentFlags().Int("retention-days", defaults.GetInt("reviews.retention_days"), "Days a cached review is kept after its last fetch")
	cmd.PersistentFlags().String("admin-signing-secret", "", "Secret for admin bearer tokens; empty leaves /api open")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "places.api_key", "places-api-key")
	bindFlag(cmd, "reviews.cache_ttl_hours", "cache-ttl-hours")
	bindFlag(cmd, "reviews.retention_days", "retention-days")
	bindFlag(cmd, "admin.signing_secret", "admin-signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	return readConfigFile(viper.GetViper(), cfgFile)
}

// readConfigFile loads an optional config file. An explicitly named file
// must exist and parse; without one only a missing default file is tolerated.
func readConfigFile(configViper *viper.Viper, path string) error {
	if path != "" {
		configViper.SetConfigFile(path)
		if err := configViper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	if err := configViper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return err
		}
	}
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
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

	if appConfig.PlacesAPIKey == "" {
		logger.Warn("places api key not configured; only cached reviews can be served")
	}
	placesClient, err := places.NewClient(places.ClientConfig{
		APIKey:            appConfig.PlacesAPIKey,
		Endpoint:          appConfig.PlacesEndpoint,
		Timeout:           appConfig.PlacesTimeout,
		RequestsPerSecond: appConfig.PlacesRequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	reviewService, err := reviews.NewService(reviews.ServiceConfig{
		Database:  db,
		Fetcher:   placesClient,
		Clock:     time.Now,
		Logger:    logger,
		CacheTTL:  appConfig.ReviewCacheTTL,
		Retention: appConfig.ReviewRetention,
	})
	if err != nil {
		return err
	}

	widgetService, err := widgets.NewService(widgets.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: widgets.NewNanoIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	renderer, err := widgetscript.NewRenderer()
	if err != nil {
		return err
	}

	refreshLimiter := ratelimit.New(ratelimit.Config{
		Rate:     appConfig.RefreshPerMinute,
		Interval: time.Minute,
		Burst:    appConfig.RefreshBurst,
	})
	defer refreshLimiter.Stop()

	deps := server.Dependencies{
		WidgetService:  widgetService,
		ReviewService:  reviewService,
		ScriptRenderer: renderer,
		Dashboard:      dashboard.FileSystem(),
		RefreshLimiter: refreshLimiter,
		Logger:         logger,
	}
	if appConfig.AdminAuthEnabled() {
		adminTokens, err := newAdminTokens(appConfig)
		if err != nil {
			return err
		}
		deps.AdminTokens = adminTokens
	} else {
		logger.Warn("admin signing secret not configured; /api is unauthenticated")
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := server.NewHTTPHandler(deps)
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
			zap.String("database_path", appConfig.DatabasePath),
			zap.Bool("admin_auth", appConfig.AdminAuthEnabled()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newAdminTokens(appConfig config.AppConfig) (*auth.AdminTokens, error) {
	return auth.NewAdminTokens(auth.AdminTokensConfig{
		SigningSecret: []byte(appConfig.AdminSigningSecret),
		Issuer:        appConfig.AdminIssuer,
	})
}

func newIssueTokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a signed admin bearer token for the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if !appConfig.AdminAuthEnabled() {
				return errors.New("admin.signing_secret must be configured to issue tokens")
			}
			adminTokens, err := newAdminTokens(appConfig)
			if err != nil {
				return err
			}
			token, expiresAt, err := adminTokens.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject recorded in request logs")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime; zero uses the default")
	return cmd
}
