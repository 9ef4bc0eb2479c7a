package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/config"
	"github.com/sreekar-ss/devbytes-blog/database"
	"github.com/sreekar-ss/devbytes-blog/handlers"
	"github.com/sreekar-ss/devbytes-blog/logger"
	"github.com/sreekar-ss/devbytes-blog/middleware"
	"github.com/sreekar-ss/devbytes-blog/store"
	"github.com/sreekar-ss/devbytes-blog/stream"
	"github.com/sreekar-ss/devbytes-blog/utils"
)

var (
	migrateOnStart bool
	skipPostCheck  bool
)

var rootCmd = &cobra.Command{
	Use:   "devbytes-analytics",
	Short: "Reading analytics service for the DevBytes blog",
	Long: `devbytes-analytics records reading sessions sent by the blog's page tracker,
separates bot traffic from human readers, and serves per-reader and
site-wide reading statistics.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analytics HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply the analytics schema before serving")
	serveCmd.Flags().BoolVar(&skipPostCheck, "skip-post-check", false, "accept sessions for post ids missing from the posts table")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashAddressCmd)
	rootCmd.AddCommand(simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.WithService(log, "devbytes-analytics"), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Analytics.UsingDefaultSalt() {
		log.Warn("IP_HASH_SALT is not set; client addresses are hashed with the public default salt")
	}

	tokens, err := utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if migrateOnStart {
		if err := db.Migrate(cmd.Context(), false); err != nil {
			return err
		}
	}

	var events store.EventStore
	if cfg.ClickHouse.Enabled() {
		chClient, err := database.NewClickHouseDB(cfg.ClickHouse, log)
		if err != nil {
			return fmt.Errorf("failed to initialize ClickHouse database: %w", err)
		}
		defer chClient.Close()
		events = store.NewClickHouseEventStore(chClient, log)
	} else {
		events = store.NewSQLEventStore(db, log)
	}

	var publisher stream.Publisher = stream.NoopPublisher{}
	if cfg.Kafka.Enabled() {
		producer, err := stream.NewProducer(cfg.Kafka, log)
		if err != nil {
			return fmt.Errorf("failed to initialize Kafka producer: %w", err)
		}
		publisher = stream.NewAsyncPublisher(producer, cfg.Kafka.QueueSize, log)
	}
	defer publisher.Close()

	var posts handlers.PostLookup
	if !skipPostCheck {
		posts = store.NewPostStore(db)
	}

	analyticsHandlers := handlers.NewAnalyticsHandlers(
		store.NewSessionStore(db, log),
		posts,
		events,
		publisher,
		cfg.Analytics,
		log,
	)

	r, err := handlers.NewRouter(handlers.RouterConfig{
		Analytics: analyticsHandlers,
		Auth:      middleware.NewAuth(tokens, cfg.Auth.AdminAPIKeyHash, log),
		Limiter:   middleware.NewRateLimiter(cfg.Analytics.RateLimitRPS, cfg.Analytics.RateLimitBurst, cfg.Analytics.IPHashSalt),
		Health:    db,
		FEOrigin:  cfg.FEOrigin,
		Logger:    log,

		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Analytics API starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("analytics API failed to start: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exiting")
	return nil
}
