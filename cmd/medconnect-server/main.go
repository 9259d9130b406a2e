package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medconnect/medconnect/internal/config"
	"github.com/medconnect/medconnect/internal/domain/community"
	"github.com/medconnect/medconnect/internal/domain/ehr"
	"github.com/medconnect/medconnect/internal/domain/identity"
	"github.com/medconnect/medconnect/internal/domain/inbox"
	"github.com/medconnect/medconnect/internal/domain/research"
	"github.com/medconnect/medconnect/internal/domain/scheduling"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
	"github.com/medconnect/medconnect/internal/platform/db"
	"github.com/medconnect/medconnect/internal/platform/metrics"
	"github.com/medconnect/medconnect/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medconnect-server",
		Short: "MedConnect API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MedConnect API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
					}
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	if cfg.BlobBackend != config.BlobBackendS3 {
		return blobstore.NewMemoryStore(), nil
	}
	client, err := blobstore.NewS3Client(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return blobstore.NewS3Store(client, cfg.S3Bucket), nil
}

// newRevocationStore uses Redis when REDIS_URL is set so that logouts are
// shared across instances. The returned func releases the store.
func newRevocationStore(ctx context.Context, cfg *config.Config) (auth.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		store := auth.NewMemoryRevocationStore(time.Minute)
		return store, store.Close, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return auth.NewRedisRevocationStore(client), func() { client.Close() }, nil
}

// deps are the external resources the HTTP server is built on.
type deps struct {
	pool        db.Pool
	blobs       blobstore.BlobStore
	revocations auth.RevocationStore
	registry    *prometheus.Registry
}

// newServer wires every domain onto a fresh echo instance.
func newServer(cfg *config.Config, logger zerolog.Logger, d deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger, cfg.IsDev())

	httpMetrics := metrics.NewHTTPMetrics(d.registry)
	workflowMetrics := metrics.NewWorkflowMetrics(d.registry)

	// Global middleware
	e.Use(httpMetrics.Middleware())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", metrics.Handler(d.registry))

	issuer := auth.NewSessionIssuer([]byte(cfg.SessionSecret), cfg.SessionTTL)
	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	api.Use(auth.SessionMiddleware(auth.SessionConfig{
		Issuer:      issuer,
		Revocations: d.revocations,
		CookieName:  cfg.SessionCookie,
		Skipper:     auth.Skipper,
		Logger:      logger,
	}))

	txm := db.NewTxManager(d.pool)

	// Identity domain
	identitySvc := identity.NewService(
		identity.NewProfileRepoPG(d.pool),
		identity.NewPatientProfileRepoPG(d.pool),
		identity.NewResearcherProfileRepoPG(d.pool),
		txm, d.blobs, logger,
	)
	identity.NewHandler(identitySvc, identity.SessionOptions{
		Issuer:      issuer,
		Revocations: d.revocations,
		CookieName:  cfg.SessionCookie,
		Secure:      cfg.TLSEnabled || cfg.IsProduction(),
	}).RegisterRoutes(api)

	// Inbox domain
	inboxSvc := inbox.NewService(
		inbox.NewContactRequestRepoPG(d.pool),
		inbox.NewNotificationRepoPG(d.pool),
		identitySvc, txm, workflowMetrics,
	)
	inbox.NewHandler(inboxSvc).RegisterRoutes(api)

	// Health records
	ehrSvc := ehr.NewService(
		ehr.NewMedicalRecordRepoPG(d.pool),
		ehr.NewVitalSignsRepoPG(d.pool),
		ehr.NewMedicationRepoPG(d.pool),
		ehr.NewImmunizationRepoPG(d.pool),
		ehr.NewAllergyRepoPG(d.pool),
		d.blobs, logger,
	)
	ehr.NewHandler(ehrSvc).RegisterRoutes(api)

	// Research domain
	researchSvc := research.NewService(
		research.NewStudyRepoPG(d.pool),
		research.NewParticipationRepoPG(d.pool),
		research.NewDocumentRepoPG(d.pool),
		txm, d.blobs, inboxSvc, workflowMetrics, logger,
	)
	research.NewHandler(researchSvc).RegisterRoutes(api)

	// Appointments
	schedulingSvc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(d.pool),
		researchSvc, identitySvc, inboxSvc, logger,
	)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(api)

	// Communities
	communitySvc := community.NewService(
		community.NewCommunityRepoPG(d.pool),
		community.NewMembershipRepoPG(d.pool),
		community.NewPostRepoPG(d.pool),
		community.NewAttachmentRepoPG(d.pool),
		community.NewLikeRepoPG(d.pool),
		community.NewCommentRepoPG(d.pool),
		txm, d.blobs, logger,
	)
	community.NewHandler(communitySvc).RegisterRoutes(api)

	// Stored files
	blobstore.NewHandler(d.blobs).
		Allow(ehr.RecordPrefix, blobstore.OwnerOnly).
		Allow(research.DocumentPrefix, researchSvc.DocumentAccess).
		Allow(identity.PicturePrefix, blobstore.AnyUser).
		Allow(community.AttachmentPrefix, blobstore.AnyUser).
		RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise blob storage")
	}
	revocations, closeRevocations, err := newRevocationStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise session revocation store")
	}
	defer closeRevocations()
	logger.Info().
		Str("blob_backend", cfg.BlobBackend).
		Bool("redis_revocations", cfg.RedisURL != "").
		Msg("storage ready")

	e := newServer(cfg, logger, deps{
		pool:        pool,
		blobs:       blobs,
		revocations: revocations,
		registry:    metrics.NewRegistry(),
	})
	e.GET("/health/db", db.HealthHandler(pool))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
