package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ecr/ecrviewer/internal/config"
	"github.com/ecr/ecrviewer/internal/domain/ecr"
	"github.com/ecr/ecrviewer/internal/platform/auth"
	"github.com/ecr/ecrviewer/internal/platform/blobstore"
	"github.com/ecr/ecrviewer/internal/platform/cache"
	"github.com/ecr/ecrviewer/internal/platform/db"
	"github.com/ecr/ecrviewer/internal/platform/gate"
	"github.com/ecr/ecrviewer/internal/platform/middleware"
	"github.com/ecr/ecrviewer/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ecr-viewer",
		Short: "eCR Viewer library API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the eCR Viewer API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
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
			ctx := context.Background()
			cfg, d, variant, err := openFromConfig(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			fmt.Printf("Running %s migrations on %s\n", variant, d.Dialect.Name)
			count, err := runMigrations(ctx, d, variant, dir)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Directory of extra .sql migrations (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, d, variant, err := openFromConfig(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			migrator, err := newMigrator(d, variant, dir)
			if err != nil {
				return err
			}
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for %s schema on %s\n", variant, d.Dialect.Name)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Directory of extra .sql migrations (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func newLogger(console bool) zerolog.Logger {
	if console {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openFromConfig loads and validates the configuration, then opens the
// metadata database it names.
func openFromConfig(ctx context.Context) (*config.Config, *db.DB, ecr.Variant, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, "", err
	}
	d, variant, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, "", err
	}
	return cfg, d, variant, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*db.DB, ecr.Variant, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, "", err
	}
	variant, err := ecr.ParseVariant(cfg.DatabaseSchema)
	if err != nil {
		return nil, "", err
	}
	d, err := db.Open(ctx, db.Options{
		Dialect:   dialect,
		URL:       cfg.DatabaseURL,
		Namespace: cfg.DBNamespace,
		MaxConns:  cfg.DBMaxConns,
		MinConns:  cfg.DBMinConns,
	})
	if err != nil {
		return nil, "", fmt.Errorf("connect to %s: %w", dialect.Name, err)
	}
	return d, variant, nil
}

func newMigrator(d *db.DB, variant ecr.Variant, dir string) (*db.Migrator, error) {
	builtin, err := db.BuiltinMigrations(d.Dialect, string(variant))
	if err != nil {
		return nil, err
	}
	return db.NewMigrator(d, builtin, dir), nil
}

func runMigrations(ctx context.Context, d *db.DB, variant ecr.Variant, dir string) (int, error) {
	migrator, err := newMigrator(d, variant, dir)
	if err != nil {
		return 0, err
	}
	return migrator.Up(ctx)
}

// server is the assembled HTTP application and the resources it owns.
type server struct {
	echo    *echo.Echo
	bundles blobstore.BundleStore
	closers []func() error
}

func (s *server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// newServer wires the service, the authorization gate and the routes over
// an open metadata database.
func newServer(ctx context.Context, cfg *config.Config, d *db.DB, variant ecr.Variant, logger zerolog.Logger) (*server, error) {
	srv := &server{}
	fail := func(err error) (*server, error) {
		_ = srv.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return fail(err)
	}
	repo, err := ecr.NewRepository(d, variant, ecr.NewTimeFormatter(loc))
	if err != nil {
		return fail(err)
	}
	svc := ecr.NewService(repo, logger)
	svc.SetLocation(loc)
	var checks []db.Check

	// Metrics
	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.New(cfg.AppVersion)
		if err := metrics.RegisterDB(d.Dialect.Name, d.DB); err != nil {
			return fail(fmt.Errorf("metrics: %w", err))
		}
	}

	// Conditions cache
	var conditions cache.StringListCache
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, "ecr-viewer")
		if err != nil {
			return fail(fmt.Errorf("conditions cache: %w", err))
		}
		srv.closers = append(srv.closers, rc.Close)
		conditions = rc
		checks = append(checks, db.Check{Name: "redis", Ping: rc.Ping})
		logger.Info().Msg("conditions cache: redis")
	} else {
		conditions = cache.NewMemoryCache()
	}
	if metrics != nil {
		conditions = cache.WithObserver(conditions, metrics.CacheLookup)
	}
	svc.SetConditionsCache(conditions, cfg.ConditionsCacheTTL)

	// Bundle store
	switch cfg.BlobSource {
	case config.BlobSourceGCS:
		gcs, err := blobstore.NewGCSStore(ctx, blobstore.GCSConfig{
			Bucket:      cfg.ECRBucketName,
			Endpoint:    cfg.GCPAPIEndpoint,
			Credentials: cfg.GCPCredentials,
		})
		if err != nil {
			return fail(fmt.Errorf("bundle store: %w", err))
		}
		srv.closers = append(srv.closers, gcs.Close)
		srv.bundles = gcs
		svc.SetBundleStore(gcs, gcs.Bucket())
		checks = append(checks, db.Check{Name: "gcs", Ping: gcs.Ping})
		logger.Info().Str("bucket", gcs.Bucket()).Msg("bundle store: gcs")
	case config.BlobSourceMemory:
		srv.bundles = blobstore.NewMemoryStore()
		svc.SetBundleStore(srv.bundles, cfg.ECRBucketName)
		logger.Warn().Msg("bundle store: in-memory, bundles are not persisted")
	}

	// Authorization gate
	var tokenKey *rsa.PublicKey
	if cfg.TokenAuthEnabled() {
		if tokenKey, err = auth.ParsePublicKeyPEM(cfg.NBSPubKey); err != nil {
			return fail(err)
		}
	}
	token := auth.NewTokenStage(tokenKey, logger)

	var (
		provider     auth.SessionProvider
		authorizeURL string
	)
	if cfg.SessionAuthEnabled() {
		p, err := auth.NewJWTSessionProvider(ctx, auth.JWTSessionConfig{
			Provider: cfg.AuthProvider,
			Secret:   []byte(cfg.SessionSecret),
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		})
		if err != nil {
			return fail(fmt.Errorf("session provider: %w", err))
		}
		provider = p
		if cfg.AuthIssuer != "" {
			if oidc, err := auth.DiscoverOIDC(ctx, cfg.AuthIssuer); err == nil {
				authorizeURL = oidc.AuthorizationEndpoint
			} else {
				logger.Warn().Err(err).Msg("sign-in page will not advertise an authorize URL")
			}
		}
	}
	if !token.Enabled() && provider == nil {
		logger.Warn().Msg("no NBS_PUB_KEY or AUTH_PROVIDER configured, every gated request will be redirected to an error page")
	}

	chain := gate.NewChain(logger,
		token,
		auth.NewSessionStage(provider, token.Enabled(), cfg.BasePath, logger),
		ecr.NewParamStage(cfg.BasePath),
	).WithSkipper(auth.Skipper(cfg.BasePath))
	if metrics != nil {
		chain.OnHalt(metrics.GateHalted)
	}
	logger.Info().Strs("stages", chain.Names()).Msg("authorization gate")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS: cfg.TLSEnabled || cfg.IsProduction(),
	}))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	if metrics != nil {
		e.GET("/metrics", metrics.Handler())
	}

	var recorder middleware.AuditRecorder
	if metrics != nil {
		recorder = middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
			metrics.ReportAccessed(entry.Action, entry.Mode)
			return nil
		})
	}

	base := e.Group(cfg.BasePath)
	base.Use(chain.Middleware())
	base.Use(middleware.Audit(logger, cfg.BasePath, recorder))
	if cfg.RequestTimeout > 0 {
		base.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	// Public routes, passed through by the gate skipper
	base.GET("/api/health-check", db.HealthHandler(d, cfg.AppVersion, checks...))
	base.GET("/signin", auth.SignInHandler(provider, authorizeURL, cfg.BasePath))
	ecr.RegisterPublicRoutes(base)

	ecr.NewHandler(svc).RegisterRoutes(base)

	srv.echo = e
	return srv, nil
}

func runServer(migrate bool) error {
	// Config
	cfg, err := config.Load()

	// Logger
	logger := newLogger(cfg == nil || cfg.IsDev())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	d, variant, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer d.Close()
	logger.Info().Str("dialect", d.Dialect.Name).Str("schema", string(variant)).Msg("connected to database")

	if migrate {
		n, err := runMigrations(ctx, d, variant, cfg.MigrationsDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int("applied", n).Msg("migrations applied")
	}

	srv, err := newServer(ctx, cfg, d, variant, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	defer srv.Close()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("base_path", cfg.BasePath).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = srv.echo.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.echo.Start(addr)
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
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
