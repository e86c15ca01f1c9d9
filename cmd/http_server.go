package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/prasetya/cms-auth/internal"
	"github.com/prasetya/cms-auth/internal/auth"
	authpostgres "github.com/prasetya/cms-auth/internal/auth/postgres"
	authredis "github.com/prasetya/cms-auth/internal/auth/redis"
	"github.com/prasetya/cms-auth/internal/rbac"
	rbacpostgres "github.com/prasetya/cms-auth/internal/rbac/postgres"
	"github.com/prasetya/cms-auth/internal/transport/middleware"
	"github.com/prasetya/cms-auth/internal/transport/rest"
	"github.com/prasetya/cms-auth/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config      *internal.Config
	DB          *sqlx.DB
	GormDB      *gorm.DB
	Router      *chi.Mux
	AuthHandler *auth.Handler
	RBACHandler *rbac.Handler
	Authz       *rbac.Authorization
	Gate        *middleware.Gate
	Logger      *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Config, deps.AuthHandler, deps.RBACHandler, deps.Authz, deps.Gate, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

// initializeDependencies builds the whole object graph once at startup.
// Nothing registers lazily; a misconfigured store fails the process here
// rather than on the first request.
func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	attemptStore, err := initAttemptStore(config, gormDB)
	if err != nil {
		return nil, err
	}

	guard := auth.NewGuard(attemptStore, config.RateLimit.MaxAttempts, config.RateLimit.BlockDuration, lg)
	issuer := auth.NewJWTTokenIssuer(config.Security.SessionSecret, config.Security.SessionTTL)

	rbacStore := rbacpostgres.NewStore(gormDB)
	resolver := rbac.NewResolver(rbacStore, lg)
	authz := rbac.NewAuthorization(resolver, lg)

	accounts := authpostgres.NewRepository(gormDB)
	authService := auth.NewService(accounts, resolver, guard, issuer, lg)
	authHandler := auth.NewHandler(authService, config.Security.PermissionSnapshotMaxAge)
	rbacHandler := rbac.NewHandler(rbacStore)
	gate := middleware.NewGate(authService, config.Gate, lg)

	return &Dependencies{
		Config:      config,
		DB:          db,
		GormDB:      gormDB,
		Router:      chi.NewRouter(),
		AuthHandler: authHandler,
		RBACHandler: rbacHandler,
		Authz:       authz,
		Gate:        gate,
		Logger:      lg,
	}, nil
}

func initAttemptStore(config *internal.Config, gormDB *gorm.DB) (auth.AttemptStore, error) {
	switch config.RateLimit.Store {
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return authredis.NewAttemptStore(client, config.RateLimit.MaxAttempts, config.RateLimit.BlockDuration), nil
	default:
		return authpostgres.NewAttemptStore(gormDB, config.RateLimit.MaxAttempts, config.RateLimit.BlockDuration), nil
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
