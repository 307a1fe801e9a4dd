package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/expense-importer/internal/domain/categorization"
	"github.com/FACorreiaa/expense-importer/internal/domain/expense"
	importhandler "github.com/FACorreiaa/expense-importer/internal/domain/import/handler"
	importrepo "github.com/FACorreiaa/expense-importer/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/expense-importer/internal/domain/import/service"
	"github.com/FACorreiaa/expense-importer/pkg/config"
	"github.com/FACorreiaa/expense-importer/pkg/cron"
	"github.com/FACorreiaa/expense-importer/pkg/db"
	"github.com/FACorreiaa/expense-importer/pkg/interceptors"
	"github.com/FACorreiaa/expense-importer/pkg/metrics"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	DB       *db.DB
	Logger   *slog.Logger
	Registry *prometheus.Registry

	// Repositories
	ImportRepo         importrepo.ImportRepository
	CategorizationRepo categorization.Store
	ExpenseRepo        *expense.Repository

	// Services
	CategorizationService *categorization.Service
	ImportService         *importservice.ImportService
	TokenValidator        *interceptors.TokenValidator
	RateLimiter           *interceptors.RateLimiter
	Scheduler             *cron.Scheduler
	ImportMetrics         *metrics.ImportMetrics
	HTTPMetrics           *metrics.HTTPMetrics

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        d.Config.Database.MaxConns,
		MinConns:        d.Config.Database.MinConns,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.ExpenseRepo = expense.NewRepository(d.DB.Pool)
	d.CategorizationRepo = categorization.NewRepository(d.DB.Pool)
	d.ImportRepo = importrepo.NewPostgresImportRepository(
		d.DB.Pool,
		newExpenseAdapter(d.ExpenseRepo, d.Config.Import.Currency),
	)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies. Repositories must
// already be set.
func (d *Dependencies) initServices() error {
	if d.Config.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	d.TokenValidator = interceptors.NewTokenValidator(d.Config.Auth.JWTSecret)
	d.RateLimiter = interceptors.NewRateLimiter(
		d.Config.Server.RateLimitPerSecond,
		d.Config.Server.RateLimitBurst,
		10*time.Minute,
	)

	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
		d.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	d.ImportMetrics = metrics.NewImportMetrics(d.Registry)
	d.HTTPMetrics = metrics.NewHTTPMetrics(d.Registry)

	// Category matching with the configured alias table
	var aliases categorization.AliasTable
	if raw := d.Config.Import.CategoryAliases; raw != "" {
		table, err := categorization.ParseAliasTable(raw)
		if err != nil {
			return fmt.Errorf("invalid category aliases: %w", err)
		}
		aliases = table
	}
	d.CategorizationService = categorization.NewService(d.CategorizationRepo, aliases)

	d.ImportService = importservice.NewImportService(d.ImportRepo, d.CategorizationService, d.Logger).
		WithMetrics(d.ImportMetrics).
		WithMaxUploadBytes(d.Config.Import.MaxUploadBytes).
		WithCurrency(d.Config.Import.Currency)

	d.Scheduler = cron.NewScheduler(
		d.ImportService,
		d.Config.Import.SessionTTL,
		d.Config.Import.ExpirySchedule,
		d.Logger,
	)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
