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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mauv0809/concession-impact/internal/config"
	"github.com/mauv0809/concession-impact/internal/db"
	"github.com/mauv0809/concession-impact/internal/export"
	"github.com/mauv0809/concession-impact/internal/handlers"
	"github.com/mauv0809/concession-impact/internal/ingest"
	"github.com/mauv0809/concession-impact/internal/pipeline"
)

func main() {
	// Load .env file if it exists (local dev)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "concessions",
		Short:         "Estimate the cost of Drug Tariff price changes after price concessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg), nil
}

// openSource connects the configured warehouse source. The returned close
// function is never nil. When every table is served from cache a failed
// connection is logged and a nil source returned.
func openSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ingest.Source, *pgxpool.Pool, func(), error) {
	noop := func() {}
	allCached := cfg.UseCacheConcessions && cfg.UseCacheTariff && cfg.UseCachePrescribing

	switch cfg.WarehouseSource {
	case config.SourceHTTP:
		return ingest.NewClient(cfg.WarehouseAPIURL, cfg.WarehouseAPIKey, logger), nil, noop, nil
	case config.SourcePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			if allCached {
				logger.Warn().Err(err).Msg("warehouse unavailable, serving every table from cache")
				return nil, nil, noop, nil
			}
			return nil, nil, noop, err
		}
		logger.Info().Msg("connected to warehouse")
		return db.NewWarehouse(pool), pool, pool.Close, nil
	default:
		return nil, nil, noop, fmt.Errorf("%w: unknown WAREHOUSE_SOURCE %q", config.ErrInvalidConfig, cfg.WarehouseSource)
	}
}

func runCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline, write the exports and print the monthly summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if refresh {
				cfg.UseCacheConcessions, cfg.UseCacheTariff, cfg.UseCachePrescribing = false, false, false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			source, _, closeSource, err := openSource(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeSource()

			report, err := pipeline.NewRunner(cfg, source, logger).Run(ctx)
			if err != nil {
				return err
			}
			return export.WriteSummary(cmd.OutOrStdout(), report.Result.MonthlyTotals, cfg.SummaryMonths)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cache files and query the warehouse for every table")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the cost-impact report viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	h := handlers.New(cfg.ImpactExportPath, logger)

	var admin *handlers.AdminHandler
	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("pipeline not configured, admin endpoints disabled")
	} else {
		source, pool, closeSource, err := openSource(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("warehouse unavailable, admin endpoints disabled")
		} else {
			defer closeSource()
			var warehouse handlers.Warehouse
			if pool != nil {
				warehouse = db.NewRepository(pool)
			}
			newRunner := func() handlers.PipelineRunner { return pipeline.NewRunner(cfg, source, logger) }
			admin = handlers.NewAdminHandler(newRunner, warehouse, cfg.DataDir, logger)
			logger.Info().Msg("admin endpoints registered")
		}
	}

	e := handlers.NewServer(h, admin, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the local warehouse schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
				return err
			}
			logger.Info().Msg("migrations completed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			return db.MigrationStatus(cfg.DatabaseURL, logger)
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the cache CSV files into the local warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			if dataDir == "" {
				dataDir = cfg.DataDir
			}

			if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := db.NewRepository(pool).Seed(ctx, dataDir, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d concessions, %d tariff prices, %d prescribing rows\n",
				res.Concessions, res.TariffRows, res.Prescribing)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding the cache CSV files (default DATA_DIR)")
	return cmd
}
