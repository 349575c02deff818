package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/planning-intel/internal/companieshouse"
	"github.com/planning-intel/internal/config"
	"github.com/planning-intel/internal/db"
	"github.com/planning-intel/internal/enrich"
	"github.com/planning-intel/internal/ingest"
	"github.com/planning-intel/internal/logging"
	"github.com/planning-intel/internal/match"
	"github.com/planning-intel/internal/normalize"
	"github.com/planning-intel/internal/pipeline"
	"github.com/planning-intel/internal/planning"
	"github.com/planning-intel/internal/scheduler"
	"github.com/planning-intel/internal/store"
	"github.com/planning-intel/internal/web"
)

// app bundles the wired components every subcommand draws from.
type app struct {
	cfg    *config.AppConfig
	logger *zap.Logger
	conn   *db.Connection
	store  *store.Store
	pipe   *pipeline.Pipeline
	sched  *scheduler.Scheduler
}

func main() {
	config.LoadEnv()
	cfg := config.FromEnv()

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rootCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Planning applicant to company matching pipeline",
		Long:  `Discovers UK planning applications, matches applicants against the Companies House register, and maintains the resulting company and officer graph.`,
	}

	rootCmd.AddCommand(createPingCmd(cfg, logger))
	rootCmd.AddCommand(createMigrateCmd(cfg, logger))
	rootCmd.AddCommand(createProcessCmd(cfg, logger))
	rootCmd.AddCommand(createDiscoverCmd(cfg, logger))
	rootCmd.AddCommand(createScheduleCmd(cfg, logger))

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// connect wires the full application graph. Every subcommand that touches
// the database goes through here.
func connect(cfg *config.AppConfig, logger *zap.Logger) (*app, error) {
	conn, err := db.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	st := store.New(conn.DB, logger)

	norm := normalize.NewNormalizer()
	scorer := match.NewScorer(norm)
	matcher := match.NewMatcher(norm, scorer, logger)
	validator := ingest.NewValidator(norm)

	directory := companieshouse.NewClient(cfg.CompaniesHouseBaseURL, cfg.CompaniesHouseAPIKey, logger)

	var enricher pipeline.ContactEnricher
	if cfg.EnableEnrichment && cfg.HunterAPIKey != "" {
		enricher = enrich.NewClient(cfg.HunterBaseURL, cfg.HunterAPIKey, st, logger)
	}

	pipe := pipeline.New(pipeline.Config{
		MinConfidenceScore:     cfg.MinConfidenceScore,
		MaxMatchesPerApplicant: cfg.MaxMatchesPerApplicant,
		SearchPageSize:         cfg.SearchPageSize,
		EnableEnrichment:       enricher != nil,
		EnrichmentLookback:     cfg.EnrichmentLookback,
	}, st, directory, enricher, validator, matcher, logger)

	searcher := planning.NewClient(cfg.PlanningBaseURL, "", logger)
	sched := scheduler.New(scheduler.Config{
		Boroughs:       cfg.Boroughs,
		DaysBack:       cfg.DaysBack,
		BatchSize:      cfg.BatchSize,
		RateLimitDelay: cfg.RateLimitDelay,
		CronExpr:       cfg.CronExpr,
	}, searcher, st, pipe, logger)

	return &app{cfg: cfg, logger: logger, conn: conn, store: st, pipe: pipe, sched: sched}, nil
}

func createPingCmd(cfg *config.AppConfig, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cfg, logger)
			if err != nil {
				return err
			}
			defer a.conn.Close()

			if err := a.store.Ping(); err != nil {
				return fmt.Errorf("database ping failed: %w", err)
			}
			fmt.Println("Database connection successful!")
			return nil
		},
	}
}

func createMigrateCmd(cfg *config.AppConfig, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cfg, logger)
			if err != nil {
				return err
			}
			defer a.conn.Close()

			if err := a.store.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Schema is up to date.")
			return nil
		},
	}
}

func createProcessCmd(cfg *config.AppConfig, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "process [filename]",
		Short: "Process a JSON file of planning applicants through the matching pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applicants, err := readApplicants(args[0])
			if err != nil {
				return err
			}

			a, err := connect(cfg, logger)
			if err != nil {
				return err
			}
			defer a.conn.Close()

			stats := a.pipe.ProcessBatch(applicants)
			fmt.Println(stats.Summary())
			if len(stats.Errors) > 0 {
				for _, e := range stats.Errors {
					fmt.Printf("  error: %s\n", e)
				}
			}
			return nil
		},
	}
}

func createDiscoverCmd(cfg *config.AppConfig, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery cycle over the configured boroughs now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cfg, logger)
			if err != nil {
				return err
			}
			defer a.conn.Close()

			stats, err := a.sched.RunDiscovery()
			if err != nil {
				return err
			}
			fmt.Printf("Discovered %d applications across %d boroughs, processed %d, matched %d companies (%d errors)\n",
				stats.ApplicationsDiscovered, stats.BoroughsProcessed,
				stats.ApplicationsProcessed, stats.CompaniesMatched, stats.ErrorCount)
			return nil
		},
	}
}

func createScheduleCmd(cfg *config.AppConfig, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the weekly discovery scheduler and ops API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cfg, logger)
			if err != nil {
				return err
			}
			defer a.conn.Close()

			if err := a.sched.Start(); err != nil {
				return err
			}

			server := web.NewServer(cfg.HTTPAddr, a.sched, logger)
			server.Start()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			a.sched.Stop()
			return nil
		},
	}
}

func readApplicants(filename string) ([]ingest.RawApplicant, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var applicants []ingest.RawApplicant
	if err := json.Unmarshal(data, &applicants); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	// Keep the original records for provenance.
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err == nil && len(raws) == len(applicants) {
		for i := range applicants {
			applicants[i].RawPayload = raws[i]
		}
	}
	return applicants, nil
}
