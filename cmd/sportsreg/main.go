package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sports-registration/internal/bot"
	"sports-registration/internal/config"
	"sports-registration/internal/health"
	"sports-registration/internal/logging"
	"sports-registration/internal/metrics"
	"sports-registration/internal/repository"
	"sports-registration/internal/service"
	"sports-registration/internal/session"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "sportsreg",
		Short:         "Telegram bot for college sports registration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables override it)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sportsreg %s\n", version)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			log := logging.New(cfg.LogLevel, cfg.LogPretty)
			db, err := repository.NewDB(cfg.DatabaseURL, log)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			log.Info().Str("database", cfg.DatabaseURL).Msg("schema up to date")
			return nil
		},
	})

	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	m := metrics.New()
	registrationRepo := repository.NewRegistrationRepository(db)

	var sessions session.Store
	switch cfg.SessionStore {
	case config.SessionStoreSQLite:
		sessions = repository.NewSessionRepository(db)
	default:
		sessions = session.NewMemoryStore()
	}

	registrationSvc := service.NewRegistrationService(sessions, registrationRepo, m, log, cfg.PersistRetries)
	statsSvc := service.NewStatsService(sessions, registrationRepo, m, log)

	telegramBot, err := bot.New(cfg.BotToken, registrationSvc, log)
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}

	healthDone := make(chan struct{})
	if cfg.HealthAddr != "" {
		srv := health.NewServer(cfg.HealthAddr, m.Registry, log)
		go func() {
			defer close(healthDone)
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("liveness server stopped")
			}
		}()
	} else {
		close(healthDone)
	}

	if cfg.StatsInterval > 0 {
		scheduler := service.NewSchedulerService(time.Local, log)
		if _, err := scheduler.ScheduleInterval(cfg.StatsInterval, statsJob(statsSvc, log)); err != nil {
			return fmt.Errorf("schedule stats: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	log.Info().
		Str("version", version).
		Str("session_store", cfg.SessionStore).
		Str("health_addr", cfg.HealthAddr).
		Msg("sports registration bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped with error: %w", err)
	}
	<-healthDone
	log.Info().Msg("shutdown complete")
	return nil
}

func statsJob(stats *service.StatsService, log zerolog.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := stats.Report(ctx); err != nil {
			log.Error().Err(err).Msg("stats report")
		}
	}
}
