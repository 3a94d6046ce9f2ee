package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thep200/repo-harvester/cfg"
	crawlinfo "github.com/thep200/repo-harvester/internal/crawl_info"
	"github.com/thep200/repo-harvester/internal/crawler"
	"github.com/thep200/repo-harvester/internal/ui"
	"github.com/thep200/repo-harvester/pkg/db"
	"github.com/thep200/repo-harvester/pkg/log"
)

type runFlags struct {
	target      int
	startOffset int
	from        string
	to          string
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest repositories until the target count is persisted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, flags)
		},
	}
	cmd.Flags().IntVar(&flags.target, "target", 0, "number of records to persist (overrides crawl.target)")
	cmd.Flags().IntVar(&flags.startOffset, "start-offset", 0, "first partition index to process (overrides crawl.start_offset)")
	cmd.Flags().StringVar(&flags.from, "from", "", "creation date to start from, YYYY-MM-DD (overrides crawl.start_date)")
	cmd.Flags().StringVar(&flags.to, "to", "", "creation date to stop at, YYYY-MM-DD (overrides crawl.end_date)")
	return cmd
}

// apply copies the flags the user actually set onto config.
func (f *runFlags) apply(cmd *cobra.Command) func(*cfg.Config) error {
	return func(config *cfg.Config) error {
		if cmd.Flags().Changed("target") {
			config.Crawl.Target = f.target
		}
		if cmd.Flags().Changed("start-offset") {
			config.Crawl.StartOffset = f.startOffset
		}
		if cmd.Flags().Changed("from") {
			config.Crawl.StartDate = f.from
		}
		if cmd.Flags().Changed("to") {
			config.Crawl.EndDate = f.to
		}
		return nil
	}
}

func runHarvest(cmd *cobra.Command, flags *runFlags) error {
	loader, config, err := loadConfig(flags.apply(cmd), true)
	if err != nil {
		return err
	}
	logger, err := newLogger(config)
	if err != nil {
		return withCode(exitConfig, "%w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithField(ctx, "run_id", time.Now().UTC().Format("20060102T150405"))

	loader.RegisterConfigChangeCallback(func(c *cfg.Config) {
		logger.SetLevel(c.App.LogLevel)
		logger.Info(ctx, "Configuration reloaded, log level is %s", c.App.LogLevel)
	})
	loader.Watch(func(err error) {
		logger.Warn(ctx, "Ignoring config change: %v", err)
	})

	database := db.NewDatabase(config.Database)
	defer database.Close()
	if err := database.Ping(ctx); err != nil {
		logger.Critical(ctx, "Database unreachable: %v", err)
		return withCode(exitDatabase, "database unreachable: %w", err)
	}

	harvester, err := crawler.FactoryHarvester(ctx, logger, config, database, nil)
	if err != nil {
		return withCode(exitConfig, "%w", err)
	}
	defer func() {
		if err := harvester.Close(); err != nil {
			logger.Warn(ctx, "Closing harvester resources: %v", err)
		}
	}()

	if err := harvester.Repository.EnsureSchema(ctx); err != nil {
		logger.Critical(ctx, "Schema setup failed: %v", err)
		return withCode(exitDatabase, "%w", err)
	}

	if config.Server.Port > 0 {
		stopServer := startStatusServer(ctx, logger, config.Server.Port, harvester)
		defer stopServer()
	}

	logger.Info(ctx, "Starting GitHub repository harvest")
	report, err := harvester.Crawl(ctx)
	if err != nil {
		logger.Critical(ctx, "Harvest failed after persisting %d records: %v", report.Persisted, err)
		return withCode(exitRunFailure, "%w", err)
	}
	if report.State == crawlinfo.StateCancelled {
		return withCode(exitInterrupted, "interrupted after persisting %d of %d records", report.Persisted, report.Target)
	}
	return nil
}

func startStatusServer(ctx context.Context, logger log.Logger, port int, harvester *crawler.Harvester) func() {
	server, err := ui.NewServer(logger, ui.NewHandler(logger, harvester, harvester.Repository), port)
	if err != nil {
		logger.Warn(ctx, "Status server disabled: %v", err)
		return func() {}
	}
	go func() {
		if err := server.Start(); err != nil {
			logger.Error(ctx, "Status server stopped: %v", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.Warn(ctx, "Status server shutdown: %v", err)
		}
	}
}
