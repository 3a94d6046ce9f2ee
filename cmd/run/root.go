package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/thep200/repo-harvester/cfg"
	"github.com/thep200/repo-harvester/pkg/log"
)

var configDir string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvest GitHub repository star counts into a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "cfg/yaml", "directory holding mode.yaml")

	root.AddCommand(newRunCommand())
	root.AddCommand(newMigrateCommand())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	err := newRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "harvester:", err)
	}
	return exitCode(err)
}

// loadConfig reads and validates the configuration. apply may adjust it before validation.
// Without full only the database settings are checked.
func loadConfig(apply func(*cfg.Config) error, full bool) (*cfg.ViperLoader, *cfg.Config, error) {
	loader, err := cfg.NewViperLoader(configDir)
	if err != nil {
		return nil, nil, withCode(exitConfig, "%w", err)
	}
	config, err := loader.Load()
	if err != nil {
		return nil, nil, withCode(exitConfig, "%w", err)
	}
	if apply != nil {
		if err := apply(config); err != nil {
			return nil, nil, withCode(exitConfig, "%w", err)
		}
	}
	validate := config.Database.Validate
	if full {
		validate = config.Validate
	}
	if err := validate(); err != nil {
		return nil, nil, withCode(exitConfig, "invalid configuration: %w", err)
	}
	return loader, config, nil
}

func newLogger(config *cfg.Config) (*log.ZeroLogger, error) {
	return log.NewZeroLogger(log.ZeroOptions{
		Level:     config.App.LogLevel,
		Pretty:    config.App.LogPretty,
		Component: config.App.Name,
	})
}
