package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nao1215/csvanon/internal/anonymizer"
	"github.com/nao1215/csvanon/internal/config"
	"github.com/nao1215/csvanon/internal/database"
	"github.com/nao1215/csvanon/internal/log"
	"github.com/nao1215/csvanon/internal/model"
	"github.com/nao1215/csvanon/internal/pipeline"
	"github.com/spf13/cobra"
)

// flagString returns the value of a local or inherited flag, or "" when
// the command has no such flag.
func flagString(cmd *cobra.Command, name string) string {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Value.String()
	}
	if f := cmd.Root().PersistentFlags().Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

// flagChanged reports whether a local or inherited flag was set.
func flagChanged(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Changed
	}
	if f := cmd.Root().PersistentFlags().Lookup(name); f != nil {
		return f.Changed
	}
	return false
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	return flagString(cmd, "verbose") == "true"
}

// buildConfig creates a Config from defaults, the .env file, the
// configuration file, the environment and the global flags, in that order.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	if err := config.LoadDotEnv(flagString(cmd, "env-file")); err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, silently use defaults if no file is found.
	explicitPath := flagString(cmd, "config")
	configPath := config.FindConfigFile(explicitPath)
	switch {
	case configPath != "":
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cf.Apply(cfg)
		cfg.ConfigFilePath = configPath
	case explicitPath != "":
		return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
	}

	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	if format := flagString(cmd, "log-format"); format != "" {
		cfg.LogFormat = format
	}

	return cfg, nil
}

// setupLogger creates the secure structured logger for cfg.
// CLI commands log at Warn unless verbose; the server logs at Info.
func setupLogger(cfg *config.Config, quiet bool) *slog.Logger {
	return newCommandLogger(os.Stderr, cfg, quiet)
}

// newCommandLogger is setupLogger writing to w.
func newCommandLogger(w io.Writer, cfg *config.Config, quiet bool) *slog.Logger {
	asJSON := cfg.LogFormat == "json"
	switch {
	case !quiet:
		return log.NewLogger(w, log.Options{Verbose: cfg.Verbose, JSON: asJSON})
	case asJSON:
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	default:
		return log.NewSecureLogger(w, cfg.Verbose)
	}
}

// openHistory opens the run history database when it is enabled.
// It returns nil when history is disabled.
func openHistory(cfg *config.Config, logger *slog.Logger) (*database.HistoryDB, error) {
	if !cfg.HistoryEnabled {
		return nil, nil
	}
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", db.Path())
	return db, nil
}

// historyObserver stores every finished run in db. A failed save is
// logged and does not change the outcome of the run.
func historyObserver(db *database.HistoryDB, logger *slog.Logger) pipeline.Observer {
	return pipeline.ObserverFunc(func(ctx context.Context, run *model.Run) {
		// The request may already be cancelled; the record is still wanted.
		if err := db.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("failed to save run", "run_id", run.ID, "error", err)
			return
		}
		logger.Debug("run saved to database", "run_id", run.ID)
	})
}

// newFlow creates the upload flow backed by the gdpr-helpers bridge.
func newFlow(cfg *config.Config, logger *slog.Logger, observers ...pipeline.Observer) *pipeline.Flow {
	factory := anonymizer.NewCommandFactory(anonymizer.WithLogger(logger))

	opts := []pipeline.FlowOption{pipeline.WithFlowLogger(logger)}
	for _, o := range observers {
		opts = append(opts, pipeline.WithObserver(o))
	}
	return pipeline.NewFlow(cfg, factory, opts...)
}

// validateConfig wraps configuration errors for display.
func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	return nil
}

// errRunsFailed is returned by anonymize when at least one file failed.
var errRunsFailed = errors.New("one or more files could not be anonymized")
