package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/csvanon/internal/config"
	"github.com/nao1215/csvanon/internal/metrics"
	"github.com/nao1215/csvanon/internal/pipeline"
	"github.com/nao1215/csvanon/internal/web"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the anonymization web UI",
		Long: `Serve starts the web UI for anonymizing CSV files.

The page accepts one CSV upload, shows the first bytes of the file as sample
data and runs gdpr-helpers on it. When the synthetic data and the anonymization
report have been written, both are offered for download.

Endpoints:
  GET  /                   upload form
  POST /upload             run an upload and render the result page
  POST /api/v1/anonymize   run an upload and return the run as JSON
  GET  /artifacts/<name>   download an artifact (?inline=1 to view it)
  GET  /runs, /runs/<id>   run history (unless --no-history)
  GET  /metrics            Prometheus metrics (unless --no-metrics)
  GET  /healthz            liveness

Examples:
  # Serve on the default address (127.0.0.1:8501)
  csvanon serve

  # Serve on all interfaces, keeping uploaded files for debugging
  csvanon serve --listen :8080 --keep-temp`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", config.DefaultListenAddress,
		"Address to listen on")
	cmd.Flags().StringP("artifacts-dir", "a", config.DefaultArtifactsDir,
		"Directory gdpr-helpers writes artifacts into")
	cmd.Flags().Int64("max-upload-size", config.DefaultMaxUploadSize,
		"Maximum upload size in bytes")
	cmd.Flags().Duration("timeout", config.DefaultAnonymizeTimeout,
		"Timeout of one anonymization (0 disables it)")
	cmd.Flags().Bool("keep-temp", false,
		"Keep uploaded files in the temporary directory after each run")
	cmd.Flags().Bool("no-history", false,
		"Do not record runs in the history database")
	cmd.Flags().Bool("no-metrics", false,
		"Do not expose Prometheus metrics")

	return cmd
}

// serveOptions are the serve flags that are not part of Config.
type serveOptions struct {
	noMetrics bool
}

// buildServeConfig applies the serve flags that were set on top of the
// loaded configuration.
func buildServeConfig(cmd *cobra.Command) (*config.Config, serveOptions, error) {
	var opts serveOptions

	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, opts, err
	}

	if flagChanged(cmd, "listen") {
		if cfg.ListenAddress, err = cmd.Flags().GetString("listen"); err != nil {
			return nil, opts, err
		}
	}
	if flagChanged(cmd, "artifacts-dir") {
		if cfg.ArtifactsDir, err = cmd.Flags().GetString("artifacts-dir"); err != nil {
			return nil, opts, err
		}
	}
	if flagChanged(cmd, "max-upload-size") {
		if cfg.MaxUploadSize, err = cmd.Flags().GetInt64("max-upload-size"); err != nil {
			return nil, opts, err
		}
	}
	if flagChanged(cmd, "timeout") {
		if cfg.AnonymizeTimeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
			return nil, opts, err
		}
	}
	if flagChanged(cmd, "keep-temp") {
		if cfg.KeepTempFiles, err = cmd.Flags().GetBool("keep-temp"); err != nil {
			return nil, opts, err
		}
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, opts, err
	}
	if noHistory {
		cfg.HistoryEnabled = false
	}

	if opts.noMetrics, err = cmd.Flags().GetBool("no-metrics"); err != nil {
		return nil, opts, err
	}

	return cfg, opts, nil
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, opts, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	logger := setupLogger(cfg, false)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg, opts, logger)
}

// runServe wires the flow, the history and the metrics into the web
// server and serves until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, opts serveOptions, logger *slog.Logger) error {
	if cfg.APIKey == "" {
		logger.Warn("GRETEL_API_KEY is not set; cloud runs will fail")
	}

	var (
		observers  []pipeline.Observer
		serverOpts = []web.Option{
			web.WithLogger(logger),
			web.WithVersion(getVersion()),
		}
	)

	if !opts.noMetrics {
		collector := metrics.NewCollector(logger, metrics.DefaultNamespace)
		observers = append(observers, collector)
		serverOpts = append(serverOpts, web.WithMetrics(collector))
	}

	db, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		observers = append(observers, historyObserver(db, logger))
		serverOpts = append(serverOpts, web.WithHistory(db))
	}

	if err := os.MkdirAll(cfg.ArtifactsDir, 0750); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	server, err := web.NewServer(cfg, newFlow(cfg, logger, observers...), serverOpts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Serving csvanon on http://%s\n", cfg.ListenAddress)
	return server.Run(ctx)
}
