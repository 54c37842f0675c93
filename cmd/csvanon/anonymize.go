package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/csvanon/internal/config"
	"github.com/nao1215/csvanon/internal/model"
	"github.com/nao1215/csvanon/internal/pipeline"
	"github.com/nao1215/csvanon/internal/report"
	"github.com/spf13/cobra"
)

// NewAnonymizeCmd creates the anonymize command.
func NewAnonymizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anonymize <file.csv>...",
		Short: "Anonymize CSV files from the command line",
		Long: `Anonymize runs the same flow as the web UI for local CSV files.

Each file is validated, previewed and anonymized with gdpr-helpers. The
synthetic data and the anonymization report are written into the artifacts
directory. Several files are processed concurrently (see --batch).

Examples:
  # Anonymize one file
  csvanon anonymize customers.csv

  # Anonymize several files, two at a time
  csvanon anonymize --batch 2 customers.csv orders.csv

  # Write a Markdown summary
  csvanon anonymize --markdown -o reports/run.md customers.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnonymizeCmd,
	}

	cmd.Flags().StringP("artifacts-dir", "a", config.DefaultArtifactsDir,
		"Directory gdpr-helpers writes artifacts into")
	cmd.Flags().Duration("timeout", config.DefaultAnonymizeTimeout,
		"Timeout of one anonymization (0 disables it)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of files anonymized concurrently")
	cmd.Flags().Bool("keep-temp", false,
		"Keep the temporary copies of the files after each run")
	cmd.Flags().Bool("no-history", false,
		"Do not record runs in the history database")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the summary to the specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-preview", false,
		"Do not print the sample data of each file")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// outputOptions selects the report format and destination.
type outputOptions struct {
	json      bool
	markdown  bool
	file      string
	noPreview bool
	verbose   bool

	// stdout receives the report when file is empty.
	stdout io.Writer
}

// buildAnonymizeConfig applies the anonymize flags on top of the loaded
// configuration.
func buildAnonymizeConfig(cmd *cobra.Command) (*config.Config, outputOptions, error) {
	var out outputOptions

	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, out, err
	}

	if flagChanged(cmd, "artifacts-dir") {
		if cfg.ArtifactsDir, err = cmd.Flags().GetString("artifacts-dir"); err != nil {
			return nil, out, err
		}
	}
	if flagChanged(cmd, "timeout") {
		if cfg.AnonymizeTimeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
			return nil, out, err
		}
	}
	if flagChanged(cmd, "batch") {
		if cfg.BatchSize, err = cmd.Flags().GetInt("batch"); err != nil {
			return nil, out, err
		}
	}
	if flagChanged(cmd, "keep-temp") {
		if cfg.KeepTempFiles, err = cmd.Flags().GetBool("keep-temp"); err != nil {
			return nil, out, err
		}
	}
	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, out, err
	}
	if noHistory {
		cfg.HistoryEnabled = false
	}

	if out.json, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, out, err
	}
	if out.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, out, err
	}
	if out.file, err = cmd.Flags().GetString("output"); err != nil {
		return nil, out, err
	}
	if out.noPreview, err = cmd.Flags().GetBool("no-preview"); err != nil {
		return nil, out, err
	}
	out.verbose = cfg.Verbose
	out.stdout = cmd.OutOrStdout()

	return cfg, out, nil
}

// runAnonymizeCmd executes the anonymize command.
func runAnonymizeCmd(cmd *cobra.Command, args []string) error {
	cfg, out, err := buildAnonymizeConfig(cmd)
	if err != nil {
		return err
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	logger := setupLogger(cfg, true)
	slog.SetDefault(logger)

	uploads, err := readUploads(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var observers []pipeline.Observer
	db, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		observers = append(observers, historyObserver(db, logger))
	}

	if err := os.MkdirAll(cfg.ArtifactsDir, 0750); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	return runAnonymize(ctx, newFlow(cfg, logger, observers...), uploads, cfg.BatchSize, out, cmd.ErrOrStderr(), logger)
}

// readUploads reads every file into an UploadedFile named by its base name.
func readUploads(paths []string) ([]model.UploadedFile, error) {
	uploads := make([]model.UploadedFile, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p) //nolint:gosec // User-provided input path is intentional
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		uploads = append(uploads, model.NewUploadedFile(filepath.Base(p), content))
	}
	return uploads, nil
}

// runAnonymize runs the uploads through executor and writes one report per
// run in input order. Progress lines go to progress.
func runAnonymize(
	ctx context.Context,
	executor pipeline.Executor,
	uploads []model.UploadedFile,
	concurrency int,
	out outputOptions,
	progress io.Writer,
	logger *slog.Logger,
) error {
	bp := pipeline.NewBatchProcessor(executor,
		pipeline.WithConcurrency(concurrency),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	runs := make([]*model.Run, len(uploads))
	var (
		mu   sync.Mutex
		done int
	)
	batchErr := bp.ProcessBatchWithCallback(ctx, uploads, func(run *model.Run, index int) {
		mu.Lock()
		defer mu.Unlock()

		runs[index] = run
		done++
		status := "done"
		if !run.Succeeded() {
			status = "failed"
		}
		fmt.Fprintf(progress, "[%d/%d] %s: %s\n", done, len(uploads), run.FileName, status)
	})
	fmt.Fprintf(progress, "Completed in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	if err := writeRuns(out, runs); err != nil {
		return err
	}

	if batchErr != nil {
		return batchErr
	}
	for _, run := range runs {
		if run == nil || !run.Succeeded() {
			return errRunsFailed
		}
	}
	return nil
}

// writeRuns writes the finished runs in the requested format.
func writeRuns(out outputOptions, runs []*model.Run) (err error) {
	output := out.stdout
	if output == nil {
		output = os.Stdout
	}
	if out.file != "" {
		f, ferr := createOutputFile(out.file)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output file: %w", cerr)
			}
		}()
		output = f
	}

	w := newReportWriter(output, out)
	for _, run := range runs {
		if run == nil {
			continue
		}
		if _, err := w.Write(run); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

// newReportWriter returns the writer for the requested format.
func newReportWriter(output io.Writer, out outputOptions) report.Writer {
	switch {
	case out.json:
		return report.NewJSONWriter(output, report.WithVersion(getVersion()))
	case out.markdown:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output,
			report.WithPreview(!out.noPreview),
			report.WithVerbose(out.verbose),
		)
	}
}

// createOutputFile creates or truncates path with owner-only permissions,
// creating parent directories as needed. Reports contain sample data.
func createOutputFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
