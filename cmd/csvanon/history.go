package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/nao1215/csvanon/internal/config"
	"github.com/nao1215/csvanon/internal/database"
	"github.com/nao1215/csvanon/internal/model"
	"github.com/nao1215/csvanon/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded anonymization runs",
		Long: `History lists the runs recorded by serve and anonymize, newest first.

Sample data is never stored; each record holds the file name, size, outcome,
error message, performed steps and artifact paths.

Examples:
  # Show the last 20 runs
  csvanon history

  # Show outcome counts as JSON
  csvanon history --stats --json

  # Delete runs older than 30 days
  csvanon history --prune 720h`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", config.DefaultHistoryLimit,
		"Maximum number of runs to show (0 shows all)")
	cmd.Flags().Bool("stats", false,
		"Show outcome counts instead of runs")
	cmd.Flags().Duration("prune", 0,
		"Delete runs older than this duration before listing")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// historyOptions are the flags of the history command.
type historyOptions struct {
	limit    int
	stats    bool
	prune    time.Duration
	json     bool
	markdown bool
	verbose  bool
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	var opts historyOptions
	if opts.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return err
	}
	if opts.stats, err = cmd.Flags().GetBool("stats"); err != nil {
		return err
	}
	if opts.prune, err = cmd.Flags().GetDuration("prune"); err != nil {
		return err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if opts.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	opts.verbose = cfg.Verbose

	logger := setupLogger(cfg, true)

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runHistory(cmd.Context(), db, opts, cmd.OutOrStdout(), logger)
}

// runHistory prunes, then prints the runs or their statistics.
func runHistory(ctx context.Context, db *database.HistoryDB, opts historyOptions, out io.Writer, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.prune > 0 {
		n, err := db.DeleteRunsBefore(ctx, time.Now().Add(-opts.prune))
		if err != nil {
			return err
		}
		logger.Info("pruned run history", "deleted", n)
	}

	if opts.stats {
		stats, err := db.Stats(ctx)
		if err != nil {
			return err
		}
		return writeStats(out, stats, opts.json)
	}

	runs, err := db.ListRuns(ctx, opts.limit)
	if err != nil {
		return err
	}

	var w report.Writer
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(opts.verbose))
	}
	_, err = w.WriteHistory(runs)
	return err
}

// writeStats prints outcome counts as text or JSON.
func writeStats(out io.Writer, stats database.RunStats, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(stats)
	}

	fmt.Fprintf(out, "Total:     %d\n", stats.Total)
	fmt.Fprintf(out, "Succeeded: %d\n", stats.Succeeded)

	kinds := make([]model.ErrorKind, 0, len(stats.Failed))
	for k := range stats.Failed {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "Failed (%s): %d\n", k, stats.Failed[k])
	}
	return nil
}
