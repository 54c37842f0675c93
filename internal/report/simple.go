package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/csvanon/internal/model"
)

// SimpleWriter outputs human-readable text for terminal display.
type SimpleWriter struct {
	baseWriter

	// showPreview includes the sample data of the upload.
	showPreview bool

	// verbose adds the run ID, the performed steps and the error cause.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithPreview configures the writer to show the sample data.
func WithPreview(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showPreview = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:  newBaseWriter(output),
		showPreview: true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs one run in human-readable format.
func (w *SimpleWriter) Write(run *model.Run) (int, error) {
	var sb strings.Builder

	w.writeRule(&sb, "=")
	fmt.Fprintf(&sb, "You uploaded: %s\n", run.FileName)
	fmt.Fprintf(&sb, "Size:         %d bytes\n", run.Size)
	fmt.Fprintf(&sb, "Status:       %s\n", statusText(run))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&sb, "Duration:     %s\n", formatDuration(run.Duration()))
	}
	if w.verbose {
		fmt.Fprintf(&sb, "Run ID:       %s\n", run.ID)
		fmt.Fprintf(&sb, "Steps:        %s\n", strings.Join(run.PerformedSteps, " -> "))
	}
	sb.WriteString("\n")

	if w.showPreview && run.Preview != "" {
		w.writeSection(&sb, "SAMPLE DATA")
		for line := range strings.Lines(run.Preview) {
			sb.WriteString("  ")
			sb.WriteString(strings.TrimRight(line, "\r\n"))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	switch {
	case run.Succeeded():
		w.writeSection(&sb, "ANONYMIZATION PROCESS COMPLETE")
		fmt.Fprintf(&sb, "  Synthetic data:       %s\n", run.Artifacts.SyntheticData)
		fmt.Fprintf(&sb, "  Anonymization report: %s\n", run.Artifacts.Report)
		sb.WriteString("\n")
	case run.State == model.StateFailed:
		w.writeSection(&sb, "ERROR")
		fmt.Fprintf(&sb, "  %s\n", run.ErrorMessage)
		if w.verbose && run.Err != nil {
			fmt.Fprintf(&sb, "  Cause: %v\n", run.Err)
		}
		if run.Retryable {
			sb.WriteString("  The failure looks transient; the upload may succeed if retried.\n")
		}
		sb.WriteString("\n")
	}

	return w.output.Write([]byte(sb.String()))
}

// WriteHistory outputs a table of runs in human-readable format.
func (w *SimpleWriter) WriteHistory(runs []*model.Run) (int, error) {
	var sb strings.Builder

	w.writeRule(&sb, "=")
	sb.WriteString("                              RUN HISTORY\n")
	w.writeRule(&sb, "=")
	sb.WriteString("\n")

	if len(runs) == 0 {
		sb.WriteString("  No runs recorded\n")
		return w.output.Write([]byte(sb.String()))
	}

	fmt.Fprintf(&sb, "%-23s  %-30s  %s\n", "STARTED", "FILE", "STATUS")
	for _, r := range runs {
		fmt.Fprintf(&sb, "%-23s  %-30s  %s\n",
			r.StartedAt.Format(timeLayout),
			truncateString(r.FileName, 30),
			statusText(r),
		)
		if w.verbose {
			fmt.Fprintf(&sb, "  id=%s", r.ID)
			if r.ErrorMessage != "" {
				fmt.Fprintf(&sb, " error=%q", r.ErrorMessage)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")

	succeeded, failed := outcomeCounts(runs)
	fmt.Fprintf(&sb, "  SUCCEEDED: %d\n", succeeded)
	for _, kind := range errorKinds {
		if n := failed[kind]; n > 0 {
			fmt.Fprintf(&sb, "  FAILED (%s): %d\n", kind, n)
		}
	}

	return w.output.Write([]byte(sb.String()))
}

// writeRule writes a horizontal rule made of c.
func (w *SimpleWriter) writeRule(sb *strings.Builder, c string) {
	sb.WriteString(strings.Repeat(c, 70))
	sb.WriteString("\n")
}

// writeSection writes a section title framed by rules.
func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	w.writeRule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	w.writeRule(sb, "-")
}
