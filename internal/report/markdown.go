package report

import (
	"io"
	"strconv"

	"github.com/nao1215/csvanon/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs runs in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs one run in Markdown format.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Anonymization of " + run.FileName)
	md.PlainText("")

	rows := [][]string{
		{"File", "`" + run.FileName + "`"},
		{"Size", strconv.FormatInt(run.Size, 10) + " bytes"},
		{"Started", run.StartedAt.Format(timeLayout)},
		{"Status", w.statusText(run)},
		{"Run ID", "`" + run.ID + "`"},
	}
	if !run.FinishedAt.IsZero() {
		rows = append(rows, []string{"Duration", formatDuration(run.Duration())})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if run.Preview != "" {
		md.H2("Sample data")
		md.PlainText("")
		md.CodeBlocks(markdown.SyntaxHighlight("csv"), run.Preview)
		md.PlainText("")
	}

	w.writeOutcome(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteHistory outputs the runs as a Markdown table with an outcome chart.
func (w *MarkdownWriter) WriteHistory(runs []*model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Run History")
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No runs recorded.")
		md.PlainText("")
		w.writeFooter(md)
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.StartedAt.Format(timeLayout),
			truncateString(r.FileName, 40),
			w.statusText(r),
			truncateString(r.ErrorMessage, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Started", "File", "Status", "Message"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, runs)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// statusText returns the status with an indicator.
func (w *MarkdownWriter) statusText(run *model.Run) string {
	switch run.State {
	case model.StateDone:
		return "✅ " + statusText(run)
	case model.StateFailed:
		return "❌ " + statusText(run)
	default:
		return "⚠️ " + statusText(run)
	}
}

// writeOutcome writes the artifacts or the error of the run.
func (w *MarkdownWriter) writeOutcome(md *markdown.Markdown, run *model.Run) {
	switch {
	case run.Succeeded():
		md.Tip("Anonymization process complete!")
		md.PlainText("")
		md.H2("Artifacts")
		md.PlainText("")
		md.BulletList(
			"Synthetic data: ["+run.Artifacts.SyntheticDataName()+"]("+run.Artifacts.SyntheticData+")",
			"Anonymization report: ["+run.Artifacts.ReportName()+"]("+run.Artifacts.Report+")",
		)
		md.PlainText("")
	case run.State == model.StateFailed && run.Retryable:
		md.Warningf("%s (the failure looks transient)", run.ErrorMessage)
		md.PlainText("")
	case run.State == model.StateFailed:
		md.Cautionf("%s", run.ErrorMessage)
		md.PlainText("")
	}
}

// writePieChart writes a mermaid pie chart of run outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, runs []*model.Run) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Run Outcomes"),
		piechart.WithShowData(true),
	)

	succeeded, failed := outcomeCounts(runs)
	if succeeded > 0 {
		chart.LabelAndIntValue("succeeded", uint64(succeeded))
	}
	for _, kind := range errorKinds {
		if n := failed[kind]; n > 0 {
			chart.LabelAndIntValue(string(kind), uint64(n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by [csvanon](https://github.com/nao1215/csvanon)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
