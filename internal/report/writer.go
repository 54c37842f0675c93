package report

import (
	"io"
	"time"

	"github.com/nao1215/csvanon/internal/model"
)

// Writer defines the interface for run output.
type Writer interface {
	// Write outputs one run to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(run *model.Run) (int, error)

	// WriteHistory outputs a list of runs, newest first.
	WriteHistory(runs []*model.Run) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(run *model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteHistory outputs the runs to all configured Writers.
func (m *MultiWriter) WriteHistory(runs []*model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteHistory(runs)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// timeLayout is used for every timestamp in text output.
const timeLayout = "2006-01-02 15:04:05 MST"

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// statusText returns a one-line status for the run.
func statusText(run *model.Run) string {
	switch run.State {
	case model.StateDone:
		return "Complete"
	case model.StateFailed:
		if run.ErrorKind == "" {
			return "Failed"
		}
		return "Failed (" + string(run.ErrorKind) + ")"
	default:
		return "Stopped at " + run.State.String()
	}
}

// outcomeCounts counts runs by outcome, in display order.
func outcomeCounts(runs []*model.Run) (succeeded int, failed map[model.ErrorKind]int) {
	failed = make(map[model.ErrorKind]int)
	for _, r := range runs {
		if r.Succeeded() {
			succeeded++
			continue
		}
		kind := r.ErrorKind
		if kind == "" {
			kind = "unknown"
		}
		failed[kind]++
	}
	return succeeded, failed
}

// errorKinds lists the error kinds in display order.
var errorKinds = []model.ErrorKind{
	model.KindValidation,
	model.KindDecode,
	model.KindIntegration,
	model.KindAnonymization,
	model.KindArtifactMissing,
	"unknown",
}
