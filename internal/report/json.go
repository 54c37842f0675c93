package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/csvanon/internal/model"
)

// JSONWriter outputs runs in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is reported in history output when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the csvanon version in history output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run record. The field names match the JSON API of
// the web server.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	return w.writeJSON(run)
}

// History is the JSON document written by WriteHistory.
type History struct {
	// Version is the csvanon version that wrote the document.
	Version string `json:"version,omitempty"`

	// Succeeded is the number of successful runs in Runs.
	Succeeded int `json:"succeeded"`

	// Failed is the number of failed runs in Runs.
	Failed int `json:"failed"`

	// Runs lists the runs, newest first.
	Runs []*model.Run `json:"runs"`
}

// WriteHistory outputs the runs wrapped in a History document.
func (w *JSONWriter) WriteHistory(runs []*model.Run) (int, error) {
	if runs == nil {
		runs = []*model.Run{}
	}
	succeeded, _ := outcomeCounts(runs)
	return w.writeJSON(History{
		Version:   w.version,
		Succeeded: succeeded,
		Failed:    len(runs) - succeeded,
		Runs:      runs,
	})
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
