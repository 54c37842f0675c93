// Package report writes run results for the command line.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown output for sharing and documentation
//
// Writers implement the Writer interface and can be combined with
// MultiWriter. Each writer renders a single run as well as a run history.
package report
