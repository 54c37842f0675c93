// Package main provides the entry point for the csvanon CLI.
//
// csvanon anonymizes CSV files with the gdpr-helpers library. It serves a
// small web UI that accepts an upload, previews it and offers the synthetic
// data and the anonymization report for download.
//
// Usage:
//
//	csvanon serve
//	csvanon anonymize <file.csv>...
//
// See --help for all available options.
package main

// main is the entry point for csvanon.
func main() {
	Execute()
}
