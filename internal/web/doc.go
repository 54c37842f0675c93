// Package web serves the upload UI and JSON API of csvanon with gin.
//
// The HTML pages mirror a single-page flow: pick a CSV file, see a sample
// of it, wait for the anonymizer, and download the synthetic data and the
// anonymization report. POST /api/v1/anonymize runs the same flow for
// scripts. Artifacts are only ever served from the configured artifacts
// directory.
package web
