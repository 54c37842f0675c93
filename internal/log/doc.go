// Package log provides slog based logging with automatic masking of
// secrets and raw dataset content.
//
// csvanon handles two kinds of data that must never reach a log file:
// the Gretel API key used by the external anonymizer, and the rows of the
// uploaded dataset, which are by definition the personal data the user
// wants anonymized. SecureHandler wraps any slog.Handler and replaces
// such attribute values with MaskValue before they are written.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, log.Options{Verbose: true})
//	logger.Info("anonymizer configured",
//	    "api_key", cfg.APIKey,   // written as ***REDACTED***
//	    "preview", run.Preview,  // written as ***REDACTED***
//	    "run_id", run.ID,
//	)
package log
