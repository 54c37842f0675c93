package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoProjectName is returned when the project name is empty.
	ErrNoProjectName = errors.New("invalid project name: must not be empty")

	// ErrInvalidRunMode is returned for a run mode other than cloud, local or hybrid.
	ErrInvalidRunMode = errors.New("invalid run mode: must be one of cloud, local, hybrid")

	// ErrInvalidEndpoint is returned when the endpoint is not an absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint: must be an absolute http or https URL")

	// ErrNoArtifactsDir is returned when the artifacts directory is empty.
	ErrNoArtifactsDir = errors.New("invalid artifacts directory: must not be empty")

	// ErrInvalidPreviewLength is returned when the preview length is not positive.
	ErrInvalidPreviewLength = errors.New("invalid preview length: must be positive")

	// ErrInvalidMaxUploadSize is returned when the upload size limit is not positive.
	ErrInvalidMaxUploadSize = errors.New("invalid max upload size: must be positive")

	// ErrInvalidTimeout is returned when the anonymize timeout is negative.
	ErrInvalidTimeout = errors.New("invalid anonymize timeout: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")
)
