package anonymizer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/nao1215/csvanon/internal/config"
	"gopkg.in/yaml.v3"
)

// Errors returned while building a client. The flow reports all of them
// to the user as an integration problem.
var (
	// ErrLibraryUnavailable is returned when the external library cannot be loaded.
	ErrLibraryUnavailable = errors.New("anonymizer library unavailable")

	// ErrInvalidSettings is returned when Settings.Validate fails.
	ErrInvalidSettings = errors.New("invalid anonymizer settings")
)

// Dataset identifies the file handed to the anonymizer.
type Dataset struct {
	// Path is the dataset file on local storage.
	Path string

	// Name is the stem the artifacts must be named after. It can differ
	// from the stem of Path because uploads are stored as "temp_<name>".
	Name string
}

// Result is the outcome of one anonymize call.
type Result struct {
	// Succeeded reports that the library finished without error.
	Succeeded bool

	// Message is the failure message of the library, passed through verbatim.
	Message string

	// Retryable reports that the failure looks transient (timeout,
	// connection problem). Callers decide whether to retry.
	Retryable bool
}

// Success returns a successful Result.
func Success() Result {
	return Result{Succeeded: true}
}

// Failure returns a failed Result with the given message.
func Failure(message string, retryable bool) Result {
	return Result{Message: message, Retryable: retryable}
}

// Err converts a failed Result into an error. It returns nil on success.
func (r Result) Err() error {
	if r.Succeeded {
		return nil
	}
	if r.Message == "" {
		return errors.New("anonymizer reported failure without a message")
	}
	return errors.New(r.Message)
}

// Client is a configured handle to the external anonymizer.
type Client interface {
	// Anonymize runs the anonymization of the dataset and blocks until
	// the artifacts are written or the call fails. Cancelling ctx aborts
	// the call and yields a retryable failure.
	Anonymize(ctx context.Context, dataset Dataset) Result
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, dataset Dataset) Result

// Anonymize calls f.
func (f ClientFunc) Anonymize(ctx context.Context, dataset Dataset) Result {
	return f(ctx, dataset)
}

// Factory builds a Client from Settings. A non-nil error means the
// external library is not usable in this environment.
type Factory func(ctx context.Context, settings Settings) (Client, error)

// Settings is the configuration a Client is bound to.
type Settings struct {
	// ProjectName is the Gretel project name.
	ProjectName string

	// RunMode is "cloud", "local" or "hybrid".
	RunMode string

	// TransformsConfig is the transform rules YAML file.
	TransformsConfig string

	// SyntheticsConfig is the synthetic model YAML file.
	SyntheticsConfig string

	// Endpoint is the Gretel API URL.
	Endpoint string

	// APIKey is the Gretel API key. Empty means the library falls back to
	// its own credential lookup.
	APIKey string

	// ArtifactsDir is where artifacts must end up.
	ArtifactsDir string

	// Python is the interpreter used by CommandClient.
	Python string
}

// NewSettings extracts the anonymizer settings from cfg.
func NewSettings(cfg *config.Config) Settings {
	return Settings{
		ProjectName:      cfg.ProjectName,
		RunMode:          cfg.RunMode,
		TransformsConfig: cfg.TransformsConfig,
		SyntheticsConfig: cfg.SyntheticsConfig,
		Endpoint:         cfg.Endpoint,
		APIKey:           cfg.APIKey,
		ArtifactsDir:     cfg.ArtifactsDir,
		Python:           cfg.Python,
	}
}

// Validate checks that the settings can be handed to the library: the
// required fields are set, the endpoint is a URL, and both configuration
// files exist and are valid YAML documents.
func (s Settings) Validate() error {
	if s.ProjectName == "" {
		return fmt.Errorf("%w: project name is empty", ErrInvalidSettings)
	}
	if s.RunMode == "" {
		return fmt.Errorf("%w: run mode is empty", ErrInvalidSettings)
	}
	if u, err := url.Parse(s.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q is not a URL", ErrInvalidSettings, s.Endpoint)
	}
	if s.ArtifactsDir == "" {
		return fmt.Errorf("%w: artifacts directory is empty", ErrInvalidSettings)
	}
	for _, path := range []string{s.TransformsConfig, s.SyntheticsConfig} {
		if err := checkYAMLFile(path); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
	}
	return nil
}

// checkYAMLFile verifies that path holds a YAML mapping.
func checkYAMLFile(path string) error {
	if path == "" {
		return errors.New("configuration file path is empty")
	}
	data, err := os.ReadFile(path) //nolint:gosec // configured path
	if err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}
	if len(doc) == 0 {
		return fmt.Errorf("configuration file %s is empty", path)
	}
	return nil
}
