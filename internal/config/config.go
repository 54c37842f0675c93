package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// The anonymizer values match the settings the gdpr-helpers library is
// usually run with against the Gretel cloud.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "csvanon"

	// DefaultProjectName is the Gretel project that runs are grouped under.
	DefaultProjectName = "project"

	// DefaultRunMode runs the transforms and synthetic models in the Gretel cloud.
	DefaultRunMode = "cloud"

	// DefaultTransformsConfig is the gdpr-helpers transform rules file.
	DefaultTransformsConfig = "gdpr-helpers/src/config/transforms_config.yaml"

	// DefaultSyntheticsConfig is the gdpr-helpers synthetic model settings file.
	DefaultSyntheticsConfig = "gdpr-helpers/src/config/synthetics_config.yaml"

	// DefaultEndpoint is the Gretel API endpoint.
	DefaultEndpoint = "https://api.gretel.cloud"

	// DefaultArtifactsDir is where gdpr-helpers writes its output files.
	DefaultArtifactsDir = "artifacts"

	// DefaultPreviewLength is the number of bytes shown as sample data.
	DefaultPreviewLength = 100

	// DefaultMaxUploadSize limits the size of one upload.
	DefaultMaxUploadSize = 32 * 1024 * 1024 // 32MB

	// DefaultAnonymizeTimeout bounds one anonymize call. Training a synthetic
	// model in the cloud routinely takes several minutes.
	DefaultAnonymizeTimeout = 30 * time.Minute

	// DefaultListenAddress is the address the web UI listens on.
	DefaultListenAddress = "127.0.0.1:8501"

	// DefaultPython is the interpreter used to drive gdpr-helpers.
	DefaultPython = "python3"

	// DefaultBatchSize is the number of files anonymized concurrently by the CLI.
	DefaultBatchSize = 4

	// DefaultHistoryLimit is the number of runs listed by default.
	DefaultHistoryLimit = 20
)

// Supported run modes of the external anonymizer.
var runModes = map[string]bool{
	"cloud":  true,
	"local":  true,
	"hybrid": true,
}

// Config holds all configuration options for csvanon.
// It is populated from defaults, the configuration file, the environment
// and CLI flags, and then passed explicitly to every component.
type Config struct {
	// ProjectName is the Gretel project name passed to the anonymizer.
	ProjectName string

	// RunMode is "cloud", "local" or "hybrid".
	RunMode string

	// TransformsConfig is the path of the transform rules YAML file.
	TransformsConfig string

	// SyntheticsConfig is the path of the synthetic model YAML file.
	SyntheticsConfig string

	// Endpoint is the Gretel API endpoint URL.
	Endpoint string

	// APIKey is the Gretel API key. It is never written to logs.
	APIKey string

	// ArtifactsDir is the directory the anonymizer writes artifacts into.
	ArtifactsDir string

	// TempDir is the parent of the run-scoped directories that hold
	// uploaded datasets. Defaults to the OS temporary directory.
	TempDir string

	// KeepTempFiles disables removal of uploaded datasets after a run.
	KeepTempFiles bool

	// PreviewLength is the number of bytes decoded for the preview.
	PreviewLength int

	// MaxUploadSize is the maximum accepted upload size in bytes.
	MaxUploadSize int64

	// AnonymizeTimeout bounds each anonymize call. Zero disables the limit.
	AnonymizeTimeout time.Duration

	// Python is the interpreter used to run the gdpr-helpers bridge.
	Python string

	// ListenAddress is the "host:port" the web server binds to.
	ListenAddress string

	// BatchSize is the number of files anonymized concurrently by the CLI.
	BatchSize int

	// HistoryEnabled stores finished runs in the SQLite history database.
	HistoryEnabled bool

	// DBDir is the directory that contains the history database.
	DBDir string

	// Verbose enables debug logging.
	Verbose bool

	// LogFormat is "text" or "json".
	LogFormat string

	// ConfigFilePath is the configuration file that was loaded, if any.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ProjectName:      DefaultProjectName,
		RunMode:          DefaultRunMode,
		TransformsConfig: DefaultTransformsConfig,
		SyntheticsConfig: DefaultSyntheticsConfig,
		Endpoint:         DefaultEndpoint,
		ArtifactsDir:     DefaultArtifactsDir,
		TempDir:          os.TempDir(),
		PreviewLength:    DefaultPreviewLength,
		MaxUploadSize:    DefaultMaxUploadSize,
		AnonymizeTimeout: DefaultAnonymizeTimeout,
		Python:           DefaultPython,
		ListenAddress:    DefaultListenAddress,
		BatchSize:        DefaultBatchSize,
		HistoryEnabled:   true,
		DBDir:            XDGDataDir(),
		LogFormat:        "text",
	}
}

// XDGDataDir returns the XDG data directory for csvanon.
// On Linux: ~/.local/share/csvanon
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for csvanon.
// On Linux: ~/.config/csvanon
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.ProjectName == "" {
		return ErrNoProjectName
	}

	if !runModes[c.RunMode] {
		return ErrInvalidRunMode
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidEndpoint
	}

	if c.ArtifactsDir == "" {
		return ErrNoArtifactsDir
	}

	if c.PreviewLength <= 0 {
		return ErrInvalidPreviewLength
	}

	if c.MaxUploadSize <= 0 {
		return ErrInvalidMaxUploadSize
	}

	if c.AnonymizeTimeout < 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}
