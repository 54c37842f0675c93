package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".csvanon"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .csvanon configuration file.
// Every field is optional; unset fields keep the value already in Config.
type File struct {
	Anonymizer AnonymizerFile `yaml:"anonymizer,omitempty"`
	Storage    StorageFile    `yaml:"storage,omitempty"`
	Server     ServerFile     `yaml:"server,omitempty"`
	History    HistoryFile    `yaml:"history,omitempty"`
}

// AnonymizerFile holds the external anonymizer settings.
type AnonymizerFile struct {
	ProjectName      string        `yaml:"projectName,omitempty"`
	RunMode          string        `yaml:"runMode,omitempty"`
	TransformsConfig string        `yaml:"transformsConfig,omitempty"`
	SyntheticsConfig string        `yaml:"syntheticsConfig,omitempty"`
	Endpoint         string        `yaml:"endpoint,omitempty"`
	Python           string        `yaml:"python,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`
}

// StorageFile holds the local directory settings.
type StorageFile struct {
	ArtifactsDir  string `yaml:"artifactsDir,omitempty"`
	TempDir       string `yaml:"tempDir,omitempty"`
	KeepTempFiles *bool  `yaml:"keepTempFiles,omitempty"`
}

// ServerFile holds the web UI settings.
type ServerFile struct {
	Listen        string `yaml:"listen,omitempty"`
	MaxUploadSize int64  `yaml:"maxUploadSize,omitempty"`
	PreviewLength int    `yaml:"previewLength,omitempty"`
}

// HistoryFile holds the run history settings.
type HistoryFile struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	DBDir   string `yaml:"dbDir,omitempty"`
}

// LoadConfigFile loads a configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .csvanon in the current directory
// 3. Look for .csvanon in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Apply copies every field set in the file onto cfg.
func (cf *File) Apply(cfg *Config) {
	a := cf.Anonymizer
	setString(&cfg.ProjectName, a.ProjectName)
	setString(&cfg.RunMode, a.RunMode)
	setString(&cfg.TransformsConfig, a.TransformsConfig)
	setString(&cfg.SyntheticsConfig, a.SyntheticsConfig)
	setString(&cfg.Endpoint, a.Endpoint)
	setString(&cfg.Python, a.Python)
	if a.Timeout != 0 {
		cfg.AnonymizeTimeout = a.Timeout
	}

	s := cf.Storage
	setString(&cfg.ArtifactsDir, s.ArtifactsDir)
	setString(&cfg.TempDir, s.TempDir)
	if s.KeepTempFiles != nil {
		cfg.KeepTempFiles = *s.KeepTempFiles
	}

	srv := cf.Server
	setString(&cfg.ListenAddress, srv.Listen)
	if srv.MaxUploadSize != 0 {
		cfg.MaxUploadSize = srv.MaxUploadSize
	}
	if srv.PreviewLength != 0 {
		cfg.PreviewLength = srv.PreviewLength
	}

	h := cf.History
	if h.Enabled != nil {
		cfg.HistoryEnabled = *h.Enabled
	}
	setString(&cfg.DBDir, h.DBDir)
}

// setString overwrites dst when v is not empty.
func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
