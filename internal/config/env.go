package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey           = "GRETEL_API_KEY"
	EnvProjectName      = "CSVANON_PROJECT_NAME"
	EnvRunMode          = "CSVANON_RUN_MODE"
	EnvTransformsConfig = "CSVANON_TRANSFORMS_CONFIG"
	EnvSyntheticsConfig = "CSVANON_SYNTHETICS_CONFIG"
	EnvEndpoint         = "CSVANON_ENDPOINT"
	EnvArtifactsDir     = "CSVANON_ARTIFACTS_DIR"
	EnvTempDir          = "CSVANON_TEMP_DIR"
	EnvPython           = "CSVANON_PYTHON"
	EnvListen           = "CSVANON_LISTEN"
	EnvMaxUploadSize    = "CSVANON_MAX_UPLOAD_SIZE"
	EnvTimeout          = "CSVANON_TIMEOUT"
)

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables that are already set are not overwritten. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with the environment variables that are set.
// lookup is usually os.LookupEnv; tests pass a map-backed function.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	strs := []struct {
		key string
		dst *string
	}{
		{EnvAPIKey, &cfg.APIKey},
		{EnvProjectName, &cfg.ProjectName},
		{EnvRunMode, &cfg.RunMode},
		{EnvTransformsConfig, &cfg.TransformsConfig},
		{EnvSyntheticsConfig, &cfg.SyntheticsConfig},
		{EnvEndpoint, &cfg.Endpoint},
		{EnvArtifactsDir, &cfg.ArtifactsDir},
		{EnvTempDir, &cfg.TempDir},
		{EnvPython, &cfg.Python},
		{EnvListen, &cfg.ListenAddress},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookup(EnvMaxUploadSize); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxUploadSize, v, err)
		}
		cfg.MaxUploadSize = n
	}

	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTimeout, v, err)
		}
		cfg.AnonymizeTimeout = d
	}

	return nil
}
