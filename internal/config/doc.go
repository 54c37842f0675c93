// Package config provides configuration structures and utilities for csvanon.
// It defines the settings of the external anonymizer client, the local
// directories used by the upload flow, and the web server options, and
// loads them from defaults, a YAML file, environment variables and flags.
package config
