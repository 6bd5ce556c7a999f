// Package config loads docpipe configuration from TOML files, applying
// defaults, path expansion and environment overrides before validation.
package config
