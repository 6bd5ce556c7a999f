package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Storage contains the location and retention of local state.
type Storage struct {
	DataDir            string `toml:"data_dir"`
	RecordTTLSeconds   int    `toml:"record_ttl_seconds"`   // 0 keeps records forever
	ArtifactTTLSeconds int    `toml:"artifact_ttl_seconds"` // 0 keeps artifacts forever
	SyncWrites         bool   `toml:"sync_writes"`
}

// Pipeline contains orchestration timing and concurrency.
type Pipeline struct {
	LeaseSeconds        int `toml:"lease_seconds"`
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"` // 0 disables the bound
	LockWaitAttempts    int `toml:"lock_wait_attempts"`    // 0 reports in-progress immediately
	LockWaitDelayMS     int `toml:"lock_wait_delay_ms"`
	PoolSize            int `toml:"pool_size"` // 0 sizes the pool from the CPU count
}

// Chunking contains text splitter settings.
type Chunking struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

// Embedding contains the OpenAI-compatible embedding service connection.
type Embedding struct {
	Host      string `toml:"host"`
	Model     string `toml:"model"`
	Token     string `toml:"token"`
	BatchSize int    `toml:"batch_size"`
}

// Archive contains the optional S3-compatible raw document archive.
type Archive struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for docpipe.
//
// Configuration sections by subsystem:
//   - Storage: data directory and record/artifact retention
//   - Pipeline: lease, stage timeout, lock waiting and worker pool
//   - Chunking: chunk size and overlap
//   - Embedding: embedding service connection
//   - Archive: raw upload archive in an S3-compatible bucket
//   - Logging: log level and format
type Config struct {
	Storage   Storage   `toml:"storage"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Chunking  Chunking  `toml:"chunking"`
	Embedding Embedding `toml:"embedding"`
	Archive   Archive   `toml:"archive"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, normalizes and validates a configuration file.
// An empty path searches the default location and then ./docpipe.toml.
// A missing file yields the defaults. Load also reports the resolved path
// and whether a file was read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(defaultProjectConfig)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the data directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %q: %w", c.Storage.DataDir, err)
	}
	return nil
}

// RecordTTL returns the record retention as a duration.
func (c *Config) RecordTTL() time.Duration {
	return time.Duration(c.Storage.RecordTTLSeconds) * time.Second
}

// ArtifactTTL returns the artifact retention as a duration.
func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.Storage.ArtifactTTLSeconds) * time.Second
}

// Lease returns the processing lease as a duration.
func (c *Config) Lease() time.Duration {
	return time.Duration(c.Pipeline.LeaseSeconds) * time.Second
}

// StageTimeout returns the stage timeout as a duration.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second
}

// LockWaitDelay returns the initial lock polling delay as a duration.
func (c *Config) LockWaitDelay() time.Duration {
	return time.Duration(c.Pipeline.LockWaitDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
