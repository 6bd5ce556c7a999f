package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir must be set")
	}
	if c.Storage.RecordTTLSeconds < 0 {
		return errors.New("storage.record_ttl_seconds must not be negative")
	}
	if c.Storage.ArtifactTTLSeconds < 0 {
		return errors.New("storage.artifact_ttl_seconds must not be negative")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.LeaseSeconds <= 0 {
		return errors.New("pipeline.lease_seconds must be positive")
	}
	if p.StageTimeoutSeconds < 0 {
		return errors.New("pipeline.stage_timeout_seconds must not be negative")
	}
	if p.StageTimeoutSeconds > 0 && p.StageTimeoutSeconds >= p.LeaseSeconds {
		return fmt.Errorf("pipeline.lease_seconds (%d) must exceed pipeline.stage_timeout_seconds (%d)",
			p.LeaseSeconds, p.StageTimeoutSeconds)
	}
	if p.LockWaitAttempts < 0 {
		return errors.New("pipeline.lock_wait_attempts must not be negative")
	}
	if p.LockWaitAttempts > 0 && p.LockWaitDelayMS <= 0 {
		return errors.New("pipeline.lock_wait_delay_ms must be positive when lock waiting is enabled")
	}
	if p.PoolSize < 0 {
		return errors.New("pipeline.pool_size must not be negative")
	}
	return nil
}

func (c *Config) validateChunking() error {
	if c.Chunking.ChunkSize <= 0 {
		return errors.New("chunking.chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return errors.New("chunking.chunk_overlap must be between 0 and chunk_size")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if c.Archive.Endpoint == "" {
		return errors.New("archive.endpoint is required when the archive is enabled")
	}
	if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
		return errors.New("archive.access_key and archive.secret_key are required when the archive is enabled (or set DOCPIPE_ARCHIVE_ACCESS_KEY and DOCPIPE_ARCHIVE_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
}
