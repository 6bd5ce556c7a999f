package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeEmbedding()
	c.normalizeArchive()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeStorage() error {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = defaultDataDir
	}
	if value, ok := os.LookupEnv("DOCPIPE_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Storage.DataDir = value
	}
	var err error
	if c.Storage.DataDir, err = expandPath(c.Storage.DataDir); err != nil {
		return fmt.Errorf("storage.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEmbedding() {
	c.Embedding.Host = strings.TrimSpace(c.Embedding.Host)
	if c.Embedding.Host == "" {
		c.Embedding.Host = defaultEmbeddingHost
	}
	c.Embedding.Model = strings.TrimSpace(c.Embedding.Model)
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbeddingModel
	}
	c.Embedding.Token = strings.TrimSpace(c.Embedding.Token)
	if c.Embedding.Token == "" {
		if value, ok := os.LookupEnv("DOCPIPE_EMBEDDING_TOKEN"); ok {
			c.Embedding.Token = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Embedding.Token = strings.TrimSpace(value)
		}
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = defaultEmbeddingBatchSize
	}
}

func (c *Config) normalizeArchive() {
	c.Archive.Endpoint = strings.TrimSpace(c.Archive.Endpoint)
	c.Archive.Bucket = strings.TrimSpace(c.Archive.Bucket)
	if c.Archive.Bucket == "" {
		c.Archive.Bucket = defaultArchiveBucket
	}
	if c.Archive.AccessKey == "" {
		c.Archive.AccessKey = os.Getenv("DOCPIPE_ARCHIVE_ACCESS_KEY")
	}
	if c.Archive.SecretKey == "" {
		c.Archive.SecretKey = os.Getenv("DOCPIPE_ARCHIVE_SECRET_KEY")
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
}
