package config

const (
	defaultConfigPath          = "~/.config/docpipe/config.toml"
	defaultProjectConfig       = "docpipe.toml"
	defaultDataDir             = "~/.local/share/docpipe"
	defaultArtifactTTLSeconds  = 7 * 24 * 60 * 60
	defaultLeaseSeconds        = 600
	defaultStageTimeoutSeconds = 300
	defaultLockWaitDelayMS     = 250
	defaultChunkSize           = 1000
	defaultChunkOverlap        = 200
	defaultEmbeddingHost       = "http://localhost:11434/v1"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingBatchSize  = 32
	defaultArchiveBucket       = "docpipe-raw"
	defaultLogLevel            = "info"
	defaultLogFormat           = "text"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Storage: Storage{
			DataDir:            defaultDataDir,
			ArtifactTTLSeconds: defaultArtifactTTLSeconds,
		},
		Pipeline: Pipeline{
			LeaseSeconds:        defaultLeaseSeconds,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			LockWaitDelayMS:     defaultLockWaitDelayMS,
		},
		Chunking: Chunking{
			ChunkSize:    defaultChunkSize,
			ChunkOverlap: defaultChunkOverlap,
		},
		Embedding: Embedding{
			Host:      defaultEmbeddingHost,
			Model:     defaultEmbeddingModel,
			BatchSize: defaultEmbeddingBatchSize,
		},
		Archive: Archive{
			Bucket: defaultArchiveBucket,
			UseSSL: true,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
