package config

// LocalStoreConfig selects where durable client state (login snapshot,
// selected room, backend session cookie) lives.
type LocalStoreConfig struct {
	Backend  string `env:"LOCAL_STORE_BACKEND" yaml:"backend" default:"file"` // "file", "sqlite", "s3" or "memory"
	Path     string `env:"LOCAL_STORE_PATH" yaml:"path" default:"./.botconsole"`
	S3Bucket string `env:"LOCAL_STORE_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix string `env:"LOCAL_STORE_S3_PREFIX" yaml:"s3_prefix"`
}
