package localstore

import (
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Backend selects the storage implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendS3     Backend = "s3"
	BackendMemory Backend = "memory"
)

// Config describes which backend to open.
type Config struct {
	Backend Backend
	// Path is the directory (file) or database file (sqlite).
	Path string
	// Bucket and Prefix are used by the s3 backend.
	Bucket string
	Prefix string
	// S3Client overrides the client built from the default AWS config.
	S3Client S3API
}

// Open creates the Store described by cfg. The returned closer releases
// backend resources and is never nil.
func Open(ctx context.Context, cfg Config) (Store, io.Closer, error) {
	switch cfg.Backend {
	case BackendFile, "":
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("path is required for the file backend")
		}
		return NewProviderStore(NewLocalFileProvider(cfg.Path)), nopCloser{}, nil

	case BackendSQLite:
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("path is required for the sqlite backend")
		}
		st, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil

	case BackendS3:
		if cfg.Bucket == "" {
			return nil, nil, fmt.Errorf("bucket is required for the s3 backend")
		}
		client := cfg.S3Client
		if client == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
			}
			client = s3.NewFromConfig(awsCfg)
		}
		return NewProviderStore(NewS3FileProvider(client, cfg.Bucket, cfg.Prefix)), nopCloser{}, nil

	case BackendMemory:
		return NewMemoryStore(), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported local store backend: %s", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
