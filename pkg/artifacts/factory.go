package artifacts

import (
	"context"
	"fmt"
)

// Backend selects the artifact storage implementation.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// GCSStoreConfig holds configuration for the GCS backend. The backend
// itself is compiled in with -tags gcp.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// FactoryConfig is the injected storage configuration. There is no
// env-var fallback here; callers load configuration explicitly and pass
// it in.
type FactoryConfig struct {
	Backend Backend
	DataDir string // fs
	S3      S3StoreConfig
	GCS     GCSStoreConfig
}

// NewStore builds the configured artifact store.
func NewStore(ctx context.Context, cfg FactoryConfig) (Store, error) {
	switch cfg.Backend {
	case BackendFS, "":
		dir := cfg.DataDir
		if dir == "" {
			dir = "data/artifacts"
		}
		return NewFileStore(dir)
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("artifacts: s3 backend requires a bucket")
		}
		return NewS3Store(ctx, cfg.S3)
	case BackendGCS:
		if cfg.GCS.Bucket == "" {
			return nil, fmt.Errorf("artifacts: gcs backend requires a bucket")
		}
		return newGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("artifacts: unknown backend %q", cfg.Backend)
	}
}
