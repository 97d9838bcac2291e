package archive

import (
	"context"
	"fmt"

	"github.com/dump-ingestion-api/internal/config"
)

// NewStoreFromConfig creates a Store for the configured backend
func NewStoreFromConfig(ctx context.Context, cfg *config.ArchiveConfig) (Store, error) {
	switch cfg.Backend {
	case config.ArchiveFilesystem, "":
		if cfg.StoragePath == "" {
			return nil, fmt.Errorf("filesystem archive requires STORAGE_PATH to be set")
		}
		return NewFileStore(cfg.StoragePath), nil
	case config.ArchiveS3:
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", cfg.Backend)
	}
}
