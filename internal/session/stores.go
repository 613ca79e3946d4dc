package session

import (
	"context"
	"fmt"

	"github.com/debemdeboas/docsave/internal/config"
	"github.com/debemdeboas/docsave/internal/db"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/repository/local"
	"github.com/debemdeboas/docsave/internal/repository/remote"
	"github.com/debemdeboas/docsave/internal/util/compression"
)

// OpenLocal builds the configured fallback store.
func OpenLocal(cfg config.LocalConfig) (repository.LocalRepository, error) {
	switch cfg.Type {
	case config.LocalMemory:
		return local.NewMemoryRepository(local.WithQuota(cfg.QuotaBytes)), nil
	case config.LocalFS:
		return local.NewFSRepository(cfg.Path)
	case config.LocalSQLite:
		comp, err := compression.New(cfg.Compression)
		if err != nil {
			return nil, err
		}
		database := db.NewSQLite(cfg.Path)
		if err := database.InitDB(); err != nil {
			return nil, err
		}
		return local.NewSQLiteRepository(database, comp), nil
	default:
		return nil, fmt.Errorf("unknown local store %q", cfg.Type)
	}
}

// OpenRemote builds the configured remote store.
func OpenRemote(ctx context.Context, cfg config.RemoteConfig) (repository.RemoteRepository, error) {
	switch cfg.Type {
	case config.RemoteHTTP:
		return remote.NewHTTPClient(cfg.URL,
			remote.WithTimeout(cfg.Timeout),
			remote.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		), nil
	case config.RemoteS3:
		return remote.NewS3Client(ctx, remote.S3Config{
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown remote store %q", cfg.Type)
	}
}
