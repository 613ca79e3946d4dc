package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/util"
)

const (
	lockFileName   = ".docsave.lock"
	lockRetryDelay = 10 * time.Millisecond
)

// FSRepository keeps one file per content id in a directory. Writes are
// atomic (temp file + rename) and serialized across processes with a lock file.
type FSRepository struct {
	dir string

	// flock gives no exclusion between goroutines sharing one Flock value.
	mu   sync.Mutex
	lock *flock.Flock
}

func NewFSRepository(dir string) (*FSRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating local store directory %s: %w", dir, err)
	}
	return &FSRepository{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFileName)),
	}, nil
}

func (r *FSRepository) path(id repository.ContentID) string {
	return filepath.Join(r.dir, util.ContentHashString(repository.Key(id))+".json")
}

func (r *FSRepository) Put(ctx context.Context, id repository.ContentID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return repository.StorageUnavailable("put", fmt.Errorf("error acquiring lock: %v", err))
	}
	defer r.lock.Unlock()

	tmp, err := os.CreateTemp(r.dir, ".content-*")
	if err != nil {
		return repository.StorageUnavailable("put", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return repository.StorageUnavailable("put", err)
	}
	if err := tmp.Close(); err != nil {
		return repository.StorageUnavailable("put", err)
	}
	if err := os.Rename(tmp.Name(), r.path(id)); err != nil {
		return repository.StorageUnavailable("put", err)
	}
	return nil
}

func (r *FSRepository) Get(ctx context.Context, id repository.ContentID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		repository.Logger().Warn().Err(err).Str("content_id", string(id)).Msg("Error acquiring read lock")
		return "", false
	}
	defer r.lock.Unlock()

	data, err := os.ReadFile(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false
	}
	if err != nil {
		repository.Logger().Warn().Err(err).Str("content_id", string(id)).Msg("Error reading local content")
		return "", false
	}
	return string(data), true
}

func (r *FSRepository) Delete(ctx context.Context, id repository.ContentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return repository.StorageUnavailable("delete", fmt.Errorf("error acquiring lock: %v", err))
	}
	defer r.lock.Unlock()

	if err := os.Remove(r.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return repository.StorageUnavailable("delete", err)
	}
	return nil
}

func (r *FSRepository) Close() error {
	return r.lock.Close()
}
