// Package local provides the fallback tier of the content store.
package local

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/debemdeboas/docsave/internal/cache"
	"github.com/debemdeboas/docsave/internal/repository"
)

// MemoryRepository keeps content in process memory. A byte quota and a
// disabled switch let it stand in for a browser store that is full or
// turned off.
type MemoryRepository struct {
	items    *cache.Cache[string, string]
	quota    int
	disabled atomic.Bool
}

type MemoryOption func(*MemoryRepository)

// WithQuota caps the total stored bytes. Zero means unlimited.
func WithQuota(bytes int) MemoryOption {
	return func(m *MemoryRepository) {
		m.quota = bytes
	}
}

func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	m := &MemoryRepository{
		items: cache.NewCache[string, string](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetDisabled makes every subsequent call behave as if storage were turned off.
func (m *MemoryRepository) SetDisabled(disabled bool) {
	m.disabled.Store(disabled)
}

func (m *MemoryRepository) Put(_ context.Context, id repository.ContentID, content string) error {
	if m.disabled.Load() {
		return repository.StorageUnavailable("put", fmt.Errorf("storage disabled"))
	}

	key := repository.Key(id)
	stored := m.items.SetIf(key, content, func(_ string, _ bool, all map[string]string) bool {
		if m.quota <= 0 {
			return true
		}
		used := len(content)
		for k, v := range all {
			if k != key {
				used += len(v)
			}
		}
		return used <= m.quota
	})
	if !stored {
		return repository.StorageUnavailable("put", fmt.Errorf("quota of %d bytes exceeded with %d entries stored", m.quota, m.items.Len()))
	}
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id repository.ContentID) (string, bool) {
	if m.disabled.Load() {
		repository.Logger().Warn().Str("content_id", string(id)).Msg("Local storage disabled, reading as absent")
		return "", false
	}
	return m.items.Get(repository.Key(id))
}

func (m *MemoryRepository) Delete(_ context.Context, id repository.ContentID) error {
	if m.disabled.Load() {
		return repository.StorageUnavailable("delete", fmt.Errorf("storage disabled"))
	}
	m.items.Delete(repository.Key(id))
	return nil
}

func (m *MemoryRepository) Close() error {
	return nil
}
