// Package repository defines the two storage tiers documents are persisted to:
// a remote store that is authoritative, and a local store used as a fallback.
package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ContentID identifies one logical document in both tiers.
type ContentID string

const DefaultContentID ContentID = "default"

// OrDefault substitutes DefaultContentID for an empty id.
func (id ContentID) OrDefault() ContentID {
	if id == "" {
		return DefaultContentID
	}
	return id
}

// KeyPrefix namespaces local entries so ids never collide with other data
// sharing the same backend.
const KeyPrefix = "blocknote-content-"

// Key derives the storage key for id.
func Key(id ContentID) string {
	return KeyPrefix + string(id.OrDefault())
}

// LocalRepository is the fallback tier. Get never fails: an unreadable
// backend reads as absent.
type LocalRepository interface {
	Put(ctx context.Context, id ContentID, content string) error
	Get(ctx context.Context, id ContentID) (string, bool)
	Delete(ctx context.Context, id ContentID) error
	Close() error
}

// SaveResult is the remote acknowledgement of a save.
type SaveResult struct {
	ID        ContentID
	Timestamp time.Time
}

// RemoteRepository is the authoritative tier. Implementations make exactly
// one attempt per call.
type RemoteRepository interface {
	Save(ctx context.Context, id ContentID, content string) (SaveResult, error)
	// Load reports ok=false with a nil error when the remote holds no
	// content for id.
	Load(ctx context.Context, id ContentID) (content string, ok bool, err error)
}

var repoLogger zerolog.Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

// Logger returns the logger shared by the storage backends.
func Logger() *zerolog.Logger {
	return &repoLogger
}
