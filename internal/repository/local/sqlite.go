package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/docsave/internal/db"
	"github.com/debemdeboas/docsave/internal/repository"
	"github.com/debemdeboas/docsave/internal/util"
	"github.com/debemdeboas/docsave/internal/util/compression"
)

// SQLiteRepository stores compressed content in the local_content table.
type SQLiteRepository struct {
	db         db.DB
	compressor compression.Compressor
}

func NewSQLiteRepository(database db.DB, compressor compression.Compressor) *SQLiteRepository {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &SQLiteRepository{
		db:         database,
		compressor: compressor,
	}
}

func (r *SQLiteRepository) Put(ctx context.Context, id repository.ContentID, content string) error {
	compressed, err := r.compressor.Compress([]byte(content))
	if err != nil {
		return repository.StorageUnavailable("put", fmt.Errorf("error compressing content: %w", err))
	}

	// The hash covers the stored bytes so a torn or foreign row is detected on read.
	hash := util.ContentHash(compressed)

	_, err = r.db.ExecContext(ctx, `
INSERT INTO local_content (key, content, content_hash, modified_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET content = excluded.content, content_hash = excluded.content_hash, modified_at = excluded.modified_at`,
		repository.Key(id), compressed, hash, time.Now().UTC(),
	)
	if err != nil {
		return repository.StorageUnavailable("put", fmt.Errorf("error saving content: %w", err))
	}

	repository.Logger().Debug().
		Str("content_id", string(id)).
		Int("compressed_bytes", len(compressed)).
		Msg("Local content saved")
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id repository.ContentID) (string, bool) {
	var compressed []byte
	var hash string

	err := r.db.QueryRowContext(ctx,
		`SELECT content, content_hash FROM local_content WHERE key = ?`, repository.Key(id),
	).Scan(&compressed, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		repository.Logger().Warn().Err(err).Str("content_id", string(id)).Msg("Error reading local content")
		return "", false
	}

	if util.ContentHash(compressed) != hash {
		repository.Logger().Warn().Str("content_id", string(id)).Msg("Local content hash mismatch, ignoring entry")
		return "", false
	}

	content, err := r.compressor.Decompress(compressed)
	if err != nil {
		repository.Logger().Warn().Err(err).Str("content_id", string(id)).Msg("Error decompressing local content")
		return "", false
	}
	return string(content), true
}

func (r *SQLiteRepository) Delete(ctx context.Context, id repository.ContentID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM local_content WHERE key = ?`, repository.Key(id)); err != nil {
		return repository.StorageUnavailable("delete", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
