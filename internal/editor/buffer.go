// Package editor holds the host-side copy of the document the browser editor is showing.
package editor

import (
	"sync"

	"github.com/debemdeboas/docsave/internal/document"
)

// Buffer is the document currently bound to a persistence session. The
// browser pushes its block tree into it; loads replace it.
type Buffer struct {
	mu      sync.RWMutex
	doc     document.Document
	version uint64
}

func NewBuffer(initial document.Document) *Buffer {
	return &Buffer{doc: initial.Clone()}
}

// Document returns a copy of the current document.
func (b *Buffer) Document() document.Document {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.doc.Clone()
}

func (b *Buffer) ReplaceDocument(d document.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc = d.Clone()
	b.version++
}

// Snapshot returns a copy of the document with its version. The version
// increases on every change.
func (b *Buffer) Snapshot() (document.Document, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.doc.Clone(), b.version
}

// UpdateBlockProps merges props into the block with the given id.
func (b *Buffer) UpdateBlockProps(id string, props map[string]any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	updated, ok := document.UpdateBlockProps(b.doc, id, props)
	if !ok {
		return false
	}
	b.doc = updated
	b.version++
	return true
}
