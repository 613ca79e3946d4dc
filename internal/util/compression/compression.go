// Package compression provides the byte compressors used for stored document content.
package compression

import "fmt"

type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

const (
	NameZstd = "zstd"
	NameGzip = "gzip"
	NameNone = "none"
)

type NoopCompressor struct{}

func (NoopCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoopCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// New returns the compressor registered under name. An empty name selects zstd.
func New(name string) (Compressor, error) {
	switch name {
	case "", NameZstd:
		return ZstdCompressor{}, nil
	case NameGzip:
		return GzipCompressor{}, nil
	case NameNone:
		return NoopCompressor{}, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}
