// Package wire provides the frame codecs clients may negotiate for their
// state stream. Every codec is symmetric and self-contained; the broker picks
// one per connection and sticks with it.
package wire

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compressor applies symmetric compression to payload byte slices.
type Compressor interface {
	// Name returns the codec identifier clients use during negotiation.
	Name() string
	// Compress encodes the provided payload into a compressed representation.
	Compress(data []byte) ([]byte, error)
	// Decompress restores the original payload from its compressed form.
	Decompress(data []byte) ([]byte, error)
}

// identityCompressor passes payloads through untouched.
type identityCompressor struct{}

// NewIdentityCompressor constructs the no-op codec used as the fallback.
func NewIdentityCompressor() Compressor { return identityCompressor{} }

func (identityCompressor) Name() string { return "identity" }

func (identityCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (identityCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// gzipCompressor wraps the standard library gzip implementation.
type gzipCompressor struct{}

// NewGZIPCompressor constructs a Compressor backed by gzip.
func NewGZIPCompressor() Compressor { return gzipCompressor{} }

// Name reports the identifier used for gzip encoded payloads.
func (gzipCompressor) Name() string { return "gzip" }

// Compress encodes data using the gzip format.
func (gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress decodes gzip-encoded data and returns the raw payload.
func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("gzip decompress: empty payload")
	}
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer reader.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("gzip copy: %w", err)
	}
	return buf.Bytes(), nil
}

// snappyCompressor uses the snappy block format, trading ratio for speed.
type snappyCompressor struct{}

// NewSnappyCompressor constructs a Compressor backed by snappy blocks.
func NewSnappyCompressor() Compressor { return snappyCompressor{} }

func (snappyCompressor) Name() string { return "snappy" }

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return decoded, nil
}

// zstdCompressor shares one encoder/decoder pair across calls; both are safe
// for concurrent use via EncodeAll/DecodeAll.
type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor constructs a Compressor backed by zstd.
func NewZstdCompressor() (Compressor, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (z *zstdCompressor) Name() string { return "zstd" }

func (z *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoded, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return decoded, nil
}

// Registry resolves codec names negotiated by clients.
type Registry struct {
	codecs   map[string]Compressor
	fallback Compressor
}

// NewRegistry builds a registry containing every supported codec.
func NewRegistry() (*Registry, error) {
	identity := NewIdentityCompressor()
	zstdCodec, err := NewZstdCompressor()
	if err != nil {
		return nil, err
	}
	codecs := map[string]Compressor{}
	for _, codec := range []Compressor{identity, NewGZIPCompressor(), NewSnappyCompressor(), zstdCodec} {
		codecs[codec.Name()] = codec
	}
	return &Registry{codecs: codecs, fallback: identity}, nil
}

// Lookup returns the codec registered under name, falling back to identity
// for unknown or empty names so negotiation never fails a connection.
func (r *Registry) Lookup(name string) Compressor {
	if r == nil {
		return NewIdentityCompressor()
	}
	if codec, ok := r.codecs[name]; ok {
		return codec
	}
	return r.fallback
}

// Names lists the registered codec identifiers for diagnostics.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	return names
}
