// internal/objects/compression.go
package objects

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024, // 1KB
		Level:   2,    // Balanced speed/compression
	}
}

// codec owns one encoder and one decoder; callers are sequential.
type codec struct {
	opts CompressionOptions
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newCodec(opts CompressionOptions) (*codec, error) {
	if opts.Level == 0 {
		opts.Level = DefaultCompressionOptions().Level
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &codec{opts: opts, enc: enc, dec: dec}, nil
}

func (c *codec) shouldCompress(size int) bool {
	return size >= c.opts.MinSize
}

func (c *codec) compress(content []byte) []byte {
	if !c.shouldCompress(len(content)) {
		return content
	}
	return c.enc.EncodeAll(content, make([]byte, 0, len(content)/2))
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}

func isCompressed(content []byte) bool {
	return len(content) > len(zstdMagic) && bytes.Equal(content[:len(zstdMagic)], zstdMagic)
}

// decompress is usable without a codec so that a store opened with
// compression disabled can still read objects written with it enabled.
func decompress(dec *zstd.Decoder, content []byte) ([]byte, error) {
	if dec == nil {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("creating decoder: %w", err)
		}
		defer d.Close()
		dec = d
	}
	return dec.DecodeAll(content, nil)
}
