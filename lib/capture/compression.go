// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how the body of a capture file is
// compressed. The value is stored in the file header; changing the
// numbers breaks existing captures.
type Compression uint8

const (
	// CompressionNone stores CBOR records as is.
	CompressionNone Compression = 0

	// CompressionLZ4 wraps the records in an LZ4 frame. Cheap enough
	// to leave on for long sessions.
	CompressionLZ4 Compression = 1

	// CompressionZstd wraps the records in a zstd stream at the
	// default level. Fragment listings are repetitive and compress
	// several times better than with LZ4.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name. The empty string means
// none.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown capture compression %q", name)
	}
}

// nopWriteCloser lets the uncompressed path share the close logic of
// the compressors, which must be closed to flush.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressingWriter(destination io.Writer, compression Compression) (io.WriteCloser, error) {
	switch compression {
	case CompressionNone:
		return nopWriteCloser{destination}, nil
	case CompressionLZ4:
		return lz4.NewWriter(destination), nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(destination, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil
	default:
		return nil, fmt.Errorf("unsupported capture compression %d", uint8(compression))
	}
}

// decompressingReader returns the body reader and a release function
// for decoder resources.
func decompressingReader(source io.Reader, compression Compression) (io.Reader, func(), error) {
	switch compression {
	case CompressionNone:
		return source, func() {}, nil
	case CompressionLZ4:
		return lz4.NewReader(source), func() {}, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(source)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported capture compression %d", uint8(compression))
	}
}
