// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a frame payload is encoded. Values are
// carried in frames and must not be renumbered.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
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
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a configured compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// errIncompressible means compressing would not shrink the payload.
var errIncompressible = errors.New("payload is incompressible")

// zstd encoders and decoders are safe for concurrent use and costly to
// build, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("bridge: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("bridge: zstd decoder initialization failed: " + err.Error())
	}
}

// compress encodes payload with algorithm and returns the algorithm
// actually used. Payloads that do not shrink are sent as-is.
func compress(payload []byte, algorithm Compression) ([]byte, Compression, error) {
	var (
		compressed []byte
		err        error
	)
	switch algorithm {
	case CompressionNone:
		return payload, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(payload)
	case CompressionZstd:
		compressed, err = compressZstd(payload)
	default:
		return nil, 0, fmt.Errorf("unsupported compression: %s", algorithm)
	}
	if errors.Is(err, errIncompressible) {
		return payload, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, algorithm, nil
}

// decompress reverses compress. size is the original payload length
// and is verified.
func decompress(payload []byte, algorithm Compression, size int) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		if len(payload) != size {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", algorithm)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}
