// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// valueFormat tags how a value is stored on disk by the append-log
// backend, letting mixed-mode logs (compression threshold changed
// between runs) still recover correctly: the one-byte tag is read
// before the rest of the field is interpreted. This is a storage-layer
// detail only — callers of Engine.Get/Engine.Set never see it.
type valueFormat byte

const (
	valueFormatRaw  valueFormat = 0x00
	valueFormatZstd valueFormat = 0x01
)

var (
	zstdEncoder   *zstd.Encoder
	zstdEncoderMu sync.Once
	zstdDecoder   *zstd.Decoder
	zstdDecoderMu sync.Once
)

func sharedZstdEncoder() *zstd.Encoder {
	zstdEncoderMu.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(fmt.Sprintf("store: constructing zstd encoder: %v", err))
		}
		zstdEncoder = enc
	})
	return zstdEncoder
}

func sharedZstdDecoder() *zstd.Decoder {
	zstdDecoderMu.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("store: constructing zstd decoder: %v", err))
		}
		zstdDecoder = dec
	})
	return zstdDecoder
}

// encodeValue prepends a format tag to value, compressing it with zstd
// when threshold is positive and value reaches it. A zero or negative
// threshold always stores the value raw.
func encodeValue(value []byte, threshold int64) []byte {
	if threshold <= 0 || int64(len(value)) < threshold {
		out := make([]byte, 0, len(value)+1)
		out = append(out, byte(valueFormatRaw))
		return append(out, value...)
	}
	compressed := sharedZstdEncoder().EncodeAll(value, nil)
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, byte(valueFormatZstd))
	return append(out, compressed...)
}

// decodeValue strips and interprets the format tag written by
// encodeValue.
func decodeValue(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("store: empty stored value")
	}
	tag, payload := valueFormat(stored[0]), stored[1:]
	switch tag {
	case valueFormatRaw:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case valueFormatZstd:
		return sharedZstdDecoder().DecodeAll(payload, nil)
	default:
		return nil, fmt.Errorf("store: unknown value format tag %d", tag)
	}
}
