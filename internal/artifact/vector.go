// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package artifact

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Vector files are "RWV1", a little-endian uint32 dimension count, then
// that many little-endian float32 values.
var vectorMagic = [4]byte{'R', 'W', 'V', '1'}

const vectorHeaderSize = 8

var errBadVectorFile = errors.New("malformed vector file")

func encodeVector(v []float32) []byte {
	buf := make([]byte, vectorHeaderSize+4*len(v))
	copy(buf, vectorMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(v))) //nolint:gosec // bounded by memory
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[vectorHeaderSize+4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) < vectorHeaderSize || [4]byte(buf[:4]) != vectorMagic {
		return nil, errBadVectorFile
	}
	dims := int(binary.LittleEndian.Uint32(buf[4:]))
	if len(buf) != vectorHeaderSize+4*dims {
		return nil, fmt.Errorf("%w: header says %d dimensions, body holds %d bytes",
			errBadVectorFile, dims, len(buf)-vectorHeaderSize)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[vectorHeaderSize+4*i:]))
	}
	return v, nil
}

// vectorHash hashes the vector body, so the same values always hash alike
// whatever file they came from.
func vectorHash(encoded []byte) string {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(encoded[vectorHeaderSize:]))
	return hex.EncodeToString(sum[:])
}
