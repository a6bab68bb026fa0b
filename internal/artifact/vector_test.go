// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package artifact

import (
	"errors"
	"math"
	"testing"
)

func TestVectorEncoding(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
	}{
		{"single", []float32{1}},
		{"mixed", []float32{0.25, -3.5, 1e-7, 42}},
		{"special", []float32{float32(math.Inf(1)), float32(math.Inf(-1)), 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := encodeVector(tt.vec)
			if len(buf) != vectorHeaderSize+4*len(tt.vec) {
				t.Fatalf("encoded length = %d", len(buf))
			}
			got, err := decodeVector(buf)
			if err != nil {
				t.Fatalf("decodeVector() error = %v", err)
			}
			if len(got) != len(tt.vec) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.vec))
			}
			for i := range got {
				if got[i] != tt.vec[i] {
					t.Errorf("v[%d] = %v, want %v", i, got[i], tt.vec[i])
				}
			}
		})
	}
}

func TestDecodeVectorRejectsBadInput(t *testing.T) {
	good := encodeVector([]float32{1, 2, 3})

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), good[4:]...)},
		{"truncated", good[:len(good)-2]},
		{"trailing", append(append([]byte{}, good...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeVector(tt.buf); !errors.Is(err, errBadVectorFile) {
				t.Errorf("decodeVector() error = %v, want errBadVectorFile", err)
			}
		})
	}
}

func TestVectorHashIgnoresHeader(t *testing.T) {
	a := encodeVector([]float32{1, 2, 3})
	b := encodeVector([]float32{1, 2, 3})
	c := encodeVector([]float32{1, 2, 4})

	if vectorHash(a) != vectorHash(b) {
		t.Error("equal vectors hash differently")
	}
	if vectorHash(a) == vectorHash(c) {
		t.Error("different vectors hash alike")
	}
	if len(vectorHash(a)) != 16 {
		t.Errorf("hash length = %d, want 16", len(vectorHash(a)))
	}
}
