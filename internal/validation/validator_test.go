// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	ID    string   `validate:"identifier"`
	Kind  string   `validate:"required,oneof=a b"`
	Items []string `validate:"min=1"`
	Score float64  `validate:"gte=0,lte=1"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name      string
		in        sample
		wantField string
	}{
		{"valid", sample{ID: "room-1", Kind: "a", Items: []string{"x"}, Score: 0.5}, ""},
		{"empty id", sample{ID: "", Kind: "a", Items: []string{"x"}}, "ID"},
		{"id with space", sample{ID: "room 1", Kind: "a", Items: []string{"x"}}, "ID"},
		{"id with slash", sample{ID: "../etc", Kind: "a", Items: []string{"x"}}, "ID"},
		{"parent dir id", sample{ID: "..", Kind: "a", Items: []string{"x"}}, "ID"},
		{"current dir id", sample{ID: ".", Kind: "a", Items: []string{"x"}}, "ID"},
		{"dotted version id", sample{ID: "v1.2", Kind: "a", Items: []string{"x"}}, ""},
		{"bad kind", sample{ID: "r", Kind: "c", Items: []string{"x"}}, "Kind"},
		{"no items", sample{ID: "r", Kind: "a"}, "Items"},
		{"score too high", sample{ID: "r", Kind: "b", Items: []string{"x"}, Score: 2}, "Score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(&tt.in)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Struct() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Struct() error = %v, want ErrValidation", err)
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if verr.Fields[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Fields[0].Field, tt.wantField)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf("TTL", "must not be negative, got %s", "-1s")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "TTL must not be negative, got -1s") {
		t.Errorf("unexpected message: %v", err)
	}
}
