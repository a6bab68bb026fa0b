// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

// Package codec turns arbitrary Go values into compressed bytes and back.
//
// Values are gob-encoded inside an envelope so the concrete type travels with
// the data, then gzip-compressed. Numbers, strings, nested
// map[string]interface{} / []interface{} trees and any type passed to Register
// round-trip exactly.
//
// gob decodes an empty slice as nil and drops empty maps held in struct
// fields. The envelope therefore also lists the path of every empty, non-nil
// slice or map in the value, and Decompress restores those after decoding,
// so an empty recommendation list comes back as [] rather than nil.
package codec

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

// ErrCorruptPayload is returned when bytes cannot be decompressed or decoded.
// Cache readers treat it as a miss.
var ErrCorruptPayload = errors.New("corrupt payload")

// envelope carries the value as an interface so gob records its type name.
// Empty holds the paths of empty containers; see emptyPaths.
type envelope struct {
	V     interface{}
	Empty [][]string
}

//nolint:gochecknoinits // generic containers must be registered before any encode
func init() {
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register([]map[string]interface{}{})
	gob.Register(map[string]float64{})
	gob.Register(map[string]int{})
	gob.Register([]float32{})
}

// Register makes a domain type encodable inside interface values. Call it
// once per type, typically from an init function of the owning package.
func Register(value interface{}) {
	gob.Register(value)
}

// Compress serializes v and gzip-compresses it. ratio is
// compressed size / serialized size; values at or above 1.0 are normal for
// tiny or incompressible inputs.
func Compress(v interface{}) (payload []byte, ratio float64, err error) {
	var raw bytes.Buffer
	env := envelope{V: v, Empty: emptyPaths(v)}
	if err := gob.NewEncoder(&raw).Encode(env); err != nil {
		return nil, 0, fmt.Errorf("failed to encode value of type %T: %w", v, err)
	}

	var out bytes.Buffer
	zw, err := gzip.NewWriterLevel(&out, gzip.DefaultCompression)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, 0, fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to finish compression: %w", err)
	}

	return out.Bytes(), float64(out.Len()) / float64(raw.Len()), nil
}

// Decompress inverts Compress.
func Decompress(payload []byte) (interface{}, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}

	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if env.V != nil && len(env.Empty) > 0 {
		root := reflect.ValueOf(&env.V).Elem()
		for _, path := range env.Empty {
			root.Set(restoreEmpty(root, path))
		}
	}
	return env.V, nil
}

// emptyPaths lists the path of every empty, non-nil slice or map reachable
// from v. Steps are struct field names, slice indexes and string map keys.
func emptyPaths(v interface{}) [][]string {
	var out [][]string
	collectEmpty(reflect.ValueOf(v), nil, &out)
	return out
}

func collectEmpty(v reflect.Value, path []string, out *[][]string) {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if !v.IsNil() {
			collectEmpty(v.Elem(), path, out)
		}
	case reflect.Slice:
		if v.IsNil() {
			return
		}
		if v.Len() == 0 {
			*out = append(*out, append([]string{}, path...))
			return
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return
		}
		for i := 0; i < v.Len(); i++ {
			collectEmpty(v.Index(i), append(path, strconv.Itoa(i)), out)
		}
	case reflect.Map:
		if v.IsNil() {
			return
		}
		if v.Len() == 0 {
			*out = append(*out, append([]string{}, path...))
			return
		}
		if v.Type().Key().Kind() != reflect.String {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			collectEmpty(iter.Value(), append(path, iter.Key().String()), out)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				collectEmpty(v.Field(i), append(path, t.Field(i).Name), out)
			}
		}
	}
}

// restoreEmpty follows path from v and replaces a nil slice or map at its
// end with an empty one. It returns v, or a modified copy of the same type.
// Paths that no longer resolve are ignored.
func restoreEmpty(v reflect.Value, path []string) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(restoreEmpty(v.Elem(), path))
		return out
	case reflect.Pointer:
		if !v.IsNil() {
			v.Elem().Set(restoreEmpty(v.Elem(), path))
		}
		return v
	}

	if len(path) == 0 {
		switch {
		case v.Kind() == reflect.Slice && v.IsNil():
			return reflect.MakeSlice(v.Type(), 0, 0)
		case v.Kind() == reflect.Map && v.IsNil():
			return reflect.MakeMap(v.Type())
		}
		return v
	}

	step, rest := path[0], path[1:]
	switch v.Kind() {
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		f := out.FieldByName(step)
		if !f.IsValid() || !f.CanSet() {
			return v
		}
		f.Set(restoreEmpty(f, rest))
		return out
	case reflect.Slice:
		i, err := strconv.Atoi(step)
		if err != nil || i < 0 || i >= v.Len() {
			return v
		}
		elem := v.Index(i)
		elem.Set(restoreEmpty(elem, rest))
		return v
	case reflect.Map:
		if v.IsNil() || v.Type().Key().Kind() != reflect.String {
			return v
		}
		key := reflect.ValueOf(step).Convert(v.Type().Key())
		elem := v.MapIndex(key)
		if !elem.IsValid() {
			return v
		}
		v.SetMapIndex(key, restoreEmpty(elem, rest))
		return v
	}
	return v
}

// DecompressAs decompresses and asserts the result to T.
func DecompressAs[T any](payload []byte) (T, error) {
	var zero T
	v, err := Decompress(payload)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: stored %T, want %T", ErrCorruptPayload, v, zero)
	}
	return typed, nil
}
