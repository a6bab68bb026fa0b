// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomwise/internal/validation"
)

// Key derives the cache key for a (tenant, kind, params) tuple.
//
// params are JSON-encoded before hashing. go-json writes map keys in sorted
// order at every nesting level, so {"room":"LT1","capacity":20} and
// {"capacity":20,"room":"LT1"} produce the same key.
func Key(tenant string, kind Kind, params interface{}) (string, error) {
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", validation.Newf("Params", "must be JSON-serializable: %v", err)
	}

	h := sha256.New()
	// NUL separators keep ("a","bc") and ("ab","c") apart.
	fmt.Fprintf(h, "%s\x00%s\x00", tenant, kind)
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
