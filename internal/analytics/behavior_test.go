// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package analytics

import "testing"

func TestPartOfDay(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, PartOther},
		{5, PartOther},
		{6, PartMorning},
		{9, PartMorning},
		{10, PartLateMorning},
		{11, PartLateMorning},
		{12, PartLunch},
		{13, PartLunch},
		{14, PartAfternoon},
		{16, PartAfternoon},
		{17, PartEvening},
		{20, PartEvening},
		{21, PartOther},
		{23, PartOther},
	}
	for _, tt := range tests {
		if got := partOfDay(tt.hour); got != tt.want {
			t.Errorf("partOfDay(%d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}
