// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cabfile

import (
	"testing"
	"time"
)

func TestDOSDateTimeRoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 15, 13, 37, 58, 0, time.UTC),
		time.Date(2107, time.December, 31, 23, 59, 58, 0, time.UTC),
	}
	for _, want := range cases {
		date, dosTime := utcToDOSDateTime(want)
		got := dosDateTimeToUTC(date, dosTime)
		if !got.Equal(want) {
			t.Errorf("round trip of %v = %v, want %v", want, got, want)
		}
	}
}

func TestDOSDateTimeTwoSecondResolution(t *testing.T) {
	want := time.Date(2020, time.June, 1, 10, 0, 1, 0, time.UTC)
	date, dosTime := utcToDOSDateTime(want)
	got := dosDateTimeToUTC(date, dosTime)
	if diff := got.Sub(want); diff < -2*time.Second || diff > 2*time.Second {
		t.Errorf("round trip of %v = %v, outside the 2s tolerance", want, got)
	}
}

func TestDOSDateTimeClampsOutOfRange(t *testing.T) {
	tooEarly := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	date, dosTime := utcToDOSDateTime(tooEarly)
	got := dosDateTimeToUTC(date, dosTime)
	if got.Year() != 1980 {
		t.Errorf("pre-1980 time clamped to year %d, want 1980", got.Year())
	}

	tooLate := time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)
	date, dosTime = utcToDOSDateTime(tooLate)
	got = dosDateTimeToUTC(date, dosTime)
	if got.Year() != 2107 {
		t.Errorf("post-2107 time clamped to year %d, want 2107", got.Year())
	}
}

func TestDOSDateTimeEncoding(t *testing.T) {
	// 2024-03-15 13:37:58 UTC, checked against the DOS date/time bit layout directly.
	tm := time.Date(2024, time.March, 15, 13, 37, 58, 0, time.UTC)
	date, dosTime := utcToDOSDateTime(tm)

	wantDate := uint16((2024-1980)<<9) | uint16(3<<5) | uint16(15)
	wantTime := uint16(13<<11) | uint16(37<<5) | uint16(58/2)
	if date != wantDate {
		t.Errorf("date = %#04x, want %#04x", date, wantDate)
	}
	if dosTime != wantTime {
		t.Errorf("time = %#04x, want %#04x", dosTime, wantTime)
	}
}
