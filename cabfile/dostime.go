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

import "time"

// dosDateTimeToUTC decodes the 16+16 bit MS-DOS date/time fields into a UTC
// time.Time with 2-second resolution.
//
//	date: bits 15-9 year-1980, bits 8-5 month, bits 4-0 day
//	time: bits 15-11 hour, bits 10-5 minute, bits 4-0 seconds/2
func dosDateTimeToUTC(date, dosTime uint16) time.Time {
	year := 1980 + int(date>>9&0x7F)
	month := int(date >> 5 & 0x0F)
	day := int(date & 0x1F)
	hour := int(dosTime >> 11 & 0x1F)
	minute := int(dosTime >> 5 & 0x3F)
	second := int(dosTime&0x1F) * 2

	if month < 1 {
		month = 1
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

// utcToDOSDateTime encodes a UTC time.Time into the 16+16 bit MS-DOS
// date/time fields. Values outside the representable range
// [1980-01-01, 2107-12-31] are clamped rather than rejected, since the format
// has no representation for dates outside that window.
func utcToDOSDateTime(t time.Time) (date, dosTime uint16) {
	t = t.UTC()
	year := t.Year()
	if year < 1980 {
		year = 1980
		t = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if year > 2107 {
		year = 2107
		t = time.Date(2107, time.December, 31, 23, 59, 58, 0, time.UTC)
	}
	date = uint16(year-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	dosTime = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, dosTime
}

// dosDateTimeToLocal converts a parsed record's UTC timestamp back to the
// host's local time zone.
func dosDateTimeToLocal(date, dosTime uint16) time.Time {
	return dosDateTimeToUTC(date, dosTime).Local()
}

// localToDOSDateTime converts a local time.Time to UTC before encoding, so
// round tripping through a record preserves the local wall-clock time.
func localToDOSDateTime(t time.Time) (date, dosTime uint16) {
	return utcToDOSDateTime(t.UTC())
}
