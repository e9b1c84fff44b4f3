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
	"encoding/binary"
	"io"
)

// readU16 reads a little-endian uint16.
func readU16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// readU32 reads a little-endian uint32.
func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// readCString reads bytes up to and including a terminating NUL. Reading
// stops at EOF just as it does at NUL: a premature EOF yields the bytes
// accumulated so far rather than an error. This mirrors the on-disk format
// guarantee that well-formed input always terminates with a NUL; callers
// parsing untrusted input are expected to validate the surrounding record
// length instead of relying on this function to reject truncation. The
// name-is-UTF-8 attribute bit (when present on the owning record) selects
// no different byte handling here -- both encodings are valid Go strings --
// it only governs what writeCString does on emission.
func readCString(r io.Reader) (string, error) {
	var buf []byte
	one := make([]byte, 1)
	for {
		n, err := r.Read(one)
		if n == 1 {
			if one[0] == 0 {
				break
			}
			buf = append(buf, one[0])
		}
		if err != nil {
			break
		}
	}
	return string(buf), nil
}

// writeCString writes s followed by a NUL terminator, encoding it as ASCII
// if every byte is <= 0x7F and as UTF-8 otherwise. It reports which encoding
// was used so the caller can set the name-is-UTF-8 attribute bit.
func writeCString(w io.Writer, s string) (usedUTF8 bool, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			usedUTF8 = true
			break
		}
	}
	if _, err := io.WriteString(w, s); err != nil {
		return usedUTF8, err
	}
	_, err = w.Write([]byte{0})
	return usedUTF8, err
}

// readReserved reads and discards (but returns) n reserved bytes.
func readReserved(r io.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
