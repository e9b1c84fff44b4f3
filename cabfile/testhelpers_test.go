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
	"bytes"
	"fmt"
	"io"
	"os"
)

func writeFileBytes(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

// seekableBuffer adapts a *bytes.Buffer to io.WriteSeeker (matching how Save
// uses its writer: sequential writes plus the occasional seek-back-and-
// forward to patch an already-written header). A write at a position before
// the end overwrites bytes in place; a write at or past the end appends at
// the current end.
type seekableBuffer struct {
	*bytes.Buffer
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	b := s.Buffer.Bytes()
	if int(s.pos) < len(b) {
		n := copy(b[s.pos:], p)
		s.pos += int64(n)
		if n < len(p) {
			s.Buffer.Write(p[n:])
			s.pos += int64(len(p) - n)
		}
		return len(p), nil
	}
	n, err := s.Buffer.Write(p)
	s.pos += int64(n)
	return n, err
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.Buffer.Len()) + offset
	default:
		return 0, fmt.Errorf("seekableBuffer: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("seekableBuffer: negative position")
	}
	s.pos = newPos
	return s.pos, nil
}
