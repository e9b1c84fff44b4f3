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

import "io"

// exactReader returns a ReadCloser that reads exactly n bytes from r, then
// returns io.EOF. It returns io.ErrUnexpectedEOF if the underlying reader
// returns EOF before n bytes have been read.
func exactReader(r io.Reader, n int64) io.ReadCloser { return &exactReaderImpl{r: r, n: n} }

type exactReaderImpl struct {
	r io.Reader
	n int64
}

func (e *exactReaderImpl) Read(p []byte) (n int, err error) {
	if e.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > e.n {
		p = p[0:e.n]
	}
	n, err = e.r.Read(p)
	e.n -= int64(n)
	if err == io.EOF && e.n > 0 {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (e *exactReaderImpl) Close() error {
	_, err := io.Copy(io.Discard, e)
	return err
}
