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
	"errors"
	"testing"
)

func TestDataBlockRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 12345)
	var buf bytes.Buffer
	if err := writeDataBlock(&buf, data, storeCodec{}, 0); err != nil {
		t.Fatalf("writeDataBlock: %v", err)
	}

	r := bytes.NewReader(buf.Bytes())
	b, err := parseDataBlockHeader(r, 0)
	if err != nil {
		t.Fatalf("parseDataBlockHeader: %v", err)
	}
	if b.checksum != 0 {
		t.Fatalf("checksum = %#x, want 0 (never computed by this core)", b.checksum)
	}
	if int(b.cbData) != len(data) || int(b.cbUncomp) != len(data) {
		t.Fatalf("cbData=%d cbUncomp=%d, want both %d (store mode)", b.cbData, b.cbUncomp, len(data))
	}
	got, err := b.readUncompressed(r, storeCodec{})
	if err != nil {
		t.Fatalf("readUncompressed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("readUncompressed returned %d bytes, want %d identical bytes", len(got), len(data))
	}
}

func TestDataBlockRejectsOversizedPayload(t *testing.T) {
	data := make([]byte, 0x10000)
	var buf bytes.Buffer
	err := writeDataBlock(&buf, data, storeCodec{}, 0)
	var cabErr *Error
	if !errors.As(err, &cabErr) || cabErr.Kind != ErrCorruptedData {
		t.Fatalf("writeDataBlock(65536 bytes) = %v, want an ErrCorruptedData", err)
	}
}

func TestDataBlockVerifiesDecompressedLength(t *testing.T) {
	// A decompressor that lies about the output length should be caught.
	lying := lyingDecompressor{actual: []byte("short")}
	d := &dataBlock{cbUncomp: 99}
	var buf bytes.Buffer
	buf.WriteString("irrelevant payload bytes")
	d.payloadOff = 0
	d.cbData = uint16(buf.Len())

	_, err := d.readUncompressed(bytes.NewReader(buf.Bytes()), lying)
	var cabErr *Error
	if !errors.As(err, &cabErr) || cabErr.Kind != ErrCorruptedData {
		t.Fatalf("readUncompressed with mismatched length = %v, want ErrCorruptedData", err)
	}
}

type lyingDecompressor struct {
	actual []byte
}

func (l lyingDecompressor) Decompress(data []byte, uncompressedLen int) ([]byte, error) {
	return l.actual, nil
}

func TestIsSpanning(t *testing.T) {
	if (&dataBlock{cbUncomp: 0}).isSpanning() != true {
		t.Fatalf("isSpanning() = false for cbUncomp==0, want true")
	}
	if (&dataBlock{cbUncomp: 10}).isSpanning() != false {
		t.Fatalf("isSpanning() = true for cbUncomp!=0, want false")
	}
}
