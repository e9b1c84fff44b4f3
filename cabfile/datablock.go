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
	"io"
)

// maxBlockUncompressed is the hard cap on a single data block's uncompressed
// length, independent of compression choice.
const maxBlockUncompressed = 32768

// dataBlock is one CFDATA record: a header followed by a compressed payload.
type dataBlock struct {
	checksum   uint32
	cbData     uint16 // compressed length
	cbUncomp   uint16 // uncompressed length; 0 only in spanning situations
	reserved   []byte
	payloadOff int64 // stream offset of the payload, derived, not stored
	uncompOff  uint32 // logical uncompressed offset within the folder, derived
}

// parseDataBlockHeader parses a CFDATA header at the reader's current
// position (which must be seekable) and records the payload's start offset.
// It does not consume the payload.
func parseDataBlockHeader(r io.ReadSeeker, dataReservedSize int) (*dataBlock, error) {
	checksum, err := readU32(r)
	if err != nil {
		return nil, err
	}
	cbData, err := readU16(r)
	if err != nil {
		return nil, err
	}
	cbUncomp, err := readU16(r)
	if err != nil {
		return nil, err
	}
	reserved, err := readReserved(r, dataReservedSize)
	if err != nil {
		return nil, err
	}
	off, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &dataBlock{
		checksum:   checksum,
		cbData:     cbData,
		cbUncomp:   cbUncomp,
		reserved:   reserved,
		payloadOff: off,
	}, nil
}

// readPayload seeks to the block's payload and reads exactly its cbData
// bytes, via exactReader so a short underlying read surfaces as
// io.ErrUnexpectedEOF rather than silently returning a truncated buffer.
func (d *dataBlock) readPayload(r io.ReadSeeker) ([]byte, error) {
	if _, err := r.Seek(d.payloadOff, io.SeekStart); err != nil {
		return nil, err
	}
	er := exactReader(r, int64(d.cbData))
	defer er.Close()
	buf := make([]byte, d.cbData)
	if _, err := io.ReadFull(er, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readUncompressed reads the payload and runs it through the given
// decompressor, verifying the declared uncompressed length.
func (d *dataBlock) readUncompressed(r io.ReadSeeker, dec Decompressor) ([]byte, error) {
	payload, err := d.readPayload(r)
	if err != nil {
		return nil, err
	}
	out, err := dec.Decompress(payload, int(d.cbUncomp))
	if err != nil {
		return nil, err
	}
	if d.cbUncomp != 0 && len(out) != int(d.cbUncomp) {
		return nil, newErr(ErrCorruptedData, "decompressed length does not match declared uncompressed length")
	}
	return out, nil
}

// writeDataBlock compresses data, builds the header and writes header+payload.
// The checksum field is always written as zero; this core never computes it.
func writeDataBlock(w io.Writer, data []byte, comp Compressor, dataReservedSize int) error {
	compressed, err := comp.Compress(data)
	if err != nil {
		return err
	}
	if len(compressed) > 0xFFFF || len(data) > 0xFFFF {
		return newErr(ErrCorruptedData, "data block exceeds 65535 bytes")
	}
	if err := writeU32(w, 0); err != nil {
		return err
	}
	if err := writeU16(w, uint16(len(compressed))); err != nil {
		return err
	}
	if err := writeU16(w, uint16(len(data))); err != nil {
		return err
	}
	if dataReservedSize > 0 {
		if _, err := w.Write(make([]byte, dataReservedSize)); err != nil {
			return err
		}
	}
	_, err = w.Write(compressed)
	return err
}

// isSpanning reports whether this block's uncompressed content continues
// into the next cabinet in a set. Reading such a block is
// not implemented in this restricted core.
func (d *dataBlock) isSpanning() bool { return d.cbUncomp == 0 }
