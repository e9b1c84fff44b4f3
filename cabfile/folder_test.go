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
	"context"
	"errors"
	"testing"
)

// buildTestFolder writes one folder's worth of data blocks for the given
// file payloads (in order) directly into w, and returns an in-memory Folder
// wired up to read them back, mirroring what ensureBlocksLoaded would
// produce after a real Open.
func buildTestFolder(t *testing.T, w *bytes.Buffer, payloads map[string][]byte, order []string) *Folder {
	t.Helper()
	fo := &Folder{compressionType: CompressionNone}
	var uoff uint32
	for _, name := range order {
		data := payloads[name]
		fo.files = append(fo.files, &File{Name: name, UncompressedSize: uint32(len(data)), uoffFolderStart: uoff})
		uoff += uint32(len(data))
	}

	var all []byte
	for _, name := range order {
		all = append(all, payloads[name]...)
	}
	for len(all) > 0 {
		n := maxBlockUncompressed
		if n > len(all) {
			n = len(all)
		}
		if err := writeDataBlock(w, all[:n], storeCodec{}, 0); err != nil {
			t.Fatalf("writeDataBlock: %v", err)
		}
		all = all[n:]
	}
	return fo
}

func TestFolderStreamingReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := map[string][]byte{
		"a.txt": bytes.Repeat([]byte("A"), 100),
		"b.txt": bytes.Repeat([]byte("B"), 70000), // spans multiple data blocks
	}
	order := []string{"a.txt", "b.txt"}
	fo := buildTestFolder(t, &buf, payloads, order)
	fo.dataBlockCount = uint16((70100 + maxBlockUncompressed - 1) / maxBlockUncompressed)

	src := bytes.NewReader(buf.Bytes())
	if err := fo.ensureBlocksLoaded(src); err != nil {
		t.Fatalf("ensureBlocksLoaded: %v", err)
	}

	reader := fo.ensureReader(src)
	for _, name := range order {
		want := payloads[name]
		got := make([]byte, 0, len(want))
		f := fo.findFile(name)
		out := make([]byte, 4096)
		var cursor uint32
		for cursor < f.UncompressedSize {
			n, err := reader.readRange(context.Background(), name, cursor, out)
			if err != nil {
				t.Fatalf("readRange(%s): %v", name, err)
			}
			if n == 0 {
				t.Fatalf("readRange(%s) returned 0 bytes before the file was fully read", name)
			}
			got = append(got, out[:n]...)
			cursor += uint32(n)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("content for %s mismatched: got %d bytes, want %d", name, len(got), len(want))
		}
	}
}

func TestFolderRenameHookKeepsReaderInSync(t *testing.T) {
	var buf bytes.Buffer
	payloads := map[string][]byte{"old.txt": []byte("payload")}
	fo := buildTestFolder(t, &buf, payloads, []string{"old.txt"})
	fo.dataBlockCount = 1

	src := bytes.NewReader(buf.Bytes())
	if err := fo.ensureBlocksLoaded(src); err != nil {
		t.Fatalf("ensureBlocksLoaded: %v", err)
	}
	fo.ensureReader(src)

	if !fo.renameFile("old.txt", "new.txt") {
		t.Fatalf("renameFile did not find old.txt")
	}

	out := make([]byte, 16)
	n, err := fo.reader.readRange(context.Background(), "new.txt", 0, out)
	if err != nil {
		t.Fatalf("readRange under the new name: %v", err)
	}
	if !bytes.Equal(out[:n], payloads["old.txt"]) {
		t.Fatalf("readRange under the new name returned %q, want %q", out[:n], payloads["old.txt"])
	}
}

func TestFolderUncompressedSizeAndFileOffsets(t *testing.T) {
	fo := &Folder{}
	fo.addFile(&File{Name: "a", UncompressedSize: 10})
	fo.addFile(&File{Name: "b", UncompressedSize: 20})
	if got, want := fo.uncompressedSize(), uint64(30); got != want {
		t.Fatalf("uncompressedSize() = %d, want %d", got, want)
	}
	b := fo.findFile("b")
	if b == nil || b.uoffFolderStart != 10 {
		t.Fatalf("file b offset = %v, want 10", b)
	}
}

func TestFolderRemoveFile(t *testing.T) {
	fo := &Folder{}
	fo.addFile(&File{Name: "keep.txt"})
	fo.addFile(&File{Name: "drop.txt"})
	if !fo.removeFile("DROP.TXT") {
		t.Fatalf("removeFile (case-insensitive) did not find drop.txt")
	}
	if fo.findFile("drop.txt") != nil {
		t.Fatalf("drop.txt still present after removeFile")
	}
	if fo.findFile("keep.txt") == nil {
		t.Fatalf("keep.txt was removed by mistake")
	}
}

// TestReadRangeRejectsSpanningBlock hand-builds a CFDATA header with
// cbUncomp==0 (a block whose uncompressed content continues into a next
// cabinet this core never opens) and drives it through readRange, the
// same path ExtractToFile uses.
func TestReadRangeRejectsSpanningBlock(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("some bytes")
	if err := writeU32(&buf, 0); err != nil { // checksum
		t.Fatalf("writeU32(checksum): %v", err)
	}
	if err := writeU16(&buf, uint16(len(payload))); err != nil {
		t.Fatalf("writeU16(cbData): %v", err)
	}
	if err := writeU16(&buf, 0); err != nil { // cbUncomp == 0: spanning marker
		t.Fatalf("writeU16(cbUncomp): %v", err)
	}
	buf.Write(payload)

	fo := &Folder{compressionType: CompressionNone, dataBlockCount: 1}
	fo.files = append(fo.files, &File{Name: "x.txt", UncompressedSize: 5})

	src := bytes.NewReader(buf.Bytes())
	if err := fo.ensureBlocksLoaded(src); err != nil {
		t.Fatalf("ensureBlocksLoaded: %v", err)
	}

	reader := fo.ensureReader(src)
	out := make([]byte, 16)
	_, err := reader.readRange(context.Background(), "x.txt", 0, out)
	var cabErr *Error
	if !errors.As(err, &cabErr) || cabErr.Kind != ErrCorruptedData {
		t.Fatalf("readRange through a spanning block = %v, want ErrCorruptedData", err)
	}
}

func TestWriteFolderDataBlocksExternalProducer(t *testing.T) {
	dir := t.TempDir()
	srcPath := dir + "/src.bin"
	data := bytes.Repeat([]byte{0x7A}, 50000)
	if err := writeFileBytes(srcPath, data); err != nil {
		t.Fatalf("writeFileBytes: %v", err)
	}

	fo := &Folder{}
	fo.addFile(&File{Name: "ext.bin", UncompressedSize: uint32(len(data)), AbsolutePath: srcPath})

	var out bytes.Buffer
	ws := &seekableBuffer{Buffer: &out}
	coffCabStart, blockCount, err := writeFolderDataBlocks(context.Background(), fo, ws, nil, storeCodec{}, nil)
	if err != nil {
		t.Fatalf("writeFolderDataBlocks: %v", err)
	}
	if coffCabStart != 0 {
		t.Fatalf("coffCabStart = %d, want 0", coffCabStart)
	}
	wantBlocks := (len(data) + maxBlockUncompressed - 1) / maxBlockUncompressed
	if int(blockCount) != wantBlocks {
		t.Fatalf("blockCount = %d, want %d", blockCount, wantBlocks)
	}

	r := bytes.NewReader(out.Bytes())
	var total []byte
	for i := 0; i < wantBlocks; i++ {
		b, err := parseDataBlockHeader(r, 0)
		if err != nil {
			t.Fatalf("parseDataBlockHeader(%d): %v", i, err)
		}
		payload, err := b.readUncompressed(r, storeCodec{})
		if err != nil {
			t.Fatalf("readUncompressed(%d): %v", i, err)
		}
		total = append(total, payload...)
	}
	if !bytes.Equal(total, data) {
		t.Fatalf("round-tripped %d bytes, want %d identical bytes", len(total), len(data))
	}
}
