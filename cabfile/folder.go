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
	"context"
	"io"
	"os"
	"strings"
)

// maxFilesPerFolder and maxBlocksPerFolder are the 16-bit record-count caps
// spec.
const (
	maxFilesPerFolder  = 65535
	maxBlocksPerFolder = 65535
)

// Folder is one CFFOLDER record: a shared compression instance and data
// block sequence for a set of files.
type Folder struct {
	// Index is this folder's position in the owning Cabinet's Folders slice.
	Index int

	compressionType CompressionType
	reserved        []byte

	// coffCabStart and dataBlockCount are the on-disk fields; kept in sync
	// with blocks only after ensureBlocksLoaded or a Save pass.
	coffCabStart   uint32
	dataBlockCount uint16

	// headerPos is the stream offset where this folder's CFFOLDER record
	// begins, recorded during Open/Save so Save can patch it in place.
	headerPos int64

	// dataReservedSize is the cabinet-wide per-block reserved area size
	// (CFHEADER.cbCFData), needed whenever this folder's blocks are parsed.
	dataReservedSize int

	// files are in ascending uncompressed-offset order.
	files []*File

	blocks       []*dataBlock
	blocksLoaded bool

	reader *folderReader
}

// uncompressedSize returns the sum of this folder's files' uncompressed
// sizes -- the folder's logical uncompressed range is [0, uncompressedSize).
func (fo *Folder) uncompressedSize() uint64 {
	var total uint64
	for _, f := range fo.files {
		total += uint64(f.UncompressedSize)
	}
	return total
}

func (fo *Folder) findFile(name string) *File {
	for _, f := range fo.files {
		if f.sameName(name) {
			return f
		}
	}
	return nil
}

// addFile appends f to this folder, assigning its uncompressed offset as the
// running sum of the folder's existing files, preserving ascending order.
func (fo *Folder) addFile(f *File) {
	f.uoffFolderStart = uint32(fo.uncompressedSize())
	f.folderIndex = fo.Index
	fo.files = append(fo.files, f)
	if fo.reader != nil {
		fo.reader.index[strings.ToLower(f.Name)] = f
	}
}

// removeFile removes every file matching name (case-insensitive) and
// reports whether at least one was removed.
func (fo *Folder) removeFile(name string) bool {
	removed := false
	kept := fo.files[:0]
	for _, f := range fo.files {
		if f.sameName(name) {
			removed = true
			if fo.reader != nil {
				delete(fo.reader.index, strings.ToLower(f.Name))
			}
			continue
		}
		kept = append(kept, f)
	}
	fo.files = kept
	return removed
}

// renameFile renames the first file matching oldName (case-insensitive) to
// newName, updating the streaming reader's index via its rename hook if the
// reader has already been created.
func (fo *Folder) renameFile(oldName, newName string) bool {
	f := fo.findFile(oldName)
	if f == nil {
		return false
	}
	if fo.reader != nil {
		fo.reader.rename(f.Name, newName)
	}
	f.Name = newName
	return true
}

// parseFolderHeader parses one CFFOLDER record at the reader's current
// position, recording that position for later Save patching.
func parseFolderHeader(r io.ReadSeeker, index int, folderReservedSize int) (*Folder, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	coffCabStart, err := readU32(r)
	if err != nil {
		return nil, err
	}
	cCFData, err := readU16(r)
	if err != nil {
		return nil, err
	}
	typeCompress, err := readU16(r)
	if err != nil {
		return nil, err
	}
	reserved, err := readReserved(r, folderReservedSize)
	if err != nil {
		return nil, err
	}
	return &Folder{
		Index:           index,
		coffCabStart:    coffCabStart,
		dataBlockCount:  cCFData,
		compressionType: CompressionType(typeCompress),
		reserved:        reserved,
		headerPos:       pos,
	}, nil
}

// writeFolderHeaderPlaceholder writes a CFFOLDER record with the given
// compression type and zeroed coffCabStart/dataBlockCount, recording the
// header's stream position so Save can patch it after data blocks are
// written ("remember stream position, patch later").
func writeFolderHeaderPlaceholder(w io.WriteSeeker, fo *Folder) error {
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	fo.headerPos = pos
	if err := writeU32(w, 0); err != nil {
		return err
	}
	if err := writeU16(w, 0); err != nil {
		return err
	}
	if err := writeU16(w, uint16(fo.compressionType)); err != nil {
		return err
	}
	if len(fo.reserved) > 0 {
		if _, err := w.Write(fo.reserved); err != nil {
			return err
		}
	}
	return nil
}

// patchFolderHeader seeks back to fo.headerPos and rewrites coffCabStart and
// dataBlockCount now that the real values are known.
func patchFolderHeader(w io.WriteSeeker, fo *Folder, coffCabStart uint32, blockCount uint16) error {
	cur, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.Seek(fo.headerPos, io.SeekStart); err != nil {
		return err
	}
	if err := writeU32(w, coffCabStart); err != nil {
		return err
	}
	if err := writeU16(w, blockCount); err != nil {
		return err
	}
	_, err = w.Seek(cur, io.SeekStart)
	return err
}

// ensureBlocksLoaded performs the lazy Unread->Loaded transition: walks
// from coffCabStart and parses dataBlockCount block
// headers, accumulating each block's uncompressed start offset.
func (fo *Folder) ensureBlocksLoaded(r io.ReadSeeker) error {
	if fo.blocksLoaded {
		return nil
	}
	if _, err := r.Seek(int64(fo.coffCabStart), io.SeekStart); err != nil {
		return err
	}
	var uncompOff uint32
	blocks := make([]*dataBlock, 0, fo.dataBlockCount)
	for i := uint16(0); i < fo.dataBlockCount; i++ {
		b, err := parseDataBlockHeader(r, fo.dataReservedSize)
		if err != nil {
			return newErr(ErrTruncatedStream, "data block header").withIndex(int(i)).withCause(err)
		}
		b.uncompOff = uncompOff
		uncompOff += uint32(b.cbUncomp)
		if _, err := r.Seek(int64(b.cbData), io.SeekCurrent); err != nil {
			return newErr(ErrTruncatedStream, "data block payload").withIndex(int(i)).withCause(err)
		}
		blocks = append(blocks, b)
	}
	fo.blocks = blocks
	fo.blocksLoaded = true
	return nil
}

func (fo *Folder) codec() (Codec, error) {
	c, ok := lookupCodec(fo.compressionType)
	if !ok {
		return nil, newErr(ErrUnsupportedCompression, "folder compression type has no registered codec").withIndex(fo.Index)
	}
	return c, nil
}

// blockForOffset returns the index of the block whose uncompressed range
// [start, start+len) contains off, using the stricter exclusive-upper-bound
// comparison.
func (fo *Folder) blockForOffset(off uint32) int {
	for i, b := range fo.blocks {
		start := b.uncompOff
		end := start + uint32(b.cbUncomp)
		if off >= start && off < end {
			return i
		}
		if b.cbUncomp == 0 && off == start {
			return i
		}
	}
	return -1
}

// folderReader is the streaming uncompressed reader. It
// caches the decompressed block currently under the cursor and exposes a
// rename hook so Move can keep its name index in sync without forcing a
// full re-scan of the folder's files.
type folderReader struct {
	folder *Folder
	src    io.ReadSeeker
	index  map[string]*File

	cachedBlockIdx  int
	cachedBlockData []byte
}

func (fo *Folder) ensureReader(src io.ReadSeeker) *folderReader {
	if fo.reader != nil {
		return fo.reader
	}
	idx := make(map[string]*File, len(fo.files))
	for _, f := range fo.files {
		idx[strings.ToLower(f.Name)] = f
	}
	fo.reader = &folderReader{folder: fo, src: src, index: idx, cachedBlockIdx: -1}
	return fo.reader
}

func (fr *folderReader) rename(oldName, newName string) {
	key := strings.ToLower(oldName)
	f, ok := fr.index[key]
	if !ok {
		return
	}
	delete(fr.index, key)
	fr.index[strings.ToLower(newName)] = f
}

// readRange copies up to len(buf) bytes starting at the file's relative
// cursor into buf, decompressing and caching blocks as the cursor crosses
// them. It returns (0, nil) once the file's full length has been delivered.
func (fr *folderReader) readRange(ctx context.Context, name string, cursor uint32, buf []byte) (int, error) {
	if err := checkCancelled(ctx); err != nil {
		return 0, err
	}
	f, ok := fr.index[strings.ToLower(name)]
	if !ok {
		f = fr.folder.findFile(name)
		if f == nil {
			return 0, newErr(ErrTruncatedData, "file not found in folder for streaming read")
		}
	}
	if cursor >= f.UncompressedSize {
		return 0, nil
	}
	absOff := f.uoffFolderStart + cursor
	remaining := f.UncompressedSize - cursor

	blockIdx := fr.folder.blockForOffset(absOff)
	if blockIdx < 0 {
		return 0, newErr(ErrTruncatedData, "no data block covers the requested offset")
	}
	if blockIdx != fr.cachedBlockIdx {
		b := fr.folder.blocks[blockIdx]
		if b.isSpanning() {
			return 0, newErr(ErrCorruptedData, "spanning data block encountered outside a chain-free cabinet")
		}
		codec, err := fr.folder.codec()
		if err != nil {
			return 0, err
		}
		data, err := b.readUncompressed(fr.src, codec)
		if err != nil {
			return 0, err
		}
		fr.cachedBlockData = data
		fr.cachedBlockIdx = blockIdx
	}
	block := fr.folder.blocks[blockIdx]
	inBlockOff := absOff - block.uncompOff
	if int(inBlockOff) > len(fr.cachedBlockData) {
		return 0, newErr(ErrTruncatedData, "cached block shorter than declared uncompressed length")
	}
	avail := uint32(len(fr.cachedBlockData)) - inBlockOff
	n := uint32(len(buf))
	if n > avail {
		n = avail
	}
	if n > remaining {
		n = remaining
	}
	copy(buf, fr.cachedBlockData[inBlockOff:inBlockOff+n])
	return int(n), nil
}

// checkCancelled reports a Cancelled error if ctx has been cancelled.
func checkCancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return newErr(ErrCancelled, "operation cancelled").withCause(ctx.Err())
	default:
		return nil
	}
}

// ProgressFunc reports bytes transferred for the file currently being
// processed.
type ProgressFunc func(relPath string, bytesDone int)

// extractFileFromDataBlocks streams f's uncompressed bytes into destPath in
// maxBlockUncompressed-sized chunks, then applies timestamps
// and attributes.
func (fo *Folder) extractFileFromDataBlocks(ctx context.Context, src io.ReadSeeker, f *File, destPath string, progress ProgressFunc) error {
	if err := fo.ensureBlocksLoaded(src); err != nil {
		return err
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	reader := fo.ensureReader(src)
	buf := make([]byte, maxBlockUncompressed)
	var cursor uint32
	for cursor < f.UncompressedSize {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		n, err := reader.readRange(ctx, f.Name, cursor, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return newErr(ErrTruncatedData, "folder exhausted before file was fully read")
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return err
		}
		cursor += uint32(n)
		if progress != nil {
			progress(f.Name, n)
		}
	}
	if err := out.Close(); err != nil {
		return err
	}
	modTime := f.ModTime()
	if err := os.Chtimes(destPath, modTime, modTime); err != nil {
		return err
	}
	_, err = applyHostAttribs(destPath, f.Attribs)
	return err
}
