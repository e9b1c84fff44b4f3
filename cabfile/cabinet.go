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

// Package cabfile implements a read/modify/write codec for the Store
// (uncompressed), single-cabinet subset of the Microsoft Cabinet (.cab) file
// format.
//
// Normative reference is [MS-CAB] for the Cabinet file format.
//
// [MS-CAB]: http://download.microsoft.com/download/4/d/a/4da14f27-b4ef-4170-a6e6-5b1ef85b1baa/[ms-cab].pdf
package cabfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

const (
	flagPrevCabinet    uint16 = 1 << iota // 0x0001
	flagNextCabinet                       // 0x0002
	flagReservePresent                    // 0x0004
)

const (
	maxCabinetReservedSize = 60000
	maxTotalFiles          = 65535
	maxTotalFolders        = 65535
	maxCabinetSize         = 0x7FFFFFFF // 2147483647
	maxNameFieldLen        = 256
)

var signature = [4]byte{'M', 'S', 'C', 'F'}

// Cabinet provides read/modify/write access to a single (non-spanning)
// Microsoft Cabinet file in its Store (uncompressed) subset.
type Cabinet struct {
	// Path is the host filesystem path this cabinet was opened from (or will
	// be saved to).
	Path string

	r *os.File // nil once closed or if the cabinet never existed on disk

	setID        uint16
	cabinetIndex uint16
	flags        uint16

	cabinetReservedSize uint16
	folderReservedSize  uint8
	dataReservedSize    uint8
	cabinetReserved     []byte

	prevCabinetName, prevDiskName string
	nextCabinetName, nextDiskName string

	// Folders are this cabinet's CFFOLDER records, in on-disk order.
	Folders []*Folder

	// orphanFiles holds CFFILE records whose folder index is a spanning
	// sentinel or otherwise out of range: parsed and preserved, but not
	// owned by any Folder and not reachable through normal operations
	// (folder-index sentinels).
	orphanFiles []*File

	totalFiles int
}

// Open opens the cabinet at path for reading. If path does not exist, Open
// returns a fresh, empty Cabinet bound to that path (no read handle) rather
// than an error, so callers can build a brand-new cabinet from scratch and
// Save it later.
func Open(path string) (*Cabinet, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Cabinet{Path: path}, nil
	}
	if err != nil {
		return nil, err
	}
	c := &Cabinet{Path: path, r: f}
	if err := c.parseHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the cabinet's read handle, if any.
func (c *Cabinet) Close() error {
	if c.r == nil {
		return nil
	}
	err := c.r.Close()
	c.r = nil
	return err
}

func (c *Cabinet) parseHeader() error {
	r := c.r
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return newErr(ErrTruncatedStream, "cabinet header").withPath(c.Path).withCause(err)
	}
	if !bytes.Equal(sig[:], signature[:]) {
		return newErr(ErrUnsupportedFormat, "bad cabinet signature").withPath(c.Path)
	}
	if _, err := readU32(r); err != nil { // reserved1
		return err
	}
	if _, err := readU32(r); err != nil { // cbCabinet
		return err
	}
	if _, err := readU32(r); err != nil { // reserved2
		return err
	}
	coffFiles, err := readU32(r)
	if err != nil {
		return err
	}
	if _, err := readU32(r); err != nil { // reserved3
		return err
	}
	var verMinor, verMajor [1]byte
	if _, err := io.ReadFull(r, verMinor[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, verMajor[:]); err != nil {
		return err
	}
	if verMajor[0] != 1 || verMinor[0] != 3 {
		return newErr(ErrUnsupportedFormat, "unsupported cabinet format version").withPath(c.Path)
	}
	cFolders, err := readU16(r)
	if err != nil {
		return err
	}
	cFiles, err := readU16(r)
	if err != nil {
		return err
	}
	flags, err := readU16(r)
	if err != nil {
		return err
	}
	c.flags = flags
	setID, err := readU16(r)
	if err != nil {
		return err
	}
	c.setID = setID
	cabinetIndex, err := readU16(r)
	if err != nil {
		return err
	}
	c.cabinetIndex = cabinetIndex

	if flags&flagReservePresent != 0 {
		cabRes, err := readU16(r)
		if err != nil {
			return err
		}
		if cabRes > maxCabinetReservedSize {
			return newErr(ErrUnsupportedFormat, "cabinet reserved area too large").withPath(c.Path)
		}
		c.cabinetReservedSize = cabRes
		var folderRes, dataRes [1]byte
		if _, err := io.ReadFull(r, folderRes[:]); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, dataRes[:]); err != nil {
			return err
		}
		c.folderReservedSize = folderRes[0]
		c.dataReservedSize = dataRes[0]
		if cabRes > 0 {
			reserved, err := readReserved(r, int(cabRes))
			if err != nil {
				return err
			}
			c.cabinetReserved = reserved
		}
	}
	if flags&flagPrevCabinet != 0 {
		name, err := readCString(r)
		if err != nil {
			return err
		}
		disk, err := readCString(r)
		if err != nil {
			return err
		}
		c.prevCabinetName = name
		c.prevDiskName = disk
	}
	if flags&flagNextCabinet != 0 {
		name, err := readCString(r)
		if err != nil {
			return err
		}
		disk, err := readCString(r)
		if err != nil {
			return err
		}
		c.nextCabinetName = name
		c.nextDiskName = disk
		return newErr(ErrMultiCabinetUnsupported, "cabinet references a next cabinet in a set").withPath(c.Path)
	}

	folders := make([]*Folder, 0, cFolders)
	for i := uint16(0); i < cFolders; i++ {
		fo, err := parseFolderHeader(r, int(i), int(c.folderReservedSize))
		if err != nil {
			return newErr(ErrTruncatedStream, "folder header").withPath(c.Path).withIndex(int(i)).withCause(err)
		}
		fo.dataReservedSize = int(c.dataReservedSize)
		folders = append(folders, fo)
	}
	c.Folders = folders

	if _, err := r.Seek(int64(coffFiles), io.SeekStart); err != nil {
		return newErr(ErrTruncatedStream, "seek to file entries").withPath(c.Path).withCause(err)
	}
	for i := uint16(0); i < cFiles; i++ {
		f, err := parseFileHeader(r)
		if err != nil {
			return newErr(ErrTruncatedStream, "file header").withPath(c.Path).withIndex(int(i)).withCause(err)
		}
		c.placeFile(f)
		c.totalFiles++
	}
	return nil
}

// placeFile assigns a freshly-parsed File to its owning Folder by its raw
// iFolder field, after bounds-checking; spanning sentinels and out-of-range
// indices go to orphanFiles instead.
func (c *Cabinet) placeFile(f *File) {
	if f.iFolder >= iFolderContinuedFromPrev || int(f.iFolder) >= len(c.Folders) {
		c.orphanFiles = append(c.orphanFiles, f)
		return
	}
	fo := c.Folders[f.iFolder]
	f.folderIndex = fo.Index
	fo.files = append(fo.files, f)
}

// FileList returns the relative paths of every file in the cabinet, across
// all folders, in folder-then-offset order.
func (c *Cabinet) FileList() []string {
	var names []string
	for _, fo := range c.Folders {
		for _, f := range fo.files {
			names = append(names, f.Name)
		}
	}
	return names
}

// totalFileCount returns the current number of files across all folders.
func (c *Cabinet) totalFileCount() int {
	n := 0
	for _, fo := range c.Folders {
		n += len(fo.files)
	}
	return n
}

// FileSize returns the uncompressed size of relPath (case-insensitive) and
// whether it was found; useful for callers estimating transfer totals ahead
// of ExtractToFile.
func (c *Cabinet) FileSize(relPath string) (uint32, bool) {
	f, _ := c.findFile(relPath)
	if f == nil {
		return 0, false
	}
	return f.UncompressedSize, true
}

// findFile returns the file and owning folder matching rel path
// (case-insensitive), or (nil, nil) if not found.
func (c *Cabinet) findFile(rel string) (*File, *Folder) {
	for _, fo := range c.Folders {
		if f := fo.findFile(rel); f != nil {
			return f, fo
		}
	}
	return nil, nil
}

// AddExternalFile adds (or replaces) relPath in the cabinet, sourcing its
// bytes from sourcePath on the host filesystem at Save time.
func (c *Cabinet) AddExternalFile(sourcePath, relPath string) error {
	fi, err := os.Stat(sourcePath)
	if err != nil {
		return newErr(ErrMissingSource, "external source file not found").withPath(c.Path).withCause(err)
	}
	if fi.Size() > maxUncompressedSize {
		return newErr(ErrFileTooLarge, "external source file exceeds maximum uncompressed size").withPath(c.Path)
	}

	replacing := false
	for _, fo := range c.Folders {
		if fo.removeFile(relPath) {
			replacing = true
		}
	}
	if !replacing && c.totalFileCount()+1 > maxTotalFiles {
		return newErr(ErrTooManyFiles, "adding this file would exceed the 65535 file limit").withPath(c.Path)
	}

	f := &File{
		UncompressedSize: uint32(fi.Size()),
		Name:             relPath,
		AbsolutePath:     sourcePath,
		Attribs:          attribsFromHostInfo(fi),
	}
	f.SetModTime(fi.ModTime())

	fo := c.selectFolderForAdd(uint64(fi.Size()))
	fo.addFile(f)
	return nil
}

// selectFolderForAdd implements the folder-selection policy:
// the first folder in index order whose post-addition uncompressed size and
// file count stay within bounds, or a freshly appended empty folder.
func (c *Cabinet) selectFolderForAdd(addedSize uint64) *Folder {
	for _, fo := range c.Folders {
		if fo.uncompressedSize()+addedSize <= maxUncompressedSize && len(fo.files)+1 <= maxFilesPerFolder {
			return fo
		}
	}
	fo := &Folder{
		Index:            len(c.Folders),
		compressionType:  CompressionNone,
		dataReservedSize: int(c.dataReservedSize),
		blocksLoaded:     true, // no on-disk blocks yet
	}
	c.Folders = append(c.Folders, fo)
	return fo
}

// ExtractToFile writes relPath's uncompressed content to destPath. It
// returns (false, nil) if relPath is not found -- not-found is not an error.
// If the File record's AttribHidden bit is set, the written file is renamed
// to a dot-prefixed basename beside destPath (unless destPath is already
// dot-prefixed), mirroring host-hidden conventions; callers that need the
// final on-disk name back should dot-prefix destPath themselves up front.
func (c *Cabinet) ExtractToFile(ctx context.Context, relPath, destPath string, progress ProgressFunc) (bool, error) {
	f, fo := c.findFile(relPath)
	if f == nil {
		return false, nil
	}
	if c.r == nil {
		return false, newErr(ErrTruncatedStream, "cabinet has no open read handle").withPath(c.Path)
	}
	if err := fo.extractFileFromDataBlocks(ctx, c.r, f, destPath, progress); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteFile removes every file matching relPath (case-insensitive) across
// all folders. It returns true iff at least one was removed.
func (c *Cabinet) DeleteFile(relPath string) bool {
	removed := false
	for _, fo := range c.Folders {
		if fo.removeFile(relPath) {
			removed = true
		}
	}
	return removed
}

// MoveFile renames oldPath to newPath in place (same folder). It returns
// true iff a matching file was found.
func (c *Cabinet) MoveFile(oldPath, newPath string) bool {
	for _, fo := range c.Folders {
		if fo.renameFile(oldPath, newPath) {
			return true
		}
	}
	return false
}

// SaveOptions configures a Save call.
type SaveOptions struct {
	// Compression selects the compression type assigned to every folder on
	// Save. Only CompressionNone is implemented by this core; anything else
	// fails with ErrUnsupportedCompression.
	Compression CompressionType
	Progress    ProgressFunc
}

// Save writes a full new cabinet file via a temporary sibling file and
// atomically replaces the original.
func (c *Cabinet) Save(ctx context.Context, opts SaveOptions) error {
	if _, ok := lookupCodec(opts.Compression); !ok {
		return newErr(ErrUnsupportedCompression, "requested compression type has no registered codec").withPath(c.Path)
	}
	for _, fo := range c.Folders {
		if _, ok := lookupCodec(fo.compressionType); !ok {
			return newErr(ErrUnsupportedCompression, "folder compression type has no registered codec").withPath(c.Path).withIndex(fo.Index)
		}
	}
	for _, fo := range c.Folders {
		fo.compressionType = opts.Compression
	}
	comp, _ := lookupCodec(opts.Compression)

	tmp, err := renameio.TempFile(filepath.Dir(c.Path), c.Path)
	if err != nil {
		return err
	}
	defer tmp.Cleanup()

	if err := c.writeTo(ctx, tmp, comp, opts.Progress); err != nil {
		return err
	}

	if c.r != nil {
		c.r.Close()
		c.r = nil
	}
	if err := tmp.CloseAtomicallyReplace(); err != nil {
		return err
	}
	f, err := os.Open(c.Path)
	if err == nil {
		c.r = f
		for _, fo := range c.Folders {
			fo.blocksLoaded = false
			fo.blocks = nil
			fo.reader = nil
			var running uint32
			for _, file := range fo.files {
				file.uoffFolderStart = running
				file.AbsolutePath = ""
				running += file.UncompressedSize
			}
		}
	}
	return nil
}

// positionWriter wraps an io.Writer (really an io.WriteSeeker over the
// temp file) and tracks the current write position: writes advance it and
// seeks set it, adapting martin-sucha-zipserve/writer.go's countWriter idiom.
type positionWriter struct {
	w     io.WriteSeeker
	count int64
}

func (w *positionWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.count += int64(n)
	return n, err
}

func (w *positionWriter) Seek(offset int64, whence int) (int64, error) {
	pos, err := w.w.Seek(offset, whence)
	if err == nil {
		w.count = pos
	}
	return pos, err
}

func (c *Cabinet) writeTo(ctx context.Context, out io.WriteSeeker, comp Compressor, progress ProgressFunc) error {
	pw := &positionWriter{w: out}

	headerLen := 36
	if c.flags&flagReservePresent != 0 {
		headerLen += 4 + int(c.cabinetReservedSize)
	}
	if c.flags&flagPrevCabinet != 0 {
		headerLen += len(c.prevCabinetName) + 1 + len(c.prevDiskName) + 1
	}
	folderHeaderLen := 8 + int(c.folderReservedSize)
	firstFileEntryOffset := headerLen + folderHeaderLen*len(c.Folders)

	if err := c.writeHeaderPlaceholder(pw, uint32(firstFileEntryOffset)); err != nil {
		return err
	}
	for _, fo := range c.Folders {
		if err := writeFolderHeaderPlaceholder(pw, fo); err != nil {
			return err
		}
	}

	type fileSlot struct {
		f        *File
		folder   *Folder
		uoff     uint32
		folderID uint16
	}
	var slots []fileSlot
	for _, fo := range c.Folders {
		var running uint32
		for _, f := range fo.files {
			slots = append(slots, fileSlot{f: f, folder: fo, uoff: running, folderID: uint16(fo.Index)})
			running += f.UncompressedSize
		}
	}
	for _, s := range slots {
		if err := writeFileHeader(pw, s.f, s.uoff, s.folderID); err != nil {
			return err
		}
	}

	for _, fo := range c.Folders {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		var src io.ReadSeeker
		if c.r != nil {
			src = c.r
		}
		coffCabStart, blockCount, err := writeFolderDataBlocks(ctx, fo, pw, src, comp, progress)
		if err != nil {
			return err
		}
		if err := patchFolderHeader(pw, fo, coffCabStart, blockCount); err != nil {
			return err
		}
		fo.coffCabStart = coffCabStart
		fo.dataBlockCount = blockCount
	}

	if pw.count > maxCabinetSize {
		return newErr(ErrCabinetTooLarge, "cabinet size exceeds 2147483647 bytes").withPath(c.Path)
	}
	if err := c.patchCabinetSize(pw, uint32(pw.count)); err != nil {
		return err
	}
	return nil
}

func (c *Cabinet) writeHeaderPlaceholder(w io.Writer, firstFileEntryOffset uint32) error {
	if _, err := w.Write(signature[:]); err != nil {
		return err
	}
	if err := writeU32(w, 0); err != nil { // reserved1
		return err
	}
	if err := writeU32(w, 0); err != nil { // cbCabinet placeholder, patched later
		return err
	}
	if err := writeU32(w, 0); err != nil { // reserved2
		return err
	}
	if err := writeU32(w, firstFileEntryOffset); err != nil {
		return err
	}
	if err := writeU32(w, 0); err != nil { // reserved3
		return err
	}
	if _, err := w.Write([]byte{3, 1}); err != nil { // versionMinor=3, versionMajor=1
		return err
	}
	if err := writeU16(w, uint16(len(c.Folders))); err != nil {
		return err
	}
	if err := writeU16(w, uint16(c.totalFileCount())); err != nil {
		return err
	}
	flags := c.flags &^ flagNextCabinet // this core never emits a next-cabinet chain
	if err := writeU16(w, flags); err != nil {
		return err
	}
	if err := writeU16(w, c.setID); err != nil {
		return err
	}
	if err := writeU16(w, c.cabinetIndex); err != nil {
		return err
	}
	if flags&flagReservePresent != 0 {
		if err := writeU16(w, c.cabinetReservedSize); err != nil {
			return err
		}
		if _, err := w.Write([]byte{c.folderReservedSize, c.dataReservedSize}); err != nil {
			return err
		}
		if len(c.cabinetReserved) > 0 {
			if _, err := w.Write(c.cabinetReserved); err != nil {
				return err
			}
		}
	}
	if flags&flagPrevCabinet != 0 {
		if err := writeNameField(w, c.prevCabinetName); err != nil {
			return err
		}
		if err := writeNameField(w, c.prevDiskName); err != nil {
			return err
		}
	}
	return nil
}

func writeNameField(w io.Writer, name string) error {
	if len(name)+1 >= maxNameFieldLen {
		return newErr(ErrNameTooLong, "cabinet name field including NUL terminator must be < 256 bytes")
	}
	_, err := io.WriteString(w, name+"\x00")
	return err
}

func (c *Cabinet) patchCabinetSize(w io.WriteSeeker, size uint32) error {
	if _, err := w.Seek(8, io.SeekStart); err != nil {
		return err
	}
	return writeU32(w, size)
}
