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
	"io"
	"os"
	"strings"
	"time"
)

// File attribute flags (CFFILE.attribs).
const (
	AttribReadOnly uint16 = 1 << iota
	AttribHidden
	AttribSystem
	_
	_
	AttribArchive
	AttribExec
	AttribNameIsUTF8
)

// Folder-index sentinels for files continued across a cabinet set.
// Parsed and preserved verbatim; never followed, never emitted.
const (
	iFolderContinuedFromPrev uint16 = 0xFFFD
	iFolderContinuedToNext   uint16 = 0xFFFE
	iFolderContinuedBoth     uint16 = 0xFFFF
)

// maxUncompressedSize is the hard cap on a folder's (and therefore a
// file's) uncompressed size: 0x7FFF8000.
const maxUncompressedSize = 0x7FFF8000

// File is one CFFILE record plus its owning-folder-relative bookkeeping.
type File struct {
	UncompressedSize uint32
	// uoffFolderStart is the file's uncompressed offset within its owning
	// folder. Recomputed on Save; meaningful for reads between Opens.
	uoffFolderStart uint32
	// iFolder is the raw on-disk folder index, including spanning
	// sentinels, kept verbatim.
	iFolder uint16
	DOSDate uint16
	DOSTime uint16
	Attribs uint16

	// Name is the backslash-delimited logical path within the cabinet.
	Name string

	// AbsolutePath holds a host filesystem path when this File was added
	// via AddExternalFile and has not yet been written by Save. Empty for
	// files sourced from an existing cabinet's data blocks.
	AbsolutePath string

	// folderIndex is this file's position in the owning Cabinet's Folders
	// slice (not the raw on-disk iFolder, which may be a spanning sentinel).
	folderIndex int
}

// ModTime returns the file's last-write time, decoded from its DOS date/time
// fields and converted to local time.
func (f *File) ModTime() time.Time {
	return dosDateTimeToLocal(f.DOSDate, f.DOSTime)
}

// SetModTime encodes t as this file's DOS date/time fields.
func (f *File) SetModTime(t time.Time) {
	f.DOSDate, f.DOSTime = localToDOSDateTime(t)
}

// IsReadOnly reports the read-only attribute bit.
func (f *File) IsReadOnly() bool { return f.Attribs&AttribReadOnly != 0 }

// IsHidden reports the hidden attribute bit.
func (f *File) IsHidden() bool { return f.Attribs&AttribHidden != 0 }

// sameName reports whether name matches f.Name case-insensitively, the
// comparison used throughout for rel_path lookups.
func (f *File) sameName(name string) bool {
	return strings.EqualFold(f.Name, name)
}

// parseFileHeader parses one CFFILE record (fixed portion + NUL-terminated name).
func parseFileHeader(r io.Reader) (*File, error) {
	size, err := readU32(r)
	if err != nil {
		return nil, err
	}
	uoff, err := readU32(r)
	if err != nil {
		return nil, err
	}
	iFolder, err := readU16(r)
	if err != nil {
		return nil, err
	}
	date, err := readU16(r)
	if err != nil {
		return nil, err
	}
	dosTime, err := readU16(r)
	if err != nil {
		return nil, err
	}
	attribs, err := readU16(r)
	if err != nil {
		return nil, err
	}
	name, err := readCString(r)
	if err != nil {
		return nil, err
	}
	return &File{
		UncompressedSize: size,
		uoffFolderStart:  uoff,
		iFolder:          iFolder,
		DOSDate:          date,
		DOSTime:          dosTime,
		Attribs:          attribs,
		Name:             name,
	}, nil
}

// writeFileHeader emits one CFFILE record. uoff is the file's uncompressed
// offset within its folder as computed by the Save pipeline; folderIdx is
// the folder's position in the cabinet and is always the value written.
// f's raw iFolder (including any spanning sentinel) is never emitted.
func writeFileHeader(w io.Writer, f *File, uoff uint32, folderIdx uint16) error {
	attribs := f.Attribs
	attribs &^= AttribNameIsUTF8

	var nameBuf bytes.Buffer
	usedUTF8, err := writeCString(&nameBuf, f.Name)
	if err != nil {
		return err
	}
	if usedUTF8 {
		attribs |= AttribNameIsUTF8
	}
	if nameBuf.Len() >= 256 {
		return newErr(ErrNameTooLong, "file name including NUL terminator must be < 256 bytes")
	}

	if err := writeU32(w, f.UncompressedSize); err != nil {
		return err
	}
	if err := writeU32(w, uoff); err != nil {
		return err
	}
	if err := writeU16(w, folderIdx); err != nil {
		return err
	}
	if err := writeU16(w, f.DOSDate); err != nil {
		return err
	}
	if err := writeU16(w, f.DOSTime); err != nil {
		return err
	}
	if err := writeU16(w, attribs); err != nil {
		return err
	}
	_, err = w.Write(nameBuf.Bytes())
	return err
}

// attribsFromHostInfo derives CAB attribute flags from a host os.FileInfo,
// setting archive (always, for newly added files) and translating
// read-only/hidden where the platform exposes them.
func attribsFromHostInfo(fi os.FileInfo) uint16 {
	attribs := AttribArchive
	if fi.Mode()&0200 == 0 {
		attribs |= AttribReadOnly
	}
	if strings.HasPrefix(fi.Name(), ".") {
		attribs |= AttribHidden
	}
	return attribs
}
