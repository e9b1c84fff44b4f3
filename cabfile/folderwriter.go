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
)

// folderWriter is the explicit state machine behind writeFolderDataBlocks
// (the folder's "Write pipeline"): it interleaves two producer
// variants -- an external-file reader and an existing-block reader -- into
// a fixed-size staging buffer, flushing full data blocks as the buffer
// fills.
type folderWriter struct {
	w          io.Writer
	comp       Compressor
	reservedSz int

	stage      []byte
	stageLen   int
	blockCount int
}

func newFolderWriter(w io.Writer, comp Compressor, reservedSz int) *folderWriter {
	return &folderWriter{
		w:          w,
		comp:       comp,
		reservedSz: reservedSz,
		stage:      make([]byte, maxBlockUncompressed),
	}
}

// feed appends p into the staging buffer, flushing full blocks as needed.
func (fw *folderWriter) feed(p []byte) error {
	for len(p) > 0 {
		n := copy(fw.stage[fw.stageLen:], p)
		fw.stageLen += n
		p = p[n:]
		if fw.stageLen == len(fw.stage) {
			if err := fw.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush emits one data block from whatever is currently staged, if any.
func (fw *folderWriter) flush() error {
	if fw.stageLen == 0 {
		return nil
	}
	if fw.blockCount >= maxBlocksPerFolder {
		return newErr(ErrTooManyDataBlocks, "folder would exceed 65535 data blocks")
	}
	if err := writeDataBlock(fw.w, fw.stage[:fw.stageLen], fw.comp, fw.reservedSz); err != nil {
		return err
	}
	fw.blockCount++
	fw.stageLen = 0
	return nil
}

// writeFolderDataBlocks is C6's Save-path rewrite routine. It records the
// current writer position as the folder's new coffCabStart, streams each
// file's bytes (from an external source or from the original cabinet's data
// blocks) through the staging buffer, and returns the folder's new
// coffCabStart and data-block count for the caller to patch into the
// already-written placeholder header.
func writeFolderDataBlocks(ctx context.Context, fo *Folder, w io.WriteSeeker, src io.ReadSeeker, comp Compressor, progress ProgressFunc) (coffCabStart uint32, blockCount uint16, err error) {
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, err
	}
	coffCabStart = uint32(pos)

	fw := newFolderWriter(w, comp, fo.dataReservedSize)
	var reader *folderReader
	if src != nil {
		if err := fo.ensureBlocksLoaded(src); err != nil {
			return 0, 0, err
		}
		reader = fo.ensureReader(src)
	}

	for _, f := range fo.files {
		if err := checkCancelled(ctx); err != nil {
			return 0, 0, err
		}
		if f.AbsolutePath != "" {
			if err := pumpExternalFile(ctx, fw, f, progress); err != nil {
				return 0, 0, err
			}
			continue
		}
		if reader == nil {
			return 0, 0, newErr(ErrMissingSource, "no source cabinet available to read existing file").withIndex(fo.Index)
		}
		if err := pumpExistingFile(ctx, fw, reader, f, progress); err != nil {
			return 0, 0, err
		}
	}

	if err := fw.flush(); err != nil {
		return 0, 0, err
	}
	return coffCabStart, uint16(fw.blockCount), nil
}

// pumpExternalFile is the external-file producer: it copies bytes from the
// host filesystem path the file carries into the
// staging buffer, checking for cancellation before each chunk.
func pumpExternalFile(ctx context.Context, fw *folderWriter, f *File, progress ProgressFunc) error {
	in, err := os.Open(f.AbsolutePath)
	if err != nil {
		return newErr(ErrMissingSource, "external source file not found").withCause(err)
	}
	defer in.Close()

	buf := make([]byte, maxBlockUncompressed)
	for {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if err := fw.feed(buf[:n]); err != nil {
				return err
			}
			if progress != nil {
				progress(f.Name, n)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// pumpExistingFile is the existing-block producer: it pumps bytes from the
// original cabinet's data blocks, via the folder's streaming reader, into
// the staging buffer.
func pumpExistingFile(ctx context.Context, fw *folderWriter, reader *folderReader, f *File, progress ProgressFunc) error {
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
			return newErr(ErrTruncatedData, "folder exhausted before file was fully read").withIndex(f.folderIndex)
		}
		if err := fw.feed(buf[:n]); err != nil {
			return err
		}
		cursor += uint32(n)
		if progress != nil {
			progress(f.Name, n)
		}
	}
	return nil
}
