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
	"errors"
	"fmt"
)

// ErrorKind classifies the structural and invariant failures the codec can
// report. Callers distinguish kinds with errors.As against *Error, not by
// matching error strings.
type ErrorKind int

const (
	// ErrUnknown is the zero value; never returned by this package.
	ErrUnknown ErrorKind = iota
	// ErrUnsupportedFormat means the signature or version field didn't match.
	ErrUnsupportedFormat
	// ErrMultiCabinetUnsupported means the header references a next cabinet.
	ErrMultiCabinetUnsupported
	// ErrUnsupportedCompression means a folder declared a compression type
	// with no registered codec.
	ErrUnsupportedCompression
	// ErrTruncatedStream means fewer bytes were available than a header requires.
	ErrTruncatedStream
	// ErrCorruptedData means a data block is inconsistent: decompressed length
	// disagreed with the declared length, a block declares a zero uncompressed
	// length (spanning), or a block to be written exceeds 65535 bytes.
	ErrCorruptedData
	// ErrNameTooLong means an emitted name (with NUL) would be >= 256 bytes.
	ErrNameTooLong
	// ErrCabinetTooLarge means Save would produce more than 2147483647 bytes.
	ErrCabinetTooLarge
	// ErrFileTooLarge means an added external file exceeds 0x7FFF8000 bytes.
	ErrFileTooLarge
	// ErrTooManyFiles means total file count would exceed 65535.
	ErrTooManyFiles
	// ErrTooManyDataBlocks means a folder would exceed 65535 data blocks.
	ErrTooManyDataBlocks
	// ErrMissingSource means a file's source bytes are unavailable: an external
	// source file was not found (by AddExternalFile or at Save time), or no
	// source cabinet is open to read an existing file from at Save time.
	ErrMissingSource
	// ErrTruncatedData means the data-block stream ran out before a read could be satisfied.
	ErrTruncatedData
	// ErrCancelled means a context was cancelled during a chunked operation.
	ErrCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnsupportedFormat:
		return "UnsupportedFormat"
	case ErrMultiCabinetUnsupported:
		return "MultiCabinetUnsupported"
	case ErrUnsupportedCompression:
		return "UnsupportedCompression"
	case ErrTruncatedStream:
		return "TruncatedStream"
	case ErrCorruptedData:
		return "CorruptedData"
	case ErrNameTooLong:
		return "NameTooLong"
	case ErrCabinetTooLarge:
		return "CabinetTooLarge"
	case ErrFileTooLarge:
		return "FileTooLarge"
	case ErrTooManyFiles:
		return "TooManyFiles"
	case ErrTooManyDataBlocks:
		return "TooManyDataBlocks"
	case ErrMissingSource:
		return "MissingSource"
	case ErrTruncatedData:
		return "TruncatedData"
	case ErrCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is the structured error type returned by this package. It carries
// enough context (cabinet path, record index) to identify the offending
// record without callers having to parse an error string.
type Error struct {
	Kind ErrorKind
	// Path is the cabinet file path the error occurred against, if known.
	Path string
	// Index identifies the offending folder/file/block, if applicable. -1 if not.
	Index int
	// Msg is a short human-readable description.
	Msg string
	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	var loc string
	switch {
	case e.Path != "" && e.Index >= 0:
		loc = fmt.Sprintf(" (%s, index %d)", e.Path, e.Index)
	case e.Path != "":
		loc = fmt.Sprintf(" (%s)", e.Path)
	case e.Index >= 0:
		loc = fmt.Sprintf(" (index %d)", e.Index)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s%s: %v", e.Kind, e.Msg, loc, e.Cause)
	}
	return fmt.Sprintf("%s: %s%s", e.Kind, e.Msg, loc)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Index: -1, Msg: msg}
}

func (e *Error) withPath(path string) *Error {
	e.Path = path
	return e
}

func (e *Error) withIndex(idx int) *Error {
	e.Index = idx
	return e
}

func (e *Error) withCause(err error) *Error {
	e.Cause = err
	return e
}

// IsCancelled reports whether err is (or wraps) an ErrCancelled Error.
func IsCancelled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == ErrCancelled
	}
	return false
}
