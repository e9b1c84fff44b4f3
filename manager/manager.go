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

// Package manager groups batches of cabinet operations by cabinet path,
// drives the cabfile codec for each one, and aggregates progress and
// failures across the whole batch.
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jcaillon/cabinetmanager/cabfile"
)

// OperationKind identifies the kind of request a Request carries.
type OperationKind int

const (
	OpAdd OperationKind = iota
	OpExtract
	OpDelete
	OpMove
)

func (k OperationKind) String() string {
	switch k {
	case OpAdd:
		return "Add"
	case OpExtract:
		return "Extract"
	case OpDelete:
		return "Delete"
	case OpMove:
		return "Move"
	default:
		return "Unknown"
	}
}

// isArchiveOp reports whether k mutates the cabinet and therefore requires a
// Save at the end of processing.
func (k OperationKind) isArchiveOp() bool {
	return k == OpAdd || k == OpDelete || k == OpMove
}

// Request is one file-level operation against one cabinet.
type Request struct {
	CabinetPath string
	Operation   OperationKind

	RelPath    string // Add, Extract, Delete, Move (source name)
	NewRelPath string // Move only
	SourcePath string // Add only: host filesystem source
	DestPath   string // Extract only: host filesystem destination
}

// FileProcessed reports the outcome of one Request.
type FileProcessed struct {
	CabinetPath string
	Operation   OperationKind
	RelPath     string
	// Processed is true iff the underlying cabinet operation found and
	// acted on the target (cabfile's "not found" is not an error, but it
	// is also not processed). A hard error aborts the whole cabinet's batch
	// (see Process) rather than being recorded per-file here.
	Processed bool
}

// CabinetCompleted reports that every Request for one cabinet path has been
// handled (even if every one of them was a no-op).
type CabinetCompleted struct {
	CabinetPath string
	Files       []FileProcessed
}

// CabFailure wraps a codec error with the cabinet path it occurred against.
// Cancellation is never wrapped this way -- see Process.
type CabFailure struct {
	CabinetPath string
	Cause       error
}

func (e *CabFailure) Error() string {
	return fmt.Sprintf("cabinet %q: %v", e.CabinetPath, e.Cause)
}

func (e *CabFailure) Unwrap() error { return e.Cause }

// Manager processes batches of Requests. Its callback fields are optional;
// a nil callback is simply not invoked.
type Manager struct {
	// Compression is the compression type assigned to every folder on Save.
	// Zero value is cabfile.CompressionNone.
	Compression cabfile.CompressionType

	OnProgress         func(ProgressEvent)
	OnFileProcessed    func(FileProcessed)
	OnCabinetCompleted func(CabinetCompleted)
}

// New returns a Manager with no callbacks registered and Store compression.
func New() *Manager {
	return &Manager{}
}

// Process groups requests by CabinetPath (preserving the order in which each
// path was first seen) and handles each cabinet's requests in order.
func (m *Manager) Process(ctx context.Context, requests []Request) error {
	var order []string
	grouped := make(map[string][]Request)
	for _, req := range requests {
		if _, ok := grouped[req.CabinetPath]; !ok {
			order = append(order, req.CabinetPath)
		}
		grouped[req.CabinetPath] = append(grouped[req.CabinetPath], req)
	}

	for _, path := range order {
		if err := m.processCabinet(ctx, path, grouped[path]); err != nil {
			if cabfile.IsCancelled(err) {
				return err
			}
			return &CabFailure{CabinetPath: path, Cause: err}
		}
	}
	return nil
}

func (m *Manager) processCabinet(ctx context.Context, path string, reqs []Request) error {
	hasArchiveOp := false
	for _, req := range reqs {
		if req.Operation.isArchiveOp() {
			hasArchiveOp = true
			break
		}
	}

	_, statErr := os.Stat(path)
	exists := !errors.Is(statErr, os.ErrNotExist)
	if !exists && !hasArchiveOp {
		return nil
	}

	cab, err := cabfile.Open(path)
	if err != nil {
		return err
	}
	defer cab.Close()

	agg := newProgressAggregator(m.estimateTotalBytes(cab, reqs), m.emitProgress(path))

	mutated := false
	var results []FileProcessed
	for _, req := range reqs {
		processed, err := m.handleRequest(ctx, cab, req, agg)
		if err != nil {
			return err
		}
		if processed && req.Operation.isArchiveOp() {
			mutated = true
		}
		fp := FileProcessed{
			CabinetPath: path,
			Operation:   req.Operation,
			RelPath:     req.RelPath,
			Processed:   processed,
		}
		results = append(results, fp)
		if m.OnFileProcessed != nil {
			m.OnFileProcessed(fp)
		}
	}

	if mutated {
		if err := cab.Save(ctx, cabfile.SaveOptions{Compression: m.Compression}); err != nil {
			return err
		}
	}

	if m.OnCabinetCompleted != nil {
		m.OnCabinetCompleted(CabinetCompleted{CabinetPath: path, Files: results})
	}
	return nil
}

// handleRequest dispatches one Request to the matching Cabinet method and
// reports whether it found/acted on its target.
func (m *Manager) handleRequest(ctx context.Context, cab *cabfile.Cabinet, req Request, agg *progressAggregator) (bool, error) {
	switch req.Operation {
	case OpAdd:
		if err := cab.AddExternalFile(req.SourcePath, req.RelPath); err != nil {
			return false, err
		}
		return true, nil
	case OpExtract:
		progress := agg.track(req.RelPath, agg.fileTotal(cab, req))
		found, err := cab.ExtractToFile(ctx, req.RelPath, req.DestPath, progress)
		if err != nil {
			return false, err
		}
		return found, nil
	case OpDelete:
		return cab.DeleteFile(req.RelPath), nil
	case OpMove:
		return cab.MoveFile(req.RelPath, req.NewRelPath), nil
	default:
		return false, fmt.Errorf("manager: unknown operation %v", req.Operation)
	}
}

// estimateTotalBytes sums the best-effort byte counts of every request in a
// batch, for cumulative progress reporting.
func (m *Manager) estimateTotalBytes(cab *cabfile.Cabinet, reqs []Request) int64 {
	var total int64
	for _, req := range reqs {
		switch req.Operation {
		case OpExtract:
			if size, ok := cab.FileSize(req.RelPath); ok {
				total += int64(size)
			}
		case OpAdd:
			if fi, err := os.Stat(req.SourcePath); err == nil {
				total += fi.Size()
			}
		}
	}
	return total
}

func (m *Manager) emitProgress(cabinetPath string) func(ProgressEvent) {
	return func(ev ProgressEvent) {
		ev.CabinetPath = cabinetPath
		if m.OnProgress != nil {
			m.OnProgress(ev)
		}
	}
}
