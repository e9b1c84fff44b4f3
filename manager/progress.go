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

package manager

import "github.com/jcaillon/cabinetmanager/cabfile"

// ProgressEvent reports bytes transferred for one file, both as a share of
// that file's own total and as a share of the whole batch's total.
type ProgressEvent struct {
	CabinetPath string
	RelPath     string

	BytesDone  int64
	BytesTotal int64
	PercentOp  float64

	BytesDoneCumulative  int64
	BytesTotalCumulative int64
	PercentCumulative    float64
}

// progressAggregator turns the core's per-chunk "bytes done" callbacks into
// percentage-based ProgressEvents, tracking both the current file and the
// running total across every file in the batch.
type progressAggregator struct {
	totalBytes int64
	doneBytes  int64
	onEvent    func(ProgressEvent)
}

func newProgressAggregator(totalBytes int64, onEvent func(ProgressEvent)) *progressAggregator {
	return &progressAggregator{totalBytes: totalBytes, onEvent: onEvent}
}

// fileTotal returns relPath's size for use as an individual file's
// denominator, falling back to 0 (no percentage) if unknown.
func (p *progressAggregator) fileTotal(cab *cabfile.Cabinet, req Request) int64 {
	switch req.Operation {
	case OpExtract:
		if size, ok := cab.FileSize(req.RelPath); ok {
			return int64(size)
		}
	}
	return 0
}

// track returns a cabfile.ProgressFunc that folds each chunk into both the
// current file's running total and the aggregator's cumulative total.
func (p *progressAggregator) track(relPath string, fileTotal int64) cabfile.ProgressFunc {
	var fileDone int64
	return func(_ string, n int) {
		fileDone += int64(n)
		p.doneBytes += int64(n)

		ev := ProgressEvent{
			RelPath:              relPath,
			BytesDone:            fileDone,
			BytesTotal:           fileTotal,
			BytesDoneCumulative:  p.doneBytes,
			BytesTotalCumulative: p.totalBytes,
		}
		if fileTotal > 0 {
			ev.PercentOp = float64(fileDone) / float64(fileTotal) * 100
		}
		if p.totalBytes > 0 {
			ev.PercentCumulative = float64(p.doneBytes) / float64(p.totalBytes) * 100
		}
		if p.onEvent != nil {
			p.onEvent(ev)
		}
	}
}
