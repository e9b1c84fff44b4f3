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
	"os"
	"path/filepath"
	"testing"
)

func TestApplyHostAttribsRenamesHiddenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	got, err := applyHostAttribs(path, AttribHidden)
	if err != nil {
		t.Fatalf("applyHostAttribs: %v", err)
	}
	want := filepath.Join(dir, ".secret.txt")
	if got != want {
		t.Fatalf("applyHostAttribs returned %s, want %s", got, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("dot-prefixed file missing after rename: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("original path still exists after hidden rename")
	}
}

func TestApplyHostAttribsLeavesAlreadyDotPrefixedAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secret.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	got, err := applyHostAttribs(path, AttribHidden)
	if err != nil {
		t.Fatalf("applyHostAttribs: %v", err)
	}
	if got != path {
		t.Fatalf("applyHostAttribs renamed an already-hidden path to %s", got)
	}
}

func TestApplyHostAttribsReadOnlyWithoutHidden(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	got, err := applyHostAttribs(path, AttribReadOnly)
	if err != nil {
		t.Fatalf("applyHostAttribs: %v", err)
	}
	if got != path {
		t.Fatalf("applyHostAttribs changed path to %s for a non-hidden file", got)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("os.Stat: %v", err)
	}
	if fi.Mode().Perm()&0200 != 0 {
		t.Fatalf("read-only file is still writable: mode=%v", fi.Mode())
	}
}
