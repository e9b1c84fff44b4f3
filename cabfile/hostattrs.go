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
	"strings"
)

// applyHostAttribs translates the read-only and hidden attribute bits onto
// the host file at path, returning the path the file ends up at. Hidden has
// no os.Chmod equivalent, so it is mapped the same way attribsFromHostInfo
// reads it back in: a dot-prefixed basename. If path isn't already
// dot-prefixed, the file is renamed to one; otherwise it's left alone.
func applyHostAttribs(path string, attribs uint16) (string, error) {
	finalPath := path
	if attribs&AttribHidden != 0 {
		dir, base := filepath.Split(path)
		if !strings.HasPrefix(base, ".") {
			renamed := filepath.Join(dir, "."+base)
			if err := os.Rename(path, renamed); err != nil {
				return path, err
			}
			finalPath = renamed
		}
	}
	if attribs&AttribReadOnly != 0 {
		return finalPath, os.Chmod(finalPath, 0444)
	}
	return finalPath, os.Chmod(finalPath, 0644)
}
