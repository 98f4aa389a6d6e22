/*
 *
 * xk6-browser - a browser automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package chromium

import (
	"fmt"
	"os"
)

const userDataDirPattern = "playwright-user-data-*"

// DataStore manages the on-disk profile directory a browser process is
// launched with.
type DataStore struct {
	Dir    string // path to the data storage directory
	remove bool   // whether to remove the temporary directory in cleanup

	// FS abstractions, swappable in tests.
	fsMkdirTemp func(dir, pattern string) (string, error)
	fsRemoveAll func(path string) error
}

// Make creates a new temporary directory in tmpDir and stores its path in
// the Dir field. When dir is a non-empty string, that directory is used
// instead and nothing is created or later removed.
func (d *DataStore) Make(tmpDir string, dir interface{}) error {
	if ud, ok := dir.(string); ok && ud != "" {
		d.Dir = ud
		return nil
	}

	if d.fsMkdirTemp == nil {
		d.fsMkdirTemp = os.MkdirTemp
	}
	var err error
	if d.Dir, err = d.fsMkdirTemp(tmpDir, userDataDirPattern); err != nil {
		return fmt.Errorf("mkdirTemp: %w", err)
	}
	d.remove = true

	return nil
}

// Cleanup removes the temporary directory, if this store created one.
func (d *DataStore) Cleanup() {
	if !d.remove {
		return
	}
	if d.fsRemoveAll == nil {
		d.fsRemoveAll = os.RemoveAll
	}
	_ = d.fsRemoveAll(d.Dir)
}
