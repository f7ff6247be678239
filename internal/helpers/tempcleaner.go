// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cardinalhq/tablesort/internal/idgen"
)

// CleanSpillDirs removes spill directories left in dir by earlier runs that
// did not exit cleanly. Only directories named by idgen.NewSpillDirName and
// not modified for minAge are touched, so sorts running in other processes
// keep their chunks. It returns the number removed.
func CleanSpillDirs(dir string, minAge time.Duration) int {
	if dir == "" {
		dir = os.TempDir()
	}
	slog.Info("Cleaning stale spill directories", slog.String("path", dir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Info("Failed to read temp dir (ignoring)", slog.String("path", dir), slog.Any("error", err))
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !idgen.IsSpillDirName(entry.Name()) {
			continue
		}
		if info, err := entry.Info(); err != nil || time.Since(info.ModTime()) < minAge {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to remove spill directory", slog.String("path", path), slog.Any("error", err))
			continue
		}
		removed++
	}
	return removed
}
