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

package idgen

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// SpillDirPrefix starts the name of every per-sort spill directory.
const SpillDirPrefix = "tablesort-"

const base36Len = 25

// UUIDToBase36 renders id as a fixed-width, lower case base36 string.
func UUIDToBase36(id uuid.UUID) string {
	bi := new(big.Int).SetBytes(id[:])

	ret := bi.Text(36)
	if len(ret) < base36Len {
		ret = strings.Repeat("0", base36Len-len(ret)) + ret
	}
	return ret
}

// Base36ToUUID reverses UUIDToBase36.
func Base36ToUUID(s string) (uuid.UUID, error) {
	if len(s) != base36Len {
		return uuid.Nil, fmt.Errorf("base36 id must be %d characters, got %d", base36Len, len(s))
	}
	bi, ok := new(big.Int).SetString(s, 36)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid base36 string: %s", s)
	}
	if bi.BitLen() > 128 {
		return uuid.Nil, fmt.Errorf("number too large for UUID: %s", s)
	}
	var id uuid.UUID
	bi.FillBytes(id[:])
	return id, nil
}

// NewSpillDirName returns a fresh directory name for one sort's chunks.
func NewSpillDirName() string {
	return SpillDirPrefix + UUIDToBase36(uuid.New())
}

// IsSpillDirName reports whether name was made by NewSpillDirName.
func IsSpillDirName(name string) bool {
	rest, ok := strings.CutPrefix(name, SpillDirPrefix)
	if !ok {
		return false
	}
	_, err := Base36ToUUID(rest)
	return err == nil
}
