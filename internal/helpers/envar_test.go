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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBoolEnv(t *testing.T) {
	const name = "TABLESORT_TEST_BOOL"

	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{" yes ", false, true},
		{"On", false, true},
		{"enabled", false, true},
		{"1", false, true},
		{"false", true, false},
		{"\tNO\n", true, false},
		{"off", true, false},
		{"disabled", true, false},
		{"0", true, false},
		{"banana", false, true},
		{"", true, true},
		{"   ", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(name, tt.value)
			assert.Equal(t, tt.want, GetBoolEnv(name, tt.def))
		})
	}
}

func TestGetAnyBoolEnv(t *testing.T) {
	t.Setenv("TABLESORT_TEST_A", "")
	t.Setenv("TABLESORT_TEST_B", "off")
	t.Setenv("TABLESORT_TEST_C", "on")

	assert.False(t, GetAnyBoolEnv(true, "TABLESORT_TEST_A", "TABLESORT_TEST_B", "TABLESORT_TEST_C"))
	assert.True(t, GetAnyBoolEnv(false, "TABLESORT_TEST_C", "TABLESORT_TEST_B"))
	assert.True(t, GetAnyBoolEnv(true, "TABLESORT_TEST_A"))
	assert.False(t, GetAnyBoolEnv(false))
}
