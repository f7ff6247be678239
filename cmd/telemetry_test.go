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

package cmd

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesort/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewLogHandler(t *testing.T) {
	t.Setenv("TABLESORT_DEBUG", "")
	t.Setenv("DEBUG", "")

	h, err := newLogHandler(config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.IsType(t, &slog.JSONHandler{}, h)
	assert.False(t, h.Enabled(t.Context(), slog.LevelInfo))

	t.Setenv("TABLESORT_DEBUG", "true")
	h, err = newLogHandler(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.IsType(t, &slog.TextHandler{}, h)
	assert.True(t, h.Enabled(t.Context(), slog.LevelDebug))

	_, err = newLogHandler(config.LogConfig{Format: "xml"})
	assert.Error(t, err)
}

func TestHandleSignals_Stop(t *testing.T) {
	ctx, stop := handleSignals(t.Context())
	require.NoError(t, ctx.Err())
	stop()
	stop()
	assert.Error(t, ctx.Err())
}
