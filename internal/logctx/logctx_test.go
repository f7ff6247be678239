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

package logctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	logger, _ := bufferLogger()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	assert.Same(t, ctx, WithLogger(ctx, nil))
}

func TestWith(t *testing.T) {
	base, buf := bufferLogger()
	ctx := WithLogger(context.Background(), base)

	same, logger := With(ctx)
	assert.Same(t, ctx, same)
	assert.Same(t, base, logger)

	ctx, logger = With(ctx, slog.String("sortID", "abc"), slog.Int("chunks", 3))
	assert.Same(t, logger, FromContext(ctx))

	FromContext(ctx).Info("spilled")
	assert.Contains(t, buf.String(), "sortID=abc")
	assert.Contains(t, buf.String(), "chunks=3")
	assert.Contains(t, buf.String(), "msg=spilled")
}
