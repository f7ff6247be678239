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

package extsort

import (
	"context"
	"errors"
	"fmt"

	"github.com/cardinalhq/tablesort/internal/sortkey"
	"github.com/cardinalhq/tablesort/internal/spillers"
)

// Errors returned by Sort. Match them with errors.Is.
var (
	// ErrInvalidSortSpec: a sort column is unknown or has no ordering.
	ErrInvalidSortSpec = sortkey.ErrInvalidSortSpec

	// ErrInvalidConfig: Config.Validate failed.
	ErrInvalidConfig = errors.New("invalid sort config")

	// ErrResourceExhausted: chunk storage could not be allocated or written.
	ErrResourceExhausted = spillers.ErrResourceExhausted

	// ErrCancelled: the caller cancelled the sort.
	ErrCancelled = errors.New("sort cancelled")

	// ErrCorrupt: a chunk could not be read back during a merge. Spilled
	// state is not trusted after this and the sort is abandoned.
	ErrCorrupt = spillers.ErrCorrupt

	// ErrSorterUsed: Sort was called on a Sorter that already ran.
	ErrSorterUsed = errors.New("sorter already used")
)

// cancelCheck returns a non-nil ErrCancelled error once the sort should stop.
type cancelCheck func() error

// requested polls the caller; it may be nil.
func newCancelCheck(ctx context.Context, requested func() bool) cancelCheck {
	return func() error {
		if ctx.Err() != nil {
			return cancelledError(ctx)
		}
		if requested != nil && requested() {
			return fmt.Errorf("%w: requested by monitor", ErrCancelled)
		}
		return nil
	}
}

func cancelledError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// asCancelled turns context errors surfacing from a reader or sink into
// ErrCancelled when ctx is done.
func asCancelled(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrCancelled) {
		return err
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return cancelledError(ctx)
	}
	return err
}
