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

package pipeline

// RowKey identifies a row independently of its position. It is assigned by
// the producer and carried through every stage untouched.
type RowKey string

// Row is a keyed, fixed-length sequence of cells laid out by a Schema.
type Row struct {
	Key   RowKey
	Cells []Value
}

// NewRow builds a row. The cells slice is owned by the row afterwards.
func NewRow(key RowKey, cells ...Value) Row {
	return Row{Key: key, Cells: cells}
}

// Len returns the number of cells.
func (r Row) Len() int { return len(r.Cells) }

// Cell returns the cell at index i.
func (r Row) Cell(i int) Value { return r.Cells[i] }

// Project returns a new row holding only the cells at indices, in that
// order, with the same key. The receiver is not modified.
func (r Row) Project(indices []int) Row {
	cells := make([]Value, len(indices))
	for i, idx := range indices {
		cells[i] = r.Cells[idx]
	}
	return Row{Key: r.Key, Cells: cells}
}

// CopyRow returns a row with its own cell slice.
func CopyRow(in Row) Row {
	cells := make([]Value, len(in.Cells))
	copy(cells, in.Cells)
	return Row{Key: in.Key, Cells: cells}
}

// Strings renders every cell with Value.String.
func (r Row) Strings() []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.String()
	}
	return out
}
