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

// Package wkk interns column names so schemas and sort keys can compare
// them by handle instead of by string.
package wkk

import "unique"

type columnName string

// ColumnName is an interned column name. Two ColumnNames are equal iff the
// strings they were made from are equal.
type ColumnName = unique.Handle[columnName]

// NewColumnName interns s.
func NewColumnName(s string) ColumnName {
	return unique.Make(columnName(s))
}

// NewColumnNameFromBytes interns b without retaining it.
func NewColumnNameFromBytes(b []byte) ColumnName {
	return unique.Make(columnName(b))
}

// ColumnNameValue returns the string a ColumnName was made from.
func ColumnNameValue(c ColumnName) string {
	return string(c.Value())
}
