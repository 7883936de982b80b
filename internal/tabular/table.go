// table.go
//
// A research dataset access and desensitization service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of datashare.
// datashare is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// datashare is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with datashare.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package tabular parses uploaded datasets into ordered record sets and
// serializes them back in the same format family.
package tabular

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format is the serialization family of a record set.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrMalformed         = errors.New("malformed dataset")
)

// FormatFromFilename infers the format from the original file extension.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch Format(ext) {
	case FormatCSV, FormatJSON:
		return Format(ext), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Extension is the file extension used for artifacts of this format.
func (f Format) Extension() string {
	return string(f)
}

// Table is an ordered record set. Rows are parallel to Columns.
//
// For FormatCSV a cell holds the field text. For FormatJSON a cell holds the
// raw JSON token of the value, so untouched cells round-trip byte for byte.
type Table struct {
	Format  Format
	Columns []string
	Rows    [][]string
}

// Parse reads a full record set of the given format.
func Parse(format Format, r io.Reader) (*Table, error) {
	switch format {
	case FormatCSV:
		return parseCSV(r)
	case FormatJSON:
		return parseJSON(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Write serializes the table in its own format.
func (t *Table) Write(w io.Writer) error {
	switch t.Format {
	case FormatCSV:
		return writeCSV(w, t)
	case FormatJSON:
		return writeJSON(w, t)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, t.Format)
}

// Head returns a table sharing t's columns with at most n rows.
func (t *Table) Head(n int) *Table {
	rows := t.Rows
	if n >= 0 && len(rows) > n {
		rows = rows[:n]
	}
	return &Table{Format: t.Format, Columns: t.Columns, Rows: rows}
}

// Len is the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// TextCell encodes plain text as a cell of this format.
func (f Format) TextCell(s string) string {
	if f == FormatJSON {
		return quoteJSON(s)
	}
	return s
}
