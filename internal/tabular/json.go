package tabular

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
)

const jsonNull = "null"

// parseJSON reads an array of flat objects. The header is the union of keys
// in first-seen order; a key absent from an object yields a null cell.
func parseJSON(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json document", ErrMalformed)
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: json document must be an array of objects", ErrMalformed)
	}

	type object struct {
		keys   []string
		values map[string]string
	}

	var (
		objects  []object
		columns  []string
		position = map[string]int{}
		parseErr error
	)

	root.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			parseErr = fmt.Errorf("%w: element %d is not an object", ErrMalformed, len(objects))
			return false
		}
		obj := object{values: map[string]string{}}
		item.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if _, dup := obj.values[name]; dup {
				parseErr = fmt.Errorf("%w: duplicate key %q in element %d", ErrMalformed, name, len(objects))
				return false
			}
			obj.values[name] = value.Raw
			obj.keys = append(obj.keys, name)
			if _, seen := position[name]; !seen {
				position[name] = len(columns)
				columns = append(columns, name)
			}
			return true
		})
		if parseErr != nil {
			return false
		}
		objects = append(objects, obj)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	table := &Table{Format: FormatJSON, Columns: columns, Rows: make([][]string, 0, len(objects))}
	for _, obj := range objects {
		row := make([]string, len(columns))
		for i, col := range columns {
			if raw, ok := obj.values[col]; ok {
				row[i] = raw
			} else {
				row[i] = jsonNull
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// writeJSON emits one object per row with keys in column order. Cells are
// already JSON tokens and are written verbatim.
func writeJSON(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	keys := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		keys[i] = quoteJSON(c)
	}

	if _, err := bw.WriteString("["); err != nil {
		return err
	}
	for r, row := range t.Rows {
		if r > 0 {
			bw.WriteString(",")
		}
		bw.WriteString("\n  {")
		for i, cell := range row {
			if i > 0 {
				bw.WriteString(",")
			}
			bw.WriteString(keys[i])
			bw.WriteString(":")
			if cell == "" {
				cell = jsonNull
			}
			bw.WriteString(cell)
		}
		bw.WriteString("}")
	}
	if len(t.Rows) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("]\n")
	return bw.Flush()
}

// RowObjects renders each row as a JSON object with keys in column order.
// CSV cells become JSON strings; JSON cells are embedded as-is.
func (t *Table) RowObjects() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(t.Rows))
	for _, row := range t.Rows {
		buf := make([]byte, 0, 64)
		buf = append(buf, '{')
		for i, cell := range row {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, quoteJSON(t.Columns[i])...)
			buf = append(buf, ':')
			if t.Format == FormatJSON {
				if cell == "" {
					cell = jsonNull
				}
				buf = append(buf, cell...)
			} else {
				buf = append(buf, quoteJSON(cell)...)
			}
		}
		buf = append(buf, '}')
		out = append(out, json.RawMessage(buf))
	}
	return out
}

func quoteJSON(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
