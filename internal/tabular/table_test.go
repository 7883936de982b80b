package tabular

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestFormatFromFilename(t *testing.T) {
	f, err := FormatFromFilename("patients.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = FormatFromFilename("dir/records.json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = FormatFromFilename("sheet.xlsx")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = FormatFromFilename("noext")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffname,age,ssn\nAlice,30,111\n\"Bob, Jr\",30,222\n"
	table, err := Parse(FormatCSV, strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "age", "ssn"}, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"Bob, Jr", "30", "222"}, table.Rows[1])
	assert.Equal(t, 2, table.ColumnIndex("ssn"))
	assert.Equal(t, -1, table.ColumnIndex("zip"))
}

func TestParseCSVMalformed(t *testing.T) {
	_, err := Parse(FormatCSV, strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = Parse(FormatCSV, strings.NewReader("a,b\n1,2,3\n"))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestCSVRoundTrip(t *testing.T) {
	input := "name,note\nAlice,\"has, comma\"\nBob,\"quote \"\"x\"\"\"\n"
	table, err := Parse(FormatCSV, strings.NewReader(input))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf))
	assert.Equal(t, input, buf.String())
}

func TestCSVLoneEmptyFieldSurvivesRoundTrip(t *testing.T) {
	table := &Table{Format: FormatCSV, Columns: []string{"name"}, Rows: [][]string{{"alice"}, {""}, {"bob"}}}

	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf))
	assert.Equal(t, "name\nalice\n\"\"\nbob\n", buf.String())

	parsed, err := Parse(FormatCSV, &buf)
	require.NoError(t, err)
	assert.Equal(t, table.Rows, parsed.Rows)
}

func TestParseJSONKeyUnion(t *testing.T) {
	input := `[{"name":"Alice","age":30},{"age":31,"city":"Oslo"},{}]`
	table, err := Parse(FormatJSON, strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "age", "city"}, table.Columns)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{`"Alice"`, "30", "null"}, table.Rows[0])
	assert.Equal(t, []string{"null", "31", `"Oslo"`}, table.Rows[1])
	assert.Equal(t, []string{"null", "null", "null"}, table.Rows[2])
}

func TestParseJSONMalformed(t *testing.T) {
	cases := map[string]string{
		"invalid":       `[{"a":1}`,
		"not array":     `{"a":1}`,
		"scalar item":   `[{"a":1}, 2]`,
		"duplicate key": `[{"a":1,"a":2}]`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(FormatJSON, strings.NewReader(input))
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestJSONWritePreservesNestedValues(t *testing.T) {
	input := `[{"id":"a.b","meta":{"x":[1,2]},"n":1.50}]`
	table, err := Parse(FormatJSON, strings.NewReader(input))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf))

	out := buf.Bytes()
	require.True(t, gjson.ValidBytes(out))
	first := gjson.GetBytes(out, "0")
	assert.Equal(t, `{"x":[1,2]}`, first.Get("meta").Raw)
	assert.Equal(t, "1.50", first.Get("n").Raw)

	again, err := Parse(FormatJSON, bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, table.Columns, again.Columns)
	assert.Equal(t, table.Rows, again.Rows)
}

func TestJSONWriteEmpty(t *testing.T) {
	table := &Table{Format: FormatJSON, Columns: []string{"a"}}
	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf))
	assert.Equal(t, "[]\n", buf.String())
}

func TestHeadAndRowObjects(t *testing.T) {
	table := &Table{
		Format:  FormatCSV,
		Columns: []string{"name", "age"},
		Rows:    [][]string{{"Alice", "30"}, {"Bob", "31"}, {"Cy", "32"}},
	}
	head := table.Head(2)
	assert.Equal(t, 2, head.Len())
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 3, table.Head(10).Len())

	objs := head.RowObjects()
	require.Len(t, objs, 2)
	assert.JSONEq(t, `{"name":"Alice","age":"30"}`, string(objs[0]))
}

func TestTextCell(t *testing.T) {
	assert.Equal(t, "abc", FormatCSV.TextCell("abc"))
	assert.Equal(t, `"abc"`, FormatJSON.TextCell("abc"))
}
