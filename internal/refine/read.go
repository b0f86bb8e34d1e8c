package refine

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format is a bronze file format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	// FormatEmpty marks a source with no data objects.
	FormatEmpty Format = "empty"
)

// formatOrder is the order in which readers are attempted.
var formatOrder = []Format{FormatParquet, FormatJSON, FormatCSV}

// decodeAll decodes every object with the first format that accepts all of
// them. The per-format errors are returned when none does. Blank objects are
// ignored; with nothing left the result is an empty table.
func decodeAll(objects [][]byte) (*Table, Format, error) {
	nonEmpty := objects[:0:0]
	for _, o := range objects {
		if len(bytes.TrimSpace(o)) > 0 {
			nonEmpty = append(nonEmpty, o)
		}
	}
	objects = nonEmpty
	if len(objects) == 0 {
		return &Table{}, FormatEmpty, nil
	}

	var errs []error
	for _, f := range formatOrder {
		t, err := decodeWith(f, objects)
		if err == nil {
			return t, f, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", f, err))
	}
	return nil, "", errors.Join(errs...)
}

func decodeWith(f Format, objects [][]byte) (*Table, error) {
	out := &Table{}
	for i, data := range objects {
		var (
			t   *Table
			err error
		)
		switch f {
		case FormatParquet:
			t, err = DecodeParquet(data)
		case FormatJSON:
			t, err = DecodeJSONLines(data)
		case FormatCSV:
			t, err = DecodeCSV(data)
		}
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		out.append(t)
	}
	return out, nil
}

// append adds t's rows, unioning columns in first-seen order.
func (t *Table) append(other *Table) {
	for _, c := range other.Columns {
		if !t.HasColumn(c) {
			t.Columns = append(t.Columns, c)
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
}

// DecodeJSONLines reads newline-delimited JSON objects. A single top-level
// array of objects is accepted too. Columns keep first-seen key order.
func DecodeJSONLines(data []byte) (*Table, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	array := trimmed[0] == '['
	if array {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	}

	t := &Table{}
	for dec.More() {
		keys, obj, err := decodeObject(dec)
		if err != nil {
			return nil, err
		}
		row := make(Row, len(keys))
		for _, k := range keys {
			if !t.HasColumn(k) {
				t.Columns = append(t.Columns, k)
			}
			row[k] = jsonValue(obj[k])
		}
		t.Rows = append(t.Rows, row)
	}

	if array {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON")
	}
	return t, nil
}

func decodeObject(dec *json.Decoder) ([]string, map[string]any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	obj := map[string]any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := obj[key]; !dup {
			keys = append(keys, key)
		}
		obj[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, obj, nil
}

// jsonValue flattens decoded JSON into the Row value types. Nested values
// are kept as their JSON text.
func jsonValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// DecodeCSV reads comma-separated text with a header row. Empty cells are nil.
func DecodeCSV(data []byte) (*Table, error) {
	r := csv.NewReader(bufio.NewReader(bytes.NewReader(data)))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimPrefix(h, "\ufeff")
		if header[i] == "" {
			header[i] = fmt.Sprintf("_c%d", i)
		}
	}

	t := &Table{Columns: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(header))
		for i, h := range header {
			if rec[i] == "" {
				row[h] = nil
			} else {
				row[h] = rec[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
