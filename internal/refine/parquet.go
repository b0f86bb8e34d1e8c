package refine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

const parquetParallelism = 4

var parquetMagic = []byte("PAR1")

// ErrColumnCollision is returned when two column names differ only by case.
// Parquet field names are matched case-insensitively on read.
var ErrColumnCollision = errors.New("column names collide ignoring case")

// columnType is the parquet physical type chosen for a column.
type columnType string

const (
	typeBool   columnType = "BOOLEAN"
	typeInt    columnType = "INT64"
	typeDouble columnType = "DOUBLE"
	typeString columnType = "BYTE_ARRAY"
)

// inferTypes picks one physical type per column from its non-nil values.
// Mixed integer and float columns widen to DOUBLE; any other mix is text.
func inferTypes(t *Table) map[string]columnType {
	types := make(map[string]columnType, len(t.Columns))
	for _, c := range t.Columns {
		var ct columnType
		for _, r := range t.Rows {
			v := r[c]
			if v == nil {
				continue
			}
			var vt columnType
			switch v.(type) {
			case bool:
				vt = typeBool
			case int64:
				vt = typeInt
			case float64:
				vt = typeDouble
			default:
				vt = typeString
			}
			switch {
			case ct == "":
				ct = vt
			case ct == vt:
			case (ct == typeInt && vt == typeDouble) || (ct == typeDouble && vt == typeInt):
				ct = typeDouble
			default:
				ct = typeString
			}
			if ct == typeString {
				break
			}
		}
		if ct == "" {
			ct = typeString
		}
		types[c] = ct
	}
	return types
}

func checkColumnNames(columns []string) error {
	seen := make(map[string]string, len(columns))
	for _, c := range columns {
		folded := strings.ToLower(c)
		if prev, ok := seen[folded]; ok {
			return fmt.Errorf("%w: %q and %q", ErrColumnCollision, prev, c)
		}
		seen[folded] = c
	}
	return nil
}

func parquetSchema(columns []string, types map[string]columnType) string {
	fields := make([]map[string]string, 0, len(columns))
	for _, c := range columns {
		tag := fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL", c, types[c])
		if types[c] == typeString {
			tag = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c)
		}
		fields = append(fields, map[string]string{"Tag": tag})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// EncodeParquet serializes t as a single SNAPPY-compressed parquet file.
func EncodeParquet(t *Table) ([]byte, error) {
	if err := checkColumnNames(t.Columns); err != nil {
		return nil, err
	}
	types := inferTypes(t)

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(parquetSchema(t.Columns, types), pfw, parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, r := range t.Rows {
		row := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			row[c] = coerce(r[c], types[c])
		}
		line, err := json.Marshal(row)
		if err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finish parquet: %w", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

func coerce(v any, ct columnType) any {
	if v == nil {
		return nil
	}
	switch ct {
	case typeDouble:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	case typeString:
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return v
}

// DecodeParquet reads a flat parquet file into a Table.
func DecodeParquet(data []byte) (*Table, error) {
	if len(data) < 12 || !bytes.HasPrefix(data, parquetMagic) || !bytes.HasSuffix(data, parquetMagic) {
		return nil, errors.New("not a parquet file")
	}

	tmp, err := os.CreateTemp("", "refine-*.parquet")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	pf, err := local.NewLocalFileReader(tmp.Name())
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	pr, err := reader.NewParquetReader(pf, nil, parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("parquet reader: %w", err)
	}
	defer pr.ReadStop()

	num := pr.GetNumRows()
	t := &Table{Rows: make([]Row, num)}
	for i := range t.Rows {
		t.Rows[i] = Row{}
	}

	for idx, inPath := range pr.SchemaHandler.ValueColumns {
		name := columnName(pr.SchemaHandler.InPathToExPath[inPath], inPath)
		values, _, _, err := pr.ReadColumnByIndex(int64(idx), num)
		if err != nil {
			return nil, fmt.Errorf("read column %s: %w", name, err)
		}
		t.Columns = append(t.Columns, name)
		for i := int64(0); i < num && int(i) < len(values); i++ {
			t.Rows[i][name] = normalizeParquetValue(values[i])
		}
	}
	return t, nil
}

func columnName(exPath, inPath string) string {
	p := exPath
	if p == "" {
		p = inPath
	}
	parts := strings.Split(p, common.PAR_GO_PATH_DELIMITER)
	return parts[len(parts)-1]
}

func normalizeParquetValue(v any) any {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	default:
		return v
	}
}
