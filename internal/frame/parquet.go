package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Key-value metadata written alongside the parquet schema. Parquet groups order
// fields by name, so the original column order and the logical kinds (dates and
// timestamps are stored as ISO strings) travel in the footer.
const (
	metaColumns = "techdengue.columns"
	metaKinds   = "techdengue.kinds"
	sep         = "\x1f"
	writeBatch  = 512
)

func leafFor(k Kind) parquet.Node {
	switch k {
	case KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case KindInt:
		return parquet.Int(64)
	case KindBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func coerce(k Kind, v any) any {
	if v == nil {
		return nil
	}
	switch k {
	case KindFloat:
		if f, ok := AsFloat(v); ok {
			return f
		}
		return nil
	case KindInt:
		switch x := v.(type) {
		case int64:
			return x
		case float64:
			return int64(x)
		}
		return nil
	case KindBool:
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	default:
		return Format(v)
	}
}

func toValue(k Kind, v any) parquet.Value {
	switch x := coerce(k, v).(type) {
	case nil:
		return parquet.NullValue()
	case float64:
		return parquet.DoubleValue(x)
	case int64:
		return parquet.Int64Value(x)
	case bool:
		return parquet.BooleanValue(x)
	case string:
		return parquet.ByteArrayValue([]byte(x))
	}
	return parquet.NullValue()
}

// WriteParquet encodes f as a single parquet file. Every column is optional.
func WriteParquet(w io.Writer, f *Frame) error {
	if len(f.columns) == 0 {
		return errors.New("frame: cannot write parquet without columns")
	}
	kinds := f.Kinds()
	group := parquet.Group{}
	kindSpec := make([]string, len(f.columns))
	for i, c := range f.columns {
		group[c] = parquet.Optional(leafFor(kinds[c]))
		kindSpec[i] = kinds[c].String()
	}
	schema := parquet.NewSchema("frame", group)
	pw := parquet.NewWriter(w, schema,
		parquet.KeyValueMetadata(metaColumns, strings.Join(f.columns, sep)),
		parquet.KeyValueMetadata(metaKinds, strings.Join(kindSpec, sep)),
	)

	fields := schema.Fields()
	src := make([]int, len(fields))
	fieldKinds := make([]Kind, len(fields))
	for ci, fld := range fields {
		src[ci] = f.index[fld.Name()]
		fieldKinds[ci] = kinds[fld.Name()]
	}

	batch := make([]parquet.Row, 0, writeBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for _, row := range f.rows {
		prow := make(parquet.Row, len(fields))
		for ci := range fields {
			v := row[src[ci]]
			def := 1
			if coerce(fieldKinds[ci], v) == nil {
				def = 0
			}
			prow[ci] = toValue(fieldKinds[ci], v).Level(0, def, ci)
		}
		batch = append(batch, prow)
		if len(batch) == writeBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return pw.Close()
}

// EncodeParquet is WriteParquet into a byte slice.
func EncodeParquet(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fromValue(k Kind, v parquet.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Int64:
		return v.Int64(), nil
	case parquet.Int32:
		return int64(v.Int32()), nil
	case parquet.Boolean:
		return v.Boolean(), nil
	}
	s := string(v.ByteArray())
	switch k {
	case KindDate:
		return ParseDate(s)
	case KindTime:
		return time.Parse(time.RFC3339Nano, s)
	}
	return s, nil
}

// ReadParquet decodes a file written by WriteParquet, restoring column order and kinds.
func ReadParquet(data []byte) (*Frame, error) {
	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	fields := pf.Schema().Fields()
	cols := make([]string, len(fields))
	for i, fld := range fields {
		cols[i] = fld.Name()
	}
	if s, ok := pf.Lookup(metaColumns); ok && s != "" {
		cols = strings.Split(s, sep)
	}
	kinds := make(map[string]Kind, len(cols))
	if s, ok := pf.Lookup(metaKinds); ok && s != "" {
		for i, name := range strings.Split(s, sep) {
			if i < len(cols) {
				kinds[cols[i]] = ParseKind(name)
			}
		}
	}

	out := New(cols...)
	pos := make([]int, len(fields))
	fieldKinds := make([]Kind, len(fields))
	for ci, fld := range fields {
		pos[ci] = out.Index(fld.Name())
		fieldKinds[ci] = kinds[fld.Name()]
	}

	buf := make([]parquet.Row, 256)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, prow := range buf[:n] {
				row := make([]any, len(cols))
				for _, v := range prow {
					ci := v.Column()
					if ci < 0 || ci >= len(pos) || pos[ci] < 0 {
						continue
					}
					val, perr := fromValue(fieldKinds[ci], v)
					if perr != nil {
						rows.Close()
						return nil, fmt.Errorf("decode column %s: %w", fields[ci].Name(), perr)
					}
					row[pos[ci]] = val
				}
				out.rows = append(out.rows, row)
			}
			if err == io.EOF || (err == nil && n == 0) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("read parquet rows: %w", err)
			}
		}
		rows.Close()
	}
	return out, nil
}
