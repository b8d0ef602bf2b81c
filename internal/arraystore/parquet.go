package arraystore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// Type is the engine-facing name of an array's value type.
type Type string

const (
	TypeBoolean   Type = "BOOLEAN"
	TypeTinyInt   Type = "TINYINT"
	TypeSmallInt  Type = "SMALLINT"
	TypeInteger   Type = "INTEGER"
	TypeBigInt    Type = "BIGINT"
	TypeUBigInt   Type = "UBIGINT"
	TypeFloat     Type = "FLOAT"
	TypeDouble    Type = "DOUBLE"
	TypeVarchar   Type = "VARCHAR"
	TypeBlob      Type = "BLOB"
	TypeDate      Type = "DATE"
	TypeTimestamp Type = "TIMESTAMP"
)

// Array is one decoded array file: a single named, typed field across rows.
// Values hold nil for nulls, otherwise bool, int64, uint64, float64,
// string, []byte or time.Time depending on Type.
type Array struct {
	Field  string
	Type   Type
	Values []any
}

// Len returns the number of rows.
func (a *Array) Len() int {
	return len(a.Values)
}

// Int64s builds a BIGINT array.
func Int64s(vals ...int64) *Array {
	return build(TypeBigInt, vals)
}

// Uint64s builds a UBIGINT array.
func Uint64s(vals ...uint64) *Array {
	return build(TypeUBigInt, vals)
}

// Float64s builds a DOUBLE array.
func Float64s(vals ...float64) *Array {
	return build(TypeDouble, vals)
}

// Strings builds a VARCHAR array.
func Strings(vals ...string) *Array {
	return build(TypeVarchar, vals)
}

// Bools builds a BOOLEAN array.
func Bools(vals ...bool) *Array {
	return build(TypeBoolean, vals)
}

func build[T any](typ Type, vals []T) *Array {
	values := make([]any, len(vals))
	for i, v := range vals {
		values[i] = v
	}
	return &Array{Field: ValueField, Type: typ, Values: values}
}

// Decode reads an array file. The field named "values" is used when
// present; otherwise the file must contain exactly one field.
func Decode(ctx context.Context, data []byte) (*Array, error) {
	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	idx := -1
	if indices := schema.FieldIndices(ValueField); len(indices) > 0 {
		idx = indices[0]
	} else if schema.NumFields() == 1 {
		idx = 0
	}
	if idx < 0 {
		return nil, fmt.Errorf("array file has %d fields and none named %q", schema.NumFields(), ValueField)
	}

	field := schema.Field(idx)
	typ, err := typeOf(field.Type)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", field.Name, err)
	}

	out := &Array{
		Field:  field.Name,
		Type:   typ,
		Values: make([]any, 0, tbl.NumRows()),
	}
	for _, chunk := range tbl.Column(idx).Data().Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			out.Values = append(out.Values, valueAt(chunk, i))
		}
	}
	return out, nil
}

func typeOf(dt arrow.DataType) (Type, error) {
	switch dt.ID() {
	case arrow.BOOL:
		return TypeBoolean, nil
	case arrow.INT8, arrow.UINT8:
		return TypeTinyInt, nil
	case arrow.INT16, arrow.UINT16:
		return TypeSmallInt, nil
	case arrow.INT32, arrow.UINT32:
		return TypeInteger, nil
	case arrow.INT64:
		return TypeBigInt, nil
	case arrow.UINT64:
		return TypeUBigInt, nil
	case arrow.FLOAT32:
		return TypeFloat, nil
	case arrow.FLOAT64:
		return TypeDouble, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return TypeVarchar, nil
	case arrow.BINARY, arrow.LARGE_BINARY:
		return TypeBlob, nil
	case arrow.DATE32, arrow.DATE64:
		return TypeDate, nil
	case arrow.TIMESTAMP:
		return TypeTimestamp, nil
	default:
		return "", fmt.Errorf("unsupported array type %s", dt)
	}
}

func valueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return bytes.Clone(a.Value(i))
	case *array.LargeBinary:
		return bytes.Clone(a.Value(i))
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	default:
		return arr.ValueStr(i)
	}
}

// Write encodes a as a single-field array file. Only BOOLEAN, BIGINT,
// UBIGINT, DOUBLE and VARCHAR arrays can be written.
func Write(w io.Writer, a *Array) error {
	dt, err := arrowType(a.Type)
	if err != nil {
		return err
	}
	name := a.Field
	if name == "" {
		name = ValueField
	}

	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{{Name: name, Type: dt, Nullable: true}}, nil)

	b := array.NewBuilder(mem, dt)
	defer b.Release()
	for i, v := range a.Values {
		if err := appendValue(b, v); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	col := b.NewArray()
	defer col.Release()

	rec := array.NewRecord(schema, []arrow.Array{col}, int64(col.Len()))
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	chunk := max(int64(col.Len()), 1)
	if err := pqarrow.WriteTable(tbl, w, chunk, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	return nil
}

func arrowType(t Type) (arrow.DataType, error) {
	switch t {
	case TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case TypeBigInt:
		return arrow.PrimitiveTypes.Int64, nil
	case TypeUBigInt:
		return arrow.PrimitiveTypes.Uint64, nil
	case TypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case TypeVarchar:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, fmt.Errorf("cannot write arrays of type %s", t)
	}
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bb := b.(type) {
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("want bool, got %T", v)
		}
		bb.Append(x)
	case *array.Int64Builder:
		switch x := v.(type) {
		case int64:
			bb.Append(x)
		case int:
			bb.Append(int64(x))
		case int32:
			bb.Append(int64(x))
		default:
			return fmt.Errorf("want integer, got %T", v)
		}
	case *array.Uint64Builder:
		x, ok := v.(uint64)
		if !ok {
			return fmt.Errorf("want uint64, got %T", v)
		}
		bb.Append(x)
	case *array.Float64Builder:
		switch x := v.(type) {
		case float64:
			bb.Append(x)
		case float32:
			bb.Append(float64(x))
		default:
			return fmt.Errorf("want float, got %T", v)
		}
	case *array.StringBuilder:
		x, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		bb.Append(x)
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}
