package exqlite

import (
	"math"
	"math/big"
)

// Atom is a symbolic host value.
type Atom string

const (
	Nil         Atom = "nil"
	Undefined   Atom = "undefined"
	Unsupported Atom = "unsupported"

	OK       Atom = "ok"
	Done     Atom = "done"
	Busy     Atom = "busy"
	RowTag   Atom = "row"
	ErrorTag Atom = "error"
	BlobTag  Atom = "blob"
)

// maxAtomLength is the longest atom accepted as a bind argument, in bytes.
const maxAtomLength = 255

// Blob forces blob semantics on bind and marks blob cells on read.
// Plain string or []byte arguments always bind as text.
type Blob []byte

// IOList is a possibly nested sequence of byte chunks, concatenated left to right.
// Elements may be string, []byte, Blob, a byte (or int in 0..255), IOList or []any.
type IOList []any

// Tuple is a fixed-size host term.
type Tuple []any

// Row holds the cells of one result row, in column order.
type Row []any

type valueKind uint8

const (
	valueInteger valueKind = iota + 1
	valueFloat
	valueNull
	valueText
	valueBlob
)

func (k valueKind) String() string {
	switch k {
	case valueInteger:
		return "integer"
	case valueFloat:
		return "float"
	case valueNull:
		return "null"
	case valueText:
		return "text"
	case valueBlob:
		return "blob"
	default:
		return "invalid"
	}
}

// boundValue is a host value converted to one of the engine's bind types.
type boundValue struct {
	kind valueKind
	i    int64
	f    float64
	b    []byte
}

// encodeArg converts a single bind argument. The first matching rule wins:
// integer, float, null sentinel, bool, atom, text bytes, blob.
func encodeArg(v any) (boundValue, bool) {
	if i, ok := asInt64(v); ok {
		return boundValue{kind: valueInteger, i: i}, true
	}
	switch x := v.(type) {
	case float64:
		return boundValue{kind: valueFloat, f: x}, true
	case float32:
		return boundValue{kind: valueFloat, f: float64(x)}, true
	case nil:
		return boundValue{kind: valueNull}, true
	case bool:
		if x {
			return boundValue{kind: valueInteger, i: 1}, true
		}
		return boundValue{kind: valueInteger, i: 0}, true
	case Atom:
		if x == Undefined || x == Nil {
			return boundValue{kind: valueNull}, true
		}
		if len(x) > maxAtomLength {
			return boundValue{}, false
		}
		return boundValue{kind: valueText, b: []byte(x)}, true
	case Blob:
		return boundValue{kind: valueBlob, b: []byte(x)}, true
	case Tuple:
		if len(x) == 2 && x[0] == BlobTag {
			if b, ok := flattenIOList(x[1]); ok {
				return boundValue{kind: valueBlob, b: b}, true
			}
		}
		return boundValue{}, false
	}
	if b, ok := flattenIOList(v); ok {
		return boundValue{kind: valueText, b: b}, true
	}
	return boundValue{}, false
}

// asInt64 reports whether v is an integer representable as int64.
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return uintToInt64(x)
	case *big.Int:
		if x != nil && x.IsInt64() {
			return x.Int64(), true
		}
	}
	return 0, false
}

func uintToInt64(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

// flattenIOList concatenates v into a single byte slice. A bare integer or
// nil is not an iolist; integers are accepted only as elements of a list.
func flattenIOList(v any) ([]byte, bool) {
	switch x := v.(type) {
	case string:
		return append([]byte{}, x...), true
	case []byte:
		return append([]byte{}, x...), true
	case Blob:
		return append([]byte{}, x...), true
	case IOList:
		return appendIOList([]byte{}, []any(x))
	case []any:
		return appendIOList([]byte{}, x)
	}
	return nil, false
}

func appendIOList(dst []byte, list []any) ([]byte, bool) {
	for _, el := range list {
		var ok bool
		switch x := el.(type) {
		case string:
			dst = append(dst, x...)
		case []byte:
			dst = append(dst, x...)
		case Blob:
			dst = append(dst, x...)
		case byte:
			dst = append(dst, x)
		case int:
			if x < 0 || x > 255 {
				return nil, false
			}
			dst = append(dst, byte(x))
		case IOList:
			if dst, ok = appendIOList(dst, x); !ok {
				return nil, false
			}
		case []any:
			if dst, ok = appendIOList(dst, x); !ok {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return dst, true
}

// sqlBytes flattens SQL given as a string, byte slice or iolist.
func sqlBytes(sql any) ([]byte, error) {
	b, ok := flattenIOList(sql)
	if !ok {
		return nil, newError(KindSQLNotIOList)
	}
	return b, nil
}

// bindValue hands an encoded value to the engine at a 1-based position.
func bindValue(stmt Sqlite3Stmt, position int, v boundValue) ResultCode {
	switch v.kind {
	case valueInteger:
		return sqlite3_bind_int64(stmt, position, v.i)
	case valueFloat:
		return sqlite3_bind_double(stmt, position, v.f)
	case valueText:
		return sqlite3_bind_text(stmt, position, v.b)
	case valueBlob:
		return sqlite3_bind_blob(stmt, position, v.b)
	default:
		return sqlite3_bind_null(stmt, position)
	}
}

// columnSource reads typed cells of the current row.
type columnSource interface {
	columnType(index int) ColumnType
	columnInt64(index int) int64
	columnDouble(index int) float64
	columnText(index int) []byte
	columnBlob(index int) []byte
}

type stmtColumns struct {
	stmt Sqlite3Stmt
}

func (c stmtColumns) columnType(index int) ColumnType { return sqlite3_column_type(c.stmt, index) }
func (c stmtColumns) columnInt64(index int) int64     { return sqlite3_column_int64(c.stmt, index) }
func (c stmtColumns) columnDouble(index int) float64  { return sqlite3_column_double(c.stmt, index) }
func (c stmtColumns) columnText(index int) []byte     { return sqlite3_column_text(c.stmt, index) }
func (c stmtColumns) columnBlob(index int) []byte     { return sqlite3_column_blob(c.stmt, index) }

// decodeColumn converts one cell. Unknown column types yield Unsupported.
func decodeColumn(src columnSource, index int) any {
	switch src.columnType(index) {
	case SQLITE_INTEGER:
		return src.columnInt64(index)
	case SQLITE_FLOAT:
		return src.columnDouble(index)
	case SQLITE_NULL:
		return Nil
	case SQLITE_BLOB:
		return Blob(src.columnBlob(index))
	case SQLITE_TEXT:
		return src.columnText(index)
	default:
		return Unsupported
	}
}

func decodeRow(src columnSource, n int) Row {
	row := make(Row, n)
	for i := range row {
		row[i] = decodeColumn(src, i)
	}
	return row
}

// Term renders the row with blob cells as {blob, bytes}.
func (r Row) Term() []any {
	cells := make([]any, len(r))
	for i, cell := range r {
		if b, ok := cell.(Blob); ok {
			cells[i] = Tuple{BlobTag, []byte(b)}
			continue
		}
		cells[i] = cell
	}
	return cells
}
