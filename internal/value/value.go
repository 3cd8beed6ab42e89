// Package value defines the typed cell values and the canonical error
// taxonomy used throughout the engine. A Value is a small tagged union:
// empty, number, text, boolean, 2-D array, or error-with-kind.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the payload held by a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindNumber
	KindText
	KindBool
	KindArray
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Value is an immutable spreadsheet value. The zero Value is empty.
type Value struct {
	kind Kind
	num  float64
	text string
	b    bool
	rows [][]Value
	err  *ErrValue
}

// Empty returns the empty value.
func Empty() Value { return Value{} }

// Number wraps a float64.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Array wraps a row-major 2-D grid of scalar values. Rows are not copied;
// callers hand over ownership.
func Array(rows [][]Value) Value { return Value{kind: KindArray, rows: rows} }

// Err builds an error value with a message.
func Err(kind ErrorKind, message string) Value {
	return Value{kind: KindError, err: &ErrValue{Kind: kind, Message: SingleLine(message)}}
}

// ErrKind builds an error value with the kind's default display string.
func ErrKind(kind ErrorKind) Value {
	return Value{kind: KindError, err: &ErrValue{Kind: kind}}
}

// WrapError lifts an existing *ErrValue into a Value.
func WrapError(e *ErrValue) Value {
	if e == nil {
		return Empty()
	}
	return Value{kind: KindError, err: e}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }
func (v Value) IsError() bool { return v.kind == KindError }
func (v Value) IsArray() bool { return v.kind == KindArray }

// Num returns the numeric payload. Only meaningful when Kind is KindNumber.
func (v Value) Num() float64 { return v.num }

// Str returns the text payload. Only meaningful when Kind is KindText.
func (v Value) Str() string { return v.text }

// B returns the boolean payload. Only meaningful when Kind is KindBool.
func (v Value) B() bool { return v.b }

// Rows returns the array payload. Only meaningful when Kind is KindArray.
func (v Value) Rows() [][]Value { return v.rows }

// ErrorValue returns the error payload when the value is an error.
func (v Value) ErrorValue() (*ErrValue, bool) {
	if v.kind != KindError {
		return nil, false
	}
	return v.err, true
}

// Equal compares two values structurally. NaN never equals anything.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindEmpty:
		return true
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.b == o.b
	case KindError:
		return v.err.Kind == o.err.Kind
	case KindArray:
		if len(v.rows) != len(o.rows) {
			return false
		}
		for i := range v.rows {
			if len(v.rows[i]) != len(o.rows[i]) {
				return false
			}
			for j := range v.rows[i] {
				if !v.rows[i][j].Equal(o.rows[i][j]) {
					return false
				}
			}
		}
		return true
	}
	return false
}

// String renders the value the way a cell would display it.
func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return ""
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	case KindError:
		return v.err.Display()
	case KindArray:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, row := range v.rows {
			if i > 0 {
				sb.WriteByte(';')
			}
			for j, c := range row {
				if j > 0 {
					sb.WriteByte(',')
				}
				sb.WriteString(c.String())
			}
		}
		sb.WriteByte('}')
		return sb.String()
	}
	return ""
}

// FromAny converts a host-provided Go value into a Value. Unsupported types
// land as a #VALUE! error rather than a Go error so the result can always be
// stored in a cell.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Empty()
	case Value:
		return t
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case string:
		return Text(t)
	case bool:
		return Bool(t)
	case *ErrValue:
		return WrapError(t)
	case [][]any:
		rows := make([][]Value, len(t))
		for i, r := range t {
			rows[i] = make([]Value, len(r))
			for j, c := range r {
				rows[i][j] = FromAny(c)
			}
		}
		return Array(rows)
	case []any:
		row := make([]Value, len(t))
		for j, c := range t {
			row[j] = FromAny(c)
		}
		return Array([][]Value{row})
	default:
		return Err(ErrVal, fmt.Sprintf("unsupported host value of type %T", v))
	}
}

// ToAny converts a Value into plain Go data for host consumption: nil,
// float64, string, bool, []any rows, or *ErrValue.
func (v Value) ToAny() any {
	switch v.kind {
	case KindEmpty:
		return nil
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	case KindBool:
		return v.b
	case KindError:
		return v.err
	case KindArray:
		rows := make([][]any, len(v.rows))
		for i, r := range v.rows {
			rows[i] = make([]any, len(r))
			for j, c := range r {
				rows[i][j] = c.ToAny()
			}
		}
		return rows
	}
	return nil
}
