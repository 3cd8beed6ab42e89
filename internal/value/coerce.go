package value

import (
	"strconv"
	"strings"
)

// Coercion rules follow spreadsheet conventions: booleans convert to 1/0,
// numeric-looking text parses, empty cells read as zero / empty string, and
// errors always pass through untouched.

// AsNumber coerces a scalar value to a float64.
func AsNumber(v Value) (float64, *ErrValue) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindEmpty:
		return 0, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, &ErrValue{Kind: ErrVal, Message: "cannot convert text to number: " + v.text}
		}
		return f, nil
	case KindError:
		return 0, v.err
	}
	return 0, &ErrValue{Kind: ErrVal, Message: "cannot convert " + v.kind.String() + " to number"}
}

// AsText coerces a scalar value to a string.
func AsText(v Value) (string, *ErrValue) {
	if v.kind == KindError {
		return "", v.err
	}
	if v.kind == KindArray {
		return "", &ErrValue{Kind: ErrVal, Message: "cannot convert array to text"}
	}
	return v.String(), nil
}

// AsBool coerces a scalar value to a boolean. Numbers are truthy when
// non-zero; "TRUE"/"FALSE" text parses case-insensitively.
func AsBool(v Value) (bool, *ErrValue) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindNumber:
		return v.num != 0, nil
	case KindEmpty:
		return false, nil
	case KindText:
		switch strings.ToUpper(strings.TrimSpace(v.text)) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, &ErrValue{Kind: ErrVal, Message: "cannot convert text to boolean: " + v.text}
	case KindError:
		return false, v.err
	}
	return false, &ErrValue{Kind: ErrVal, Message: "cannot convert " + v.kind.String() + " to boolean"}
}

// Flatten yields the scalars of a value in row-major order: arrays expand,
// scalars yield themselves. Used by reducing functions like SUM.
func Flatten(v Value) []Value {
	if v.kind != KindArray {
		return []Value{v}
	}
	var out []Value
	for _, row := range v.rows {
		for _, c := range row {
			out = append(out, Flatten(c)...)
		}
	}
	return out
}
