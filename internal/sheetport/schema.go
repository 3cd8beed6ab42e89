package sheetport

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/sheetgridgo/internal/value"
)

// Port schemas are expressed as cty types so coercion reuses the hcl type
// system's conversion rules instead of ad-hoc switches.

func ctyTypeFor(portType string) cty.Type {
	switch portType {
	case "number":
		return cty.Number
	case "text":
		return cty.String
	case "bool":
		return cty.Bool
	default:
		return cty.DynamicPseudoType
	}
}

// coerceGoValue converts a caller-supplied Go value to a cell value of the
// declared port type.
func coerceGoValue(v any, portType string) (value.Value, error) {
	if v == nil {
		return value.Empty(), nil
	}
	impliedType, err := gocty.ImpliedType(v)
	if err != nil {
		return value.Empty(), fmt.Errorf("unsupported value %T: %w", v, err)
	}
	ctyVal, err := gocty.ToCtyValue(v, impliedType)
	if err != nil {
		return value.Empty(), err
	}
	want := ctyTypeFor(portType)
	if want != cty.DynamicPseudoType {
		ctyVal, err = convert.Convert(ctyVal, want)
		if err != nil {
			return value.Empty(), fmt.Errorf("cannot convert %T to %s: %w", v, portType, err)
		}
	}
	return fromCty(ctyVal)
}

// coerceCellValue converts a cell value to the declared port type for
// reads. Error values pass through untouched so callers can see them.
func coerceCellValue(v value.Value, portType string) (value.Value, error) {
	if v.IsError() || v.IsEmpty() {
		return v, nil
	}
	want := ctyTypeFor(portType)
	if want == cty.DynamicPseudoType {
		return v, nil
	}
	cv, err := toCty(v)
	if err != nil {
		return value.Empty(), err
	}
	cv, err = convert.Convert(cv, want)
	if err != nil {
		return value.Empty(), fmt.Errorf("cell value %s is not %s: %w", v.String(), portType, err)
	}
	return fromCty(cv)
}

func toCty(v value.Value) (cty.Value, error) {
	switch v.Kind() {
	case value.KindNumber:
		return cty.NumberFloatVal(v.Num()), nil
	case value.KindText:
		return cty.StringVal(v.Str()), nil
	case value.KindBool:
		return cty.BoolVal(v.B()), nil
	case value.KindEmpty:
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	return cty.NilVal, fmt.Errorf("%s values cannot cross a port", v.Kind())
}

func fromCty(v cty.Value) (value.Value, error) {
	if v.IsNull() {
		return value.Empty(), nil
	}
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return value.Number(f), nil
	case cty.String:
		return value.Text(v.AsString()), nil
	case cty.Bool:
		return value.Bool(v.True()), nil
	}
	return value.Empty(), fmt.Errorf("unsupported port value type %s", v.Type().FriendlyName())
}

// checkMin enforces a numeric lower bound.
func checkMin(v value.Value, min *float64) error {
	if min == nil || v.Kind() != value.KindNumber {
		return nil
	}
	if v.Num() < *min {
		return fmt.Errorf("value %s below minimum %v", v.String(), *min)
	}
	return nil
}

// defaultValue materializes a port's declared default.
func defaultValue(p *Port) (value.Value, bool, error) {
	if p.Default == nil || p.Default.IsNull() {
		return value.Empty(), false, nil
	}
	v, err := fromCty(*p.Default)
	if err != nil {
		return value.Empty(), false, fmt.Errorf("port %s default: %w", p.ID, err)
	}
	if p.Schema != nil {
		v, err = coerceCellValue(v, p.Schema.Type)
		if err != nil {
			return value.Empty(), false, fmt.Errorf("port %s default: %w", p.ID, err)
		}
	}
	return v, true, nil
}
