package fn

import (
	"math"
	"strings"
	"time"

	"github.com/vk/sheetgridgo/internal/value"
)

// Builtin function set. Aggregations follow spreadsheet range semantics:
// scalar arguments coerce (erroring on non-numeric text), while values
// arriving inside arrays/ranges contribute only when they are numbers.
// Error values always win.

func seedBuiltins(r *Registry) {
	one := Options{MinArgs: 1, MaxArgs: 1}
	two := Options{MinArgs: 2, MaxArgs: 2}
	variadic := Options{MinArgs: 1, MaxArgs: Unbounded}

	r.registerBuiltin("SUM", biSum, variadic)
	r.registerBuiltin("AVERAGE", biAverage, variadic)
	r.registerBuiltin("COUNT", biCount, variadic)
	r.registerBuiltin("COUNTA", biCountA, variadic)
	r.registerBuiltin("MIN", biMin, variadic)
	r.registerBuiltin("MAX", biMax, variadic)
	r.registerBuiltin("IF", biIf, Options{MinArgs: 2, MaxArgs: 3})
	r.registerBuiltin("AND", biAnd, variadic)
	r.registerBuiltin("OR", biOr, variadic)
	r.registerBuiltin("NOT", biNot, one)
	r.registerBuiltin("CONCATENATE", biConcatenate, variadic)
	r.registerBuiltin("LEN", biLen, one)
	r.registerBuiltin("UPPER", biUpper, one)
	r.registerBuiltin("LOWER", biLower, one)
	r.registerBuiltin("TRIM", biTrim, one)
	r.registerBuiltin("ABS", biAbs, one)
	r.registerBuiltin("ROUND", biRound, Options{MinArgs: 1, MaxArgs: 2})
	r.registerBuiltin("FLOOR", biFloor, Options{MinArgs: 1, MaxArgs: 2})
	r.registerBuiltin("CEILING", biCeiling, Options{MinArgs: 1, MaxArgs: 2})
	r.registerBuiltin("SQRT", biSqrt, one)
	r.registerBuiltin("POWER", biPower, two)
	r.registerBuiltin("MOD", biMod, two)
	r.registerBuiltin("PI", biPi, Options{MinArgs: 0, MaxArgs: 0})
	r.registerBuiltin("DATE", biDate, Options{MinArgs: 3, MaxArgs: 3})
	r.registerBuiltin("TRANSPOSE", biTranspose, one)

	r.registerBuiltin("NOW", biNow, Options{MinArgs: 0, MaxArgs: 0, Volatile: true})
	r.registerBuiltin("TODAY", biToday, Options{MinArgs: 0, MaxArgs: 0, Volatile: true})
	r.registerBuiltin("RAND", biRand, Options{MinArgs: 0, MaxArgs: 0, Volatile: true, NonDeterministic: true})
	r.registerBuiltin("RANDBETWEEN", biRandBetween, Options{MinArgs: 2, MaxArgs: 2, Volatile: true, NonDeterministic: true})
}

// collectNumbers gathers numeric inputs for an aggregation. fromArray
// values that are not numbers are skipped; scalar arguments coerce.
func collectNumbers(args []value.Value) ([]float64, *value.ErrValue) {
	var nums []float64
	for _, arg := range args {
		if arg.IsArray() {
			for _, cell := range value.Flatten(arg) {
				if e, ok := cell.ErrorValue(); ok {
					return nil, e
				}
				if cell.Kind() == value.KindNumber {
					nums = append(nums, cell.Num())
				}
			}
			continue
		}
		if arg.IsEmpty() {
			continue
		}
		f, e := value.AsNumber(arg)
		if e != nil {
			return nil, e
		}
		nums = append(nums, f)
	}
	return nums, nil
}

func errOut(e *value.ErrValue) (value.Value, error) {
	return value.WrapError(e), nil
}

func biSum(_ *Invocation, args []value.Value) (value.Value, error) {
	nums, e := collectNumbers(args)
	if e != nil {
		return errOut(e)
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return value.Number(total), nil
}

func biAverage(_ *Invocation, args []value.Value) (value.Value, error) {
	nums, e := collectNumbers(args)
	if e != nil {
		return errOut(e)
	}
	if len(nums) == 0 {
		return value.ErrKind(value.ErrDiv0), nil
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return value.Number(total / float64(len(nums))), nil
}

func biCount(_ *Invocation, args []value.Value) (value.Value, error) {
	count := 0
	for _, arg := range args {
		for _, cell := range value.Flatten(arg) {
			if cell.Kind() == value.KindNumber {
				count++
			}
		}
	}
	return value.Number(float64(count)), nil
}

func biCountA(_ *Invocation, args []value.Value) (value.Value, error) {
	count := 0
	for _, arg := range args {
		for _, cell := range value.Flatten(arg) {
			if !cell.IsEmpty() {
				count++
			}
		}
	}
	return value.Number(float64(count)), nil
}

func biMin(_ *Invocation, args []value.Value) (value.Value, error) {
	nums, e := collectNumbers(args)
	if e != nil {
		return errOut(e)
	}
	if len(nums) == 0 {
		return value.Number(0), nil
	}
	out := nums[0]
	for _, n := range nums[1:] {
		out = math.Min(out, n)
	}
	return value.Number(out), nil
}

func biMax(_ *Invocation, args []value.Value) (value.Value, error) {
	nums, e := collectNumbers(args)
	if e != nil {
		return errOut(e)
	}
	if len(nums) == 0 {
		return value.Number(0), nil
	}
	out := nums[0]
	for _, n := range nums[1:] {
		out = math.Max(out, n)
	}
	return value.Number(out), nil
}

func biIf(_ *Invocation, args []value.Value) (value.Value, error) {
	cond, e := value.AsBool(args[0])
	if e != nil {
		return errOut(e)
	}
	if cond {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return value.Bool(false), nil
}

func biAnd(_ *Invocation, args []value.Value) (value.Value, error) {
	for _, arg := range args {
		for _, cell := range value.Flatten(arg) {
			if cell.IsEmpty() {
				continue
			}
			b, e := value.AsBool(cell)
			if e != nil {
				return errOut(e)
			}
			if !b {
				return value.Bool(false), nil
			}
		}
	}
	return value.Bool(true), nil
}

func biOr(_ *Invocation, args []value.Value) (value.Value, error) {
	for _, arg := range args {
		for _, cell := range value.Flatten(arg) {
			if cell.IsEmpty() {
				continue
			}
			b, e := value.AsBool(cell)
			if e != nil {
				return errOut(e)
			}
			if b {
				return value.Bool(true), nil
			}
		}
	}
	return value.Bool(false), nil
}

func biNot(_ *Invocation, args []value.Value) (value.Value, error) {
	b, e := value.AsBool(args[0])
	if e != nil {
		return errOut(e)
	}
	return value.Bool(!b), nil
}

func biConcatenate(_ *Invocation, args []value.Value) (value.Value, error) {
	var sb strings.Builder
	for _, arg := range args {
		for _, cell := range value.Flatten(arg) {
			s, e := value.AsText(cell)
			if e != nil {
				return errOut(e)
			}
			sb.WriteString(s)
		}
	}
	return value.Text(sb.String()), nil
}

func biLen(_ *Invocation, args []value.Value) (value.Value, error) {
	s, e := value.AsText(args[0])
	if e != nil {
		return errOut(e)
	}
	return value.Number(float64(len([]rune(s)))), nil
}

func biUpper(_ *Invocation, args []value.Value) (value.Value, error) {
	s, e := value.AsText(args[0])
	if e != nil {
		return errOut(e)
	}
	return value.Text(strings.ToUpper(s)), nil
}

func biLower(_ *Invocation, args []value.Value) (value.Value, error) {
	s, e := value.AsText(args[0])
	if e != nil {
		return errOut(e)
	}
	return value.Text(strings.ToLower(s)), nil
}

func biTrim(_ *Invocation, args []value.Value) (value.Value, error) {
	s, e := value.AsText(args[0])
	if e != nil {
		return errOut(e)
	}
	return value.Text(strings.Join(strings.Fields(s), " ")), nil
}

func biAbs(_ *Invocation, args []value.Value) (value.Value, error) {
	f, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	return value.Number(math.Abs(f)), nil
}

func biRound(_ *Invocation, args []value.Value) (value.Value, error) {
	f, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	digits := 0.0
	if len(args) == 2 {
		if digits, e = value.AsNumber(args[1]); e != nil {
			return errOut(e)
		}
	}
	scale := math.Pow(10, math.Trunc(digits))
	return value.Number(math.Round(f*scale) / scale), nil
}

func biFloor(_ *Invocation, args []value.Value) (value.Value, error) {
	f, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	sig := 1.0
	if len(args) == 2 {
		if sig, e = value.AsNumber(args[1]); e != nil {
			return errOut(e)
		}
	}
	if sig == 0 {
		return value.ErrKind(value.ErrDiv0), nil
	}
	return value.Number(math.Floor(f/sig) * sig), nil
}

func biCeiling(_ *Invocation, args []value.Value) (value.Value, error) {
	f, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	sig := 1.0
	if len(args) == 2 {
		if sig, e = value.AsNumber(args[1]); e != nil {
			return errOut(e)
		}
	}
	if sig == 0 {
		return value.ErrKind(value.ErrDiv0), nil
	}
	return value.Number(math.Ceil(f/sig) * sig), nil
}

func biSqrt(_ *Invocation, args []value.Value) (value.Value, error) {
	f, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	if f < 0 {
		return value.Err(value.ErrNum, "SQRT of a negative number"), nil
	}
	return value.Number(math.Sqrt(f)), nil
}

func biPower(_ *Invocation, args []value.Value) (value.Value, error) {
	base, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	exp, e := value.AsNumber(args[1])
	if e != nil {
		return errOut(e)
	}
	out := math.Pow(base, exp)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return value.ErrKind(value.ErrNum), nil
	}
	return value.Number(out), nil
}

func biMod(_ *Invocation, args []value.Value) (value.Value, error) {
	a, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	b, e := value.AsNumber(args[1])
	if e != nil {
		return errOut(e)
	}
	if b == 0 {
		return value.ErrKind(value.ErrDiv0), nil
	}
	// sign follows the divisor, as spreadsheets do
	out := math.Mod(a, b)
	if out != 0 && (out < 0) != (b < 0) {
		out += b
	}
	return value.Number(out), nil
}

func biPi(_ *Invocation, _ []value.Value) (value.Value, error) {
	return value.Number(math.Pi), nil
}

func biDate(inv *Invocation, args []value.Value) (value.Value, error) {
	y, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	m, e := value.AsNumber(args[1])
	if e != nil {
		return errOut(e)
	}
	d, e := value.AsNumber(args[2])
	if e != nil {
		return errOut(e)
	}
	t := time.Date(int(y), time.Month(int(m)), int(d), 0, 0, 0, 0, time.UTC)
	return value.Number(value.SerialFromTime(t, inv.DateSystem)), nil
}

func biTranspose(_ *Invocation, args []value.Value) (value.Value, error) {
	arg := args[0]
	if !arg.IsArray() {
		return value.Array([][]value.Value{{arg}}), nil
	}
	rows := arg.Rows()
	if len(rows) == 0 {
		return arg, nil
	}
	out := make([][]value.Value, len(rows[0]))
	for j := range out {
		out[j] = make([]value.Value, len(rows))
		for i := range rows {
			out[j][i] = rows[i][j]
		}
	}
	return value.Array(out), nil
}

func biNow(inv *Invocation, _ []value.Value) (value.Value, error) {
	return value.Number(value.SerialFromTime(inv.Clock.Now(), inv.DateSystem)), nil
}

func biToday(inv *Invocation, _ []value.Value) (value.Value, error) {
	now := inv.Clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return value.Number(value.SerialFromTime(midnight, inv.DateSystem)), nil
}

func biRand(inv *Invocation, _ []value.Value) (value.Value, error) {
	return value.Number(inv.Rand.Float64()), nil
}

func biRandBetween(inv *Invocation, args []value.Value) (value.Value, error) {
	lo, e := value.AsNumber(args[0])
	if e != nil {
		return errOut(e)
	}
	hi, e := value.AsNumber(args[1])
	if e != nil {
		return errOut(e)
	}
	if hi < lo {
		return value.ErrKind(value.ErrNum), nil
	}
	span := int64(hi) - int64(lo) + 1
	return value.Number(float64(int64(lo) + inv.Rand.Int64N(span))), nil
}
