package engine

import (
	"math"
	"strings"

	"github.com/vk/sheetgridgo/internal/fn"
	"github.com/vk/sheetgridgo/internal/parse"
	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// cellReader supplies cell values to the interpreter. Demand evaluation
// backs it with recursive ensure; batch evaluation backs it with plain
// storage reads, relying on topological order for freshness.
type cellReader interface {
	read(c ref.Cell) value.Value
}

// evalNode interprets a formula AST. It never returns a Go error: every
// failure becomes an error value that propagates through the expression.
func (w *Workbook) evalNode(rd cellReader, host ref.Cell, n parse.Node) value.Value {
	switch t := n.(type) {
	case *parse.NumberLit:
		return value.Number(t.Val)
	case *parse.TextLit:
		return value.Text(t.Val)
	case *parse.BoolLit:
		return value.Bool(t.Val)
	case *parse.ErrorLit:
		return value.ErrKind(t.Kind)
	case *parse.CellRef:
		return rd.read(t.Cell)
	case *parse.RangeRef:
		return w.evalRange(rd, t.Range)
	case *parse.ArrayLit:
		return w.evalArrayLit(rd, host, t)
	case *parse.Call:
		return w.evalCall(rd, host, t)
	case *parse.Unary:
		return w.evalUnary(rd, host, t)
	case *parse.Binary:
		return w.evalBinary(rd, host, t)
	}
	return value.Err(value.ErrVal, "unsupported expression")
}

func (w *Workbook) evalRange(rd cellReader, r ref.Range) value.Value {
	r = r.Normalize()
	rows := make([][]value.Value, 0, r.Rows())
	for row := r.StartRow; row <= r.EndRow; row++ {
		line := make([]value.Value, 0, r.Cols())
		for col := r.StartCol; col <= r.EndCol; col++ {
			line = append(line, rd.read(ref.Cell{Sheet: r.Sheet, Row: row, Col: col}))
		}
		rows = append(rows, line)
	}
	if len(rows) == 1 && len(rows[0]) == 1 {
		return rows[0][0]
	}
	return value.Array(rows)
}

func (w *Workbook) evalArrayLit(rd cellReader, host ref.Cell, t *parse.ArrayLit) value.Value {
	rows := make([][]value.Value, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = make([]value.Value, len(row))
		for j, el := range row {
			v := w.evalNode(rd, host, el)
			if v.Kind() == value.KindArray {
				v = value.Err(value.ErrVal, "array literals cannot nest arrays")
			}
			rows[i][j] = v
		}
	}
	return value.Array(rows)
}

func (w *Workbook) evalCall(rd cellReader, host ref.Cell, t *parse.Call) value.Value {
	args := make([]value.Value, len(t.Args))
	for i, a := range t.Args {
		args[i] = w.evalNode(rd, host, a)
	}
	inv := &fn.Invocation{
		Clock:      w.clock,
		Rand:       w.rng,
		DateSystem: w.dateSystem,
		Cell:       host,
	}
	return w.registry.Dispatch(inv, t.Name, args)
}

func (w *Workbook) evalUnary(rd cellReader, host ref.Cell, t *parse.Unary) value.Value {
	x := w.evalNode(rd, host, t.X)
	return mapElementwise(x, func(v value.Value) value.Value {
		if ev, ok := v.ErrorValue(); ok {
			return value.WrapError(ev)
		}
		n, err := value.AsNumber(v)
		if err != nil {
			return value.WrapError(err)
		}
		switch {
		case t.Postfix && t.Op == "%":
			return value.Number(n / 100)
		case t.Op == "-":
			return value.Number(-n)
		default:
			return value.Number(n)
		}
	})
}

func (w *Workbook) evalBinary(rd cellReader, host ref.Cell, t *parse.Binary) value.Value {
	l := w.evalNode(rd, host, t.L)
	r := w.evalNode(rd, host, t.R)
	return zipElementwise(l, r, func(a, b value.Value) value.Value {
		return applyBinary(t.Op, a, b)
	})
}

func applyBinary(op string, l, r value.Value) value.Value {
	if ev, ok := l.ErrorValue(); ok {
		return value.WrapError(ev)
	}
	if ev, ok := r.ErrorValue(); ok {
		return value.WrapError(ev)
	}

	switch op {
	case "+", "-", "*", "/", "^":
		a, err := value.AsNumber(l)
		if err != nil {
			return value.WrapError(err)
		}
		b, err := value.AsNumber(r)
		if err != nil {
			return value.WrapError(err)
		}
		switch op {
		case "+":
			return value.Number(a + b)
		case "-":
			return value.Number(a - b)
		case "*":
			return value.Number(a * b)
		case "/":
			if b == 0 {
				return value.ErrKind(value.ErrDiv0)
			}
			return value.Number(a / b)
		default:
			p := math.Pow(a, b)
			if math.IsNaN(p) || math.IsInf(p, 0) {
				return value.ErrKind(value.ErrNum)
			}
			return value.Number(p)
		}
	case "&":
		a, err := value.AsText(l)
		if err != nil {
			return value.WrapError(err)
		}
		b, err := value.AsText(r)
		if err != nil {
			return value.WrapError(err)
		}
		return value.Text(a + b)
	case "=", "<>", "<", "<=", ">", ">=":
		cmp := compareValues(l, r)
		switch op {
		case "=":
			return value.Bool(cmp == 0)
		case "<>":
			return value.Bool(cmp != 0)
		case "<":
			return value.Bool(cmp < 0)
		case "<=":
			return value.Bool(cmp <= 0)
		case ">":
			return value.Bool(cmp > 0)
		default:
			return value.Bool(cmp >= 0)
		}
	}
	return value.Err(value.ErrVal, "unknown operator "+op)
}

// typeRank orders value kinds for mixed-type comparison: numbers sort
// before text, text before booleans.
func typeRank(v value.Value) int {
	switch v.Kind() {
	case value.KindEmpty, value.KindNumber:
		return 0
	case value.KindText:
		return 1
	default:
		return 2
	}
}

// compareValues implements spreadsheet comparison: numeric within numbers,
// case-insensitive within text, and by type rank across types. Empty cells
// compare as the zero of the other operand's type.
func compareValues(l, r value.Value) int {
	if l.IsEmpty() && !r.IsEmpty() {
		l = zeroOf(r)
	}
	if r.IsEmpty() && !l.IsEmpty() {
		r = zeroOf(l)
	}
	lr, rr := typeRank(l), typeRank(r)
	if lr != rr {
		if lr < rr {
			return -1
		}
		return 1
	}
	switch l.Kind() {
	case value.KindEmpty:
		return 0
	case value.KindNumber:
		switch {
		case l.Num() < r.Num():
			return -1
		case l.Num() > r.Num():
			return 1
		}
		return 0
	case value.KindText:
		return strings.Compare(strings.ToLower(l.Str()), strings.ToLower(r.Str()))
	case value.KindBool:
		lb, rb := l.B(), r.B()
		switch {
		case lb == rb:
			return 0
		case !lb:
			return -1
		}
		return 1
	}
	return 0
}

func zeroOf(v value.Value) value.Value {
	switch v.Kind() {
	case value.KindText:
		return value.Text("")
	case value.KindBool:
		return value.Bool(false)
	default:
		return value.Number(0)
	}
}

// mapElementwise applies f to a scalar, or to every element of an array.
func mapElementwise(v value.Value, f func(value.Value) value.Value) value.Value {
	if v.Kind() != value.KindArray {
		return f(v)
	}
	in := v.Rows()
	out := make([][]value.Value, len(in))
	for i, row := range in {
		out[i] = make([]value.Value, len(row))
		for j, el := range row {
			out[i][j] = f(el)
		}
	}
	return value.Array(out)
}

// zipElementwise broadcasts two operands the way dynamic arrays do: a
// scalar extends across the other operand's shape, single rows and columns
// stretch, and positions outside an operand's shape become #N/A.
func zipElementwise(l, r value.Value, f func(a, b value.Value) value.Value) value.Value {
	if l.Kind() != value.KindArray && r.Kind() != value.KindArray {
		return f(l, r)
	}
	lRows, lCols := shapeOf(l)
	rRows, rCols := shapeOf(r)
	nRows := max(lRows, rRows)
	nCols := max(lCols, rCols)
	out := make([][]value.Value, nRows)
	for i := 0; i < nRows; i++ {
		out[i] = make([]value.Value, nCols)
		for j := 0; j < nCols; j++ {
			a, aok := elementAt(l, i, j, lRows, lCols)
			b, bok := elementAt(r, i, j, rRows, rCols)
			if !aok || !bok {
				out[i][j] = value.ErrKind(value.ErrNA)
				continue
			}
			out[i][j] = f(a, b)
		}
	}
	return value.Array(out)
}

func shapeOf(v value.Value) (rows, cols int) {
	if v.Kind() != value.KindArray {
		return 1, 1
	}
	rs := v.Rows()
	for _, row := range rs {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return len(rs), cols
}

// elementAt reads the broadcast element (i, j) of v, stretching singleton
// dimensions.
func elementAt(v value.Value, i, j, rows, cols int) (value.Value, bool) {
	if v.Kind() != value.KindArray {
		return v, true
	}
	if rows == 1 {
		i = 0
	}
	if cols == 1 {
		j = 0
	}
	if i >= rows || j >= cols {
		return value.Value{}, false
	}
	rs := v.Rows()
	if j >= len(rs[i]) {
		return value.Value{}, false
	}
	return rs[i][j], true
}
