package fn

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sheetgridgo/internal/value"
)

// testInvocation builds an invocation with a fixed clock and a seeded
// random source, matching what a deterministic evaluation pass would hand
// to a builtin.
func testInvocation(t *testing.T) *Invocation {
	t.Helper()
	clock, err := NewFixedClock(time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC), UTCTZ())
	require.NoError(t, err)
	return &Invocation{
		Clock:      clock,
		Rand:       rand.New(rand.NewPCG(7, 11)),
		DateSystem: value.DateSystem1900,
	}
}

func dispatch(t *testing.T, name string, args ...value.Value) value.Value {
	t.Helper()
	return NewRegistry().Dispatch(testInvocation(t), name, args)
}

func number(t *testing.T, v value.Value) float64 {
	t.Helper()
	require.Equal(t, value.KindNumber, v.Kind(), "got %s", v)
	return v.Num()
}

func grid(vals ...[]float64) value.Value {
	rows := make([][]value.Value, len(vals))
	for i, r := range vals {
		rows[i] = make([]value.Value, len(r))
		for j, f := range r {
			rows[i][j] = value.Number(f)
		}
	}
	return value.Array(rows)
}

func TestAggregations(t *testing.T) {
	t.Run("SUM scalars", func(t *testing.T) {
		assert.Equal(t, 6.0, number(t, dispatch(t, "SUM", value.Number(1), value.Number(2), value.Number(3))))
	})

	t.Run("SUM coerces scalar text", func(t *testing.T) {
		assert.Equal(t, 3.5, number(t, dispatch(t, "SUM", value.Text("1.5"), value.Number(2))))
	})

	t.Run("SUM skips non-numbers inside arrays", func(t *testing.T) {
		arr := value.Array([][]value.Value{{value.Number(1), value.Text("x"), value.Empty()}})
		assert.Equal(t, 1.0, number(t, dispatch(t, "SUM", arr)))
	})

	t.Run("SUM propagates errors from arrays", func(t *testing.T) {
		arr := value.Array([][]value.Value{{value.Number(1), value.ErrKind(value.ErrRef)}})
		out := dispatch(t, "SUM", arr)
		e := requireErrValue(t, out)
		assert.Equal(t, value.ErrRef, e.Kind)
	})

	t.Run("SUM errors on non-numeric scalar text", func(t *testing.T) {
		out := dispatch(t, "SUM", value.Text("nope"))
		e := requireErrValue(t, out)
		assert.Equal(t, value.ErrVal, e.Kind)
	})

	t.Run("AVERAGE", func(t *testing.T) {
		assert.Equal(t, 2.0, number(t, dispatch(t, "AVERAGE", grid([]float64{1, 2, 3}))))
	})

	t.Run("AVERAGE of nothing is DIV/0", func(t *testing.T) {
		out := dispatch(t, "AVERAGE", value.Empty())
		e := requireErrValue(t, out)
		assert.Equal(t, value.ErrDiv0, e.Kind)
	})

	t.Run("COUNT counts numbers only", func(t *testing.T) {
		arr := value.Array([][]value.Value{{value.Number(1), value.Text("x"), value.Bool(true), value.Empty()}})
		assert.Equal(t, 1.0, number(t, dispatch(t, "COUNT", arr)))
	})

	t.Run("COUNTA counts non-empty", func(t *testing.T) {
		arr := value.Array([][]value.Value{{value.Number(1), value.Text("x"), value.Bool(true), value.Empty()}})
		assert.Equal(t, 3.0, number(t, dispatch(t, "COUNTA", arr)))
	})

	t.Run("MIN and MAX", func(t *testing.T) {
		assert.Equal(t, -2.0, number(t, dispatch(t, "MIN", grid([]float64{5, -2, 3}))))
		assert.Equal(t, 5.0, number(t, dispatch(t, "MAX", grid([]float64{5, -2, 3}))))
	})
}

func TestLogicFunctions(t *testing.T) {
	t.Run("IF picks branch", func(t *testing.T) {
		out := dispatch(t, "IF", value.Bool(true), value.Text("yes"), value.Text("no"))
		assert.Equal(t, "yes", out.Str())
		out = dispatch(t, "IF", value.Number(0), value.Text("yes"), value.Text("no"))
		assert.Equal(t, "no", out.Str())
	})

	t.Run("IF without else yields FALSE", func(t *testing.T) {
		out := dispatch(t, "IF", value.Bool(false), value.Text("yes"))
		require.Equal(t, value.KindBool, out.Kind())
		assert.False(t, out.B())
	})

	t.Run("AND and OR flatten arrays and skip blanks", func(t *testing.T) {
		arr := value.Array([][]value.Value{{value.Bool(true), value.Empty(), value.Number(1)}})
		assert.True(t, dispatch(t, "AND", arr).B())
		arr = value.Array([][]value.Value{{value.Bool(false), value.Number(0)}})
		assert.True(t, dispatch(t, "OR", arr, value.Bool(true)).B())
		assert.False(t, dispatch(t, "OR", arr).B())
	})

	t.Run("NOT", func(t *testing.T) {
		assert.False(t, dispatch(t, "NOT", value.Bool(true)).B())
		assert.True(t, dispatch(t, "NOT", value.Number(0)).B())
	})
}

func TestTextFunctions(t *testing.T) {
	assert.Equal(t, "abc123", dispatch(t, "CONCATENATE", value.Text("abc"), value.Number(123)).Str())
	assert.Equal(t, 5.0, number(t, dispatch(t, "LEN", value.Text("héllo"))), "LEN counts runes")
	assert.Equal(t, "HELLO", dispatch(t, "UPPER", value.Text("hello")).Str())
	assert.Equal(t, "hello", dispatch(t, "LOWER", value.Text("HELLO")).Str())
	assert.Equal(t, "a b", dispatch(t, "TRIM", value.Text("  a   b  ")).Str())
}

func TestMathFunctions(t *testing.T) {
	t.Run("ABS SQRT POWER PI", func(t *testing.T) {
		assert.Equal(t, 2.5, number(t, dispatch(t, "ABS", value.Number(-2.5))))
		assert.Equal(t, 3.0, number(t, dispatch(t, "SQRT", value.Number(9))))
		assert.Equal(t, 8.0, number(t, dispatch(t, "POWER", value.Number(2), value.Number(3))))
		assert.InDelta(t, math.Pi, number(t, dispatch(t, "PI")), 1e-15)
	})

	t.Run("SQRT of negative is NUM error", func(t *testing.T) {
		e := requireErrValue(t, dispatch(t, "SQRT", value.Number(-1)))
		assert.Equal(t, value.ErrNum, e.Kind)
	})

	t.Run("ROUND with digits", func(t *testing.T) {
		assert.Equal(t, 3.0, number(t, dispatch(t, "ROUND", value.Number(2.5))))
		assert.Equal(t, 2.57, number(t, dispatch(t, "ROUND", value.Number(2.567), value.Number(2))))
		assert.InDelta(t, 130.0, number(t, dispatch(t, "ROUND", value.Number(126), value.Number(-1))), 1e-9)
	})

	t.Run("FLOOR and CEILING honor significance", func(t *testing.T) {
		assert.Equal(t, 2.5, number(t, dispatch(t, "FLOOR", value.Number(2.7), value.Number(0.5))))
		assert.Equal(t, 3.0, number(t, dispatch(t, "CEILING", value.Number(2.1), value.Number(1))))
		e := requireErrValue(t, dispatch(t, "FLOOR", value.Number(2.7), value.Number(0)))
		assert.Equal(t, value.ErrDiv0, e.Kind)
	})

	t.Run("MOD sign follows divisor", func(t *testing.T) {
		assert.Equal(t, 1.0, number(t, dispatch(t, "MOD", value.Number(7), value.Number(3))))
		assert.Equal(t, 2.0, number(t, dispatch(t, "MOD", value.Number(-7), value.Number(3))))
		assert.Equal(t, -2.0, number(t, dispatch(t, "MOD", value.Number(7), value.Number(-3))))
		e := requireErrValue(t, dispatch(t, "MOD", value.Number(7), value.Number(0)))
		assert.Equal(t, value.ErrDiv0, e.Kind)
	})
}

func TestDateFunctions(t *testing.T) {
	t.Run("DATE builds a serial", func(t *testing.T) {
		// 1900-01-01 is serial 1 under the 1900 system
		assert.Equal(t, 1.0, number(t, dispatch(t, "DATE", value.Number(1900), value.Number(1), value.Number(1))))
	})

	t.Run("NOW uses the injected clock", func(t *testing.T) {
		got := number(t, dispatch(t, "NOW"))
		want := value.SerialFromTime(time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC), value.DateSystem1900)
		assert.InDelta(t, want, got, 1e-9)
		assert.InDelta(t, 0.75, got-math.Trunc(got), 1e-9, "18:00 is three quarters through the day")
	})

	t.Run("TODAY truncates to midnight", func(t *testing.T) {
		got := number(t, dispatch(t, "TODAY"))
		assert.Equal(t, math.Trunc(got), got)
		assert.Equal(t, math.Trunc(number(t, dispatch(t, "NOW"))), got)
	})
}

func TestRandomFunctions(t *testing.T) {
	t.Run("RAND stays in the half-open unit interval", func(t *testing.T) {
		inv := testInvocation(t)
		r := NewRegistry()
		for i := 0; i < 100; i++ {
			f := r.Dispatch(inv, "RAND", nil).Num()
			assert.GreaterOrEqual(t, f, 0.0)
			assert.Less(t, f, 1.0)
		}
	})

	t.Run("RANDBETWEEN is inclusive and integral", func(t *testing.T) {
		inv := testInvocation(t)
		r := NewRegistry()
		for i := 0; i < 100; i++ {
			f := number(t, r.Dispatch(inv, "RANDBETWEEN", []value.Value{value.Number(2), value.Number(5)}))
			assert.GreaterOrEqual(t, f, 2.0)
			assert.LessOrEqual(t, f, 5.0)
			assert.Equal(t, math.Trunc(f), f)
		}
	})

	t.Run("RANDBETWEEN rejects inverted bounds", func(t *testing.T) {
		e := requireErrValue(t, dispatch(t, "RANDBETWEEN", value.Number(5), value.Number(2)))
		assert.Equal(t, value.ErrNum, e.Kind)
	})

	t.Run("same seed reproduces the sequence", func(t *testing.T) {
		draw := func() []float64 {
			inv := testInvocation(t)
			r := NewRegistry()
			out := make([]float64, 10)
			for i := range out {
				out[i] = r.Dispatch(inv, "RAND", nil).Num()
			}
			return out
		}
		assert.Equal(t, draw(), draw())
	})
}

func TestTranspose(t *testing.T) {
	t.Run("swaps axes", func(t *testing.T) {
		out := dispatch(t, "TRANSPOSE", grid([]float64{1, 2, 3}, []float64{4, 5, 6}))
		require.True(t, out.IsArray())
		rows := out.Rows()
		require.Len(t, rows, 3)
		require.Len(t, rows[0], 2)
		assert.Equal(t, 4.0, rows[0][1].Num())
		assert.Equal(t, 6.0, rows[2][1].Num())
	})

	t.Run("scalar becomes 1x1", func(t *testing.T) {
		out := dispatch(t, "TRANSPOSE", value.Number(9))
		require.True(t, out.IsArray())
		assert.Equal(t, 9.0, out.Rows()[0][0].Num())
	})
}
