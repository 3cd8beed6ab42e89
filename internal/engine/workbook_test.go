package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sheetgridgo/internal/fn"
	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

func newTestWorkbook(t *testing.T) *Workbook {
	t.Helper()
	w := New(Options{RandSeed: 42})
	require.NoError(t, w.AddSheet("Sheet1"))
	return w
}

// at parses an A1 address, defaulting to Sheet1.
func at(t *testing.T, a string) ref.Cell {
	t.Helper()
	c, err := ref.ParseCell(a)
	require.NoError(t, err)
	if c.Sheet == "" {
		c.Sheet = "Sheet1"
	}
	return c
}

func TestLiteralRoundtrip(t *testing.T) {
	w := newTestWorkbook(t)

	require.NoError(t, w.SetValue(at(t, "A1"), value.Number(42)))
	require.NoError(t, w.SetValue(at(t, "B2"), value.Text("hello")))

	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), v)

	v, err = w.GetValue(at(t, "B2"))
	require.NoError(t, err)
	assert.Equal(t, value.Text("hello"), v)

	// Unset cells read as empty.
	v, err = w.GetValue(at(t, "Z99"))
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())
}

func TestSheetManagement(t *testing.T) {
	w := New(Options{})
	require.NoError(t, w.AddSheet("Sheet1"))
	require.Error(t, w.AddSheet("sheet1"), "sheet names compare case-insensitively")
	require.NoError(t, w.AddSheet("Data"))
	assert.Equal(t, []string{"Sheet1", "Data"}, w.Sheets())

	err := w.SetValue(ref.Cell{Sheet: "Missing", Row: 1, Col: 1}, value.Number(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sheet")

	err = w.SetValue(ref.Cell{Sheet: "Sheet1", Row: 0, Col: 1}, value.Number(1))
	require.Error(t, err, "addresses are 1-based")
}

func TestEditPropagationChain(t *testing.T) {
	w := newTestWorkbook(t)

	require.NoError(t, w.SetValue(at(t, "A1"), value.Number(1)))
	require.NoError(t, w.SetFormula(at(t, "B1"), "=A1*2"))
	require.NoError(t, w.SetFormula(at(t, "C1"), "=B1+1"))

	v, err := w.GetValue(at(t, "C1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(3), v)

	// An upstream edit dirties the whole chain.
	require.NoError(t, w.SetValue(at(t, "A1"), value.Number(10)))
	dirty, err := w.IsDirty(at(t, "C1"))
	require.NoError(t, err)
	assert.True(t, dirty)

	v, err = w.GetValue(at(t, "C1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(21), v)

	dirty, err = w.IsDirty(at(t, "C1"))
	require.NoError(t, err)
	assert.False(t, dirty, "demand evaluation cleans what it computes")
}

func TestDemandAndBatchAgree(t *testing.T) {
	build := func(t *testing.T) *Workbook {
		w := newTestWorkbook(t)
		require.NoError(t, w.SetValue(at(t, "A1"), value.Number(3)))
		require.NoError(t, w.SetValue(at(t, "A2"), value.Number(4)))
		require.NoError(t, w.SetFormula(at(t, "B1"), "=A1*A1"))
		require.NoError(t, w.SetFormula(at(t, "B2"), "=A2*A2"))
		require.NoError(t, w.SetFormula(at(t, "C1"), "=SQRT(B1+B2)"))
		return w
	}

	demand := build(t)
	got, err := demand.GetValue(at(t, "C1"))
	require.NoError(t, err)

	batch := build(t)
	sum, err := batch.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Computed)

	peeked, err := batch.Peek(at(t, "C1"))
	require.NoError(t, err)
	assert.Equal(t, got, peeked)
	assert.Equal(t, value.Number(5), peeked)
}

func TestRangeObserverDirtying(t *testing.T) {
	w := newTestWorkbook(t)

	for i, n := range []float64{10, 20, 30} {
		require.NoError(t, w.SetValue(ref.Cell{Sheet: "Sheet1", Row: i + 1, Col: 1}, value.Number(n)))
	}
	require.NoError(t, w.SetFormula(at(t, "B1"), "=SUM(A1:A3)"))

	v, err := w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(60), v)

	// Editing inside the observed range dirties the aggregate,
	// including an edit to a previously empty cell.
	require.NoError(t, w.SetValue(at(t, "A2"), value.Number(5)))
	dirty, err := w.IsDirty(at(t, "B1"))
	require.NoError(t, err)
	assert.True(t, dirty)

	v, err = w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(45), v)

	// An edit outside the range leaves it clean.
	require.NoError(t, w.SetValue(at(t, "A9"), value.Number(100)))
	dirty, err = w.IsDirty(at(t, "B1"))
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestCycleDetection(t *testing.T) {
	t.Run("two-cell cycle on demand", func(t *testing.T) {
		w := newTestWorkbook(t)
		require.NoError(t, w.SetFormula(at(t, "A1"), "=B1+1"))
		require.NoError(t, w.SetFormula(at(t, "B1"), "=A1+1"))

		v, err := w.GetValue(at(t, "A1"))
		require.NoError(t, err)
		ev, ok := v.ErrorValue()
		require.True(t, ok)
		assert.Equal(t, value.ErrCirc, ev.Kind)

		v, err = w.GetValue(at(t, "B1"))
		require.NoError(t, err)
		ev, ok = v.ErrorValue()
		require.True(t, ok)
		assert.Equal(t, value.ErrCirc, ev.Kind)
	})

	t.Run("self reference", func(t *testing.T) {
		w := newTestWorkbook(t)
		require.NoError(t, w.SetFormula(at(t, "A1"), "=A1"))
		v, err := w.GetValue(at(t, "A1"))
		require.NoError(t, err)
		ev, ok := v.ErrorValue()
		require.True(t, ok)
		assert.Equal(t, value.ErrCirc, ev.Kind)
	})

	t.Run("batch pass marks the cycle and continues", func(t *testing.T) {
		w := newTestWorkbook(t)
		require.NoError(t, w.SetFormula(at(t, "A1"), "=B1"))
		require.NoError(t, w.SetFormula(at(t, "B1"), "=A1"))
		require.NoError(t, w.SetValue(at(t, "D1"), value.Number(7)))
		require.NoError(t, w.SetFormula(at(t, "E1"), "=D1*2"))

		sum, err := w.EvaluateAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Cycles)

		v, err := w.Peek(at(t, "E1"))
		require.NoError(t, err)
		assert.Equal(t, value.Number(14), v, "unrelated formulas still evaluate")

		v, err = w.Peek(at(t, "A1"))
		require.NoError(t, err)
		ev, ok := v.ErrorValue()
		require.True(t, ok)
		assert.Equal(t, value.ErrCirc, ev.Kind)
	})

	t.Run("breaking the cycle recovers", func(t *testing.T) {
		w := newTestWorkbook(t)
		require.NoError(t, w.SetFormula(at(t, "A1"), "=B1+1"))
		require.NoError(t, w.SetFormula(at(t, "B1"), "=A1+1"))
		_, err := w.EvaluateAll(context.Background())
		require.NoError(t, err)

		require.NoError(t, w.SetValue(at(t, "B1"), value.Number(5)))
		v, err := w.GetValue(at(t, "A1"))
		require.NoError(t, err)
		assert.Equal(t, value.Number(6), v)
	})
}

func TestParseFailureStoredAsError(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "=SUM(1,"))

	text, ok, err := w.GetFormula(at(t, "A1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "=SUM(1,", text)

	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	ev, ok2 := v.ErrorValue()
	require.True(t, ok2)
	assert.Equal(t, value.ErrGeneric, ev.Kind)

	// Dependents see the stored error as a value.
	require.NoError(t, w.SetFormula(at(t, "B1"), "=A1+1"))
	v, err = w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.True(t, v.IsError())
}

func TestUnknownFunctionIsNameError(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "=NOPE(1)"))
	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	ev, ok := v.ErrorValue()
	require.True(t, ok)
	assert.Equal(t, value.ErrName, ev.Kind)
}

func TestCustomFunctionThroughWorkbook(t *testing.T) {
	w := newTestWorkbook(t)

	invoked := 0
	err := w.RegisterFunction("py_add", func(inv *fn.Invocation, args []value.Value) (value.Value, error) {
		invoked++
		a, e := value.AsNumber(args[0])
		if e != nil {
			return value.WrapError(e), nil
		}
		b, e := value.AsNumber(args[1])
		if e != nil {
			return value.WrapError(e), nil
		}
		return value.Number(a + b), nil
	}, fn.Options{MinArgs: 2, MaxArgs: 2, ThreadSafe: true})
	require.NoError(t, err)

	// Formula names resolve case-insensitively.
	require.NoError(t, w.SetFormula(at(t, "A1"), "=PY_ADD(2,3)"))
	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(5), v)
	assert.Equal(t, 1, invoked)

	// Arity violations never reach the callable.
	require.NoError(t, w.SetFormula(at(t, "A2"), "=py_add(1)"))
	v, err = w.GetValue(at(t, "A2"))
	require.NoError(t, err)
	ev, ok := v.ErrorValue()
	require.True(t, ok)
	assert.Equal(t, value.ErrVal, ev.Kind)
	assert.Equal(t, 1, invoked)
}

func TestVolatileRecalculation(t *testing.T) {
	t.Run("volatiles recompute every full pass", func(t *testing.T) {
		now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		clk := &steppingClock{t: now}
		w := New(Options{Clock: clk})
		require.NoError(t, w.AddSheet("Sheet1"))
		require.NoError(t, w.SetFormula(at(t, "A1"), "=NOW()"))

		_, err := w.EvaluateAll(context.Background())
		require.NoError(t, err)
		first, err := w.Peek(at(t, "A1"))
		require.NoError(t, err)

		clk.t = clk.t.Add(time.Hour)
		sum, err := w.EvaluateAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Computed)

		second, err := w.Peek(at(t, "A1"))
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("frozen volatiles keep their cache", func(t *testing.T) {
		clk := &steppingClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
		w := New(Options{Clock: clk})
		require.NoError(t, w.AddSheet("Sheet1"))
		require.NoError(t, w.SetFormula(at(t, "A1"), "=NOW()"))
		_, err := w.EvaluateAll(context.Background())
		require.NoError(t, err)
		first, err := w.Peek(at(t, "A1"))
		require.NoError(t, err)

		w.SetFreezeVolatiles(true)
		clk.t = clk.t.Add(time.Hour)
		sum, err := w.EvaluateAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, sum.Computed)

		second, err := w.Peek(at(t, "A1"))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("seeded random streams reproduce", func(t *testing.T) {
		run := func() []value.Value {
			w := New(Options{RandSeed: 7})
			require.NoError(t, w.AddSheet("Sheet1"))
			require.NoError(t, w.SetFormula(at(t, "A1"), "=RAND()"))
			require.NoError(t, w.SetFormula(at(t, "A2"), "=RANDBETWEEN(1,100)"))
			_, err := w.EvaluateAll(context.Background())
			require.NoError(t, err)
			vs, err := w.GetValues([]ref.Cell{at(t, "A1"), at(t, "A2")})
			require.NoError(t, err)
			return vs
		}
		assert.Equal(t, run(), run())
	})
}

type steppingClock struct {
	t time.Time
}

func (c *steppingClock) Now() time.Time { return c.t }

func TestClearCell(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetValue(at(t, "A1"), value.Number(2)))
	require.NoError(t, w.SetFormula(at(t, "B1"), "=A1*3"))

	v, err := w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(6), v)

	require.NoError(t, w.ClearCell(at(t, "A1")))
	v, err = w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(0), v, "cleared precedent reads as empty")

	// Clearing a formula removes it from the graph entirely.
	require.NoError(t, w.ClearCell(at(t, "B1")))
	_, ok, err := w.GetFormula(at(t, "B1"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing a cell that was never set is a no-op.
	require.NoError(t, w.ClearCell(at(t, "J10")))
}

func TestReplacingFormulaRewritesEdges(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetValue(at(t, "A1"), value.Number(1)))
	require.NoError(t, w.SetValue(at(t, "A2"), value.Number(100)))
	require.NoError(t, w.SetFormula(at(t, "B1"), "=A1"))

	v, err := w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)

	require.NoError(t, w.SetFormula(at(t, "B1"), "=A2"))
	v, err = w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(100), v)

	// The old edge is gone: editing A1 leaves B1 clean.
	require.NoError(t, w.SetValue(at(t, "A1"), value.Number(2)))
	dirty, err := w.IsDirty(at(t, "B1"))
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestCrossSheetReferences(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.AddSheet("Data"))
	require.NoError(t, w.SetValue(ref.Cell{Sheet: "Data", Row: 1, Col: 1}, value.Number(9)))
	require.NoError(t, w.SetFormula(at(t, "A1"), "=Data!A1+1"))

	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(10), v)

	require.NoError(t, w.SetValue(ref.Cell{Sheet: "Data", Row: 1, Col: 1}, value.Number(19)))
	v, err = w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(20), v)
}

func TestBulkOperations(t *testing.T) {
	w := newTestWorkbook(t)

	err := w.SetValues([]ValueUpdate{
		{Cell: at(t, "A1"), Value: value.Number(1)},
		{Cell: ref.Cell{Sheet: "Missing", Row: 1, Col: 1}, Value: value.Number(2)},
	})
	require.Error(t, err)
	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.True(t, v.IsEmpty(), "a failed batch writes nothing")

	require.NoError(t, w.SetValues([]ValueUpdate{
		{Cell: at(t, "A1"), Value: value.Number(1)},
		{Cell: at(t, "A2"), Value: value.Number(2)},
	}))
	require.NoError(t, w.SetFormulas([]FormulaUpdate{
		{Cell: at(t, "B1"), Text: "=A1+A2"},
	}))
	vs, err := w.GetValues([]ref.Cell{at(t, "B1")})
	require.NoError(t, err)
	assert.Equal(t, value.Number(3), vs[0])
}

func TestReadWriteRange(t *testing.T) {
	w := newTestWorkbook(t)
	r, err := ref.ParseRange("A1:B2")
	require.NoError(t, err)
	r.Sheet = "Sheet1"

	require.Error(t, w.WriteRange(r, [][]value.Value{{value.Number(1)}}), "shape mismatch rejected")

	require.NoError(t, w.WriteRange(r, [][]value.Value{
		{value.Number(1), value.Number(2)},
		{value.Number(3), value.Number(4)},
	}))
	rows, err := w.ReadRange(r)
	require.NoError(t, err)
	assert.Equal(t, value.Number(4), rows[1][1])
}

func TestChangeLog(t *testing.T) {
	w := newTestWorkbook(t)
	w.SetActor("alice")
	w.SetReason("import")

	require.NoError(t, w.SetValue(at(t, "A1"), value.Number(1)))
	require.NoError(t, w.SetFormula(at(t, "B1"), "=A1*2"))
	require.NoError(t, w.ClearCell(at(t, "A1")))

	entries := w.Changes()
	require.Len(t, entries, 3)
	assert.Equal(t, "set_value", entries[0].Kind)
	assert.Equal(t, "set_formula", entries[1].Kind)
	assert.Equal(t, "clear_cell", entries[2].Kind)
	assert.Equal(t, "alice", entries[0].Actor)
	assert.Equal(t, "import", entries[0].Reason)
	assert.NotEmpty(t, entries[0].Correlation, "unset correlation mints a UUID")
	assert.NotEqual(t, entries[0].Correlation, entries[1].Correlation)

	w.SetCorrelation("batch-7")
	require.NoError(t, w.SetValue(at(t, "A2"), value.Number(2)))
	entries = w.Changes()
	assert.Equal(t, "batch-7", entries[len(entries)-1].Correlation)
}

func TestWorkbookMode(t *testing.T) {
	w := newTestWorkbook(t)
	assert.Equal(t, ModeEphemeral, w.Mode())
	assert.Empty(t, w.BackingPath())
	assert.Equal(t, "ephemeral", w.Mode().String())

	w.SetBackingPath("model.xlsx")
	assert.Equal(t, ModeBacked, w.Mode())
	assert.Equal(t, "model.xlsx", w.BackingPath())
	assert.Equal(t, "backed", w.Mode().String())
}

func TestLateRegisteredFunctionRecomputesCallers(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "=LATE(2,3)"))
	require.NoError(t, w.SetFormula(at(t, "B1"), "=A1+1"))

	_, err := w.EvaluateAll(context.Background())
	require.NoError(t, err)
	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	e, ok := v.ErrorValue()
	require.True(t, ok)
	assert.Equal(t, value.ErrName, e.Kind)

	require.NoError(t, w.RegisterFunction("late", func(_ *fn.Invocation, args []value.Value) (value.Value, error) {
		a, _ := value.AsNumber(args[0])
		b, _ := value.AsNumber(args[1])
		return value.Number(a + b), nil
	}, fn.Options{MinArgs: 2, MaxArgs: 2, ThreadSafe: true}))

	_, err = w.EvaluateAll(context.Background())
	require.NoError(t, err)
	v, err = w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(5), v)

	// the dependent picked up the recomputed value too
	v, err = w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(6), v)
}

func TestUnregisterDirtiesCallers(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.RegisterFunction("double", func(_ *fn.Invocation, args []value.Value) (value.Value, error) {
		f, _ := value.AsNumber(args[0])
		return value.Number(2 * f), nil
	}, fn.Options{MinArgs: 1, MaxArgs: 1, ThreadSafe: true}))
	require.NoError(t, w.SetFormula(at(t, "A1"), "=DOUBLE(4)"))

	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(8), v)

	require.True(t, w.UnregisterFunction("DOUBLE"))
	_, err = w.EvaluateAll(context.Background())
	require.NoError(t, err)

	v, err = w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	e, ok := v.ErrorValue()
	require.True(t, ok)
	assert.Equal(t, value.ErrName, e.Kind)

	assert.False(t, w.UnregisterFunction("double"), "second removal finds nothing")
}

func TestBuiltinOverrideChangesEvaluation(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "=SUM(1,2)"))

	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(3), v)

	require.NoError(t, w.RegisterFunction("sum", func(_ *fn.Invocation, _ []value.Value) (value.Value, error) {
		return value.Number(999), nil
	}, fn.Options{MinArgs: 0, MaxArgs: fn.Unbounded, ThreadSafe: true, AllowOverrideBuiltin: true}))

	// registration alone dirtied the caller; a demand read recomputes
	v, err = w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(999), v)
}
