package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sheetgridgo/internal/value"
)

func TestSpillIntoAdjacentCells(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "={1,2;3,4}"))

	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v, "anchor shows the top-left element")

	for addr, want := range map[string]float64{"B1": 2, "A2": 3, "B2": 4} {
		v, err := w.GetValue(at(t, addr))
		require.NoError(t, err)
		assert.Equal(t, value.Number(want), v, addr)
	}

	// Spill targets carry no formula of their own.
	_, ok, err := w.GetFormula(at(t, "B2"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSpillBlocked(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetValue(at(t, "B1"), value.Number(99)))
	require.NoError(t, w.SetFormula(at(t, "A1"), "={1,2;3,4}"))

	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	ev, ok := v.ErrorValue()
	require.True(t, ok)
	assert.Equal(t, value.ErrSpill, ev.Kind)

	// The blocking cell is untouched and nothing spilled.
	v, err = w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(99), v)
	v, err = w.GetValue(at(t, "A2"))
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())

	// Removing the blocker re-dirties the anchor so the next evaluation
	// can spill.
	require.NoError(t, w.ClearCell(at(t, "B1")))
	v, err = w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)
	v, err = w.GetValue(at(t, "B2"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(4), v)
}

func TestOverwritingSpillTargetBreaksTheSpill(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "={1,2;3,4}"))
	_, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)

	require.NoError(t, w.SetValue(at(t, "B2"), value.Number(7)))

	v, err := w.Peek(at(t, "A1"))
	require.NoError(t, err)
	ev, ok := v.ErrorValue()
	require.True(t, ok)
	assert.Equal(t, value.ErrSpill, ev.Kind)

	// The rest of the old region is released.
	v, err = w.GetValue(at(t, "B1"))
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())
	v, err = w.GetValue(at(t, "B2"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(7), v)
}

func TestSpillReshapeShrinks(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "={1;2;3}"))
	_, err := w.EvaluateAll(context.Background())
	require.NoError(t, err)

	v, err := w.Peek(at(t, "A3"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(3), v)

	// A shorter result releases the cells it no longer covers.
	require.NoError(t, w.SetFormula(at(t, "A1"), "={10;20}"))
	_, err = w.EvaluateAll(context.Background())
	require.NoError(t, err)

	v, err = w.Peek(at(t, "A2"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(20), v)
	v, err = w.Peek(at(t, "A3"))
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())
}

func TestSpillFeedsDownstreamAggregates(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "=TRANSPOSE({1,2,3})"))
	require.NoError(t, w.SetFormula(at(t, "B1"), "=SUM(A1:A3)"))

	sum, err := w.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sum.Rounds, 1)

	v, err := w.Peek(at(t, "B1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(6), v)
}

func TestSingleElementArrayCollapses(t *testing.T) {
	w := newTestWorkbook(t)
	require.NoError(t, w.SetFormula(at(t, "A1"), "={42}"))
	v, err := w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), v)

	// No region was claimed.
	require.NoError(t, w.SetValue(at(t, "B1"), value.Number(1)))
	v, err = w.GetValue(at(t, "A1"))
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), v)
}
