package engine

import (
	"context"

	"github.com/vk/sheetgridgo/internal/ctxlog"
	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// maxSpillRounds bounds the batch fixpoint loop. Each round can only be
// re-entered when a spill changed the shape of a region some formula reads,
// so in practice two rounds suffice; the cap guards against pathological
// ping-ponging spills.
const maxSpillRounds = 16

// evalState drives demand evaluation: a depth-first walk over stale
// precedents with an explicit stack for cycle detection. Cells found on a
// cycle are pinned to the circular-reference error; cells that merely read
// a circular cell evaluate normally and see the error as a value.
type evalState struct {
	w        *Workbook
	visiting map[ref.Cell]int // cell -> stack index
	stack    []ref.Cell
	circular map[ref.Cell]struct{}
}

func newEvalState(w *Workbook) *evalState {
	return &evalState{
		w:        w,
		visiting: make(map[ref.Cell]int),
		circular: make(map[ref.Cell]struct{}),
	}
}

func (st *evalState) read(c ref.Cell) value.Value {
	return st.ensure(c)
}

// ensure returns the up-to-date value of c, recomputing it and any stale
// precedents first.
func (st *evalState) ensure(c ref.Cell) value.Value {
	w := st.w
	s, err := w.sheetFor(c.Sheet)
	if err != nil {
		return value.ErrKind(value.ErrRef)
	}
	// A missing cell reads as empty even when a never-evaluated anchor
	// elsewhere would spill into it; targets only exist after their anchor's
	// first commit, so demand reads cannot discover a spill before the
	// anchor has run. Batch passes evaluate anchors ahead of their targets
	// and close the gap.
	cl := s.cellAt(c.Row, c.Col)
	if cl == nil {
		return value.Empty()
	}
	if cl.isSpill() {
		anchor := *cl.spillAnchor
		st.ensure(anchor)
		// The spill commit may have rewritten or deleted this cell.
		if pc := s.cellAt(c.Row, c.Col); pc != nil {
			return pc.currentValue()
		}
		return value.Empty()
	}
	if !cl.isFormula() {
		return cl.literal
	}
	if !cl.dirty {
		return cl.cached
	}

	if idx, ok := st.visiting[c]; ok {
		// Back edge: everything from idx up the stack is on the cycle.
		for i := idx; i < len(st.stack); i++ {
			st.circular[st.stack[i]] = struct{}{}
		}
		return value.ErrKind(value.ErrCirc)
	}

	st.visiting[c] = len(st.stack)
	st.stack = append(st.stack, c)

	result := w.evalNode(st, c, cl.ast)

	st.stack = st.stack[:len(st.stack)-1]
	delete(st.visiting, c)

	if _, bad := st.circular[c]; bad {
		result = value.ErrKind(value.ErrCirc)
	}
	return w.commitResultLocked(c, cl, result)
}

// storageReader reads committed values only; batch evaluation uses it
// because topological order guarantees precedents are already fresh.
type storageReader struct {
	w *Workbook
}

func (r storageReader) read(c ref.Cell) value.Value {
	return r.w.readCellLocked(c)
}

// Summary reports what a full evaluation pass did.
type Summary struct {
	// Computed counts formula evaluations across all rounds.
	Computed int
	// Cycles counts cells assigned the circular-reference error.
	Cycles int
	// Rounds counts fixpoint rounds; above one means a spill re-dirtied
	// part of the graph mid-pass.
	Rounds int
}

// EvaluateAll recomputes every stale formula, plus volatiles unless frozen,
// in dependency order. Cells on a dependency cycle are assigned the
// circular-reference error. Independent formulas whose call sets are
// thread-safe and deterministic run concurrently within a round.
func (w *Workbook) EvaluateAll(ctx context.Context) (Summary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	log := ctxlog.FromContext(ctx)
	var sum Summary

	if !w.freezeVolatiles {
		w.graph.markVolatilesDirty()
	}

	for round := 0; round < maxSpillRounds; round++ {
		if len(w.graph.dirty) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Rounds++

		candidates := make(map[ref.Cell]struct{}, len(w.graph.dirty))
		for c := range w.graph.dirty {
			candidates[c] = struct{}{}
		}
		order, cyclic := w.graph.calcOrder(candidates, w.expandRange)

		for c := range cyclic {
			s, err := w.sheetFor(c.Sheet)
			if err != nil {
				continue
			}
			cl := s.cellAt(c.Row, c.Col)
			if cl == nil {
				continue
			}
			w.clearSpillRegionLocked(c, cl)
			cl.cached = value.ErrKind(value.ErrCirc)
			cl.dirty = false
			w.graph.clearDirty(c)
			w.graph.markAffected(c)
			sum.Cycles++
		}
		// markAffected re-dirties cycle members that depend on each
		// other; they are settled for this pass.
		for c := range cyclic {
			w.graph.clearDirty(c)
		}

		computed := w.runPassLocked(order)
		sum.Computed += computed

		log.Debug("evaluation round complete",
			"round", sum.Rounds,
			"computed", computed,
			"cycles", len(cyclic),
			"remaining_dirty", len(w.graph.dirty))
	}

	return sum, nil
}

// EvaluateCell forces the cell and its stale precedents fresh, returning
// the resulting value. Unlike GetValue it reports how much work was done.
func (w *Workbook) EvaluateCell(ctx context.Context, c ref.Cell) (value.Value, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return value.Empty(), err
	}
	c, _, err := w.canonicalCell(c)
	if err != nil {
		return value.Empty(), err
	}
	st := newEvalState(w)
	return st.ensure(c), nil
}
