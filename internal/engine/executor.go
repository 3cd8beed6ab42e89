package engine

import (
	"runtime"
	"sync"

	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

var defaultWorkers = runtime.NumCPU()

// runPassLocked evaluates one topologically ordered batch. The order is
// sliced into levels so that every cell's in-batch precedents sit in an
// earlier level; within a level, cells whose whole call set is thread-safe
// and deterministic are computed concurrently. All commits happen serially
// on the calling goroutine, so sheet and graph state is only ever mutated
// under the workbook lock it already holds.
func (w *Workbook) runPassLocked(order []ref.Cell) int {
	inBatch := make(map[ref.Cell]int, len(order)) // cell -> level
	levels := make([][]ref.Cell, 0, 4)

	for _, c := range order {
		lvl := 0
		if v, ok := w.graph.vertexAt(c); ok {
			for p := range v.precedents {
				if pl, ok := inBatch[p]; ok && pl+1 > lvl {
					lvl = pl + 1
				}
			}
			for r := range v.rangePrecs {
				for _, pc := range w.expandRange(r) {
					if pl, ok := inBatch[pc]; ok && pl+1 > lvl {
						lvl = pl + 1
					}
				}
			}
		}
		inBatch[c] = lvl
		for len(levels) <= lvl {
			levels = append(levels, nil)
		}
		levels[lvl] = append(levels[lvl], c)
	}

	computed := 0
	rd := storageReader{w: w}
	for _, level := range levels {
		var parallel, serial []evalItem
		for _, c := range level {
			cl, ok := w.liveFormulaAt(c)
			if !ok {
				continue
			}
			item := evalItem{id: c, cl: cl}
			if v, vok := w.graph.vertexAt(c); vok && v.parallelOK && w.workers > 1 && len(level) > 1 {
				parallel = append(parallel, item)
			} else {
				serial = append(serial, item)
			}
		}

		if len(parallel) > 0 {
			results := make([]value.Value, len(parallel))
			var wg sync.WaitGroup
			sem := make(chan struct{}, w.workers)
			for i := range parallel {
				wg.Add(1)
				sem <- struct{}{}
				go func(i int) {
					defer wg.Done()
					defer func() { <-sem }()
					results[i] = w.evalNode(rd, parallel[i].id, parallel[i].cl.ast)
				}(i)
			}
			wg.Wait()
			for i, item := range parallel {
				w.commitResultLocked(item.id, item.cl, results[i])
				computed++
			}
		}

		for _, item := range serial {
			result := w.evalNode(rd, item.id, item.cl.ast)
			w.commitResultLocked(item.id, item.cl, result)
			computed++
		}
	}
	return computed
}

type evalItem struct {
	id ref.Cell
	cl *cell
}

// liveFormulaAt fetches the cell if it still holds a dirty formula; cells
// rewritten or cleaned mid-pass (a broken spill, for example) are skipped.
func (w *Workbook) liveFormulaAt(c ref.Cell) (*cell, bool) {
	s, err := w.sheetFor(c.Sheet)
	if err != nil {
		return nil, false
	}
	cl := s.cellAt(c.Row, c.Col)
	if cl == nil || !cl.isFormula() || !cl.dirty {
		return nil, false
	}
	return cl, true
}
