package engine

import (
	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// Array results spill down and to the right of their anchor. Targets must
// be empty or already owned by the same anchor; anything else blocks the
// spill and the anchor shows a #SPILL! error instead. A 1x1 array collapses
// to its scalar and never spills.

// clearSpillRegionLocked releases the cells a formula previously spilled
// into, dirtying their dependents. The anchor cell itself is untouched.
func (w *Workbook) clearSpillRegionLocked(anchor ref.Cell, cl *cell) {
	if cl == nil || cl.spilled == nil {
		return
	}
	region := *cl.spilled
	cl.spilled = nil
	s, err := w.sheetFor(region.Sheet)
	if err != nil {
		return
	}
	for _, c := range region.Cells() {
		if c == anchor {
			continue
		}
		t := s.cellAt(c.Row, c.Col)
		if t == nil || !t.isSpill() || *t.spillAnchor != anchor {
			continue
		}
		s.deleteCell(c.Row, c.Col)
		w.graph.markAffected(c)
	}
}

// breakSpillLocked rewrites the spill anchor to the spill error after one
// of its target cells was overwritten, releasing the rest of the region.
func (w *Workbook) breakSpillLocked(anchor ref.Cell) {
	s, err := w.sheetFor(anchor.Sheet)
	if err != nil {
		return
	}
	cl := s.cellAt(anchor.Row, anchor.Col)
	if cl == nil {
		return
	}
	var region *ref.Range
	if cl.spilled != nil {
		r := *cl.spilled
		region = &r
	}
	w.clearSpillRegionLocked(anchor, cl)
	if cl.isFormula() {
		cl.cached = value.ErrKind(value.ErrSpill)
		cl.dirty = false
		w.graph.clearDirty(anchor)
		if region != nil {
			w.blockedSpills[anchor] = *region
		}
		w.graph.markAffected(anchor)
	}
}

// commitResultLocked installs a freshly computed value on a formula cell,
// spilling arrays into the adjacent region. It returns the value the
// anchor displays, which is the array's top-left element on a successful
// spill and #SPILL! on a blocked one.
func (w *Workbook) commitResultLocked(anchor ref.Cell, cl *cell, v value.Value) value.Value {
	w.clearSpillRegionLocked(anchor, cl)

	if v.Kind() != value.KindArray {
		cl.cached = v
		cl.dirty = false
		w.graph.clearDirty(anchor)
		delete(w.blockedSpills, anchor)
		return v
	}

	rows := v.Rows()
	if len(rows) == 1 && len(rows[0]) == 1 {
		cl.cached = rows[0][0]
		cl.dirty = false
		w.graph.clearDirty(anchor)
		delete(w.blockedSpills, anchor)
		return cl.cached
	}

	nRows, nCols := len(rows), 0
	for _, row := range rows {
		if len(row) > nCols {
			nCols = len(row)
		}
	}
	region := ref.Range{
		Sheet:    anchor.Sheet,
		StartRow: anchor.Row, StartCol: anchor.Col,
		EndRow: anchor.Row + nRows - 1, EndCol: anchor.Col + nCols - 1,
	}

	s, err := w.sheetFor(anchor.Sheet)
	if err != nil {
		cl.cached = value.ErrKind(value.ErrRef)
		cl.dirty = false
		w.graph.clearDirty(anchor)
		return cl.cached
	}
	if blocked := w.spillBlocked(s, anchor, region); blocked {
		cl.cached = value.ErrKind(value.ErrSpill)
		cl.dirty = false
		w.graph.clearDirty(anchor)
		w.blockedSpills[anchor] = region
		w.log.Debug("spill blocked", "anchor", ref.FormatCell(anchor), "region", region.String())
		return cl.cached
	}
	delete(w.blockedSpills, anchor)

	for i, row := range rows {
		for j := 0; j < nCols; j++ {
			var elem value.Value
			if j < len(row) {
				elem = row[j]
			} else {
				elem = value.ErrKind(value.ErrNA)
			}
			if i == 0 && j == 0 {
				continue
			}
			tc := ref.Cell{Sheet: anchor.Sheet, Row: anchor.Row + i, Col: anchor.Col + j}
			t := s.ensureCell(tc.Row, tc.Col)
			a := anchor
			*t = cell{cached: elem, spillAnchor: &a}
			w.graph.markAffected(tc)
		}
	}
	cl.cached = rows[0][0]
	cl.dirty = false
	cl.spilled = &region
	w.graph.clearDirty(anchor)
	return cl.cached
}

// spillBlocked reports whether any target in the region other than the
// anchor already holds content not owned by this anchor.
func (w *Workbook) spillBlocked(s *sheet, anchor ref.Cell, region ref.Range) bool {
	for _, c := range region.Cells() {
		if c == anchor {
			continue
		}
		t := s.cellAt(c.Row, c.Col)
		if t == nil {
			continue
		}
		if t.isSpill() && *t.spillAnchor == anchor {
			continue
		}
		if t.isFormula() || t.isSpill() || !t.literal.IsEmpty() {
			return true
		}
	}
	return false
}
