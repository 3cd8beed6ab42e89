package engine

import (
	"github.com/vk/sheetgridgo/internal/parse"
	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

type coord struct {
	row, col int
}

// cell holds exactly one of: a literal value, a formula (text + AST +
// cached result + dirty flag), or a value spilled from an array-formula
// anchor. A formula cell never carries a literal; its cached value is only
// trusted when clean.
type cell struct {
	literal value.Value

	formula string
	ast     parse.Node
	cached  value.Value
	dirty   bool

	// spillAnchor is set on cells written by an array-formula spill; the
	// anchor owns their lifecycle.
	spillAnchor *ref.Cell
	// spilled is set on an anchor whose last result spilled into a region.
	spilled *ref.Range
}

func (c *cell) isFormula() bool { return c.formula != "" }
func (c *cell) isSpill() bool   { return c.spillAnchor != nil }

// currentValue is the cell's value as storage sees it right now, without
// forcing recomputation.
func (c *cell) currentValue() value.Value {
	if c == nil {
		return value.Empty()
	}
	if c.isFormula() || c.isSpill() {
		return c.cached
	}
	return c.literal
}

// sheet is a named, sparse 2-D collection of cells. Sheets own their cells
// and are never widened beyond explicitly addressed coordinates.
type sheet struct {
	name  string
	cells map[coord]*cell
}

func newSheet(name string) *sheet {
	return &sheet{name: name, cells: make(map[coord]*cell)}
}

func (s *sheet) cellAt(row, col int) *cell {
	return s.cells[coord{row, col}]
}

func (s *sheet) ensureCell(row, col int) *cell {
	k := coord{row, col}
	if c, ok := s.cells[k]; ok {
		return c
	}
	c := &cell{}
	s.cells[k] = c
	return c
}

func (s *sheet) deleteCell(row, col int) {
	delete(s.cells, coord{row, col})
}
