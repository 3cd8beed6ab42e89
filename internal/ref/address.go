// Package ref provides the addressing primitives shared by the engine and
// the port layer: sheet-qualified 1-based cell coordinates, rectangular
// ranges, and A1-notation parsing/formatting.
package ref

import "fmt"

// Cell addresses a single cell: sheet name plus 1-based row and column.
type Cell struct {
	Sheet string
	Row   int
	Col   int
}

func (c Cell) String() string {
	return FormatCell(c)
}

// Valid reports whether the coordinates are positive.
func (c Cell) Valid() bool {
	return c.Row >= 1 && c.Col >= 1
}

// Range addresses a rectangular block of cells on one sheet, inclusive on
// both ends. A well-formed Range has Start <= End on both axes; use
// Normalize after constructing from user input.
type Range struct {
	Sheet    string
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// RangeOf builds the single-cell range covering c.
func RangeOf(c Cell) Range {
	return Range{Sheet: c.Sheet, StartRow: c.Row, StartCol: c.Col, EndRow: c.Row, EndCol: c.Col}
}

// Normalize returns the range with start/end swapped where needed so that
// StartRow <= EndRow and StartCol <= EndCol.
func (r Range) Normalize() Range {
	if r.StartRow > r.EndRow {
		r.StartRow, r.EndRow = r.EndRow, r.StartRow
	}
	if r.StartCol > r.EndCol {
		r.StartCol, r.EndCol = r.EndCol, r.StartCol
	}
	return r
}

// Rows returns the number of rows covered.
func (r Range) Rows() int { return r.EndRow - r.StartRow + 1 }

// Cols returns the number of columns covered.
func (r Range) Cols() int { return r.EndCol - r.StartCol + 1 }

// Contains reports whether the cell lies inside the range. Sheet names
// compare exactly; the engine resolves them before building ranges.
func (r Range) Contains(c Cell) bool {
	return c.Sheet == r.Sheet &&
		c.Row >= r.StartRow && c.Row <= r.EndRow &&
		c.Col >= r.StartCol && c.Col <= r.EndCol
}

// Cells expands the range to its cells in row-major order.
func (r Range) Cells() []Cell {
	out := make([]Cell, 0, r.Rows()*r.Cols())
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartCol; col <= r.EndCol; col++ {
			out = append(out, Cell{Sheet: r.Sheet, Row: row, Col: col})
		}
	}
	return out
}

// IsCell reports whether the range covers exactly one cell.
func (r Range) IsCell() bool {
	return r.StartRow == r.EndRow && r.StartCol == r.EndCol
}

// Anchor returns the top-left cell of the range.
func (r Range) Anchor() Cell {
	return Cell{Sheet: r.Sheet, Row: r.StartRow, Col: r.StartCol}
}

func (r Range) String() string {
	if r.IsCell() {
		return FormatCell(r.Anchor())
	}
	return fmt.Sprintf("%s:%s",
		FormatCell(Cell{Sheet: r.Sheet, Row: r.StartRow, Col: r.StartCol}),
		formatCellBare(r.EndRow, r.EndCol))
}
