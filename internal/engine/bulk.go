package engine

import (
	"fmt"

	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// Bulk operations take the lock once and validate every address before
// applying anything, so a bad address leaves the workbook untouched.

// ValueUpdate pairs an address with a literal to store.
type ValueUpdate struct {
	Cell  ref.Cell
	Value value.Value
}

// FormulaUpdate pairs an address with formula text to install.
type FormulaUpdate struct {
	Cell ref.Cell
	Text string
}

// SetValues applies literal updates in order. If any address is invalid,
// no update is applied.
func (w *Workbook) SetValues(updates []ValueUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, u := range updates {
		if _, _, err := w.canonicalCell(u.Cell); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if err := w.setValueLocked(u.Cell, u.Value); err != nil {
			return err
		}
	}
	return nil
}

// SetFormulas installs formulas in order with the same all-or-nothing
// address validation as SetValues. Parse failures do not abort the batch;
// they store as error-valued cells the way SetFormula does.
func (w *Workbook) SetFormulas(updates []FormulaUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, u := range updates {
		if _, _, err := w.canonicalCell(u.Cell); err != nil {
			return err
		}
		if u.Text == "" {
			return fmt.Errorf("formula text must not be empty at %s", ref.FormatCell(u.Cell))
		}
	}
	for _, u := range updates {
		if err := w.setFormulaLocked(u.Cell, u.Text); err != nil {
			return err
		}
	}
	return nil
}

// GetValues evaluates the given cells on demand under one lock, sharing
// one evaluation state so common precedents compute once.
func (w *Workbook) GetValues(cells []ref.Cell) ([]value.Value, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	canon := make([]ref.Cell, len(cells))
	for i, c := range cells {
		cc, _, err := w.canonicalCell(c)
		if err != nil {
			return nil, err
		}
		canon[i] = cc
	}
	st := newEvalState(w)
	out := make([]value.Value, len(canon))
	for i, c := range canon {
		out[i] = st.ensure(c)
	}
	return out, nil
}

// ReadRange evaluates a range and returns its values row-major. The range
// dimensions are taken from the normalized bounds, so missing cells appear
// as empty values.
func (w *Workbook) ReadRange(r ref.Range) ([][]value.Value, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r = r.Normalize()
	if _, err := w.sheetFor(r.Sheet); err != nil {
		return nil, err
	}
	if r.StartRow < 1 || r.StartCol < 1 {
		return nil, fmt.Errorf("range %s out of bounds (rows and columns are 1-based)", r.String())
	}
	st := newEvalState(w)
	out := make([][]value.Value, 0, r.Rows())
	for row := r.StartRow; row <= r.EndRow; row++ {
		line := make([]value.Value, 0, r.Cols())
		for col := r.StartCol; col <= r.EndCol; col++ {
			line = append(line, st.ensure(ref.Cell{Sheet: r.Sheet, Row: row, Col: col}))
		}
		out = append(out, line)
	}
	return out, nil
}

// WriteRange stores literals over a range row-major. The value grid must
// match the range dimensions exactly; on any mismatch nothing is written.
func (w *Workbook) WriteRange(r ref.Range, rows [][]value.Value) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	r = r.Normalize()
	if _, err := w.sheetFor(r.Sheet); err != nil {
		return err
	}
	if len(rows) != r.Rows() {
		return fmt.Errorf("range %s wants %d rows, got %d", r.String(), r.Rows(), len(rows))
	}
	for i, row := range rows {
		if len(row) != r.Cols() {
			return fmt.Errorf("range %s wants %d columns, row %d has %d", r.String(), r.Cols(), i+1, len(row))
		}
	}
	for i, row := range rows {
		for j, v := range row {
			c := ref.Cell{Sheet: r.Sheet, Row: r.StartRow + i, Col: r.StartCol + j}
			if err := w.setValueLocked(c, v); err != nil {
				return err
			}
		}
	}
	return nil
}
