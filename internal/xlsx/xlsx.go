// Package xlsx moves workbooks between the evaluation engine and .xlsx
// files. Load brings in sheets, literal values, and formulas; Save writes
// back literals, formulas, and the computed value of every formula cell.
// Styling, merged cells, and everything else cosmetic is out of scope.
package xlsx

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/vk/sheetgridgo/internal/ctxlog"
	"github.com/vk/sheetgridgo/internal/engine"
	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// Load opens an .xlsx file and builds a workbook from it. Formula cells
// are installed as formulas and left for the engine to evaluate; stored
// cached results in the file are ignored.
func Load(ctx context.Context, path string, opts engine.Options) (*engine.Workbook, error) {
	logger := ctxlog.FromContext(ctx)

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	wb := engine.New(opts)
	cells, formulas := 0, 0

	for _, sheetName := range f.GetSheetList() {
		if err := wb.AddSheet(sheetName); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		for ri, row := range rows {
			for ci, raw := range row {
				if raw == "" {
					continue
				}
				c := ref.Cell{Sheet: sheetName, Row: ri + 1, Col: ci + 1}
				axis, err := excelize.CoordinatesToCellName(ci+1, ri+1)
				if err != nil {
					return nil, err
				}
				formula, err := f.GetCellFormula(sheetName, axis)
				if err != nil {
					return nil, err
				}
				if formula != "" {
					if err := wb.SetFormula(c, "="+formula); err != nil {
						return nil, err
					}
					formulas++
					continue
				}
				if err := wb.SetValue(c, literalFromRaw(raw)); err != nil {
					return nil, err
				}
				cells++
			}
		}
	}

	wb.SetBackingPath(path)
	logger.Debug("workbook loaded", "path", path, "values", cells, "formulas", formulas)
	return wb, nil
}

// literalFromRaw types a raw cell string the way the file format stores
// it: numbers and booleans by syntax, everything else as text.
func literalFromRaw(raw string) value.Value {
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return value.Number(n)
	}
	switch raw {
	case "TRUE":
		return value.Bool(true)
	case "FALSE":
		return value.Bool(false)
	}
	return value.Text(raw)
}

// Save evaluates everything stale and writes the workbook to path.
// Formula cells carry both their formula and their computed value; error
// values are written as their display strings.
func Save(ctx context.Context, wb *engine.Workbook, path string) error {
	logger := ctxlog.FromContext(ctx)

	if _, err := wb.EvaluateAll(ctx); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheets := wb.Sheets()
	for i, sheetName := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
				return err
			}
		} else {
			if _, err := f.NewSheet(sheetName); err != nil {
				return err
			}
		}
		if err := saveSheet(f, wb, sheetName); err != nil {
			return fmt.Errorf("sheet %s: %w", sheetName, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	wb.SetBackingPath(path)
	logger.Debug("workbook saved", "path", path, "sheets", len(sheets))
	return nil
}

func saveSheet(f *excelize.File, wb *engine.Workbook, sheetName string) error {
	for _, c := range wb.UsedCells(sheetName) {
		axis, err := excelize.CoordinatesToCellName(c.Col, c.Row)
		if err != nil {
			return err
		}
		if formula, ok, err := wb.GetFormula(c); err != nil {
			return err
		} else if ok {
			if err := f.SetCellFormula(sheetName, axis, formula); err != nil {
				return err
			}
		}
		v, err := wb.Peek(c)
		if err != nil {
			return err
		}
		if err := setCellValue(f, sheetName, axis, v); err != nil {
			return err
		}
	}
	return nil
}

func setCellValue(f *excelize.File, sheetName, axis string, v value.Value) error {
	switch v.Kind() {
	case value.KindEmpty:
		return nil
	case value.KindNumber:
		return f.SetCellValue(sheetName, axis, v.Num())
	case value.KindText:
		return f.SetCellValue(sheetName, axis, v.Str())
	case value.KindBool:
		return f.SetCellBool(sheetName, axis, v.B())
	default:
		return f.SetCellValue(sheetName, axis, v.String())
	}
}
