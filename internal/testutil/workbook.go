// Package testutil carries the small fixtures shared by tests across
// packages: quick workbook construction and manifest parsing with the
// failure handling folded into the test.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/sheetgridgo/internal/ctxlog"
	"github.com/vk/sheetgridgo/internal/engine"
	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// Context returns a test context with a logger attached.
func Context() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.Default())
}

// NewWorkbook builds a workbook with the given sheets, defaulting to one
// sheet named Sheet1.
func NewWorkbook(t *testing.T, sheets ...string) *engine.Workbook {
	t.Helper()
	if len(sheets) == 0 {
		sheets = []string{"Sheet1"}
	}
	wb := engine.New(engine.Options{RandSeed: 1})
	for _, s := range sheets {
		require.NoError(t, wb.AddSheet(s))
	}
	return wb
}

// Cell parses an A1 address, defaulting the sheet to Sheet1.
func Cell(t *testing.T, a string) ref.Cell {
	t.Helper()
	c, err := ref.ParseCell(a)
	require.NoError(t, err)
	if c.Sheet == "" {
		c.Sheet = "Sheet1"
	}
	return c
}

// Fill applies a batch of cell contents: strings starting with "=" install
// as formulas, everything else stores as a literal via value.FromAny.
func Fill(t *testing.T, wb *engine.Workbook, cells map[string]any) {
	t.Helper()
	for addr, content := range cells {
		c := Cell(t, addr)
		if s, ok := content.(string); ok && strings.HasPrefix(s, "=") {
			require.NoError(t, wb.SetFormula(c, s))
			continue
		}
		require.NoError(t, wb.SetValue(c, value.FromAny(content)))
	}
}
