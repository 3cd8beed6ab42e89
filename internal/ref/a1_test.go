package ref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnLetters(t *testing.T) {
	cases := map[string]int{
		"A":   1,
		"B":   2,
		"Z":   26,
		"AA":  27,
		"AZ":  52,
		"BA":  53,
		"ZZ":  702,
		"AAA": 703,
	}
	for letters, col := range cases {
		got, err := ColumnFromLetters(letters)
		require.NoError(t, err, letters)
		assert.Equal(t, col, got, letters)
		assert.Equal(t, letters, LettersFromColumn(col))
	}

	_, err := ColumnFromLetters("")
	assert.Error(t, err)
	_, err = ColumnFromLetters("A1")
	assert.Error(t, err)
}

func TestParseCell(t *testing.T) {
	t.Run("bare", func(t *testing.T) {
		c, err := ParseCell("B3")
		require.NoError(t, err)
		assert.Equal(t, Cell{Row: 3, Col: 2}, c)
	})

	t.Run("absolute markers ignored", func(t *testing.T) {
		c, err := ParseCell("$B$3")
		require.NoError(t, err)
		assert.Equal(t, Cell{Row: 3, Col: 2}, c)
	})

	t.Run("sheet qualified", func(t *testing.T) {
		c, err := ParseCell("Data!A1")
		require.NoError(t, err)
		assert.Equal(t, Cell{Sheet: "Data", Row: 1, Col: 1}, c)
	})

	t.Run("quoted sheet with spaces", func(t *testing.T) {
		c, err := ParseCell("'My Sheet'!C7")
		require.NoError(t, err)
		assert.Equal(t, Cell{Sheet: "My Sheet", Row: 7, Col: 3}, c)
	})

	t.Run("quoted sheet with embedded quote", func(t *testing.T) {
		c, err := ParseCell("'It''s'!A1")
		require.NoError(t, err)
		assert.Equal(t, "It's", c.Sheet)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		for _, bad := range []string{"", "1A", "A0", "A", "7", "A-1", "not-a-cell"} {
			_, err := ParseCell(bad)
			assert.Error(t, err, bad)
		}
	})
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("A1:B3")
	require.NoError(t, err)
	assert.Equal(t, Range{StartRow: 1, StartCol: 1, EndRow: 3, EndCol: 2}, r)
	assert.Equal(t, 3, r.Rows())
	assert.Equal(t, 2, r.Cols())

	// A single cell parses as a degenerate range.
	r, err = ParseRange("C2")
	require.NoError(t, err)
	assert.True(t, r.IsCell())

	r, err = ParseRange("Data!A1:A5")
	require.NoError(t, err)
	assert.Equal(t, "Data", r.Sheet)
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "B3", FormatCell(Cell{Row: 3, Col: 2}))
	assert.Equal(t, "Data!B3", FormatCell(Cell{Sheet: "Data", Row: 3, Col: 2}))
	assert.Equal(t, "'My Sheet'!A1", FormatCell(Cell{Sheet: "My Sheet", Row: 1, Col: 1}))
	assert.Equal(t, "'It''s'!A1", FormatCell(Cell{Sheet: "It's", Row: 1, Col: 1}))
}

func TestRangeOperations(t *testing.T) {
	r := Range{StartRow: 3, StartCol: 3, EndRow: 1, EndCol: 1}
	n := r.Normalize()
	assert.Equal(t, Range{StartRow: 1, StartCol: 1, EndRow: 3, EndCol: 3}, n)

	assert.True(t, n.Contains(Cell{Row: 2, Col: 2}))
	assert.False(t, n.Contains(Cell{Row: 4, Col: 1}))

	cells := Range{StartRow: 1, StartCol: 1, EndRow: 2, EndCol: 2}.Cells()
	require.Len(t, cells, 4)
	assert.Equal(t, Cell{Row: 1, Col: 1}, cells[0])
	assert.Equal(t, Cell{Row: 2, Col: 2}, cells[3])

	assert.Equal(t, Cell{Row: 1, Col: 1}, n.Anchor())
}
