package ref

import (
	"fmt"
	"strings"
)

// A1 parsing. Accepted forms: "B2", "Inputs!B2", "'My Sheet'!B2",
// "Inputs!B1:C4". Absolute markers ($B$2) are accepted and ignored; the
// engine stores only absolute coordinates.

// ColumnFromLetters converts "A"->1, "Z"->26, "AA"->27.
func ColumnFromLetters(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty column letters")
	}
	col := 0
	for _, r := range strings.ToUpper(s) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column letters %q", s)
		}
		col = col*26 + int(r-'A'+1)
	}
	return col, nil
}

// LettersFromColumn converts 1->"A", 27->"AA".
func LettersFromColumn(col int) string {
	if col < 1 {
		return ""
	}
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// splitSheet separates an optional sheet prefix from the cell part.
// Quoted sheet names may contain '!' and spaces; embedded quotes double.
func splitSheet(s string) (sheet, rest string, err error) {
	if strings.HasPrefix(s, "'") {
		for i := 1; i < len(s); i++ {
			if s[i] != '\'' {
				continue
			}
			if i+1 < len(s) && s[i+1] == '\'' {
				i++ // escaped quote
				continue
			}
			if i+1 >= len(s) || s[i+1] != '!' {
				return "", "", fmt.Errorf("malformed quoted sheet name in %q", s)
			}
			name := strings.ReplaceAll(s[1:i], "''", "'")
			return name, s[i+2:], nil
		}
		return "", "", fmt.Errorf("unterminated sheet name quote in %q", s)
	}
	if i := strings.IndexByte(s, '!'); i >= 0 {
		return s[:i], s[i+1:], nil
	}
	return "", s, nil
}

// parseCellPart parses a bare "B2" (optionally "$B$2") into row/col.
func parseCellPart(s string) (row, col int, err error) {
	s = strings.TrimPrefix(s, "$")
	i := 0
	for i < len(s) && ((s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= 'a' && s[i] <= 'z')) {
		i++
	}
	if i == 0 {
		return 0, 0, fmt.Errorf("missing column letters in %q", s)
	}
	col, err = ColumnFromLetters(s[:i])
	if err != nil {
		return 0, 0, err
	}
	digits := strings.TrimPrefix(s[i:], "$")
	if digits == "" {
		return 0, 0, fmt.Errorf("missing row number in %q", s)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, 0, fmt.Errorf("invalid row number in %q", s)
		}
		row = row*10 + int(r-'0')
	}
	if row < 1 {
		return 0, 0, fmt.Errorf("row must be >= 1 in %q", s)
	}
	return row, col, nil
}

// ParseCell parses a single-cell A1 reference.
func ParseCell(s string) (Cell, error) {
	sheet, rest, err := splitSheet(strings.TrimSpace(s))
	if err != nil {
		return Cell{}, err
	}
	row, col, err := parseCellPart(rest)
	if err != nil {
		return Cell{}, err
	}
	return Cell{Sheet: sheet, Row: row, Col: col}, nil
}

// ParseRange parses a cell or range A1 reference. A single cell yields a
// one-cell range.
func ParseRange(s string) (Range, error) {
	sheet, rest, err := splitSheet(strings.TrimSpace(s))
	if err != nil {
		return Range{}, err
	}
	first, second, isRange := strings.Cut(rest, ":")
	r1, c1, err := parseCellPart(first)
	if err != nil {
		return Range{}, err
	}
	if !isRange {
		return Range{Sheet: sheet, StartRow: r1, StartCol: c1, EndRow: r1, EndCol: c1}, nil
	}
	r2, c2, err := parseCellPart(second)
	if err != nil {
		return Range{}, err
	}
	return Range{Sheet: sheet, StartRow: r1, StartCol: c1, EndRow: r2, EndCol: c2}.Normalize(), nil
}

func formatCellBare(row, col int) string {
	return fmt.Sprintf("%s%d", LettersFromColumn(col), row)
}

// FormatCell renders a cell in A1 notation, quoting the sheet name when it
// contains characters that would be ambiguous.
func FormatCell(c Cell) string {
	bare := formatCellBare(c.Row, c.Col)
	if c.Sheet == "" {
		return bare
	}
	if strings.ContainsAny(c.Sheet, " !':") {
		return "'" + strings.ReplaceAll(c.Sheet, "'", "''") + "'!" + bare
	}
	return c.Sheet + "!" + bare
}
