package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// Node is one node of a parsed formula. String renders a canonical
// dialect-independent form used for debugging and formula dedup keys.
type Node interface {
	String() string
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Val float64
}

func (n *NumberLit) String() string {
	return strconv.FormatFloat(n.Val, 'g', -1, 64)
}

// TextLit is a string literal.
type TextLit struct {
	Val string
}

func (n *TextLit) String() string {
	return `"` + strings.ReplaceAll(n.Val, `"`, `""`) + `"`
}

// BoolLit is TRUE or FALSE.
type BoolLit struct {
	Val bool
}

func (n *BoolLit) String() string {
	if n.Val {
		return "TRUE"
	}
	return "FALSE"
}

// ErrorLit is an error literal such as #REF! appearing directly in a formula.
type ErrorLit struct {
	Kind value.ErrorKind
}

func (n *ErrorLit) String() string { return n.Kind.String() }

// CellRef references a single cell. Sheet is empty for a same-sheet
// reference; the engine resolves it against the formula's own sheet.
type CellRef struct {
	Cell ref.Cell
}

func (n *CellRef) String() string { return ref.FormatCell(n.Cell) }

// RangeRef references a rectangular cell range, normalized at parse time.
type RangeRef struct {
	Range ref.Range
}

func (n *RangeRef) String() string { return n.Range.String() }

// Call is a function invocation. Name is stored uppercase.
type Call struct {
	Name string
	Args []Node
}

func (n *Call) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return n.Name + "(" + strings.Join(parts, ",") + ")"
}

// Unary is a prefix (-x, +x) or postfix (x%) operator application.
type Unary struct {
	Op      string
	X       Node
	Postfix bool
}

func (n *Unary) String() string {
	if n.Postfix {
		return n.X.String() + n.Op
	}
	return n.Op + n.X.String()
}

// Binary is an infix operator application.
type Binary struct {
	Op   string
	L, R Node
}

func (n *Binary) String() string {
	return fmt.Sprintf("(%s%s%s)", n.L.String(), n.Op, n.R.String())
}

// ArrayLit is an inline array literal, row-major.
type ArrayLit struct {
	Rows [][]Node
}

func (n *ArrayLit) String() string {
	rows := make([]string, len(n.Rows))
	for i, row := range n.Rows {
		parts := make([]string, len(row))
		for j, c := range row {
			parts[j] = c.String()
		}
		rows[i] = strings.Join(parts, ",")
	}
	return "{" + strings.Join(rows, ";") + "}"
}

// Walk visits n and every child in depth-first order.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch t := n.(type) {
	case *Call:
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *Unary:
		Walk(t.X, fn)
	case *Binary:
		Walk(t.L, fn)
		Walk(t.R, fn)
	case *ArrayLit:
		for _, row := range t.Rows {
			for _, c := range row {
				Walk(c, fn)
			}
		}
	}
}

// Refs collects every cell and range the formula reads. Sheet-relative
// references come back with an empty Sheet.
func Refs(n Node) (cells []ref.Cell, ranges []ref.Range) {
	Walk(n, func(n Node) {
		switch t := n.(type) {
		case *CellRef:
			cells = append(cells, t.Cell)
		case *RangeRef:
			ranges = append(ranges, t.Range)
		}
	})
	return cells, ranges
}

// Funcs collects the uppercase names of every function the formula calls.
func Funcs(n Node) []string {
	seen := make(map[string]struct{})
	var out []string
	Walk(n, func(n Node) {
		if c, ok := n.(*Call); ok {
			if _, dup := seen[c.Name]; !dup {
				seen[c.Name] = struct{}{}
				out = append(out, c.Name)
			}
		}
	})
	return out
}
