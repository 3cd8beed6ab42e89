// Package parse turns formula text into an abstract syntax tree. It
// implements the parser contract the engine consumes:
// Parse(text, dialect) -> Node or *SyntaxError. Two grammars are supported;
// both produce the same reference/range/call node shapes, so the engine
// never needs to know which dialect a formula was written in.
package parse

// Dialect selects the surface grammar of formula text.
type Dialect uint8

const (
	// DialectExcel is the Excel-like grammar: comma argument separators,
	// Sheet!A1 external references, {1,2;3,4} array literals.
	DialectExcel Dialect = iota
	// DialectOpenFormula is the OpenDocument-like grammar: semicolon
	// argument separators, [.A1] and [Sheet.A1] references, {1;2|3;4}
	// array literals.
	DialectOpenFormula
)

func (d Dialect) String() string {
	if d == DialectOpenFormula {
		return "openformula"
	}
	return "excel"
}

// argSep is the token that separates call arguments.
func (d Dialect) argSep() tokenKind {
	if d == DialectOpenFormula {
		return tokSemicolon
	}
	return tokComma
}

// arrayColSep separates values within an array-literal row.
func (d Dialect) arrayColSep() tokenKind {
	if d == DialectOpenFormula {
		return tokSemicolon
	}
	return tokComma
}

// arrayRowSep separates rows of an array literal.
func (d Dialect) arrayRowSep() tokenKind {
	if d == DialectOpenFormula {
		return tokPipe
	}
	return tokSemicolon
}
