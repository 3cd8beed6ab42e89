package parse

import (
	"strconv"
	"strings"

	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// Parse parses formula text in the given dialect. A leading "=" is
// accepted and skipped. The returned error, when non-nil, is always a
// *SyntaxError.
func Parse(text string, dialect Dialect) (Node, error) {
	src := strings.TrimSpace(text)
	src = strings.TrimPrefix(src, "=")

	toks, lexErr := (&lexer{src: src}).tokens()
	if lexErr != nil {
		return nil, lexErr
	}
	p := &parser{toks: toks, dialect: dialect}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errHere("unexpected trailing input")
	}
	return node, nil
}

type parser struct {
	toks    []token
	pos     int
	dialect Dialect
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errHere(msg string) *SyntaxError {
	return &SyntaxError{Pos: p.peek().pos, Msg: msg}
}

// accept consumes the next token when it has the requested kind.
func (p *parser) accept(kind tokenKind) (token, bool) {
	if p.peek().kind == kind {
		return p.next(), true
	}
	return token{}, false
}

// Operator precedence, loosest first: comparison, concatenation, additive,
// multiplicative, exponentiation, then unary and postfix percent.

func (p *parser) parseExpr() (Node, error) {
	return p.parseBinary(0)
}

var precedence = []map[string]bool{
	{"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true},
	{"&": true},
	{"+": true, "-": true},
	{"*": true, "/": true},
	{"^": true},
}

func (p *parser) parseBinary(level int) (Node, error) {
	if level >= len(precedence) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || !precedence[level][t.text] {
			return left, nil
		}
		p.next()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: t.text, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: t.text, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind == tokOp && t.text == "%" {
			p.next()
			x = &Unary{Op: "%", X: x, Postfix: true}
			continue
		}
		return x, nil
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Msg: "malformed number " + t.text}
		}
		return &NumberLit{Val: f}, nil

	case tokString:
		p.next()
		return &TextLit{Val: t.text}, nil

	case tokErrorLit:
		p.next()
		kind, ok := value.ParseErrorKind(t.text)
		if !ok {
			return nil, &SyntaxError{Pos: t.pos, Msg: "unknown error literal " + t.text}
		}
		return &ErrorLit{Kind: kind}, nil

	case tokLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, ok := p.accept(tokRParen); !ok {
			return nil, p.errHere("expected ')'")
		}
		return inner, nil

	case tokLBrace:
		return p.parseArrayLit()

	case tokBracketRef:
		if p.dialect != DialectOpenFormula {
			return nil, &SyntaxError{Pos: t.pos, Msg: "bracket references require the openformula dialect"}
		}
		p.next()
		return p.parseBracketRef(t)

	case tokSheetQuoted:
		p.next()
		if _, ok := p.accept(tokBang); !ok {
			return nil, p.errHere("expected '!' after sheet name")
		}
		return p.parseReference(t.text)

	case tokIdent:
		return p.parseIdent()
	}
	return nil, p.errHere("expected a value, reference, or function call")
}

// parseIdent disambiguates a bare identifier: a call when followed by '(',
// TRUE/FALSE literals, a sheet prefix when followed by '!', otherwise a
// cell reference.
func (p *parser) parseIdent() (Node, error) {
	t := p.next()
	upper := strings.ToUpper(t.text)

	if p.peek().kind == tokLParen {
		return p.parseCall(upper)
	}
	switch upper {
	case "TRUE":
		return &BoolLit{Val: true}, nil
	case "FALSE":
		return &BoolLit{Val: false}, nil
	}
	if _, ok := p.accept(tokBang); ok {
		return p.parseReference(t.text)
	}
	p.pos-- // rewind so parseReference sees the cell token
	return p.parseReference("")
}

// parseReference parses A1 or A1:B2 with an already-resolved sheet prefix.
func (p *parser) parseReference(sheet string) (Node, error) {
	start, err := p.parseCellToken(sheet)
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept(tokColon); !ok {
		return &CellRef{Cell: start}, nil
	}
	end, err := p.parseCellToken(sheet)
	if err != nil {
		return nil, err
	}
	r := ref.Range{
		Sheet:    start.Sheet,
		StartRow: start.Row, StartCol: start.Col,
		EndRow: end.Row, EndCol: end.Col,
	}.Normalize()
	return &RangeRef{Range: r}, nil
}

func (p *parser) parseCellToken(sheet string) (ref.Cell, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return ref.Cell{}, p.errHere("expected a cell reference")
	}
	c, err := ref.ParseCell(t.text)
	if err != nil {
		return ref.Cell{}, &SyntaxError{Pos: t.pos, Msg: "invalid cell reference " + t.text}
	}
	p.next()
	c.Sheet = sheet
	return c, nil
}

// parseBracketRef handles the OpenFormula [.A1], [Sheet.A1] and
// [.A1:.B2] reference forms. The leading '$' absolute marker on the sheet
// component is accepted and ignored.
func (p *parser) parseBracketRef(t token) (Node, error) {
	parseOne := func(part string) (ref.Cell, *SyntaxError) {
		part = strings.TrimPrefix(part, "$")
		dot := strings.IndexByte(part, '.')
		if dot < 0 {
			return ref.Cell{}, &SyntaxError{Pos: t.pos, Msg: "malformed bracket reference [" + t.text + "]"}
		}
		sheet := part[:dot]
		c, err := ref.ParseCell(part[dot+1:])
		if err != nil {
			return ref.Cell{}, &SyntaxError{Pos: t.pos, Msg: "invalid cell in bracket reference [" + t.text + "]"}
		}
		c.Sheet = sheet
		return c, nil
	}

	first, rest, isRange := strings.Cut(t.text, ":")
	start, serr := parseOne(first)
	if serr != nil {
		return nil, serr
	}
	if !isRange {
		return &CellRef{Cell: start}, nil
	}
	end, serr := parseOne(rest)
	if serr != nil {
		return nil, serr
	}
	sheet := start.Sheet
	if sheet == "" {
		sheet = end.Sheet
	}
	r := ref.Range{
		Sheet:    sheet,
		StartRow: start.Row, StartCol: start.Col,
		EndRow: end.Row, EndCol: end.Col,
	}.Normalize()
	return &RangeRef{Range: r}, nil
}

func (p *parser) parseCall(name string) (Node, error) {
	p.next() // consume '('
	call := &Call{Name: name}
	if _, ok := p.accept(tokRParen); ok {
		return call, nil
	}
	sep := p.dialect.argSep()
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if _, ok := p.accept(sep); ok {
			continue
		}
		if _, ok := p.accept(tokRParen); ok {
			return call, nil
		}
		return nil, p.errHere("expected argument separator or ')'")
	}
}

func (p *parser) parseArrayLit() (Node, error) {
	p.next() // consume '{'
	colSep := p.dialect.arrayColSep()
	rowSep := p.dialect.arrayRowSep()

	var rows [][]Node
	row := []Node{}
	for {
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		row = append(row, elem)
		if _, ok := p.accept(colSep); ok {
			continue
		}
		if _, ok := p.accept(rowSep); ok {
			rows = append(rows, row)
			row = []Node{}
			continue
		}
		if _, ok := p.accept(tokRBrace); ok {
			rows = append(rows, row)
			break
		}
		return nil, p.errHere("expected ',', ';' or '}' in array literal")
	}
	width := len(rows[0])
	for _, r := range rows {
		if len(r) != width {
			return nil, p.errHere("array literal rows have uneven lengths")
		}
	}
	return &ArrayLit{Rows: rows}, nil
}
