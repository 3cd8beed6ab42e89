package parse

import (
	"fmt"
	"strings"
)

// SyntaxError reports unparseable formula text and where it went wrong.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent       // bare identifier: function name, TRUE/FALSE, or a cell like A1
	tokSheetQuoted // 'My Sheet' (quotes stripped, '' unescaped)
	tokBracketRef  // OpenFormula [.A1] form, brackets stripped
	tokErrorLit    // #REF!, #NAME?, ...
	tokOp          // + - * / ^ & % = <> < <= > >=
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokComma
	tokSemicolon
	tokPipe
	tokColon
	tokBang
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) errf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func isDigit(b byte) bool  { return b >= '0' && b <= '9' }
func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isIdentByte(b byte) bool {
	return isLetter(b) || isDigit(b) || b == '_' || b == '$' || b == '.'
}

// tokens lexes the whole input up front; formulas are short.
func (l *lexer) tokens() ([]token, *SyntaxError) {
	var out []token
	for {
		for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
			l.pos++
		}
		if l.pos >= len(l.src) {
			out = append(out, token{kind: tokEOF, pos: l.pos})
			return out, nil
		}
		start := l.pos
		b := l.src[l.pos]
		switch {
		case isDigit(b) || (b == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
			l.pos++
			for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
				l.pos++
			}
			// exponent suffix
			if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
				mark := l.pos
				l.pos++
				if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
					l.pos++
				}
				if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
					for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
						l.pos++
					}
				} else {
					l.pos = mark // not an exponent after all (e.g. A1E)
				}
			}
			out = append(out, token{kind: tokNumber, text: l.src[start:l.pos], pos: start})

		case b == '"':
			var sb strings.Builder
			l.pos++
			closed := false
			for l.pos < len(l.src) {
				if l.src[l.pos] == '"' {
					if l.pos+1 < len(l.src) && l.src[l.pos+1] == '"' {
						sb.WriteByte('"')
						l.pos += 2
						continue
					}
					l.pos++
					closed = true
					break
				}
				sb.WriteByte(l.src[l.pos])
				l.pos++
			}
			if !closed {
				return nil, l.errf(start, "unterminated string literal")
			}
			out = append(out, token{kind: tokString, text: sb.String(), pos: start})

		case b == '\'':
			var sb strings.Builder
			l.pos++
			closed := false
			for l.pos < len(l.src) {
				if l.src[l.pos] == '\'' {
					if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'' {
						sb.WriteByte('\'')
						l.pos += 2
						continue
					}
					l.pos++
					closed = true
					break
				}
				sb.WriteByte(l.src[l.pos])
				l.pos++
			}
			if !closed {
				return nil, l.errf(start, "unterminated sheet name quote")
			}
			out = append(out, token{kind: tokSheetQuoted, text: sb.String(), pos: start})

		case b == '[':
			l.pos++
			end := strings.IndexByte(l.src[l.pos:], ']')
			if end < 0 {
				return nil, l.errf(start, "unterminated bracket reference")
			}
			out = append(out, token{kind: tokBracketRef, text: l.src[l.pos : l.pos+end], pos: start})
			l.pos += end + 1

		case b == '#':
			l.pos++
			for l.pos < len(l.src) {
				c := l.src[l.pos]
				if isLetter(c) || isDigit(c) || c == '/' || c == '!' || c == '?' {
					l.pos++
					continue
				}
				break
			}
			out = append(out, token{kind: tokErrorLit, text: l.src[start:l.pos], pos: start})

		case isLetter(b) || b == '_' || b == '$':
			l.pos++
			for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
				l.pos++
			}
			out = append(out, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})

		default:
			l.pos++
			switch b {
			case '(':
				out = append(out, token{kind: tokLParen, pos: start})
			case ')':
				out = append(out, token{kind: tokRParen, pos: start})
			case '{':
				out = append(out, token{kind: tokLBrace, pos: start})
			case '}':
				out = append(out, token{kind: tokRBrace, pos: start})
			case ',':
				out = append(out, token{kind: tokComma, pos: start})
			case ';':
				out = append(out, token{kind: tokSemicolon, pos: start})
			case '|':
				out = append(out, token{kind: tokPipe, pos: start})
			case ':':
				out = append(out, token{kind: tokColon, pos: start})
			case '!':
				out = append(out, token{kind: tokBang, pos: start})
			case '+', '-', '*', '/', '^', '&', '%', '=':
				out = append(out, token{kind: tokOp, text: string(b), pos: start})
			case '<':
				if l.pos < len(l.src) && l.src[l.pos] == '>' {
					l.pos++
					out = append(out, token{kind: tokOp, text: "<>", pos: start})
				} else if l.pos < len(l.src) && l.src[l.pos] == '=' {
					l.pos++
					out = append(out, token{kind: tokOp, text: "<=", pos: start})
				} else {
					out = append(out, token{kind: tokOp, text: "<", pos: start})
				}
			case '>':
				if l.pos < len(l.src) && l.src[l.pos] == '=' {
					l.pos++
					out = append(out, token{kind: tokOp, text: ">=", pos: start})
				} else {
					out = append(out, token{kind: tokOp, text: ">", pos: start})
				}
			default:
				return nil, l.errf(start, "unexpected character %q", string(b))
			}
		}
	}
}
