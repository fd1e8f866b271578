package viewql

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokString
	tokNumber
	tokDot
	tokComma
	tokAssign // =
	tokEq     // ==
	tokNeq    // !=
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
)

func (tt tokenType) String() string {
	switch tt {
	case tokEOF:
		return "end of source"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string literal"
	case tokNumber:
		return "number literal"
	case tokDot:
		return "'.'"
	case tokComma:
		return "','"
	case tokAssign:
		return "'='"
	case tokEq:
		return "'=='"
	case tokNeq:
		return "'!='"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	default:
		return "unknown token"
	}
}

type token struct {
	typ tokenType
	val string
	off int
}

// lexer breaks view source into tokens. Unlike a SQL lexer it is
// case-sensitive: keywords are lowercase and field names keep their
// spelling.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) next() (token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return token{typ: tokEOF, off: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch c {
	case '.':
		l.pos++
		return token{tokDot, ".", start}, nil
	case ',':
		l.pos++
		return token{tokComma, ",", start}, nil
	case '{':
		l.pos++
		return token{tokLBrace, "{", start}, nil
	case '}':
		l.pos++
		return token{tokRBrace, "}", start}, nil
	case '(':
		l.pos++
		return token{tokLParen, "(", start}, nil
	case ')':
		l.pos++
		return token{tokRParen, ")", start}, nil
	case '=':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{tokEq, "==", start}, nil
		}
		l.pos++
		return token{tokAssign, "=", start}, nil
	case '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{tokNeq, "!=", start}, nil
		}
		return token{}, compileErrf(start, "unexpected character %q", c)
	case '"':
		return l.lexString()
	}

	if isDigit(c) || (c == '-' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])) {
		return l.lexNumber()
	}
	if isIdentStart(c) {
		return l.lexIdent()
	}
	return token{}, compileErrf(start, "unexpected character %q", c)
}

func (l *lexer) lexString() (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch c {
		case '"':
			l.pos++
			return token{tokString, sb.String(), start}, nil
		case '\\':
			if l.pos+1 >= len(l.input) {
				return token{}, compileErrf(l.pos, "unterminated escape")
			}
			l.pos++
			switch l.input[l.pos] {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return token{}, compileErrf(l.pos, "unsupported escape \\%c", l.input[l.pos])
			}
			l.pos++
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return token{}, compileErrf(start, "unterminated string literal")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	seenDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '.' && !seenDot && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
			seenDot = true
			l.pos++
			continue
		}
		if !isDigit(c) {
			break
		}
		l.pos++
	}
	return token{tokNumber, l.input[start:l.pos], start}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return token{tokIdent, l.input[start:l.pos], start}, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
