package textfmt

import (
	"fmt"
)

// tokenKind enumerates the lexical token types produced by the lexer.
type tokenKind int

// The token kinds the grammar in spec.md §4.2 requires.
const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokEquals
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexState names the lexer's state machine states from spec.md §4.2:
// Main, String, Ident, Number, Comment. Each is a distinct scanning mode
// rather than a single switch over character class, so that the
// force-ident-after-brace rule can flip Main's default classification of a
// leading digit without touching the Ident/Number/String/Comment states.
type lexState int

const (
	lexMain lexState = iota
	lexString
	lexIdent
	lexNumber
	lexComment
)

// lexer turns raw LVM2 text-format bytes into a token stream.
type lexer struct {
	src []byte
	pos int

	// forceIdent is set immediately after emitting '{' and cleared after
	// the next token: LVM2 PV dictionaries use digit-led keys like "pv0",
	// so a token in that position is always an identifier even though it
	// looks numeric.
	forceIdent bool
}

func newLexer(src []byte) *lexer {
	return &lexer{src: src}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '_' || c == '.'
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}

// next scans and returns the next token, advancing the lexer's position.
// It implements the Main/String/Ident/Number/Comment state machine from
// spec.md §4.2, entirely by hand (no regexp, no external lexer generator)
// to match the §9 "pointer-cast-over-buffer" spirit: every byte is
// examined explicitly.
func (l *lexer) next() (token, error) {
	forcedIdent := l.forceIdent
	l.forceIdent = false

	for {
		if l.pos >= len(l.src) {
			return token{kind: tokEOF, pos: l.pos}, nil
		}

		c := l.src[l.pos]

		switch {
		case isSpace(c):
			l.pos++
			continue
		case c == '#':
			l.skipComment()
			continue
		case c == '{':
			start := l.pos
			l.pos++
			l.forceIdent = true
			return token{kind: tokLBrace, pos: start}, nil
		case c == '}':
			start := l.pos
			l.pos++
			return token{kind: tokRBrace, pos: start}, nil
		case c == '[':
			start := l.pos
			l.pos++
			return token{kind: tokLBracket, pos: start}, nil
		case c == ']':
			start := l.pos
			l.pos++
			return token{kind: tokRBracket, pos: start}, nil
		case c == ',':
			start := l.pos
			l.pos++
			return token{kind: tokComma, pos: start}, nil
		case c == '=':
			start := l.pos
			l.pos++
			return token{kind: tokEquals, pos: start}, nil
		case c == '"':
			return l.scanString()
		case (c == '-' || isDigit(c)) && !forcedIdent:
			return l.scanNumber()
		case isIdentStart(c) || (isDigit(c) && forcedIdent):
			return l.scanIdent()
		default:
			return token{}, &parseErr{pos: l.pos, kind: "Unexpected", detail: fmt.Sprintf("unexpected byte %q", c)}
		}
	}
}

// skipComment discards a '#' to end-of-line comment (state Comment); next()
// loops back around to scan the following real token.
func (l *lexer) skipComment() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

// scanString implements the String(start) lexer state.
func (l *lexer) scanString() (token, error) {
	start := l.pos
	l.pos++ // consume opening quote

	contentStart := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != '"' {
		l.pos++
	}

	if l.pos >= len(l.src) {
		return token{}, &parseErr{pos: start, kind: "Unterminated", detail: "unterminated string literal"}
	}

	text := string(l.src[contentStart:l.pos])
	l.pos++ // consume closing quote
	return token{kind: tokString, text: text, pos: start}, nil
}

// scanIdent implements the Ident(start) lexer state.
func (l *lexer) scanIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}

	return token{kind: tokIdent, text: string(l.src[start:l.pos]), pos: start}, nil
}

// scanNumber implements the Number(start) lexer state.
func (l *lexer) scanNumber() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}

	digitsStart := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}

	if l.pos == digitsStart {
		return token{}, &parseErr{pos: start, kind: "BadNumber", detail: "bare '-' with no digits"}
	}

	return token{kind: tokNumber, text: string(l.src[start:l.pos]), pos: start}, nil
}
