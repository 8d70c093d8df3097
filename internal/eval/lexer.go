// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokVar
	tokConst
	tokIdent
	tokInt
	tokFloat
	tokString
	tokOp
)

// token is a lexical unit of an expression. For variables and constants text
// holds the name without its sigil, for strings the unquoted value.
type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokVar:
		return fmt.Sprintf(`":%s"`, t.text)
	case tokConst:
		return fmt.Sprintf(`"$%s"`, t.text)
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

// operators lists the punctuation tokens, two character operators first.
var operators = []string{
	"==", "!=", "<=", ">=", "&&", "||",
	"+", "-", "*", "/", "%", "(", ")", "[", "]", ".", ",", "<", ">", "!",
}

type lexer struct {
	input string
	pos   int
}

// lex splits input into tokens. The last token is always tokEOF.
func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
		if t.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *lexer) skipBlanks() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

// scanName advances over letters, digits and underscores and returns them.
func (l *lexer) scanName() string {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isNameChar(r) {
			break
		}
		l.pos += size
	}
	return l.input[start:l.pos]
}

func (l *lexer) next() (token, error) {
	l.skipBlanks()
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.peek()
	switch {
	case c == ':' || c == '$':
		l.pos++
		name := l.scanName()
		if name == "" {
			return token{}, errorAt(fmt.Errorf("missing name after %q", c), start)
		}
		kind := tokVar
		if c == '$' {
			kind = tokConst
		}
		return token{kind: kind, text: name, pos: start}, nil
	case c == '\'' || c == '"':
		return l.scanString(c)
	case isDigit(c):
		return l.scanNumber(), nil
	case isInitialNameChar(c):
		return token{kind: tokIdent, text: l.scanName(), pos: start}, nil
	}

	for _, op := range operators {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			return token{kind: tokOp, text: op, pos: start}, nil
		}
	}
	return token{}, errorAt(fmt.Errorf("unexpected character %q", c), start)
}

func (l *lexer) scanNumber() token {
	start := l.pos
	for l.pos < len(l.input) && isDigit(rune(l.input[l.pos])) {
		l.pos++
	}
	// A dot only continues the number if a digit follows it.
	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(rune(l.input[l.pos+1])) {
		l.pos++
		for l.pos < len(l.input) && isDigit(rune(l.input[l.pos])) {
			l.pos++
		}
		return token{kind: tokFloat, text: l.input[start:l.pos], pos: start}
	}
	return token{kind: tokInt, text: l.input[start:l.pos], pos: start}
}

// scanString reads a quoted string. Backslash escapes the quote, the
// backslash itself, \n and \t.
func (l *lexer) scanString(quote rune) (token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		l.pos += size
		switch r {
		case quote:
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		case '\\':
			if l.pos >= len(l.input) {
				return token{}, errorAt(errors.New("missing closing quote in string literal"), start)
			}
			esc, size := utf8.DecodeRuneInString(l.input[l.pos:])
			l.pos += size
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(r)
		}
	}
	return token{}, errorAt(errors.New("missing closing quote in string literal"), start)
}

// errorAt wraps an error with column information.
func errorAt(err error, pos int) error {
	return errors.Wrapf(err, "column %d", pos+1)
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

// isNameChar returns true if the given char can be part of a name.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// isInitialNameChar returns true if the given char can appear at the start of
// an identifier.
func isInitialNameChar(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}
