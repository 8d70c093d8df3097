// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parse parses an expression into a tree ready for Evaluate.
func Parse(input string) (n Node, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrapf(err, "cannot parse expression %q", input)
		}
	}()

	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, errors.New("empty expression")
	}
	n, err = p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, errorAt(fmt.Errorf("unexpected %s", t), t.pos)
	}
	return n, nil
}

// MustParse is the same as Parse except that it panics on error.
func MustParse(input string) Node {
	n, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return n
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// skipOp advances past the operator op if it is the next token.
func (p *parser) skipOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) expectOp(op string) error {
	if _, ok := p.skipOp(op); !ok {
		t := p.peek()
		return errorAt(fmt.Errorf("expected %q, got %s", op, t), t.pos)
	}
	return nil
}

// parseLeftAssoc parses a chain of left associative binary operators.
func (p *parser) parseLeftAssoc(next func() (Node, error), ops ...string) (Node, error) {
	l, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.skipOp(ops...)
		if !ok {
			return l, nil
		}
		r, err := next()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r}
	}
}

func (p *parser) parseOr() (Node, error) {
	return p.parseLeftAssoc(p.parseAnd, "||")
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseLeftAssoc(p.parseEquality, "&&")
}

func (p *parser) parseEquality() (Node, error) {
	return p.parseLeftAssoc(p.parseRelational, "==", "!=")
}

func (p *parser) parseRelational() (Node, error) {
	return p.parseLeftAssoc(p.parseAdditive, "<=", ">=", "<", ">")
}

func (p *parser) parseAdditive() (Node, error) {
	return p.parseLeftAssoc(p.parseMultiplicative, "+", "-")
}

func (p *parser) parseMultiplicative() (Node, error) {
	return p.parseLeftAssoc(p.parseUnary, "*", "/", "%")
}

func (p *parser) parseUnary() (Node, error) {
	if op, ok := p.skipOp("-", "!"); ok {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses property access, method calls and indexing following a
// primary expression.
func (p *parser) parsePostfix() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.skipOp("."); ok {
			t := p.advance()
			if t.kind != tokIdent {
				return nil, errorAt(fmt.Errorf("expected property name after \".\", got %s", t), t.pos)
			}
			if _, ok := p.skipOp("("); ok {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				x = &call{x: x, name: t.text, args: args}
				continue
			}
			x = &member{x: x, name: t.text}
			continue
		}
		if _, ok := p.skipOp("["); ok {
			i, err := p.parseIndex()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &index{x: x, index: i}
			continue
		}
		return x, nil
	}
}

// parseArgs parses a comma separated argument list. The opening parenthesis
// has already been consumed.
func (p *parser) parseArgs() ([]Node, error) {
	var args []Node
	if _, ok := p.skipOp(")"); ok {
		return args, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if _, ok := p.skipOp(")"); ok {
			return args, nil
		}
		if err := p.expectOp(","); err != nil {
			return nil, err
		}
	}
}

// parseIndex parses the expression between brackets. A bare, possibly dotted,
// identifier is taken as a string key, so that :m[name] reads the key "name".
func (p *parser) parseIndex() (Node, error) {
	if p.peek().kind == tokIdent && !isKeyword(p.peek().text) {
		var parts []string
		i := 0
		for {
			t := p.peekAt(i)
			if t.kind != tokIdent {
				break
			}
			parts = append(parts, t.text)
			if dot := p.peekAt(i + 1); dot.kind == tokOp && dot.text == "." {
				i += 2
				continue
			}
			if end := p.peekAt(i + 1); end.kind == tokOp && end.text == "]" {
				p.pos += i + 1
				return &literal{value: strings.Join(parts, ".")}, nil
			}
			break
		}
	}
	return p.parseOr()
}

func isKeyword(s string) bool {
	switch s {
	case "true", "false", "null":
		return true
	}
	return false
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.advance()
	switch t.kind {
	case tokVar:
		return &variable{name: t.text}, nil
	case tokConst:
		return &constant{name: t.text}, nil
	case tokString:
		return &literal{value: t.text}, nil
	case tokInt:
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, errorAt(fmt.Errorf("invalid integer %q", t.text), t.pos)
		}
		return &literal{value: i}, nil
	case tokFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, errorAt(fmt.Errorf("invalid number %q", t.text), t.pos)
		}
		return &literal{value: f}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null":
			return &literal{value: nil}, nil
		}
		return nil, errorAt(fmt.Errorf("unexpected identifier %q, variables start with \":\" and constants with \"$\"", t.text), t.pos)
	case tokOp:
		if t.text == "(" {
			x, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	}
	return nil, errorAt(fmt.Errorf("unexpected %s", t), t.pos)
}
