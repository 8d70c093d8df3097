// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

func NewParser() *Parser {
	return &Parser{}
}

// Parser compiles template text into a Template. A Parser is not safe for
// concurrent use but may be reused.
type Parser struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// lineNum is the number of the current line of the input.
	lineNum int
	// lineStart is the position of the first char of the current line in the
	// input.
	lineStart int
}

// Parse compiles an exql template. Expressions are parsed but never
// evaluated.
func (p *Parser) Parse(input string) (t *Template, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile template: %s", err)
		}
	}()

	p.init(input)

	root, err := p.parseBlock(nil)
	if err != nil {
		return nil, err
	}
	return &Template{source: input, root: root}, nil
}

// init resets the state of the parser and sets the input string.
func (p *Parser) init(input string) {
	p.input = input
	p.pos = 0
	p.nextPos = 0
	p.char = 0
	p.lineNum = 1
	p.lineStart = 0
	p.advanceChar()
}

// colNum calculates the current column number taking into account line breaks.
func (p *Parser) colNum() int {
	return p.pos - p.lineStart + 1
}

// advanceChar moves the parser to the next character in the input. It also
// takes care of updating the line and column numbers if it encounters line
// breaks.
func (p *Parser) advanceChar() bool {
	if p.nextPos >= len(p.input) {
		p.char = 0
		p.pos = p.nextPos
		return false
	}
	if p.char == '\n' {
		p.lineStart = p.nextPos
		p.lineNum++
	}
	var size int
	p.char, size = utf8.DecodeRuneInString(p.input[p.nextPos:])
	p.pos = p.nextPos
	p.nextPos += size
	return true
}

// peekNext returns the rune following the current one, or 0 at the end of
// input.
func (p *Parser) peekNext() rune {
	if p.nextPos >= len(p.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(p.input[p.nextPos:])
	return r
}

// errorAt wraps an error with line and column information.
func errorAt(err error, line int, column int, input string) error {
	if strings.ContainsRune(input, '\n') {
		return fmt.Errorf("line %d, column %d: %w", line, column, err)
	} else {
		return fmt.Errorf("column %d: %w", column, err)
	}
}

// A checkpoint struct for saving parser state to restore later.
type checkpoint struct {
	parser    *Parser
	pos       int
	nextPos   int
	char      rune
	lineNum   int
	lineStart int
}

// save takes a snapshot of the state of the parser and returns a pointer to a
// checkpoint that represents it.
func (p *Parser) save() *checkpoint {
	return &checkpoint{
		parser:    p,
		pos:       p.pos,
		nextPos:   p.nextPos,
		char:      p.char,
		lineNum:   p.lineNum,
		lineStart: p.lineStart,
	}
}

// restore sets the internal state of the parser to the values stored in the
// checkpoint.
func (cp *checkpoint) restore() {
	cp.parser.pos = cp.pos
	cp.parser.nextPos = cp.nextPos
	cp.parser.char = cp.char
	cp.parser.lineNum = cp.lineNum
	cp.parser.lineStart = cp.lineStart
}

// errorAt wraps err with the position stored in the checkpoint.
func (cp *checkpoint) errorAt(err error) error {
	return errorAt(err, cp.lineNum, cp.pos-cp.lineStart+1, cp.parser.input)
}

// builder accumulates the units of a block. Consecutive literal text is
// merged into a single literal unit.
type builder struct {
	units []unit
}

func (b *builder) addText(text string) {
	if text == "" {
		return
	}
	if n := len(b.units); n > 0 {
		if l, ok := b.units[n-1].(*literal); ok {
			b.units[n-1] = &literal{text: l.text + text}
			return
		}
	}
	b.units = append(b.units, &literal{text: text})
}

func (b *builder) add(u unit) {
	if s, ok := u.(*sequence); ok {
		for _, child := range s.units {
			b.add(child)
		}
		return
	}
	if l, ok := u.(*literal); ok {
		b.addText(l.text)
		return
	}
	b.units = append(b.units, u)
}

// unit returns the single unit of the block unwrapped, or a sequence.
func (b *builder) unit() unit {
	if len(b.units) == 1 {
		return b.units[0]
	}
	return &sequence{units: b.units}
}

// parseBlock parses units until the end of input or, for a nested block, until
// the "}" closing the block opened at open. The closing brace is not
// consumed. open is nil for the top level of the template.
func (p *Parser) parseBlock(open *checkpoint) (unit, error) {
	nested := open != nil
	b := &builder{}
	textStart := p.pos
	// flush adds the text between textStart and the current position.
	flush := func() {
		b.addText(p.input[textStart:p.pos])
	}

	for p.pos < len(p.input) {
		start := p.save()
		switch p.char {
		case '\'':
			if err := p.skipStringLiteral(); err != nil {
				return nil, err
			}
			continue
		case '}':
			if nested {
				flush()
				return b.unit(), nil
			}
			return nil, start.errorAt(errors.New(`unexpected "}"`))
		case '{':
			flush()
			u, err := p.parseBraces()
			if err != nil {
				return nil, err
			}
			b.add(u)
			textStart = p.pos
			continue
		case ':', '$':
			if p.char == ':' && p.peekNext() == ':' {
				p.advanceChar()
				p.advanceChar()
				continue
			}
			u, ok, err := p.parseReference()
			if err != nil {
				return nil, err
			}
			if ok {
				b.addText(p.input[textStart:start.pos])
				b.add(u)
				textStart = p.pos
				continue
			}
		case '#':
			u, ok, err := p.parseDirective()
			if err != nil {
				return nil, err
			}
			if ok {
				b.addText(p.input[textStart:start.pos])
				b.add(u)
				textStart = p.pos
				continue
			}
		}
		p.advanceChar()
	}

	if nested {
		return nil, open.errorAt(errors.New("missing closing brace"))
	}
	flush()
	return b.unit(), nil
}

// skipStringLiteral jumps over a single quoted SQL string. Doubled up quotes
// are escaped.
func (p *Parser) skipStringLiteral() error {
	cp := p.save()
	p.advanceChar()
	for p.pos < len(p.input) {
		if p.char == '\'' {
			p.advanceChar()
			if p.char == '\'' && p.pos < len(p.input) {
				p.advanceChar()
				continue
			}
			return nil
		}
		p.advanceChar()
	}
	return cp.errorAt(errors.New("missing closing quote in string literal"))
}

// parseBraces parses a "{...}" block. Followed by "?" the block is optional,
// otherwise the braces are literal text around the block's units.
func (p *Parser) parseBraces() (unit, error) {
	cp := p.save()
	p.advanceChar()
	body, err := p.parseBlock(cp)
	if err != nil {
		return nil, err
	}
	p.advanceChar()
	if p.char == '?' && p.pos < len(p.input) {
		p.advanceChar()
		return &optional{body: body}, nil
	}
	b := &builder{}
	b.addText("{")
	b.add(body)
	b.addText("}")
	return b.unit(), nil
}

// parseReference parses ":name" or "$name", optionally followed by dotted
// property names, into a bound or raw expression.
func (p *Parser) parseReference() (unit, bool, error) {
	cp := p.save()
	sigil := p.char
	p.advanceChar()
	if !p.skipName() {
		cp.restore()
		return nil, false, nil
	}
	for p.char == '.' && isNameChar(p.peekNext()) {
		p.advanceChar()
		p.skipName()
	}

	e, err := newExpression(p.input[cp.pos:p.pos])
	if err != nil {
		return nil, false, cp.errorAt(err)
	}
	if sigil == '$' {
		return &rawExpr{expr: e}, true, nil
	}
	return &boundExpr{expr: e}, true, nil
}

// skipName advances the parser past a run of name characters. Returns false
// if there were none.
func (p *Parser) skipName() bool {
	mark := p.pos
	for p.pos < len(p.input) && isNameChar(p.char) {
		p.advanceChar()
	}
	return p.pos != mark
}

// parseDirective parses a directive starting with "#". A "#" that is not
// followed by "(", "#", "!" or a letter is literal text.
func (p *Parser) parseDirective() (unit, bool, error) {
	cp := p.save()
	p.advanceChar()

	switch {
	case p.char == '(':
		e, err := p.parseParenthesised("#")
		if err != nil {
			return nil, false, err
		}
		return &boundExpr{expr: e}, true, nil
	case p.char == '#' || p.char == '!':
		name := "#" + string(p.char)
		p.advanceChar()
		p.skipBlanks()
		if p.char != '(' {
			return nil, false, cp.errorAt(fmt.Errorf("missing parentheses after %q", name))
		}
		e, err := p.parseParenthesised(name)
		if err != nil {
			return nil, false, err
		}
		return &rawExpr{expr: e}, true, nil
	case unicode.IsLetter(p.char):
		mark := p.pos
		p.skipName()
		word := p.input[mark:p.pos]
		switch word {
		case "if":
			u, err := p.parseIf(cp)
			return u, err == nil, err
		case "for":
			u, err := p.parseFor(cp)
			return u, err == nil, err
		case "else":
			return nil, false, cp.errorAt(errors.New("#else without #if"))
		}
		return nil, false, cp.errorAt(fmt.Errorf("unknown directive %q", "#"+word))
	}
	cp.restore()
	return nil, false, nil
}

// parseParenthesised parses "(expr)" and returns the parsed expression. The
// parser must be on the opening parenthesis.
func (p *Parser) parseParenthesised(directive string) (*Expression, error) {
	source, cp, err := p.parseParentheses(directive)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(source) == "" {
		return nil, cp.errorAt(fmt.Errorf("empty expression in %q", directive))
	}
	e, err := newExpression(strings.TrimSpace(source))
	if err != nil {
		return nil, cp.errorAt(err)
	}
	return e, nil
}

// parseParentheses returns the text between the parenthesis under the parser
// and its matching closing parenthesis. Quoted strings inside are skipped.
func (p *Parser) parseParentheses(directive string) (string, *checkpoint, error) {
	cp := p.save()
	p.advanceChar()
	start := p.pos
	depth := 0
	for p.pos < len(p.input) {
		switch p.char {
		case '\'', '"':
			quote := p.char
			for p.advanceChar() && p.char != quote {
				if p.char == '\\' {
					p.advanceChar()
				}
			}
		case '(':
			depth++
		case ')':
			if depth == 0 {
				source := p.input[start:p.pos]
				p.advanceChar()
				return source, cp, nil
			}
			depth--
		}
		p.advanceChar()
	}
	return "", nil, cp.errorAt(fmt.Errorf("missing closing parenthesis in %q", directive))
}

// parseBody parses the "{...}" block following a directive, skipping any
// blank space before it.
func (p *Parser) parseBody(directive string) (unit, error) {
	p.skipBlanks()
	cp := p.save()
	if p.char != '{' || p.pos >= len(p.input) {
		return nil, cp.errorAt(fmt.Errorf("missing block after %q", directive))
	}
	p.advanceChar()
	body, err := p.parseBlock(cp)
	if err != nil {
		return nil, err
	}
	p.advanceChar()
	return body, nil
}

// parseIf parses the rest of "#if(expr) {...}" and an optional
// "#else {...}".
func (p *Parser) parseIf(start *checkpoint) (unit, error) {
	p.skipBlanks()
	if p.char != '(' {
		return nil, start.errorAt(errors.New(`missing parentheses after "#if"`))
	}
	cond, err := p.parseParenthesised("#if")
	if err != nil {
		return nil, err
	}
	then, err := p.parseBody("#if")
	if err != nil {
		return nil, err
	}

	u := &conditional{cond: cond, then: then}
	cp := p.save()
	p.skipBlanks()
	if p.skipString("#else") && !isNameChar(p.char) {
		if u.els, err = p.parseBody("#else"); err != nil {
			return nil, err
		}
		return u, nil
	}
	cp.restore()
	return u, nil
}

// loopHeaderRx matches the "name in expr" form of a #for header.
var loopHeaderRx = regexp.MustCompile(`(?s)^:?([\p{L}\p{N}_]*)\s+in\s+(.+)$`)

// parseFor parses the rest of "#for(name in expr) {...}" or "#for(expr)
// {...}".
func (p *Parser) parseFor(start *checkpoint) (unit, error) {
	p.skipBlanks()
	if p.char != '(' {
		return nil, start.errorAt(errors.New(`missing parentheses after "#for"`))
	}
	header, cp, err := p.parseParentheses("#for")
	if err != nil {
		return nil, err
	}
	header = strings.TrimSpace(header)

	name, source := DefaultLoopVariable, header
	if m := loopHeaderRx.FindStringSubmatch(header); m != nil {
		if m[1] == "" {
			return nil, cp.errorAt(errors.New("empty loop variable name"))
		}
		name, source = m[1], strings.TrimSpace(m[2])
	} else if header == "in" || strings.HasPrefix(header, "in ") {
		return nil, cp.errorAt(errors.New("empty loop variable name"))
	}
	if source == "" {
		return nil, cp.errorAt(errors.New(`empty expression in "#for"`))
	}
	e, err := newExpression(source)
	if err != nil {
		return nil, cp.errorAt(err)
	}

	body, err := p.parseBody("#for")
	if err != nil {
		return nil, err
	}
	return &loop{source: e, name: name, body: body}, nil
}

// skipBlanks advances the parser past spaces, tabs and newlines. Returns
// whether the parser position was changed.
func (p *Parser) skipBlanks() bool {
	mark := p.pos
	for p.pos < len(p.input) {
		switch p.char {
		case ' ', '\t', '\r', '\n':
			p.advanceChar()
		default:
			return p.pos != mark
		}
	}
	return p.pos != mark
}

// skipString advances the parser past s if the input continues with it.
func (p *Parser) skipString(s string) bool {
	if !strings.HasPrefix(p.input[p.pos:], s) {
		return false
	}
	for end := p.pos + len(s); p.pos < end; {
		p.advanceChar()
	}
	return true
}

// isNameChar returns true if the given char can be part of a name.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}
