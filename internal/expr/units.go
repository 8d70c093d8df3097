// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"strings"
)

// DefaultLoopVariable is the variable bound by a #for directive that does
// not name one.
const DefaultLoopVariable = "_loop"

// A unit is a node of a compiled template.
type unit interface {
	// String returns a string representation of the unit for debugging and
	// testing purposes.
	String() string

	// unit is a marker method.
	unit()
}

// literal is template text that is emitted verbatim.
type literal struct {
	text string
}

func (u *literal) String() string {
	return "Literal[" + u.text + "]"
}

// Marker function for unit.
func (u *literal) unit() {}

// boundExpr emits a placeholder for each value its expression evaluates to
// and appends the values to the arguments.
type boundExpr struct {
	expr *Expression
}

func (u *boundExpr) String() string {
	return "Bound[" + u.expr.String() + "]"
}

// Marker function for unit.
func (u *boundExpr) unit() {}

// rawExpr emits the text form of the value of its expression.
type rawExpr struct {
	expr *Expression
}

func (u *rawExpr) String() string {
	return "Raw[" + u.expr.String() + "]"
}

// Marker function for unit.
func (u *rawExpr) unit() {}

// sequence emits its units in order.
type sequence struct {
	units []unit
}

func (u *sequence) String() string {
	parts := make([]string, len(u.units))
	for i, child := range u.units {
		parts[i] = child.String()
	}
	return "Sequence[" + strings.Join(parts, " ") + "]"
}

// Marker function for unit.
func (u *sequence) unit() {}

// conditional emits then if its condition is truthy, else otherwise. else
// may be nil.
type conditional struct {
	cond      *Expression
	then, els unit
}

func (u *conditional) String() string {
	if u.els == nil {
		return "If[" + u.cond.String() + " " + u.then.String() + "]"
	}
	return "If[" + u.cond.String() + " " + u.then.String() + " " + u.els.String() + "]"
}

// Marker function for unit.
func (u *conditional) unit() {}

// loop emits body once per element of the value of source, with the element
// bound to the variable name.
type loop struct {
	source *Expression
	name   string
	body   unit
}

func (u *loop) String() string {
	return "For[" + u.name + " " + u.source.String() + " " + u.body.String() + "]"
}

// Marker function for unit.
func (u *loop) unit() {}

// optional emits body only when body is valid.
type optional struct {
	body unit
}

func (u *optional) String() string {
	return "Optional[" + u.body.String() + "]"
}

// Marker function for unit.
func (u *optional) unit() {}
