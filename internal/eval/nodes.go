// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"fmt"
	"strings"
)

// Node is a node of a parsed expression.
type Node interface {
	// String returns a string representation of the node for debugging and
	// testing purposes.
	String() string

	// node is a marker method.
	node()
}

// variable reads a value from the runtime scope.
type variable struct {
	name string
}

func (n *variable) String() string {
	return "Var[" + n.name + "]"
}

func (n *variable) node() {}

// constant reads a value from the constant scope.
type constant struct {
	name string
}

func (n *constant) String() string {
	return "Const[" + n.name + "]"
}

func (n *constant) node() {}

// literal is a number, string, boolean or null written in the expression.
type literal struct {
	value any
}

func (n *literal) String() string {
	if s, ok := n.value.(string); ok {
		return fmt.Sprintf("Lit[%q]", s)
	}
	return fmt.Sprintf("Lit[%v]", n.value)
}

func (n *literal) node() {}

type unary struct {
	op string
	x  Node
}

func (n *unary) String() string {
	return fmt.Sprintf("Unary[%s %s]", n.op, n.x)
}

func (n *unary) node() {}

type binary struct {
	op   string
	l, r Node
}

func (n *binary) String() string {
	return fmt.Sprintf("Binary[%s %s %s]", n.op, n.l, n.r)
}

func (n *binary) node() {}

// member reads a property of the value of x.
type member struct {
	x    Node
	name string
}

func (n *member) String() string {
	return fmt.Sprintf("Member[%s %s]", n.x, n.name)
}

func (n *member) node() {}

// call invokes a method on the value of x.
type call struct {
	x    Node
	name string
	args []Node
}

func (n *call) String() string {
	args := make([]string, len(n.args))
	for i, arg := range n.args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("Call[%s %s(%s)]", n.x, n.name, strings.Join(args, ", "))
}

func (n *call) node() {}

// index reads an element of a slice, array, string or map.
type index struct {
	x, index Node
}

func (n *index) String() string {
	return fmt.Sprintf("Index[%s %s]", n.x, n.index)
}

func (n *index) node() {}
