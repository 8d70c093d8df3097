// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"fmt"
	"math"
	"reflect"

	"github.com/pkg/errors"
)

// Evaluate computes the value of the parsed expression n in env.
func Evaluate(n Node, env *Env) (any, error) {
	switch n := n.(type) {
	case *literal:
		return n.value, nil
	case *variable:
		return env.ResolveVariable(n.name)
	case *constant:
		return env.ResolveConstant(n.name)
	case *unary:
		x, err := Evaluate(n.x, env)
		if err != nil {
			return nil, err
		}
		return evalUnary(n.op, x)
	case *binary:
		return evalBinary(n, env)
	case *member:
		x, err := Evaluate(n.x, env)
		if err != nil {
			return nil, err
		}
		return property(x, n.name)
	case *call:
		x, err := Evaluate(n.x, env)
		if err != nil {
			return nil, err
		}
		args := make([]any, len(n.args))
		for i, arg := range n.args {
			if args[i], err = Evaluate(arg, env); err != nil {
				return nil, err
			}
		}
		return invoke(x, n.name, args)
	case *index:
		x, err := Evaluate(n.x, env)
		if err != nil {
			return nil, err
		}
		i, err := Evaluate(n.index, env)
		if err != nil {
			return nil, err
		}
		return element(x, i)
	}
	return nil, errors.Errorf("internal error: unknown node type %T", n)
}

func evalUnary(op string, x any) (any, error) {
	switch op {
	case "!":
		return !AsBoolean(x), nil
	case "-":
		n, ok := toNumber(x)
		if !ok {
			return nil, errors.Errorf("cannot negate %s", describe(x))
		}
		if n.isFloat {
			return -n.f, nil
		}
		return -n.i, nil
	}
	return nil, errors.Errorf("internal error: unknown unary operator %q", op)
}

func evalBinary(n *binary, env *Env) (any, error) {
	l, err := Evaluate(n.l, env)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit.
	switch n.op {
	case "&&":
		if !AsBoolean(l) {
			return false, nil
		}
		r, err := Evaluate(n.r, env)
		if err != nil {
			return nil, err
		}
		return AsBoolean(r), nil
	case "||":
		if AsBoolean(l) {
			return true, nil
		}
		r, err := Evaluate(n.r, env)
		if err != nil {
			return nil, err
		}
		return AsBoolean(r), nil
	}

	r, err := Evaluate(n.r, env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, l, r)
	}
	return arithmetic(n.op, l, r)
}

// arithmetic applies + - * / %. Integers stay integers, any decimal operand
// makes the result a decimal, and + concatenates when either side is text.
func arithmetic(op string, l, r any) (any, error) {
	if op == "+" && (isText(l) || isText(r)) {
		return Stringify(l) + Stringify(r), nil
	}
	a, aok := toNumber(l)
	b, bok := toNumber(r)
	if !aok || !bok {
		return nil, errors.Errorf("cannot apply %q to %s and %s", op, describe(l), describe(r))
	}

	if !a.isFloat && !b.isFloat {
		switch op {
		case "+":
			return a.i + b.i, nil
		case "-":
			return a.i - b.i, nil
		case "*":
			return a.i * b.i, nil
		case "/", "%":
			if b.i == 0 {
				return nil, errors.New("division by zero")
			}
			if op == "/" {
				return a.i / b.i, nil
			}
			return a.i % b.i, nil
		}
	}

	af, bf := a.float(), b.float()
	switch op {
	case "+":
		return af + bf, nil
	case "-":
		return af - bf, nil
	case "*":
		return af * bf, nil
	case "/", "%":
		if bf == 0 {
			return nil, errors.New("division by zero")
		}
		if op == "/" {
			return af / bf, nil
		}
		return math.Mod(af, bf), nil
	}
	return nil, errors.Errorf("internal error: unknown operator %q", op)
}

func equal(l, r any) bool {
	if IsNil(l) || IsNil(r) {
		return IsNil(l) && IsNil(r)
	}
	if a, ok := toNumber(l); ok {
		if b, ok := toNumber(r); ok {
			return compareNumbers(a, b) == 0
		}
		return false
	}
	if isText(l) && isText(r) {
		return Stringify(l) == Stringify(r)
	}
	return reflect.DeepEqual(l, r)
}

func compare(op string, l, r any) (bool, error) {
	var c int
	a, aok := toNumber(l)
	b, bok := toNumber(r)
	switch {
	case aok && bok:
		c = compareNumbers(a, b)
	case isText(l) && isText(r):
		ls, rs := Stringify(l), Stringify(r)
		switch {
		case ls < rs:
			c = -1
		case ls > rs:
			c = 1
		}
	default:
		return false, errors.Errorf("cannot compare %s and %s", describe(l), describe(r))
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	}
	return c >= 0, nil
}

// describe names the type of v for error messages.
func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
