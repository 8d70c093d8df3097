// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"github.com/pkg/errors"
)

// Env holds the two scopes an expression is evaluated against. Vars is the
// runtime scope of one render call, Consts the constants of the statement.
type Env struct {
	Vars   map[string]any
	Consts map[string]any
}

// NewEnv returns an Env over the given scopes. Either may be nil.
func NewEnv(vars, consts map[string]any) *Env {
	return &Env{Vars: vars, Consts: consts}
}

// ResolveVariable returns the runtime value bound to name. Positional values
// are named by their index, "1", "2", and so on.
func (e *Env) ResolveVariable(name string) (any, error) {
	v, ok := e.Vars[name]
	if !ok {
		return nil, errors.Errorf("variable \":%s\" not defined", name)
	}
	return v, nil
}

// ResolveConstant returns the constant bound to name.
func (e *Env) ResolveConstant(name string) (any, error) {
	v, ok := e.Consts[name]
	if !ok {
		return nil, errors.Errorf("constant \"$%s\" not defined", name)
	}
	return v, nil
}

// Bind sets the runtime variable name to value. It returns a function that
// restores the previous binding, or removes the variable if it was unbound.
func (e *Env) Bind(name string, value any) (restore func()) {
	if e.Vars == nil {
		e.Vars = make(map[string]any)
	}
	prev, had := e.Vars[name]
	e.Vars[name] = value
	return func() {
		if had {
			e.Vars[name] = prev
		} else {
			delete(e.Vars, name)
		}
	}
}
