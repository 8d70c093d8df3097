// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/canonical/exql/internal/eval"
)

// Expression is an expression embedded in a template, parsed when the
// template is compiled.
type Expression struct {
	source string
	node   eval.Node
}

func newExpression(source string) (*Expression, error) {
	node, err := eval.Parse(source)
	if err != nil {
		return nil, err
	}
	return &Expression{source: source, node: node}, nil
}

// String returns the source text of the expression.
func (e *Expression) String() string {
	return e.source
}

// Evaluate computes the value of the expression in env.
func (e *Expression) Evaluate(env *eval.Env) (any, error) {
	return eval.Evaluate(e.node, env)
}
