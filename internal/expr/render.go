// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/canonical/exql/internal/eval"
)

// Template is a compiled template. It holds no per render state and is safe
// for concurrent use.
type Template struct {
	source string
	root   unit
}

// Source returns the text the template was compiled from.
func (t *Template) Source() string {
	return t.source
}

// String returns a string representation of the unit tree.
func (t *Template) String() string {
	return t.root.String()
}

// Rendered is the output of rendering a template.
type Rendered struct {
	sql  string
	args []any
}

// SQL returns the rendered SQL with a "?" placeholder for each argument.
func (r *Rendered) SQL() string {
	return r.sql
}

// Args returns the arguments in placeholder order.
func (r *Rendered) Args() []any {
	return r.args
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Render renders the template against the runtime values vars and the
// constants consts. vars is not modified. Failed evaluations inside optional
// blocks are logged to logger at debug level.
func (t *Template) Render(vars, consts map[string]any, logger *slog.Logger) (r *Rendered, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot render template: %w", err)
		}
	}()

	if logger == nil {
		logger = discardLogger
	}
	rc := &renderContext{
		env:    eval.NewEnv(maps.Clone(vars), consts),
		logger: logger,
	}
	if rc.env.Vars == nil {
		rc.env.Vars = make(map[string]any)
	}
	if err := rc.render(t.root); err != nil {
		return nil, err
	}
	return &Rendered{sql: rc.sql.String(), args: rc.args}, nil
}

// renderContext is the state of one render call.
type renderContext struct {
	env    *eval.Env
	sql    strings.Builder
	args   []any
	logger *slog.Logger
}

func (rc *renderContext) render(u unit) error {
	switch u := u.(type) {
	case *literal:
		rc.sql.WriteString(u.text)
	case *boundExpr:
		v, err := u.expr.Evaluate(rc.env)
		if err != nil {
			return err
		}
		rc.bind(v)
	case *rawExpr:
		v, err := u.expr.Evaluate(rc.env)
		if err != nil {
			return err
		}
		if eval.IsNil(v) {
			rc.sql.WriteString("NULL")
		} else {
			rc.sql.WriteString(eval.Stringify(v))
		}
	case *sequence:
		for _, child := range u.units {
			if err := rc.render(child); err != nil {
				return err
			}
		}
	case *conditional:
		v, err := u.cond.Evaluate(rc.env)
		if err != nil {
			return err
		}
		if eval.AsBoolean(v) {
			return rc.render(u.then)
		} else if u.els != nil {
			return rc.render(u.els)
		}
	case *loop:
		v, err := u.source.Evaluate(rc.env)
		if err != nil {
			return err
		}
		for _, elem := range eval.Elements(v) {
			restore := rc.env.Bind(u.name, elem)
			err := rc.render(u.body)
			restore()
			if err != nil {
				return err
			}
		}
	case *optional:
		if rc.valid(u.body) {
			return rc.render(u.body)
		}
	default:
		return fmt.Errorf("internal error: unknown unit type %T", u)
	}
	return nil
}

// bind writes the placeholders for v and appends it to the arguments.
// Collections are expanded to one placeholder per non-nil element, or to
// NULL when there are none.
func (rc *renderContext) bind(v any) {
	elems, ok := eval.Expand(v)
	if !ok {
		rc.sql.WriteString("?")
		rc.args = append(rc.args, v)
		return
	}
	if len(elems) == 0 {
		rc.sql.WriteString("NULL")
		return
	}
	for i, elem := range elems {
		if i > 0 {
			rc.sql.WriteString(",")
		}
		rc.sql.WriteString("?")
		rc.args = append(rc.args, elem)
	}
}

// valid reports whether u would produce meaningful output. Evaluation errors
// make a unit invalid.
func (rc *renderContext) valid(u unit) bool {
	switch u := u.(type) {
	case *literal, *optional:
		return true
	case *boundExpr:
		return rc.truthy(u.expr)
	case *rawExpr:
		return rc.truthy(u.expr)
	case *sequence:
		for _, child := range u.units {
			if !rc.valid(child) {
				return false
			}
		}
		return true
	case *conditional:
		if rc.truthy(u.cond) {
			return rc.valid(u.then)
		}
		return u.els == nil || rc.valid(u.els)
	case *loop:
		v, ok := rc.tryEvaluate(u.source)
		if !ok || !eval.AsBoolean(v) {
			return false
		}
		for _, elem := range eval.Elements(v) {
			restore := rc.env.Bind(u.name, elem)
			ok := rc.valid(u.body)
			restore()
			if !ok {
				return false
			}
		}
		return true
	}
	return false
}

func (rc *renderContext) truthy(e *Expression) bool {
	v, ok := rc.tryEvaluate(e)
	return ok && eval.AsBoolean(v)
}

// tryEvaluate evaluates e, logging instead of returning any error.
func (rc *renderContext) tryEvaluate(e *Expression) (any, bool) {
	v, err := e.Evaluate(rc.env)
	if err != nil {
		rc.logger.Debug("optional block skipped", "expression", e.String(), "err", err)
		return nil, false
	}
	return v, true
}
