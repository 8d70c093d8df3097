// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package exql

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/canonical/exql/internal/expr"
)

// MaxPositional is the number of positional arguments a template can
// reference, as :1 to :30.
const MaxPositional = 30

// Params holds the runtime values of a single render. Positional values are
// stored under the keys "1", "2" and so on.
type Params map[string]any

// Args returns Params holding values as positional arguments.
func Args(values ...any) (Params, error) {
	if len(values) > MaxPositional {
		return nil, fmt.Errorf("cannot bind %d positional arguments, at most %d allowed", len(values), MaxPositional)
	}
	p := make(Params, len(values))
	for i, v := range values {
		p[strconv.Itoa(i+1)] = v
	}
	return p, nil
}

// With sets the named value name and returns p. If p is nil a new Params is
// returned.
func (p Params) With(name string, value any) Params {
	if p == nil {
		p = Params{}
	}
	p[name] = value
	return p
}

// Constants holds the values templates read with the "$" sigil, such as
// table names.
type Constants map[string]any

// Rendered is a rendered template: SQL text with "?" placeholders and the
// arguments bound to them, in order.
type Rendered = expr.Rendered

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger of the compiler and the plans it compiles.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// Compiler compiles templates into plans and caches them by template text.
// Plans are never evicted. A Compiler is safe for concurrent use.
type Compiler struct {
	mutex  sync.RWMutex
	plans  map[string]*Plan
	logger *slog.Logger
}

// NewCompiler returns a Compiler with an empty plan cache.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		plans:  make(map[string]*Plan),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile returns the plan for template, compiling it on first use.
// Concurrent first uses may compile the template more than once but all of
// them return the plan that was stored first.
func (c *Compiler) Compile(template string) (*Plan, error) {
	c.mutex.RLock()
	plan, ok := c.plans[template]
	c.mutex.RUnlock()
	if ok {
		return plan, nil
	}

	tmpl, err := expr.NewParser().Parse(template)
	if err != nil {
		return nil, err
	}
	plan = &Plan{tmpl: tmpl, logger: c.logger}

	c.mutex.Lock()
	// Check if a plan has been stored by someone else since we last checked.
	if stored, ok := c.plans[template]; ok {
		plan = stored
	} else {
		c.plans[template] = plan
		c.logger.Debug("template compiled", "template", template, "plan", tmpl.String())
	}
	c.mutex.Unlock()
	return plan, nil
}

// MustCompile is the same as [Compiler.Compile] except that it panics on
// error.
func (c *Compiler) MustCompile(template string) *Plan {
	p, err := c.Compile(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Prepare compiles template and returns a [Statement] that renders it with
// the given constants.
func (c *Compiler) Prepare(template string, consts Constants) (*Statement, error) {
	plan, err := c.Compile(template)
	if err != nil {
		return nil, err
	}
	return &Statement{plan: plan, consts: consts}, nil
}

// MustPrepare is the same as [Compiler.Prepare] except that it panics on
// error.
func (c *Compiler) MustPrepare(template string, consts Constants) *Statement {
	s, err := c.Prepare(template, consts)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of cached plans.
func (c *Compiler) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.plans)
}

// Plan is a compiled template. It is immutable and safe for concurrent use.
type Plan struct {
	tmpl   *expr.Template
	logger *slog.Logger
}

// Template returns the text the plan was compiled from.
func (p *Plan) Template() string {
	return p.tmpl.Source()
}

// String returns a representation of the compiled units of the plan.
func (p *Plan) String() string {
	return p.tmpl.String()
}

// Render renders the plan with the runtime values params and the constants
// consts. params is not modified.
func (p *Plan) Render(params Params, consts Constants) (*Rendered, error) {
	return p.tmpl.Render(params, consts, p.logger)
}

// Statement is a plan bound to the constants it is rendered with.
type Statement struct {
	plan   *Plan
	consts Constants
}

// Plan returns the compiled plan of the statement.
func (s *Statement) Plan() *Plan {
	return s.plan
}

// Render renders the statement with the runtime values params.
func (s *Statement) Render(params Params) (*Rendered, error) {
	return s.plan.Render(params, s.consts)
}
