// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr_test

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"time"

	. "gopkg.in/check.v1"

	"github.com/canonical/exql/internal/expr"
)

type M map[string]any

type Counter struct {
	n int
}

func (c *Counter) Next() int {
	c.n++
	return c.n
}

type Person struct {
	ID    int    `db:"id"`
	Name  string `db:"name"`
	Admin bool
}

func render(c *C, template string, vars, consts M) (*expr.Rendered, error) {
	tmpl, err := expr.NewParser().Parse(template)
	c.Assert(err, IsNil)
	return tmpl.Render(vars, consts, nil)
}

var renderTests = []struct {
	summary      string
	template     string
	vars         M
	expectedSQL  string
	expectedArgs []any
}{{
	"no directives",
	"SELECT * FROM person WHERE name = 'x'",
	M{"a": 1},
	"SELECT * FROM person WHERE name = 'x'",
	nil,
}, {
	"single value",
	"#(:x)",
	M{"x": "v"},
	"?",
	[]any{"v"},
}, {
	"nil value",
	"#(:x)",
	M{"x": nil},
	"?",
	[]any{nil},
}, {
	"byte slice is a single value",
	"#(:x)",
	M{"x": []byte("abc")},
	"?",
	[]any{[]byte("abc")},
}, {
	"empty collection",
	"IN (:ids)",
	M{"ids": []int{}},
	"IN (NULL)",
	nil,
}, {
	"nil elements are skipped",
	"IN (:ids)",
	M{"ids": []any{"a", nil, "b"}},
	"IN (?,?)",
	[]any{"a", "b"},
}, {
	"array",
	"IN (:ids)",
	M{"ids": [3]int{1, 2, 3}},
	"IN (?,?,?)",
	[]any{1, 2, 3},
}, {
	"positional arguments",
	"WHERE uid = :1 AND sid IN (:2)",
	M{"1": 102, "2": []int{11, 12, 24}},
	"WHERE uid = ? AND sid IN (?,?,?)",
	[]any{102, 11, 12, 24},
}, {
	"positional arguments with empty collection",
	"WHERE uid = :1 AND sid IN (:2)",
	M{"1": 102, "2": []int{}},
	"WHERE uid = ? AND sid IN (NULL)",
	[]any{102},
}, {
	"struct fields",
	"UPDATE person SET name = :p.name WHERE id = #(:p.id)",
	M{"p": Person{ID: 7, Name: "joe"}},
	"UPDATE person SET name = ? WHERE id = ?",
	[]any{"joe", 7},
}, {
	"raw expressions",
	"SELECT * FROM $table LIMIT ##(:n + 1) #!(:order)",
	M{"n": 9, "order": "DESC"},
	"SELECT * FROM person LIMIT 10 DESC",
	nil,
}, {
	"raw nil",
	"##(:x)",
	M{"x": nil},
	"NULL",
	nil,
}, {
	"cast passthrough",
	"SELECT :a::text",
	M{"a": 1},
	"SELECT ?::text",
	[]any{1},
}, {
	"if true",
	"#if(:flag){A}#else{B}",
	M{"flag": 1},
	"A",
	nil,
}, {
	"if zero",
	"#if(:flag){A}#else{B}",
	M{"flag": 0},
	"B",
	nil,
}, {
	"if empty string",
	"#if(:flag){A}#else{B}",
	M{"flag": ""},
	"B",
	nil,
}, {
	"if empty collection",
	"#if(:flag){A}#else{B}",
	M{"flag": []string{}},
	"B",
	nil,
}, {
	"if null",
	"#if(:flag){A}#else{B}",
	M{"flag": nil},
	"B",
	nil,
}, {
	"if false without else",
	"x#if(:flag){A}y",
	M{"flag": false},
	"xy",
	nil,
}, {
	"named loop",
	"#for(v in :xs){(:v)}",
	M{"xs": []int{1, 2, 3}},
	"(?)(?)(?)",
	[]any{1, 2, 3},
}, {
	"named loop restores binding",
	"#for(v in :xs){:v,}:v",
	M{"xs": []int{1, 2}, "v": "orig"},
	"?,?,?",
	[]any{1, 2, "orig"},
}, {
	"default loop variable restores binding",
	"#for(:xs){:_loop,}:_loop",
	M{"xs": []int{1, 2}, "_loop": "orig"},
	"?,?,?",
	[]any{1, 2, "orig"},
}, {
	"loop over map",
	"#for(e in :m){##(:e.key)=:e.value }",
	M{"m": map[string]int{"b": 2, "a": 1}},
	"a=? b=? ",
	[]any{1, 2},
}, {
	"loop over nil",
	"a#for(e in :m){x}b",
	M{"m": nil},
	"ab",
	nil,
}, {
	"loop over single value",
	"#for(e in :m){:e}",
	M{"m": "one"},
	"?",
	[]any{"one"},
}, {
	"optional blocks kept",
	"WHERE 1=1 {AND name = :name}? {AND id IN (:ids)}?",
	M{"name": "joe", "ids": []int{1, 2}},
	"WHERE 1=1 AND name = ? AND id IN (?,?)",
	[]any{"joe", 1, 2},
}, {
	"optional blocks dropped",
	"WHERE 1=1 {AND name = :name}? {AND id IN (:ids)}?",
	M{"name": "", "ids": []int{}},
	"WHERE 1=1  ",
	nil,
}, {
	"optional block with undefined variable",
	"a{ AND b = :missing}?",
	nil,
	"a",
	nil,
}, {
	"optional conditional selects else branch",
	"{W #if(:a){:b}#else{:c}}?",
	M{"a": false, "b": 0, "c": 5},
	"W ?",
	[]any{5},
}, {
	"optional conditional with invalid branch",
	"{W #if(:a){:b}#else{:c}}?",
	M{"a": false, "b": 5, "c": 0},
	"",
	nil,
}, {
	"optional conditional without else",
	"{W#if(:a){:b}}?",
	M{"a": false},
	"W",
	nil,
}, {
	"optional loop valid",
	"{#for(x in :xs){:x}}?",
	M{"xs": []int{1, 2}},
	"??",
	[]any{1, 2},
}, {
	"optional loop with invalid element",
	"{#for(x in :xs){:x}}?",
	M{"xs": []int{1, 0}},
	"",
	nil,
}, {
	"optional loop over empty collection",
	"{#for(x in :xs){:x}}?",
	M{"xs": []int{}},
	"",
	nil,
}, {
	"nested optional is always valid",
	"{a {:b}?}?",
	M{"b": nil},
	"a ",
	nil,
}, {
	"literal text is always valid",
	"{a}?",
	nil,
	"a",
	nil,
}, {
	"nil stringer pointer in bound concatenation",
	"#('a' + :t)",
	M{"t": (*time.Time)(nil)},
	"?",
	[]any{"a"},
}, {
	"nil stringer pointer in raw concatenation",
	"##('a' + :t)",
	M{"t": (*time.Time)(nil)},
	"a",
	nil,
}, {
	"nil stringer pointer in optional block",
	"x{ AND y = ##('a' + :t)}?",
	M{"t": (*time.Time)(nil)},
	"x AND y = a",
	nil,
}, {
	"raw nil stringer pointer",
	"##(:t)",
	M{"t": (*time.Time)(nil)},
	"NULL",
	nil,
}, {
	"unsigned value above the signed range",
	"#if(:u > 0){POS}#else{NEG}",
	M{"u": uint64(1 << 63)},
	"POS",
	nil,
}, {
	"empty map is truthy",
	"#if(:m){A}#else{B}",
	M{"m": map[string]int{}},
	"A",
	nil,
}, {
	"nil map is falsy",
	"#if(:m){A}#else{B}",
	M{"m": map[string]int(nil)},
	"B",
	nil,
}}

func (s *ExprSuite) TestRender(c *C) {
	consts := M{"table": "person"}
	for i, t := range renderTests {
		r, err := render(c, t.template, t.vars, consts)
		if !c.Check(err, IsNil, Commentf("test %d: %s", i, t.summary)) {
			continue
		}
		c.Check(r.SQL(), Equals, t.expectedSQL, Commentf("test %d: %s", i, t.summary))
		c.Check(r.Args(), DeepEquals, t.expectedArgs, Commentf("test %d: %s", i, t.summary))
	}
}

var renderErrorTests = []struct {
	template string
	vars     M
	err      string
}{{
	template: "#(:missing)",
	err:      `cannot render template: variable ":missing" not defined`,
}, {
	template: "SELECT * FROM $missing",
	err:      `cannot render template: constant "\$missing" not defined`,
}, {
	template: "#if(:p.unknown){A}",
	vars:     M{"p": Person{}},
	err:      `cannot render template: cannot resolve property "unknown" of expr_test.Person`,
}, {
	template: "#for(:xs){:_loop}:_loop",
	vars:     M{"xs": []int{1}},
	err:      `cannot render template: variable ":_loop" not defined`,
}, {
	template: "#for(v in :xs){:v}:v",
	vars:     M{"xs": []int{1}},
	err:      `cannot render template: variable ":v" not defined`,
}, {
	template: "##(:a / 0)",
	vars:     M{"a": 1},
	err:      `cannot render template: division by zero`,
}}

func (s *ExprSuite) TestRenderErrors(c *C) {
	for _, t := range renderErrorTests {
		r, err := render(c, t.template, t.vars, nil)
		c.Check(err, ErrorMatches, t.err, Commentf("template %q", t.template))
		c.Check(r, IsNil)
	}
}

func (s *ExprSuite) TestRenderDoesNotModifyVars(c *C) {
	vars := M{"xs": []int{1, 2}, "v": "orig"}
	_, err := render(c, "#for(v in :xs){:v}#for(:xs){:_loop}", vars, nil)
	c.Assert(err, IsNil)
	c.Assert(vars, DeepEquals, M{"xs": []int{1, 2}, "v": "orig"})
}

func (s *ExprSuite) TestRenderDoesNotMutateReceivers(c *C) {
	sb := &strings.Builder{}
	sb.WriteString("orig")
	r, err := render(c, "#(:sb.writeString('DROP'))", M{"sb": sb}, nil)
	c.Assert(err, ErrorMatches, "cannot render template: method WriteString panicked: .*")
	c.Assert(r, IsNil)
	c.Assert(sb.String(), Equals, "orig")

	r, err = render(c, "x{ ##(:sb.writeString('DROP'))}?", M{"sb": sb}, nil)
	c.Assert(err, IsNil)
	c.Assert(r.SQL(), Equals, "x")
	c.Assert(sb.String(), Equals, "orig")

	counter := &Counter{n: 1}
	r, err = render(c, "#(:c.next()) #(:c.next())", M{"c": counter}, nil)
	c.Assert(err, IsNil)
	c.Assert(r.Args(), DeepEquals, []any{2, 2})
	c.Assert(counter.n, Equals, 1)
}

func (s *ExprSuite) TestOptionalErrorsAreLogged(c *C) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tmpl, err := expr.NewParser().Parse("a{ AND b = :missing}?")
	c.Assert(err, IsNil)
	r, err := tmpl.Render(nil, nil, logger)
	c.Assert(err, IsNil)
	c.Assert(r.SQL(), Equals, "a")
	c.Assert(buf.String(), Matches, `(?s).*optional block skipped.*expression=:missing.*not defined.*`)
}

func (s *ExprSuite) TestRenderConcurrent(c *C) {
	tmpl, err := expr.NewParser().Parse("WHERE id IN (:ids) {AND name = :name}?")
	c.Assert(err, IsNil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := make([]int, i%4)
			r, err := tmpl.Render(M{"ids": ids, "name": ""}, nil, nil)
			c.Check(err, IsNil)
			if len(ids) == 0 {
				c.Check(r.SQL(), Equals, "WHERE id IN (NULL) ")
			} else {
				c.Check(r.Args(), HasLen, len(ids))
			}
		}(i)
	}
	wg.Wait()
}

func (s *ExprSuite) TestCompileIsRepeatable(c *C) {
	const template = "SELECT * FROM $table WHERE #if(:all){1=1}#else{id IN (:ids)}"
	parser := expr.NewParser()
	first, err := parser.Parse(template)
	c.Assert(err, IsNil)
	second, err := parser.Parse(template)
	c.Assert(err, IsNil)
	c.Assert(first.String(), Equals, second.String())

	vars := M{"all": false, "ids": []int{4, 5}}
	consts := M{"table": "person"}
	r1, err := first.Render(vars, consts, nil)
	c.Assert(err, IsNil)
	r2, err := second.Render(vars, consts, nil)
	c.Assert(err, IsNil)
	c.Assert(r1.SQL(), Equals, "SELECT * FROM person WHERE id IN (?,?)")
	c.Assert(r1, DeepEquals, r2)
}
