// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr_test

import (
	. "gopkg.in/check.v1"

	"github.com/canonical/exql/internal/expr"
)

var parseTests = []struct {
	summary        string
	input          string
	expectedParsed string
}{{
	"no directives",
	"SELECT * FROM person",
	"Literal[SELECT * FROM person]",
}, {
	"empty template",
	"",
	"Sequence[]",
}, {
	"positional references",
	"WHERE uid = :1 AND sid IN (:2)",
	"Sequence[Literal[WHERE uid = ] Bound[:1] Literal[ AND sid IN (] Bound[:2] Literal[)]]",
}, {
	"raw constant and property path",
	"SELECT * FROM $table WHERE id = :user.id",
	"Sequence[Literal[SELECT * FROM ] Raw[$table] Literal[ WHERE id = ] Bound[:user.id]]",
}, {
	"trailing dot is text",
	"price = :price.",
	"Sequence[Literal[price = ] Bound[:price] Literal[.]]",
}, {
	"cast passthrough",
	"SELECT a::text FROM t",
	"Literal[SELECT a::text FROM t]",
}, {
	"sigils without names",
	"x = $ AND y := 1",
	"Literal[x = $ AND y := 1]",
}, {
	"quoted literals are skipped",
	"SELECT ':x', 'it''s :y', '12:30' FROM t WHERE a = :a",
	"Sequence[Literal[SELECT ':x', 'it''s :y', '12:30' FROM t WHERE a = ] Bound[:a]]",
}, {
	"hash without directive",
	"a # b #1",
	"Literal[a # b #1]",
}, {
	"bound expression",
	"#(:a + 1)",
	"Bound[:a + 1]",
}, {
	"raw expressions",
	"##( $table ) #!(:col)",
	"Sequence[Raw[$table] Literal[ ] Raw[:col]]",
}, {
	"parentheses and strings inside expression",
	"#(:m.get('a)', (1 + 2)))",
	"Bound[:m.get('a)', (1 + 2))]",
}, {
	"if else",
	"#if(:a){A}#else{B}",
	"If[:a Literal[A] Literal[B]]",
}, {
	"if else with blanks",
	"#if (:a) { A } #else { B } C",
	"Sequence[If[:a Literal[ A ] Literal[ B ]] Literal[ C]]",
}, {
	"if without else",
	"#if(:a) {A} C",
	"Sequence[If[:a Literal[A]] Literal[ C]]",
}, {
	"named loop",
	"#for(v in :xs) {:v,}",
	"For[v :xs Sequence[Bound[:v] Literal[,]]]",
}, {
	"named loop with sigil",
	"#for(:v in :xs){x}",
	"For[v :xs Literal[x]]",
}, {
	"unnamed loop",
	"#for(:xs){#(:_loop)}",
	"For[_loop :xs Bound[:_loop]]",
}, {
	"nested directives",
	"#for(u in :users){#if(:u.admin){A}#else{B}}",
	"For[u :users If[:u.admin Literal[A] Literal[B]]]",
}, {
	"optional blocks",
	"WHERE 1 {AND a = :a}? {AND b IN (:b)}?",
	"Sequence[Literal[WHERE 1 ] " +
		"Optional[Sequence[Literal[AND a = ] Bound[:a]]] " +
		"Literal[ ] " +
		"Optional[Sequence[Literal[AND b IN (] Bound[:b] Literal[)]]]]",
}, {
	"nested optional blocks",
	"{a {b :b}? c}?",
	"Optional[Sequence[Literal[a ] Optional[Sequence[Literal[b ] Bound[:b]]] Literal[ c]]]",
}, {
	"literal braces",
	"SELECT '{}', {fn NOW()} FROM t",
	"Literal[SELECT '{}', {fn NOW()} FROM t]",
}, {
	"directives inside literal braces",
	"{:a}",
	"Sequence[Literal[{] Bound[:a] Literal[}]]",
}, {
	"multiline",
	"SELECT *\nFROM t\n#if(:a) {\n  WHERE a = :a\n}",
	"Sequence[Literal[SELECT *\nFROM t\n] If[:a Sequence[Literal[\n  WHERE a = ] Bound[:a] Literal[\n]]]]",
}}

func (s *ExprSuite) TestParse(c *C) {
	parser := expr.NewParser()
	for i, t := range parseTests {
		tmpl, err := parser.Parse(t.input)
		if !c.Check(err, IsNil, Commentf("test %d: %s", i, t.summary)) {
			continue
		}
		c.Check(tmpl.String(), Equals, t.expectedParsed, Commentf("test %d: %s", i, t.summary))
		c.Check(tmpl.Source(), Equals, t.input)
	}
}

var parseErrorTests = []struct {
	input string
	err   string
}{{
	input: "#if(:a",
	err:   `cannot compile template: column 4: missing closing parenthesis in "#if"`,
}, {
	input: "#if(:a) A",
	err:   `cannot compile template: column 9: missing block after "#if"`,
}, {
	input: "#if :a",
	err:   `cannot compile template: column 1: missing parentheses after "#if"`,
}, {
	input: "#if(:a){x}#else y",
	err:   `cannot compile template: column 17: missing block after "#else"`,
}, {
	input: "{:a",
	err:   `cannot compile template: column 1: missing closing brace`,
}, {
	input: "#for(v in :xs){ {:v }",
	err:   `cannot compile template: column 15: missing closing brace`,
}, {
	input: "a }",
	err:   `cannot compile template: column 3: unexpected "}"`,
}, {
	input: "{a}}",
	err:   `cannot compile template: column 4: unexpected "}"`,
}, {
	input: "#else {B}",
	err:   `cannot compile template: column 1: #else without #if`,
}, {
	input: "#foo(:a)",
	err:   `cannot compile template: column 1: unknown directive "#foo"`,
}, {
	input: "#( )",
	err:   `cannot compile template: column 2: empty expression in "#"`,
}, {
	input: "## :a",
	err:   `cannot compile template: column 1: missing parentheses after "##"`,
}, {
	input: "#for( in :xs){x}",
	err:   `cannot compile template: column 5: empty loop variable name`,
}, {
	input: "#for(: in :xs){x}",
	err:   `cannot compile template: column 5: empty loop variable name`,
}, {
	input: "#for(){x}",
	err:   `cannot compile template: column 5: empty expression in "#for"`,
}, {
	input: "'abc",
	err:   `cannot compile template: column 1: missing closing quote in string literal`,
}, {
	input: "SELECT\n  #if(:a {x}",
	err:   `cannot compile template: line 2, column 6: missing closing parenthesis in "#if"`,
}, {
	input: "#(:a +)",
	err:   `cannot compile template: column 2: cannot parse expression ":a \+": column 5: unexpected end of expression`,
}, {
	input: "WHERE a = :a.1",
	err:   `cannot compile template: column 11: cannot parse expression ":a.1": column 4: expected property name after ".", got "1"`,
}}

func (s *ExprSuite) TestParseErrors(c *C) {
	parser := expr.NewParser()
	for _, t := range parseErrorTests {
		_, err := parser.Parse(t.input)
		c.Check(err, ErrorMatches, t.err, Commentf("input %q", t.input))
	}
}
