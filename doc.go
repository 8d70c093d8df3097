/*
Package exql compiles SQL templates into reusable plans and renders them into
SQL with "?" placeholders and an ordered list of arguments.

A template is written once, for example beside the function that runs it, and
rendered on every call with the values of that call:

	c := exql.NewCompiler()
	stmt := c.MustPrepare("SELECT * FROM $table WHERE uid = :1 AND sid IN (:2)", exql.Constants{"table": "person"})
	args, _ := exql.Args(102, []int{11, 12, 24})
	r, err := stmt.Render(args)
	// r.SQL()  == "SELECT * FROM person WHERE uid = ? AND sid IN (?,?,?)"
	// r.Args() == []any{102, 11, 12, 24}

Plans are cached by the [Compiler] by template text, so compiling the same
template again is cheap.

# Syntax

Runtime values are referenced with ":" and are always bound as arguments.
Constants are referenced with "$" and are written into the SQL text as is, so
they must never hold user input.

	:name, :1, :name.prop
	  - Bound expression. A slice or array is expanded to one placeholder
	    per non-nil element, or to NULL if there are none.

	$name, $name.prop
	  - Raw expression.

	#(expr), ##(expr), #!(expr)
	  - Bound and raw forms taking any expression.

	#if(expr) {...} #else {...}
	  - Renders one block depending on the truthiness of expr.

	#for(v in expr) {...}, #for(expr) {...}
	  - Renders the block once per element of expr, with the element bound
	    to :v, or to :_loop when no name is given.

	{...}?
	  - Renders the block only if every expression in it is truthy. Errors
	    while checking make the block disappear instead of failing.

Expressions support literals, arithmetic, comparison and logical operators,
property access (map keys, struct fields by name or "db" tag, getters),
method calls and indexing:

	#if(:user.age >= 18 && :user.name.length > 0) {...}
	#(:tags[0] + '%')

Text in single quotes and "::" casts are passed through unchanged.

# Running statements

[DB] wraps a [database/sql.DB]. It renders statements, prepares them on the
driver, keeping the most recently used ones, and scans results into structs,
maps or plain pointers:

	db := exql.NewDB(sqldb)
	var people []Person
	err := db.Query(ctx, stmt, args).GetAll(&people)
*/
package exql
