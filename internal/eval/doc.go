// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package eval implements the expression language embedded in exql templates.

An expression reads values from two scopes. Runtime variables, supplied per
render call, are referenced with a colon: ":name" for named values and ":1",
":2", ... for positional ones. Constants, fixed when a statement is declared,
are referenced with a dollar sign: "$table".

Expressions support integer, decimal and string literals, the arithmetic
operators + - * / % (+ also concatenates text), comparisons, the logical
operators && || ! and the postfix forms:

	:user.name            property of a map, struct field or getter method
	:user.Initials(2)     exported method call
	:ids[0], :m[key]      indexing into slices, arrays and maps

Evaluation never modifies the values it reads.
*/
package eval
