// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package expr compiles exql templates into trees of rendering units and
// renders them into SQL text with positional placeholders and an ordered list
// of arguments.
//
// The directives recognised in a template are:
//
//	:name, :1, :name.prop     bound expression, renders "?"
//	$name, $name.prop         raw expression, renders its text
//	#(expr)                   bound expression
//	##(expr), #!(expr)        raw expression
//	#if(expr) {...} #else {...}
//	#for(name in expr) {...}, #for(expr) {...}
//	{...}?                    optional block
//	::                        passed through unchanged
//
// Text inside single quoted SQL strings is never interpreted.
package expr
