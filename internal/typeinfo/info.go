// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
)

// Field represents a single readable field of a struct type.
type Field struct {
	Type reflect.Type

	// Name is the name of the struct field.
	Name string

	// Index is the index sequence for reflect.Value.FieldByIndex. It has more
	// than one element for fields promoted from embedded structs.
	Index []int

	// Tag is the column name from the "db" tag, if any.
	Tag string

	// OmitEmpty is true when "omitempty" is
	// a property of the field's "db" tag.
	OmitEmpty bool
}

// Method represents an exported method that template expressions are allowed
// to call.
type Method struct {
	// Name is the name of the method.
	Name string

	// Index of the method in the method set of the pointer type.
	Index int

	// In holds the parameter types, excluding the receiver.
	In []reflect.Type

	// ReturnsError is true when the method returns (value, error).
	ReturnsError bool
}

// NumIn returns the number of arguments the method takes.
func (m *Method) NumIn() int {
	return len(m.In)
}

// Info represents reflected information about a type.
type Info struct {
	Type reflect.Type

	// Relate tag names to fields.
	TagToField map[string]*Field

	// fields relates Go field names, with their first letter either upper or
	// lower case, and db tags to fields.
	fields map[string]*Field

	// methods relates method names, with their first letter either upper or
	// lower case, to callable methods.
	methods map[string]*Method
}

// Field returns the field with the given name. The name may be the Go field
// name, the Go field name with a lower case first letter, or the "db" tag.
func (i *Info) Field(name string) (*Field, bool) {
	f, ok := i.fields[name]
	return f, ok
}

// Method returns the callable method with the given name. The first letter
// of the name may be lower case.
func (i *Info) Method(name string) (*Method, bool) {
	m, ok := i.methods[name]
	return m, ok
}

// Getter returns a method taking no arguments that reads the property name.
// Both Name() and GetName() are accepted.
func (i *Info) Getter(name string) (*Method, bool) {
	if m, ok := i.methods[name]; ok && m.NumIn() == 0 {
		return m, true
	}
	if m, ok := i.methods["Get"+upperFirst(name)]; ok && m.NumIn() == 0 {
		return m, true
	}
	return nil, false
}
