// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"sort"
)

var valuerInterface = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// Entry is a key/value pair of a map iterated by a loop.
type Entry struct {
	Key   any
	Value any
}

// AsBoolean reports whether v is truthy:
//
//	nil, nil pointers     false
//	text                  length > 0
//	numbers               > 0
//	booleans              their value
//	slices, arrays        length > 0
//	maps                  true unless nil
//	driver.Valuer         truthiness of Value()
//	anything else         true
func AsBoolean(v any) bool {
	rv, ok := deref(reflect.ValueOf(v))
	if !ok {
		return false
	}
	if rv.Type().Implements(valuerInterface) {
		dv, err := rv.Interface().(driver.Valuer).Value()
		if err != nil || dv == nil {
			return false
		}
		if _, isValuer := dv.(driver.Valuer); !isValuer {
			return AsBoolean(dv)
		}
	}
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Map:
		return !rv.IsNil()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() > 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() > 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() > 0
	case reflect.Chan, reflect.Func:
		return !rv.IsNil()
	}
	return true
}

// deref follows pointers and interfaces. It returns false if v is invalid or
// a nil pointer is found.
func deref(rv reflect.Value) (reflect.Value, bool) {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		// Types implementing driver.Valuer through a pointer receiver are
		// kept as pointers.
		if rv.Kind() == reflect.Pointer && rv.Type().Implements(valuerInterface) {
			return rv, true
		}
		rv = rv.Elem()
	}
	return rv, rv.IsValid()
}

// IsNil reports whether v is nil or a nil pointer, map, slice or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// IsCollection reports whether v is bound as a list of values: a slice or
// array other than a byte slice or a driver.Valuer.
func IsCollection(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	if t.Implements(valuerInterface) {
		return false
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() != reflect.Uint8
	}
	return false
}

// Expand returns the non-nil elements of a collection in order. The second
// result is false if v is not a collection.
func Expand(v any) ([]any, bool) {
	if !IsCollection(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	elems := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		if IsNil(elem) {
			continue
		}
		elems = append(elems, elem)
	}
	return elems, true
}

// Elements returns the values a loop iterates over. Slices and arrays yield
// their elements, maps yield an Entry per key in sorted key order, nil yields
// nothing and any other value is iterated once.
func Elements(v any) []any {
	if IsNil(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elems := make([]any, rv.Len())
		for i := range elems {
			elems[i] = rv.Index(i).Interface()
		}
		return elems
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return lessKey(keys[i].Interface(), keys[j].Interface())
		})
		elems := make([]any, len(keys))
		for i, k := range keys {
			elems[i] = Entry{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}
		}
		return elems
	}
	return []any{v}
}

func lessKey(a, b any) bool {
	na, aok := toNumber(a)
	nb, bok := toNumber(b)
	if aok && bok {
		return compareNumbers(na, nb) < 0
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// Stringify returns the text form of v used for concatenation and raw
// output. nil and nil pointers are the empty string.
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return ""
	}
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	rv, ok := deref(reflect.ValueOf(v))
	if !ok {
		return ""
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Pointer:
		return fmt.Sprint(rv.Interface())
	}
	if rv.Type() != reflect.TypeOf(v) {
		return Stringify(rv.Interface())
	}
	return fmt.Sprint(v)
}

// number is a numeric operand. Integers keep 64 bit precision unless an
// operation involves a decimal.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

// toNumber converts v to a number if it is of a numeric kind.
func toNumber(v any) (number, bool) {
	rv, ok := deref(reflect.ValueOf(v))
	if !ok {
		return number{}, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return number{f: float64(u), isFloat: true}, true
		}
		return number{i: int64(u)}, true
	case reflect.Float32, reflect.Float64:
		return number{f: rv.Float(), isFloat: true}, true
	}
	return number{}, false
}

func compareNumbers(a, b number) int {
	if !a.isFloat && !b.isFloat {
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	}
	switch af, bf := a.float(), b.float(); {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func isText(v any) bool {
	rv, ok := deref(reflect.ValueOf(v))
	return ok && rv.Kind() == reflect.String
}
