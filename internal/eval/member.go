// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package eval

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/exql/internal/typeinfo"
)

// receiver prepares v for member access. Pointer chains are followed down to
// a single pointer so that methods declared on either receiver are found.
func receiver(v any, what string) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return reflect.Value{}, errors.Errorf("cannot %s null", what)
	}
	for rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return reflect.Value{}, errors.Errorf("cannot %s nil %s", what, rv.Type())
	}
	return rv, nil
}

func result(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// property reads the property name of v. Maps with string keys are looked up
// by key, a missing key being null. Other values are searched for a field,
// then a getter method, then the length built-in.
func property(v any, name string) (any, error) {
	rv, err := receiver(v, "read property "+quote(name)+" of")
	if err != nil {
		return nil, err
	}
	base := reflect.Indirect(rv)

	if base.Kind() == reflect.Map && base.Type().Key().Kind() == reflect.String {
		if base.IsNil() {
			return nil, nil
		}
		return result(base.MapIndex(reflect.ValueOf(name).Convert(base.Type().Key()))), nil
	}

	info, err := typeinfo.TypeInfo(base.Type())
	if err != nil {
		return nil, err
	}
	if f, ok := info.Field(name); ok {
		fv, err := typeinfo.ReadField(base, f)
		if err != nil {
			return nil, err
		}
		return result(fv), nil
	}
	if m, ok := info.Getter(name); ok {
		out, err := typeinfo.Call(rv, m, nil)
		if err != nil {
			return nil, err
		}
		return result(out), nil
	}
	if n, ok := length(base, name); ok {
		return n, nil
	}
	return nil, errors.Errorf("cannot resolve property %s of %s", quote(name), base.Type())
}

// invoke calls the exported method name of v.
func invoke(v any, name string, args []any) (any, error) {
	rv, err := receiver(v, "call method "+quote(name)+" on")
	if err != nil {
		return nil, err
	}
	base := reflect.Indirect(rv)

	info, err := typeinfo.TypeInfo(base.Type())
	if err != nil {
		return nil, err
	}
	if m, ok := info.Method(name); ok {
		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			in[i] = reflect.ValueOf(arg)
		}
		out, err := typeinfo.Call(rv, m, in)
		if err != nil {
			return nil, err
		}
		return result(out), nil
	}
	if len(args) == 0 {
		if n, ok := length(base, name); ok {
			return n, nil
		}
	}
	return nil, errors.Errorf("cannot resolve method %s of %s", quote(name), base.Type())
}

// length implements the length and size built-ins for strings, slices, arrays
// and maps.
func length(rv reflect.Value, name string) (int64, bool) {
	if name != "length" && name != "size" {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return int64(rv.Len()), true
	}
	return 0, false
}

// element indexes v with i.
func element(v any, i any) (any, error) {
	rv, err := receiver(v, "index")
	if err != nil {
		return nil, err
	}
	base := reflect.Indirect(rv)

	switch base.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		n, ok := toNumber(i)
		if !ok || n.isFloat {
			return nil, errors.Errorf("cannot index %s with %s", base.Type(), describe(i))
		}
		if n.i < 0 || n.i >= int64(base.Len()) {
			return nil, errors.Errorf("index %d out of range [0:%d)", n.i, base.Len())
		}
		return result(base.Index(int(n.i))), nil
	case reflect.Map:
		key, err := mapKey(base.Type().Key(), i)
		if err != nil {
			return nil, err
		}
		if base.IsNil() {
			return nil, nil
		}
		return result(base.MapIndex(key)), nil
	}
	return nil, errors.Errorf("cannot index %s", base.Type())
}

// mapKey converts the evaluated index i to the key type of a map.
func mapKey(keyType reflect.Type, i any) (reflect.Value, error) {
	if i == nil {
		return reflect.Value{}, errors.Errorf("cannot index map with null")
	}
	iv := reflect.ValueOf(i)
	if iv.Type().AssignableTo(keyType) {
		return iv, nil
	}
	if keyType.Kind() == reflect.String && iv.Kind() == reflect.String {
		return iv.Convert(keyType), nil
	}
	if n, ok := toNumber(i); ok {
		nv := reflect.ValueOf(n.value())
		if nv.Type().ConvertibleTo(keyType) && keyType.Kind() != reflect.String {
			return nv.Convert(keyType), nil
		}
	}
	return reflect.Value{}, errors.Errorf("cannot index map with key type %s using %s", keyType, describe(i))
}

func quote(name string) string {
	return "\"" + name + "\""
}
