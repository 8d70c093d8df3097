// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"

	"github.com/pkg/errors"
)

// ReadField returns the value of field f in the struct v. v may be a pointer
// to the struct. An error is returned if a nil embedded pointer is traversed.
func ReadField(v reflect.Value, f *Field) (reflect.Value, error) {
	v = reflect.Indirect(v)
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, errors.Errorf("cannot read field %q of %s", f.Name, v.Kind())
	}
	fv, err := v.FieldByIndexErr(f.Index)
	if err != nil {
		return reflect.Value{}, errors.Wrapf(err, "cannot read field %q", f.Name)
	}
	return fv, nil
}

// Call invokes the method m on a copy of the value v, or of the value v
// points to, with the given arguments. The caller's value is never passed as
// the receiver so that methods with pointer receivers cannot modify it. A
// method that panics on the copy, such as one guarding against being copied,
// returns an error. Arguments are converted to the parameter types of the
// method where Go allows it.
func Call(v reflect.Value, m *Method, args []reflect.Value) (result reflect.Value, err error) {
	if len(args) != m.NumIn() {
		return reflect.Value{}, errors.Errorf("method %s takes %d arguments, got %d", m.Name, m.NumIn(), len(args))
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = reflect.Value{}, errors.Errorf("method %s panicked: %v", m.Name, r)
		}
	}()

	recv := v
	if v.Kind() != reflect.Interface {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, errors.Errorf("cannot call method %s on nil %s", m.Name, v.Type())
			}
			v = v.Elem()
		}
		recv = reflect.New(v.Type())
		recv.Elem().Set(v)
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		want := m.In[i]
		switch {
		case !arg.IsValid():
			if !nillable(want) {
				return reflect.Value{}, errors.Errorf("cannot use null as argument %d of method %s", i+1, m.Name)
			}
			in[i] = reflect.Zero(want)
		case arg.Type().AssignableTo(want):
			in[i] = arg
		case arg.Type().ConvertibleTo(want) && sameCategory(arg.Type(), want):
			in[i] = arg.Convert(want)
		default:
			return reflect.Value{}, errors.Errorf("cannot use %s as argument %d of method %s, need %s", arg.Type(), i+1, m.Name, want)
		}
	}

	out := recv.Method(m.Index).Call(in)
	if m.ReturnsError && !out[1].IsNil() {
		return reflect.Value{}, errors.Wrapf(out[1].Interface().(error), "method %s failed", m.Name)
	}
	return out[0], nil
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// sameCategory stops conversions Go allows but that change the meaning of a
// value, such as int to string.
func sameCategory(from, to reflect.Type) bool {
	return isNumber(from.Kind()) == isNumber(to.Kind())
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
