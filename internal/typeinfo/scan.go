// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"reflect"
	"time"

	"github.com/pkg/errors"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
var timeType = reflect.TypeOf(time.Time{})

// ScanProxy is a shim for scanning query results
// into types for which we have information.
type ScanProxy struct {
	original reflect.Value
	scan     reflect.Value
	key      reflect.Value
}

// OnSuccess copies the scanned value into its final location. A NULL scanned
// into a non-pointer struct field zeroes the field.
func (sp ScanProxy) OnSuccess() {
	if sp.key.IsValid() {
		sp.original.SetMapIndex(sp.key, sp.scan)
	} else {
		var val reflect.Value
		if !sp.scan.IsNil() {
			val = sp.scan.Elem()
		} else {
			val = reflect.Zero(sp.original.Type())
		}
		sp.original.Set(val)
	}
}

// ScanTargets returns the pointers to pass to rows.Scan for the given result
// columns, along with the proxies that must be run once the scan succeeds.
//
// The outputs are either a single pointer to a struct, whose fields are
// matched to columns by "db" tag or field name, a single map with string
// keys, or one pointer per column.
func ScanTargets(columns []string, outputs []any) ([]any, []ScanProxy, error) {
	if len(outputs) == 1 {
		v := reflect.ValueOf(outputs[0])
		switch {
		case v.Kind() == reflect.Map:
			return mapTargets(columns, v)
		case v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Map:
			if v.Elem().IsNil() {
				v.Elem().Set(reflect.MakeMap(v.Elem().Type()))
			}
			return mapTargets(columns, v.Elem())
		case v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct &&
			v.Elem().Type() != timeType && !v.Type().Implements(scannerInterface):
			return structTargets(columns, v.Elem())
		}
	}

	if len(outputs) != len(columns) {
		return nil, nil, errors.Errorf("need %d output arguments for %d columns, got %d", len(columns), len(columns), len(outputs))
	}
	for i, out := range outputs {
		v := reflect.ValueOf(out)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return nil, nil, errors.Errorf("need pointer for column %q, got %T", columns[i], out)
		}
	}
	return outputs, nil, nil
}

func mapTargets(columns []string, m reflect.Value) ([]any, []ScanProxy, error) {
	if m.IsNil() {
		return nil, nil, errors.Errorf("cannot scan into nil map")
	}
	if m.Type().Key().Kind() != reflect.String {
		return nil, nil, errors.Errorf("map type %s must have string keys", m.Type())
	}
	ptrs := make([]any, 0, len(columns))
	proxies := make([]ScanProxy, 0, len(columns))
	for _, col := range columns {
		scanVal := reflect.New(m.Type().Elem()).Elem()
		ptrs = append(ptrs, scanVal.Addr().Interface())
		key := reflect.ValueOf(col).Convert(m.Type().Key())
		proxies = append(proxies, ScanProxy{original: m, scan: scanVal, key: key})
	}
	return ptrs, proxies, nil
}

func structTargets(columns []string, s reflect.Value) ([]any, []ScanProxy, error) {
	info, err := TypeInfo(s.Type())
	if err != nil {
		return nil, nil, err
	}
	ptrs := make([]any, 0, len(columns))
	var proxies []ScanProxy
	for _, col := range columns {
		f, ok := info.TagToField[col]
		if !ok {
			if f, ok = info.Field(col); !ok {
				return nil, nil, errors.Errorf("column %q not found in struct %q", col, s.Type().Name())
			}
		}
		val, err := s.FieldByIndexErr(f.Index)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cannot scan column %q", col)
		}
		if !val.CanSet() {
			return nil, nil, errors.Errorf("internal error: cannot set field %s of struct %s", f.Name, s.Type().Name())
		}

		pt := reflect.PointerTo(val.Type())
		if val.Type().Kind() != reflect.Pointer && !pt.Implements(scannerInterface) {
			scanVal := reflect.New(pt).Elem()
			ptrs = append(ptrs, scanVal.Addr().Interface())
			proxies = append(proxies, ScanProxy{original: val, scan: scanVal})
			continue
		}
		ptrs = append(ptrs, val.Addr().Interface())
	}
	return ptrs, proxies, nil
}
