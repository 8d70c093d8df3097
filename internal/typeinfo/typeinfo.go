// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// GetTypeInfo returns the Info of the type of the given value, generating and
// caching it as required. Pointers are dereferenced.
func GetTypeInfo(value any) (*Info, error) {
	if value == (any)(nil) {
		return &Info{}, errors.Errorf("cannot reflect nil value")
	}
	return TypeInfo(reflect.TypeOf(value))
}

// TypeInfo returns the Info of the given type, generating and caching it as
// required. Pointer types are dereferenced.
func TypeInfo(t reflect.Type) (*Info, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return &Info{}, err
	}

	cacheMutex.Lock()
	// Another goroutine may have generated the same info in the meantime,
	// keep the first one stored.
	if stored, ok := cache[t]; ok {
		info = stored
	} else {
		cache[t] = info
	}
	cacheMutex.Unlock()

	return info, nil
}

// generate produces and returns reflection information for the input type
// that is specifically required by exql.
func generate(t reflect.Type) (*Info, error) {
	info := Info{
		Type:       t,
		TagToField: make(map[string]*Field),
		fields:     make(map[string]*Field),
		methods:    make(map[string]*Method),
	}

	if t.Kind() == reflect.Struct {
		for _, sf := range reflect.VisibleFields(t) {
			if !sf.IsExported() {
				continue
			}
			field := &Field{
				Name:  sf.Name,
				Index: sf.Index,
				Type:  sf.Type,
			}
			if tag := sf.Tag.Get("db"); tag != "" && tag != "-" {
				name, omitEmpty, err := parseTag(tag)
				if err != nil {
					return nil, errors.Wrapf(err, "cannot parse tag for field %s.%s", t.Name(), sf.Name)
				}
				field.Tag = name
				field.OmitEmpty = omitEmpty
				if _, ok := info.TagToField[name]; ok {
					return nil, errors.Errorf("db tag %q appears in both field %q and field %q of struct %q",
						name, info.TagToField[name].Name, sf.Name, t.Name())
				}
				info.TagToField[name] = field
			}
			addField(info.fields, sf.Name, field)
			addField(info.fields, lowerFirst(sf.Name), field)
			if field.Tag != "" {
				addField(info.fields, field.Tag, field)
			}
		}
	}

	// The method set of the pointer type includes the methods declared on
	// the value receiver.
	pt := t
	if t.Kind() != reflect.Interface {
		pt = reflect.PointerTo(t)
	}
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		method, ok := callable(m, t.Kind() != reflect.Interface)
		if !ok {
			continue
		}
		method.Index = i
		if _, ok := info.methods[m.Name]; !ok {
			info.methods[m.Name] = method
		}
		if _, ok := info.methods[lowerFirst(m.Name)]; !ok {
			info.methods[lowerFirst(m.Name)] = method
		}
	}

	return &info, nil
}

// callable returns the Method describing m if it can be invoked from a
// template expression. Only non-variadic methods returning a single value,
// or a value and an error, are callable.
func callable(m reflect.Method, hasReceiver bool) (*Method, bool) {
	ft := m.Type
	if ft.IsVariadic() {
		return nil, false
	}
	first := 0
	if hasReceiver {
		first = 1
	}
	var in []reflect.Type
	for i := first; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	switch ft.NumOut() {
	case 1:
		return &Method{Name: m.Name, In: in}, true
	case 2:
		if ft.Out(1) != errorInterface {
			return nil, false
		}
		return &Method{Name: m.Name, In: in, ReturnsError: true}, true
	}
	return nil, false
}

// addField stores the field under key unless the key is already taken. An
// exact Go field name always wins over a derived name.
func addField(fields map[string]*Field, key string, field *Field) {
	if _, ok := fields[key]; !ok {
		fields[key] = field
	}
}

// This expression should be aligned with the characters allowed in names by
// the template compiler.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its
// name and whether it contains the "omitempty" option.
func parseTag(tag string) (string, bool, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	// Refuse to parse if there are more than 2 items.
	if len(options) > 2 {
		return "", false, errors.Errorf("too many options in 'db' tag")
	}
	if len(options) == 2 {
		if strings.ToLower(options[1]) != "omitempty" {
			return "", false, errors.Errorf("unexpected tag value %q", options[1])
		}
		omitEmpty = true
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, errors.Errorf("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", false, errors.Errorf("invalid column name in 'db' tag")
	}

	return name, omitEmpty, nil
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
