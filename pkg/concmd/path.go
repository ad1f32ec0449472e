/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package concmd

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrBadPath is returned for property paths that cannot be parsed
	ErrBadPath = errors.New("invalid property path")

	// ErrNoProperty is returned when a path step does not exist
	ErrNoProperty = errors.New("no such property")

	// ErrNoKeys is returned by Keys for values without keys
	ErrNoKeys = errors.New("value has no keys")
)

// step is one element of a property path: a name or an index
type step struct {
	name  string
	index int
	isIdx bool
}

func (s step) String() string {
	if s.isIdx {
		return fmt.Sprintf("[%d]", s.index)
	}
	return "." + s.name
}

// parsePath splits ".a.b[0]['c']" into steps
func parsePath(path string) ([]step, error) {
	var steps []step
	for i := 0; i < len(path); {
		switch path[i] {
		case '.':
			j := i + 1
			for j < len(path) && isIdentChar(path[j]) {
				j++
			}
			if j == i+1 {
				return nil, errors.Wrapf(ErrBadPath, "%q", path)
			}
			steps = append(steps, step{name: path[i+1 : j]})
			i = j
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, errors.Wrapf(ErrBadPath, "%q", path)
			}
			inner := strings.TrimSpace(path[i+1 : i+end])
			i += end + 1

			if n, err := strconv.Atoi(inner); err == nil {
				steps = append(steps, step{index: n, isIdx: true})
				continue
			}
			if unq, err := unquote(inner); err == nil {
				steps = append(steps, step{name: unq})
				continue
			}
			return nil, errors.Wrapf(ErrBadPath, "%q", path)
		case ' ', '\t':
			i++
		default:
			return nil, errors.Wrapf(ErrBadPath, "%q", path)
		}
	}
	return steps, nil
}

func unquote(s string) (string, error) {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], nil
	}
	return strconv.Unquote(s)
}

// Lookup applies a property path such as ".user.name" or "[0]['key']" to v.
// Maps are indexed by key, structs by field name (first letter in either
// case), slices, arrays and strings by position; "length" gives their size.
func Lookup(v interface{}, path string) (interface{}, error) {
	steps, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	cur := reflect.ValueOf(v)
	for _, st := range steps {
		cur = indirect(cur)
		if !cur.IsValid() {
			return nil, errors.Wrapf(ErrNoProperty, "cannot read %s of nil", st)
		}
		next, err := stepInto(cur, st)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	cur = indirectInterface(cur)
	if !cur.IsValid() {
		return nil, nil
	}
	return cur.Interface(), nil
}

func stepInto(cur reflect.Value, st step) (reflect.Value, error) {
	switch cur.Kind() {
	case reflect.Map:
		key := st.name
		if st.isIdx {
			key = strconv.Itoa(st.index)
		}
		if cur.Type().Key().Kind() != reflect.String {
			break
		}
		val := cur.MapIndex(reflect.ValueOf(key).Convert(cur.Type().Key()))
		if !val.IsValid() {
			return val, errors.Wrapf(ErrNoProperty, "%s", st)
		}
		return val, nil

	case reflect.Struct:
		if st.isIdx {
			break
		}
		if f := fieldByName(cur, st.name); f.IsValid() {
			return f, nil
		}

	case reflect.Slice, reflect.Array, reflect.String:
		if !st.isIdx && st.name == "length" {
			return reflect.ValueOf(cur.Len()), nil
		}
		if st.isIdx && st.index >= 0 && st.index < cur.Len() {
			return cur.Index(st.index), nil
		}
	}
	return reflect.Value{}, errors.Wrapf(ErrNoProperty, "%s on %s", st, cur.Type())
}

// fieldByName finds an exported field, matching the first letter in either case
func fieldByName(v reflect.Value, name string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == name || strings.EqualFold(f.Name[:1], name[:1]) && f.Name[1:] == name[1:] {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

// indirect follows pointers and interfaces down to a concrete value
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func indirectInterface(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// Keys returns the keys of v: sorted map keys, exported struct field names
// in declaration order, or the indices of a slice or array.
func Keys(v interface{}) (interface{}, error) {
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, errors.Wrap(ErrNoKeys, "nil")
	}

	switch rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, fmt.Sprint(k.Interface()))
		}
		sort.Strings(keys)
		return keys, nil

	case reflect.Struct:
		t := rv.Type()
		keys := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				keys = append(keys, t.Field(i).Name)
			}
		}
		return keys, nil

	case reflect.Slice, reflect.Array:
		keys := make([]int, rv.Len())
		for i := range keys {
			keys[i] = i
		}
		return keys, nil
	}
	return nil, errors.Wrapf(ErrNoKeys, "%s", rv.Type())
}
