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

package conlog

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/davecgh/go-spew/spew"
)

// inspector dumps structured values with no depth limit and stable key order
var inspector = spew.ConfigState{
	Indent:                  "  ",
	MaxDepth:                0,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Render converts one logged argument to text. Strings are used verbatim,
// scalars and errors print plainly, everything else is deep-inspected.
func Render(v interface{}, colors bool) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return t
	case error:
		return t.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v)
	}
	return Inspect(v, colors)
}

// RenderAll renders each argument
func RenderAll(args []interface{}, colors bool) []string {
	rendered := make([]string, len(args))
	for i, arg := range args {
		rendered[i] = Render(arg, colors)
	}
	return rendered
}

// Inspect returns a structural dump of v
func Inspect(v interface{}, colors bool) string {
	out := strings.TrimRight(inspector.Sdump(v), "\n")
	if colors {
		return Highlight(out)
	}
	return out
}

// Highlight adds ANSI color to Go-like source text. Text that cannot be
// highlighted is returned unchanged.
func Highlight(src string) string {
	var b strings.Builder
	if err := quick.Highlight(&b, src, "go", "terminal256", "monokai"); err != nil {
		return src
	}
	return strings.TrimRight(b.String(), "\n")
}
