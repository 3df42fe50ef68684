// Package stackdump formats middleware stacks for diagnostic error messages.
package stackdump

import (
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

var printer = spew.ConfigState{
	Indent:                  " ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
	MaxDepth:                3,
}

// Format renders entries as "[{0: <entry>} {1: <entry>} ...]".
// Functions are shown by their symbol name, other values through spew.
func Format(entries []any) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('{')
		b.WriteString(strconv.Itoa(i))
		b.WriteString(": ")
		b.WriteString(Entry(e))
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return b.String()
}

// Entry renders a single stack element.
func Entry(e any) string {
	if e == nil {
		return "<nil>"
	}
	rv := reflect.ValueOf(e)
	if rv.Kind() != reflect.Func {
		return printer.Sprintf("%v", e)
	}
	if rv.IsNil() {
		return "[func <nil>]"
	}
	name := "anonymous"
	if fn := runtime.FuncForPC(rv.Pointer()); fn != nil {
		name = fn.Name()
	}
	return "[func " + name + "]"
}
