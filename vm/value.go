package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/hotswap/unit"
)

// Value is any runtime value: bool, int8, uint16, int16, int32, int64,
// float32, float64, string, *Object, *Array, or nil.
type Value = any

// Array is a fixed-length sequence of values.
type Array struct {
	Elems []Value
}

// NewArray wraps elems in an Array.
func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// Stringify renders a value the way CONCAT does.
func Stringify(v Value) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case *Object:
		return x.String()
	case *Array:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			parts[i] = Stringify(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case uint16:
		return string(rune(x))
	}
	return fmt.Sprint(v)
}

// primitiveMatches reports whether v has the Go representation of the
// primitive descriptor kind k.
func primitiveMatches(v Value, k byte) bool {
	switch k {
	case 'Z':
		_, ok := v.(bool)
		return ok
	case 'B':
		_, ok := v.(int8)
		return ok
	case 'C':
		_, ok := v.(uint16)
		return ok
	case 'S':
		_, ok := v.(int16)
		return ok
	case 'I':
		_, ok := v.(int32)
		return ok
	case 'J':
		_, ok := v.(int64)
		return ok
	case 'F':
		_, ok := v.(float32)
		return ok
	case 'D':
		_, ok := v.(float64)
		return ok
	}
	return false
}

// Assignable reports whether v may be stored in a location of type desc.
// Reference types are checked against the loader's type hierarchy.
func (l *Loader) Assignable(v Value, desc string) bool {
	if desc == "" {
		return false
	}
	switch desc[0] {
	case 'L':
		if v == nil {
			return true
		}
		name := unit.TypeName(desc)
		switch name {
		case unit.RootType:
			return true
		case unit.StringType:
			_, ok := v.(string)
			return ok
		}
		obj, ok := v.(*Object)
		if !ok {
			return false
		}
		return obj.typ.IsSubtypeOf(name)
	case '[':
		if v == nil {
			return true
		}
		_, ok := v.(*Array)
		return ok
	}
	return primitiveMatches(v, desc[0])
}
