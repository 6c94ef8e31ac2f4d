package unit

import (
	"fmt"
	"strings"
)

// Descriptor strings are erased type shapes:
//
//	Z bool  B int8  C uint16  S int16  I int32  J int64  F float32  D float64
//	V void (return only)  Lpkg/Name; reference  [elem array
//
// A method descriptor is "(" params ")" ret.

// ObjectDesc returns the reference descriptor of a type name.
func ObjectDesc(name string) string {
	return "L" + name + ";"
}

// TypeName returns the type name of a reference descriptor, or "" if desc
// is not a reference.
func TypeName(desc string) string {
	if len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return ""
}

// IsReference reports whether desc names a reference or array type.
func IsReference(desc string) bool {
	return desc != "" && (desc[0] == 'L' || desc[0] == '[')
}

// ValidFieldDesc reports whether desc is a single well-formed field type.
func ValidFieldDesc(desc string) bool {
	n, ok := scanType(desc, 0, false)
	return ok && n == len(desc)
}

// ParseMethodDesc splits a method descriptor into parameter and return
// descriptors.
func ParseMethodDesc(desc string) (params []string, ret string, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, "", fmt.Errorf("unit: malformed method descriptor %q", desc)
	}
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		end, ok := scanType(desc, pos, false)
		if !ok {
			return nil, "", fmt.Errorf("unit: malformed parameter in %q at %d", desc, pos)
		}
		params = append(params, desc[pos:end])
		pos = end
	}
	if pos >= len(desc) {
		return nil, "", fmt.Errorf("unit: unterminated parameters in %q", desc)
	}
	pos++
	end, ok := scanType(desc, pos, true)
	if !ok || end != len(desc) {
		return nil, "", fmt.Errorf("unit: malformed return type in %q", desc)
	}
	return params, desc[pos:], nil
}

// ArgCount returns the number of parameters of a method descriptor, or -1
// if it is malformed.
func ArgCount(desc string) int {
	params, _, err := ParseMethodDesc(desc)
	if err != nil {
		return -1
	}
	return len(params)
}

// ReturnDesc returns the return descriptor of a method descriptor.
func ReturnDesc(desc string) string {
	if i := strings.LastIndexByte(desc, ')'); i >= 0 {
		return desc[i+1:]
	}
	return ""
}

// PrependParam returns desc with param inserted as the first parameter.
func PrependParam(desc, param string) string {
	if desc == "" || desc[0] != '(' {
		return desc
	}
	return "(" + param + desc[1:]
}

// DropParam returns desc without its first parameter. A descriptor with no
// parameters is returned unchanged.
func DropParam(desc string) string {
	params, ret, err := ParseMethodDesc(desc)
	if err != nil || len(params) == 0 {
		return desc
	}
	return "(" + strings.Join(params[1:], "") + ")" + ret
}

// Zero returns the default value for a field descriptor.
func Zero(desc string) any {
	if desc == "" {
		return nil
	}
	switch desc[0] {
	case 'Z':
		return false
	case 'B':
		return int8(0)
	case 'C':
		return uint16(0)
	case 'S':
		return int16(0)
	case 'I':
		return int32(0)
	case 'J':
		return int64(0)
	case 'F':
		return float32(0)
	case 'D':
		return float64(0)
	}
	return nil
}

func scanType(s string, pos int, allowVoid bool) (int, bool) {
	if pos >= len(s) {
		return pos, false
	}
	switch s[pos] {
	case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D':
		return pos + 1, true
	case 'V':
		return pos + 1, allowVoid
	case 'L':
		end := strings.IndexByte(s[pos:], ';')
		if end <= 1 {
			return pos, false
		}
		return pos + end + 1, true
	case '[':
		return scanType(s, pos+1, false)
	}
	return pos, false
}
