// Package unit defines the binary unit: the compiled, loadable
// representation of one type. A unit carries the type's header, its fields
// and methods, a member reference pool used by bytecode operands, and a
// constant pool of literals.
package unit

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Access flags
// ---------------------------------------------------------------------------

// Access holds modifier flags for a type or member.
type Access uint16

const (
	AccPublic    Access = 0x0001
	AccPrivate   Access = 0x0002
	AccProtected Access = 0x0004
	AccStatic    Access = 0x0008
	AccFinal     Access = 0x0010
	AccNative    Access = 0x0100
	AccInterface Access = 0x0200
	AccAbstract  Access = 0x0400
	AccSynthetic Access = 0x1000
)

// visibilityMask covers the bits that select a visibility bucket.
const visibilityMask = AccPublic | AccPrivate | AccProtected

// Is reports whether all bits of f are set.
func (a Access) Is(f Access) bool {
	return a&f == f
}

// Visibility returns the visibility bucket: AccPublic, AccPrivate,
// AccProtected, or 0 for package visibility.
func (a Access) Visibility() Access {
	return a & visibilityMask
}

// String renders the flags in declaration order.
func (a Access) String() string {
	var parts []string
	names := []struct {
		flag Access
		name string
	}{
		{AccPublic, "public"},
		{AccPrivate, "private"},
		{AccProtected, "protected"},
		{AccStatic, "static"},
		{AccFinal, "final"},
		{AccNative, "native"},
		{AccInterface, "interface"},
		{AccAbstract, "abstract"},
		{AccSynthetic, "synthetic"},
	}
	for _, n := range names {
		if a.Is(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Well-known names
// ---------------------------------------------------------------------------

const (
	// RootType is the universal root of every type hierarchy.
	RootType = "lang/Object"
	// StringType is the built-in string type.
	StringType = "lang/String"

	// Constructor is the name of instance constructors.
	Constructor = "<init>"
	// StaticInit is the name of the static initializer.
	StaticInit = "<clinit>"
)

// ---------------------------------------------------------------------------
// Unit members
// ---------------------------------------------------------------------------

// Annotation is type- or member-level metadata visible to introspection.
type Annotation struct {
	Type   string            `cbor:"1,keyasint"`
	Values map[string]string `cbor:"2,keyasint,omitempty"`
}

// Field declares a field.
type Field struct {
	Name        string       `cbor:"1,keyasint"`
	Desc        string       `cbor:"2,keyasint"`
	Access      Access       `cbor:"3,keyasint"`
	Signature   string       `cbor:"4,keyasint,omitempty"` // generic signature
	Annotations []Annotation `cbor:"5,keyasint,omitempty"`
}

// IsStatic reports whether the field is static.
func (f *Field) IsStatic() bool { return f.Access.Is(AccStatic) }

// LocalVar is debug metadata naming a local variable slot.
type LocalVar struct {
	Index int    `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint"`
	Desc  string `cbor:"3,keyasint"`
}

// Method declares a method, constructor, or static initializer.
type Method struct {
	Name        string       `cbor:"1,keyasint"`
	Desc        string       `cbor:"2,keyasint"`
	Access      Access       `cbor:"3,keyasint"`
	Signature   string       `cbor:"4,keyasint,omitempty"`
	Exceptions  []string     `cbor:"5,keyasint,omitempty"`
	MaxLocals   int          `cbor:"6,keyasint"`
	Code        []byte       `cbor:"7,keyasint,omitempty"`
	LocalVars   []LocalVar   `cbor:"8,keyasint,omitempty"`
	Annotations []Annotation `cbor:"9,keyasint,omitempty"`
}

// Key returns the method's name+descriptor key.
func (m *Method) Key() string { return m.Name + m.Desc }

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool { return m.Access.Is(AccStatic) }

// IsConstructor reports whether the method is an instance constructor.
func (m *Method) IsConstructor() bool { return m.Name == Constructor }

// Ref is an entry in the member reference pool. Type references (NEW) use
// only Owner.
type Ref struct {
	Owner string `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint,omitempty"`
	Desc  string `cbor:"3,keyasint,omitempty"`
}

// Key returns the referenced member's name+descriptor key.
func (r Ref) Key() string { return r.Name + r.Desc }

// ConstKind identifies the kind of a constant pool entry.
type ConstKind uint8

const (
	ConstString ConstKind = 1
	ConstInt    ConstKind = 2
	ConstFloat  ConstKind = 3
)

// Const is a literal in the constant pool.
type Const struct {
	Kind  ConstKind `cbor:"1,keyasint"`
	Str   string    `cbor:"2,keyasint,omitempty"`
	Int   int64     `cbor:"3,keyasint,omitempty"`
	Float float64   `cbor:"4,keyasint,omitempty"`
}

// Value returns the constant as a runtime value.
func (c Const) Value() any {
	switch c.Kind {
	case ConstString:
		return c.Str
	case ConstInt:
		return c.Int
	case ConstFloat:
		return c.Float
	}
	return nil
}

// Unit is one version of one type.
type Unit struct {
	Name        string       `cbor:"1,keyasint"`
	Super       string       `cbor:"2,keyasint,omitempty"`
	Interfaces  []string     `cbor:"3,keyasint,omitempty"`
	Access      Access       `cbor:"4,keyasint"`
	Signature   string       `cbor:"5,keyasint,omitempty"`
	Fields      []Field      `cbor:"6,keyasint,omitempty"`
	Methods     []Method     `cbor:"7,keyasint,omitempty"`
	Refs        []Ref        `cbor:"8,keyasint,omitempty"`
	Consts      []Const      `cbor:"9,keyasint,omitempty"`
	Annotations []Annotation `cbor:"10,keyasint,omitempty"`
}

// IsInterface reports whether the unit declares an interface.
func (u *Unit) IsInterface() bool { return u.Access.Is(AccInterface) }

// Method returns the method with the given name and descriptor, or nil.
func (u *Unit) Method(name, desc string) *Method {
	for i := range u.Methods {
		if u.Methods[i].Name == name && u.Methods[i].Desc == desc {
			return &u.Methods[i]
		}
	}
	return nil
}

// Field returns the field with the given name, or nil.
func (u *Unit) Field(name string) *Field {
	for i := range u.Fields {
		if u.Fields[i].Name == name {
			return &u.Fields[i]
		}
	}
	return nil
}

// AddRef interns a member reference and returns its pool index.
func (u *Unit) AddRef(owner, name, desc string) uint16 {
	for i, r := range u.Refs {
		if r.Owner == owner && r.Name == name && r.Desc == desc {
			return uint16(i)
		}
	}
	u.Refs = append(u.Refs, Ref{Owner: owner, Name: name, Desc: desc})
	return uint16(len(u.Refs) - 1)
}

// AddString interns a string constant and returns its pool index.
func (u *Unit) AddString(s string) uint16 {
	for i, c := range u.Consts {
		if c.Kind == ConstString && c.Str == s {
			return uint16(i)
		}
	}
	u.Consts = append(u.Consts, Const{Kind: ConstString, Str: s})
	return uint16(len(u.Consts) - 1)
}

// AddInt interns an integer constant and returns its pool index.
func (u *Unit) AddInt(v int64) uint16 {
	for i, c := range u.Consts {
		if c.Kind == ConstInt && c.Int == v {
			return uint16(i)
		}
	}
	u.Consts = append(u.Consts, Const{Kind: ConstInt, Int: v})
	return uint16(len(u.Consts) - 1)
}

// AddFloat interns a float constant and returns its pool index.
func (u *Unit) AddFloat(v float64) uint16 {
	for i, c := range u.Consts {
		if c.Kind == ConstFloat && c.Float == v {
			return uint16(i)
		}
	}
	u.Consts = append(u.Consts, Const{Kind: ConstFloat, Float: v})
	return uint16(len(u.Consts) - 1)
}

// AddConst interns a constant of any kind and returns its pool index.
func (u *Unit) AddConst(c Const) uint16 {
	switch c.Kind {
	case ConstInt:
		return u.AddInt(c.Int)
	case ConstFloat:
		return u.AddFloat(c.Float)
	}
	return u.AddString(c.Str)
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	c := *u
	c.Interfaces = append([]string(nil), u.Interfaces...)
	c.Fields = make([]Field, len(u.Fields))
	for i, f := range u.Fields {
		f.Annotations = cloneAnnotations(f.Annotations)
		c.Fields[i] = f
	}
	c.Methods = make([]Method, len(u.Methods))
	for i := range u.Methods {
		c.Methods[i] = u.Methods[i].Clone()
	}
	c.Refs = append([]Ref(nil), u.Refs...)
	c.Consts = append([]Const(nil), u.Consts...)
	c.Annotations = cloneAnnotations(u.Annotations)
	return &c
}

// Clone returns a deep copy of the method.
func (m Method) Clone() Method {
	m.Exceptions = append([]string(nil), m.Exceptions...)
	m.Code = append([]byte(nil), m.Code...)
	m.LocalVars = append([]LocalVar(nil), m.LocalVars...)
	m.Annotations = cloneAnnotations(m.Annotations)
	return m
}

func cloneAnnotations(as []Annotation) []Annotation {
	if as == nil {
		return nil
	}
	out := make([]Annotation, len(as))
	for i, a := range as {
		out[i] = Annotation{Type: a.Type}
		if a.Values != nil {
			out[i].Values = make(map[string]string, len(a.Values))
			for k, v := range a.Values {
				out[i].Values[k] = v
			}
		}
	}
	return out
}
