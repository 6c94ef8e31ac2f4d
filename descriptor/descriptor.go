// Package descriptor extracts a structured member model from binary units.
//
// A Descriptor describes one version of one type: its header, its methods
// (including catchers and super-dispatchers reserved for the dispatch
// protocol), its constructors and its fields. Descriptors are immutable once
// built; the members they hand out must not be modified.
package descriptor

import (
	"strings"

	"github.com/chazu/hotswap/unit"
)

// Descriptor is the member model of one version of one type.
type Descriptor struct {
	Name       string
	Super      string
	Interfaces []string
	Access     unit.Access
	Signature  string

	methods      []*MethodMember
	constructors []*MethodMember
	fields       []*FieldMember

	byKey   map[string]*MethodMember
	byID    map[int]*MethodMember
	byField map[string]*FieldMember
}

func newDescriptor(u *unit.Unit) *Descriptor {
	return &Descriptor{
		Name:       u.Name,
		Super:      u.Super,
		Interfaces: cloneStrings(u.Interfaces),
		Access:     u.Access,
		Signature:  u.Signature,
		byKey:      make(map[string]*MethodMember),
		byID:       make(map[int]*MethodMember),
		byField:    make(map[string]*FieldMember),
	}
}

func (d *Descriptor) addMethod(m *MethodMember) {
	if m.IsConstructor() {
		d.constructors = append(d.constructors, m)
	} else {
		d.methods = append(d.methods, m)
	}
	d.byKey[m.Key()] = m
	d.byID[m.ID] = m
}

func (d *Descriptor) addField(f *FieldMember) {
	d.fields = append(d.fields, f)
	d.byField[f.Name] = f
}

// Methods returns the non-constructor methods in declaration order,
// followed by catchers and super-dispatchers.
func (d *Descriptor) Methods() []*MethodMember {
	return append([]*MethodMember(nil), d.methods...)
}

// Constructors returns the instance constructors.
func (d *Descriptor) Constructors() []*MethodMember {
	return append([]*MethodMember(nil), d.constructors...)
}

// Invocables returns constructors followed by methods.
func (d *Descriptor) Invocables() []*MethodMember {
	out := make([]*MethodMember, 0, len(d.constructors)+len(d.methods))
	out = append(out, d.constructors...)
	return append(out, d.methods...)
}

// Fields returns the declared fields in declaration order.
func (d *Descriptor) Fields() []*FieldMember {
	return append([]*FieldMember(nil), d.fields...)
}

// Method returns the method or constructor with the given key.
func (d *Descriptor) Method(key string) *MethodMember {
	return d.byKey[key]
}

// MethodByID returns the method or constructor with the given id.
func (d *Descriptor) MethodByID(id int) *MethodMember {
	return d.byID[id]
}

// Field returns the field with the given name.
func (d *Descriptor) Field(name string) *FieldMember {
	return d.byField[name]
}

// Listing renders the descriptor one member per line, for diffs and
// diagnostics.
func (d *Descriptor) Listing() string {
	var sb strings.Builder
	sb.WriteString("type ")
	sb.WriteString(d.Name)
	if acc := d.Access.String(); acc != "" {
		sb.WriteString(" (" + acc + ")")
	}
	sb.WriteString("\n  super ")
	sb.WriteString(d.Super)
	sb.WriteByte('\n')
	for _, i := range d.Interfaces {
		sb.WriteString("  implements " + i + "\n")
	}
	if d.Signature != "" {
		sb.WriteString("  sig " + d.Signature + "\n")
	}
	for _, f := range d.fields {
		sb.WriteString("  field " + f.String() + "\n")
	}
	for _, m := range d.constructors {
		sb.WriteString("  ctor " + m.String() + "\n")
	}
	for _, m := range d.methods {
		sb.WriteString("  method " + m.String() + "\n")
	}
	return sb.String()
}
