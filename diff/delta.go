package diff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/unit"
)

// Aspect is one structural aspect of a type that can differ between
// versions.
type Aspect uint8

const (
	AspectAccess Aspect = iota
	AspectSuper
	AspectInterfaces
	AspectName
	AspectSignature
	FieldsAdded
	FieldsRemoved
	FieldsChanged
	MethodsAdded
	MethodsRemoved
	MethodsChanged
	numAspects
)

var aspectNames = [numAspects]string{
	AspectAccess:     "access",
	AspectSuper:      "super",
	AspectInterfaces: "interfaces",
	AspectName:       "name",
	AspectSignature:  "signature",
	FieldsAdded:      "fields-added",
	FieldsRemoved:    "fields-removed",
	FieldsChanged:    "fields-changed",
	MethodsAdded:     "methods-added",
	MethodsRemoved:   "methods-removed",
	MethodsChanged:   "methods-changed",
}

func (a Aspect) String() string {
	if a < numAspects {
		return aspectNames[a]
	}
	return "unknown"
}

// Aspects is a set of Aspect values.
type Aspects uint16

func (s Aspects) With(a Aspect) Aspects { return s | 1<<a }
func (s Aspects) Has(a Aspect) bool     { return s&(1<<a) != 0 }
func (s Aspects) Empty() bool           { return s == 0 }

func (s Aspects) String() string {
	var parts []string
	for a := Aspect(0); a < numAspects; a++ {
		if s.Has(a) {
			parts = append(parts, a.String())
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// MemberKind tells how a member differs.
type MemberKind uint8

const (
	Added MemberKind = iota + 1
	Removed
	Modified
)

func (k MemberKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "changed"
	}
	return "unknown"
}

// FieldDelta describes one field that differs.
type FieldDelta struct {
	Name   string
	Kind   MemberKind
	Before *descriptor.FieldMember
	After  *descriptor.FieldMember
}

// MethodDelta describes one declared method or constructor that differs.
type MethodDelta struct {
	Key    string
	Kind   MemberKind
	Before *descriptor.MethodMember
	After  *descriptor.MethodMember
}

// TypeDelta records which aspects of a type differ between two versions,
// with the concrete values for the changed ones.
type TypeDelta struct {
	Name    string
	Aspects Aspects

	AccessBefore, AccessAfter         unit.Access
	SuperBefore, SuperAfter           string
	InterfacesBefore, InterfacesAfter []string
	NameBefore, NameAfter             string
	SignatureBefore, SignatureAfter   string

	Fields  []FieldDelta
	Methods []MethodDelta
}

// Structural reports whether the delta changes the supertype or interface
// set, which a live hierarchy cannot absorb.
func (d *TypeDelta) Structural() bool {
	return d.Aspects.Has(AspectSuper) || d.Aspects.Has(AspectInterfaces)
}

func (d *TypeDelta) String() string {
	if d == nil {
		return "<no delta>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", d.Name, d.Aspects)
	if d.Aspects.Has(AspectSuper) {
		fmt.Fprintf(&sb, " super %s -> %s", d.SuperBefore, d.SuperAfter)
	}
	if d.Aspects.Has(AspectInterfaces) {
		fmt.Fprintf(&sb, " interfaces %v -> %v", d.InterfacesBefore, d.InterfacesAfter)
	}
	for _, f := range d.Fields {
		fmt.Fprintf(&sb, "; field %s %s", f.Name, f.Kind)
	}
	for _, m := range d.Methods {
		fmt.Fprintf(&sb, "; method %s %s", m.Key, m.Kind)
	}
	return sb.String()
}

// Types compares two versions of a type. Catchers and super-dispatchers are
// not declared members and are left out of the method deltas.
func Types(before, after *descriptor.Descriptor) *TypeDelta {
	d := &TypeDelta{Name: after.Name}

	if before.Access != after.Access {
		d.Aspects = d.Aspects.With(AspectAccess)
		d.AccessBefore, d.AccessAfter = before.Access, after.Access
	}
	if before.Super != after.Super {
		d.Aspects = d.Aspects.With(AspectSuper)
		d.SuperBefore, d.SuperAfter = before.Super, after.Super
	}
	if !sameSet(before.Interfaces, after.Interfaces) {
		d.Aspects = d.Aspects.With(AspectInterfaces)
		d.InterfacesBefore, d.InterfacesAfter = before.Interfaces, after.Interfaces
	}
	if before.Name != after.Name {
		d.Aspects = d.Aspects.With(AspectName)
		d.NameBefore, d.NameAfter = before.Name, after.Name
	}
	if before.Signature != after.Signature {
		d.Aspects = d.Aspects.With(AspectSignature)
		d.SignatureBefore, d.SignatureAfter = before.Signature, after.Signature
	}

	for _, bf := range before.Fields() {
		af := after.Field(bf.Name)
		switch {
		case af == nil:
			d.Aspects = d.Aspects.With(FieldsRemoved)
			d.Fields = append(d.Fields, FieldDelta{Name: bf.Name, Kind: Removed, Before: bf})
		case !bf.Equal(af):
			d.Aspects = d.Aspects.With(FieldsChanged)
			d.Fields = append(d.Fields, FieldDelta{Name: bf.Name, Kind: Modified, Before: bf, After: af})
		}
	}
	for _, af := range after.Fields() {
		if before.Field(af.Name) == nil {
			d.Aspects = d.Aspects.With(FieldsAdded)
			d.Fields = append(d.Fields, FieldDelta{Name: af.Name, Kind: Added, After: af})
		}
	}

	declared := func(d *descriptor.Descriptor, key string) *descriptor.MethodMember {
		m := d.Method(key)
		if m == nil || m.Catcher || m.SuperDispatcher {
			return nil
		}
		return m
	}
	for _, bm := range before.Invocables() {
		if bm.Catcher || bm.SuperDispatcher {
			continue
		}
		am := declared(after, bm.Key())
		switch {
		case am == nil:
			d.Aspects = d.Aspects.With(MethodsRemoved)
			d.Methods = append(d.Methods, MethodDelta{Key: bm.Key(), Kind: Removed, Before: bm})
		case !Equal(bm, am):
			d.Aspects = d.Aspects.With(MethodsChanged)
			d.Methods = append(d.Methods, MethodDelta{Key: bm.Key(), Kind: Modified, Before: bm, After: am})
		}
	}
	for _, am := range after.Invocables() {
		if am.Catcher || am.SuperDispatcher {
			continue
		}
		if declared(before, am.Key()) == nil {
			d.Aspects = d.Aspects.With(MethodsAdded)
			d.Methods = append(d.Methods, MethodDelta{Key: am.Key(), Kind: Added, After: am})
		}
	}
	return d
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
