package descriptor

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/hotswap/unit"
)

// SuperDispatcherSuffix is appended to a supertype method's name to form
// the name of its super-dispatcher.
const SuperDispatcherSuffix = "_$superdispatcher$"

// Member holds the attributes common to methods and fields.
type Member struct {
	ID        int
	Name      string
	Desc      string // erased
	Signature string // generic signature, if any
	Access    unit.Access
}

// Key returns the member's name+descriptor key.
func (m *Member) Key() string { return m.Name + m.Desc }

// IsStatic reports whether the member is static.
func (m *Member) IsStatic() bool { return m.Access.Is(unit.AccStatic) }

// IsPrivate reports whether the member is private.
func (m *Member) IsPrivate() bool { return m.Access.Is(unit.AccPrivate) }

// IsFinal reports whether the member is final.
func (m *Member) IsFinal() bool { return m.Access.Is(unit.AccFinal) }

// MethodMember describes a method or constructor.
type MethodMember struct {
	Member
	Exceptions  []string
	Annotations []unit.Annotation

	// Catcher marks a placeholder for an inherited method the type does not
	// declare. A catcher has no body in the unit that introduced it.
	Catcher bool

	// SuperDispatcher marks a generated helper that invokes the supertype
	// implementation of a method non-virtually.
	SuperDispatcher bool
}

// IsConstructor reports whether the member is an instance constructor.
func (m *MethodMember) IsConstructor() bool { return m.Name == unit.Constructor }

// IsStaticInit reports whether the member is the static initializer.
func (m *MethodMember) IsStaticInit() bool { return m.Name == unit.StaticInit }

// String renders the member as a single listing line.
func (m *MethodMember) String() string {
	var sb strings.Builder
	if acc := m.Access.String(); acc != "" {
		sb.WriteString(acc)
		sb.WriteByte(' ')
	}
	sb.WriteString(m.Name)
	sb.WriteString(m.Desc)
	if m.Signature != "" {
		fmt.Fprintf(&sb, " sig=%s", m.Signature)
	}
	if len(m.Exceptions) > 0 {
		fmt.Fprintf(&sb, " throws %s", strings.Join(m.Exceptions, ","))
	}
	if m.Catcher {
		sb.WriteString(" [catcher]")
	}
	if m.SuperDispatcher {
		sb.WriteString(" [superdispatcher]")
	}
	fmt.Fprintf(&sb, " #%d", m.ID)
	return sb.String()
}

// FieldMember describes a field.
type FieldMember struct {
	Member
	Owner string // declaring type
}

// Equal reports structural equality: name, modifiers, descriptor and
// generic signature.
func (f *FieldMember) Equal(o *FieldMember) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.Name == o.Name && f.Access == o.Access && f.Desc == o.Desc && f.Signature == o.Signature
}

// String renders the field as a single listing line.
func (f *FieldMember) String() string {
	var sb strings.Builder
	if acc := f.Access.String(); acc != "" {
		sb.WriteString(acc)
		sb.WriteByte(' ')
	}
	fmt.Fprintf(&sb, "%s:%s", f.Name, f.Desc)
	if f.Signature != "" {
		fmt.Fprintf(&sb, " sig=%s", f.Signature)
	}
	fmt.Fprintf(&sb, " #%d", f.ID)
	return sb.String()
}

func cloneStrings(s []string) []string {
	return slices.Clone(s)
}
