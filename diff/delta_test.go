package diff

import (
	"testing"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/unit"
)

func describe(t *testing.T, u *unit.Unit, ord *descriptor.Ordinals) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.FromUnit(u, descriptor.WithOrdinals(ord))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestTypesMembers(t *testing.T) {
	ord := descriptor.NewOrdinals()
	b := unit.New("demo/T", unit.RootType, unit.AccPublic)
	b.AddField(unit.Field{Name: "x", Desc: "I"})
	b.AddField(unit.Field{Name: "gone", Desc: "J"})
	b.Methods = []unit.Method{method("a", "()V", unit.AccPublic), method("b", "()V", unit.AccPublic)}

	a := unit.New("demo/T", unit.RootType, unit.AccPublic)
	a.AddField(unit.Field{Name: "x", Desc: "Llang/String;"})
	a.AddField(unit.Field{Name: "fresh", Desc: "Z"})
	a.Methods = []unit.Method{method("a", "()V", unit.AccPrivate), method("c", "()V", unit.AccPublic), method("toString", "()Llang/String;", unit.AccPublic)}

	d := Types(describe(t, b, ord), describe(t, a, ord))
	for _, want := range []Aspect{FieldsAdded, FieldsRemoved, FieldsChanged, MethodsAdded, MethodsRemoved, MethodsChanged} {
		if !d.Aspects.Has(want) {
			t.Errorf("aspects %v missing %v", d.Aspects, want)
		}
	}
	if d.Structural() {
		t.Error("member-only delta reported as structural")
	}

	fields := map[string]MemberKind{}
	for _, f := range d.Fields {
		fields[f.Name] = f.Kind
	}
	wantFields := map[string]MemberKind{"x": Modified, "gone": Removed, "fresh": Added}
	for name, kind := range wantFields {
		if fields[name] != kind {
			t.Errorf("field %s = %v, want %v", name, fields[name], kind)
		}
	}

	methods := map[string]MemberKind{}
	for _, m := range d.Methods {
		methods[m.Key] = m.Kind
	}
	wantMethods := map[string]MemberKind{"a()V": Modified, "b()V": Removed, "c()V": Added, "toString()Llang/String;": Added}
	if len(methods) != len(wantMethods) {
		t.Errorf("methods = %v, want %v", methods, wantMethods)
	}
	for key, kind := range wantMethods {
		if methods[key] != kind {
			t.Errorf("method %s = %v, want %v", key, methods[key], kind)
		}
	}
}

func TestTypesHeader(t *testing.T) {
	ord := descriptor.NewOrdinals()
	b := unit.New("demo/T", unit.RootType, unit.AccPublic)
	b.Interfaces = []string{"demo/A", "demo/B"}
	a := unit.New("demo/T", "demo/Base", unit.AccPublic|unit.AccFinal)
	a.Interfaces = []string{"demo/B", "demo/A"}

	d := Types(describe(t, b, ord), describe(t, a, ord))
	if !d.Aspects.Has(AspectSuper) || !d.Aspects.Has(AspectAccess) {
		t.Errorf("aspects = %v", d.Aspects)
	}
	if d.Aspects.Has(AspectInterfaces) {
		t.Error("reordered interfaces reported as changed")
	}
	if d.SuperBefore != unit.RootType || d.SuperAfter != "demo/Base" {
		t.Errorf("super %q -> %q", d.SuperBefore, d.SuperAfter)
	}
	if !d.Structural() {
		t.Error("supertype change should be structural")
	}
}
