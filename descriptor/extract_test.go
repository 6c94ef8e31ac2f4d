package descriptor

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/hotswap/unit"
)

func method(name, desc string, access unit.Access) unit.Method {
	u := unit.New("scratch", unit.RootType, 0)
	a := unit.NewAsm(u)
	a.Return(desc)
	locals := unit.ArgCount(desc)
	if !access.Is(unit.AccStatic) {
		locals++
	}
	return unit.Method{Name: name, Desc: desc, Access: access, MaxLocals: locals, Code: a.Code()}
}

func typeUnit(name, super string, methods ...unit.Method) *unit.Unit {
	u := unit.New(name, super, unit.AccPublic)
	u.Methods = append(u.Methods, methods...)
	return u
}

func TestExtractBasics(t *testing.T) {
	u := typeUnit("demo/T", unit.RootType,
		method(unit.Constructor, "()V", unit.AccPublic),
		method("a", "()V", unit.AccPublic),
		method("toString", "()Llang/String;", unit.AccPublic),
	)
	u.AddField(unit.Field{Name: "items", Desc: "Llang/Object;", Signature: "Ljava/List<TE;>;"})
	u.Methods[1].Signature = "<E:Ljava/lang/Object;>()V"

	d, err := FromUnit(u, MustSucceed())
	if err != nil {
		t.Fatalf("FromUnit: %v", err)
	}
	if len(d.Constructors()) != 1 {
		t.Errorf("constructors = %d, want 1", len(d.Constructors()))
	}
	a := d.Method("a()V")
	if a == nil || a.Signature != "<E:Ljava/lang/Object;>()V" || a.Desc != "()V" {
		t.Fatalf("a = %+v", a)
	}
	if f := d.Field("items"); f == nil || f.Owner != "demo/T" || f.Signature == "" {
		t.Errorf("items = %+v", f)
	}

	if ts := d.Method("toString()Llang/String;"); ts == nil || ts.Catcher {
		t.Errorf("declared toString should not be a catcher: %+v", ts)
	}
	for _, key := range []string{"hashCode()I", "equals(Llang/Object;)Z"} {
		m := d.Method(key)
		if m == nil || !m.Catcher {
			t.Errorf("%s should be a catcher: %+v", key, m)
		}
	}
	sd := d.Method("toString" + SuperDispatcherSuffix + "(Ldemo/T;)Llang/String;")
	if sd == nil || !sd.SuperDispatcher || !sd.IsStatic() {
		t.Errorf("toString super-dispatcher = %+v", sd)
	}
}

func TestOrdinalsStableAcrossVersions(t *testing.T) {
	ord := NewOrdinals()
	v1 := typeUnit("demo/T", unit.RootType, method("a", "()V", unit.AccPublic), method("b", "()V", unit.AccPublic))
	v1.AddField(unit.Field{Name: "x", Desc: "I"})
	v2 := typeUnit("demo/T", unit.RootType, method("c", "()V", unit.AccPublic), method("a", "()V", unit.AccPublic))
	v2.AddField(unit.Field{Name: "y", Desc: "I"})
	v2.AddField(unit.Field{Name: "x", Desc: "I"})

	d1, err := FromUnit(v1, WithOrdinals(ord))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := FromUnit(v2, WithOrdinals(ord))
	if err != nil {
		t.Fatal(err)
	}
	if d1.Method("a()V").ID != d2.Method("a()V").ID {
		t.Error("a() changed id across versions")
	}
	if d2.Method("c()V").ID <= d1.Method("b()V").ID {
		t.Errorf("c() id %d not allocated after b() id %d", d2.Method("c()V").ID, d1.Method("b()V").ID)
	}
	if d1.Field("x").ID != 1 || d2.Field("x").ID != 1 || d2.Field("y").ID != 2 {
		t.Errorf("field ids x=%d/%d y=%d", d1.Field("x").ID, d2.Field("x").ID, d2.Field("y").ID)
	}
	if d1.Method("a()V").ID != 1 {
		t.Errorf("method ids should start at 1, got %d", d1.Method("a()V").ID)
	}
	if got := d2.MethodByID(d2.Method("c()V").ID); got == nil || got.Name != "c" {
		t.Errorf("MethodByID = %+v", got)
	}
}

func TestCatchersFromReloadAwareSuper(t *testing.T) {
	base := typeUnit("demo/Base", unit.RootType,
		method("run", "(I)V", unit.AccPublic),
		method("fixed", "()V", unit.AccPublic|unit.AccFinal),
		method("hidden", "()V", unit.AccPrivate),
		method("util", "()V", unit.AccPublic|unit.AccStatic),
		method("guarded", "()V", unit.AccProtected),
	)
	bd, err := FromUnit(base)
	if err != nil {
		t.Fatal(err)
	}
	lookup := func(name string) *Descriptor {
		if name == "demo/Base" {
			return bd
		}
		return nil
	}

	sub := typeUnit("demo/Sub", "demo/Base", method("run", "(I)V", unit.AccPublic))
	d, err := FromUnit(sub, WithSupertypes(lookup))
	if err != nil {
		t.Fatal(err)
	}
	if m := d.Method("run(I)V"); m == nil || m.Catcher {
		t.Error("declared run should not be a catcher")
	}
	if m := d.Method("guarded()V"); m == nil || !m.Catcher || m.Access != unit.AccProtected {
		t.Errorf("guarded catcher = %+v", m)
	}
	// Root methods reach Sub through Base's own catchers.
	if m := d.Method("hashCode()I"); m == nil || !m.Catcher {
		t.Errorf("hashCode catcher = %+v", m)
	}
	for _, key := range []string{"fixed()V", "hidden()V", "util()V"} {
		if d.Method(key) != nil {
			t.Errorf("%s should not be reserved in Sub", key)
		}
	}
	if d.Method("fixed"+SuperDispatcherSuffix+"(Ldemo/Sub;)V") == nil {
		t.Error("final methods still get a super-dispatcher")
	}
	if d.Method("hidden"+SuperDispatcherSuffix+"(Ldemo/Sub;)V") != nil {
		t.Error("private methods get no super-dispatcher")
	}
}

func TestInterfaceHasNoCatchers(t *testing.T) {
	u := typeUnit("demo/Shape", unit.RootType, unit.Method{Name: "area", Desc: "()D", Access: unit.AccPublic | unit.AccAbstract, MaxLocals: 1})
	u.Access |= unit.AccInterface | unit.AccAbstract
	d, err := FromUnit(u)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Methods()) != 1 {
		t.Errorf("interface methods = %v", d.Methods())
	}
}

func TestExtractStrictAndLenient(t *testing.T) {
	u := typeUnit("demo/Bad", unit.RootType, method("ok", "()V", unit.AccPublic))
	u.AddField(unit.Field{Name: "broken", Desc: "Q"})
	u.AddField(unit.Field{Name: "fine", Desc: "J"})

	var ee *ExtractionError
	if _, err := FromUnit(u, MustSucceed()); !errors.As(err, &ee) {
		t.Fatalf("strict err = %v, want ExtractionError", err)
	}
	d, err := FromUnit(u)
	if err != nil {
		t.Fatalf("lenient err = %v", err)
	}
	if d.Field("broken") != nil || d.Field("fine") == nil {
		t.Errorf("lenient fields = %v", d.Fields())
	}

	if _, err := Extract([]byte("not a unit"), MustSucceed()); !errors.As(err, &ee) {
		t.Errorf("Extract(garbage) err = %v", err)
	}
	data := unit.MustMarshal(typeUnit("demo/Good", unit.RootType, method("ok", "()V", unit.AccPublic)))
	if d, err := Extract(data, MustSucceed()); err != nil || d.Name != "demo/Good" {
		t.Errorf("Extract = %v, %v", d, err)
	}
}

func TestListing(t *testing.T) {
	u := typeUnit("demo/T", unit.RootType, method("a", "()V", unit.AccPublic))
	u.AddField(unit.Field{Name: "x", Desc: "I", Access: unit.AccPrivate})
	d, _ := FromUnit(u)
	text := d.Listing()
	for _, want := range []string{"type demo/T", "field private x:I #1", "method public a()V #1", "[catcher]", "[superdispatcher]"} {
		if !strings.Contains(text, want) {
			t.Errorf("listing missing %q:\n%s", want, text)
		}
	}
}

func TestFieldEqual(t *testing.T) {
	a := &FieldMember{Member: Member{ID: 1, Name: "x", Desc: "I"}, Owner: "demo/A"}
	b := &FieldMember{Member: Member{ID: 9, Name: "x", Desc: "I"}, Owner: "demo/B"}
	if !a.Equal(b) {
		t.Error("fields differing only in id and owner should be equal")
	}
	c := *b
	c.Access = unit.AccStatic
	if a.Equal(&c) {
		t.Error("modifiers must participate in equality")
	}
}
