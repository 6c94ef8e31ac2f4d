package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/hotswap/reload"
	"github.com/chazu/hotswap/unit"
	"github.com/chazu/hotswap/vm"
)

func typeUnit(name, super string, methods ...string) *unit.Unit {
	u := unit.New(name, super, unit.AccPublic)
	a := unit.NewAsm(u)
	a.Load(0)
	a.Invoke(unit.OpInvokeSpecial, super, unit.Constructor, "()V")
	a.Op(unit.OpReturn)
	u.AddMethod(unit.Method{Name: unit.Constructor, Desc: "()V", Access: unit.AccPublic, MaxLocals: 1, Code: a.Code()})
	for _, m := range methods {
		a = unit.NewAsm(u)
		a.Str(m)
		a.Op(unit.OpReturnValue)
		u.AddMethod(unit.Method{Name: m, Desc: "()Llang/String;", Access: unit.AccPublic, MaxLocals: 1, Code: a.Code()})
	}
	return u
}

func writeUnit(t *testing.T, dir, file string, u *unit.Unit) string {
	t.Helper()
	path := filepath.Join(dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, unit.MustMarshal(u), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadUnitsOrdersSupertypes(t *testing.T) {
	dir := t.TempDir()
	// Names sort child-first so loading in name order would fail.
	writeUnit(t, dir, "a/Child.hsu", typeUnit("demo/A", "demo/B"))
	writeUnit(t, dir, "b/Base.hsu", typeUnit("demo/B", unit.RootType, "hello"))
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	machine := vm.New()
	rt := reload.NewRuntime()
	defer rt.Close()
	reg, err := rt.NewRegistry("app", machine.Loader())
	if err != nil {
		t.Fatal(err)
	}
	n, err := loadUnits(reg, []string{dir, filepath.Join(dir, "missing")})
	if err != nil {
		t.Fatalf("loadUnits: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d units, want 2", n)
	}
	if !reg.Aware("demo/A") || !reg.Aware("demo/B") {
		t.Error("loaded types are not reload-aware")
	}

	obj, err := machine.NewObject(machine.Loader().Lookup("demo/A"), "()V")
	if err != nil {
		t.Fatal(err)
	}
	if got, err := machine.Call(obj, "hello", "()Llang/String;"); err != nil || got != "hello" {
		t.Errorf("hello() = %v, %v", got, err)
	}
}

func TestOrderUnitsRejectsCycles(t *testing.T) {
	files := []unitFile{
		{name: "demo/A", super: "demo/B"},
		{name: "demo/B", super: "demo/A"},
	}
	deps := func(f unitFile) []string { return []string{f.super} }
	if _, err := orderUnits(files, deps); err == nil {
		t.Error("cycle accepted")
	}
	if _, err := orderUnits([]unitFile{{name: "demo/A"}, {name: "demo/A"}}, deps); err == nil {
		t.Error("duplicate type accepted")
	}
}

func TestDiffFiles(t *testing.T) {
	dir := t.TempDir()
	before := writeUnit(t, dir, "v1.hsu", typeUnit("demo/T", unit.RootType, "a", "b"))
	after := writeUnit(t, dir, "v2.hsu", typeUnit("demo/T", unit.RootType, "a", "c"))

	var out bytes.Buffer
	if err := diffFiles(&out, before, after); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{"new or changed: c()Llang/String;", "deleted: b()Llang/String;", "-  method", "+  method"} {
		if !strings.Contains(s, want) {
			t.Errorf("diff output lacks %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "new or changed: a()") {
		t.Errorf("unchanged method reported:\n%s", s)
	}
}

func TestRunExecutor(t *testing.T) {
	dir := t.TempDir()
	before := writeUnit(t, dir, "v1.hsu", typeUnit("demo/T", unit.RootType, "a"))
	after := writeUnit(t, dir, "v2.hsu", typeUnit("demo/T", unit.RootType, "a", "c"))

	var out bytes.Buffer
	if err := runExecutor(&out, []string{before, after}); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	for _, want := range []string{"executor demo/T$$E1", "___init___(Ldemo/T;)V", "c(Ldemo/T;)Llang/String;", "delegation", "elided"} {
		if !strings.Contains(s, want) {
			t.Errorf("executor output lacks %q:\n%s", want, s)
		}
	}

	other := writeUnit(t, dir, "u.hsu", typeUnit("demo/U", unit.RootType))
	if err := runExecutor(&out, []string{before, other}); err == nil {
		t.Error("executor of a different type accepted")
	}
}
