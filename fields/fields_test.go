package fields

import (
	"errors"
	"sync"
	"testing"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/unit"
	"github.com/chazu/hotswap/vm"
)

func withCtor(u *unit.Unit) *unit.Unit {
	a := unit.NewAsm(u)
	a.Load(0)
	a.Invoke(unit.OpInvokeSpecial, u.Super, unit.Constructor, "()V")
	a.Op(unit.OpReturn)
	u.AddMethod(unit.Method{Name: unit.Constructor, Desc: "()V", Access: unit.AccPublic, MaxLocals: 1, Code: a.Code()})
	return u
}

func typeUnit(name, super string, fields ...unit.Field) *unit.Unit {
	u := unit.New(name, super, unit.AccPublic)
	u.Fields = fields
	return withCtor(u)
}

// hierarchy is a Hierarchy over hand-picked descriptors.
type hierarchy struct {
	VMStorage
	mu       sync.Mutex
	latest   map[string]*descriptor.Descriptor
	original map[string]*descriptor.Descriptor
	ords     map[string]*descriptor.Ordinals
}

func newHierarchy(l *vm.Loader) *hierarchy {
	return &hierarchy{
		VMStorage: VMStorage{Loader: l},
		latest:    map[string]*descriptor.Descriptor{},
		original:  map[string]*descriptor.Descriptor{},
		ords:      map[string]*descriptor.Ordinals{},
	}
}

func (h *hierarchy) describe(t *testing.T, u *unit.Unit) *descriptor.Descriptor {
	t.Helper()
	ord := h.ords[u.Name]
	if ord == nil {
		ord = descriptor.NewOrdinals()
		h.ords[u.Name] = ord
	}
	d, err := descriptor.FromUnit(u, descriptor.WithOrdinals(ord))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// aware registers u as the original version of a reload-aware type.
func (h *hierarchy) aware(t *testing.T, u *unit.Unit) {
	d := h.describe(t, u)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.original[u.Name] = d
	h.latest[u.Name] = d
}

// reload makes u the latest version.
func (h *hierarchy) reload(t *testing.T, u *unit.Unit) {
	d := h.describe(t, u)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[u.Name] = d
}

func (h *hierarchy) Latest(typ string) *descriptor.Descriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest[typ]
}

func (h *hierarchy) Original(typ string) *descriptor.Descriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.original[typ]
}

type fixture struct {
	vm       *vm.VM
	h        *hierarchy
	inst     *InstanceManager
	statics  *StaticManager
	obj      *vm.Object
	original *unit.Unit
}

// newFixture loads
//
//	demo/Base { int inherited; static long legacy }   not reload-aware
//	demo/T extends demo/Base { int x; String s; static int count }
//
// and allocates one T with x = 5 in original storage.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	v := vm.New()
	l := v.Loader()
	base := typeUnit("demo/Base", unit.RootType,
		unit.Field{Name: "inherited", Desc: "I"},
		unit.Field{Name: "legacy", Desc: "J", Access: unit.AccStatic})
	orig := typeUnit("demo/T", "demo/Base",
		unit.Field{Name: "x", Desc: "I"},
		unit.Field{Name: "s", Desc: "Llang/String;"},
		unit.Field{Name: "count", Desc: "I", Access: unit.AccStatic})
	if _, err := l.Define(base); err != nil {
		t.Fatal(err)
	}
	typ, err := l.Define(orig.Clone())
	if err != nil {
		t.Fatal(err)
	}
	obj, err := v.NewObject(typ, "()V")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.WriteField(obj, "demo/T", "x", int32(5)); err != nil {
		t.Fatal(err)
	}

	h := newHierarchy(l)
	h.aware(t, orig)
	cfg := Config{Hierarchy: h, Original: h.VMStorage, Locator: h.VMStorage, Compatible: h.Compatible}
	return &fixture{
		vm:       v,
		h:        h,
		inst:     NewInstanceManager(cfg),
		statics:  NewStaticManager(cfg),
		obj:      obj,
		original: orig,
	}
}

func (f *fixture) version(fields ...unit.Field) *unit.Unit {
	return typeUnit("demo/T", "demo/Base", fields...)
}

func (f *fixture) get(t *testing.T, name, desc string) vm.Value {
	t.Helper()
	v, err := f.inst.Get(f.obj, "demo/T", name, desc)
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}
	return v
}

func TestCaptureOnFirstTouch(t *testing.T) {
	f := newFixture(t)
	if got := f.get(t, "x", "I"); got != int32(5) {
		t.Fatalf("x = %v, want captured 5", got)
	}
	// Later changes to original storage are no longer observed.
	if err := f.vm.WriteField(f.obj, "demo/T", "x", int32(9)); err != nil {
		t.Fatal(err)
	}
	if got := f.get(t, "x", "I"); got != int32(5) {
		t.Errorf("x = %v after original write, want 5", got)
	}
	if err := f.inst.Set(f.obj, "demo/T", "x", int32(11)); err != nil {
		t.Fatal(err)
	}
	if got := f.get(t, "x", "I"); got != int32(11) {
		t.Errorf("x = %v after Set, want 11", got)
	}
	if orig, _ := f.vm.ReadField(f.obj, "demo/T", "x"); orig != int32(9) {
		t.Errorf("original slot = %v, want untouched 9", orig)
	}
}

func TestNewFieldsDefault(t *testing.T) {
	f := newFixture(t)
	f.h.reload(t, f.version(
		unit.Field{Name: "x", Desc: "I"},
		unit.Field{Name: "flag", Desc: "Z"},
		unit.Field{Name: "total", Desc: "J"},
		unit.Field{Name: "ratio", Desc: "D"},
		unit.Field{Name: "next", Desc: "Ldemo/T;"},
	))
	tests := []struct {
		name string
		desc string
		want vm.Value
	}{
		{"flag", "Z", false},
		{"total", "J", int64(0)},
		{"ratio", "D", float64(0)},
		{"next", "Ldemo/T;", nil},
		{"x", "I", int32(5)},
	}
	for _, tt := range tests {
		if got := f.get(t, tt.name, tt.desc); got != tt.want {
			t.Errorf("%s = %#v, want %#v", tt.name, got, tt.want)
		}
	}
}

func TestWritesAreNotChecked(t *testing.T) {
	f := newFixture(t)
	if err := f.inst.Set(f.obj, "demo/T", "x", "not an int"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := f.inst.Table(f.obj).Lookup("demo/T", "x"); v != "not an int" {
		t.Errorf("tracked = %v", v)
	}
	// The read notices and resets.
	if got := f.get(t, "x", "I"); got != int32(0) {
		t.Errorf("x = %v, want reset to 0", got)
	}
}

func TestFieldRemovedThenRetyped(t *testing.T) {
	for _, touched := range []bool{false, true} {
		f := newFixture(t)
		if touched {
			if got := f.get(t, "x", "I"); got != int32(5) {
				t.Fatalf("v1 x = %v", got)
			}
		}

		f.h.reload(t, f.version(unit.Field{Name: "s", Desc: "Llang/String;"}))
		// Code still naming x:I reads the default once x is gone.
		if got := f.get(t, "x", "I"); got != int32(0) {
			t.Errorf("touched=%v: removed x = %#v, want int32(0)", touched, got)
		}

		f.h.reload(t, f.version(unit.Field{Name: "x", Desc: "Llang/String;"}))
		if got := f.get(t, "x", "Llang/String;"); got != nil {
			t.Errorf("touched=%v: retyped x = %#v, want nil", touched, got)
		}
		if err := f.inst.Set(f.obj, "demo/T", "x", "hello"); err != nil {
			t.Fatal(err)
		}
		if got := f.get(t, "x", "Llang/String;"); got != "hello" {
			t.Errorf("touched=%v: x = %v, want hello", touched, got)
		}
	}
}

func TestWrongKindAccess(t *testing.T) {
	f := newFixture(t)
	var km *KindMismatchError

	if _, err := f.inst.Get(f.obj, "demo/T", "count", "I"); !errors.As(err, &km) || km.Static {
		t.Errorf("instance read of static = %v", err)
	}
	if err := f.statics.Set("demo/T", "x", int32(1)); !errors.As(err, &km) || !km.Static || km.Type != "demo/T" {
		t.Errorf("static write of instance field = %v", err)
	}
	// Through the locator too.
	if _, err := f.inst.Get(f.obj, "demo/T", "legacy", "J"); !errors.As(err, &km) || km.Type != "demo/Base" {
		t.Errorf("instance read of inherited static = %v", err)
	}
}

func TestLocatorReachesAncestor(t *testing.T) {
	f := newFixture(t)
	if err := f.vm.WriteField(f.obj, "demo/Base", "inherited", int32(3)); err != nil {
		t.Fatal(err)
	}
	if got := f.get(t, "inherited", "I"); got != int32(3) {
		t.Errorf("inherited = %v, want 3", got)
	}
	if err := f.inst.Set(f.obj, "demo/T", "inherited", int32(4)); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.vm.ReadField(f.obj, "demo/Base", "inherited"); got != int32(4) {
		t.Errorf("original inherited = %v, want 4", got)
	}
	if f.inst.Table(f.obj).Len() != 0 {
		t.Error("located fields must not be tracked")
	}

	if got, err := f.statics.Get("demo/T", "legacy", "J"); err != nil || got != int64(0) {
		t.Errorf("legacy = %v, %v", got, err)
	}
}

func TestUnlocatableField(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		desc string
		want vm.Value
	}{
		{"I", int32(0)},
		{"Z", false},
		{"J", int64(0)},
		{"Llang/String;", nil},
	}
	for _, tt := range tests {
		if got := f.get(t, "missing", tt.desc); got != tt.want {
			t.Errorf("missing %s = %#v, want %#v", tt.desc, got, tt.want)
		}
		if got, err := f.statics.Get("demo/T", "missing", tt.desc); err != nil || got != tt.want {
			t.Errorf("static missing %s = %#v, %v; want %#v", tt.desc, got, err, tt.want)
		}
	}
	if err := f.inst.Set(f.obj, "demo/T", "missing", int32(1)); err != nil {
		t.Errorf("Set(missing) = %v", err)
	}
}

type failingOriginal struct{ VMStorage }

var errDenied = errors.New("denied")

func (failingOriginal) ReadField(*vm.Object, string, string) (vm.Value, error) {
	return nil, errDenied
}

func TestOriginalReadFailure(t *testing.T) {
	f := newFixture(t)
	m := NewInstanceManager(Config{Hierarchy: f.h, Original: failingOriginal{f.h.VMStorage}, Compatible: f.h.Compatible})
	_, err := m.Get(f.obj, "demo/T", "x", "I")
	var ae *AccessError
	if !errors.As(err, &ae) || ae.Type != "demo/T" || ae.Field != "x" || !errors.Is(err, errDenied) {
		t.Errorf("err = %v", err)
	}
	if m.Table(f.obj).Len() != 0 {
		t.Error("failed capture left an entry")
	}
}

func TestStaticFields(t *testing.T) {
	f := newFixture(t)
	typ := f.vm.Loader().Lookup("demo/T")
	if err := f.vm.WriteStatic(typ, "count", int32(4)); err != nil {
		t.Fatal(err)
	}
	if got, err := f.statics.Get("demo/T", "count", "I"); err != nil || got != int32(4) {
		t.Fatalf("count = %v, %v", got, err)
	}
	if err := f.statics.Set("demo/T", "count", int32(8)); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.statics.Get("demo/T", "count", "I"); got != int32(8) {
		t.Errorf("count = %v, want 8", got)
	}
	if got, _ := f.vm.ReadStatic(typ, "count"); got != int32(4) {
		t.Errorf("original count = %v, want 4", got)
	}
}

// Relocated fields start fresh at their new declaring type, whether or not
// the descriptor changed.
func TestRelocatedFieldStartsFresh(t *testing.T) {
	v := vm.New()
	l := v.Loader()
	parent := typeUnit("demo/P", unit.RootType, unit.Field{Name: "y", Desc: "I"})
	child := typeUnit("demo/C", "demo/P")
	if _, err := l.Define(parent.Clone()); err != nil {
		t.Fatal(err)
	}
	ct, err := l.Define(child.Clone())
	if err != nil {
		t.Fatal(err)
	}
	obj, err := v.NewObject(ct, "()V")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.WriteField(obj, "demo/P", "y", int32(3)); err != nil {
		t.Fatal(err)
	}

	h := newHierarchy(l)
	h.aware(t, parent)
	h.aware(t, child)
	m := NewInstanceManager(Config{Hierarchy: h, Original: h.VMStorage, Compatible: h.Compatible})

	if got, _ := m.Get(obj, "demo/C", "y", "I"); got != int32(3) {
		t.Fatalf("inherited y = %v, want 3", got)
	}

	tests := []struct {
		name string
		desc string
		want vm.Value
	}{
		{"same descriptor", "I", int32(0)},
		{"retyped", "J", int64(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.reload(t, typeUnit("demo/P", unit.RootType))
			h.reload(t, typeUnit("demo/C", "demo/P", unit.Field{Name: "y", Desc: tt.desc}))
			m.Table(obj).Delete("demo/C", "y")

			got, err := m.Get(obj, "demo/C", "y", tt.desc)
			if err != nil || got != tt.want {
				t.Errorf("relocated y = %#v, %v; want %#v", got, err, tt.want)
			}
			if old, _ := m.Table(obj).Lookup("demo/P", "y"); old != int32(3) {
				t.Errorf("old entry = %v, want it kept at demo/P", old)
			}
		})
	}
}

func TestConcurrentFirstTouch(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	got := make([]vm.Value, 32)
	errs := make([]error, len(got))
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = f.inst.Get(f.obj, "demo/T", "x", "I")
		}(i)
	}
	wg.Wait()
	for i := range got {
		if errs[i] != nil || got[i] != int32(5) {
			t.Errorf("reader %d = %v, %v", i, got[i], errs[i])
		}
	}

	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = f.inst.Set(f.obj, "demo/T", "x", int32(i))
		}(i)
		go func() {
			defer wg.Done()
			if v, err := f.inst.Get(f.obj, "demo/T", "x", "I"); err != nil {
				t.Errorf("Get: %v", err)
			} else if _, ok := v.(int32); !ok {
				t.Errorf("Get = %#v", v)
			}
		}()
	}
	wg.Wait()
}

func TestTableCapture(t *testing.T) {
	tab := NewTable()
	loads := 0
	load := func() (vm.Value, error) { loads++; return int32(1), nil }

	v, err := tab.Capture("T", "x", load)
	if err != nil || v != int32(1) {
		t.Fatalf("Capture = %v, %v", v, err)
	}
	if v, _ := tab.Capture("T", "x", load); v != int32(1) || loads != 1 {
		t.Errorf("second Capture = %v after %d loads", v, loads)
	}
	if v := tab.Revalidate("T", "x", func(vm.Value) bool { return false }, "fresh"); v != "fresh" {
		t.Errorf("Revalidate = %v", v)
	}
	if v := tab.Revalidate("T", "x", func(vm.Value) bool { return true }, "other"); v != "fresh" {
		t.Errorf("Revalidate kept = %v", v)
	}
	if _, err := tab.Capture("T", "y", func() (vm.Value, error) { return nil, errDenied }); !errors.Is(err, errDenied) {
		t.Errorf("Capture err = %v", err)
	}
	if _, ok := tab.Lookup("T", "y"); ok {
		t.Error("failed load was tracked")
	}
}

func TestStrategyChain(t *testing.T) {
	f := newFixture(t)
	chain := f.inst.Strategies()
	if len(chain) != 2 {
		t.Fatalf("chain length = %d", len(chain))
	}
	if _, ok := chain[0].(LiveFieldStrategy); !ok {
		t.Errorf("chain[0] = %T", chain[0])
	}
	if _, ok := chain[1].(LocatorStrategy); !ok {
		t.Errorf("chain[1] = %T", chain[1])
	}

	res, ok, err := LiveFieldStrategy{Hierarchy: f.h}.Find(Request{Owner: "demo/T", Name: "s", Object: f.obj})
	if err != nil || !ok || res.Declaring != "demo/T" || res.Field.Desc != "Llang/String;" {
		t.Errorf("live Find = %+v, %v, %v", res, ok, err)
	}
	if _, ok, _ := (LiveFieldStrategy{Hierarchy: f.h}).Find(Request{Owner: "demo/T", Name: "inherited"}); ok {
		t.Error("live strategy must stop at the reload-aware boundary")
	}
	if got := Boundary(f.h, "demo/T"); got != "demo/Base" {
		t.Errorf("Boundary = %q", got)
	}
	res, ok, err = LocatorStrategy{Hierarchy: f.h, Locator: f.h.VMStorage}.Find(Request{Owner: "demo/T", Name: "inherited"})
	if err != nil || !ok || !res.Located || res.Declaring != "demo/Base" {
		t.Errorf("locator Find = %+v, %v, %v", res, ok, err)
	}
}
