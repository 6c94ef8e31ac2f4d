package vm

import (
	"errors"
	"testing"

	"github.com/chazu/hotswap/unit"
)

func staticUnit(name string, build func(u *unit.Unit)) *unit.Unit {
	u := unit.New(name, unit.RootType, unit.AccPublic)
	build(u)
	return u
}

func TestLoopSum(t *testing.T) {
	// static int sum(int n) { int s = 0; while (0 < n) { s = s + n; n = n - 1 } return s }
	u := staticUnit("demo/Math", func(u *unit.Unit) {
		a := unit.NewAsm(u)
		top, end := a.NewLabel(), a.NewLabel()
		a.Int(0)
		a.Store(1)
		a.Mark(top)
		a.Int(0)
		a.Load(0)
		a.Op(unit.OpLT)
		a.Jump(unit.OpJumpFalse, end)
		a.Load(1)
		a.Load(0)
		a.Op(unit.OpAdd)
		a.Store(1)
		a.Load(0)
		a.Int(1)
		a.Op(unit.OpSub)
		a.Store(0)
		a.Jump(unit.OpJump, top)
		a.Mark(end)
		a.Load(1)
		a.Op(unit.OpReturnValue)
		u.AddMethod(unit.Method{Name: "sum", Desc: "(I)I", Access: unit.AccStatic, MaxLocals: 2, Code: a.Code()})
	})
	v := New()
	typ := mustDefine(t, v.Loader(), u)
	got, err := v.CallStatic(typ, "sum", "(I)I", int32(10))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if got != int32(55) {
		t.Errorf("sum(10) = %#v, want 55", got)
	}
}

func TestConcatAndConstants(t *testing.T) {
	u := staticUnit("demo/Greeter", func(u *unit.Unit) {
		a := unit.NewAsm(u)
		a.Str("hello, ")
		a.Load(0)
		a.Op(unit.OpConcat)
		a.Long(7)
		a.Op(unit.OpConcat)
		a.Op(unit.OpReturnValue)
		u.AddMethod(unit.Method{Name: "greet", Desc: "(Llang/String;)Llang/String;", Access: unit.AccStatic, MaxLocals: 1, Code: a.Code()})
	})
	v := New()
	typ := mustDefine(t, v.Loader(), u)
	got, err := v.CallStatic(typ, "greet", "(Llang/String;)Llang/String;", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello, bob7" {
		t.Errorf("greet = %q", got)
	}
}

func TestThrowAndOperandErrors(t *testing.T) {
	u := staticUnit("demo/Boom", func(u *unit.Unit) {
		a := unit.NewAsm(u)
		a.Str("boom")
		a.Op(unit.OpThrow)
		u.AddMethod(unit.Method{Name: "boom", Desc: "()V", Access: unit.AccStatic, Code: a.Code()})

		a = unit.NewAsm(u)
		a.Int(1)
		a.Long(2)
		a.Op(unit.OpAdd)
		a.Op(unit.OpReturnValue)
		u.AddMethod(unit.Method{Name: "mixed", Desc: "()J", Access: unit.AccStatic, Code: a.Code()})

		a = unit.NewAsm(u)
		a.Op(unit.OpPOP)
		a.Op(unit.OpReturn)
		u.AddMethod(unit.Method{Name: "underflow", Desc: "()V", Access: unit.AccStatic, Code: a.Code()})
	})
	v := New()
	typ := mustDefine(t, v.Loader(), u)

	var te *ThrownError
	if _, err := v.CallStatic(typ, "boom", "()V"); !errors.As(err, &te) || te.Value != "boom" {
		t.Errorf("boom err = %v", err)
	}
	var oe *OperandError
	if _, err := v.CallStatic(typ, "mixed", "()J"); !errors.As(err, &oe) {
		t.Errorf("mixed err = %v", err)
	}
	if _, err := v.CallStatic(typ, "underflow", "()V"); !errors.Is(err, errStackUnderflow) {
		t.Errorf("underflow err = %v", err)
	}
	if _, err := v.CallStatic(typ, "missing", "()V"); err == nil {
		t.Error("expected NoSuchMethodError")
	}
}

func TestNewArrayAndSwap(t *testing.T) {
	u := staticUnit("demo/Pack", func(u *unit.Unit) {
		a := unit.NewAsm(u)
		a.Int(1)
		a.Int(2)
		a.Op(unit.OpSWAP)
		a.NewArray(2)
		a.Op(unit.OpReturnValue)
		u.AddMethod(unit.Method{Name: "pack", Desc: "()[Llang/Object;", Access: unit.AccStatic, Code: a.Code()})
	})
	v := New()
	typ := mustDefine(t, v.Loader(), u)
	got, err := v.CallStatic(typ, "pack", "()[Llang/Object;")
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := got.(*Array)
	if !ok || arr.Len() != 2 || arr.Elems[0] != int32(2) || arr.Elems[1] != int32(1) {
		t.Errorf("pack() = %#v", got)
	}
}

// ---------------------------------------------------------------------------
// Hooks
// ---------------------------------------------------------------------------

type fakeHooks struct {
	reloaded bool
	extra    Method
	fields   map[string]Value
	statics  map[string]Value
	descs    map[string]string // last descriptor requested per field
}

func (h *fakeHooks) Resolve(key string, declared Method) Method {
	if key == "extra()I" {
		return h.extra
	}
	return declared
}

func (h *fakeHooks) Reloaded() bool { return h.reloaded }

func (h *fakeHooks) GetField(vm *VM, obj *Object, owner *Type, name, desc string) (Value, error) {
	if h.descs != nil {
		h.descs[name] = desc
	}
	return h.fields[name], nil
}

func (h *fakeHooks) SetField(vm *VM, obj *Object, owner *Type, name string, v Value) error {
	h.fields[name] = v
	return nil
}

func (h *fakeHooks) GetStatic(vm *VM, owner *Type, name, desc string) (Value, error) {
	if h.descs != nil {
		h.descs[name] = desc
	}
	return h.statics[name], nil
}

func (h *fakeHooks) SetStatic(vm *VM, owner *Type, name string, v Value) error {
	h.statics[name] = v
	return nil
}

func TestHooksResolveAndFields(t *testing.T) {
	v := New()
	h := &fakeHooks{fields: map[string]Value{}, statics: map[string]Value{}}
	typ := mustDefine(t, v.Loader(), counterUnit(), WithHooks(h))
	h.extra = NewNative(typ, "extra", "()I", unit.AccPublic, func(vm *VM, args []Value) (Value, error) {
		return int32(99), nil
	})

	obj, err := v.NewObject(typ, "()V")
	if err != nil {
		t.Fatal(err)
	}
	if got, err := v.Call(obj, "extra", "()I"); err != nil || got != int32(99) {
		t.Errorf("extra() = %v, %v", got, err)
	}

	// Not reloaded: plain field instructions use original slots.
	if _, err := v.Call(obj, "increment", "()V"); err != nil {
		t.Fatal(err)
	}
	if len(h.fields) != 0 {
		t.Errorf("hooks consulted before reload: %v", h.fields)
	}

	// Reloaded: the same instructions route through the hooks.
	h.reloaded = true
	h.fields["count"] = int32(40)
	if _, err := v.Call(obj, "increment", "()V"); err != nil {
		t.Fatal(err)
	}
	if h.fields["count"] != int32(41) {
		t.Errorf("hooked count = %v, want 41", h.fields["count"])
	}
	if orig, _ := v.ReadField(obj, "demo/Counter", "count"); orig != int32(1) {
		t.Errorf("original slot = %v, want 1", orig)
	}
}

func TestDynamicFieldOps(t *testing.T) {
	v := New()
	h := &fakeHooks{fields: map[string]Value{}, statics: map[string]Value{}, descs: map[string]string{}}
	mustDefine(t, v.Loader(), counterUnit(), WithHooks(h))

	acc := staticUnit("demo/Acc", func(u *unit.Unit) {
		a := unit.NewAsm(u)
		a.Load(0)
		a.Int(5)
		a.Field(unit.OpPutFieldDyn, "demo/Counter", "fresh", "I")
		a.Load(0)
		a.Field(unit.OpGetFieldDyn, "demo/Counter", "fresh", "I")
		a.Op(unit.OpReturnValue)
		u.AddMethod(unit.Method{Name: "roundTrip", Desc: "(Ldemo/Counter;)I", Access: unit.AccStatic, MaxLocals: 1, Code: a.Code()})

		a = unit.NewAsm(u)
		a.Load(0)
		a.Field(unit.OpGetFieldDyn, "demo/Acc", "x", "I")
		a.Op(unit.OpReturnValue)
		u.AddMethod(unit.Method{Name: "unhooked", Desc: "(Llang/Object;)I", Access: unit.AccStatic, MaxLocals: 1, Code: a.Code()})
	})
	at := mustDefine(t, v.Loader(), acc)

	obj, _ := v.NewObject(v.Loader().Lookup("demo/Counter"), "()V")
	if got, err := v.CallStatic(at, "roundTrip", "(Ldemo/Counter;)I", obj); err != nil || got != int32(5) {
		t.Errorf("roundTrip = %v, %v", got, err)
	}
	if h.descs["fresh"] != "I" {
		t.Errorf("hooks saw descriptor %q for fresh, want I", h.descs["fresh"])
	}
	var le *LinkageError
	if _, err := v.CallStatic(at, "unhooked", "(Llang/Object;)I", obj); !errors.As(err, &le) {
		t.Errorf("dyn op without hooks err = %v", err)
	}
}
