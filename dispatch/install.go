// Package dispatch defines the indirection installed into a reload-aware
// type when it is first loaded, and the per-call routing that uses it.
//
// The installed shape consists of:
//
//   - a governing interface listing every original instance method with an
//     explicit receiver parameter, plus the escape hatch and the static
//     initializer entry point;
//   - catcher bodies for inherited methods the type does not declare, which
//     route to the supertype until a later version implements them;
//   - super-dispatchers, static helpers that call a supertype method
//     non-virtually on behalf of executors;
//   - a static instance initializer per constructor;
//   - the __execute escape hatch and the ___clinit___ entry point, bound to
//     Go code by the reload layer;
//   - private and same-type INVOKESPECIAL sites rewritten to go through the
//     escape hatch, so they reach whichever version is current.
package dispatch

import (
	"fmt"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/unit"
)

// Aware reports whether the named type is reload-aware.
type Aware func(typ string) bool

// GoverningInterface returns the governing interface unit of d.
func GoverningInterface(d *descriptor.Descriptor) *unit.Unit {
	gi := unit.New(GoverningName(d.Name), unit.RootType,
		unit.AccPublic|unit.AccInterface|unit.AccAbstract|unit.AccSynthetic)
	abstract := unit.AccPublic | unit.AccAbstract
	for _, m := range d.Methods() {
		if m.IsStatic() || m.IsStaticInit() || m.SuperDispatcher {
			continue
		}
		desc := ReceiverDesc(d.Name, m.Desc)
		gi.AddMethod(unit.Method{
			Name:       m.Name,
			Desc:       desc,
			Access:     abstract,
			Signature:  m.Signature,
			Exceptions: append([]string(nil), m.Exceptions...),
			MaxLocals:  unit.ArgCount(desc) + 1,
		})
	}
	gi.AddMethod(unit.Method{Name: ExecuteName, Desc: ExecuteDesc, Access: abstract, MaxLocals: 4})
	gi.AddMethod(unit.Method{Name: ClinitName, Desc: ClinitDesc, Access: abstract, MaxLocals: 1})
	return gi
}

// Install returns a copy of u augmented with the dispatch shape described
// by d, its original descriptor. u is not modified.
func Install(u *unit.Unit, d *descriptor.Descriptor, aware Aware) (*unit.Unit, error) {
	if u.IsInterface() {
		return nil, fmt.Errorf("dispatch: %s: cannot install into an interface", u.Name)
	}
	for _, m := range u.Methods {
		if m.Name == ExecuteName || m.Name == ClinitName || m.Name == InitName {
			return nil, fmt.Errorf("dispatch: %s declares reserved method %s", u.Name, m.Key())
		}
	}

	out := u.Clone()
	out.Interfaces = append(out.Interfaces, GoverningName(u.Name))

	for i := range out.Methods {
		m := &out.Methods[i]
		if len(m.Code) == 0 {
			continue
		}
		code, err := redirectSpecialCalls(out, m.Code)
		if err != nil {
			return nil, fmt.Errorf("dispatch: %s.%s: %w", u.Name, m.Key(), err)
		}
		m.Code = code
	}

	superAware := aware != nil && aware(u.Super)
	for _, m := range d.Methods() {
		switch {
		case m.Catcher:
			out.AddMethod(catcherBody(out, m, superAware))
		case m.SuperDispatcher:
			if out.Method(m.Name, m.Desc) == nil {
				out.AddMethod(superDispatcherBody(out, m))
			}
		}
	}
	for _, c := range d.Constructors() {
		out.AddMethod(initializerBody(out, c))
	}
	out.AddMethod(unit.Method{Name: ExecuteName, Desc: ExecuteDesc, Access: Synthetic | unit.AccNative, MaxLocals: 3})
	out.AddMethod(unit.Method{Name: ClinitName, Desc: ClinitDesc, Access: Synthetic | unit.AccNative})

	if err := unit.Validate(out); err != nil {
		return nil, fmt.Errorf("dispatch: install %s: %w", u.Name, err)
	}
	return out, nil
}

// EmitEscape appends the instructions that turn a pending call on the
// stack, receiver then n arguments, into a call of owner's escape hatch with
// the given key. The result is left on the stack unless ret is V.
func EmitEscape(u *unit.Unit, emit func(...unit.Instr), owner, key string, n int, ret string) {
	emit(
		unit.I(unit.OpNewArray, int32(n)),
		unit.I(unit.OpSWAP),
		unit.I(unit.OpPushConst, int32(u.AddString(key))),
		unit.I(unit.OpInvokeStatic, int32(u.AddRef(owner, ExecuteName, ExecuteDesc))),
	)
	if ret == "V" {
		emit(unit.I(unit.OpPOP))
	}
}

// redirectSpecialCalls rewrites INVOKESPECIAL of the unit's own methods,
// constructors excepted, into escape hatch calls.
func redirectSpecialCalls(u *unit.Unit, code []byte) ([]byte, error) {
	return unit.Rewrite(code, func(_ int, in unit.Instr, emit func(...unit.Instr)) {
		if in.Op != unit.OpInvokeSpecial {
			emit(in)
			return
		}
		ref := u.Refs[in.Arg]
		if ref.Owner != u.Name || ref.Name == unit.Constructor {
			emit(in)
			return
		}
		EmitEscape(u, emit, u.Name, ref.Key(), unit.ArgCount(ref.Desc), unit.ReturnDesc(ref.Desc))
	})
}

func catcherBody(u *unit.Unit, m *descriptor.MethodMember, superAware bool) unit.Method {
	n := unit.ArgCount(m.Desc)
	a := unit.NewAsm(u)
	if superAware {
		a.LoadArgs(1, n)
		a.NewArray(n)
		a.Load(0)
		a.Str(m.Key())
		a.Invoke(unit.OpInvokeStatic, u.Super, ExecuteName, ExecuteDesc)
		if unit.ReturnDesc(m.Desc) == "V" {
			a.Op(unit.OpPOP)
		}
	} else {
		a.LoadArgs(0, n+1)
		a.Invoke(unit.OpInvokeSpecial, u.Super, m.Name, m.Desc)
	}
	a.Return(m.Desc)
	return unit.Method{
		Name:       m.Name,
		Desc:       m.Desc,
		Access:     m.Access &^ (unit.AccAbstract | unit.AccNative),
		Signature:  m.Signature,
		Exceptions: append([]string(nil), m.Exceptions...),
		MaxLocals:  n + 1,
		Code:       a.Code(),
	}
}

func superDispatcherBody(u *unit.Unit, m *descriptor.MethodMember) unit.Method {
	name := m.Name[:len(m.Name)-len(descriptor.SuperDispatcherSuffix)]
	desc := unit.DropParam(m.Desc)
	n := unit.ArgCount(m.Desc)
	a := unit.NewAsm(u)
	a.LoadArgs(0, n)
	a.Invoke(unit.OpInvokeSpecial, u.Super, name, desc)
	a.Return(desc)
	return unit.Method{Name: m.Name, Desc: m.Desc, Access: Synthetic, MaxLocals: n, Code: a.Code()}
}

func initializerBody(u *unit.Unit, c *descriptor.MethodMember) unit.Method {
	desc := InitDesc(u.Name, c.Desc)
	n := unit.ArgCount(desc)
	a := unit.NewAsm(u)
	a.LoadArgs(0, n)
	a.Invoke(unit.OpInvokeSpecial, u.Name, unit.Constructor, c.Desc)
	a.Op(unit.OpReturn)
	return unit.Method{Name: InitName, Desc: desc, Access: Synthetic, MaxLocals: n, Code: a.Code()}
}
