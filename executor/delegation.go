package executor

import (
	"github.com/chazu/hotswap/dispatch"
	"github.com/chazu/hotswap/unit"
)

// Delegation classifies how a constructor's call of another constructor was
// rewritten.
type Delegation uint8

const (
	// DelegationNone: the constructor calls no other constructor.
	DelegationNone Delegation = iota
	// DelegationElided: the call of the root constructor was dropped.
	DelegationElided
	// DelegationSelf: this(...) now calls the executor's own initializer.
	DelegationSelf
	// DelegationInitializer: super(...) now calls the supertype's static
	// initializer for that constructor.
	DelegationInitializer
	// DelegationEscape: the call goes through an escape hatch.
	DelegationEscape
	// DelegationDirect: the supertype is not reload-aware and its
	// constructor is called as is.
	DelegationDirect
)

func (d Delegation) String() string {
	switch d {
	case DelegationNone:
		return "none"
	case DelegationElided:
		return "elided"
	case DelegationSelf:
		return "self"
	case DelegationInitializer:
		return "initializer"
	case DelegationEscape:
		return "escape"
	case DelegationDirect:
		return "direct"
	}
	return "unknown"
}

// findDelegation returns the index of the instruction through which a
// constructor body delegates to this(...) or super(...), or -1. Constructor
// calls that initialize objects allocated by the body itself are skipped.
func findDelegation(code []byte, u *unit.Unit) (int, error) {
	instrs, err := unit.Decode(code)
	if err != nil {
		return -1, err
	}
	pending := 0
	for i, in := range instrs {
		switch in.Op {
		case unit.OpNew:
			pending++
		case unit.OpInvokeSpecial:
			if u.Refs[in.Arg].Name != unit.Constructor {
				continue
			}
			if pending == 0 {
				return i, nil
			}
			pending--
		}
	}
	return -1, nil
}

// delegate rewrites the delegating constructor call ref. On entry the stack
// holds the receiver followed by the call's arguments.
func (g *generator) delegate(ref unit.Ref, emit func(...unit.Instr)) Delegation {
	key := ref.Key()
	n := unit.ArgCount(ref.Desc)
	switch {
	case ref.Owner == unit.RootType && ref.Desc == "()V":
		emit(unit.I(unit.OpPOP))
		return DelegationElided

	case ref.Owner == g.src.Name:
		if name, desc, ok := g.target(ref.Name, ref.Desc); ok {
			g.invokeOwn(name, desc, emit)
			return DelegationSelf
		}
		dispatch.EmitEscape(g.out, emit, g.src.Name, key, n, "V")
		return DelegationEscape

	case g.env.aware(ref.Owner):
		has := false
		if g.env.OriginalConstructor != nil {
			var err error
			if has, err = g.env.OriginalConstructor(ref.Owner, ref.Desc); err != nil {
				log.Warningf("%s: cannot tell whether %s was loaded with %s, using its escape hatch: %s",
					g.src.Name, ref.Owner, key, err)
				has = false
			}
		}
		if has {
			emit(unit.I(unit.OpInvokeStatic, int32(g.out.AddRef(ref.Owner, dispatch.InitName,
				dispatch.InitDesc(ref.Owner, ref.Desc)))))
			return DelegationInitializer
		}
		dispatch.EmitEscape(g.out, emit, ref.Owner, key, n, "V")
		return DelegationEscape
	}
	// A plain supertype is not already initialized: the dispatcher runs
	// ___init___ in place of the original <init>, so this call is the only
	// one that reaches the supertype's constructor.
	emit(unit.I(unit.OpInvokeSpecial, int32(g.out.AddRef(ref.Owner, ref.Name, ref.Desc))))
	return DelegationDirect
}
