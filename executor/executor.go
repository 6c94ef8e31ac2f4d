// Package executor generates the companion unit that holds one version's
// member bodies as static methods.
//
// Instance methods take their receiver as an explicit first parameter,
// constructors become static instance initializers, and the static
// initializer becomes the ___clinit___ entry point. Call sites and field
// accesses inside the copied bodies are rewritten so they keep working from
// outside the original type: private calls go to the executor's own copies,
// super calls go through super-dispatchers or the supertype's escape hatch,
// and fields of reload-aware types are reached through generated accessors.
package executor

import (
	"fmt"
	"strings"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/dispatch"
	"github.com/chazu/hotswap/unit"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hotswap.executor")

// ReceiverName is the debug name given to an explicit receiver parameter.
const ReceiverName = "thiz"

// Env answers questions about the types around the one being generated.
type Env struct {
	// Seq numbers the version; it becomes part of the executor's name.
	Seq int

	// Original is the originally loaded descriptor of the type. Its
	// super-dispatchers serve super calls.
	Original *descriptor.Descriptor

	// Aware reports whether a type is reload-aware.
	Aware func(typ string) bool

	// OriginalConstructor reports whether a reload-aware type was loaded
	// with a constructor of the given descriptor.
	OriginalConstructor func(typ, desc string) (bool, error)
}

func (e Env) aware(typ string) bool {
	return e.Aware != nil && e.Aware(typ)
}

// Result is a generated executor.
type Result struct {
	Unit *unit.Unit

	// Renames maps the key of a static method renamed to avoid a collision
	// to its executor name.
	Renames map[string]string

	Accessors   []Accessor
	Delegations map[string]Delegation // constructor key -> delegation found
}

// Generate builds the executor of u, a new version of a reload-aware type.
// d is u's descriptor; it is extracted when nil.
func Generate(u *unit.Unit, d *descriptor.Descriptor, env Env) (*Result, error) {
	if d == nil {
		var err error
		if d, err = descriptor.FromUnit(u, descriptor.MustSucceed()); err != nil {
			return nil, err
		}
	}
	g := &generator{
		src: u,
		d:   d,
		env: env,
		out: unit.New(dispatch.ExecutorName(u.Name, env.Seq), unit.RootType,
			unit.AccPublic|unit.AccFinal|unit.AccSynthetic),
		res: &Result{
			Renames:     make(map[string]string),
			Delegations: make(map[string]Delegation),
		},
		accessors: make(map[string]bool),
	}
	g.out.Annotations = append([]unit.Annotation(nil), u.Annotations...)
	g.res.Unit = g.out

	g.planRenames()
	for i := range u.Methods {
		m := &u.Methods[i]
		if len(m.Code) == 0 {
			continue
		}
		em, err := g.method(m)
		if err != nil {
			return nil, fmt.Errorf("executor: %s.%s: %w", u.Name, m.Key(), err)
		}
		g.out.AddMethod(em)
	}
	if err := unit.Validate(g.out); err != nil {
		return nil, fmt.Errorf("executor: %s: %w", u.Name, err)
	}
	log.Debugf("generated %s: %d methods, %d accessors", g.out.Name, len(g.out.Methods), len(g.res.Accessors))
	return g.res, nil
}

type generator struct {
	src *unit.Unit
	d   *descriptor.Descriptor
	env Env
	out *unit.Unit
	res *Result

	accessors map[string]bool
}

// planRenames gives static methods whose descriptor collides with the
// receiver-prepended descriptor of a same-named instance method an
// alternate name.
func (g *generator) planRenames() {
	taken := make(map[string]bool)
	for _, m := range g.src.Methods {
		if !m.IsStatic() && !m.IsConstructor() {
			taken[m.Name+dispatch.ReceiverDesc(g.src.Name, m.Desc)] = true
		}
	}
	for _, m := range g.src.Methods {
		if m.IsStatic() && m.Name != unit.StaticInit && taken[m.Key()] {
			g.res.Renames[m.Key()] = m.Name + dispatch.StaticSuffix
		}
	}
}

// target returns the executor name and descriptor of the source method
// name+desc, or ok=false if this version does not declare it.
func (g *generator) target(name, desc string) (string, string, bool) {
	m := g.d.Method(name + desc)
	if m == nil || m.Catcher || m.SuperDispatcher || m.Access.Is(unit.AccAbstract) || m.Access.Is(unit.AccNative) {
		return "", "", false
	}
	en, ed := dispatch.ExecutorMethod(g.src.Name, m, g.res.Renames)
	return en, ed, true
}

func (g *generator) method(m *unit.Method) (unit.Method, error) {
	em := unit.Method{
		Name:        m.Name,
		Desc:        m.Desc,
		Access:      unit.AccPublic | unit.AccStatic | (m.Access & unit.AccSynthetic),
		Signature:   m.Signature,
		Exceptions:  append([]string(nil), m.Exceptions...),
		MaxLocals:   m.MaxLocals,
		Annotations: append([]unit.Annotation(nil), m.Annotations...),
		LocalVars:   append([]unit.LocalVar(nil), m.LocalVars...),
	}
	delegation := -1
	switch {
	case m.Name == unit.StaticInit:
		em.Name, em.Desc = dispatch.ClinitName, dispatch.ClinitDesc
	case m.IsConstructor():
		em.Name, em.Desc = dispatch.InitName, dispatch.InitDesc(g.src.Name, m.Desc)
		var err error
		if delegation, err = findDelegation(m.Code, g.src); err != nil {
			return em, err
		}
	case m.IsStatic():
		if r, ok := g.res.Renames[m.Key()]; ok {
			em.Name = r
		}
	default:
		em.Desc = dispatch.ReceiverDesc(g.src.Name, m.Desc)
	}
	if !m.IsStatic() {
		for i := range em.LocalVars {
			if em.LocalVars[i].Index == 0 && em.LocalVars[i].Name == "this" {
				em.LocalVars[i].Name = ReceiverName
			}
		}
	}

	code, err := unit.Rewrite(m.Code, func(i int, in unit.Instr, emit func(...unit.Instr)) {
		if i == delegation {
			g.res.Delegations[m.Key()] = g.delegate(g.src.Refs[in.Arg], emit)
			return
		}
		g.instr(in, emit)
	})
	if err != nil {
		return em, err
	}
	if m.IsConstructor() && delegation < 0 {
		g.res.Delegations[m.Key()] = DelegationNone
	}
	em.Code = code
	return em, nil
}

// instr translates one instruction into the executor's pools, rewriting
// the call sites and field accesses that need it.
func (g *generator) instr(in unit.Instr, emit func(...unit.Instr)) {
	switch in.Op.Info().Operand {
	case unit.OperandConst:
		emit(unit.I(in.Op, int32(g.out.AddConst(g.src.Consts[in.Arg]))))
		return
	case unit.OperandRef:
	default:
		emit(in)
		return
	}

	ref := g.src.Refs[in.Arg]
	switch in.Op {
	case unit.OpInvokeSpecial:
		if ref.Name != unit.Constructor {
			g.specialCall(ref, emit)
			return
		}
	case unit.OpInvokeStatic, unit.OpInvokeVirtual:
		if ref.Owner == g.src.Name && g.isPrivate(ref) {
			g.ownCall(ref, emit)
			return
		}
	case unit.OpGetField, unit.OpPutField, unit.OpGetStatic, unit.OpPutStatic:
		if g.env.aware(ref.Owner) {
			acc := g.accessor(in.Op, ref)
			g.invokeOwn(acc.Name, acc.Desc, emit)
			return
		}
	}
	emit(unit.I(in.Op, int32(g.out.AddRef(ref.Owner, ref.Name, ref.Desc))))
}

func (g *generator) isPrivate(ref unit.Ref) bool {
	m := g.src.Method(ref.Name, ref.Desc)
	return m != nil && m.Access.Is(unit.AccPrivate)
}

func (g *generator) invokeOwn(name, desc string, emit func(...unit.Instr)) {
	emit(unit.I(unit.OpInvokeStatic, int32(g.out.AddRef(g.out.Name, name, desc))))
}

// ownCall redirects a call of the type's own method to the executor's
// copy, or to the escape hatch when this version does not declare it.
func (g *generator) ownCall(ref unit.Ref, emit func(...unit.Instr)) {
	if name, desc, ok := g.target(ref.Name, ref.Desc); ok {
		g.invokeOwn(name, desc, emit)
		return
	}
	dispatch.EmitEscape(g.out, emit, g.src.Name, ref.Key(), unit.ArgCount(ref.Desc), unit.ReturnDesc(ref.Desc))
}

// specialCall rewrites a non-constructor INVOKESPECIAL.
func (g *generator) specialCall(ref unit.Ref, emit func(...unit.Instr)) {
	if ref.Owner == g.src.Name {
		g.ownCall(ref, emit)
		return
	}
	if g.env.Original != nil {
		sdName, sdDesc := dispatch.SuperDispatcher(g.src.Name, ref.Name, ref.Desc)
		if sd := g.env.Original.Method(sdName + sdDesc); sd != nil && sd.SuperDispatcher {
			emit(unit.I(unit.OpInvokeStatic, int32(g.out.AddRef(g.src.Name, sdName, sdDesc))))
			return
		}
	}
	if g.env.aware(ref.Owner) {
		dispatch.EmitEscape(g.out, emit, ref.Owner, ref.Key(), unit.ArgCount(ref.Desc), unit.ReturnDesc(ref.Desc))
		return
	}
	log.Warningf("%s: no super-dispatcher for %s.%s", g.src.Name, ref.Owner, ref.Key())
	emit(unit.I(unit.OpInvokeSpecial, int32(g.out.AddRef(ref.Owner, ref.Name, ref.Desc))))
}

// Accessor is a generated field accessor or mutator.
type Accessor struct {
	Name  string
	Desc  string
	Op    unit.Opcode // the field instruction it replaces
	Owner string
	Field string
	Type  string // field descriptor
}

// AccessorName returns the name of the accessor replacing op on
// owner.field.
func AccessorName(op unit.Opcode, owner, field string) string {
	var kind string
	switch op {
	case unit.OpGetField:
		kind = "get"
	case unit.OpPutField:
		kind = "set"
	case unit.OpGetStatic:
		kind = "getstatic"
	case unit.OpPutStatic:
		kind = "setstatic"
	}
	return "r$" + kind + "$" + strings.ReplaceAll(owner, "/", "_") + "$" + field
}

func (g *generator) accessor(op unit.Opcode, ref unit.Ref) Accessor {
	acc := Accessor{Name: AccessorName(op, ref.Owner, ref.Name), Op: op, Owner: ref.Owner, Field: ref.Name, Type: ref.Desc}
	owner := unit.ObjectDesc(ref.Owner)
	var dyn unit.Opcode
	var params int
	switch op {
	case unit.OpGetField:
		acc.Desc, dyn, params = "("+owner+")"+ref.Desc, unit.OpGetFieldDyn, 1
	case unit.OpPutField:
		acc.Desc, dyn, params = "("+owner+ref.Desc+")V", unit.OpPutFieldDyn, 2
	case unit.OpGetStatic:
		acc.Desc, dyn, params = "()"+ref.Desc, unit.OpGetStaticDyn, 0
	case unit.OpPutStatic:
		acc.Desc, dyn, params = "("+ref.Desc+")V", unit.OpPutStaticDyn, 1
	}
	if g.accessors[acc.Name+acc.Desc] {
		return acc
	}
	g.accessors[acc.Name+acc.Desc] = true

	a := unit.NewAsm(g.out)
	a.LoadArgs(0, params)
	a.Field(dyn, ref.Owner, ref.Name, ref.Desc)
	a.Return(acc.Desc)
	g.out.AddMethod(unit.Method{
		Name:      acc.Name,
		Desc:      acc.Desc,
		Access:    dispatch.Synthetic,
		MaxLocals: params,
		Code:      a.Code(),
	})
	g.res.Accessors = append(g.res.Accessors, acc)
	return acc
}
