package dispatch

import (
	"strings"
	"sync"

	"github.com/chazu/hotswap/diff"
	"github.com/chazu/hotswap/unit"
	"github.com/chazu/hotswap/vm"
)

// Route is the dispatcher's decision for one call.
type Route uint8

const (
	// RouteOriginal runs the body the type was loaded with.
	RouteOriginal Route = iota
	// RouteExecutor runs the current version's executor body.
	RouteExecutor
	// RouteCatcher sends a still unimplemented catcher to the supertype.
	RouteCatcher
	// RouteInherited continues the lookup above the type; the current
	// version does not declare the member.
	RouteInherited
	// RouteEscape resolves the member through the escape hatch.
	RouteEscape
)

func (r Route) String() string {
	switch r {
	case RouteOriginal:
		return "original"
	case RouteExecutor:
		return "executor"
	case RouteCatcher:
		return "catcher"
	case RouteInherited:
		return "inherited"
	case RouteEscape:
		return "escape"
	}
	return "unknown"
}

// Target is a reload-aware type as seen by its dispatcher.
type Target interface {
	// Type returns the loaded type. It is nil until the type is defined.
	Type() *vm.Type
	Pair() *diff.Pair
	// Reloaded reports whether a version other than the original is
	// current.
	Reloaded() bool
	// Table returns the current version's table. It may be nil while
	// Reloaded is false.
	Table() *Table
}

var (
	executeKey = KeyOf(ExecuteName, ExecuteDesc)
	clinitKey  = KeyOf(ClinitName, ClinitDesc)
)

// Dispatcher routes the calls that reach a reload-aware type.
type Dispatcher struct {
	target Target

	once    sync.Once
	execute vm.Method
	clinit  vm.Method
}

// NewDispatcher returns a dispatcher for t.
func NewDispatcher(t Target) *Dispatcher {
	return &Dispatcher{target: t}
}

func (d *Dispatcher) natives() {
	d.once.Do(func() {
		typ := d.target.Type()
		d.execute = NewRouted(typ,
			&unit.Method{Name: ExecuteName, Desc: ExecuteDesc, Access: Synthetic | unit.AccNative, MaxLocals: 3},
			d.escape)
		d.clinit = NewRouted(typ,
			&unit.Method{Name: ClinitName, Desc: ClinitDesc, Access: Synthetic | unit.AccNative},
			d.rerunStaticInit)
	})
}

// Route decides how a call of key is served.
func (d *Dispatcher) Route(key string) Route {
	if !d.target.Reloaded() {
		return RouteOriginal
	}
	if name, _, _ := strings.Cut(key, "("); IsProtocolName(name) || name == unit.StaticInit {
		return RouteOriginal
	}
	p := d.target.Pair()
	om := p.Original().Method(key)
	if om != nil {
		switch {
		case p.HasBeenDeleted(om.ID):
			return RouteInherited
		case !p.MustUseExecutor(om.ID):
			return RouteCatcher
		}
	}
	if tab := d.target.Table(); tab != nil && tab.Lookup(Key(key)) != nil {
		return RouteExecutor
	}
	if om != nil && !om.Catcher {
		return RouteEscape
	}
	return RouteInherited
}

// Resolve implements the method half of vm.Hooks: it returns the method to
// run for key at the target type, or nil to continue the lookup upward.
func (d *Dispatcher) Resolve(key string, declared vm.Method) vm.Method {
	switch Key(key) {
	case executeKey:
		d.natives()
		return d.execute
	case clinitKey:
		d.natives()
		return d.clinit
	}
	switch d.Route(key) {
	case RouteOriginal:
		return declared
	case RouteExecutor:
		return d.target.Table().Lookup(Key(key))
	case RouteEscape:
		return d.escapeMethod(key, declared)
	}
	return nil
}

// escapeMethod wraps a call of key in the escape hatch, keeping the
// declaration callers were linked against.
func (d *Dispatcher) escapeMethod(key string, declared vm.Method) vm.Method {
	if declared == nil {
		return nil
	}
	info := declared.Info()
	return NewRouted(d.target.Type(), info, func(machine *vm.VM, args []vm.Value) (vm.Value, error) {
		return d.Dispatch(machine, key, info.IsStatic(), args)
	})
}

// Dispatch calls key on the target type's current version. Instance calls
// pass the receiver as args[0].
func (d *Dispatcher) Dispatch(machine *vm.VM, key string, static bool, args []vm.Value) (vm.Value, error) {
	switch d.Route(key) {
	case RouteOriginal:
		if m := d.target.Type().Declared(key); m != nil && !vm.IsAbstract(m) {
			return m.Invoke(machine, args)
		}
	case RouteExecutor, RouteEscape:
		if tab := d.target.Table(); tab != nil {
			return tab.Invoke(machine, key, static, args)
		}
	}
	return d.Inherited(machine, key, static, args)
}

// Inherited calls key non-virtually on the target's supertype. It is the
// fallback of version tables.
func (d *Dispatcher) Inherited(machine *vm.VM, key string, static bool, args []vm.Value) (vm.Value, error) {
	typ := d.target.Type()
	var m vm.Method
	if super := typ.Super; super != nil {
		if static {
			m = super.FindStatic(key)
		} else {
			m = super.FindSpecial(key)
		}
	}
	if m == nil {
		return nil, &vm.NoSuchMethodError{Owner: typ.Name, Key: key}
	}
	if !static && len(args) > 0 && args[0] == nil {
		return nil, vm.ErrNullPointer
	}
	return m.Invoke(machine, args)
}

// escape is the body of __execute(args, receiver, key).
func (d *Dispatcher) escape(machine *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) != 3 {
		return nil, &vm.OperandError{Op: ExecuteName, Values: args}
	}
	var elems []vm.Value
	switch a := args[0].(type) {
	case *vm.Array:
		elems = a.Elems
	case nil:
	default:
		return nil, &vm.OperandError{Op: ExecuteName, Values: args[:1]}
	}
	key, ok := args[2].(string)
	if !ok {
		return nil, &vm.OperandError{Op: ExecuteName, Values: args[2:]}
	}
	recv := args[1]

	static := recv == nil
	if m := d.target.Pair().Latest().Method(key); m != nil {
		static = m.IsStatic()
	}
	if static {
		return d.Dispatch(machine, key, true, elems)
	}
	if recv == nil {
		return nil, vm.ErrNullPointer
	}
	return d.Dispatch(machine, key, false, append([]vm.Value{recv}, elems...))
}

// rerunStaticInit is the body of ___clinit___: it runs the current
// version's static initializer, if it has one.
func (d *Dispatcher) rerunStaticInit(machine *vm.VM, _ []vm.Value) (vm.Value, error) {
	var m vm.Method
	if d.target.Reloaded() {
		if tab := d.target.Table(); tab != nil {
			m = tab.Lookup(clinitKey)
		}
	} else {
		m = d.target.Type().Declared(unit.StaticInit + "()V")
	}
	if m == nil {
		return nil, nil
	}
	_, err := m.Invoke(machine, nil)
	return nil, err
}
