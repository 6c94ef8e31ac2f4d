package dispatch

import (
	"fmt"
	"slices"

	"github.com/chazu/hotswap/descriptor"
	"github.com/chazu/hotswap/unit"
	"github.com/chazu/hotswap/vm"
)

// Key identifies a member by name and erased descriptor.
type Key string

// KeyOf returns the key of name+desc.
func KeyOf(name, desc string) Key { return Key(name + desc) }

// Callable is the body behind a table entry. Instance members receive the
// receiver as args[0].
type Callable func(vm *vm.VM, args []vm.Value) (vm.Value, error)

// Fallback serves keys that have no entry. static tells whether the call
// has a receiver.
type Fallback func(vm *vm.VM, key string, static bool, args []vm.Value) (vm.Value, error)

// Routed is a vm.Method backed by a Callable. It presents the declaration
// of the member it stands for.
type Routed struct {
	typ  *vm.Type
	info *unit.Method
	call Callable
}

// NewRouted returns a method declared by t with the given declaration.
func NewRouted(t *vm.Type, info *unit.Method, call Callable) *Routed {
	return &Routed{typ: t, info: info, call: call}
}

func (r *Routed) Declaring() *vm.Type { return r.typ }
func (r *Routed) Info() *unit.Method  { return r.info }

func (r *Routed) Invoke(vm *vm.VM, args []vm.Value) (vm.Value, error) {
	return r.call(vm, args)
}

// Table maps keys to the methods of one version of a type. Keys without an
// entry go to the fallback.
type Table struct {
	owner    string
	entries  map[Key]vm.Method
	fallback Fallback
}

// NewTable returns an empty table for the named type.
func NewTable(owner string, fallback Fallback) *Table {
	return &Table{owner: owner, entries: make(map[Key]vm.Method), fallback: fallback}
}

// Add binds key to m.
func (t *Table) Add(key Key, m vm.Method) { t.entries[key] = m }

// Lookup returns the method bound to key, or nil.
func (t *Table) Lookup(key Key) vm.Method { return t.entries[key] }

// Keys returns the bound keys in order.
func (t *Table) Keys() []Key {
	keys := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Invoke calls the method bound to key, or the fallback if there is none.
func (t *Table) Invoke(machine *vm.VM, key string, static bool, args []vm.Value) (vm.Value, error) {
	if m := t.entries[Key(key)]; m != nil {
		return m.Invoke(machine, args)
	}
	if t.fallback == nil {
		return nil, &vm.NoSuchMethodError{Owner: t.owner, Key: key}
	}
	return t.fallback(machine, key, static, args)
}

// ExecutorTable binds every member of latest that has a body to its copy in
// exec, the executor of that version. The entries keep the declarations of
// latest, so they resolve like members of typ.
func ExecutorTable(typ, exec *vm.Type, latest *descriptor.Descriptor,
	renames map[string]string, fallback Fallback) (*Table, error) {
	tab := NewTable(typ.Name, fallback)
	for _, m := range latest.Invocables() {
		if m.Catcher || m.SuperDispatcher || m.Access.Is(unit.AccAbstract) || m.Access.Is(unit.AccNative) {
			continue
		}
		name, desc := ExecutorMethod(typ.Name, m, renames)
		body := exec.Declared(name + desc)
		if body == nil {
			return nil, fmt.Errorf("dispatch: executor %s lacks %s%s for %s", exec.Name, name, desc, m.Key())
		}
		if m.IsStaticInit() {
			tab.Add(clinitKey, body)
			continue
		}
		info := &unit.Method{
			Name:        m.Name,
			Desc:        m.Desc,
			Access:      m.Access,
			Signature:   m.Signature,
			Exceptions:  m.Exceptions,
			MaxLocals:   body.Info().MaxLocals,
			Annotations: m.Annotations,
		}
		tab.Add(KeyOf(m.Name, m.Desc), NewRouted(typ, info, body.Invoke))
	}
	return tab, nil
}
