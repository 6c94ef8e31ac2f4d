package vm

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chazu/hotswap/unit"
)

// ---------------------------------------------------------------------------
// Hooks: per-type interception installed by an extension at definition
// ---------------------------------------------------------------------------

// Hooks lets an extension intercept method resolution and field storage for
// one type. A type's hooks are fixed when the type is defined.
type Hooks interface {
	// Resolve is consulted whenever a lookup reaches the hooked type. It
	// receives the method the type declares for key (nil if none) and
	// returns the method to run, or nil to continue the lookup upward.
	Resolve(key string, declared Method) Method

	// Reloaded reports whether plain field instructions that reach this
	// type must be routed through the field hooks.
	Reloaded() bool

	// GetField and SetField serve instance fields requested through
	// owner, the type named by the instruction. desc is the field
	// descriptor the instruction names.
	GetField(vm *VM, obj *Object, owner *Type, name, desc string) (Value, error)
	SetField(vm *VM, obj *Object, owner *Type, name string, v Value) error

	// GetStatic and SetStatic serve static fields requested through owner.
	GetStatic(vm *VM, owner *Type, name, desc string) (Value, error)
	SetStatic(vm *VM, owner *Type, name string, v Value) error
}

// ---------------------------------------------------------------------------
// Type
// ---------------------------------------------------------------------------

// fieldInfo locates a declared field's original storage.
type fieldInfo struct {
	field *unit.Field
	index int // instance slot or static slot
}

const (
	initNone int32 = iota
	initRunning
	initDone
)

// Type is a loaded type. Its shape (slots, statics, declared methods) is
// fixed at definition.
type Type struct {
	Name       string
	Super      *Type
	Interfaces []*Type
	Access     unit.Access
	Unit       *unit.Unit // nil for built-in types

	loader *Loader
	hooks  Hooks

	slotDescs []string // instance layout, inherited slots first
	fields    map[string]*fieldInfo
	methods   map[string]Method

	staticMu sync.RWMutex
	statics  []Value

	initMu    sync.Mutex
	initState atomic.Int32
	initErr   error
}

// Loader returns the loader that defined the type.
func (t *Type) Loader() *Loader { return t.loader }

// Hooks returns the type's hooks, or nil.
func (t *Type) Hooks() Hooks { return t.hooks }

// IsInterface reports whether the type is an interface.
func (t *Type) IsInterface() bool { return t.Access.Is(unit.AccInterface) }

// IsSubtypeOf reports whether t is name or inherits from it.
func (t *Type) IsSubtypeOf(name string) bool {
	if t == nil {
		return false
	}
	if t.Name == name {
		return true
	}
	for _, i := range t.Interfaces {
		if i.IsSubtypeOf(name) {
			return true
		}
	}
	return t.Super.IsSubtypeOf(name)
}

// Declared returns the method the type itself declares for key, bypassing
// hooks.
func (t *Type) Declared(key string) Method {
	return t.methods[key]
}

// DeclaredMethods returns the type's declared methods keyed by name+desc.
func (t *Type) DeclaredMethods() map[string]Method {
	out := make(map[string]Method, len(t.methods))
	for k, m := range t.methods {
		out[k] = m
	}
	return out
}

// Field returns the declaration of a field the type itself declares.
func (t *Type) Field(name string) *unit.Field {
	if fi := t.fields[name]; fi != nil {
		return fi.field
	}
	return nil
}

// fieldDesc returns the descriptor of the nearest declaration of name at or
// above t, or "".
func (t *Type) fieldDesc(name string) string {
	for lvl := t; lvl != nil; lvl = lvl.Super {
		if f := lvl.Field(name); f != nil {
			return f.Desc
		}
	}
	return ""
}

// resolveAt returns the method for key at this level, consulting hooks.
func (t *Type) resolveAt(key string) Method {
	m := t.methods[key]
	if t.hooks != nil {
		return t.hooks.Resolve(key, m)
	}
	return m
}

// FindVirtual looks key up starting at t, skipping static and abstract
// methods. Private methods only match at the level named by owner.
func (t *Type) FindVirtual(key, owner string) Method {
	for lvl := t; lvl != nil; lvl = lvl.Super {
		m := lvl.resolveAt(key)
		if m == nil || IsAbstract(m) {
			continue
		}
		info := m.Info()
		if info.IsStatic() {
			continue
		}
		if info.Access.Is(unit.AccPrivate) && lvl.Name != owner {
			continue
		}
		return m
	}
	return nil
}

// FindStatic looks up a static method starting at t.
func (t *Type) FindStatic(key string) Method {
	for lvl := t; lvl != nil; lvl = lvl.Super {
		if m := lvl.resolveAt(key); m != nil && m.Info().IsStatic() {
			return m
		}
	}
	return nil
}

// FindSpecial performs non-virtual lookup: constructors bind at t only,
// other methods at t or the nearest supertype declaring them.
func (t *Type) FindSpecial(key string) Method {
	if strings.HasPrefix(key, unit.Constructor+"(") {
		return t.resolveAt(key)
	}
	for lvl := t; lvl != nil; lvl = lvl.Super {
		if m := lvl.resolveAt(key); m != nil && !IsAbstract(m) && !m.Info().IsStatic() {
			return m
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statics and initialization
// ---------------------------------------------------------------------------

func (t *Type) static(i int) Value {
	t.staticMu.RLock()
	defer t.staticMu.RUnlock()
	return t.statics[i]
}

func (t *Type) setStatic(i int, v Value) {
	t.staticMu.Lock()
	t.statics[i] = v
	t.staticMu.Unlock()
}

// Initialized reports whether the static initializer has completed.
func (t *Type) Initialized() bool {
	return t.initState.Load() == initDone
}

// EnsureInitialized runs the static initializer of t and its supertypes
// on first active use. A re-entrant request made while the initializer is
// running returns immediately.
func (t *Type) EnsureInitialized(vm *VM) error {
	if t.initState.Load() == initDone {
		return t.initErr
	}
	t.initMu.Lock()
	switch t.initState.Load() {
	case initDone:
		t.initMu.Unlock()
		return t.initErr
	case initRunning:
		t.initMu.Unlock()
		return nil
	}
	t.initState.Store(initRunning)
	t.initMu.Unlock()

	var err error
	if t.Super != nil {
		err = t.Super.EnsureInitialized(vm)
	}
	if err == nil {
		if m := t.methods[unit.StaticInit+"()V"]; m != nil {
			log.Debugf("initializing %s", t.Name)
			_, err = m.Invoke(vm, nil)
		}
	}

	t.initMu.Lock()
	t.initErr = err
	t.initState.Store(initDone)
	t.initMu.Unlock()
	return err
}

func zeroFor(desc string) Value {
	return unit.Zero(desc)
}
