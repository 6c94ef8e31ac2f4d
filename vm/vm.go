package vm

import (
	"fmt"

	"github.com/chazu/hotswap/unit"
)

// VM is a virtual machine instance. It is safe for concurrent use: any
// number of goroutines may invoke methods while types are being defined.
type VM struct {
	boot *Loader
	app  *Loader

	objectType *Type
	stringType *Type
}

// New creates a VM with a bootstrap loader holding the built-in types and
// an application loader named "app".
func New() *VM {
	vm := &VM{}
	vm.boot = newLoader(vm, "bootstrap", nil)
	vm.objectType, vm.stringType = defineBuiltins(vm.boot)
	vm.app = newLoader(vm, "app", vm.boot)
	return vm
}

// Loader returns the application loader.
func (vm *VM) Loader() *Loader { return vm.app }

// NewLoader creates a loader scope whose parent is the application loader.
func (vm *VM) NewLoader(name string) *Loader {
	return newLoader(vm, name, vm.app)
}

// ObjectType returns the root type.
func (vm *VM) ObjectType() *Type { return vm.objectType }

// TypeOf returns the type of a receiver value, or nil for primitives and
// nil.
func (vm *VM) TypeOf(v Value) *Type {
	switch x := v.(type) {
	case *Object:
		return x.typ
	case string:
		return vm.stringType
	case *Array:
		return vm.objectType
	}
	return nil
}

// ---------------------------------------------------------------------------
// Public entry points
// ---------------------------------------------------------------------------

// NewObject allocates an instance of t and runs the constructor with the
// given descriptor.
func (vm *VM) NewObject(t *Type, desc string, args ...Value) (*Object, error) {
	obj, err := vm.allocate(t)
	if err != nil {
		return nil, err
	}
	m := t.FindSpecial(unit.Constructor + desc)
	if m == nil {
		return nil, &NoSuchMethodError{Owner: t.Name, Key: unit.Constructor + desc}
	}
	if _, err := m.Invoke(vm, append([]Value{obj}, args...)); err != nil {
		return nil, err
	}
	return obj, nil
}

// Call invokes an instance method virtually on recv.
func (vm *VM) Call(recv Value, name, desc string, args ...Value) (Value, error) {
	rt := vm.TypeOf(recv)
	if rt == nil {
		if recv == nil {
			return nil, ErrNullPointer
		}
		return nil, &OperandError{Op: "call " + name, Values: []Value{recv}}
	}
	key := name + desc
	m := rt.FindVirtual(key, rt.Name)
	if m == nil {
		return nil, &NoSuchMethodError{Owner: rt.Name, Key: key}
	}
	return m.Invoke(vm, append([]Value{recv}, args...))
}

// CallStatic invokes a static method of t.
func (vm *VM) CallStatic(t *Type, name, desc string, args ...Value) (Value, error) {
	if err := t.EnsureInitialized(vm); err != nil {
		return nil, err
	}
	key := name + desc
	m := t.FindStatic(key)
	if m == nil {
		return nil, &NoSuchMethodError{Owner: t.Name, Key: key}
	}
	return m.Invoke(vm, args)
}

// GetField reads an instance field as GETFIELD from code declared by owner
// would.
func (vm *VM) GetField(obj *Object, owner *Type, name string) (Value, error) {
	return vm.getField(owner, obj, owner, name, owner.fieldDesc(name))
}

// SetField writes an instance field as PUTFIELD from code declared by owner
// would.
func (vm *VM) SetField(obj *Object, owner *Type, name string, v Value) error {
	return vm.setField(owner, obj, owner, name, v)
}

// GetStatic reads a static field as GETSTATIC from code declared by owner
// would.
func (vm *VM) GetStatic(owner *Type, name string) (Value, error) {
	return vm.getStatic(owner, owner, name, owner.fieldDesc(name))
}

// SetStatic writes a static field as PUTSTATIC from code declared by owner
// would.
func (vm *VM) SetStatic(owner *Type, name string, v Value) error {
	return vm.setStatic(owner, owner, name, v)
}

// ---------------------------------------------------------------------------
// Original storage access
// ---------------------------------------------------------------------------

// ReadField reads the original slot of field name declared by the type
// named declaring, bypassing hooks.
func (vm *VM) ReadField(obj *Object, declaring, name string) (Value, error) {
	if obj == nil {
		return nil, ErrNullPointer
	}
	for lvl := obj.typ; lvl != nil; lvl = lvl.Super {
		if lvl.Name != declaring {
			continue
		}
		fi := lvl.fields[name]
		if fi == nil || fi.field.IsStatic() {
			break
		}
		return obj.slot(fi.index), nil
	}
	return nil, &NoSuchFieldError{Owner: declaring, Name: name}
}

// ReadStatic reads the original storage of a static field declared by t,
// bypassing hooks.
func (vm *VM) ReadStatic(t *Type, name string) (Value, error) {
	fi := t.fields[name]
	if fi == nil || !fi.field.IsStatic() {
		return nil, &NoSuchFieldError{Owner: t.Name, Name: name}
	}
	if err := t.EnsureInitialized(vm); err != nil {
		return nil, err
	}
	return t.static(fi.index), nil
}

// WriteField stores into the original slot of field name declared by the
// type named declaring, bypassing hooks.
func (vm *VM) WriteField(obj *Object, declaring, name string, v Value) error {
	if obj == nil {
		return ErrNullPointer
	}
	for lvl := obj.typ; lvl != nil; lvl = lvl.Super {
		if lvl.Name != declaring {
			continue
		}
		fi := lvl.fields[name]
		if fi == nil || fi.field.IsStatic() {
			break
		}
		if !lvl.loader.Assignable(v, fi.field.Desc) {
			return &OperandError{Op: "write " + declaring + "." + name, Values: []Value{v}}
		}
		obj.setSlot(fi.index, v)
		return nil
	}
	return &NoSuchFieldError{Owner: declaring, Name: name}
}

// WriteStatic stores into the original storage of a static field declared
// by t, bypassing hooks.
func (vm *VM) WriteStatic(t *Type, name string, v Value) error {
	fi := t.fields[name]
	if fi == nil || !fi.field.IsStatic() {
		return &NoSuchFieldError{Owner: t.Name, Name: name}
	}
	if err := t.EnsureInitialized(vm); err != nil {
		return err
	}
	if !t.loader.Assignable(v, fi.field.Desc) {
		return &OperandError{Op: "write " + t.Name + "." + name, Values: []Value{v}}
	}
	t.setStatic(fi.index, v)
	return nil
}

// ---------------------------------------------------------------------------
// Allocation and invocation
// ---------------------------------------------------------------------------

func (vm *VM) allocate(t *Type) (*Object, error) {
	if t.IsInterface() || t.Access.Is(unit.AccAbstract) {
		return nil, &LinkageError{Type: t.Name, Reason: "cannot instantiate"}
	}
	if t == vm.stringType {
		return nil, &LinkageError{Type: t.Name, Reason: "cannot instantiate built-in"}
	}
	if err := t.EnsureInitialized(vm); err != nil {
		return nil, err
	}
	return newObject(t), nil
}

func (vm *VM) invoke(op unit.Opcode, caller *Type, ref unit.Ref, args []Value) (Value, error) {
	owner, err := caller.loader.Resolve(ref.Owner)
	if err != nil {
		return nil, err
	}
	key := ref.Key()

	var m Method
	switch op {
	case unit.OpInvokeStatic:
		if err := owner.EnsureInitialized(vm); err != nil {
			return nil, err
		}
		m = owner.FindStatic(key)

	case unit.OpInvokeVirtual:
		rt := vm.TypeOf(args[0])
		if rt == nil {
			if args[0] == nil {
				return nil, ErrNullPointer
			}
			return nil, &OperandError{Op: "invoke " + key, Values: args[:1]}
		}
		m = rt.FindVirtual(key, ref.Owner)

	case unit.OpInvokeSpecial:
		if args[0] == nil {
			return nil, ErrNullPointer
		}
		m = owner.FindSpecial(key)
		if m != nil && ref.Name != unit.Constructor &&
			caller.Name != owner.Name && !caller.IsSubtypeOf(owner.Name) {
			return nil, &LinkageError{Type: caller.Name,
				Reason: fmt.Sprintf("INVOKESPECIAL %s.%s from a type that is not a subtype", owner.Name, key)}
		}
	}
	if m == nil {
		return nil, &NoSuchMethodError{Owner: ref.Owner, Key: key}
	}
	if m.Info().Access.Is(unit.AccPrivate) && m.Declaring().Name != caller.Name {
		return nil, &LinkageError{Type: caller.Name,
			Reason: fmt.Sprintf("private method %s.%s is not accessible", m.Declaring().Name, key)}
	}
	return m.Invoke(vm, args)
}

// ---------------------------------------------------------------------------
// Field access
// ---------------------------------------------------------------------------

// getField resolves name from owner upward. A reloaded hooked type on the
// path takes over the access. desc is the descriptor named by the access.
func (vm *VM) getField(caller *Type, obj *Object, owner *Type, name, desc string) (Value, error) {
	for lvl := owner; lvl != nil; lvl = lvl.Super {
		if lvl.hooks != nil && lvl.hooks.Reloaded() {
			return lvl.hooks.GetField(vm, obj, owner, name, desc)
		}
		if fi := lvl.fields[name]; fi != nil {
			if err := checkInstanceField(caller, lvl, obj, fi); err != nil {
				return nil, err
			}
			return obj.slot(fi.index), nil
		}
	}
	return nil, &NoSuchFieldError{Owner: owner.Name, Name: name}
}

func (vm *VM) setField(caller *Type, obj *Object, owner *Type, name string, v Value) error {
	for lvl := owner; lvl != nil; lvl = lvl.Super {
		if lvl.hooks != nil && lvl.hooks.Reloaded() {
			return lvl.hooks.SetField(vm, obj, owner, name, v)
		}
		if fi := lvl.fields[name]; fi != nil {
			if err := checkInstanceField(caller, lvl, obj, fi); err != nil {
				return err
			}
			if !owner.loader.Assignable(v, fi.field.Desc) {
				return &OperandError{Op: "PUTFIELD " + lvl.Name + "." + name, Values: []Value{v}}
			}
			obj.setSlot(fi.index, v)
			return nil
		}
	}
	return &NoSuchFieldError{Owner: owner.Name, Name: name}
}

func checkInstanceField(caller, decl *Type, obj *Object, fi *fieldInfo) error {
	if fi.field.IsStatic() {
		return &LinkageError{Type: decl.Name, Reason: "static field " + fi.field.Name + " accessed as instance field"}
	}
	if fi.field.Access.Is(unit.AccPrivate) && caller.Name != decl.Name {
		return &LinkageError{Type: caller.Name, Reason: "private field " + decl.Name + "." + fi.field.Name + " is not accessible"}
	}
	if !obj.typ.IsSubtypeOf(decl.Name) {
		return &LinkageError{Type: decl.Name, Reason: fmt.Sprintf("%s is not an instance", obj)}
	}
	return nil
}

func (vm *VM) getStatic(caller *Type, owner *Type, name, desc string) (Value, error) {
	if err := owner.EnsureInitialized(vm); err != nil {
		return nil, err
	}
	for lvl := owner; lvl != nil; lvl = lvl.Super {
		if lvl.hooks != nil && lvl.hooks.Reloaded() {
			return lvl.hooks.GetStatic(vm, owner, name, desc)
		}
		if fi := lvl.fields[name]; fi != nil {
			if err := checkStaticField(caller, lvl, fi); err != nil {
				return nil, err
			}
			return lvl.static(fi.index), nil
		}
	}
	return nil, &NoSuchFieldError{Owner: owner.Name, Name: name}
}

func (vm *VM) setStatic(caller *Type, owner *Type, name string, v Value) error {
	if err := owner.EnsureInitialized(vm); err != nil {
		return err
	}
	for lvl := owner; lvl != nil; lvl = lvl.Super {
		if lvl.hooks != nil && lvl.hooks.Reloaded() {
			return lvl.hooks.SetStatic(vm, owner, name, v)
		}
		if fi := lvl.fields[name]; fi != nil {
			if err := checkStaticField(caller, lvl, fi); err != nil {
				return err
			}
			if !owner.loader.Assignable(v, fi.field.Desc) {
				return &OperandError{Op: "PUTSTATIC " + lvl.Name + "." + name, Values: []Value{v}}
			}
			lvl.setStatic(fi.index, v)
			return nil
		}
	}
	return &NoSuchFieldError{Owner: owner.Name, Name: name}
}

func checkStaticField(caller, decl *Type, fi *fieldInfo) error {
	if !fi.field.IsStatic() {
		return &LinkageError{Type: decl.Name, Reason: "instance field " + fi.field.Name + " accessed as static field"}
	}
	if fi.field.Access.Is(unit.AccPrivate) && caller.Name != decl.Name {
		return &LinkageError{Type: caller.Name, Reason: "private field " + decl.Name + "." + fi.field.Name + " is not accessible"}
	}
	return nil
}

// dynHooks finds the nearest hooked type at or above owner.
func dynHooks(owner *Type) (Hooks, error) {
	for lvl := owner; lvl != nil; lvl = lvl.Super {
		if lvl.hooks != nil {
			return lvl.hooks, nil
		}
	}
	return nil, &LinkageError{Type: owner.Name, Reason: "no reload-aware type in hierarchy"}
}

func (vm *VM) getFieldDyn(obj *Object, owner *Type, name, desc string) (Value, error) {
	h, err := dynHooks(owner)
	if err != nil {
		return nil, err
	}
	return h.GetField(vm, obj, owner, name, desc)
}

func (vm *VM) setFieldDyn(obj *Object, owner *Type, name string, v Value) error {
	h, err := dynHooks(owner)
	if err != nil {
		return err
	}
	return h.SetField(vm, obj, owner, name, v)
}

func (vm *VM) getStaticDyn(owner *Type, name, desc string) (Value, error) {
	h, err := dynHooks(owner)
	if err != nil {
		return nil, err
	}
	return h.GetStatic(vm, owner, name, desc)
}

func (vm *VM) setStaticDyn(owner *Type, name string, v Value) error {
	h, err := dynHooks(owner)
	if err != nil {
		return err
	}
	return h.SetStatic(vm, owner, name, v)
}
