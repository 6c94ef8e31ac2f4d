package vm

import (
	"github.com/chazu/hotswap/unit"
)

// Method is an invocable method. Instance methods receive the receiver as
// args[0].
type Method interface {
	Declaring() *Type
	Info() *unit.Method
	Invoke(vm *VM, args []Value) (Value, error)
}

// IsAbstract reports whether m has no body.
func IsAbstract(m Method) bool {
	if _, ok := m.(*NativeMethod); ok {
		return false
	}
	info := m.Info()
	if info.Access.Is(unit.AccAbstract) {
		return true
	}
	if cm, ok := m.(*CodeMethod); ok {
		return len(cm.info.Code) == 0
	}
	return false
}

// ---------------------------------------------------------------------------
// CodeMethod: bytecode body from a unit
// ---------------------------------------------------------------------------

// CodeMethod is a method whose body is bytecode in its declaring unit.
type CodeMethod struct {
	typ  *Type
	info *unit.Method
}

// Declaring returns the declaring type.
func (m *CodeMethod) Declaring() *Type { return m.typ }

// Info returns the method declaration.
func (m *CodeMethod) Info() *unit.Method { return m.info }

// Invoke runs the bytecode body.
func (m *CodeMethod) Invoke(vm *VM, args []Value) (Value, error) {
	if len(m.info.Code) == 0 {
		if m.info.Access.Is(unit.AccNative) {
			return nil, &LinkageError{Type: m.typ.Name, Reason: "unbound native method " + m.info.Key()}
		}
		return nil, &LinkageError{Type: m.typ.Name, Reason: "abstract method " + m.info.Key()}
	}
	return vm.execute(m.typ, m.info, args)
}

// ---------------------------------------------------------------------------
// NativeMethod: Go body
// ---------------------------------------------------------------------------

// NativeFunc is the Go body of a native method.
type NativeFunc func(vm *VM, args []Value) (Value, error)

// NativeMethod is a method implemented in Go.
type NativeMethod struct {
	typ  *Type
	info *unit.Method
	fn   NativeFunc
}

// NewNative creates a native method declared by t.
func NewNative(t *Type, name, desc string, access unit.Access, fn NativeFunc) *NativeMethod {
	return &NativeMethod{
		typ:  t,
		info: &unit.Method{Name: name, Desc: desc, Access: access | unit.AccNative},
		fn:   fn,
	}
}

// Declaring returns the declaring type.
func (m *NativeMethod) Declaring() *Type { return m.typ }

// Info returns the method declaration.
func (m *NativeMethod) Info() *unit.Method { return m.info }

// Invoke calls the Go body.
func (m *NativeMethod) Invoke(vm *VM, args []Value) (Value, error) {
	return m.fn(vm, args)
}
