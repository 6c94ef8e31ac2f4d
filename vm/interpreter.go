package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/hotswap/unit"
)

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

var errStackUnderflow = errors.New("vm: operand stack underflow")

type frame struct {
	typ    *Type
	method *unit.Method
	locals []Value
	stack  []Value
}

func (f *frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() Value {
	if len(f.stack) == 0 {
		panic(errStackUnderflow)
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) peek() Value {
	if len(f.stack) == 0 {
		panic(errStackUnderflow)
	}
	return f.stack[len(f.stack)-1]
}

// popN pops n values and returns them in push order.
func (f *frame) popN(n int) []Value {
	if len(f.stack) < n {
		panic(errStackUnderflow)
	}
	out := make([]Value, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

func (vm *VM) execute(t *Type, m *unit.Method, args []Value) (result Value, err error) {
	if len(args) > m.MaxLocals {
		return nil, &LinkageError{Type: t.Name, Reason: fmt.Sprintf("%s: %d arguments exceed %d locals", m.Key(), len(args), m.MaxLocals)}
	}
	f := &frame{typ: t, method: m, locals: make([]Value, m.MaxLocals), stack: make([]Value, 0, 8)}
	copy(f.locals, args)

	defer func() {
		if p := recover(); p != nil {
			switch x := p.(type) {
			case error:
				err = fmt.Errorf("vm: %s.%s: %w", t.Name, m.Key(), x)
			case string:
				err = fmt.Errorf("vm: %s.%s: %s", t.Name, m.Key(), x)
			default:
				panic(p)
			}
		}
	}()

	u := t.Unit
	r := unit.NewReader(m.Code)
	for r.HasMore() {
		op := r.ReadOpcode()
		switch op {
		case unit.OpNOP:

		case unit.OpPOP:
			f.pop()

		case unit.OpDUP:
			f.push(f.peek())

		case unit.OpSWAP:
			a := f.pop()
			b := f.pop()
			f.push(a)
			f.push(b)

		case unit.OpPushNull:
			f.push(nil)

		case unit.OpPushInt:
			f.push(r.ReadInt32())

		case unit.OpPushConst:
			f.push(u.Consts[r.ReadUint16()].Value())

		case unit.OpLoad:
			f.push(f.locals[r.ReadByte()])

		case unit.OpStore:
			f.locals[r.ReadByte()] = f.pop()

		case unit.OpAdd, unit.OpSub, unit.OpMul, unit.OpLT:
			b := f.pop()
			a := f.pop()
			v, err := arith(op, a, b)
			if err != nil {
				return nil, err
			}
			f.push(v)

		case unit.OpEQ:
			b := f.pop()
			a := f.pop()
			f.push(a == b)

		case unit.OpConcat:
			b := f.pop()
			a := f.pop()
			f.push(Stringify(a) + Stringify(b))

		case unit.OpJump:
			offset := r.ReadInt16()
			r.Seek(r.Position() + int(offset))

		case unit.OpJumpFalse:
			offset := r.ReadInt16()
			v := f.pop()
			c, ok := v.(bool)
			if !ok {
				return nil, &OperandError{Op: op.Name(), Values: []Value{v}}
			}
			if !c {
				r.Seek(r.Position() + int(offset))
			}

		case unit.OpNew:
			ref := u.Refs[r.ReadUint16()]
			nt, err := t.loader.Resolve(ref.Owner)
			if err != nil {
				return nil, err
			}
			obj, err := vm.allocate(nt)
			if err != nil {
				return nil, err
			}
			f.push(obj)

		case unit.OpNewArray:
			f.push(&Array{Elems: f.popN(int(r.ReadByte()))})

		case unit.OpGetField, unit.OpGetFieldDyn:
			ref := u.Refs[r.ReadUint16()]
			obj, err := asObject(f.pop())
			if err != nil {
				return nil, err
			}
			owner, err := t.loader.Resolve(ref.Owner)
			if err != nil {
				return nil, err
			}
			var v Value
			if op == unit.OpGetField {
				v, err = vm.getField(t, obj, owner, ref.Name, ref.Desc)
			} else {
				v, err = vm.getFieldDyn(obj, owner, ref.Name, ref.Desc)
			}
			if err != nil {
				return nil, err
			}
			f.push(v)

		case unit.OpPutField, unit.OpPutFieldDyn:
			ref := u.Refs[r.ReadUint16()]
			v := f.pop()
			obj, err := asObject(f.pop())
			if err != nil {
				return nil, err
			}
			owner, err := t.loader.Resolve(ref.Owner)
			if err != nil {
				return nil, err
			}
			if op == unit.OpPutField {
				err = vm.setField(t, obj, owner, ref.Name, v)
			} else {
				err = vm.setFieldDyn(obj, owner, ref.Name, v)
			}
			if err != nil {
				return nil, err
			}

		case unit.OpGetStatic, unit.OpGetStaticDyn:
			ref := u.Refs[r.ReadUint16()]
			owner, err := t.loader.Resolve(ref.Owner)
			if err != nil {
				return nil, err
			}
			var v Value
			if op == unit.OpGetStatic {
				v, err = vm.getStatic(t, owner, ref.Name, ref.Desc)
			} else {
				v, err = vm.getStaticDyn(owner, ref.Name, ref.Desc)
			}
			if err != nil {
				return nil, err
			}
			f.push(v)

		case unit.OpPutStatic, unit.OpPutStaticDyn:
			ref := u.Refs[r.ReadUint16()]
			v := f.pop()
			owner, err := t.loader.Resolve(ref.Owner)
			if err != nil {
				return nil, err
			}
			if op == unit.OpPutStatic {
				err = vm.setStatic(t, owner, ref.Name, v)
			} else {
				err = vm.setStaticDyn(owner, ref.Name, v)
			}
			if err != nil {
				return nil, err
			}

		case unit.OpInvokeVirtual, unit.OpInvokeStatic, unit.OpInvokeSpecial:
			ref := u.Refs[r.ReadUint16()]
			n := unit.ArgCount(ref.Desc)
			if n < 0 {
				return nil, &LinkageError{Type: t.Name, Reason: "malformed descriptor " + ref.Desc}
			}
			if op != unit.OpInvokeStatic {
				n++
			}
			v, err := vm.invoke(op, t, ref, f.popN(n))
			if err != nil {
				return nil, err
			}
			if unit.ReturnDesc(ref.Desc) != "V" {
				f.push(v)
			}

		case unit.OpReturn:
			return nil, nil

		case unit.OpReturnValue:
			return f.pop(), nil

		case unit.OpThrow:
			return nil, &ThrownError{Value: f.pop()}

		default:
			return nil, &LinkageError{Type: t.Name, Reason: fmt.Sprintf("%s: unknown opcode %s", m.Key(), op)}
		}
	}
	return nil, nil
}

func asObject(v Value) (*Object, error) {
	if v == nil {
		return nil, ErrNullPointer
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, &OperandError{Op: "field access", Values: []Value{v}}
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

type number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

func arithOf[T number](op unit.Opcode, a, b T) Value {
	switch op {
	case unit.OpAdd:
		return a + b
	case unit.OpSub:
		return a - b
	case unit.OpMul:
		return a * b
	}
	return a < b
}

func arith(op unit.Opcode, a, b Value) (Value, error) {
	switch x := a.(type) {
	case int32:
		if y, ok := b.(int32); ok {
			return arithOf(op, x, y), nil
		}
	case int64:
		if y, ok := b.(int64); ok {
			return arithOf(op, x, y), nil
		}
	case float32:
		if y, ok := b.(float32); ok {
			return arithOf(op, x, y), nil
		}
	case float64:
		if y, ok := b.(float64); ok {
			return arithOf(op, x, y), nil
		}
	}
	return nil, &OperandError{Op: op.Name(), Values: []Value{a, b}}
}
