package unit

// Asm assembles a method body, interning operands into the pools of the unit
// the method will belong to.
type Asm struct {
	u *Unit
	b *Builder
}

// New returns an empty unit with the given header.
func New(name, super string, access Access) *Unit {
	return &Unit{Name: name, Super: super, Access: access}
}

// NewAsm returns an assembler bound to u's pools.
func NewAsm(u *Unit) *Asm {
	return &Asm{u: u, b: NewBuilder()}
}

// Code returns the assembled bytecode.
func (a *Asm) Code() []byte { return a.b.Bytes() }

// Op emits an operand-less instruction.
func (a *Asm) Op(op Opcode) { a.b.Emit(op) }

// Load pushes local i.
func (a *Asm) Load(i int) { a.b.EmitByte(OpLoad, byte(i)) }

// Store pops into local i.
func (a *Asm) Store(i int) { a.b.EmitByte(OpStore, byte(i)) }

// Int pushes a 32-bit integer.
func (a *Asm) Int(v int32) { a.b.EmitInt32(OpPushInt, v) }

// Str pushes a string constant.
func (a *Asm) Str(s string) { a.b.EmitUint16(OpPushConst, a.u.AddString(s)) }

// Long pushes a 64-bit integer constant.
func (a *Asm) Long(v int64) { a.b.EmitUint16(OpPushConst, a.u.AddInt(v)) }

// Float pushes a float constant.
func (a *Asm) Float(v float64) { a.b.EmitUint16(OpPushConst, a.u.AddFloat(v)) }

// New allocates an uninitialized instance of typ.
func (a *Asm) New(typ string) { a.b.EmitUint16(OpNew, a.u.AddRef(typ, "", "")) }

// NewArray collapses the top n values into an array.
func (a *Asm) NewArray(n int) { a.b.EmitByte(OpNewArray, byte(n)) }

// Field emits a field access instruction.
func (a *Asm) Field(op Opcode, owner, name, desc string) {
	a.b.EmitUint16(op, a.u.AddRef(owner, name, desc))
}

// Invoke emits an invocation instruction.
func (a *Asm) Invoke(op Opcode, owner, name, desc string) {
	a.b.EmitUint16(op, a.u.AddRef(owner, name, desc))
}

// NewLabel creates a jump label.
func (a *Asm) NewLabel() *Label { return a.b.NewLabel() }

// Mark resolves a label at the current position.
func (a *Asm) Mark(l *Label) { a.b.Mark(l) }

// Jump emits a jump to l.
func (a *Asm) Jump(op Opcode, l *Label) { a.b.EmitJump(op, l) }

// Return emits the return matching a method descriptor.
func (a *Asm) Return(desc string) {
	if ReturnDesc(desc) == "V" {
		a.b.Emit(OpReturn)
	} else {
		a.b.Emit(OpReturnValue)
	}
}

// LoadArgs pushes locals first through first+n-1.
func (a *Asm) LoadArgs(first, n int) {
	for i := 0; i < n; i++ {
		a.Load(first + i)
	}
}

// AddMethod appends a method to u and returns a pointer to it. The pointer
// is invalidated by the next append.
func (u *Unit) AddMethod(m Method) *Method {
	u.Methods = append(u.Methods, m)
	return &u.Methods[len(u.Methods)-1]
}

// AddField appends a field to u.
func (u *Unit) AddField(f Field) {
	u.Fields = append(u.Fields, f)
}
