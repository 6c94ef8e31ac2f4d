package unit

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack operations
const (
	OpNOP  Opcode = 0x00 // no operation
	OpPOP  Opcode = 0x01 // discard top of stack
	OpDUP  Opcode = 0x02 // duplicate top of stack
	OpSWAP Opcode = 0x03 // swap the two topmost values
)

// Push constants
const (
	OpPushNull  Opcode = 0x10 // push nil
	OpPushInt   Opcode = 0x11 // push 32-bit signed integer
	OpPushConst Opcode = 0x12 // push constant pool entry (16-bit index)
)

// Locals
const (
	OpLoad  Opcode = 0x20 // push local (8-bit index)
	OpStore Opcode = 0x21 // pop into local (8-bit index)
)

// Arithmetic and comparison
const (
	OpAdd    Opcode = 0x30 // pops 2, pushes sum
	OpSub    Opcode = 0x31 // pops 2, pushes difference
	OpMul    Opcode = 0x32 // pops 2, pushes product
	OpLT     Opcode = 0x33 // pops 2, pushes bool
	OpEQ     Opcode = 0x34 // pops 2, pushes bool
	OpConcat Opcode = 0x35 // pops 2, pushes string concatenation
)

// Control flow
const (
	OpJump      Opcode = 0x40 // unconditional jump (16-bit offset)
	OpJumpFalse Opcode = 0x41 // pop, jump if false (16-bit offset)
)

// Object creation
const (
	OpNew      Opcode = 0x50 // allocate uninitialized instance (16-bit type ref)
	OpNewArray Opcode = 0x51 // collapse N values into an array (8-bit count)
)

// Field access
const (
	OpGetField     Opcode = 0x60 // pops receiver (16-bit field ref)
	OpPutField     Opcode = 0x61 // pops receiver, value (16-bit field ref)
	OpGetStatic    Opcode = 0x62 // (16-bit field ref)
	OpPutStatic    Opcode = 0x63 // pops value (16-bit field ref)
	OpGetFieldDyn  Opcode = 0x64 // side-table read (16-bit field ref)
	OpPutFieldDyn  Opcode = 0x65 // side-table write (16-bit field ref)
	OpGetStaticDyn Opcode = 0x66 // side-table static read (16-bit field ref)
	OpPutStaticDyn Opcode = 0x67 // side-table static write (16-bit field ref)
)

// Invocation
const (
	OpInvokeVirtual Opcode = 0x70 // virtual call (16-bit method ref)
	OpInvokeStatic  Opcode = 0x71 // static call (16-bit method ref)
	OpInvokeSpecial Opcode = 0x72 // non-virtual call (16-bit method ref)
)

// Returns
const (
	OpReturn      Opcode = 0x80 // return from void method
	OpReturnValue Opcode = 0x81 // pop and return
	OpThrow       Opcode = 0x82 // pop and raise
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes how an opcode's operand is interpreted.
type OperandKind uint8

const (
	OperandNone  OperandKind = iota
	OperandLocal             // u8 local index
	OperandCount             // u8 element count
	OperandInt               // i32 immediate
	OperandConst             // u16 constant pool index
	OperandRef               // u16 reference pool index
	OperandJump              // i16 relative offset from after the operand
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string      // human-readable name
	OperandBytes int         // number of operand bytes
	Operand      OperandKind // operand interpretation
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:  {"NOP", 0, OperandNone},
	OpPOP:  {"POP", 0, OperandNone},
	OpDUP:  {"DUP", 0, OperandNone},
	OpSWAP: {"SWAP", 0, OperandNone},

	OpPushNull:  {"PUSH_NULL", 0, OperandNone},
	OpPushInt:   {"PUSH_INT", 4, OperandInt},
	OpPushConst: {"PUSH_CONST", 2, OperandConst},

	OpLoad:  {"LOAD", 1, OperandLocal},
	OpStore: {"STORE", 1, OperandLocal},

	OpAdd:    {"ADD", 0, OperandNone},
	OpSub:    {"SUB", 0, OperandNone},
	OpMul:    {"MUL", 0, OperandNone},
	OpLT:     {"LT", 0, OperandNone},
	OpEQ:     {"EQ", 0, OperandNone},
	OpConcat: {"CONCAT", 0, OperandNone},

	OpJump:      {"JUMP", 2, OperandJump},
	OpJumpFalse: {"JUMP_FALSE", 2, OperandJump},

	OpNew:      {"NEW", 2, OperandRef},
	OpNewArray: {"NEW_ARRAY", 1, OperandCount},

	OpGetField:     {"GETFIELD", 2, OperandRef},
	OpPutField:     {"PUTFIELD", 2, OperandRef},
	OpGetStatic:    {"GETSTATIC", 2, OperandRef},
	OpPutStatic:    {"PUTSTATIC", 2, OperandRef},
	OpGetFieldDyn:  {"GETFIELD_DYN", 2, OperandRef},
	OpPutFieldDyn:  {"PUTFIELD_DYN", 2, OperandRef},
	OpGetStaticDyn: {"GETSTATIC_DYN", 2, OperandRef},
	OpPutStaticDyn: {"PUTSTATIC_DYN", 2, OperandRef},

	OpInvokeVirtual: {"INVOKEVIRTUAL", 2, OperandRef},
	OpInvokeStatic:  {"INVOKESTATIC", 2, OperandRef},
	OpInvokeSpecial: {"INVOKESPECIAL", 2, OperandRef},

	OpReturn:      {"RETURN", 0, OperandNone},
	OpReturnValue: {"RETURN_VALUE", 0, OperandNone},
	OpThrow:       {"THROW", 0, OperandNone},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsInvoke reports whether op is one of the invocation opcodes.
func (op Opcode) IsInvoke() bool {
	return op == OpInvokeVirtual || op == OpInvokeStatic || op == OpInvokeSpecial
}

// IsFieldAccess reports whether op reads or writes a field directly.
func (op Opcode) IsFieldAccess() bool {
	return op >= OpGetField && op <= OpPutStatic
}

// ---------------------------------------------------------------------------
// Builder: helper for constructing bytecode
// ---------------------------------------------------------------------------

// Builder helps construct bytecode sequences.
type Builder struct {
	bytes []byte
}

// NewBuilder creates a new bytecode builder.
func NewBuilder() *Builder {
	return &Builder{bytes: make([]byte, 0, 64)}
}

// Bytes returns the constructed bytecode.
func (b *Builder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *Builder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *Builder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitInt32 appends an opcode with a 32-bit operand (little-endian).
func (b *Builder) EmitInt32(op Opcode, operand int32) {
	b.bytes = append(b.bytes, byte(op))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(operand))
	b.bytes = append(b.bytes, buf[:]...)
}

// Label represents a forward reference in bytecode.
type Label struct {
	resolved bool
	position int
	refs     []int
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	for _, ref := range label.refs {
		offset := label.position - (ref + 2)
		b.bytes[ref] = byte(offset)
		b.bytes[ref+1] = byte(offset >> 8)
	}
	label.refs = nil
}

// EmitJump emits a jump instruction with a label.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		offset := label.position - (len(b.bytes) + 2)
		b.bytes = append(b.bytes, byte(offset), byte(offset>>8))
	} else {
		label.refs = append(label.refs, len(b.bytes))
		b.bytes = append(b.bytes, 0, 0)
	}
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader reads bytecode for interpretation or disassembly.
type Reader struct {
	bytes []byte
	pos   int
}

// NewReader creates a reader for bytecode.
func NewReader(bc []byte) *Reader {
	return &Reader{bytes: bc}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *Reader) ReadOpcode() Opcode {
	return Opcode(r.ReadByte())
}

// ReadByte reads a single byte operand.
func (r *Reader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *Reader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *Reader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadInt32 reads a 32-bit operand (little-endian).
func (r *Reader) ReadInt32() int32 {
	if r.pos+4 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return int32(v)
}

// Seek sets the read position.
func (r *Reader) Seek(pos int) {
	r.pos = pos
}

// ---------------------------------------------------------------------------
// Instruction-level view
// ---------------------------------------------------------------------------

// Instr is one decoded instruction. For jumps Arg is the index of the
// target instruction rather than a byte offset, so instruction lists can be
// edited without recomputing offsets by hand. A target equal to the number
// of instructions denotes the end of the code.
type Instr struct {
	Op  Opcode
	Arg int32
}

// I is shorthand for an instruction literal.
func I(op Opcode, arg ...int32) Instr {
	in := Instr{Op: op}
	if len(arg) > 0 {
		in.Arg = arg[0]
	}
	return in
}

// Decode splits code into instructions.
func Decode(code []byte) ([]Instr, error) {
	var instrs []Instr
	var starts []int
	index := make(map[int]int)
	var jumps []int

	for pos := 0; pos < len(code); {
		op := Opcode(code[pos])
		info, ok := opcodeTable[op]
		if !ok {
			return nil, fmt.Errorf("unit: unknown opcode 0x%02x at %d", byte(op), pos)
		}
		if pos+1+info.OperandBytes > len(code) {
			return nil, fmt.Errorf("unit: truncated %s at %d", info.Name, pos)
		}
		operand := code[pos+1 : pos+1+info.OperandBytes]
		in := Instr{Op: op}
		switch info.OperandBytes {
		case 1:
			in.Arg = int32(operand[0])
		case 2:
			if info.Operand == OperandJump {
				in.Arg = int32(int16(binary.LittleEndian.Uint16(operand)))
				jumps = append(jumps, len(instrs))
			} else {
				in.Arg = int32(binary.LittleEndian.Uint16(operand))
			}
		case 4:
			in.Arg = int32(binary.LittleEndian.Uint32(operand))
		}
		index[pos] = len(instrs)
		starts = append(starts, pos)
		instrs = append(instrs, in)
		pos += 1 + info.OperandBytes
	}
	index[len(code)] = len(instrs)

	for _, j := range jumps {
		target := starts[j] + 3 + int(instrs[j].Arg)
		idx, ok := index[target]
		if !ok {
			return nil, fmt.Errorf("unit: jump at %d targets %d, not an instruction boundary", starts[j], target)
		}
		instrs[j].Arg = int32(idx)
	}
	return instrs, nil
}

// Encode assembles instructions into code.
func Encode(instrs []Instr) ([]byte, error) {
	offsets := make([]int, len(instrs)+1)
	pos := 0
	for i, in := range instrs {
		info, ok := opcodeTable[in.Op]
		if !ok {
			return nil, fmt.Errorf("unit: unknown opcode 0x%02x at instruction %d", byte(in.Op), i)
		}
		offsets[i] = pos
		pos += 1 + info.OperandBytes
	}
	offsets[len(instrs)] = pos

	b := &Builder{bytes: make([]byte, 0, pos)}
	for i, in := range instrs {
		info := opcodeTable[in.Op]
		switch info.Operand {
		case OperandNone:
			b.Emit(in.Op)
		case OperandLocal, OperandCount:
			if in.Arg < 0 || in.Arg > 0xFF {
				return nil, fmt.Errorf("unit: %s operand %d out of range", info.Name, in.Arg)
			}
			b.EmitByte(in.Op, byte(in.Arg))
		case OperandConst, OperandRef:
			if in.Arg < 0 || in.Arg > 0xFFFF {
				return nil, fmt.Errorf("unit: %s operand %d out of range", info.Name, in.Arg)
			}
			b.EmitUint16(in.Op, uint16(in.Arg))
		case OperandInt:
			b.EmitInt32(in.Op, in.Arg)
		case OperandJump:
			if in.Arg < 0 || int(in.Arg) > len(instrs) {
				return nil, fmt.Errorf("unit: %s at instruction %d targets %d", info.Name, i, in.Arg)
			}
			offset := offsets[in.Arg] - (offsets[i] + 3)
			if offset < -32768 || offset > 32767 {
				return nil, fmt.Errorf("unit: %s at instruction %d: offset %d out of range", info.Name, i, offset)
			}
			b.EmitUint16(in.Op, uint16(int16(offset)))
		}
	}
	return b.Bytes(), nil
}

// Rewrite decodes code, passes every instruction to fn and re-encodes what
// fn emits. Jump instructions emitted by fn keep referring to original
// instruction indices; Rewrite remaps them to the first instruction emitted
// for the original target.
func Rewrite(code []byte, fn func(i int, in Instr, emit func(...Instr))) ([]byte, error) {
	instrs, err := Decode(code)
	if err != nil {
		return nil, err
	}
	out := make([]Instr, 0, len(instrs))
	starts := make([]int32, len(instrs)+1)
	var jumps []int
	emit := func(ins ...Instr) {
		for _, in := range ins {
			if in.Op.Info().Operand == OperandJump {
				jumps = append(jumps, len(out))
			}
			out = append(out, in)
		}
	}
	for i, in := range instrs {
		starts[i] = int32(len(out))
		fn(i, in, emit)
	}
	starts[len(instrs)] = int32(len(out))

	for _, j := range jumps {
		target := out[j].Arg
		if target < 0 || int(target) > len(instrs) {
			return nil, fmt.Errorf("unit: rewritten jump targets %d", target)
		}
		out[j].Arg = starts[target]
	}
	return Encode(out)
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble returns a listing of code. When u is non-nil, constant and
// reference operands are resolved against its pools.
func Disassemble(code []byte, u *Unit) string {
	instrs, err := Decode(code)
	if err != nil {
		return "; " + err.Error()
	}
	var sb strings.Builder
	for i, in := range instrs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		info := in.Op.Info()
		fmt.Fprintf(&sb, "%04d  %s", i, info.Name)
		switch info.Operand {
		case OperandNone:
		case OperandJump:
			fmt.Fprintf(&sb, " -> %04d", in.Arg)
		case OperandConst:
			fmt.Fprintf(&sb, " #%d", in.Arg)
			if u != nil && int(in.Arg) < len(u.Consts) {
				fmt.Fprintf(&sb, " (%v)", formatConst(u.Consts[in.Arg]))
			}
		case OperandRef:
			fmt.Fprintf(&sb, " @%d", in.Arg)
			if u != nil && int(in.Arg) < len(u.Refs) {
				r := u.Refs[in.Arg]
				if r.Name == "" {
					fmt.Fprintf(&sb, " %s", r.Owner)
				} else {
					fmt.Fprintf(&sb, " %s.%s%s", r.Owner, r.Name, r.Desc)
				}
			}
		default:
			fmt.Fprintf(&sb, " %d", in.Arg)
		}
	}
	return sb.String()
}

func formatConst(c Const) string {
	if c.Kind == ConstString {
		return fmt.Sprintf("%q", c.Str)
	}
	return fmt.Sprint(c.Value())
}
