package unit

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op           Opcode
		name         string
		operandBytes int
	}{
		{OpNOP, "NOP", 0},
		{OpSWAP, "SWAP", 0},
		{OpPushNull, "PUSH_NULL", 0},
		{OpPushInt, "PUSH_INT", 4},
		{OpPushConst, "PUSH_CONST", 2},
		{OpLoad, "LOAD", 1},
		{OpStore, "STORE", 1},
		{OpJump, "JUMP", 2},
		{OpJumpFalse, "JUMP_FALSE", 2},
		{OpNew, "NEW", 2},
		{OpNewArray, "NEW_ARRAY", 1},
		{OpGetFieldDyn, "GETFIELD_DYN", 2},
		{OpInvokeSpecial, "INVOKESPECIAL", 2},
		{OpReturnValue, "RETURN_VALUE", 0},
	}

	for _, tt := range tests {
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%s: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if info.OperandBytes != tt.operandBytes {
			t.Errorf("%s: OperandBytes = %d, want %d", tt.op, info.OperandBytes, tt.operandBytes)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0xFF)
	if op.Valid() {
		t.Error("0xFF should not be valid")
	}
	if !strings.HasPrefix(op.Info().Name, "UNKNOWN_") {
		t.Errorf("unknown opcode should have UNKNOWN_ prefix, got %q", op.Info().Name)
	}
}

func TestOpcodeClasses(t *testing.T) {
	if !OpInvokeStatic.IsInvoke() || OpGetField.IsInvoke() {
		t.Error("IsInvoke misclassifies opcodes")
	}
	if !OpPutStatic.IsFieldAccess() || OpGetFieldDyn.IsFieldAccess() {
		t.Error("IsFieldAccess misclassifies opcodes")
	}
}

// ---------------------------------------------------------------------------
// Builder tests
// ---------------------------------------------------------------------------

func TestBuilderEmitUint16(t *testing.T) {
	b := NewBuilder()
	b.EmitUint16(OpPushConst, 0x1234)

	bytes := b.Bytes()
	if len(bytes) != 3 {
		t.Fatalf("len = %d, want 3", len(bytes))
	}
	if bytes[1] != 0x34 || bytes[2] != 0x12 {
		t.Errorf("operand bytes = [%02X, %02X], want [34, 12]", bytes[1], bytes[2])
	}
}

func TestBuilderForwardJump(t *testing.T) {
	b := NewBuilder()
	end := b.NewLabel()
	b.EmitByte(OpLoad, 0)
	b.EmitJump(OpJumpFalse, end)
	b.EmitInt32(OpPushInt, 1)
	b.Emit(OpPOP)
	b.Mark(end)
	b.Emit(OpReturn)

	r := NewReader(b.Bytes())
	r.Seek(3)
	offset := r.ReadInt16()
	if target := r.Position() + int(offset); target != 11 {
		t.Errorf("jump target = %d, want 11", target)
	}
}

func TestBuilderBackwardJump(t *testing.T) {
	b := NewBuilder()
	top := b.NewLabel()
	b.Mark(top)
	b.Emit(OpNOP)
	b.EmitJump(OpJump, top)

	r := NewReader(b.Bytes())
	r.Seek(2)
	if offset := r.ReadInt16(); offset != -4 {
		t.Errorf("offset = %d, want -4", offset)
	}
}

func TestMarkTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on double Mark")
		}
	}()
	b := NewBuilder()
	l := b.NewLabel()
	b.Mark(l)
	b.Mark(l)
}

// ---------------------------------------------------------------------------
// Instruction-level tests
// ---------------------------------------------------------------------------

func TestDecodeEncodeJumps(t *testing.T) {
	b := NewBuilder()
	top := b.NewLabel()
	end := b.NewLabel()
	b.Mark(top)
	b.EmitByte(OpLoad, 1)
	b.EmitJump(OpJumpFalse, end)
	b.EmitInt32(OpPushInt, -7)
	b.Emit(OpPOP)
	b.EmitJump(OpJump, top)
	b.Mark(end)
	b.Emit(OpReturn)

	instrs, err := Decode(b.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(instrs) != 6 {
		t.Fatalf("len = %d, want 6", len(instrs))
	}
	if instrs[1].Arg != 5 {
		t.Errorf("JUMP_FALSE target = %d, want 5", instrs[1].Arg)
	}
	if instrs[2].Arg != -7 {
		t.Errorf("PUSH_INT = %d, want -7", instrs[2].Arg)
	}
	if instrs[4].Arg != 0 {
		t.Errorf("JUMP target = %d, want 0", instrs[4].Arg)
	}

	code, err := Encode(instrs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(code) != string(b.Bytes()) {
		t.Errorf("Encode(Decode(code)) differs from code")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	if _, err := Decode([]byte{byte(OpPushConst), 0x01}); err == nil {
		t.Error("expected error for truncated operand")
	}
	if _, err := Decode([]byte{0xEE}); err == nil {
		t.Error("expected error for unknown opcode")
	}
}

func TestDecodeRejectsMisalignedJump(t *testing.T) {
	// JUMP +1 lands inside the PUSH_INT operand.
	code := []byte{byte(OpJump), 1, 0, byte(OpPushInt), 0, 0, 0, 0}
	if _, err := Decode(code); err == nil {
		t.Error("expected error for misaligned jump target")
	}
}

func TestRewriteRemapsJumps(t *testing.T) {
	instrs := []Instr{
		I(OpLoad, 0),
		I(OpJumpFalse, 3),
		I(OpNOP),
		I(OpReturn),
	}
	code, err := Encode(instrs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Expand every NOP into three instructions; the jump must still land on
	// RETURN.
	out, err := Rewrite(code, func(i int, in Instr, emit func(...Instr)) {
		if in.Op == OpNOP {
			emit(I(OpPushNull), I(OpPushNull), I(OpPOP))
			emit(I(OpPOP))
			return
		}
		emit(in)
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	got, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7", len(got))
	}
	if got[1].Op != OpJumpFalse || got[1].Arg != 6 {
		t.Errorf("jump = %v, want JUMP_FALSE -> 6", got[1])
	}
	if got[6].Op != OpReturn {
		t.Errorf("last = %s, want RETURN", got[6].Op)
	}
}

func TestRewriteDropsInstruction(t *testing.T) {
	code, _ := Encode([]Instr{I(OpJump, 2), I(OpNOP), I(OpReturn)})
	out, err := Rewrite(code, func(i int, in Instr, emit func(...Instr)) {
		if in.Op != OpNOP {
			emit(in)
		}
	})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	got, _ := Decode(out)
	if len(got) != 2 || got[0].Arg != 1 {
		t.Errorf("got %v, want jump to instruction 1", got)
	}
}

func TestDisassembleResolvesPools(t *testing.T) {
	u := New("demo/Counter", RootType, AccPublic)
	a := NewAsm(u)
	a.Str("hello")
	a.Invoke(OpInvokeStatic, "demo/Util", "shout", "(Llang/String;)V")
	a.Op(OpReturn)

	text := Disassemble(a.Code(), u)
	for _, want := range []string{`PUSH_CONST #0 ("hello")`, "INVOKESTATIC @0 demo/Util.shout(Llang/String;)V", "0002  RETURN"} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly missing %q:\n%s", want, text)
		}
	}
}
