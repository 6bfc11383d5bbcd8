package x86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeOne(t *testing.T, instr Instr) []byte {
	t.Helper()
	f := NewFunc(0, "t")
	b := f.NewBlock()
	b.AddInstr(instr)
	ef := EncodeFunc(f)
	require.Empty(t, ef.Relocs)
	return ef.Code
}

func TestEncodeMovRegReg(t *testing.T) {
	// mov rax, rcx
	code := encodeOne(t, &MovInstr{Dst: RAX, Src: RCX})
	assert.Equal(t, []byte{0x48, 0x89, 0xC8}, code)
}

func TestEncodeMovImm64ToReg(t *testing.T) {
	// mov rax, 5
	code := encodeOne(t, &MovInstr{Dst: RAX, Src: Imm{Value: 5, Size: Size64}})
	assert.Equal(t, []byte{0x48, 0xB8, 5, 0, 0, 0, 0, 0, 0, 0}, code)
}

func TestEncodePushPopReg(t *testing.T) {
	assert.Equal(t, []byte{0x50}, encodeOne(t, &PushInstr{Src: RAX}))
	assert.Equal(t, []byte{0x58}, encodeOne(t, &PopInstr{Dst: RAX}))
	// extended registers (r8..r15) need a REX.B bit even for push/pop
	assert.Equal(t, []byte{0x41, 0x50}, encodeOne(t, &PushInstr{Src: R8}))
}

func TestEncodeAddRegReg(t *testing.T) {
	// add rax, rbx
	code := encodeOne(t, &BinaryInstr{Op: Add, Dst: RAX, Src: RBX})
	assert.Equal(t, []byte{0x48, 0x01, 0xD8}, code)
}

func TestEncodeCmpRegImm8(t *testing.T) {
	// cmp rax, 1 -- fits the imm8 sign-extended form, so opcode 0x83
	code := encodeOne(t, &BinaryInstr{Op: Cmp, Dst: RAX, Src: Imm{Value: 1, Size: Size64}})
	assert.Equal(t, []byte{0x48, 0x83, 0xF8, 0x01}, code)
}

func TestEncodeRetAndSyscall(t *testing.T) {
	assert.Equal(t, []byte{0xC3}, encodeOne(t, &RetInstr{}))
	assert.Equal(t, []byte{0x0F, 0x05}, encodeOne(t, &SyscallInstr{}))
}

func TestEncodeXchgRegReg(t *testing.T) {
	code := encodeOne(t, &XchgInstr{A: RAX, B: RBX})
	assert.Equal(t, []byte{0x48, 0x87, 0xD8}, code)
}

func TestLinkResolvesBlockRelativeJump(t *testing.T) {
	prog := NewProgram()
	f := prog.DeclareFunc(0, "loop")
	entry := f.NewBlock()
	target := f.NewBlock()
	entry.AddInstr(&JmpInstr{Block: target.Number()})
	target.AddInstr(&RetInstr{})

	result, err := Link(prog)
	require.NoError(t, err)

	// jmp rel32 is 5 bytes (E9 + 4-byte displacement); the single ret
	// follows immediately, so the jump's displacement must be exactly 0.
	assert.Equal(t, byte(0xE9), result.Code[0])
	assert.Equal(t, []byte{0, 0, 0, 0}, result.Code[1:5])
	assert.Equal(t, byte(0xC3), result.Code[5])
}

func TestLinkResolvesFuncCallAcrossFuncs(t *testing.T) {
	prog := NewProgram()
	callee := prog.DeclareFunc(1, "callee")
	calleeEntry := callee.NewBlock()
	calleeEntry.AddInstr(&RetInstr{})

	caller := prog.DeclareFunc(0, "caller")
	callerEntry := caller.NewBlock()
	callerEntry.AddInstr(&CallInstr{FuncNum: callee.Number()})
	callerEntry.AddInstr(&RetInstr{})

	result, err := Link(prog)
	require.NoError(t, err)

	// callee is declared (and so laid out) first: a single `ret` at
	// offset 0. caller follows at offset 1: `call rel32; ret`.
	require.Equal(t, 0, result.FuncOffsets[callee.Number()])
	require.Equal(t, 1, result.FuncOffsets[caller.Number()])

	callerOff := result.FuncOffsets[caller.Number()]
	assert.Equal(t, byte(0xE8), result.Code[callerOff])
	// displacement is relative to the byte after the 4-byte field (offset
	// 6), landing back at the callee's offset 0: 0 - 6 = -6.
	assert.Equal(t, []byte{0xFA, 0xFF, 0xFF, 0xFF}, result.Code[callerOff+1:callerOff+5])
}

func TestOperandStrings(t *testing.T) {
	assert.Equal(t, "rax", RAX.String())
	assert.Equal(t, "eax", RAX.WithSize(Size32).String())
	assert.Equal(t, "r8", R8.String())
	mem := BasePointerSlot(-16, Size64)
	assert.Equal(t, "[rbp-16]", mem.String())
}
