// Package x86 models the x86-64 machine-level program: operands,
// instructions, an Intel-SDM-shaped encoder, and a Linker
// that resolves the relocations the encoder leaves behind.
package x86

import "fmt"

// Size is an operand width in bits.
type Size int

const (
	Size8  Size = 8
	Size16 Size = 16
	Size32 Size = 32
	Size64 Size = 64
)

// Bytes returns the operand's width in bytes.
func (s Size) Bytes() int { return int(s) / 8 }

// Operand is satisfied by Imm, Reg, and Mem.
type Operand interface {
	operandSize() Size
	String() string
}

// Reg names one of the 16 general-purpose registers by its x86-64 encoding
// number (0=rax, 1=rcx, 2=rdx, 3=rbx, 4=rsp, 5=rbp, 6=rsi, 7=rdi, 8..15 =
// r8..r15) at a given access width.
type Reg struct {
	Num  int
	Size Size
}

func (r Reg) operandSize() Size { return r.Size }

var reg64Names = [16]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
var reg32Names = [16]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi", "r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
var reg16Names = [16]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di", "r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
var reg8Names = [16]string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil", "r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}

func (r Reg) String() string {
	switch r.Size {
	case Size64:
		return reg64Names[r.Num]
	case Size32:
		return reg32Names[r.Num]
	case Size16:
		return reg16Names[r.Num]
	default:
		return reg8Names[r.Num]
	}
}

// WithSize returns r reinterpreted at a different access width, the same
// way the translator narrows a color's 64-bit register to the width an
// instruction's operands demand.
func (r Reg) WithSize(s Size) Reg { return Reg{Num: r.Num, Size: s} }

// The 16 GPRs in the order the register allocator fixes as colors 0..15.
var (
	RAX = Reg{Num: 0, Size: Size64}
	RCX = Reg{Num: 1, Size: Size64}
	RDX = Reg{Num: 2, Size: Size64}
	RBX = Reg{Num: 3, Size: Size64}
	RSP = Reg{Num: 4, Size: Size64}
	RBP = Reg{Num: 5, Size: Size64}
	RSI = Reg{Num: 6, Size: Size64}
	RDI = Reg{Num: 7, Size: Size64}
	R8  = Reg{Num: 8, Size: Size64}
	R9  = Reg{Num: 9, Size: Size64}
	R10 = Reg{Num: 10, Size: Size64}
	R11 = Reg{Num: 11, Size: Size64}
	R12 = Reg{Num: 12, Size: Size64}
	R13 = Reg{Num: 13, Size: Size64}
	R14 = Reg{Num: 14, Size: Size64}
	R15 = Reg{Num: 15, Size: Size64}
)

// ColorOrder is the fixed color-to-register mapping used by the allocator.
var ColorOrder = [16]Reg{RAX, RCX, RDX, RBX, RSP, RBP, RSI, RDI, R8, R9, R10, R11, R12, R13, R14, R15}

// Imm is an immediate operand.
type Imm struct {
	Value int64
	Size  Size
}

func (i Imm) operandSize() Size { return i.Size }
func (i Imm) String() string    { return fmt.Sprintf("%d", i.Value) }

// Mem is a memory operand: [Base + Index*Scale + Disp].
type Mem struct {
	Base  Reg
	Index *Reg
	Scale int // 1, 2, 4, or 8; meaningless if Index is nil
	Disp  int32
	Size  Size
}

func (m Mem) operandSize() Size { return m.Size }

func (m Mem) String() string {
	s := fmt.Sprintf("[%s", m.Base.WithSize(Size64))
	if m.Index != nil {
		s += fmt.Sprintf("+%s*%d", m.Index.WithSize(Size64), m.Scale)
	}
	if m.Disp != 0 {
		if m.Disp > 0 {
			s += fmt.Sprintf("+%d", m.Disp)
		} else {
			s += fmt.Sprintf("-%d", -m.Disp)
		}
	}
	return s + "]"
}

// BasePointerSlot is the memory operand for a stack slot at disp bytes from
// rbp, the layout internal/regalloc's spill colors and internal/translate's
// prologue agree on (negative disp, growing down from rbp).
func BasePointerSlot(disp int32, size Size) Mem {
	return Mem{Base: RBP, Disp: disp, Size: size}
}
