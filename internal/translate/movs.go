package translate

import (
	"katara/internal/parallelcopy"
	"katara/internal/x86"
)

// GenerateMovs serializes a set of simultaneous operand-to-operand moves
// (a call's argument shuffle, a func's incoming-parameter placement, a
// return's result placement) into a concrete x86 instruction sequence,
// reusing internal/parallelcopy's dependency-graph resolver -- the same
// engine internal/phi uses to resolve phi instructions, generalized here
// to arbitrary x86 operands instead of IR value numbers.
func GenerateMovs(moves []parallelcopy.Move[x86.Operand]) []x86.Instr {
	e := &movEmitter{}
	parallelcopy.Resolve(moves, e, e)
	if !e.usedScratch {
		return e.instrs
	}
	out := make([]x86.Instr, 0, len(e.instrs)+2)
	out = append(out, &x86.PushInstr{Src: scratchReg})
	out = append(out, e.instrs...)
	out = append(out, &x86.PopInstr{Dst: scratchReg})
	return out
}

type movEmitter struct {
	instrs      []x86.Instr
	usedScratch bool
}

// sizeOfOperand reads an operand's width from its concrete type's exported
// Size field -- x86.Operand's own accessor is unexported to this package,
// so a type switch stands in for it.
func sizeOfOperand(op x86.Operand) x86.Size {
	switch v := op.(type) {
	case x86.Reg:
		return v.Size
	case x86.Mem:
		return v.Size
	case x86.Imm:
		return v.Size
	default:
		return x86.Size64
	}
}

func (e *movEmitter) Copy(dst, src x86.Operand) {
	// NewScratch hands out the bare scratchReg with no size opinion; size
	// it to whichever side of this copy it's standing in for.
	if r, ok := dst.(x86.Reg); ok && r.Num == scratchReg.Num {
		dst = r.WithSize(sizeOfOperand(src))
	}
	if r, ok := src.(x86.Reg); ok && r.Num == scratchReg.Num {
		src = r.WithSize(sizeOfOperand(dst))
	}

	dstMem, dstIsMem := dst.(x86.Mem)
	_, srcIsMem := src.(x86.Mem)
	if dstIsMem && srcIsMem {
		e.usedScratch = true
		scratch := scratchReg.WithSize(dstMem.Size)
		e.instrs = append(e.instrs, &x86.MovInstr{Dst: scratch, Src: src})
		e.instrs = append(e.instrs, &x86.MovInstr{Dst: dst, Src: scratch})
		return
	}
	if imm, ok := src.(x86.Imm); ok && dstIsMem && imm.Size == x86.Size64 {
		// mov r/m64, imm64 does not exist; stage through a register the
		// same way a 64-bit immediate reaches any other memory operand.
		e.usedScratch = true
		scratch := scratchReg.WithSize(x86.Size64)
		e.instrs = append(e.instrs, &x86.MovInstr{Dst: scratch, Src: src})
		e.instrs = append(e.instrs, &x86.MovInstr{Dst: dst, Src: scratch})
		return
	}
	e.instrs = append(e.instrs, &x86.MovInstr{Dst: dst, Src: src})
}

// TryBreakCycle resolves a two-location register-only cycle with a single
// Xchg. Longer all-register cycles fall back to the scratch-based break
// below; the repeated-Xchg generalization the real algorithm allows is left
// on the table as a documented simplification.
func (e *movEmitter) TryBreakCycle(cycle []parallelcopy.Move[x86.Operand]) bool {
	if len(cycle) != 2 {
		return false
	}
	a, aOk := cycle[0].Dst.(x86.Reg)
	b, bOk := cycle[1].Dst.(x86.Reg)
	if !aOk || !bOk {
		return false
	}
	e.instrs = append(e.instrs, &x86.XchgInstr{A: a, B: b})
	return true
}

func (e *movEmitter) NewScratch() x86.Operand {
	e.usedScratch = true
	return scratchReg
}
