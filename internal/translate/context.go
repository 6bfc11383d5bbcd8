// Package translate lowers a lowered, phi-resolved, register-allocated
// katara program into the x86-64 machine model of internal/x86. It is the
// last compiler stage before internal/x86's encoder and linker turn the
// result into bytes.
package translate

import (
	"fmt"

	"katara/internal/ir"
	"katara/internal/liveness"
	"katara/internal/regalloc"
	"katara/internal/x86"
)

// ProgramContext names the two runtime entry points the shared-pointer
// lowering's MallocInstr/FreeInstr ultimately call through: func numbers
// already declared in the same ir.Program, implementing the host's
// allocator. A freestanding (syscall-only) program supplies its own
// allocator func; there is no implicit libc dependency.
type ProgramContext struct {
	MallocFunc int // callee(size i64) (ptr)
	FreeFunc   int // callee(ptr) ()
}

// FuncAnalysis bundles the three analyses internal/translate needs for one
// func, computed by the driver ahead of translation: liveness (section
// 4.5), the interference graph built from it, and the coloring
// internal/regalloc derived from that graph.
type FuncAnalysis struct {
	Liveness     *liveness.Info
	Interference *liveness.Interference
	Allocation   *regalloc.Allocation
}

// scratchReg is the one GPR the translator reserves for staging operand
// forms no single x86 instruction can express directly (mem-to-mem moves,
// 64-bit immediates into memory, a non-register divisor/shift-count). It is
// not actually reserved from the allocator's point of view -- regalloc may
// freely color a live value into it -- so every use of it is bracketed by a
// Push/Pop, so its prior value is preserved across the move sequence.
var scratchReg = x86.R11

// argRegs is the System V AMD64 integer argument register order, the
// convention internal/translate's func prologues and call sites agree on.
var argRegs = [6]x86.Reg{x86.RDI, x86.RSI, x86.RDX, x86.RCX, x86.R8, x86.R9}

// resultRegs mirrors argRegs for return values: katara funcs return at most
// two atomic-width results, in rax then rdx.
var resultRegs = [2]x86.Reg{x86.RAX, x86.RDX}

// callerSaved is every register a callee is free to clobber under the
// System V convention; a call site must save and restore any of these that
// still holds a value live across the call.
var callerSaved = []x86.Reg{
	x86.RAX, x86.RCX, x86.RDX, x86.RSI, x86.RDI,
	x86.R8, x86.R9, x86.R10, x86.R11,
}

// Translate lowers every func in prog into an x86.Program, given each func's
// precomputed analysis. The returned program's func numbers match prog's.
func Translate(prog *ir.Program, analyses map[int]*FuncAnalysis, ctx ProgramContext) (*x86.Program, error) {
	out := x86.NewProgram()
	for _, f := range prog.Funcs() {
		a, ok := analyses[f.Number()]
		if !ok {
			return nil, &MissingAnalysisError{Func: f.Number()}
		}
		xf := out.DeclareFunc(f.Number(), f.Name())
		if err := translateFunc(f, a, ctx, xf); err != nil {
			return nil, err
		}
	}
	if num, ok := prog.EntryFunc(); ok {
		out.SetEntryFunc(num)
	}
	return out, nil
}

// MissingAnalysisError reports a func the driver forgot to analyze before
// calling Translate.
type MissingAnalysisError struct{ Func int }

func (e *MissingAnalysisError) Error() string {
	return fmt.Sprintf("translate: no liveness/interference/allocation recorded for func %d", e.Func)
}
