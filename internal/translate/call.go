package translate

import (
	"katara/internal/ir"
	"katara/internal/parallelcopy"
	"katara/internal/x86"
)

// spillClobbered saves (via Push, in a fixed order) every register in regs
// that currently holds a value still live after the instruction at
// (block, index), other than the instruction's own results -- the
// registers regalloc never knew a Mul/Div/variable-shift/Call/Syscall
// hard-wires, so its coloring can (and does) leave unrelated live values
// sitting in them. The returned func pops them back in reverse order once
// the hard-wired operation's result has already been moved out.
func (t *funcTranslator) spillClobbered(xb *x86.Block, block, index int, results map[int]bool, regs []x86.Reg) func() {
	live := t.info.LiveAfterInstr(block, index)
	var saved []x86.Reg
	for v := range live {
		if results[v] {
			continue
		}
		color, ok := t.alloc.Colors[v]
		if !ok || !color.IsRegister() {
			continue
		}
		held := x86.ColorOrder[int(color)]
		for _, r := range regs {
			if r.Num == held.Num {
				saved = append(saved, held)
				break
			}
		}
	}
	for _, r := range saved {
		xb.AddInstr(&x86.PushInstr{Src: r})
	}
	return func() {
		for i := len(saved) - 1; i >= 0; i-- {
			xb.AddInstr(&x86.PopInstr{Dst: saved[i]})
		}
	}
}

// emitCall lowers a direct or indirect call: spill whatever caller-saved
// registers are still needed afterward, shuffle arguments into argRegs via
// GenerateMovs, emit the Call, then move results out of resultRegs.
// internal/translate's Malloc/Free lowering reuses this same path against
// a synthetic ir.ConstFunc callee for the runtime allocator entry points.
func (t *funcTranslator) emitCall(xb *x86.Block, block, index int, callee *ir.Value, args, results []*ir.Value) {
	if len(args) > len(argRegs) {
		panic("translate: call has more arguments than available argument registers")
	}
	if len(results) > len(resultRegs) {
		panic("translate: call has more results than available result registers")
	}

	resultNums := make(map[int]bool, len(results))
	for _, r := range results {
		if r.IsComputed() {
			resultNums[r.Number()] = true
		}
	}
	restore := t.spillClobbered(xb, block, index, resultNums, callerSaved)

	var moves []parallelcopy.Move[x86.Operand]
	for i, a := range args {
		moves = append(moves, parallelcopy.Move[x86.Operand]{
			Dst: argRegs[i].WithSize(operandSize(a.Type())),
			Src: t.operand(a),
		})
	}
	for _, instr := range GenerateMovs(moves) {
		xb.AddInstr(instr)
	}

	if callee.Kind() == ir.ConstFuncKind {
		xb.AddInstr(&x86.CallInstr{FuncNum: callee.FuncNum()})
	} else {
		reg, done := t.ensureReg(xb, t.operand(callee), x86.Size64)
		xb.AddInstr(&x86.CallInstr{FuncNum: -1, Operand: reg})
		done()
	}

	for i, r := range results {
		t.emitMov(xb, t.computedOperand(r), resultRegs[i].WithSize(operandSize(r.Type())))
	}
	restore()
}
