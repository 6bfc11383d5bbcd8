package translate

import (
	"fmt"

	"katara/internal/ir"
	"katara/internal/liveness"
	"katara/internal/parallelcopy"
	"katara/internal/regalloc"
	"katara/internal/x86"
)

// funcTranslator holds the state threaded through one func's translation:
// the source func and its analyses, the x86.Func being built, and the
// ir-block-number -> x86-block-number mapping every Jmp/Jcc target is
// resolved through.
type funcTranslator struct {
	f     *ir.Func
	info  *liveness.Info
	alloc *regalloc.Allocation
	ctx   ProgramContext

	xf            *x86.Func
	blockMap      map[int]int
	epilogueBlock int
}

func translateFunc(f *ir.Func, a *FuncAnalysis, ctx ProgramContext, xf *x86.Func) error {
	if len(f.Params()) > len(argRegs) {
		return &TooManyParamsError{Func: f.Number(), Count: len(f.Params())}
	}

	t := &funcTranslator{
		f:        f,
		info:     a.Liveness,
		alloc:    a.Allocation,
		ctx:      ctx,
		xf:       xf,
		blockMap: make(map[int]int, f.NumBlocks()),
	}

	prologue := xf.NewBlock()
	for _, b := range f.Blocks() {
		xb := xf.NewBlock()
		t.blockMap[b.Number()] = xb.Number()
	}
	epilogue := xf.NewBlock()
	t.epilogueBlock = epilogue.Number()

	frameSize := alignTo16(a.Allocation.NumStackSlots * 8)
	xf.SetFrameSize(frameSize)
	prologue.AddInstr(&x86.PushInstr{Src: x86.RBP})
	prologue.AddInstr(&x86.MovInstr{Dst: x86.RBP, Src: x86.RSP})
	if frameSize > 0 {
		prologue.AddInstr(&x86.BinaryInstr{Op: x86.Sub, Dst: x86.RSP, Src: x86.Imm{Value: int64(frameSize), Size: x86.Size32}})
	}

	var paramMoves []parallelcopy.Move[x86.Operand]
	for _, p := range f.Params() {
		paramMoves = append(paramMoves, parallelcopy.Move[x86.Operand]{
			Dst: t.computedOperand(p),
			Src: argRegs[p.Number()].WithSize(operandSize(p.Type())),
		})
	}
	for _, instr := range GenerateMovs(paramMoves) {
		prologue.AddInstr(instr)
	}

	for _, b := range f.Blocks() {
		xb, _ := xf.Block(t.blockMap[b.Number()])
		t.translateBlock(b, xb)
	}

	epilogue.AddInstr(&x86.MovInstr{Dst: x86.RSP, Src: x86.RBP})
	epilogue.AddInstr(&x86.PopInstr{Dst: x86.RBP})
	epilogue.AddInstr(&x86.RetInstr{})

	return nil
}

func alignTo16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}

// TooManyParamsError reports a func with more parameters than the System V
// integer argument registers can carry; stack-passed arguments are a
// documented Non-goal.
type TooManyParamsError struct {
	Func  int
	Count int
}

func (e *TooManyParamsError) Error() string {
	return fmt.Sprintf("translate: func %d has %d params, more than the %d argument registers supported", e.Func, e.Count, len(argRegs))
}

func (t *funcTranslator) translateBlock(b *ir.Block, xb *x86.Block) {
	instrs := b.Instrs()
	for idx, instr := range instrs {
		if term, ok := instr.(ir.Terminator); ok {
			t.translateTerminator(xb, term)
			continue
		}
		t.translateInstr(xb, b.Number(), idx, instr)
	}
}

func (t *funcTranslator) translateTerminator(xb *x86.Block, term ir.Terminator) {
	switch i := term.(type) {
	case *ir.JumpInstr:
		xb.AddInstr(&x86.JmpInstr{Block: t.blockMap[i.Target]})
	case *ir.JumpCondInstr:
		cond, done := t.ensureReg(xb, t.operand(i.Cond), x86.Size8)
		xb.AddInstr(&x86.BinaryInstr{Op: x86.Test, Dst: cond, Src: cond})
		done()
		xb.AddInstr(&x86.JccInstr{Cond: x86.CondNE, Block: t.blockMap[i.TrueTarget]})
		xb.AddInstr(&x86.JmpInstr{Block: t.blockMap[i.FalseTarget]})
	case *ir.ReturnInstr:
		if len(i.Args) > len(resultRegs) {
			panic("translate: return has more values than available result registers")
		}
		var moves []parallelcopy.Move[x86.Operand]
		for idx, a := range i.Args {
			moves = append(moves, parallelcopy.Move[x86.Operand]{
				Dst: resultRegs[idx].WithSize(operandSize(a.Type())),
				Src: t.operand(a),
			})
		}
		for _, instr := range GenerateMovs(moves) {
			xb.AddInstr(instr)
		}
		xb.AddInstr(&x86.JmpInstr{Block: t.epilogueBlock})
	default:
		panic("translate: unknown terminator")
	}
}

// --- operand helpers ---

func (t *funcTranslator) computedOperand(v *ir.Value) x86.Operand {
	return TranslateComputed(t.alloc, v.Number(), v.Type())
}

func (t *funcTranslator) operand(v *ir.Value) x86.Operand {
	if v.IsComputed() {
		return t.computedOperand(v)
	}
	return constOperand(v)
}

func (t *funcTranslator) emitMov(xb *x86.Block, dst, src x86.Operand) {
	if dst == src {
		return
	}
	xb.AddInstr(&x86.MovInstr{Dst: dst, Src: src})
}

// freshScratch pushes scratchReg and returns it at the given width plus a
// pop func; the caller must have consumed the value it leaves there before
// calling the returned func.
func (t *funcTranslator) freshScratch(xb *x86.Block, size x86.Size) (x86.Reg, func()) {
	xb.AddInstr(&x86.PushInstr{Src: scratchReg})
	return scratchReg.WithSize(size), func() { xb.AddInstr(&x86.PopInstr{Dst: scratchReg}) }
}

// ensureReg returns op itself if it is already a register (at the given
// width, no push/pop needed), or stages it into scratchReg otherwise.
func (t *funcTranslator) ensureReg(xb *x86.Block, op x86.Operand, size x86.Size) (x86.Reg, func()) {
	if r, ok := op.(x86.Reg); ok {
		return r.WithSize(size), func() {}
	}
	scratch, done := t.freshScratch(xb, size)
	xb.AddInstr(&x86.MovInstr{Dst: scratch, Src: op})
	return scratch, done
}

// materializeForStore returns an operand safe to use as a Mov's source when
// the destination is known to be memory: memory sources are staged through
// scratch (mem,mem isn't encodable), and so are full 64-bit immediates
// (mov r/m64, imm64 doesn't exist).
func (t *funcTranslator) materializeForStore(xb *x86.Block, val x86.Operand, size x86.Size) (x86.Operand, func()) {
	switch v := val.(type) {
	case x86.Mem:
		scratch, done := t.freshScratch(xb, size)
		xb.AddInstr(&x86.MovInstr{Dst: scratch, Src: v})
		return scratch, done
	case x86.Imm:
		if v.Size == x86.Size64 {
			scratch, done := t.freshScratch(xb, size)
			xb.AddInstr(&x86.MovInstr{Dst: scratch, Src: v})
			return scratch, done
		}
	}
	return val, func() {}
}

// emitBinaryInPlace emits "op dst, src", staging src through scratch first
// if both dst and src are memory (no x86 ALU form takes two memory
// operands).
func (t *funcTranslator) emitBinaryInPlace(xb *x86.Block, op x86.BinaryOp, dst, src x86.Operand) {
	_, dstMem := dst.(x86.Mem)
	_, srcMem := src.(x86.Mem)
	if dstMem && srcMem {
		scratch, done := t.freshScratch(xb, sizeOfOperand(src))
		xb.AddInstr(&x86.MovInstr{Dst: scratch, Src: src})
		xb.AddInstr(&x86.BinaryInstr{Op: op, Dst: dst, Src: scratch})
		done()
		return
	}
	xb.AddInstr(&x86.BinaryInstr{Op: op, Dst: dst, Src: src})
}
