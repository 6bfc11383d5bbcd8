package translate

import (
	"katara/internal/atomics"
	"katara/internal/ir"
	"katara/internal/parallelcopy"
	"katara/internal/x86"
)

// syscallArgRegs is the Linux x86-64 syscall argument register order --
// distinct from argRegs (the System V call convention) in its fourth slot:
// a syscall takes its 4th argument in r10, since rcx is destroyed by the
// syscall instruction itself (it holds the return address for sysret).
var syscallArgRegs = [6]x86.Reg{x86.RDI, x86.RSI, x86.RDX, x86.R10, x86.R8, x86.R9}

// syscallClobbered is the register set the syscall instruction itself
// destroys, independent of whatever the kernel handler does: rax holds the
// result, rcx and r11 are used by the sysret half of the instruction.
var syscallClobbered = []x86.Reg{x86.RAX, x86.RCX, x86.R11}

func (t *funcTranslator) translateInstr(xb *x86.Block, block, index int, instr ir.Instr) {
	switch i := instr.(type) {
	case *ir.MovInstr:
		t.storeMov(xb, t.computedOperand(i.Result), t.operand(i.Src))

	case *ir.ConversionInstr:
		t.emitConversion(xb, i)

	case *ir.BoolNotInstr:
		dst := t.computedOperand(i.Result)
		t.storeMov(xb, dst, t.operand(i.Operand))
		xb.AddInstr(&x86.BinaryInstr{Op: x86.Xor, Dst: dst, Src: x86.Imm{Value: 1, Size: x86.Size8}})

	case *ir.BoolBinaryInstr:
		t.emitBoolBinary(xb, i)

	case *ir.IntUnaryInstr:
		dst := t.computedOperand(i.Result)
		t.storeMov(xb, dst, t.operand(i.Operand))
		op := x86.Neg
		if i.Op == atomics.IntNot {
			op = x86.Not
		}
		xb.AddInstr(&x86.UnaryInstr{Op: op, Dst: dst})

	case *ir.IntCompareInstr:
		dst := t.computedOperand(i.Result)
		size := operandSize(i.X.Type())
		cond := condFor(i.Op, isSignedIntType(i.X.Type()))
		t.emitCompareToDst(xb, dst, size, t.operand(i.X), t.operand(i.Y), cond)

	case *ir.IntBinaryInstr:
		t.emitIntBinary(xb, block, index, i)

	case *ir.IntShiftInstr:
		t.emitIntShift(xb, block, index, i)

	case *ir.PointerOffsetInstr:
		t.emitPointerOffset(xb, i)

	case *ir.NilTestInstr:
		ptrReg, done := t.ensureReg(xb, t.operand(i.Pointer), x86.Size64)
		xb.AddInstr(&x86.BinaryInstr{Op: x86.Test, Dst: ptrReg, Src: ptrReg})
		done()
		xb.AddInstr(&x86.SetccInstr{Cond: x86.CondE, Dst: t.computedOperand(i.Result)})

	case *ir.MallocInstr:
		t.emitCall(xb, block, index, ir.ConstFunc(t.ctx.MallocFunc), []*ir.Value{i.Size}, []*ir.Value{i.Result})

	case *ir.FreeInstr:
		t.emitCall(xb, block, index, ir.ConstFunc(t.ctx.FreeFunc), []*ir.Value{i.Address}, nil)

	case *ir.LoadInstr:
		t.storeMov(xb, t.computedOperand(i.Result), t.loadAddress(xb, i.Address, operandSize(i.Result.Type())))

	case *ir.StoreInstr:
		t.storeMov(xb, t.loadAddress(xb, i.Address, operandSize(i.Value.Type())), t.operand(i.Value))

	case *ir.SyscallInstr:
		t.emitSyscall(xb, block, index, i)

	case *ir.CallInstr:
		t.emitCall(xb, block, index, i.Callee, i.Args, i.Results)

	default:
		panic("translate: unhandled instruction kind")
	}
}

// storeMov emits "mov dst, src", staging src through scratch first when dst
// is memory and src is itself memory or a 64-bit immediate -- forms no x86
// Mov can encode directly.
func (t *funcTranslator) storeMov(xb *x86.Block, dst, src x86.Operand) {
	if dst == src {
		return
	}
	if _, isMem := dst.(x86.Mem); isMem {
		staged, done := t.materializeForStore(xb, src, sizeOfOperand(dst))
		xb.AddInstr(&x86.MovInstr{Dst: dst, Src: staged})
		done()
		return
	}
	xb.AddInstr(&x86.MovInstr{Dst: dst, Src: src})
}

// loadAddress returns the Mem operand denoting *address: katara's IR has no
// pointer arithmetic baked into Load/Store directly, so the pointer value
// itself must first be materialized into a register to serve as a Mem's
// base.
func (t *funcTranslator) loadAddress(xb *x86.Block, address *ir.Value, size x86.Size) x86.Mem {
	reg, _ := t.ensureReg(xb, t.operand(address), x86.Size64)
	return x86.Mem{Base: reg, Size: size}
}

// condFor maps a comparison operator plus the operands' signedness to the
// x86 condition code that tests the same relation after a Cmp.
func condFor(op atomics.IntCompareOp, signed bool) x86.Cond {
	switch op {
	case atomics.CmpEq:
		return x86.CondE
	case atomics.CmpNeq:
		return x86.CondNE
	case atomics.CmpLss:
		if signed {
			return x86.CondL
		}
		return x86.CondB
	case atomics.CmpLeq:
		if signed {
			return x86.CondLE
		}
		return x86.CondBE
	case atomics.CmpGeq:
		if signed {
			return x86.CondGE
		}
		return x86.CondAE
	case atomics.CmpGtr:
		if signed {
			return x86.CondG
		}
		return x86.CondA
	default:
		panic("translate: unknown IntCompareOp")
	}
}

// emitCmp emits "cmp xOp, yOp", staging whichever operand the hardware form
// can't accept directly: an immediate dst position (cmp has no imm,x form)
// or two memory operands at once.
func (t *funcTranslator) emitCmp(xb *x86.Block, size x86.Size, xOp, yOp x86.Operand) {
	var done func()
	if _, ok := xOp.(x86.Imm); ok {
		r, d := t.freshScratch(xb, size)
		xb.AddInstr(&x86.MovInstr{Dst: r, Src: xOp})
		xOp, done = r, d
	} else if _, xMem := xOp.(x86.Mem); xMem {
		if _, yMem := yOp.(x86.Mem); yMem {
			r, d := t.freshScratch(xb, size)
			xb.AddInstr(&x86.MovInstr{Dst: r, Src: yOp})
			yOp, done = r, d
		}
	}
	xb.AddInstr(&x86.BinaryInstr{Op: x86.Cmp, Dst: xOp, Src: yOp})
	if done != nil {
		done()
	}
}

func (t *funcTranslator) emitCompareToDst(xb *x86.Block, dst x86.Operand, size x86.Size, xOp, yOp x86.Operand, cond x86.Cond) {
	t.emitCmp(xb, size, xOp, yOp)
	xb.AddInstr(&x86.SetccInstr{Cond: cond, Dst: dst})
}

func (t *funcTranslator) emitBoolBinary(xb *x86.Block, i *ir.BoolBinaryInstr) {
	dst := t.computedOperand(i.Result)
	switch i.Op {
	case atomics.BoolEq:
		t.emitCompareToDst(xb, dst, x86.Size8, t.operand(i.X), t.operand(i.Y), x86.CondE)
	case atomics.BoolNeq:
		t.emitCompareToDst(xb, dst, x86.Size8, t.operand(i.X), t.operand(i.Y), x86.CondNE)
	case atomics.BoolAnd:
		t.storeMov(xb, dst, t.operand(i.X))
		t.emitBinaryInPlace(xb, x86.And, dst, t.operand(i.Y))
	case atomics.BoolOr:
		t.storeMov(xb, dst, t.operand(i.X))
		t.emitBinaryInPlace(xb, x86.Or, dst, t.operand(i.Y))
	default:
		panic("translate: unknown BoolBinaryOp")
	}
}

// simpleBinaryOps covers the IntBinaryInstr operators with a single
// matching x86 ALU instruction; Mul, Div, Rem and AndNot each need their
// own lowering and are handled outside this table.
var simpleBinaryOps = map[atomics.IntBinaryOp]x86.BinaryOp{
	atomics.IntAdd: x86.Add,
	atomics.IntSub: x86.Sub,
	atomics.IntAnd: x86.And,
	atomics.IntOr:  x86.Or,
	atomics.IntXor: x86.Xor,
}

func (t *funcTranslator) emitIntBinary(xb *x86.Block, block, index int, i *ir.IntBinaryInstr) {
	if i.Op == atomics.IntMul || i.Op == atomics.IntDiv || i.Op == atomics.IntRem {
		t.emitMulDivRem(xb, block, index, i.Result, i.Op, i.X, i.Y)
		return
	}
	dst := t.computedOperand(i.Result)
	if i.Op == atomics.IntAndNot {
		size := operandSize(i.Result.Type())
		tmp, done := t.freshScratch(xb, size)
		xb.AddInstr(&x86.MovInstr{Dst: tmp, Src: t.operand(i.Y)})
		xb.AddInstr(&x86.UnaryInstr{Op: x86.Not, Dst: tmp})
		t.emitBinaryInPlace(xb, x86.And, tmp, t.operand(i.X))
		t.storeMov(xb, dst, tmp)
		done()
		return
	}
	op, ok := simpleBinaryOps[i.Op]
	if !ok {
		panic("translate: unknown IntBinaryOp")
	}
	t.storeMov(xb, dst, t.operand(i.X))
	t.emitBinaryInPlace(xb, op, dst, t.operand(i.Y))
}

// emitMulDivRem lowers Mul/Div/Rem through the one-operand mul/div forms,
// which hard-wire rax:rdx as the other input/output -- a hazard
// internal/regalloc's interference graph never modeled, so any other live
// value regalloc happened to color into rax or rdx is saved around the
// operation by spillClobbered.
func (t *funcTranslator) emitMulDivRem(xb *x86.Block, block, index int, result *ir.Value, op atomics.IntBinaryOp, x, y *ir.Value) {
	size := operandSize(result.Type())
	signed := isSignedIntType(x.Type())
	resultNums := map[int]bool{result.Number(): true}
	restore := t.spillClobbered(xb, block, index, resultNums, []x86.Reg{x86.RAX, x86.RDX})

	// Y must be read before rax/rdx are overwritten: a Y operand that
	// happens to already sit in rax or rdx is copied out first.
	yOp := t.operand(y)
	var yDone func()
	switch v := yOp.(type) {
	case x86.Imm:
		r, d := t.freshScratch(xb, size)
		xb.AddInstr(&x86.MovInstr{Dst: r, Src: v})
		yOp, yDone = r, d
	case x86.Reg:
		if v.Num == x86.RAX.Num || v.Num == x86.RDX.Num {
			r, d := t.freshScratch(xb, size)
			xb.AddInstr(&x86.MovInstr{Dst: r, Src: v})
			yOp, yDone = r, d
		}
	}
	if yDone == nil {
		yDone = func() {}
	}

	t.emitMov(xb, x86.RAX.WithSize(size), t.operand(x))

	if op == atomics.IntMul {
		xb.AddInstr(&x86.MulInstr{Src: yOp, Signed: signed})
	} else {
		// The x86 model has no cqo/cdq; emulate sign/zero-extending rax
		// into rdx:rax by hand before dividing.
		if signed {
			xb.AddInstr(&x86.MovInstr{Dst: x86.RDX.WithSize(size), Src: x86.RAX.WithSize(size)})
			xb.AddInstr(&x86.ShiftInstr{Op: x86.Sar, Dst: x86.RDX.WithSize(size), Count: x86.Imm{Value: int64(size.Bytes()*8 - 1), Size: x86.Size8}})
		} else {
			xb.AddInstr(&x86.BinaryInstr{Op: x86.Xor, Dst: x86.RDX.WithSize(size), Src: x86.RDX.WithSize(size)})
		}
		xb.AddInstr(&x86.DivInstr{Src: yOp, Signed: signed})
	}
	yDone()

	resultReg := x86.RAX.WithSize(size)
	if op == atomics.IntRem {
		resultReg = x86.RDX.WithSize(size)
	}
	t.storeMov(xb, t.computedOperand(result), resultReg)
	restore()
}

func (t *funcTranslator) emitIntShift(xb *x86.Block, block, index int, i *ir.IntShiftInstr) {
	dst := t.computedOperand(i.Result)
	size := operandSize(i.Result.Type())
	shiftOp := x86.Shl
	if i.Op == atomics.ShiftRight {
		if isSignedIntType(i.X.Type()) {
			shiftOp = x86.Sar
		} else {
			shiftOp = x86.Shr
		}
	}

	yOp := t.operand(i.Y)
	if imm, ok := yOp.(x86.Imm); ok {
		t.storeMov(xb, dst, t.operand(i.X))
		xb.AddInstr(&x86.ShiftInstr{Op: shiftOp, Dst: dst, Count: x86.Imm{Value: imm.Value, Size: x86.Size8}})
		return
	}

	// A variable count must be staged through cl; route the whole
	// computation through a scratch register first so dst (which may
	// itself be colored rcx) is never clobbered mid-computation.
	resultNums := map[int]bool{i.Result.Number(): true}
	restore := t.spillClobbered(xb, block, index, resultNums, []x86.Reg{x86.RCX})
	tmp, done := t.freshScratch(xb, size)
	xb.AddInstr(&x86.MovInstr{Dst: tmp, Src: t.operand(i.X)})
	t.emitMov(xb, x86.RCX.WithSize(operandSize(i.Y.Type())), yOp)
	xb.AddInstr(&x86.ShiftInstr{Op: shiftOp, Dst: tmp, Count: x86.RCX.WithSize(x86.Size8)})
	t.storeMov(xb, dst, tmp)
	done()
	restore()
}

func (t *funcTranslator) emitPointerOffset(xb *x86.Block, i *ir.PointerOffsetInstr) {
	ptrReg, ptrDone := t.ensureReg(xb, t.operand(i.Pointer), x86.Size64)
	mem := x86.Mem{Base: ptrReg, Disp: int32(i.Offset), Size: x86.Size64}
	dst := t.computedOperand(i.Result)
	if dstReg, ok := dst.(x86.Reg); ok {
		xb.AddInstr(&x86.LeaInstr{Dst: dstReg, Src: mem})
		ptrDone()
		return
	}
	tmp, tmpDone := t.freshScratch(xb, x86.Size64)
	xb.AddInstr(&x86.LeaInstr{Dst: tmp, Src: mem})
	ptrDone()
	t.storeMov(xb, dst, tmp)
	tmpDone()
}

func (t *funcTranslator) emitConversion(xb *x86.Block, i *ir.ConversionInstr) {
	dst := t.computedOperand(i.Result)
	srcOp := t.operand(i.Src)
	srcSize := operandSize(i.Src.Type())
	dstSize := operandSize(i.Result.Type())

	if dstSize == srcSize {
		t.storeMov(xb, dst, srcOp)
		return
	}
	if dstSize < srcSize {
		// Little-endian: the low-order bytes of the wider value already
		// are the truncated one. Reinterpret srcOp at the narrower width.
		t.storeMov(xb, dst, narrowOperand(srcOp, dstSize))
		return
	}

	signed := isSignedIntType(i.Src.Type())
	if srcSize == x86.Size32 && dstSize == x86.Size64 {
		if !signed {
			if dstReg, ok := dst.(x86.Reg); ok {
				// Writing the 32-bit sub-register zero-extends the full
				// 64-bit register as a side effect.
				t.storeMov(xb, dstReg.WithSize(x86.Size32), srcOp)
				return
			}
			lo := dst.(x86.Mem)
			lo.Size = x86.Size32
			t.storeMov(xb, lo, srcOp)
			hi := lo
			hi.Disp += 4
			xb.AddInstr(&x86.MovInstr{Dst: hi, Src: x86.Imm{Value: 0, Size: x86.Size32}})
			return
		}
		if dstReg, ok := dst.(x86.Reg); ok {
			xb.AddInstr(&x86.MovSxDInstr{Dst: dstReg, Src: srcOp})
			return
		}
		tmp, done := t.freshScratch(xb, x86.Size64)
		xb.AddInstr(&x86.MovSxDInstr{Dst: tmp, Src: srcOp})
		t.storeMov(xb, dst, tmp)
		done()
		return
	}

	if dstReg, ok := dst.(x86.Reg); ok {
		if signed {
			xb.AddInstr(&x86.MovSxInstr{Dst: dstReg, Src: srcOp})
		} else {
			xb.AddInstr(&x86.MovZxInstr{Dst: dstReg, Src: srcOp})
		}
		return
	}
	tmp, done := t.freshScratch(xb, dstSize)
	if signed {
		xb.AddInstr(&x86.MovSxInstr{Dst: tmp, Src: srcOp})
	} else {
		xb.AddInstr(&x86.MovZxInstr{Dst: tmp, Src: srcOp})
	}
	t.storeMov(xb, dst, tmp)
	done()
}

// narrowOperand reinterprets op at a narrower width, in place for a register
// (a differently-sized view of the same physical register) or by shrinking
// a memory operand's declared width (the low-order bytes of a little-endian
// value sit at the same address).
func narrowOperand(op x86.Operand, size x86.Size) x86.Operand {
	switch v := op.(type) {
	case x86.Reg:
		return v.WithSize(size)
	case x86.Mem:
		v.Size = size
		return v
	case x86.Imm:
		return x86.Imm{Value: v.Value, Size: size}
	default:
		return op
	}
}

func (t *funcTranslator) emitSyscall(xb *x86.Block, block, index int, i *ir.SyscallInstr) {
	if len(i.Args) > len(syscallArgRegs) {
		panic("translate: syscall has more arguments than available syscall registers")
	}
	resultNums := map[int]bool{}
	if i.Result != nil && i.Result.IsComputed() {
		resultNums[i.Result.Number()] = true
	}
	restore := t.spillClobbered(xb, block, index, resultNums, syscallClobbered)

	var moves []parallelcopy.Move[x86.Operand]
	moves = append(moves, parallelcopy.Move[x86.Operand]{
		Dst: x86.RAX.WithSize(operandSize(i.Number.Type())),
		Src: t.operand(i.Number),
	})
	for idx, a := range i.Args {
		moves = append(moves, parallelcopy.Move[x86.Operand]{
			Dst: syscallArgRegs[idx].WithSize(operandSize(a.Type())),
			Src: t.operand(a),
		})
	}
	for _, instr := range GenerateMovs(moves) {
		xb.AddInstr(instr)
	}

	xb.AddInstr(&x86.SyscallInstr{})

	if i.Result != nil {
		t.emitMov(xb, t.computedOperand(i.Result), x86.RAX.WithSize(operandSize(i.Result.Type())))
	}
	restore()
}
