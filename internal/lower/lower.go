// Package lower implements shared-pointer lowering: it replaces every
// MakeShared/CopyShared/DeleteShared instruction with
// explicit malloc/load/store/free and refcount arithmetic, so that every
// value type in the program is atomic by the time it reaches
// internal/liveness.
//
// Control-block layout (recorded in DESIGN.md): 16 bytes,
// [strong refcount: i64][weak refcount: i64], immediately followed by the
// payload. MakeShared returns a pointer to the payload, i.e. control block
// base + 16.
package lower

import (
	"katara/internal/atomics"
	"katara/internal/ir"
)

const (
	controlBlockSize  = 16
	strongFieldOffset = 0
	weakFieldOffset   = 8
	payloadOffset     = 16
)

// Lower eliminates every shared-pointer instruction and TShared type from
// prog, in place.
func Lower(prog *ir.Program) {
	for _, f := range prog.Funcs() {
		lowerFunc(f)
	}
}

func lowerFunc(f *ir.Func) {
	paramTypes := f.ParamTypes()
	for i, t := range paramTypes {
		if lt, ok := lowerType(t); ok {
			paramTypes[i] = lt
		}
	}
	resultTypes := f.ResultTypes()
	for i, t := range resultTypes {
		if lt, ok := lowerType(t); ok {
			resultTypes[i] = lt
		}
	}
	for _, p := range f.Params() {
		if lt, ok := lowerType(p.Type()); ok {
			p.Retype(lt)
		}
	}

	worklist := f.Blocks()
	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		for {
			idx, instr, ok := findSharedInstr(b)
			if !ok {
				break
			}
			next := lowerInstrAt(f, b, idx, instr)
			if len(next) > 0 {
				worklist = append(worklist, next...)
				break
			}
		}
	}
}

func lowerType(t ir.Type) (ir.Type, bool) {
	sh, ok := t.(ir.TShared)
	if !ok {
		return nil, false
	}
	return ir.TPointer{Strength: sh.Strength}, true
}

func findSharedInstr(b *ir.Block) (int, ir.Instr, bool) {
	for idx, instr := range b.Instrs() {
		switch instr.(type) {
		case *ir.MakeSharedInstr, *ir.CopySharedInstr, *ir.DeleteSharedInstr:
			return idx, instr, true
		}
	}
	return 0, nil, false
}

func lowerInstrAt(f *ir.Func, b *ir.Block, idx int, instr ir.Instr) []*ir.Block {
	switch in := instr.(type) {
	case *ir.MakeSharedInstr:
		lowerMakeShared(f, b, idx, in)
		return nil
	case *ir.CopySharedInstr:
		return []*ir.Block{lowerCopyShared(f, b, idx, in)}
	case *ir.DeleteSharedInstr:
		return []*ir.Block{lowerDeleteShared(f, b, idx, in)}
	default:
		return nil
	}
}

// splitBlock removes the instruction at idx (and everything from idx
// onward) from b, moving the tail -- including b's original terminator --
// into a freshly allocated block, which it returns.
func splitBlock(f *ir.Func, b *ir.Block, idx int) *ir.Block {
	instrs := b.Instrs()
	tail := append([]ir.Instr(nil), instrs[idx+1:]...)
	cont := f.NewBlock()
	for _, in := range tail {
		cont.AddInstr(in)
	}
	for len(b.Instrs()) > idx {
		b.RemoveInstr(len(b.Instrs()) - 1)
	}
	return cont
}

func i64(n int64) *ir.Value { return ir.ConstInt(atomics.NewInt(atomics.I64, n)) }

// lowerMakeShared replaces `result = make_shared(strength) size` with
// `malloc(16+size)`, a (1, 0) refcount initialization, and a pointer-offset
// to the payload -- straight-line code, no block split needed.
func lowerMakeShared(f *ir.Func, b *ir.Block, idx int, instr *ir.MakeSharedInstr) {
	result := instr.Result
	result.Retype(ir.TPointer{Strength: instr.Strength})

	totalSize := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	ctrl := f.NewComputedValue(ir.TPointer{Strength: ir.Strong})
	weakAddr := f.NewComputedValue(ir.TPointer{Strength: ir.Strong})

	ops := []ir.Instr{
		&ir.IntBinaryInstr{Result: totalSize, Op: atomics.IntAdd, X: i64(controlBlockSize), Y: instr.Size},
		&ir.MallocInstr{Result: ctrl, Size: totalSize},
		&ir.StoreInstr{Address: ctrl, Value: i64(1)},
		&ir.PointerOffsetInstr{Result: weakAddr, Pointer: ctrl, Offset: weakFieldOffset},
		&ir.StoreInstr{Address: weakAddr, Value: i64(0)},
		&ir.PointerOffsetInstr{Result: result, Pointer: ctrl, Offset: payloadOffset},
	}

	b.RemoveInstr(idx)
	for i, op := range ops {
		b.InsertInstr(idx+i, op)
	}
}

// lowerCopyShared replaces `result = copy_shared(strength) ptr` with a
// null check guarding a refcount increment; both paths produce the same
// pointer value as ptr (CopyShared returns an aliased pointer, it never
// moves the payload), so the continuation just movs it through.
func lowerCopyShared(f *ir.Func, b *ir.Block, idx int, instr *ir.CopySharedInstr) *ir.Block {
	result := instr.Result
	lowered := ir.TPointer{Strength: instr.Strength}
	result.Retype(lowered)

	cont := splitBlock(f, b, idx)
	cont.InsertInstr(0, &ir.MovInstr{Result: result, Src: instr.Pointer})

	incBlock := f.NewBlock()
	isNil := f.NewComputedValue(ir.TBool{})
	b.AddInstr(&ir.NilTestInstr{Result: isNil, Pointer: instr.Pointer})
	b.AddInstr(&ir.JumpCondInstr{Cond: isNil, TrueTarget: cont.Number(), FalseTarget: incBlock.Number()})

	fieldOffset := int64(strongFieldOffset)
	if instr.Strength == ir.Weak {
		fieldOffset = weakFieldOffset
	}
	ctrl := f.NewComputedValue(ir.TPointer{Strength: ir.Strong})
	incBlock.AddInstr(&ir.PointerOffsetInstr{Result: ctrl, Pointer: instr.Pointer, Offset: -controlBlockSize})
	field := ctrl
	if fieldOffset != 0 {
		field = f.NewComputedValue(ir.TPointer{Strength: ir.Strong})
		incBlock.AddInstr(&ir.PointerOffsetInstr{Result: field, Pointer: ctrl, Offset: fieldOffset})
	}
	old := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	incBlock.AddInstr(&ir.LoadInstr{Result: old, Address: field})
	updated := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	incBlock.AddInstr(&ir.IntBinaryInstr{Result: updated, Op: atomics.IntAdd, X: old, Y: i64(1)})
	incBlock.AddInstr(&ir.StoreInstr{Address: field, Value: updated})
	incBlock.AddInstr(&ir.JumpInstr{Target: cont.Number()})

	return cont
}

// lowerDeleteShared replaces `delete_shared(strength) ptr` with a null
// check guarding a refcount decrement and the strong/weak-zero free logic
// of DESIGN.md's weak-pointer resolution.
func lowerDeleteShared(f *ir.Func, b *ir.Block, idx int, instr *ir.DeleteSharedInstr) *ir.Block {
	cont := splitBlock(f, b, idx)

	body := f.NewBlock()
	isNil := f.NewComputedValue(ir.TBool{})
	b.AddInstr(&ir.NilTestInstr{Result: isNil, Pointer: instr.Pointer})
	b.AddInstr(&ir.JumpCondInstr{Cond: isNil, TrueTarget: cont.Number(), FalseTarget: body.Number()})

	ctrl := f.NewComputedValue(ir.TPointer{Strength: ir.Strong})
	body.AddInstr(&ir.PointerOffsetInstr{Result: ctrl, Pointer: instr.Pointer, Offset: -controlBlockSize})

	if instr.Strength == ir.Strong {
		lowerStrongDelete(f, body, ctrl, instr, cont)
	} else {
		lowerWeakDelete(f, body, ctrl, instr, cont)
	}
	return cont
}

func lowerStrongDelete(f *ir.Func, body *ir.Block, ctrl *ir.Value, instr *ir.DeleteSharedInstr, cont *ir.Block) {
	old := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	body.AddInstr(&ir.LoadInstr{Result: old, Address: ctrl})
	updated := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	body.AddInstr(&ir.IntBinaryInstr{Result: updated, Op: atomics.IntSub, X: old, Y: i64(1)})
	body.AddInstr(&ir.StoreInstr{Address: ctrl, Value: updated})

	strongIsZero := f.NewComputedValue(ir.TBool{})
	body.AddInstr(&ir.IntCompareInstr{Result: strongIsZero, Op: atomics.CmpEq, X: updated, Y: i64(0)})
	zeroBlock := f.NewBlock()
	body.AddInstr(&ir.JumpCondInstr{Cond: strongIsZero, TrueTarget: zeroBlock.Number(), FalseTarget: cont.Number()})

	if instr.Destructor != nil {
		zeroBlock.AddInstr(&ir.CallInstr{Callee: instr.Destructor, Args: []*ir.Value{instr.Pointer}})
	}

	weakAddr := f.NewComputedValue(ir.TPointer{Strength: ir.Strong})
	zeroBlock.AddInstr(&ir.PointerOffsetInstr{Result: weakAddr, Pointer: ctrl, Offset: weakFieldOffset})
	weakVal := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	zeroBlock.AddInstr(&ir.LoadInstr{Result: weakVal, Address: weakAddr})
	weakIsZero := f.NewComputedValue(ir.TBool{})
	zeroBlock.AddInstr(&ir.IntCompareInstr{Result: weakIsZero, Op: atomics.CmpEq, X: weakVal, Y: i64(0)})

	freeBlock := f.NewBlock()
	zeroBlock.AddInstr(&ir.JumpCondInstr{Cond: weakIsZero, TrueTarget: freeBlock.Number(), FalseTarget: cont.Number()})

	freeBlock.AddInstr(&ir.FreeInstr{Address: ctrl})
	freeBlock.AddInstr(&ir.JumpInstr{Target: cont.Number()})
}

func lowerWeakDelete(f *ir.Func, body *ir.Block, ctrl *ir.Value, instr *ir.DeleteSharedInstr, cont *ir.Block) {
	weakAddr := f.NewComputedValue(ir.TPointer{Strength: ir.Strong})
	body.AddInstr(&ir.PointerOffsetInstr{Result: weakAddr, Pointer: ctrl, Offset: weakFieldOffset})
	old := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	body.AddInstr(&ir.LoadInstr{Result: old, Address: weakAddr})
	updated := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	body.AddInstr(&ir.IntBinaryInstr{Result: updated, Op: atomics.IntSub, X: old, Y: i64(1)})
	body.AddInstr(&ir.StoreInstr{Address: weakAddr, Value: updated})

	weakIsZero := f.NewComputedValue(ir.TBool{})
	body.AddInstr(&ir.IntCompareInstr{Result: weakIsZero, Op: atomics.CmpEq, X: updated, Y: i64(0)})
	checkStrongBlock := f.NewBlock()
	body.AddInstr(&ir.JumpCondInstr{Cond: weakIsZero, TrueTarget: checkStrongBlock.Number(), FalseTarget: cont.Number()})

	strongVal := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	checkStrongBlock.AddInstr(&ir.LoadInstr{Result: strongVal, Address: ctrl})
	strongIsZero := f.NewComputedValue(ir.TBool{})
	checkStrongBlock.AddInstr(&ir.IntCompareInstr{Result: strongIsZero, Op: atomics.CmpEq, X: strongVal, Y: i64(0)})

	freeBlock := f.NewBlock()
	checkStrongBlock.AddInstr(&ir.JumpCondInstr{Cond: strongIsZero, TrueTarget: freeBlock.Number(), FalseTarget: cont.Number()})

	freeBlock.AddInstr(&ir.FreeInstr{Address: ctrl})
	freeBlock.AddInstr(&ir.JumpInstr{Target: cont.Number()})
}
