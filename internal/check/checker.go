// Package check implements the structural IR checker: it reports every
// violation as a kinded issue attached to the
// offending instruction/block/value without mutating the program.
package check

import (
	"fmt"

	"katara/internal/atomics"
	"katara/internal/graph"
	"katara/internal/ir"
	"katara/internal/issue"
)

// Check validates every func in prog and returns the accumulated issues.
// A clean result (no Error/Fatal issues) is required before
// internal/lower, internal/liveness, and later passes may run.
func Check(prog *ir.Program) *issue.Tracker {
	tracker := issue.NewTracker()
	for _, f := range prog.Funcs() {
		checkFunc(prog, f, tracker)
	}
	return tracker
}

func checkFunc(prog *ir.Program, f *ir.Func, tracker *issue.Tracker) {
	for _, t := range f.ParamTypes() {
		if t == nil {
			tracker.Add(issue.New(issue.Error, issue.FuncDefinesNullptrArg,
				fmt.Sprintf("func %s declares an argument with no type", f.Name()), issue.NoPosition).
				WithSubject(issue.Subject{FuncNum: f.Number()}).Build())
		}
	}
	for _, t := range f.ResultTypes() {
		if t == nil {
			tracker.Add(issue.New(issue.Error, issue.FuncHasNullptrResultType,
				fmt.Sprintf("func %s declares a result with no type", f.Name()), issue.NoPosition).
				WithSubject(issue.Subject{FuncNum: f.Number()}).Build())
		}
	}
	if _, ok := f.Block(f.EntryBlockNum()); !ok {
		tracker.Add(issue.New(issue.Fatal, issue.FuncHasNoEntryBlock,
			fmt.Sprintf("func %s has no entry block", f.Name()), issue.NoPosition).
			WithSubject(issue.Subject{FuncNum: f.Number()}).Build())
		return
	}

	preds := ir.Predecessors(f)
	definitions := make(map[int]int) // value num -> defining block num, across the whole func
	// Params are defined on entry to the entry block.
	for _, p := range f.Params() {
		definitions[p.Number()] = f.EntryBlockNum()
	}

	for _, b := range f.Blocks() {
		checkBlockShape(f, b, preds, tracker)
		checkInstrs(f, b, tracker, definitions)
	}

	for _, b := range f.Blocks() {
		for i, instr := range b.Instrs() {
			checkOpcodeSpecific(prog, f, b, i, instr, tracker)
		}
	}

	checkDominance(f, definitions, tracker)
}

func subjectForBlock(f *ir.Func, blockNum int) issue.Subject {
	return issue.Subject{FuncNum: f.Number(), BlockNum: blockNum}
}

func subjectForInstr(f *ir.Func, blockNum, index int) issue.Subject {
	return issue.Subject{FuncNum: f.Number(), BlockNum: blockNum, InstrIndex: index, HasInstr: true}
}

func checkBlockShape(f *ir.Func, b *ir.Block, preds map[int][]int, tracker *issue.Tracker) {
	isEntry := b.Number() == f.EntryBlockNum()
	numPreds := len(preds[b.Number()])

	if isEntry && numPreds > 0 {
		tracker.Add(issue.New(issue.Error, issue.EntryBlockHasParents,
			"entry block has incoming edges", issue.NoPosition).
			WithSubject(subjectForBlock(f, b.Number())).Build())
	}
	if !isEntry && numPreds == 0 {
		tracker.Add(issue.New(issue.Error, issue.NonEntryBlockHasNoParents,
			"non-entry block is unreachable", issue.NoPosition).
			WithSubject(subjectForBlock(f, b.Number())).Build())
	}
	if b.Len() == 0 {
		tracker.Add(issue.New(issue.Error, issue.BlockContainsNoInstrs,
			"block has no instructions", issue.NoPosition).
			WithSubject(subjectForBlock(f, b.Number())).Build())
		return
	}

	instrs := b.Instrs()
	for i, instr := range instrs {
		isLast := i == len(instrs)-1
		isTerm := ir.IsTerminator(instr)
		if isTerm && !isLast {
			tracker.Add(issue.New(issue.Error, issue.ControlFlowInstrBeforeEndOfBlock,
				"control-flow instruction is not the last in its block", issue.NoPosition).
				WithSubject(subjectForInstr(f, b.Number(), i)).Build())
		}
	}
	if !ir.IsTerminator(instrs[len(instrs)-1]) {
		tracker.Add(issue.New(issue.Error, issue.ControlFlowInstrMissingAtEndOfBlock,
			"block does not end in a control-flow instruction", issue.NoPosition).
			WithSubject(subjectForBlock(f, b.Number())).Build())
	}

	if jc, ok := b.Terminator().(*ir.JumpCondInstr); ok {
		if jc.TrueTarget == jc.FalseTarget {
			tracker.Add(issue.New(issue.Warning, issue.JumpCondInstrHasDuplicateDestinations,
				"jcc has identical true/false targets", issue.NoPosition).
				WithSubject(subjectForBlock(f, b.Number())).Build())
		}
	}
	if t := b.Terminator(); t != nil {
		for _, target := range t.Targets() {
			if _, ok := f.Block(target); !ok {
				tracker.Add(issue.New(issue.Error, issue.ControlFlowInstrMismatchedWithBlockGraph,
					fmt.Sprintf("control-flow instruction targets nonexistent block {%d}", target), issue.NoPosition).
					WithSubject(subjectForBlock(f, b.Number())).Build())
			}
		}
	}

	seenPhi := true
	for i, instr := range instrs {
		_, isPhi := instr.(*ir.PhiInstr)
		if isPhi && !seenPhi {
			tracker.Add(issue.New(issue.Error, issue.PhiAfterRegularInstrInBlock,
				"phi instruction follows a non-phi instruction", issue.NoPosition).
				WithSubject(subjectForInstr(f, b.Number(), i)).Build())
		}
		if !isPhi {
			seenPhi = false
		}
		if isPhi && numPreds < 2 {
			tracker.Add(issue.New(issue.Error, issue.PhiInBlockWithoutMultipleParents,
				"phi instruction in a block with fewer than two predecessors", issue.NoPosition).
				WithSubject(subjectForInstr(f, b.Number(), i)).Build())
		}
		if phi, ok := instr.(*ir.PhiInstr); ok {
			checkPhiArgs(f, b, phi, preds[b.Number()], i, tracker)
		}
	}
}

func checkPhiArgs(f *ir.Func, b *ir.Block, phi *ir.PhiInstr, preds []int, index int, tracker *issue.Tracker) {
	seen := make(map[int]bool, len(phi.Args))
	for _, arg := range phi.Args {
		if !arg.IsInherited() {
			continue
		}
		origin := arg.OriginBlock()
		seen[origin] = true
		found := false
		for _, p := range preds {
			if p == origin {
				found = true
				break
			}
		}
		if !found {
			tracker.Add(issue.New(issue.Error, issue.PhiInstrHasArgumentForNonParentBlock,
				fmt.Sprintf("phi argument originates from {%d}, which is not a predecessor", origin), issue.NoPosition).
				WithSubject(subjectForInstr(f, b.Number(), index)).Build())
		}
		if phi.Result != nil && !arg.Type().Equal(phi.Result.Type()) {
			tracker.Add(issue.New(issue.Error, issue.PhiInstrMismatchedTypes,
				"phi argument type does not match phi result type", issue.NoPosition).
				WithSubject(subjectForInstr(f, b.Number(), index)).Build())
		}
	}
	for _, p := range preds {
		if !seen[p] {
			tracker.Add(issue.New(issue.Error, issue.PhiInstrHasNoArgumentForParentBlock,
				fmt.Sprintf("phi has no argument inherited from predecessor {%d}", p), issue.NoPosition).
				WithSubject(subjectForInstr(f, b.Number(), index)).Build())
		}
	}
}

func checkInstrs(f *ir.Func, b *ir.Block, tracker *issue.Tracker, definitions map[int]int) {
	for i, instr := range b.Instrs() {
		_, isPhi := instr.(*ir.PhiInstr)

		for _, use := range instr.Uses() {
			if !isPhi && use.Value.IsInherited() {
				tracker.Add(issue.New(issue.Error, issue.NonPhiInstrUsesInheritedValue,
					"non-phi instruction uses an inherited value directly", issue.NoPosition).
					WithSubject(subjectForInstr(f, b.Number(), i)).Build())
			}
		}

		for _, def := range instr.Defines() {
			if def.IsComputed() {
				if prevBlock, ok := definitions[def.Number()]; ok {
					tracker.Add(issue.New(issue.Error, issue.ComputedValueNumberUsedMultipleTimes,
						fmt.Sprintf("value number %%%d is defined more than once (first in {%d})", def.Number(), prevBlock), issue.NoPosition).
						WithSubject(subjectForInstr(f, b.Number(), i)).Build())
				} else {
					definitions[def.Number()] = b.Number()
				}
			}
		}
	}
}

func checkOpcodeSpecific(prog *ir.Program, f *ir.Func, b *ir.Block, index int, instr ir.Instr, tracker *issue.Tracker) {
	sub := subjectForInstr(f, b.Number(), index)
	add := func(kind issue.Kind, msg string) {
		tracker.Add(issue.New(issue.Error, kind, msg, issue.NoPosition).WithSubject(sub).Build())
	}

	switch in := instr.(type) {
	case *ir.MovInstr:
		if !in.Result.Type().Equal(in.Src.Type()) {
			add(issue.MovInstrMismatchedTypes, "Mov operand and result types differ")
		}
	case *ir.ConversionInstr:
		if !isBoolOrInt(in.Src.Type()) {
			add(issue.InstrOperandDoesNotHaveIntType, "Conversion operand is neither bool- nor int-typed")
		}
		if !isBoolOrInt(in.Result.Type()) {
			add(issue.InstrResultDoesNotHaveIntType, "Conversion result is neither bool- nor int-typed")
		}
	case *ir.BoolNotInstr:
		if _, ok := in.Operand.Type().(ir.TBool); !ok {
			add(issue.InstrOperandDoesNotHaveBoolType, "BoolNot operand is not bool-typed")
		}
		if _, ok := in.Result.Type().(ir.TBool); !ok {
			add(issue.InstrResultDoesNotHaveBoolType, "BoolNot result is not bool-typed")
		}
	case *ir.BoolBinaryInstr:
		if _, ok := in.X.Type().(ir.TBool); !ok {
			add(issue.InstrOperandDoesNotHaveBoolType, "BoolBinary left operand is not bool-typed")
		}
		if _, ok := in.Y.Type().(ir.TBool); !ok {
			add(issue.InstrOperandDoesNotHaveBoolType, "BoolBinary right operand is not bool-typed")
		}
		if _, ok := in.Result.Type().(ir.TBool); !ok {
			add(issue.InstrResultDoesNotHaveBoolType, "BoolBinary result is not bool-typed")
		}
	case *ir.IntUnaryInstr:
		if _, ok := in.Operand.Type().(ir.TInt); !ok {
			add(issue.InstrOperandDoesNotHaveIntType, "IntUnary operand is not int-typed")
		}
		if _, ok := in.Result.Type().(ir.TInt); !ok {
			add(issue.InstrResultDoesNotHaveIntType, "IntUnary result is not int-typed")
		}
	case *ir.IntCompareInstr:
		xt, xok := in.X.Type().(ir.TInt)
		yt, yok := in.Y.Type().(ir.TInt)
		if !xok {
			add(issue.InstrOperandDoesNotHaveIntType, "IntCompare left operand is not int-typed")
		}
		if !yok {
			add(issue.InstrOperandDoesNotHaveIntType, "IntCompare right operand is not int-typed")
		}
		if xok && yok && xt.Width != yt.Width {
			add(issue.IntCompareInstrOperandsHaveDifferentTypes, "IntCompare operands have different int widths")
		}
		if _, ok := in.Result.Type().(ir.TBool); !ok {
			add(issue.InstrResultDoesNotHaveBoolType, "IntCompare result is not bool-typed")
		}
	case *ir.IntBinaryInstr:
		xt, xok := in.X.Type().(ir.TInt)
		yt, yok := in.Y.Type().(ir.TInt)
		rt, rok := in.Result.Type().(ir.TInt)
		if !xok || !yok {
			add(issue.InstrOperandDoesNotHaveIntType, "IntBinary operand is not int-typed")
		}
		if !rok {
			add(issue.InstrResultDoesNotHaveIntType, "IntBinary result is not int-typed")
		}
		if xok && yok && rok && (xt.Width != yt.Width || xt.Width != rt.Width) {
			add(issue.IntBinaryInstrOperandsAndResultHaveDifferentTypes, "IntBinary operands and result have different int widths")
		}
	case *ir.IntShiftInstr:
		if _, ok := in.X.Type().(ir.TInt); !ok {
			add(issue.InstrOperandDoesNotHaveIntType, "IntShift left operand is not int-typed")
		}
		if _, ok := in.Y.Type().(ir.TInt); !ok {
			add(issue.InstrOperandDoesNotHaveIntType, "IntShift right operand is not int-typed")
		}
		if _, ok := in.Result.Type().(ir.TInt); !ok {
			add(issue.InstrResultDoesNotHaveIntType, "IntShift result is not int-typed")
		}
	case *ir.PointerOffsetInstr:
		if _, ok := in.Pointer.Type().(ir.TPointer); !ok {
			add(issue.InstrOperandDoesNotHavePointerType, "PointerOffset operand is not pointer-typed")
		}
		if _, ok := in.Result.Type().(ir.TPointer); !ok {
			add(issue.InstrResultDoesNotHavePointerType, "PointerOffset result is not pointer-typed")
		}
	case *ir.NilTestInstr:
		if _, ok := in.Pointer.Type().(ir.TPointer); !ok {
			add(issue.InstrOperandDoesNotHavePointerType, "NilTest operand is not pointer-typed")
		}
		if _, ok := in.Result.Type().(ir.TBool); !ok {
			add(issue.InstrResultDoesNotHaveBoolType, "NilTest result is not bool-typed")
		}
	case *ir.MallocInstr:
		if !isI64(in.Size.Type()) {
			add(issue.InstrOperandDoesNotHaveI64Type, "Malloc size is not i64-typed")
		}
		if _, ok := in.Result.Type().(ir.TPointer); !ok {
			add(issue.InstrResultDoesNotHavePointerType, "Malloc result is not pointer-typed")
		}
	case *ir.SyscallInstr:
		if !isI64(in.Number.Type()) {
			add(issue.InstrOperandDoesNotHaveI64Type, "Syscall number is not i64-typed")
		}
		for idx, arg := range in.Args {
			if !isRegisterWidth(arg.Type()) {
				add(issue.InstrOperandDoesNotHaveIntType, fmt.Sprintf("Syscall argument %d is not int-, pointer-, or func-typed", idx))
			}
		}
		if in.Result != nil {
			if _, ok := in.Result.Type().(ir.TInt); !ok {
				add(issue.InstrResultDoesNotHaveIntType, "Syscall result is not int-typed")
			}
		}
	case *ir.LoadInstr:
		if _, ok := in.Address.Type().(ir.TPointer); !ok {
			add(issue.InstrOperandDoesNotHavePointerType, "Load address is not pointer-typed")
		}
	case *ir.StoreInstr:
		if _, ok := in.Address.Type().(ir.TPointer); !ok {
			add(issue.InstrOperandDoesNotHavePointerType, "Store address is not pointer-typed")
		}
	case *ir.FreeInstr:
		if _, ok := in.Address.Type().(ir.TPointer); !ok {
			add(issue.InstrOperandDoesNotHavePointerType, "Free address is not pointer-typed")
		}
	case *ir.CallInstr:
		ft, ok := in.Callee.Type().(ir.TFunc)
		if !ok {
			add(issue.CallInstrCalleeDoesNotHaveFuncType, "Call callee is not func-typed")
			break
		}
		if num, static := in.StaticCallee(); static {
			if callee, ok := prog.Func(num); !ok {
				add(issue.CallInstrStaticCalleeDoesNotExist, fmt.Sprintf("Call references nonexistent func @%d", num))
			} else if !signatureMatches(callee, ft, in) {
				add(issue.CallInstrDoesNotMatchStaticCalleeSignature, "Call does not match static callee's signature")
			}
		}
	case *ir.ReturnInstr:
		if len(in.Args) != len(f.ResultTypes()) {
			add(issue.ReturnInstrDoesNotMatchFuncSignature, "Return argument count does not match func result count")
			break
		}
		for i, arg := range in.Args {
			if !arg.Type().Equal(f.ResultTypes()[i]) {
				add(issue.ReturnInstrDoesNotMatchFuncSignature, "Return argument type does not match func result type")
			}
		}
	case *ir.JumpInstr:
		if _, ok := f.Block(in.Target); !ok {
			add(issue.JumpInstrDestinationIsNotChildBlock, "Jump targets a nonexistent block")
		}
	case *ir.JumpCondInstr:
		if _, ok := in.Cond.Type().(ir.TBool); !ok {
			add(issue.InstrOperandDoesNotHaveBoolType, "JumpCond condition is not bool-typed")
		}
	}
}

func isBoolOrInt(t ir.Type) bool {
	switch t.(type) {
	case ir.TBool, ir.TInt:
		return true
	default:
		return false
	}
}

func isI64(t ir.Type) bool {
	it, ok := t.(ir.TInt)
	return ok && it.Width == atomics.I64
}

// isRegisterWidth reports whether t can sit in a single syscall argument
// register -- an int, pointer, or func value, each no wider than 8 bytes.
func isRegisterWidth(t ir.Type) bool {
	switch t.(type) {
	case ir.TInt, ir.TPointer, ir.TFunc:
		return true
	default:
		return false
	}
}

func signatureMatches(callee *ir.Func, declared ir.TFunc, call *ir.CallInstr) bool {
	if len(callee.ParamTypes()) != len(call.Args) {
		return false
	}
	for i, p := range callee.ParamTypes() {
		if !p.Equal(call.Args[i].Type()) {
			return false
		}
	}
	if len(callee.ResultTypes()) != len(call.Results) {
		return false
	}
	for i, r := range callee.ResultTypes() {
		if !r.Equal(call.Results[i].Type()) {
			return false
		}
	}
	return true
}

func checkDominance(f *ir.Func, definitions map[int]int, tracker *issue.Tracker) {
	tree := graph.Dominators(f)
	for _, b := range f.Blocks() {
		for _, instr := range b.Instrs() {
			_, isPhi := instr.(*ir.PhiInstr)
			for _, use := range instr.Uses() {
				v := use.Value
				if !v.IsComputed() {
					continue
				}
				defBlock, ok := definitions[v.Number()]
				if !ok {
					tracker.Add(issue.New(issue.Error, issue.ComputedValueHasNoDefinition,
						fmt.Sprintf("value %%%d has no definition", v.Number()), issue.NoPosition).
						WithSubject(subjectForBlock(f, b.Number())).Build())
					continue
				}
				useBlock := b.Number()
				if isPhi && use.Position == ir.UsePhiInherited {
					useBlock = use.OriginBlock
				}
				if !tree.Dominates(defBlock, useBlock) {
					tracker.Add(issue.New(issue.Error, issue.ComputedValueDefinitionDoesNotDominateUse,
						fmt.Sprintf("definition of %%%d in {%d} does not dominate its use in {%d}", v.Number(), defBlock, useBlock), issue.NoPosition).
						WithSubject(subjectForBlock(f, b.Number())).Build())
				}
			}
		}
	}
}
