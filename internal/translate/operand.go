package translate

import (
	"fmt"

	"katara/internal/atomics"
	"katara/internal/ir"
	"katara/internal/regalloc"
	"katara/internal/x86"
)

// operandSize maps an atomic IR type to its x86 operand width. Every type
// reaching this point is atomic -- internal/lower has already eliminated
// TShared/TArray/TStruct.
func operandSize(t ir.Type) x86.Size {
	switch v := t.(type) {
	case ir.TBool:
		return x86.Size8
	case ir.TInt:
		switch atomics.BitSizeOf(v.Width) {
		case 8:
			return x86.Size8
		case 16:
			return x86.Size16
		case 32:
			return x86.Size32
		default:
			return x86.Size64
		}
	default:
		// TPointer, TFunc: both are bare 8-byte addresses.
		return x86.Size64
	}
}

func isSignedIntType(t ir.Type) bool {
	it, ok := t.(ir.TInt)
	return ok && atomics.IsSigned(it.Width)
}

// TranslateComputed resolves a computed value's register allocation to a
// concrete x86 operand: its fixed-order GPR when regalloc gave it a
// register color, or a frame-relative stack slot (growing down from rbp,
// one slot per spill color) otherwise.
func TranslateComputed(alloc *regalloc.Allocation, num int, typ ir.Type) x86.Operand {
	size := operandSize(typ)
	color, ok := alloc.Colors[num]
	if !ok {
		panic(fmt.Sprintf("translate: value %%%d has no register allocation", num))
	}
	if color.IsRegister() {
		return x86.ColorOrder[int(color)].WithSize(size)
	}
	disp := int32(-(color.StackSlotIndex() + 1) * 8)
	return x86.BasePointerSlot(disp, size)
}

// constOperand translates a Constant value (everything but ComputedKind and
// InheritedKind -- the latter never survives past internal/phi) into an x86
// operand. ConstFuncKind has no plain-operand form: a func value is only
// ever used as a call's callee, resolved directly to a CallInstr's static
// FuncNum by the call-lowering path.
func constOperand(v *ir.Value) x86.Operand {
	switch v.Kind() {
	case ir.ConstBoolKind:
		n := int64(0)
		if v.BoolValue() {
			n = 1
		}
		return x86.Imm{Value: n, Size: x86.Size8}
	case ir.ConstIntKind:
		return x86.Imm{Value: v.IntValue().AsInt64(), Size: operandSize(v.Type())}
	case ir.ConstPointerNilKind:
		return x86.Imm{Value: 0, Size: x86.Size64}
	default:
		panic("translate: constant func values must be lowered through call/malloc/free handling, not a plain operand")
	}
}
