package ir

import (
	"fmt"
	"strings"

	"katara/internal/atomics"
)

// UsePosition distinguishes a normal use from a phi argument whose
// effective use site is the predecessor block it is inherited from.
type UsePosition int

const (
	UseNormal UsePosition = iota
	UsePhiInherited
)

// Use is one use of a Value by an instruction.
type Use struct {
	Value       *Value
	Position    UsePosition
	OriginBlock int // meaningful only when Position == UsePhiInherited
}

// Instr is the tagged instruction variant. Every instruction exposes the
// computed values it defines and the values it uses; dispatch is by type
// switch over the concrete structs below rather than a kind enum.
type Instr interface {
	Defines() []*Value
	Uses() []Use
	String() string
	isInstr()
}

// Terminator is the subset of instructions that may end a block.
type Terminator interface {
	Instr
	// Targets returns the block numbers this instruction transfers
	// control to (empty for Return).
	Targets() []int
	isTerminator()
}

func usesNormal(vs ...*Value) []Use {
	out := make([]Use, 0, len(vs))
	for _, v := range vs {
		if v == nil {
			continue
		}
		out = append(out, Use{Value: v, Position: UseNormal})
	}
	return out
}

func defines(v *Value) []*Value {
	if v == nil {
		return nil
	}
	return []*Value{v}
}

// defStr renders a defined value with its type annotation, e.g. "%2:i64",
// matching the textual form's definition-site syntax.
func defStr(v *Value) string {
	return fmt.Sprintf("%s:%s", v, v.Type())
}

// --- Mov ---

type MovInstr struct {
	Result *Value
	Src    *Value
}

func (i *MovInstr) Defines() []*Value { return defines(i.Result) }
func (i *MovInstr) Uses() []Use       { return usesNormal(i.Src) }
func (i *MovInstr) String() string {
	return fmt.Sprintf("%s = mov %s", defStr(i.Result), i.Src)
}
func (*MovInstr) isInstr() {}

// --- Phi ---

// PhiInstr's Args must each be an InheritedValue, the only value kind legal
// as a phi argument; the checker's PhiAfterRegularInstrInBlock and related
// kinds enforce placement and argument-set invariants.
type PhiInstr struct {
	Result *Value
	Args   []*Value // each must be v.IsInherited()
}

func (i *PhiInstr) Defines() []*Value { return defines(i.Result) }
func (i *PhiInstr) Uses() []Use {
	out := make([]Use, 0, len(i.Args))
	for _, a := range i.Args {
		if a.IsInherited() {
			out = append(out, Use{Value: a.InheritedFrom(), Position: UsePhiInherited, OriginBlock: a.OriginBlock()})
		} else {
			out = append(out, Use{Value: a, Position: UseNormal})
		}
	}
	return out
}
func (i *PhiInstr) String() string {
	parts := make([]string, len(i.Args))
	for idx, a := range i.Args {
		parts[idx] = a.String()
	}
	return fmt.Sprintf("%s = phi %s", defStr(i.Result), strings.Join(parts, ", "))
}
func (*PhiInstr) isInstr() {}

// --- Conversion ---

type ConversionInstr struct {
	Result *Value
	Src    *Value
}

func (i *ConversionInstr) Defines() []*Value { return defines(i.Result) }
func (i *ConversionInstr) Uses() []Use       { return usesNormal(i.Src) }
func (i *ConversionInstr) String() string {
	return fmt.Sprintf("%s = conv %s", defStr(i.Result), i.Src)
}
func (*ConversionInstr) isInstr() {}

// --- Bool ---

type BoolNotInstr struct {
	Result  *Value
	Operand *Value
}

func (i *BoolNotInstr) Defines() []*Value { return defines(i.Result) }
func (i *BoolNotInstr) Uses() []Use       { return usesNormal(i.Operand) }
func (i *BoolNotInstr) String() string {
	return fmt.Sprintf("%s = bnot %s", defStr(i.Result), i.Operand)
}
func (*BoolNotInstr) isInstr() {}

type BoolBinaryInstr struct {
	Result *Value
	Op     atomics.BoolBinaryOp
	X, Y   *Value
}

func (i *BoolBinaryInstr) Defines() []*Value { return defines(i.Result) }
func (i *BoolBinaryInstr) Uses() []Use       { return usesNormal(i.X, i.Y) }
func (i *BoolBinaryInstr) String() string {
	return fmt.Sprintf("%s = b%s %s, %s", defStr(i.Result), i.Op, i.X, i.Y)
}
func (*BoolBinaryInstr) isInstr() {}

// --- Int ---

type IntUnaryInstr struct {
	Result  *Value
	Op      atomics.IntUnaryOp
	Operand *Value
}

func (i *IntUnaryInstr) Defines() []*Value { return defines(i.Result) }
func (i *IntUnaryInstr) Uses() []Use       { return usesNormal(i.Operand) }
func (i *IntUnaryInstr) String() string {
	return fmt.Sprintf("%s = i%s %s", defStr(i.Result), i.Op, i.Operand)
}
func (*IntUnaryInstr) isInstr() {}

type IntCompareInstr struct {
	Result *Value
	Op     atomics.IntCompareOp
	X, Y   *Value
}

func (i *IntCompareInstr) Defines() []*Value { return defines(i.Result) }
func (i *IntCompareInstr) Uses() []Use       { return usesNormal(i.X, i.Y) }
func (i *IntCompareInstr) String() string {
	return fmt.Sprintf("%s = icmp_%s %s, %s", defStr(i.Result), i.Op, i.X, i.Y)
}
func (*IntCompareInstr) isInstr() {}

type IntBinaryInstr struct {
	Result *Value
	Op     atomics.IntBinaryOp
	X, Y   *Value
}

func (i *IntBinaryInstr) Defines() []*Value { return defines(i.Result) }
func (i *IntBinaryInstr) Uses() []Use       { return usesNormal(i.X, i.Y) }
func (i *IntBinaryInstr) String() string {
	return fmt.Sprintf("%s = %s %s, %s", defStr(i.Result), i.Op, i.X, i.Y)
}
func (*IntBinaryInstr) isInstr() {}

type IntShiftInstr struct {
	Result *Value
	Op     atomics.IntShiftOp
	X, Y   *Value
}

func (i *IntShiftInstr) Defines() []*Value { return defines(i.Result) }
func (i *IntShiftInstr) Uses() []Use       { return usesNormal(i.X, i.Y) }
func (i *IntShiftInstr) String() string {
	return fmt.Sprintf("%s = %s %s, %s", defStr(i.Result), i.Op, i.X, i.Y)
}
func (*IntShiftInstr) isInstr() {}

// --- Pointers ---

type PointerOffsetInstr struct {
	Result  *Value
	Pointer *Value
	Offset  int64
}

func (i *PointerOffsetInstr) Defines() []*Value { return defines(i.Result) }
func (i *PointerOffsetInstr) Uses() []Use       { return usesNormal(i.Pointer) }
func (i *PointerOffsetInstr) String() string {
	return fmt.Sprintf("%s = poff %s, %d", defStr(i.Result), i.Pointer, i.Offset)
}
func (*PointerOffsetInstr) isInstr() {}

type NilTestInstr struct {
	Result  *Value
	Pointer *Value
}

func (i *NilTestInstr) Defines() []*Value { return defines(i.Result) }
func (i *NilTestInstr) Uses() []Use       { return usesNormal(i.Pointer) }
func (i *NilTestInstr) String() string {
	return fmt.Sprintf("%s = niltest %s", defStr(i.Result), i.Pointer)
}
func (*NilTestInstr) isInstr() {}

type MallocInstr struct {
	Result *Value
	Size   *Value
}

func (i *MallocInstr) Defines() []*Value { return defines(i.Result) }
func (i *MallocInstr) Uses() []Use       { return usesNormal(i.Size) }
func (i *MallocInstr) String() string {
	return fmt.Sprintf("%s = malloc %s", defStr(i.Result), i.Size)
}
func (*MallocInstr) isInstr() {}

type LoadInstr struct {
	Result  *Value
	Address *Value
}

func (i *LoadInstr) Defines() []*Value { return defines(i.Result) }
func (i *LoadInstr) Uses() []Use       { return usesNormal(i.Address) }
func (i *LoadInstr) String() string {
	return fmt.Sprintf("%s = load %s", defStr(i.Result), i.Address)
}
func (*LoadInstr) isInstr() {}

type StoreInstr struct {
	Address *Value
	Value   *Value
}

func (i *StoreInstr) Defines() []*Value { return nil }
func (i *StoreInstr) Uses() []Use       { return usesNormal(i.Address, i.Value) }
func (i *StoreInstr) String() string {
	return fmt.Sprintf("store %s, %s", i.Address, i.Value)
}
func (*StoreInstr) isInstr() {}

type FreeInstr struct {
	Address *Value
}

func (i *FreeInstr) Defines() []*Value { return nil }
func (i *FreeInstr) Uses() []Use       { return usesNormal(i.Address) }
func (i *FreeInstr) String() string {
	return fmt.Sprintf("free %s", i.Address)
}
func (*FreeInstr) isInstr() {}

// --- Syscall ---

// SyscallInstr invokes a host syscall by number with up to six arguments,
// returning its result. The number/args shape follows the x86-64 syscall
// ABI this component ultimately lowers to.
type SyscallInstr struct {
	Result *Value
	Number *Value
	Args   []*Value
}

func (i *SyscallInstr) Defines() []*Value { return defines(i.Result) }
func (i *SyscallInstr) Uses() []Use {
	out := usesNormal(i.Number)
	out = append(out, usesNormal(i.Args...)...)
	return out
}
func (i *SyscallInstr) String() string {
	parts := make([]string, len(i.Args))
	for idx, a := range i.Args {
		parts[idx] = a.String()
	}
	return fmt.Sprintf("%s = syscall %s (%s)", defStr(i.Result), i.Number, strings.Join(parts, ", "))
}
func (*SyscallInstr) isInstr() {}

// --- Call ---

type CallInstr struct {
	Results []*Value
	Callee  *Value
	Args    []*Value
}

func (i *CallInstr) Defines() []*Value { return i.Results }
func (i *CallInstr) Uses() []Use {
	out := usesNormal(i.Callee)
	out = append(out, usesNormal(i.Args...)...)
	return out
}
func (i *CallInstr) String() string {
	parts := make([]string, len(i.Args))
	for idx, a := range i.Args {
		parts[idx] = a.String()
	}
	results := make([]string, len(i.Results))
	for idx, r := range i.Results {
		results[idx] = defStr(r)
	}
	prefix := ""
	if len(results) > 0 {
		prefix = strings.Join(results, ", ") + " = "
	}
	return fmt.Sprintf("%scall %s (%s)", prefix, i.Callee, strings.Join(parts, ", "))
}
func (*CallInstr) isInstr() {}

// StaticCallee returns the statically known callee func number and true, or
// (0, false) if the callee is a computed value (indirect call).
func (i *CallInstr) StaticCallee() (int, bool) {
	if i.Callee.Kind() == ConstFuncKind {
		return i.Callee.FuncNum(), true
	}
	return 0, false
}

// --- Terminators ---

type JumpInstr struct {
	Target int
}

func (i *JumpInstr) Defines() []*Value { return nil }
func (i *JumpInstr) Uses() []Use       { return nil }
func (i *JumpInstr) String() string    { return fmt.Sprintf("jmp {%d}", i.Target) }
func (*JumpInstr) isInstr()            {}
func (*JumpInstr) isTerminator()       {}
func (i *JumpInstr) Targets() []int    { return []int{i.Target} }

type JumpCondInstr struct {
	Cond                    *Value
	TrueTarget, FalseTarget int
}

func (i *JumpCondInstr) Defines() []*Value { return nil }
func (i *JumpCondInstr) Uses() []Use       { return usesNormal(i.Cond) }
func (i *JumpCondInstr) String() string {
	return fmt.Sprintf("jcc %s, {%d}, {%d}", i.Cond, i.TrueTarget, i.FalseTarget)
}
func (*JumpCondInstr) isInstr()      {}
func (*JumpCondInstr) isTerminator() {}
func (i *JumpCondInstr) Targets() []int {
	return []int{i.TrueTarget, i.FalseTarget}
}

type ReturnInstr struct {
	Args []*Value
}

func (i *ReturnInstr) Defines() []*Value { return nil }
func (i *ReturnInstr) Uses() []Use       { return usesNormal(i.Args...) }
func (i *ReturnInstr) String() string {
	parts := make([]string, len(i.Args))
	for idx, a := range i.Args {
		parts[idx] = a.String()
	}
	return fmt.Sprintf("ret %s", strings.Join(parts, ", "))
}
func (*ReturnInstr) isInstr()       {}
func (*ReturnInstr) isTerminator()  {}
func (i *ReturnInstr) Targets() []int { return nil }

// IsTerminator reports whether instr implements Terminator.
func IsTerminator(instr Instr) bool {
	_, ok := instr.(Terminator)
	return ok
}

// --- High-level shared-pointer instructions ---
//
// These exist only before internal/lower runs; every Program that reaches
// the Checker's post-lowering invariants (and all later passes) must be
// free of them.

type MakeSharedInstr struct {
	Result   *Value // TShared-typed
	Strength PointerStrength
	Size     *Value // payload size in bytes, an i64 constant or computed value
}

func (i *MakeSharedInstr) Defines() []*Value { return defines(i.Result) }
func (i *MakeSharedInstr) Uses() []Use       { return usesNormal(i.Size) }
func (i *MakeSharedInstr) String() string {
	return fmt.Sprintf("%s = make_shared(%s) %s", defStr(i.Result), i.Strength, i.Size)
}
func (*MakeSharedInstr) isInstr() {}

type CopySharedInstr struct {
	Result   *Value
	Pointer  *Value
	Strength PointerStrength // which refcount to bump: Strong or Weak
}

func (i *CopySharedInstr) Defines() []*Value { return defines(i.Result) }
func (i *CopySharedInstr) Uses() []Use       { return usesNormal(i.Pointer) }
func (i *CopySharedInstr) String() string {
	return fmt.Sprintf("%s = copy_shared(%s) %s", defStr(i.Result), i.Strength, i.Pointer)
}
func (*CopySharedInstr) isInstr() {}

type DeleteSharedInstr struct {
	Pointer    *Value
	Strength   PointerStrength
	Destructor *Value // optional ConstFunc, nil if the payload needs no destructor
}

func (i *DeleteSharedInstr) Defines() []*Value { return nil }
func (i *DeleteSharedInstr) Uses() []Use {
	if i.Destructor != nil {
		return usesNormal(i.Pointer, i.Destructor)
	}
	return usesNormal(i.Pointer)
}
func (i *DeleteSharedInstr) String() string {
	if i.Destructor != nil {
		return fmt.Sprintf("delete_shared(%s) %s dtor=%s", i.Strength, i.Pointer, i.Destructor)
	}
	return fmt.Sprintf("delete_shared(%s) %s", i.Strength, i.Pointer)
}
func (*DeleteSharedInstr) isInstr() {}
