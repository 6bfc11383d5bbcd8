package ir

import (
	"fmt"

	"katara/internal/atomics"
)

// ValueKind tags the variant of a Value.
type ValueKind int

const (
	ConstBoolKind ValueKind = iota
	ConstIntKind
	ConstPointerNilKind
	ConstFuncKind
	ComputedKind
	InheritedKind
)

// Value is the tagged union over Constant (Bool, Int, Pointer-nil, Func),
// Computed(type, value_number), and InheritedValue(Value, origin_block) --
// the last only ever legal as a Phi argument.
type Value struct {
	kind ValueKind
	typ  Type

	boolVal bool
	intVal  atomics.Int
	funcNum int

	num int // Computed: value number, unique within the owning func

	inner  *Value // Inherited: the underlying value
	origin int    // Inherited: origin block number
}

func ConstBool(b bool) *Value {
	return &Value{kind: ConstBoolKind, typ: TBool{}, boolVal: b}
}

func ConstInt(n atomics.Int) *Value {
	return &Value{kind: ConstIntKind, typ: TInt{Width: n.Type()}, intVal: n}
}

func ConstPointerNil(strength PointerStrength) *Value {
	return &Value{kind: ConstPointerNilKind, typ: TPointer{Strength: strength}}
}

func ConstFunc(funcNum int) *Value {
	return &Value{kind: ConstFuncKind, typ: TFunc{}, funcNum: funcNum}
}

// NewComputed constructs a value defined by exactly one instruction within
// its owning func, identified by num.
func NewComputed(typ Type, num int) *Value {
	return &Value{kind: ComputedKind, typ: typ, num: num}
}

// NewInherited wraps a value as a phi argument inherited from originBlock.
// It is only legal as the argument of a Phi instruction.
func NewInherited(v *Value, originBlock int) *Value {
	return &Value{kind: InheritedKind, typ: v.typ, inner: v, origin: originBlock}
}

func (v *Value) Kind() ValueKind { return v.kind }
func (v *Value) Type() Type      { return v.typ }

func (v *Value) IsConstant() bool { return v.kind <= ConstFuncKind }
func (v *Value) IsComputed() bool { return v.kind == ComputedKind }
func (v *Value) IsInherited() bool { return v.kind == InheritedKind }

func (v *Value) BoolValue() bool         { return v.boolVal }
func (v *Value) IntValue() atomics.Int   { return v.intVal }
func (v *Value) FuncNum() int            { return v.funcNum }
func (v *Value) Number() int             { return v.num }
func (v *Value) InheritedFrom() *Value   { return v.inner }
func (v *Value) OriginBlock() int        { return v.origin }

// Retype overwrites a Computed value's type in place. Only a lowering pass
// (internal/lower) calls this, once it has determined the concrete atomic
// type a high-level value lowers to -- every existing reference to v, being
// the same pointer, observes the new type without any rename pass.
func (v *Value) Retype(t Type) {
	v.typ = t
}

// Underlying returns the value ignoring any Inherited wrapper -- the
// Computed or Constant value actually flowing along the edge.
func (v *Value) Underlying() *Value {
	if v.kind == InheritedKind {
		return v.inner.Underlying()
	}
	return v
}

func (v *Value) String() string {
	switch v.kind {
	case ConstBoolKind:
		return atomics.BoolToString(v.boolVal)
	case ConstIntKind:
		return "#" + v.intVal.String()
	case ConstPointerNilKind:
		return "0x0"
	case ConstFuncKind:
		return fmt.Sprintf("@%d", v.funcNum)
	case ComputedKind:
		return fmt.Sprintf("%%%d", v.num)
	case InheritedKind:
		return fmt.Sprintf("%s@{%d}", v.inner.String(), v.origin)
	default:
		return "<invalid value>"
	}
}
