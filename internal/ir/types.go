// Package ir implements the SSA intermediate representation:
// Program/Func/Block/Instr/Value/Type, owned via an arena + numeric-
// identifier scheme so cross-references are plain numbers rather than
// pointers.
package ir

import (
	"fmt"
	"strings"

	"katara/internal/atomics"
)

// TypeKind tags the variant of a Type. Atomic kinds survive past shared-
// pointer lowering; the high-level kinds (Shared, Array, Struct) exist only
// before lowering and must be eliminated by internal/lower.
type TypeKind int

const (
	BoolKind TypeKind = iota
	IntKind
	PointerKind
	FuncKind
	SharedKind
	ArrayKind
	StructKind
)

// PointerStrength discriminates a strong (owning) pointer from a weak
// (observing) one, used by the source language's shared-pointer kinds.
type PointerStrength int

const (
	Strong PointerStrength = iota
	Weak
)

func (s PointerStrength) String() string {
	if s == Weak {
		return "weak"
	}
	return "strong"
}

// Type is the atomic/non-atomic type variant.
// Two types are equal iff their tag and parameters (width/kind) match.
// Atomic types are plain value structs, so identical atomic types also
// compare == equal.
type Type interface {
	Kind() TypeKind
	String() string
	Equal(Type) bool
	// IsAtomic reports whether the type is one of the atomic types
	// (bool, int, pointer, func) that may appear after lowering.
	IsAtomic() bool
}

// --- Atomic types ---

type TBool struct{}

func (TBool) Kind() TypeKind     { return BoolKind }
func (TBool) String() string     { return "bool" }
func (TBool) IsAtomic() bool     { return true }
func (TBool) Equal(o Type) bool  { _, ok := o.(TBool); return ok }

type TInt struct {
	Width atomics.IntType
}

func (t TInt) Kind() TypeKind { return IntKind }
func (t TInt) String() string { return t.Width.String() }
func (t TInt) IsAtomic() bool { return true }
func (t TInt) Equal(o Type) bool {
	other, ok := o.(TInt)
	return ok && other.Width == t.Width
}

type TPointer struct {
	Strength PointerStrength
}

func (t TPointer) Kind() TypeKind { return PointerKind }
func (t TPointer) String() string {
	if t.Strength == Weak {
		return "wptr"
	}
	return "ptr"
}
func (t TPointer) IsAtomic() bool { return true }
func (t TPointer) Equal(o Type) bool {
	other, ok := o.(TPointer)
	return ok && other.Strength == t.Strength
}

type TFunc struct {
	Params  []Type
	Results []Type
}

func (t TFunc) Kind() TypeKind { return FuncKind }
func (t TFunc) String() string {
	s := "func("
	for i, p := range t.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ")"
	if len(t.Results) > 0 {
		s += " ("
		for i, r := range t.Results {
			if i > 0 {
				s += ", "
			}
			s += r.String()
		}
		s += ")"
	}
	return s
}
func (t TFunc) IsAtomic() bool { return true }
func (t TFunc) Equal(o Type) bool {
	other, ok := o.(TFunc)
	if !ok || len(other.Params) != len(t.Params) || len(other.Results) != len(t.Results) {
		return false
	}
	for i := range t.Params {
		if !t.Params[i].Equal(other.Params[i]) {
			return false
		}
	}
	for i := range t.Results {
		if !t.Results[i].Equal(other.Results[i]) {
			return false
		}
	}
	return true
}

// --- Non-atomic, high-level-only types ---

// TShared is a high-level shared/weak smart-pointer wrapper. Only valid
// before internal/lower runs; every TShared must be gone by the time
// liveness analysis starts.
type TShared struct {
	Strength PointerStrength
	Elem     Type
}

func (t TShared) Kind() TypeKind { return SharedKind }
func (t TShared) String() string {
	if t.Strength == Weak {
		return fmt.Sprintf("weak<%s>", t.Elem)
	}
	return fmt.Sprintf("shared<%s>", t.Elem)
}
func (t TShared) IsAtomic() bool { return false }
func (t TShared) Equal(o Type) bool {
	other, ok := o.(TShared)
	return ok && other.Strength == t.Strength && t.Elem.Equal(other.Elem)
}

type TArray struct {
	Elem Type
	Len  int
}

func (t TArray) Kind() TypeKind  { return ArrayKind }
func (t TArray) String() string  { return fmt.Sprintf("[%d]%s", t.Len, t.Elem) }
func (t TArray) IsAtomic() bool  { return false }
func (t TArray) Equal(o Type) bool {
	other, ok := o.(TArray)
	return ok && other.Len == t.Len && t.Elem.Equal(other.Elem)
}

type StructField struct {
	Name string
	Type Type
}

type TStruct struct {
	Name   string
	Fields []StructField
}

func (t TStruct) Kind() TypeKind { return StructKind }
func (t TStruct) String() string { return t.Name }
func (t TStruct) IsAtomic() bool { return false }
func (t TStruct) Equal(o Type) bool {
	other, ok := o.(TStruct)
	if !ok || len(other.Fields) != len(t.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i].Name != other.Fields[i].Name || !t.Fields[i].Type.Equal(other.Fields[i].Type) {
			return false
		}
	}
	return true
}

// ParseType parses the textual spelling an atomic Type's String method
// produces: "bool", an atomics.IntType width ("i64", "u8", ...), "ptr" /
// "wptr", a func type "func(p0, p1) (r0, r1)", or a shared pointer
// "shared<T>" / "weak<T>". It is the inverse the textual IR format's
// round-trip property needs for type annotations. Array and struct types
// are not parsed.
func ParseType(s string) (Type, bool) {
	switch s {
	case "bool":
		return TBool{}, true
	case "ptr":
		return TPointer{Strength: Strong}, true
	case "wptr":
		return TPointer{Strength: Weak}, true
	}
	if it, ok := atomics.ParseIntType(s); ok {
		return TInt{Width: it}, true
	}
	if strings.HasPrefix(s, "func(") {
		return parseFuncType(s)
	}
	if inner, ok := strings.CutPrefix(s, "shared<"); ok && strings.HasSuffix(inner, ">") {
		if elem, ok := ParseType(inner[:len(inner)-1]); ok {
			return TShared{Strength: Strong, Elem: elem}, true
		}
	}
	if inner, ok := strings.CutPrefix(s, "weak<"); ok && strings.HasSuffix(inner, ">") {
		if elem, ok := ParseType(inner[:len(inner)-1]); ok {
			return TShared{Strength: Weak, Elem: elem}, true
		}
	}
	return nil, false
}

// parseFuncType parses "func(p0, p1) (r0, r1)" or "func(p0, p1)" (no
// results). Params/results are split on top-level commas so a nested func
// type's own parens don't confuse the split.
func parseFuncType(s string) (Type, bool) {
	rest := strings.TrimPrefix(s, "func")
	paramsStr, rest, ok := splitParen(rest)
	if !ok {
		return nil, false
	}
	var params []Type
	for _, p := range splitTopLevel(paramsStr, ',') {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t, ok := ParseType(p)
		if !ok {
			return nil, false
		}
		params = append(params, t)
	}
	var results []Type
	rest = strings.TrimSpace(rest)
	if rest != "" {
		resultsStr, _, ok := splitParen(rest)
		if !ok {
			return nil, false
		}
		for _, r := range splitTopLevel(resultsStr, ',') {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			t, ok := ParseType(r)
			if !ok {
				return nil, false
			}
			results = append(results, t)
		}
	}
	return TFunc{Params: params, Results: results}, true
}

// splitParen expects s to start with '(' and returns the contents up to the
// matching ')', plus whatever follows it.
func splitParen(s string) (inside, after string, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		return "", "", false
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside parens.
func splitTopLevel(s string, sep rune) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// SizeOf returns the payload size in bytes of a high-level type, used by
// shared-pointer lowering to compute the malloc size for MakeShared.
// Bools are 1 byte and ints their width in bytes; pointers, funcs and
// shared pointers are 8 bytes; arrays/structs sum their elements.
func SizeOf(t Type) int64 {
	switch v := t.(type) {
	case TBool:
		return 1
	case TInt:
		return int64(atomics.BitSizeOf(v.Width) / 8)
	case TPointer:
		return 8
	case TFunc:
		return 8
	case TShared:
		return 8
	case TArray:
		return int64(v.Len) * SizeOf(v.Elem)
	case TStruct:
		var total int64
		for _, f := range v.Fields {
			total += SizeOf(f.Type)
		}
		return total
	default:
		return 8
	}
}
