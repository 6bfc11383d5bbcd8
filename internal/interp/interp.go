// Package interp directly executes a Program's IR without lowering or
// translating it to machine code. It runs the high-level shared-pointer
// instructions as well as the atomic ones, so it can evaluate a func either
// before or after internal/lower has run -- useful for exercising the IR's
// semantics in isolation from the register allocator and x86-64 backend.
package interp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"katara/internal/atomics"
	"katara/internal/ir"
)

// Control-block layout for a shared-pointer allocation: 16 bytes,
// [strong refcount: i64][weak refcount: i64], payload immediately after.
// Mirrors internal/lower's layout so a program interpreted before lowering
// and the same program interpreted after lowering observe the same memory
// shape.
const (
	controlBlockSize  = 16
	strongFieldOffset = 0
	weakFieldOffset   = 8
	payloadOffset     = 16
)

// Value is a runtime value: exactly one of its fields is meaningful,
// selected by Type's kind.
type Value struct {
	typ  ir.Type
	b    bool
	n    atomics.Int
	addr int64
	fn   int
}

func NewBoolValue(b bool) Value            { return Value{typ: ir.TBool{}, b: b} }
func NewIntValue(n atomics.Int) Value      { return Value{typ: ir.TInt{Width: n.Type()}, n: n} }
func NewFuncValue(fn int) Value            { return Value{typ: ir.TFunc{}, fn: fn} }
func NewNilValue(s ir.PointerStrength) Value {
	return Value{typ: ir.TPointer{Strength: s}, addr: nilAddr}
}

func (v Value) Type() ir.Type      { return v.typ }
func (v Value) Bool() bool         { return v.b }
func (v Value) Int() atomics.Int   { return v.n }
func (v Value) Addr() int64        { return v.addr }
func (v Value) FuncNum() int       { return v.fn }

const nilAddr = 0

// RuntimeError reports a failure while executing instr in func fn.
type RuntimeError struct {
	FuncName string
	Instr    ir.Instr
	Err      error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("interp: in %s, executing %q: %v", e.FuncName, e.Instr, e.Err)
}
func (e *RuntimeError) Unwrap() error { return e.Err }

// exitTrap unwinds every call frame back to Run when the program invokes
// the exit/exit_group syscall, the only way IR can end a run without a
// Return reaching the entry func.
type exitTrap struct{ code int64 }

func (e *exitTrap) Error() string { return fmt.Sprintf("interp: process exited with code %d", e.code) }

// Linux x86-64 syscall numbers this interpreter understands. Anything else
// reports ErrUnsupportedSyscall rather than guessing at a simulation.
const (
	sysWrite     = 1
	sysExit      = 60
	sysExitGroup = 231
)

var ErrUnsupportedSyscall = errors.New("interp: unsupported syscall number")

// Interp executes a Program's funcs by walking blocks and instructions
// directly, folding arithmetic through internal/atomics and backing
// malloc/load/store with an in-process byte-slice heap.
type Interp struct {
	prog *ir.Program
	heap *heap

	Stdout io.Writer
	Stderr io.Writer
}

func New(prog *ir.Program) *Interp {
	return &Interp{prog: prog, heap: newHeap(), Stdout: os.Stdout, Stderr: os.Stderr}
}

// Result is what a completed Run produced: either the entry func's return
// values, or the code passed to an exit/exit_group syscall.
type Result struct {
	Values   []Value
	ExitCode int64
	Exited   bool
}

// Run calls the program's entry func with args and runs it to completion.
func (it *Interp) Run(args []Value) (Result, error) {
	entryNum, ok := it.prog.EntryFunc()
	if !ok {
		return Result{}, fmt.Errorf("interp: program has no entry func")
	}
	f, ok := it.prog.Func(entryNum)
	if !ok {
		return Result{}, fmt.Errorf("interp: entry func %d not declared", entryNum)
	}

	values, err := it.call(f, args)
	var trap *exitTrap
	if errors.As(err, &trap) {
		return Result{ExitCode: trap.code, Exited: true}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Values: values}, nil
}

// RunMain is Run plus the exit-code convention cmd/katara's "run"
// subcommand reports to the shell: the entry func's first i64 result (or
// the exit syscall's code), defaulting to 0 if the func returns nothing.
func (it *Interp) RunMain(args []Value) (int, error) {
	result, err := it.Run(args)
	if err != nil {
		return 0, err
	}
	if result.Exited {
		return int(result.ExitCode), nil
	}
	if len(result.Values) == 0 {
		return 0, nil
	}
	return int(result.Values[0].n.AsInt64()), nil
}

func (it *Interp) call(f *ir.Func, args []Value) ([]Value, error) {
	if len(args) != len(f.Params()) {
		return nil, fmt.Errorf("interp: %s expects %d args, got %d", f.Name(), len(f.Params()), len(args))
	}

	frame := make(map[int]Value, f.NumBlocks()*4)
	for i, p := range f.Params() {
		frame[p.Number()] = args[i]
	}

	blockNum := f.EntryBlockNum()
	prevBlock := -1

blocks:
	for {
		block := f.MustBlock(blockNum)
		for _, instr := range block.Instrs() {
			switch in := instr.(type) {
			case *ir.ReturnInstr:
				return it.evalAll(in.Args, frame)

			case *ir.JumpInstr:
				prevBlock, blockNum = blockNum, in.Target
				continue blocks

			case *ir.JumpCondInstr:
				cond, err := it.eval(in.Cond, frame)
				if err != nil {
					return nil, it.wrap(f, in, err)
				}
				target := in.FalseTarget
				if cond.b {
					target = in.TrueTarget
				}
				prevBlock, blockNum = blockNum, target
				continue blocks

			case *ir.PhiInstr:
				v, err := it.evalPhi(in, frame, prevBlock)
				if err != nil {
					return nil, it.wrap(f, in, err)
				}
				frame[in.Result.Number()] = v

			default:
				if err := it.step(f, instr, frame); err != nil {
					return nil, it.wrap(f, instr, err)
				}
			}
		}
		return nil, fmt.Errorf("interp: %s block {%d} falls off the end without a terminator", f.Name(), blockNum)
	}
}

func (it *Interp) wrap(f *ir.Func, instr ir.Instr, err error) error {
	if err == nil {
		return nil
	}
	var trap *exitTrap
	if errors.As(err, &trap) {
		return err
	}
	return &RuntimeError{FuncName: f.Name(), Instr: instr, Err: err}
}

func (it *Interp) evalPhi(instr *ir.PhiInstr, frame map[int]Value, prevBlock int) (Value, error) {
	for _, a := range instr.Args {
		if a.OriginBlock() == prevBlock {
			return it.eval(a.Underlying(), frame)
		}
	}
	return Value{}, fmt.Errorf("phi %%%d has no argument for predecessor block {%d}", instr.Result.Number(), prevBlock)
}

func (it *Interp) eval(v *ir.Value, frame map[int]Value) (Value, error) {
	switch v.Kind() {
	case ir.ConstBoolKind:
		return Value{typ: v.Type(), b: v.BoolValue()}, nil
	case ir.ConstIntKind:
		return Value{typ: v.Type(), n: v.IntValue()}, nil
	case ir.ConstPointerNilKind:
		return Value{typ: v.Type(), addr: nilAddr}, nil
	case ir.ConstFuncKind:
		return Value{typ: v.Type(), fn: v.FuncNum()}, nil
	case ir.ComputedKind:
		val, ok := frame[v.Number()]
		if !ok {
			return Value{}, fmt.Errorf("value %%%d read before it was defined", v.Number())
		}
		return val, nil
	case ir.InheritedKind:
		return it.eval(v.Underlying(), frame)
	default:
		return Value{}, fmt.Errorf("unrecognized value kind %d", v.Kind())
	}
}

func (it *Interp) evalAll(vs []*ir.Value, frame map[int]Value) ([]Value, error) {
	out := make([]Value, len(vs))
	for i, v := range vs {
		val, err := it.eval(v, frame)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

// step executes every non-terminator, non-phi instruction kind.
func (it *Interp) step(f *ir.Func, instr ir.Instr, frame map[int]Value) error {
	switch in := instr.(type) {
	case *ir.MovInstr:
		v, err := it.eval(in.Src, frame)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = v

	case *ir.ConversionInstr:
		src, err := it.eval(in.Src, frame)
		if err != nil {
			return err
		}
		out, err := convert(src, in.Result.Type())
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = out

	case *ir.BoolNotInstr:
		v, err := it.eval(in.Operand, frame)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), b: !v.b}

	case *ir.BoolBinaryInstr:
		x, err := it.eval(in.X, frame)
		if err != nil {
			return err
		}
		y, err := it.eval(in.Y, frame)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), b: atomics.ComputeBool(x.b, in.Op, y.b)}

	case *ir.IntUnaryInstr:
		x, err := it.eval(in.Operand, frame)
		if err != nil {
			return err
		}
		if !atomics.CanComputeUnary(in.Op, x.n) {
			return fmt.Errorf("cannot compute %s %s", in.Op, x.n)
		}
		r, err := atomics.ComputeUnary(in.Op, x.n)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), n: r}

	case *ir.IntCompareInstr:
		x, err := it.eval(in.X, frame)
		if err != nil {
			return err
		}
		y, err := it.eval(in.Y, frame)
		if err != nil {
			return err
		}
		r, err := atomics.Compare(x.n, in.Op, y.n)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), b: r}

	case *ir.IntBinaryInstr:
		x, err := it.eval(in.X, frame)
		if err != nil {
			return err
		}
		y, err := it.eval(in.Y, frame)
		if err != nil {
			return err
		}
		if (in.Op == atomics.IntDiv || in.Op == atomics.IntRem) && y.n.IsZero() {
			return fmt.Errorf("division by zero")
		}
		r, err := atomics.ComputeBinary(x.n, in.Op, y.n)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), n: r}

	case *ir.IntShiftInstr:
		x, err := it.eval(in.X, frame)
		if err != nil {
			return err
		}
		y, err := it.eval(in.Y, frame)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), n: atomics.Shift(x.n, in.Op, y.n)}

	case *ir.PointerOffsetInstr:
		p, err := it.eval(in.Pointer, frame)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), addr: p.addr + in.Offset}

	case *ir.NilTestInstr:
		p, err := it.eval(in.Pointer, frame)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), b: p.addr == nilAddr}

	case *ir.MallocInstr:
		sz, err := it.eval(in.Size, frame)
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = Value{typ: in.Result.Type(), addr: it.heap.malloc(sz.n.AsInt64())}

	case *ir.LoadInstr:
		p, err := it.eval(in.Address, frame)
		if err != nil {
			return err
		}
		v, err := it.heap.load(p.addr, in.Result.Type())
		if err != nil {
			return err
		}
		frame[in.Result.Number()] = v

	case *ir.StoreInstr:
		p, err := it.eval(in.Address, frame)
		if err != nil {
			return err
		}
		v, err := it.eval(in.Value, frame)
		if err != nil {
			return err
		}
		return it.heap.store(p.addr, v)

	case *ir.FreeInstr:
		p, err := it.eval(in.Address, frame)
		if err != nil {
			return err
		}
		it.heap.free(p.addr)

	case *ir.SyscallInstr:
		return it.syscall(in, frame)

	case *ir.CallInstr:
		return it.execCall(in, frame)

	case *ir.MakeSharedInstr:
		return it.execMakeShared(in, frame)

	case *ir.CopySharedInstr:
		return it.execCopyShared(in, frame)

	case *ir.DeleteSharedInstr:
		return it.execDeleteShared(in, frame)

	default:
		return fmt.Errorf("unsupported instruction %T", instr)
	}
	return nil
}

func (it *Interp) execCall(in *ir.CallInstr, frame map[int]Value) error {
	callee, err := it.eval(in.Callee, frame)
	if err != nil {
		return err
	}
	args, err := it.evalAll(in.Args, frame)
	if err != nil {
		return err
	}
	fn, ok := it.prog.Func(callee.fn)
	if !ok {
		return fmt.Errorf("call to undeclared func %d", callee.fn)
	}
	results, err := it.call(fn, args)
	if err != nil {
		return err
	}
	if len(results) != len(in.Results) {
		return fmt.Errorf("%s returned %d values, call expects %d", fn.Name(), len(results), len(in.Results))
	}
	for i, r := range in.Results {
		frame[r.Number()] = results[i]
	}
	return nil
}

func (it *Interp) syscall(in *ir.SyscallInstr, frame map[int]Value) error {
	num, err := it.eval(in.Number, frame)
	if err != nil {
		return err
	}
	args, err := it.evalAll(in.Args, frame)
	if err != nil {
		return err
	}

	switch num.n.AsInt64() {
	case sysWrite:
		if len(args) < 3 {
			return fmt.Errorf("write syscall needs 3 args, got %d", len(args))
		}
		var w io.Writer
		switch args[0].n.AsInt64() {
		case 1:
			w = it.Stdout
		case 2:
			w = it.Stderr
		default:
			return fmt.Errorf("write syscall to unsupported fd %d", args[0].n.AsInt64())
		}
		buf, err := it.heap.read(args[1].addr, args[2].n.AsInt64())
		if err != nil {
			return err
		}
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if in.Result != nil {
			frame[in.Result.Number()] = Value{typ: in.Result.Type(), n: atomics.NewInt(atomics.I64, int64(n))}
		}
		return nil

	case sysExit, sysExitGroup:
		code := int64(0)
		if len(args) > 0 {
			code = args[0].n.AsInt64()
		}
		return &exitTrap{code: code}

	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedSyscall, num.n.AsInt64())
	}
}

// --- Shared pointers, interpreted directly rather than lowered first. ---
// Semantics mirror internal/lower exactly: MakeShared always seeds the
// control block at (strong=1, weak=0) regardless of the requested
// strength, which only tags the result pointer's type.

func (it *Interp) execMakeShared(in *ir.MakeSharedInstr, frame map[int]Value) error {
	size, err := it.eval(in.Size, frame)
	if err != nil {
		return err
	}
	ctrl := it.heap.malloc(controlBlockSize + size.n.AsInt64())
	if err := it.heap.store(ctrl+strongFieldOffset, NewIntValue(atomics.NewInt(atomics.I64, 1))); err != nil {
		return err
	}
	if err := it.heap.store(ctrl+weakFieldOffset, NewIntValue(atomics.NewInt(atomics.I64, 0))); err != nil {
		return err
	}
	frame[in.Result.Number()] = Value{typ: in.Result.Type(), addr: ctrl + payloadOffset}
	return nil
}

func (it *Interp) execCopyShared(in *ir.CopySharedInstr, frame map[int]Value) error {
	p, err := it.eval(in.Pointer, frame)
	if err != nil {
		return err
	}
	if p.addr != nilAddr {
		fieldOffset := int64(strongFieldOffset)
		if in.Strength == ir.Weak {
			fieldOffset = weakFieldOffset
		}
		ctrl := p.addr - controlBlockSize
		if err := it.bumpRefcount(ctrl+fieldOffset, 1); err != nil {
			return err
		}
	}
	frame[in.Result.Number()] = Value{typ: in.Result.Type(), addr: p.addr}
	return nil
}

func (it *Interp) execDeleteShared(in *ir.DeleteSharedInstr, frame map[int]Value) error {
	p, err := it.eval(in.Pointer, frame)
	if err != nil {
		return err
	}
	if p.addr == nilAddr {
		return nil
	}
	ctrl := p.addr - controlBlockSize

	if in.Strength == ir.Weak {
		updated, err := it.bumpRefcount(ctrl+weakFieldOffset, -1)
		if err != nil {
			return err
		}
		if !updated.IsZero() {
			return nil
		}
		strong, err := it.heap.load(ctrl, ir.TInt{Width: atomics.I64})
		if err != nil {
			return err
		}
		if strong.n.IsZero() {
			it.heap.free(ctrl)
		}
		return nil
	}

	updated, err := it.bumpRefcount(ctrl+strongFieldOffset, -1)
	if err != nil {
		return err
	}
	if !updated.IsZero() {
		return nil
	}
	if in.Destructor != nil {
		dtor, ok := it.prog.Func(in.Destructor.FuncNum())
		if !ok {
			return fmt.Errorf("destructor func %d not declared", in.Destructor.FuncNum())
		}
		if _, err := it.call(dtor, []Value{{typ: in.Pointer.Type(), addr: p.addr}}); err != nil {
			return err
		}
	}
	weak, err := it.heap.load(ctrl+weakFieldOffset, ir.TInt{Width: atomics.I64})
	if err != nil {
		return err
	}
	if weak.n.IsZero() {
		it.heap.free(ctrl)
	}
	return nil
}

func (it *Interp) bumpRefcount(addr int64, delta int64) (atomics.Int, error) {
	old, err := it.heap.load(addr, ir.TInt{Width: atomics.I64})
	if err != nil {
		return atomics.Int{}, err
	}
	updated, err := atomics.ComputeBinary(old.n, atomics.IntAdd, atomics.NewInt(atomics.I64, delta))
	if err != nil {
		return atomics.Int{}, err
	}
	if err := it.heap.store(addr, NewIntValue(updated)); err != nil {
		return atomics.Int{}, err
	}
	return updated, nil
}

func convert(v Value, result ir.Type) (Value, error) {
	switch rt := result.(type) {
	case ir.TBool:
		switch v.typ.(type) {
		case ir.TBool:
			return Value{typ: result, b: v.b}, nil
		case ir.TInt:
			return Value{typ: result, b: v.n.ConvertToBool()}, nil
		}
	case ir.TInt:
		switch v.typ.(type) {
		case ir.TBool:
			return Value{typ: result, n: atomics.ConvertBoolToInt(rt.Width, v.b)}, nil
		case ir.TInt:
			return Value{typ: result, n: v.n.ConvertTo(rt.Width)}, nil
		}
	case ir.TPointer:
		if _, ok := v.typ.(ir.TPointer); ok {
			return Value{typ: result, addr: v.addr}, nil
		}
	}
	return Value{}, fmt.Errorf("no conversion from %s to %s", v.typ, result)
}

// --- Heap ---

// heap is a byte-addressable arena: malloc only grows it, free is a no-op.
// Address 0 is reserved so a nil pointer constant never aliases a real
// allocation.
type heap struct {
	mem []byte
}

func newHeap() *heap {
	return &heap{mem: make([]byte, 8)}
}

func (h *heap) malloc(size int64) int64 {
	if size < 0 {
		size = 0
	}
	addr := int64(len(h.mem))
	h.mem = append(h.mem, make([]byte, size)...)
	return addr
}

func (h *heap) free(addr int64) {}

func widthOf(t ir.Type) (int64, error) {
	switch tt := t.(type) {
	case ir.TBool:
		return 1, nil
	case ir.TInt:
		return int64(atomics.BitSizeOf(tt.Width) / 8), nil
	case ir.TPointer:
		return 8, nil
	case ir.TFunc:
		return 8, nil
	default:
		return 0, fmt.Errorf("interp: type %s has no runtime representation", t)
	}
}

func (h *heap) bounds(addr, width int64) error {
	if addr < 0 || width < 0 || addr+width > int64(len(h.mem)) {
		return fmt.Errorf("interp: address %d (width %d) out of bounds (heap size %d)", addr, width, len(h.mem))
	}
	return nil
}

func (h *heap) store(addr int64, v Value) error {
	width, err := widthOf(v.typ)
	if err != nil {
		return err
	}
	if err := h.bounds(addr, width); err != nil {
		return err
	}
	switch t := v.typ.(type) {
	case ir.TBool:
		if v.b {
			h.mem[addr] = 1
		} else {
			h.mem[addr] = 0
		}
	case ir.TInt:
		putUint(h.mem[addr:addr+width], v.n.AsUint64())
	case ir.TPointer:
		binary.LittleEndian.PutUint64(h.mem[addr:addr+8], uint64(v.addr))
	case ir.TFunc:
		binary.LittleEndian.PutUint64(h.mem[addr:addr+8], uint64(v.fn))
	default:
		return fmt.Errorf("interp: cannot store value of type %s", t)
	}
	return nil
}

func (h *heap) load(addr int64, t ir.Type) (Value, error) {
	width, err := widthOf(t)
	if err != nil {
		return Value{}, err
	}
	if err := h.bounds(addr, width); err != nil {
		return Value{}, err
	}
	b := h.mem[addr : addr+width]
	switch tt := t.(type) {
	case ir.TBool:
		return Value{typ: t, b: b[0] != 0}, nil
	case ir.TInt:
		return Value{typ: t, n: atomics.NewUint(tt.Width, getUint(b))}, nil
	case ir.TPointer:
		return Value{typ: t, addr: int64(binary.LittleEndian.Uint64(b))}, nil
	case ir.TFunc:
		return Value{typ: t, fn: int(binary.LittleEndian.Uint64(b))}, nil
	default:
		return Value{}, fmt.Errorf("interp: cannot load value of type %s", t)
	}
}

func (h *heap) read(addr, length int64) ([]byte, error) {
	if err := h.bounds(addr, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, h.mem[addr:addr+length])
	return out, nil
}

func putUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint(b []byte) uint64 {
	var v uint64
	for i := range b {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
