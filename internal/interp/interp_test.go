package interp_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"katara/internal/atomics"
	"katara/internal/interp"
	"katara/internal/ir"
)

func i64(n int64) *ir.Value { return ir.ConstInt(atomics.NewInt(atomics.I64, n)) }

func TestRunEmptyMainReturnsExitCodeZero(t *testing.T) {
	i64t := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("main", nil, []ir.Type{i64t})
	entry, _ := f.Block(f.EntryBlockNum())
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{i64(0)}})
	prog.SetEntryFunc(f.Number())

	code, err := interp.New(prog).RunMain(nil)
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestRunSharedPointerStoreLoadDeleteReturns42(t *testing.T) {
	i64t := ir.TInt{Width: atomics.I64}
	ptrT := ir.TPointer{Strength: ir.Strong}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("main", nil, []ir.Type{i64t})
	entry, _ := f.Block(f.EntryBlockNum())

	ptr := f.NewComputedValue(ptrT)
	entry.AddInstr(&ir.MakeSharedInstr{Result: ptr, Strength: ir.Strong, Size: i64(8)})
	entry.AddInstr(&ir.StoreInstr{Address: ptr, Value: i64(42)})

	loaded := f.NewComputedValue(i64t)
	entry.AddInstr(&ir.LoadInstr{Result: loaded, Address: ptr})
	entry.AddInstr(&ir.DeleteSharedInstr{Pointer: ptr, Strength: ir.Strong})
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{loaded}})
	prog.SetEntryFunc(f.Number())

	code, err := interp.New(prog).RunMain(nil)
	require.NoError(t, err)
	require.Equal(t, 42, code)
}

func TestRunWeakPointerAloneNeverFrees(t *testing.T) {
	i64t := ir.TInt{Width: atomics.I64}
	strongT := ir.TPointer{Strength: ir.Strong}
	weakT := ir.TPointer{Strength: ir.Weak}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("main", nil, []ir.Type{i64t})
	entry, _ := f.Block(f.EntryBlockNum())

	strong := f.NewComputedValue(strongT)
	entry.AddInstr(&ir.MakeSharedInstr{Result: strong, Strength: ir.Strong, Size: i64(8)})
	entry.AddInstr(&ir.StoreInstr{Address: strong, Value: i64(7)})

	weak := f.NewComputedValue(weakT)
	entry.AddInstr(&ir.CopySharedInstr{Result: weak, Pointer: strong, Strength: ir.Weak})

	// Dropping only the weak reference must not free the payload while the
	// strong reference is still alive.
	entry.AddInstr(&ir.DeleteSharedInstr{Pointer: weak, Strength: ir.Weak})

	loaded := f.NewComputedValue(i64t)
	entry.AddInstr(&ir.LoadInstr{Result: loaded, Address: strong})
	entry.AddInstr(&ir.DeleteSharedInstr{Pointer: strong, Strength: ir.Strong})
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{loaded}})
	prog.SetEntryFunc(f.Number())

	code, err := interp.New(prog).RunMain(nil)
	require.NoError(t, err)
	require.Equal(t, 7, code)
}

// TestRunLoopSums0To9Returns45 builds:
//
//	{0} jmp {1}
//	{1} i = phi(#0@{0}, i'@{2}), sum = phi(#0@{0}, sum'@{2})
//	    cond = icmp_lss i, #10
//	    jcc cond, {2}, {3}
//	{2} sum' = add sum, i
//	    i' = add i, #1
//	    jmp {1}
//	{3} ret sum
func TestRunLoopSums0To9Returns45(t *testing.T) {
	i64t := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("main", nil, []ir.Type{i64t})

	entry, _ := f.Block(f.EntryBlockNum())
	header := f.NewBlock()
	body := f.NewBlock()
	exit := f.NewBlock()

	entry.AddInstr(&ir.JumpInstr{Target: header.Number()})

	i := f.NewComputedValue(i64t)
	sum := f.NewComputedValue(i64t)
	cond := f.NewComputedValue(ir.TBool{})

	bodyI := f.NewComputedValue(i64t)
	bodySum := f.NewComputedValue(i64t)

	header.AddInstr(&ir.PhiInstr{Result: i, Args: []*ir.Value{
		ir.NewInherited(i64(0), entry.Number()),
		ir.NewInherited(bodyI, body.Number()),
	}})
	header.AddInstr(&ir.PhiInstr{Result: sum, Args: []*ir.Value{
		ir.NewInherited(i64(0), entry.Number()),
		ir.NewInherited(bodySum, body.Number()),
	}})
	header.AddInstr(&ir.IntCompareInstr{Result: cond, Op: atomics.CmpLss, X: i, Y: i64(10)})
	header.AddInstr(&ir.JumpCondInstr{Cond: cond, TrueTarget: body.Number(), FalseTarget: exit.Number()})

	body.AddInstr(&ir.IntBinaryInstr{Result: bodySum, Op: atomics.IntAdd, X: sum, Y: i})
	body.AddInstr(&ir.IntBinaryInstr{Result: bodyI, Op: atomics.IntAdd, X: i, Y: i64(1)})
	body.AddInstr(&ir.JumpInstr{Target: header.Number()})

	exit.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{sum}})
	prog.SetEntryFunc(f.Number())

	code, err := interp.New(prog).RunMain(nil)
	require.NoError(t, err)
	require.Equal(t, 45, code)
}

// TestRunCallThroughFuncValueAddsOne builds a helper add_one(x) = x + 1 and
// a main that calls it indirectly through a function-typed constant.
func TestRunCallThroughFuncValueAddsOne(t *testing.T) {
	i64t := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()

	addOne := prog.DeclareFunc("add_one", []ir.Type{i64t}, []ir.Type{i64t})
	addEntry, _ := addOne.Block(addOne.EntryBlockNum())
	sum := addOne.NewComputedValue(i64t)
	addEntry.AddInstr(&ir.IntBinaryInstr{Result: sum, Op: atomics.IntAdd, X: addOne.Params()[0], Y: i64(1)})
	addEntry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{sum}})

	main := prog.DeclareFunc("main", nil, []ir.Type{i64t})
	mainEntry, _ := main.Block(main.EntryBlockNum())
	result := main.NewComputedValue(i64t)
	mainEntry.AddInstr(&ir.CallInstr{
		Results: []*ir.Value{result},
		Callee:  ir.ConstFunc(addOne.Number()),
		Args:    []*ir.Value{i64(41)},
	})
	mainEntry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{result}})
	prog.SetEntryFunc(main.Number())

	code, err := interp.New(prog).RunMain(nil)
	require.NoError(t, err)
	require.Equal(t, 42, code)
}

func TestRunSyscallWriteEmitsBytesAndReturnsCount(t *testing.T) {
	i64t := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("main", nil, []ir.Type{i64t})
	entry, _ := f.Block(f.EntryBlockNum())

	buf := f.NewComputedValue(ir.TPointer{Strength: ir.Strong})
	entry.AddInstr(&ir.MallocInstr{Result: buf, Size: i64(1)})
	entry.AddInstr(&ir.StoreInstr{Address: buf, Value: ir.ConstInt(atomics.NewInt(atomics.I8, 'x'))})

	n := f.NewComputedValue(i64t)
	entry.AddInstr(&ir.SyscallInstr{
		Result: n,
		Number: i64(1), // write
		Args:   []*ir.Value{i64(1), buf, i64(1)},
	})
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{n}})
	prog.SetEntryFunc(f.Number())

	var stdout bytes.Buffer
	it := interp.New(prog)
	it.Stdout = &stdout

	code, err := it.RunMain(nil)
	require.NoError(t, err)
	require.Equal(t, 1, code)
	require.Equal(t, "x", stdout.String())
}

func TestRunExitSyscallShortCircuitsReturn(t *testing.T) {
	i64t := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("main", nil, []ir.Type{i64t})
	entry, _ := f.Block(f.EntryBlockNum())

	entry.AddInstr(&ir.SyscallInstr{Number: i64(60), Args: []*ir.Value{i64(7)}})
	// Unreachable if the exit trap unwinds the call as expected.
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{i64(0)}})
	prog.SetEntryFunc(f.Number())

	code, err := interp.New(prog).RunMain(nil)
	require.NoError(t, err)
	require.Equal(t, 7, code)
}

func TestRunDivisionByZeroReportsError(t *testing.T) {
	i64t := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("main", nil, []ir.Type{i64t})
	entry, _ := f.Block(f.EntryBlockNum())

	result := f.NewComputedValue(i64t)
	entry.AddInstr(&ir.IntBinaryInstr{Result: result, Op: atomics.IntDiv, X: i64(1), Y: i64(0)})
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{result}})
	prog.SetEntryFunc(f.Number())

	_, err := interp.New(prog).RunMain(nil)
	require.Error(t, err)
}
