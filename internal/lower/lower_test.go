package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katara/internal/atomics"
	"katara/internal/check"
	"katara/internal/ir"
)

func countInstrKind[T ir.Instr](f *ir.Func) int {
	n := 0
	ir.WalkInstrs(f, func(b *ir.Block, idx int, instr ir.Instr) {
		if _, ok := instr.(T); ok {
			n++
		}
	})
	return n
}

func TestLowerMakeSharedProducesMallocAndInit(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("make_box", nil, []ir.Type{ir.TShared{Strength: ir.Strong, Elem: ir.TInt{Width: atomics.I64}}})
	entry, _ := f.Block(f.EntryBlockNum())

	result := f.NewComputedValue(ir.TShared{Strength: ir.Strong, Elem: ir.TInt{Width: atomics.I64}})
	entry.AddInstr(&ir.MakeSharedInstr{Result: result, Strength: ir.Strong, Size: ir.ConstInt(atomics.NewInt(atomics.I64, 8))})
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{result}})

	Lower(prog)

	assert.Equal(t, 0, countInstrKind[*ir.MakeSharedInstr](f))
	assert.Equal(t, 1, countInstrKind[*ir.MallocInstr](f))
	assert.True(t, result.Type().(ir.TPointer).Strength == ir.Strong)

	tracker := check.Check(prog)
	assert.False(t, tracker.HasErrors(), "lowered program must still pass the structural checker: %v", tracker.Issues())
}

func TestLowerCopySharedIsNoOpOnNilAndIncrementsOtherwise(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("copy_box", []ir.Type{ir.TShared{Strength: ir.Strong, Elem: ir.TInt{Width: atomics.I64}}}, []ir.Type{ir.TShared{Strength: ir.Strong, Elem: ir.TInt{Width: atomics.I64}}})
	entry, _ := f.Block(f.EntryBlockNum())

	ptr := f.Params()[0]
	result := f.NewComputedValue(ir.TShared{Strength: ir.Strong, Elem: ir.TInt{Width: atomics.I64}})
	entry.AddInstr(&ir.CopySharedInstr{Result: result, Pointer: ptr, Strength: ir.Strong})
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{result}})

	Lower(prog)

	assert.Equal(t, 0, countInstrKind[*ir.CopySharedInstr](f))
	require.Equal(t, 1, countInstrKind[*ir.NilTestInstr](f))
	assert.Equal(t, 1, countInstrKind[*ir.LoadInstr](f))
	assert.Equal(t, 1, countInstrKind[*ir.StoreInstr](f))

	tracker := check.Check(prog)
	assert.False(t, tracker.HasErrors(), "lowered program must still pass the structural checker: %v", tracker.Issues())
}

func TestLowerDeleteSharedStrongFreesControlBlockWhenBothZero(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("drop_box", []ir.Type{ir.TShared{Strength: ir.Strong, Elem: ir.TInt{Width: atomics.I64}}}, nil)
	entry, _ := f.Block(f.EntryBlockNum())

	ptr := f.Params()[0]
	entry.AddInstr(&ir.DeleteSharedInstr{Pointer: ptr, Strength: ir.Strong})
	entry.AddInstr(&ir.ReturnInstr{})

	Lower(prog)

	assert.Equal(t, 0, countInstrKind[*ir.DeleteSharedInstr](f))
	assert.Equal(t, 1, countInstrKind[*ir.FreeInstr](f))
	// five diamond branches worth of blocks past the entry: body, strong-zero, free, plus entry+cont
	assert.GreaterOrEqual(t, f.NumBlocks(), 5)

	tracker := check.Check(prog)
	assert.False(t, tracker.HasErrors(), "lowered program must still pass the structural checker: %v", tracker.Issues())
}

func TestLowerDeleteSharedRunsDestructorBeforeFree(t *testing.T) {
	prog := ir.NewProgram()
	dtor := prog.DeclareFunc("dtor", []ir.Type{ir.TPointer{Strength: ir.Strong}}, nil)
	dtorEntry, _ := dtor.Block(dtor.EntryBlockNum())
	dtorEntry.AddInstr(&ir.ReturnInstr{})

	f := prog.DeclareFunc("drop_with_dtor", []ir.Type{ir.TShared{Strength: ir.Strong, Elem: ir.TInt{Width: atomics.I64}}}, nil)
	entry, _ := f.Block(f.EntryBlockNum())
	ptr := f.Params()[0]
	entry.AddInstr(&ir.DeleteSharedInstr{Pointer: ptr, Strength: ir.Strong, Destructor: ir.ConstFunc(dtor.Number())})
	entry.AddInstr(&ir.ReturnInstr{})

	Lower(prog)

	assert.Equal(t, 1, countInstrKind[*ir.CallInstr](f))

	tracker := check.Check(prog)
	assert.False(t, tracker.HasErrors(), "lowered program must still pass the structural checker: %v", tracker.Issues())
}

func TestLowerWeakDeleteDoesNotFreeWhileStrongOutstanding(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("drop_weak", []ir.Type{ir.TShared{Strength: ir.Weak, Elem: ir.TInt{Width: atomics.I64}}}, nil)
	entry, _ := f.Block(f.EntryBlockNum())
	ptr := f.Params()[0]
	entry.AddInstr(&ir.DeleteSharedInstr{Pointer: ptr, Strength: ir.Weak})
	entry.AddInstr(&ir.ReturnInstr{})

	Lower(prog)

	assert.Equal(t, 0, countInstrKind[*ir.DeleteSharedInstr](f))
	assert.Equal(t, 1, countInstrKind[*ir.FreeInstr](f), "still a conditional free reachable only if strong is also zero")

	tracker := check.Check(prog)
	assert.False(t, tracker.HasErrors(), "lowered program must still pass the structural checker: %v", tracker.Issues())
}
