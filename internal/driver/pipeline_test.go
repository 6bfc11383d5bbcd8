package driver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"katara/internal/atomics"
	"katara/internal/driver"
	"katara/internal/ir"
	"katara/internal/translate"
)

// buildAddOneProgram builds a single-func program: add_one(x i64) i64 { ret x + 1 }.
func buildAddOneProgram(t *testing.T) *ir.Program {
	t.Helper()
	i64 := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("add_one", []ir.Type{i64}, []ir.Type{i64})
	entry, _ := f.Block(f.EntryBlockNum())

	sum := f.NewComputedValue(i64)
	entry.AddInstr(&ir.IntBinaryInstr{Result: sum, Op: atomics.IntAdd, X: f.Params()[0], Y: ir.ConstInt(atomics.NewInt(atomics.I64, 1))})
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{sum}})

	prog.SetEntryFunc(f.Number())
	return prog
}

func TestCompileStraightLineFunc(t *testing.T) {
	prog := buildAddOneProgram(t)

	result, tracker, err := driver.Compile(prog, translate.ProgramContext{})
	require.NoError(t, err)
	require.False(t, tracker.HasErrors())
	require.NotNil(t, result.Linked)
	require.NotEmpty(t, result.Linked.Code)
	require.True(t, result.Linked.HasEntry)
}

func TestCompileRejectsInvalidProgram(t *testing.T) {
	i64 := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("broken", nil, []ir.Type{i64})
	entry, _ := f.Block(f.EntryBlockNum())
	entry.AddInstr(&ir.ReturnInstr{})

	_, tracker, err := driver.Compile(prog, translate.ProgramContext{})
	require.Error(t, err)
	require.True(t, tracker.HasErrors())
}

func TestCompileWithBranchAndPhi(t *testing.T) {
	boolT := ir.TBool{}
	i64 := ir.TInt{Width: atomics.I64}
	prog := ir.NewProgram()
	f := prog.DeclareFunc("select_const", []ir.Type{boolT}, []ir.Type{i64})

	entry, _ := f.Block(f.EntryBlockNum())
	thenB := f.NewBlock()
	elseB := f.NewBlock()
	joinB := f.NewBlock()

	entry.AddInstr(&ir.JumpCondInstr{Cond: f.Params()[0], TrueTarget: thenB.Number(), FalseTarget: elseB.Number()})

	tv := f.NewComputedValue(i64)
	thenB.AddInstr(&ir.MovInstr{Result: tv, Src: ir.ConstInt(atomics.NewInt(atomics.I64, 1))})
	thenB.AddInstr(&ir.JumpInstr{Target: joinB.Number()})

	ev := f.NewComputedValue(i64)
	elseB.AddInstr(&ir.MovInstr{Result: ev, Src: ir.ConstInt(atomics.NewInt(atomics.I64, 2))})
	elseB.AddInstr(&ir.JumpInstr{Target: joinB.Number()})

	pv := f.NewComputedValue(i64)
	joinB.AddInstr(&ir.PhiInstr{Result: pv, Args: []*ir.Value{
		ir.NewInherited(tv, thenB.Number()),
		ir.NewInherited(ev, elseB.Number()),
	}})
	joinB.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{pv}})

	prog.SetEntryFunc(f.Number())

	result, tracker, err := driver.Compile(prog, translate.ProgramContext{})
	require.NoError(t, err)
	require.False(t, tracker.HasErrors())
	require.NotEmpty(t, result.Linked.Code)
}

func TestParseProgramRoundTripsThroughCompile(t *testing.T) {
	prog := buildAddOneProgram(t)
	printed := ir.NewPrinter().PrintProgram(prog)

	reparsed, err := driver.ParseProgram(printed)
	require.NoError(t, err)

	result, tracker, err := driver.Compile(reparsed, translate.ProgramContext{})
	require.NoError(t, err)
	require.False(t, tracker.HasErrors())
	require.NotEmpty(t, result.Linked.Code)
}
