package phi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katara/internal/atomics"
	"katara/internal/ir"
)

func movInto(b *ir.Block, v *ir.Value) *ir.MovInstr {
	for _, instr := range b.Instrs() {
		if mv, ok := instr.(*ir.MovInstr); ok && mv.Result == v {
			return mv
		}
	}
	return nil
}

func TestResolveDiamondInsertsMovsInEachPredecessor(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("diamond", []ir.Type{ir.TBool{}}, []ir.Type{ir.TInt{Width: atomics.I64}})
	entry, _ := f.Block(f.EntryBlockNum())
	b1 := f.NewBlock()
	b2 := f.NewBlock()
	join := f.NewBlock()

	entry.AddInstr(&ir.JumpCondInstr{Cond: f.Params()[0], TrueTarget: b1.Number(), FalseTarget: b2.Number()})
	b1.AddInstr(&ir.JumpInstr{Target: join.Number()})
	b2.AddInstr(&ir.JumpInstr{Target: join.Number()})

	one := ir.ConstInt(atomics.NewInt(atomics.I64, 1))
	two := ir.ConstInt(atomics.NewInt(atomics.I64, 2))
	result := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	join.AddInstr(&ir.PhiInstr{Result: result, Args: []*ir.Value{
		ir.NewInherited(one, b1.Number()),
		ir.NewInherited(two, b2.Number()),
	}})
	join.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{result}})

	Resolve(f)

	assert.Empty(t, join.Phis())
	mv1 := movInto(b1, result)
	require.NotNil(t, mv1)
	assert.Equal(t, one, mv1.Src)
	mv2 := movInto(b2, result)
	require.NotNil(t, mv2)
	assert.Equal(t, two, mv2.Src)

	// movs land before the terminator, not after it
	instrs := b1.Instrs()
	_, lastIsJump := instrs[len(instrs)-1].(*ir.JumpInstr)
	assert.True(t, lastIsJump)
}

func TestResolveBreaksSwapCycleOnBackEdge(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("swap_loop", nil, []ir.Type{ir.TInt{Width: atomics.I64}, ir.TInt{Width: atomics.I64}})
	entry, _ := f.Block(f.EntryBlockNum())
	loop := f.NewBlock()
	done := f.NewBlock()

	entry.AddInstr(&ir.JumpInstr{Target: loop.Number()})

	aVal := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	bVal := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	zero := ir.ConstInt(atomics.NewInt(atomics.I64, 0))
	cond := f.NewComputedValue(ir.TBool{})

	aPhi := &ir.PhiInstr{Result: aVal, Args: []*ir.Value{
		ir.NewInherited(ir.ConstInt(atomics.NewInt(atomics.I64, 10)), entry.Number()),
		ir.NewInherited(bVal, loop.Number()),
	}}
	bPhi := &ir.PhiInstr{Result: bVal, Args: []*ir.Value{
		ir.NewInherited(ir.ConstInt(atomics.NewInt(atomics.I64, 20)), entry.Number()),
		ir.NewInherited(aVal, loop.Number()),
	}}
	loop.AddInstr(aPhi)
	loop.AddInstr(bPhi)
	loop.AddInstr(&ir.IntCompareInstr{Result: cond, Op: atomics.CmpEq, X: aVal, Y: zero})
	loop.AddInstr(&ir.JumpCondInstr{Cond: cond, TrueTarget: done.Number(), FalseTarget: loop.Number()})

	done.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{aVal, bVal}})

	Resolve(f)

	assert.Empty(t, loop.Phis())

	content := map[*ir.Value]string{aVal: "oldA", bVal: "oldB"}
	for _, instr := range loop.Instrs() {
		mv, ok := instr.(*ir.MovInstr)
		if !ok {
			continue
		}
		content[mv.Result] = content[mv.Src]
	}
	assert.Equal(t, "oldB", content[aVal], "the back edge must swap a and b, not just overwrite one with the other")
	assert.Equal(t, "oldA", content[bVal])
}

func TestResolveSkipsRedundantSelfMove(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("self_carry", nil, []ir.Type{ir.TInt{Width: atomics.I64}})
	entry, _ := f.Block(f.EntryBlockNum())
	loop := f.NewBlock()
	done := f.NewBlock()

	entry.AddInstr(&ir.JumpInstr{Target: loop.Number()})

	v := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	cond := f.NewComputedValue(ir.TBool{})
	phi := &ir.PhiInstr{Result: v, Args: []*ir.Value{
		ir.NewInherited(ir.ConstInt(atomics.NewInt(atomics.I64, 0)), entry.Number()),
		ir.NewInherited(v, loop.Number()),
	}}
	loop.AddInstr(phi)
	loop.AddInstr(&ir.IntCompareInstr{Result: cond, Op: atomics.CmpEq, X: v, Y: ir.ConstInt(atomics.NewInt(atomics.I64, 0))})
	loop.AddInstr(&ir.JumpCondInstr{Cond: cond, TrueTarget: done.Number(), FalseTarget: loop.Number()})
	done.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{v}})

	Resolve(f)

	for _, instr := range loop.Instrs() {
		if mv, ok := instr.(*ir.MovInstr); ok {
			assert.NotEqual(t, v, mv.Result, "v <- v on the back edge is a no-op and should not be emitted")
		}
	}
}
