package regalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katara/internal/atomics"
	"katara/internal/ir"
	"katara/internal/liveness"
)

// clique builds an interference graph where every value in vs interferes
// with every other, the worst case for coloring.
func clique(vs []int) *liveness.Interference {
	g := liveness.NewInterference()
	for i := range vs {
		for j := i + 1; j < len(vs); j++ {
			g.AddEdge(vs[i], vs[j])
		}
	}
	return g
}

func TestAllocateGivesDistinctColorsWithinACliqueUnderRegisterBudget(t *testing.T) {
	vs := []int{1, 2, 3, 4, 5}
	g := clique(vs)

	alloc := Allocate(g, vs)

	seen := make(map[Color]bool)
	for _, v := range vs {
		c, ok := alloc.Colors[v]
		require.True(t, ok)
		assert.True(t, c.IsRegister())
		assert.False(t, seen[c], "clique members must get distinct colors")
		seen[c] = true
	}
	assert.Equal(t, 0, alloc.NumStackSlots)
}

func TestAllocateSpillsWhenCliqueExceedsAvailableRegisters(t *testing.T) {
	vs := make([]int, NumGPR+1)
	for i := range vs {
		vs[i] = i
	}
	g := clique(vs)

	alloc := Allocate(g, vs)

	colors := make(map[Color]bool)
	spills := 0
	for _, v := range vs {
		c := alloc.Colors[v]
		colors[c] = true
		if !c.IsRegister() {
			spills++
		}
	}
	assert.Equal(t, len(vs), len(colors), "every member of a clique must still get a unique color even past the register budget")
	assert.Equal(t, 1, spills, "exactly one member of a (k+1)-clique must spill to a stack slot")
	assert.Equal(t, 1, alloc.NumStackSlots)
}

func TestAllocateReusesColorsAcrossNonInterferingValues(t *testing.T) {
	// a-b interfere, c isolated: c reuses color 0, which b also holds.
	g := liveness.NewInterference()
	g.AddEdge(1, 2)
	g.AddNode(3)

	alloc := Allocate(g, []int{1, 2, 3})

	assert.NotEqual(t, alloc.Colors[1], alloc.Colors[2])
	assert.Equal(t, Color(1), alloc.Colors[1])
	assert.Equal(t, Color(0), alloc.Colors[3])
}

func TestAllocateEndToEndOverLivenessAssignsDistinctColorsToInterferingValues(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("add3", nil, []ir.Type{ir.TInt{Width: atomics.I64}})
	entry, _ := f.Block(f.EntryBlockNum())

	a := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	b := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	c := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	sum1 := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	sum2 := f.NewComputedValue(ir.TInt{Width: atomics.I64})

	entry.AddInstr(&ir.IntBinaryInstr{Result: a, Op: atomics.IntAdd, X: ir.ConstInt(atomics.NewInt(atomics.I64, 1)), Y: ir.ConstInt(atomics.NewInt(atomics.I64, 1))})
	entry.AddInstr(&ir.IntBinaryInstr{Result: b, Op: atomics.IntAdd, X: ir.ConstInt(atomics.NewInt(atomics.I64, 2)), Y: ir.ConstInt(atomics.NewInt(atomics.I64, 2))})
	entry.AddInstr(&ir.IntBinaryInstr{Result: c, Op: atomics.IntAdd, X: ir.ConstInt(atomics.NewInt(atomics.I64, 3)), Y: ir.ConstInt(atomics.NewInt(atomics.I64, 3))})
	entry.AddInstr(&ir.IntBinaryInstr{Result: sum1, Op: atomics.IntAdd, X: a, Y: b})
	entry.AddInstr(&ir.IntBinaryInstr{Result: sum2, Op: atomics.IntAdd, X: sum1, Y: c})
	entry.AddInstr(&ir.ReturnInstr{Args: []*ir.Value{sum2}})

	info := liveness.Compute(f)
	g := liveness.BuildInterference(f, info)
	values := AllValueNumbers(f)

	alloc := Allocate(g, values)

	// a, b, and c are all simultaneously live right before sum1 is computed
	// (a and b) and right before sum2 (sum1 and c), so a/b/c must pairwise
	// get distinct colors from one another where they actually interfere.
	assert.NotEqual(t, alloc.Colors[a.Number()], alloc.Colors[b.Number()])
	assert.NotEqual(t, alloc.Colors[sum1.Number()], alloc.Colors[c.Number()])
	for _, v := range values {
		assert.True(t, alloc.Colors[v].IsRegister())
	}
}
