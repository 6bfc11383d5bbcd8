package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katara/internal/ir"
)

// buildDiamond builds entry -> (b1, b2) -> join -> ret, the textbook
// dominator-tree example where join's idom is entry, not b1 or b2.
func buildDiamond() *ir.Func {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("diamond", nil, nil)
	entry, _ := f.Block(f.EntryBlockNum())
	b1 := f.NewBlock()
	b2 := f.NewBlock()
	join := f.NewBlock()

	entry.AddInstr(&ir.JumpCondInstr{Cond: ir.ConstBool(true), TrueTarget: b1.Number(), FalseTarget: b2.Number()})
	b1.AddInstr(&ir.JumpInstr{Target: join.Number()})
	b2.AddInstr(&ir.JumpInstr{Target: join.Number()})
	join.AddInstr(&ir.ReturnInstr{})
	return f
}

func TestDominatorsDiamond(t *testing.T) {
	f := buildDiamond()
	tree := Dominators(f)

	entry := f.EntryBlockNum()
	_, ok := tree.IDom(entry)
	assert.False(t, ok, "entry block has no immediate dominator")

	blocks := f.Blocks()
	var b1, b2, join int
	for _, b := range blocks {
		if b.Number() == entry {
			continue
		}
		preds := ir.Predecessors(f)[b.Number()]
		if len(preds) == 1 && preds[0] == entry {
			if b1 == 0 {
				b1 = b.Number()
			} else {
				b2 = b.Number()
			}
		} else {
			join = b.Number()
		}
	}

	idomB1, ok := tree.IDom(b1)
	require.True(t, ok)
	assert.Equal(t, entry, idomB1)

	idomJoin, ok := tree.IDom(join)
	require.True(t, ok)
	assert.Equal(t, entry, idomJoin, "join's idom must be entry, not either branch")

	assert.True(t, tree.Dominates(entry, join))
	assert.False(t, tree.Dominates(b1, join))
	assert.False(t, tree.Dominates(b2, b1))
}

func TestDominatorsLinearChain(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("chain", nil, nil)
	entry, _ := f.Block(f.EntryBlockNum())
	mid := f.NewBlock()
	last := f.NewBlock()
	entry.AddInstr(&ir.JumpInstr{Target: mid.Number()})
	mid.AddInstr(&ir.JumpInstr{Target: last.Number()})
	last.AddInstr(&ir.ReturnInstr{})

	tree := Dominators(f)
	idomMid, _ := tree.IDom(mid.Number())
	assert.Equal(t, entry.Number(), idomMid)
	idomLast, _ := tree.IDom(last.Number())
	assert.Equal(t, mid.Number(), idomLast)
	assert.True(t, tree.Dominates(entry.Number(), last.Number()))
}

func TestDominatorsCacheInvalidatedByMutation(t *testing.T) {
	f := buildDiamond()
	first := Dominators(f)

	extra := f.NewBlock()
	extra.AddInstr(&ir.ReturnInstr{})

	second := Dominators(f)
	assert.NotSame(t, first, second, "structural mutation must invalidate the cached dominator tree")
}

func TestDotRendersAllBlocks(t *testing.T) {
	f := buildDiamond()
	out := Dot(f)
	assert.Contains(t, out, "digraph func_0")
	for _, b := range f.Blocks() {
		assert.Contains(t, out, fmt.Sprintf("b%d", b.Number()))
	}
}
