package ir

// Block is a basic block: a straight-line sequence of instructions ending
// in a single Terminator. Blocks reference each other only by number,
// never by pointer.
type Block struct {
	num    int
	instrs []Instr
}

func newBlock(num int) *Block {
	return &Block{num: num}
}

func (b *Block) Number() int { return b.num }

func (b *Block) Instrs() []Instr { return b.instrs }

func (b *Block) Len() int { return len(b.instrs) }

// AddInstr appends instr to the end of the block.
func (b *Block) AddInstr(instr Instr) {
	b.instrs = append(b.instrs, instr)
}

// InsertInstr inserts instr at position idx, shifting following
// instructions back. Used by internal/lower and internal/phi to splice in
// lowered code without disturbing a block's terminator.
func (b *Block) InsertInstr(idx int, instr Instr) {
	b.instrs = append(b.instrs, nil)
	copy(b.instrs[idx+1:], b.instrs[idx:])
	b.instrs[idx] = instr
}

// RemoveInstr deletes the instruction at position idx.
func (b *Block) RemoveInstr(idx int) {
	b.instrs = append(b.instrs[:idx], b.instrs[idx+1:]...)
}

// Terminator returns the block's final instruction if it is a Terminator,
// or nil otherwise (a malformed block, caught by internal/check).
func (b *Block) Terminator() Terminator {
	if len(b.instrs) == 0 {
		return nil
	}
	t, ok := b.instrs[len(b.instrs)-1].(Terminator)
	if !ok {
		return nil
	}
	return t
}

// Phis returns the block's leading Phi instructions, in order.
func (b *Block) Phis() []*PhiInstr {
	var out []*PhiInstr
	for _, instr := range b.instrs {
		phi, ok := instr.(*PhiInstr)
		if !ok {
			break
		}
		out = append(out, phi)
	}
	return out
}

// Successors returns the block numbers this block's terminator transfers
// control to, or nil if the block has no (valid) terminator yet.
func (b *Block) Successors() []int {
	t := b.Terminator()
	if t == nil {
		return nil
	}
	return t.Targets()
}
