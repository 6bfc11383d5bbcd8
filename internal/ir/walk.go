package ir

// ReversePostorder returns the func's block numbers in reverse postorder
// from the entry block, the order the IR printer emits blocks in;
// internal/liveness iterates it backward. Blocks unreachable from the entry
// are omitted.
func ReversePostorder(f *Func) []int {
	visited := make(map[int]bool, f.NumBlocks())
	var postorder []int

	var visit func(num int)
	visit = func(num int) {
		if visited[num] {
			return
		}
		visited[num] = true
		b, ok := f.Block(num)
		if !ok {
			return
		}
		for _, succ := range b.Successors() {
			visit(succ)
		}
		postorder = append(postorder, num)
	}
	visit(f.EntryBlockNum())

	out := make([]int, len(postorder))
	for i, n := range postorder {
		out[len(out)-1-i] = n
	}
	return out
}

// Predecessors computes, for every block in f, the block numbers whose
// terminator targets it. Blocks with no predecessor (only the entry block,
// in a well-formed func) map to an empty slice.
func Predecessors(f *Func) map[int][]int {
	preds := make(map[int][]int, f.NumBlocks())
	for _, b := range f.Blocks() {
		preds[b.Number()] = preds[b.Number()]
		for _, succ := range b.Successors() {
			preds[succ] = append(preds[succ], b.Number())
		}
	}
	return preds
}

// WalkInstrs calls visit for every instruction in f, in block order
// followed by in-block order, passing the owning block and instruction
// index.
func WalkInstrs(f *Func, visit func(b *Block, index int, instr Instr)) {
	for _, b := range f.Blocks() {
		for i, instr := range b.Instrs() {
			visit(b, i, instr)
		}
	}
}
