// Package graph computes dominator trees over the IR control-flow graph
// using the Lengauer-Tarjan algorithm with path compression, and exports
// the graph in textual dot form for debugging.
package graph

import "katara/internal/ir"

// DomTree is the immediate-dominator relation for one func: for every
// non-entry, reachable block number, the number of its immediate
// dominator. The entry block and unreachable blocks have no entry.
type DomTree struct {
	entry   int
	idom    map[int]int
	order   []int // blocks in DFS preorder, entry first
	domKids map[int][]int
}

// IDom returns the immediate dominator of block num, or (0, false) if num
// is the entry block or unreachable.
func (t *DomTree) IDom(num int) (int, bool) {
	d, ok := t.idom[num]
	return d, ok
}

// Dominates reports whether a dominates b (reflexively: a block dominates
// itself).
func (t *DomTree) Dominates(a, b int) bool {
	for b != a {
		d, ok := t.idom[b]
		if !ok {
			return false
		}
		b = d
	}
	return true
}

// Children returns the blocks whose immediate dominator is num.
func (t *DomTree) Children(num int) []int { return t.domKids[num] }

// Dominators computes (or returns a cached) DomTree for f. The cache is
// keyed on f.Version(), so it is invalidated by adding or removing a block,
// or by f.Touch() after a block's instructions were edited.
func Dominators(f *ir.Func) *DomTree {
	if cached, version := f.DomCache(); cached != nil && version == f.Version() {
		if t, ok := cached.(*DomTree); ok {
			return t
		}
	}
	t := computeDominators(f)
	f.SetDomCache(t)
	return t
}

// computeDominators runs the classic Lengauer-Tarjan algorithm: DFS
// numbering, semidominator computation via a union-find with path
// compression, then immediate dominators via the Sdom/Idom lemma. The
// overall complexity is O((V+E)*alpha(V)).
func computeDominators(f *ir.Func) *DomTree {
	entry := f.EntryBlockNum()
	succOf := make(map[int][]int)
	predOf := ir.Predecessors(f)
	for _, b := range f.Blocks() {
		succOf[b.Number()] = b.Successors()
	}

	// DFS numbering.
	var dfsOrder []int
	dfsNum := make(map[int]int)
	parent := make(map[int]int)
	var dfs func(int)
	dfs = func(n int) {
		if _, seen := dfsNum[n]; seen {
			return
		}
		dfsNum[n] = len(dfsOrder)
		dfsOrder = append(dfsOrder, n)
		for _, s := range succOf[n] {
			if _, seen := dfsNum[s]; !seen {
				parent[s] = n
				dfs(s)
			}
		}
	}
	dfs(entry)

	n := len(dfsOrder)
	ancestor := make([]int, n)
	label := make([]int, n)
	semi := make([]int, n)
	vertex := make([]int, n)
	dom := make([]int, n)
	for i := 0; i < n; i++ {
		ancestor[i] = -1
		label[i] = i
		semi[i] = i
		vertex[i] = dfsOrder[i]
	}

	bucket := make(map[int][]int)

	var compress func(v int)
	compress = func(v int) {
		if ancestor[ancestor[v]] != -1 {
			compress(ancestor[v])
			if semi[label[ancestor[v]]] < semi[label[v]] {
				label[v] = label[ancestor[v]]
			}
			ancestor[v] = ancestor[ancestor[v]]
		}
	}
	evalLabel := func(v int) int {
		if ancestor[v] == -1 {
			return v
		}
		compress(v)
		return label[v]
	}
	link := func(v, w int) { ancestor[w] = v }

	predDFS := make(map[int][]int, n)
	for blockNum, preds := range predOf {
		vNum, ok := dfsNum[blockNum]
		if !ok {
			continue
		}
		for _, p := range preds {
			pNum, ok := dfsNum[p]
			if !ok {
				continue
			}
			predDFS[vNum] = append(predDFS[vNum], pNum)
		}
	}

	idomNum := make([]int, n)

	for i := n - 1; i >= 1; i-- {
		w := i
		for _, v := range predDFS[w] {
			u := evalLabel(v)
			if semi[u] < semi[w] {
				semi[w] = semi[u]
			}
		}
		bucket[semi[w]] = append(bucket[semi[w]], w)

		parentNum := dfsNum[parent[vertex[w]]]
		link(parentNum, w)

		for _, v := range bucket[parentNum] {
			u := evalLabel(v)
			if semi[u] < semi[v] {
				idomNum[v] = u
			} else {
				idomNum[v] = parentNum
			}
		}
		bucket[parentNum] = nil
	}
	for i := 1; i < n; i++ {
		if idomNum[i] != semi[i] {
			idomNum[i] = idomNum[idomNum[i]]
		}
	}

	idom := make(map[int]int, n-1)
	domKids := make(map[int][]int, n)
	for i := 1; i < n; i++ {
		blockNum := vertex[i]
		idomBlockNum := vertex[idomNum[i]]
		idom[blockNum] = idomBlockNum
		domKids[idomBlockNum] = append(domKids[idomBlockNum], blockNum)
	}

	return &DomTree{entry: entry, idom: idom, order: dfsOrder, domKids: domKids}
}
