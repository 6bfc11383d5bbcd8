// Package regalloc implements the greedy graph-coloring register allocator
// over internal/liveness's interference graph.
package regalloc

import (
	"katara/internal/ir"
	"katara/internal/liveness"
)

// NumGPR is the count of available general-purpose x86-64 registers
// (rax, rcx, rdx, rbx, rsp, rbp, rsi, rdi, r8..r15), colors 0..15.
const NumGPR = 16

// Color is a value's assigned location: a register number below NumGPR, or
// a stack-slot index (color - NumGPR) at or above it.
type Color int

func (c Color) IsRegister() bool    { return int(c) < NumGPR }
func (c Color) StackSlotIndex() int { return int(c) - NumGPR }

// Allocation is the coloring result for one func.
type Allocation struct {
	Colors        map[int]Color // value number -> color
	NumStackSlots int
}

// AllValueNumbers collects every computed value number in f -- its
// parameters plus every instruction's defined values -- the node set
// Allocate colors. A value with no interference edges at all (never live
// alongside anything else) still needs a color, so this is gathered
// independently of the interference graph's node set.
func AllValueNumbers(f *ir.Func) []int {
	seen := make(map[int]bool)
	var out []int
	add := func(n int) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, p := range f.Params() {
		add(p.Number())
	}
	ir.WalkInstrs(f, func(b *ir.Block, idx int, instr ir.Instr) {
		for _, d := range instr.Defines() {
			if d.IsComputed() {
				add(d.Number())
			}
		}
	})
	return out
}

// Allocate colors every node in values against g using simplify/spill:
// repeatedly remove a node of degree < NumGPR (pushing it on a stack), or
// -- when none exists -- a spill candidate chosen by highest current
// degree; then pop the stack, assigning each node the lowest color its
// already-colored neighbors don't use, overflowing to a fresh stack slot
// past NumGPR when all 16 registers are taken.
//
// All 16 GPRs are legal for every value width (the bit-width hint is
// therefore a non-constraint on x86-64: there is no
// width-restricted register class to route around), so no width parameter
// is threaded through coloring; internal/translate sizes the operand it
// emits for a color from the value's own type, not from the color.
func Allocate(g *liveness.Interference, values []int) *Allocation {
	w := newWorkingGraph(g, values)

	var stack []int
	for w.remaining() > 0 {
		node, ok := w.pickLowDegree(NumGPR)
		if !ok {
			node = w.pickSpillCandidate()
		}
		stack = append(stack, node)
		w.remove(node)
	}

	colors := make(map[int]Color, len(values))
	numStackSlots := 0
	for i := len(stack) - 1; i >= 0; i-- {
		node := stack[i]
		used := make(map[Color]bool)
		for nb := range g.Neighbors(node) {
			if c, ok := colors[nb]; ok {
				used[c] = true
			}
		}
		color := Color(0)
		for used[color] && int(color) < NumGPR {
			color++
		}
		if int(color) >= NumGPR {
			color = Color(NumGPR + numStackSlots)
			numStackSlots++
		}
		colors[node] = color
	}
	return &Allocation{Colors: colors, NumStackSlots: numStackSlots}
}

type workingGraph struct {
	g       *liveness.Interference
	nodes   []int
	removed map[int]bool
}

func newWorkingGraph(g *liveness.Interference, values []int) *workingGraph {
	return &workingGraph{
		g:       g,
		nodes:   append([]int(nil), values...),
		removed: make(map[int]bool, len(values)),
	}
}

func (w *workingGraph) remaining() int {
	n := 0
	for _, v := range w.nodes {
		if !w.removed[v] {
			n++
		}
	}
	return n
}

func (w *workingGraph) degree(v int) int {
	d := 0
	for nb := range w.g.Neighbors(v) {
		if !w.removed[nb] {
			d++
		}
	}
	return d
}

func (w *workingGraph) pickLowDegree(k int) (int, bool) {
	for _, v := range w.nodes {
		if w.removed[v] {
			continue
		}
		if w.degree(v) < k {
			return v, true
		}
	}
	return 0, false
}

// pickSpillCandidate picks the remaining node of highest current degree,
// breaking ties by lowest value number for deterministic output.
func (w *workingGraph) pickSpillCandidate() int {
	best := -1
	bestDegree := -1
	for _, v := range w.nodes {
		if w.removed[v] {
			continue
		}
		d := w.degree(v)
		if d > bestDegree || (d == bestDegree && (best == -1 || v < best)) {
			best = v
			bestDegree = d
		}
	}
	return best
}

func (w *workingGraph) remove(v int) { w.removed[v] = true }
