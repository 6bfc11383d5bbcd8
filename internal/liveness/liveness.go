// Package liveness computes per-func liveness as a backward dataflow
// fixpoint over the block control-flow graph, and builds
// the interference graph register allocation colors against.
package liveness

import (
	"katara/internal/ir"
)

// Set is a set of computed-value numbers.
type Set map[int]bool

func (s Set) clone() Set {
	out := make(Set, len(s))
	for v := range s {
		out[v] = true
	}
	return out
}

func (s Set) equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for v := range s {
		if !o[v] {
			return false
		}
	}
	return true
}

// Info is the liveness result for one func.
type Info struct {
	LiveAtEntry map[int]Set // block num -> live-in set
	LiveAtExit  map[int]Set // block num -> live-out set

	// LiveBefore/LiveAfter are keyed by (block num, instr index).
	LiveBefore map[instrKey]Set
	LiveAfter  map[instrKey]Set
}

type instrKey struct {
	block int
	index int
}

// LiveAfterInstr returns the live-out set immediately after the instruction
// at (block, index) -- the set internal/translate consults to know which
// other values a hardware-clobbered register (rax/rdx for mul/div, rcx for
// a variable shift count, the caller-saved set around a call) must be
// saved and restored around.
func (info *Info) LiveAfterInstr(block, index int) Set {
	return info.LiveAfter[instrKey{block, index}]
}

// Compute runs the backward liveness fixpoint over f's control-flow graph.
func Compute(f *ir.Func) *Info {
	info := &Info{
		LiveAtEntry: make(map[int]Set),
		LiveAtExit:  make(map[int]Set),
		LiveBefore:  make(map[instrKey]Set),
		LiveAfter:   make(map[instrKey]Set),
	}

	blocks := f.Blocks()
	for _, b := range blocks {
		info.LiveAtEntry[b.Number()] = make(Set)
		info.LiveAtExit[b.Number()] = make(Set)
	}

	order := ir.ReversePostorder(f)
	// Process in reverse of the forward reverse-postorder, which is a
	// reasonable approximation of reverse-postorder on the reversed graph
	// for the backward problem; fixpoint iteration does not depend on the
	// visiting order for correctness, only for convergence speed.
	changed := true
	for changed {
		changed = false
		for i := len(order) - 1; i >= 0; i-- {
			num := order[i]
			b, _ := f.Block(num)
			liveAfter := computeLiveAfter(f, b, info)
			live := liveAfter.clone()

			instrs := b.Instrs()
			for idx := len(instrs) - 1; idx >= 0; idx-- {
				instr := instrs[idx]
				key := instrKey{num, idx}
				info.LiveAfter[key] = live.clone()

				before := live.clone()
				for _, d := range instr.Defines() {
					if d.IsComputed() {
						delete(before, d.Number())
					}
				}
				if phi, ok := instr.(*ir.PhiInstr); ok {
					for _, use := range phi.Uses() {
						if use.OriginBlock != num && use.Value.IsComputed() {
							before[use.Value.Number()] = true
						}
					}
				} else {
					for _, use := range instr.Uses() {
						if use.Value.IsComputed() {
							before[use.Value.Number()] = true
						}
					}
				}
				info.LiveBefore[key] = before
				live = before
			}

			if !live.equal(info.LiveAtEntry[num]) {
				info.LiveAtEntry[num] = live
				changed = true
			}
			if !liveAfter.equal(info.LiveAtExit[num]) {
				info.LiveAtExit[num] = liveAfter
				changed = true
			}
		}
	}

	return info
}

// computeLiveAfter implements the successor-union rule: for each
// successor, everything live-in to it except values it
// receives only via a phi from a different predecessor, plus (for phis in
// that successor) the value named in the argument whose origin is b.
func computeLiveAfter(f *ir.Func, b *ir.Block, info *Info) Set {
	live := make(Set)
	for _, succNum := range b.Successors() {
		succ, ok := f.Block(succNum)
		if !ok {
			continue
		}
		phis := succ.Phis()
		phiResults := make(map[int]bool, len(phis))
		for _, p := range phis {
			if p.Result.IsComputed() {
				phiResults[p.Result.Number()] = true
			}
		}
		// Values still live past succ's leading phis are live-in through
		// ordinary uses; a value that only feeds a phi from another
		// predecessor is not among them.
		throughPhis := info.LiveAtEntry[succNum]
		if len(phis) > 0 {
			throughPhis = info.LiveAfter[instrKey{succNum, len(phis) - 1}]
		}
		for v := range throughPhis {
			if !phiResults[v] {
				live[v] = true
			}
		}
		for _, p := range phis {
			for _, arg := range p.Args {
				if arg.IsInherited() && arg.OriginBlock() == b.Number() {
					under := arg.Underlying()
					if under.IsComputed() {
						live[under.Number()] = true
					}
				}
			}
		}
	}
	return live
}
