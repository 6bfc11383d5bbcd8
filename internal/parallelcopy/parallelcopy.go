// Package parallelcopy serializes a set of moves that must all take effect
// simultaneously into a sequence of ordinary copies, breaking any cycles
// either via a caller-supplied atomic swap or a scratch location. Both the
// IR phi resolver and the x86-64 GenerateMovs sequencer are instances of
// this same problem, so the
// dependency-graph-plus-cycle-break logic lives here once.
package parallelcopy

// Move is one parallel-copy edge: after resolution, Dst holds the value
// Src held immediately before this whole batch of moves started.
type Move[K comparable] struct {
	Dst K
	Src K
}

// Emitter receives the serialized copy operations chosen by Resolve.
type Emitter[K comparable] interface {
	// Copy emits an operation that sets dst to the current value of src.
	Copy(dst, src K)
}

// CycleBreaker lets a strategy resolve an entire cycle atomically (for
// instance x86-64's Xchg for a two-register cycle) instead of going through
// a scratch location.
type CycleBreaker[K comparable] interface {
	Emitter[K]
	// TryBreakCycle attempts to fully resolve cycle; returns true if it
	// did, false to fall back to scratch-based breaking.
	TryBreakCycle(cycle []Move[K]) bool
}

// ScratchAllocator mints a fresh location to stage a broken cycle through.
type ScratchAllocator[K comparable] interface {
	NewScratch() K
}

// Resolve serializes moves into Emitter.Copy calls. moves must contain at
// most one entry per Dst (a true parallel-copy set); same-operand moves
// (Dst == Src) are dropped.
func Resolve[K comparable](moves []Move[K], emitter Emitter[K], scratch ScratchAllocator[K]) {
	pending := make(map[K]K, len(moves))
	for _, m := range moves {
		if m.Dst == m.Src {
			continue
		}
		pending[m.Dst] = m.Src
	}

	usedAsSrc := make(map[K]int, len(pending))
	for _, src := range pending {
		usedAsSrc[src]++
	}

	var ready []K
	for dst := range pending {
		if usedAsSrc[dst] == 0 {
			ready = append(ready, dst)
		}
	}

	for len(ready) > 0 {
		dst := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		src, ok := pending[dst]
		if !ok {
			continue
		}
		emitter.Copy(dst, src)
		delete(pending, dst)
		usedAsSrc[src]--
		if usedAsSrc[src] == 0 {
			if _, stillPending := pending[src]; stillPending {
				ready = append(ready, src)
			}
		}
	}

	// Only cycles remain among the locations still in pending.
	for len(pending) > 0 {
		var start K
		for d := range pending {
			start = d
			break
		}

		var cycle []Move[K]
		cur := start
		for {
			src := pending[cur]
			cycle = append(cycle, Move[K]{Dst: cur, Src: src})
			cur = src
			if cur == start {
				break
			}
		}

		handled := false
		if cb, ok := emitter.(CycleBreaker[K]); ok {
			handled = cb.TryBreakCycle(cycle)
		}
		if !handled {
			if scratch == nil {
				panic("parallelcopy: unresolvable cycle and no scratch allocator supplied")
			}
			tmp := scratch.NewScratch()
			emitter.Copy(tmp, start)
			for _, m := range cycle {
				if m.Src == start {
					emitter.Copy(m.Dst, tmp)
				} else {
					emitter.Copy(m.Dst, m.Src)
				}
			}
		}

		for _, m := range cycle {
			delete(pending, m.Dst)
		}
	}
}
