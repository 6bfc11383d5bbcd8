// Package phi implements the phi resolver: it eliminates every Phi
// instruction in a func by inserting Mov instructions
// at the end of each predecessor block, immediately before its terminator.
// A predecessor block's phi updates must all appear to happen
// simultaneously (the classic case being a loop back-edge that swaps two
// loop-carried values), so they are serialized through
// internal/parallelcopy rather than emitted as naive sequential copies.
package phi

import (
	"katara/internal/ir"
	"katara/internal/parallelcopy"
)

// Resolve eliminates every Phi instruction in f. After Resolve, f no
// longer satisfies single-assignment (a phi result's value number is now
// written once per predecessor block) -- this intentionally runs after
// internal/check, never before it.
func Resolve(f *ir.Func) {
	preds := ir.Predecessors(f)
	for _, b := range f.Blocks() {
		phis := b.Phis()
		if len(phis) == 0 {
			continue
		}
		for _, pred := range preds[b.Number()] {
			resolvePredecessor(f, phis, pred)
		}
		for range phis {
			b.RemoveInstr(0)
		}
	}
}

func resolvePredecessor(f *ir.Func, phis []*ir.PhiInstr, pred int) {
	predBlock := f.MustBlock(pred)
	e := &emitter{
		f:      f,
		b:      predBlock,
		at:     terminatorIndex(predBlock),
		values: make(map[int]*ir.Value),
	}

	var moves []parallelcopy.Move[int]
	for _, p := range phis {
		arg := findArgForPred(p, pred)
		if arg == nil {
			continue
		}
		dstKey := p.Result.Number()
		e.values[dstKey] = p.Result

		under := arg.Underlying()
		var srcKey int
		if under.IsComputed() {
			srcKey = under.Number()
			e.values[srcKey] = under
		} else {
			srcKey = e.allocKey()
			e.values[srcKey] = under
		}
		moves = append(moves, parallelcopy.Move[int]{Dst: dstKey, Src: srcKey})
	}
	if len(moves) == 0 {
		return
	}
	parallelcopy.Resolve(moves, e, e)
}

func findArgForPred(p *ir.PhiInstr, pred int) *ir.Value {
	for _, a := range p.Args {
		if a.IsInherited() && a.OriginBlock() == pred {
			return a
		}
	}
	return nil
}

func terminatorIndex(b *ir.Block) int {
	n := b.Len()
	if n == 0 {
		return 0
	}
	return n - 1
}

// emitter bridges internal/parallelcopy's abstract (dst, src int) moves
// onto concrete IR values. Each key is either a computed value's number --
// a mutable slot from here on -- or, for constant phi arguments and
// scratch temporaries used to break a cycle, a synthetic negative key
// minted by allocKey/NewScratch that never collides with a real value
// number.
type emitter struct {
	f       *ir.Func
	b       *ir.Block
	at      int
	values  map[int]*ir.Value
	counter int
}

func (e *emitter) allocKey() int {
	e.counter--
	return e.counter
}

func (e *emitter) NewScratch() int { return e.allocKey() }

func (e *emitter) Copy(dst, src int) {
	srcVal := e.values[src]
	dstVal, ok := e.values[dst]
	if !ok {
		dstVal = e.f.NewComputedValue(srcVal.Type())
		e.values[dst] = dstVal
	}
	e.b.InsertInstr(e.at, &ir.MovInstr{Result: dstVal, Src: srcVal})
	e.at++
}
