package parallelcopy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a plain Emitter: it only records Copy calls, so Resolve must
// fall back to scratch-based cycle breaking against it.
type recorder struct {
	copies []Move[string]
}

func (r *recorder) Copy(dst, src string) {
	r.copies = append(r.copies, Move[string]{Dst: dst, Src: src})
}

// scratchCounter mints ascending scratch names and counts how many it handed
// out.
type scratchCounter struct {
	next int
}

func (s *scratchCounter) NewScratch() string {
	s.next++
	return "t" + string(rune('0'+s.next))
}

func TestResolveChainOrdersCopiesLastDestinationFirst(t *testing.T) {
	// a <- b <- c: b must be copied into a before b is overwritten with c,
	// so copies must be emitted in the order a<-b, b<-c (reading from a
	// not-yet-overwritten source).
	r := &recorder{}
	Resolve([]Move[string]{
		{Dst: "a", Src: "b"},
		{Dst: "b", Src: "c"},
	}, r, nil)

	require.Len(t, r.copies, 2)
	assert.Equal(t, Move[string]{Dst: "a", Src: "b"}, r.copies[0])
	assert.Equal(t, Move[string]{Dst: "b", Src: "c"}, r.copies[1])
}

func TestResolveDropsSameOperandMoves(t *testing.T) {
	r := &recorder{}
	Resolve([]Move[string]{{Dst: "a", Src: "a"}}, r, nil)
	assert.Empty(t, r.copies)
}

func TestResolveCycleWithoutCycleBreakerUsesScratch(t *testing.T) {
	// a <- b, b <- a is a pure swap: with no CycleBreaker, Resolve must
	// stage one side through scratch rather than losing a value.
	r := &recorder{}
	s := &scratchCounter{}
	Resolve([]Move[string]{
		{Dst: "a", Src: "b"},
		{Dst: "b", Src: "a"},
	}, r, s)

	require.Len(t, r.copies, 3)
	assert.Equal(t, 1, s.next)

	// The first copy stages the cycle's start into scratch; one later copy
	// must read back from that same scratch location to complete the swap.
	scratchName := r.copies[0].Dst
	assert.NotEqual(t, "a", scratchName)
	assert.NotEqual(t, "b", scratchName)

	foundScratchRead := false
	for _, c := range r.copies[1:] {
		if c.Src == scratchName {
			foundScratchRead = true
		}
	}
	assert.True(t, foundScratchRead, "expected one copy to read back from the scratch location")
}

// xchgEmitter is a CycleBreaker that resolves exactly two-element cycles
// with a single swap operation, mirroring x86-64's Xchg instruction, and
// falls back to scratch-based breaking (via Emitter.Copy) for anything
// longer.
type xchgEmitter struct {
	recorder
	swaps [][2]string
}

func (e *xchgEmitter) TryBreakCycle(cycle []Move[string]) bool {
	if len(cycle) != 2 {
		return false
	}
	e.swaps = append(e.swaps, [2]string{cycle[0].Dst, cycle[1].Dst})
	return true
}

func TestResolveTwoCycleUsesCycleBreaker(t *testing.T) {
	e := &xchgEmitter{}
	Resolve([]Move[string]{
		{Dst: "a", Src: "b"},
		{Dst: "b", Src: "a"},
	}, e, nil)

	assert.Len(t, e.swaps, 1)
	assert.Empty(t, e.copies, "a fully-handled cycle must not fall through to Copy-based breaking")
}

func TestResolveThreeCycleFallsBackToScratch(t *testing.T) {
	// a <- b <- c <- a: TryBreakCycle refuses (len != 2), so Resolve must
	// fall back to scratch staging even though a CycleBreaker is present.
	e := &xchgEmitter{}
	s := &scratchCounter{}
	Resolve([]Move[string]{
		{Dst: "a", Src: "b"},
		{Dst: "b", Src: "c"},
		{Dst: "c", Src: "a"},
	}, e, s)

	assert.Empty(t, e.swaps)
	assert.Len(t, e.copies, 4)
	assert.Equal(t, 1, s.next)
}

func TestResolveUnresolvableCyclePanicsWithoutScratch(t *testing.T) {
	e := &recorder{}
	assert.Panics(t, func() {
		Resolve([]Move[string]{
			{Dst: "a", Src: "b"},
			{Dst: "b", Src: "a"},
		}, e, nil)
	})
}

func TestResolveMixedChainAndCycle(t *testing.T) {
	// d <- a is a chain feeding into the a/b cycle: the chain drains first,
	// then the two-element cycle resolves through the breaker.
	e := &xchgEmitter{}
	Resolve([]Move[string]{
		{Dst: "d", Src: "a"},
		{Dst: "a", Src: "b"},
		{Dst: "b", Src: "a"},
	}, e, nil)

	require.Len(t, e.copies, 1)
	assert.Equal(t, Move[string]{Dst: "d", Src: "a"}, e.copies[0])
	assert.Len(t, e.swaps, 1)
}
