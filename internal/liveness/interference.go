package liveness

import "katara/internal/ir"

// Interference is an undirected graph over computed-value numbers: two
// values that may not share a color.
type Interference struct {
	edges map[int]Set
}

func newInterference() *Interference {
	return &Interference{edges: make(map[int]Set)}
}

// NewInterference builds an empty interference graph. BuildInterference is
// the usual way to get one from a func's liveness; this constructor plus
// AddNode/AddEdge exist for callers (register allocator tests, in
// particular) that want to exercise coloring against a synthetic graph.
func NewInterference() *Interference { return newInterference() }

func (g *Interference) addNode(v int) {
	if g.edges[v] == nil {
		g.edges[v] = make(Set)
	}
}

// AddNode registers v as a node with no interferences yet.
func (g *Interference) AddNode(v int) { g.addNode(v) }

func (g *Interference) addEdge(a, b int) {
	if a == b {
		return
	}
	g.addNode(a)
	g.addNode(b)
	g.edges[a][b] = true
	g.edges[b][a] = true
}

// AddEdge marks a and b as interfering (they may not share a color).
func (g *Interference) AddEdge(a, b int) { g.addEdge(a, b) }

// Neighbors returns the values interfering with v.
func (g *Interference) Neighbors(v int) Set { return g.edges[v] }

// Nodes returns every value number added to the graph, including values
// with no interference edges.
func (g *Interference) Nodes() []int {
	out := make([]int, 0, len(g.edges))
	for v := range g.edges {
		out = append(out, v)
	}
	return out
}

func (g *Interference) Degree(v int) int { return len(g.edges[v]) }

// BuildInterference constructs the interference graph for f from its
// liveness Info: all values simultaneously live interfere; a non-phi
// definition interferes with everything live
// after it; phi results of one block mutually interfere and interfere with
// everything live-in to the block except their own incoming argument from
// each predecessor.
func BuildInterference(f *ir.Func, info *Info) *Interference {
	g := newInterference()

	for _, b := range f.Blocks() {
		instrs := b.Instrs()
		for idx, instr := range instrs {
			key := instrKey{b.Number(), idx}
			liveAfter := info.LiveAfter[key]

			for v := range liveAfter {
				g.addNode(v)
			}
			allLive := make([]int, 0, len(liveAfter))
			for v := range liveAfter {
				allLive = append(allLive, v)
			}
			for i := range allLive {
				for j := i + 1; j < len(allLive); j++ {
					g.addEdge(allLive[i], allLive[j])
				}
			}

			if _, isPhi := instr.(*ir.PhiInstr); !isPhi {
				for _, d := range instr.Defines() {
					if !d.IsComputed() {
						continue
					}
					g.addNode(d.Number())
					for v := range liveAfter {
						g.addEdge(d.Number(), v)
					}
				}
			}
		}

		phis := b.Phis()
		if len(phis) > 0 {
			results := make([]int, 0, len(phis))
			for _, p := range phis {
				if p.Result.IsComputed() {
					results = append(results, p.Result.Number())
				}
			}
			for i := range results {
				for j := i + 1; j < len(results); j++ {
					g.addEdge(results[i], results[j])
				}
			}

			liveIn := info.LiveAtEntry[b.Number()]
			for _, p := range phis {
				if !p.Result.IsComputed() {
					continue
				}
				excluded := make(Set, len(p.Args))
				for _, arg := range p.Args {
					under := arg.Underlying()
					if under.IsComputed() {
						excluded[under.Number()] = true
					}
				}
				for v := range liveIn {
					if excluded[v] {
						continue
					}
					g.addEdge(p.Result.Number(), v)
				}
			}
		}
	}

	return g
}
