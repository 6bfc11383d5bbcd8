package ir

// Program is the top-level arena: every Func, keyed by number. Funcs
// reference each other only through ConstFunc value numbers, resolved
// against this table.
type Program struct {
	funcs      map[int]*Func
	funcOrder  []int
	nextFunc   int
	entryFunc  int
	hasEntry   bool
}

func NewProgram() *Program {
	return &Program{funcs: make(map[int]*Func)}
}

// DeclareFunc allocates a fresh func number and registers a new Func with
// the given signature, returning it for the caller to populate.
func (p *Program) DeclareFunc(name string, paramTypes, resultTypes []Type) *Func {
	num := p.nextFunc
	p.nextFunc++
	f := NewFunc(num, name, paramTypes, resultTypes)
	p.funcs[num] = f
	p.funcOrder = append(p.funcOrder, num)
	return f
}

// DeclareFuncNum registers f at an explicit func number, used by
// internal/ir/parser to reproduce the exact numbering a textual dump names.
// nextFunc is bumped past num so later DeclareFunc calls never collide.
func (p *Program) DeclareFuncNum(f *Func) {
	num := f.Number()
	p.funcs[num] = f
	p.funcOrder = append(p.funcOrder, num)
	if num >= p.nextFunc {
		p.nextFunc = num + 1
	}
}

func (p *Program) Func(num int) (*Func, bool) {
	f, ok := p.funcs[num]
	return f, ok
}

func (p *Program) Funcs() []*Func {
	out := make([]*Func, len(p.funcOrder))
	for i, n := range p.funcOrder {
		out[i] = p.funcs[n]
	}
	return out
}

func (p *Program) NumFuncs() int { return len(p.funcOrder) }

// SetEntryFunc marks num as the program's entry point (the symbol cmd/katara
// resolves to build a standalone binary's _start).
func (p *Program) SetEntryFunc(num int) {
	p.entryFunc = num
	p.hasEntry = true
}

func (p *Program) EntryFunc() (int, bool) {
	return p.entryFunc, p.hasEntry
}

// FuncByName looks up the first declared func with the given name.
func (p *Program) FuncByName(name string) (*Func, bool) {
	for _, n := range p.funcOrder {
		if p.funcs[n].Name() == name {
			return p.funcs[n], true
		}
	}
	return nil, false
}
