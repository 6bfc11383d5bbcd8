package x86

// Block is a straight-line run of instructions ending in a control-flow
// instruction (Jmp, Jcc, Ret) or falling through to the next block in
// layout order.
type Block struct {
	num    int
	instrs []Instr
}

func (b *Block) Number() int        { return b.num }
func (b *Block) Instrs() []Instr    { return b.instrs }
func (b *Block) AddInstr(i Instr)   { b.instrs = append(b.instrs, i) }
func (b *Block) Len() int           { return len(b.instrs) }

// Func is one x86-64 function: a number (corresponding to the ir.Func it
// was translated from), a name carried through for the printer and linker
// symbol table, its blocks in layout order, and the frame size its
// prologue must reserve.
type Func struct {
	num       int
	name      string
	blocks    map[int]*Block
	order     []int
	nextBlock int
	frameSize int // bytes reserved below rbp, already 16-byte aligned
}

func NewFunc(num int, name string) *Func {
	return &Func{num: num, name: name, blocks: make(map[int]*Block)}
}

func (f *Func) Number() int   { return f.num }
func (f *Func) Name() string  { return f.name }

func (f *Func) NewBlock() *Block {
	num := f.nextBlock
	f.nextBlock++
	b := &Block{num: num}
	f.blocks[num] = b
	f.order = append(f.order, num)
	return b
}

func (f *Func) Block(num int) (*Block, bool) {
	b, ok := f.blocks[num]
	return b, ok
}

// Blocks returns every block in layout order.
func (f *Func) Blocks() []*Block {
	out := make([]*Block, len(f.order))
	for i, n := range f.order {
		out[i] = f.blocks[n]
	}
	return out
}

func (f *Func) SetFrameSize(n int) { f.frameSize = n }
func (f *Func) FrameSize() int     { return f.frameSize }

// Program is the top-level x86-64 arena produced by internal/translate.
type Program struct {
	funcs     map[int]*Func
	order     []int
	nextFunc  int
	entryFunc int
	hasEntry  bool
}

func NewProgram() *Program {
	return &Program{funcs: make(map[int]*Func)}
}

func (p *Program) DeclareFunc(num int, name string) *Func {
	f := NewFunc(num, name)
	p.funcs[num] = f
	p.order = append(p.order, num)
	if num >= p.nextFunc {
		p.nextFunc = num + 1
	}
	return f
}

func (p *Program) Func(num int) (*Func, bool) {
	f, ok := p.funcs[num]
	return f, ok
}

func (p *Program) Funcs() []*Func {
	out := make([]*Func, len(p.order))
	for i, n := range p.order {
		out[i] = p.funcs[n]
	}
	return out
}

func (p *Program) SetEntryFunc(num int) { p.entryFunc, p.hasEntry = num, true }
func (p *Program) EntryFunc() (int, bool) {
	return p.entryFunc, p.hasEntry
}
