package ir

import "strconv"

// Func is a single function: its signature, its arena of blocks (keyed by
// number), and the bookkeeping needed to mint fresh block/value numbers as
// later passes rewrite it in place.
type Func struct {
	num  int
	name string

	paramTypes  []Type
	params      []*Value
	resultTypes []Type

	blocks     map[int]*Block
	blockOrder []int
	entryBlock int

	nextValueNum int
	nextBlockNum int

	// version is bumped when a block is added or removed, and by Touch
	// (Block's own instruction edits do not bump it); it invalidates cached
	// analyses that other packages attach via domCache without internal/ir
	// needing to import them.
	version int

	domCache        any
	domCacheVersion int
}

// NewFunc creates a function with the given parameter and result types. One
// entry block is created automatically, numbered 0; its leading computed
// values 0..len(paramTypes)-1 are the function's parameters.
func NewFunc(num int, name string, paramTypes, resultTypes []Type) *Func {
	f := &Func{
		num:         num,
		name:        name,
		paramTypes:  paramTypes,
		resultTypes: resultTypes,
		blocks:      make(map[int]*Block),
	}
	for i, t := range paramTypes {
		f.params = append(f.params, NewComputed(t, i))
	}
	f.nextValueNum = len(paramTypes)
	entry := f.NewBlock()
	f.entryBlock = entry.Number()
	return f
}

// NewFuncParsed builds a func shell for internal/ir/parser: like NewFunc, it
// seeds params from paramTypes, but it does not auto-create an entry block
// -- the parser creates blocks at explicit, text-given numbers and calls
// SetEntryBlockNum once the entry block's number is known.
func NewFuncParsed(num int, name string, paramTypes, resultTypes []Type) *Func {
	f := &Func{
		num:         num,
		name:        name,
		paramTypes:  paramTypes,
		resultTypes: resultTypes,
		blocks:      make(map[int]*Block),
		entryBlock:  -1,
	}
	for i, t := range paramTypes {
		f.params = append(f.params, NewComputed(t, i))
	}
	f.nextValueNum = len(paramTypes)
	return f
}

// NewBlockNum allocates a block at an explicit number, used by
// internal/ir/parser to reproduce the exact block numbering a textual dump
// names. nextBlockNum is bumped past num so later fresh blocks never
// collide with it.
func (f *Func) NewBlockNum(num int) *Block {
	b := newBlock(num)
	f.blocks[num] = b
	f.blockOrder = append(f.blockOrder, num)
	if num >= f.nextBlockNum {
		f.nextBlockNum = num + 1
	}
	f.version++
	return b
}

// SetEntryBlockNum records which block number is the entry block, for
// callers (internal/ir/parser) that build blocks out of creation order.
func (f *Func) SetEntryBlockNum(num int) { f.entryBlock = num }

// ReserveValueNum bumps the fresh-value-number counter past n, so that
// later NewComputedValue calls never collide with a value number a parser
// read directly off the text.
func (f *Func) ReserveValueNum(n int) {
	if n >= f.nextValueNum {
		f.nextValueNum = n + 1
	}
}

func (f *Func) Number() int          { return f.num }
func (f *Func) Name() string         { return f.name }
func (f *Func) ParamTypes() []Type   { return f.paramTypes }
func (f *Func) Params() []*Value     { return f.params }
func (f *Func) ResultTypes() []Type  { return f.resultTypes }
func (f *Func) EntryBlockNum() int   { return f.entryBlock }
func (f *Func) Version() int         { return f.version }

// NewBlock allocates and registers a fresh, empty block.
func (f *Func) NewBlock() *Block {
	num := f.nextBlockNum
	f.nextBlockNum++
	b := newBlock(num)
	f.blocks[num] = b
	f.blockOrder = append(f.blockOrder, num)
	f.version++
	return b
}

// RemoveBlock deletes a block from the func. Callers must first ensure no
// remaining block's terminator targets it.
func (f *Func) RemoveBlock(num int) {
	delete(f.blocks, num)
	for i, n := range f.blockOrder {
		if n == num {
			f.blockOrder = append(f.blockOrder[:i], f.blockOrder[i+1:]...)
			break
		}
	}
	f.version++
}

// Block looks up a block by number.
func (f *Func) Block(num int) (*Block, bool) {
	b, ok := f.blocks[num]
	return b, ok
}

// MustBlock looks up a block by number, failing with an internal
// inconsistency issue if it does not exist.
func (f *Func) MustBlock(num int) *Block {
	b, ok := f.blocks[num]
	if !ok {
		panic("katara: internal inconsistency: no block numbered " + strconv.Itoa(num) + " in func " + strconv.Itoa(f.num))
	}
	return b
}

// Blocks returns the func's blocks in the order they were created (not
// necessarily reverse-postorder; use Walk for that).
func (f *Func) Blocks() []*Block {
	out := make([]*Block, len(f.blockOrder))
	for i, n := range f.blockOrder {
		out[i] = f.blocks[n]
	}
	return out
}

func (f *Func) NumBlocks() int { return len(f.blockOrder) }

// NewValueNum mints a fresh computed-value number, unique within this func.
func (f *Func) NewValueNum() int {
	n := f.nextValueNum
	f.nextValueNum++
	return n
}

// NewComputedValue mints a fresh computed value of the given type.
func (f *Func) NewComputedValue(typ Type) *Value {
	return NewComputed(typ, f.NewValueNum())
}

// Touch bumps the func's version without any other structural change; call
// it after mutating a Block's instruction list directly, so cached
// analyses keyed on Version are correctly invalidated.
func (f *Func) Touch() { f.version++ }

// DomCache and SetDomCache let internal/graph attach a dominator tree to
// its owning func without creating an import cycle between internal/ir and
// internal/graph; the cache is valid only while the returned version
// matches f.Version().
func (f *Func) DomCache() (any, int) { return f.domCache, f.domCacheVersion }

func (f *Func) SetDomCache(tree any) {
	f.domCache = tree
	f.domCacheVersion = f.version
}
