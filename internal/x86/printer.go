package x86

import (
	"fmt"
	"strings"
)

// Printer renders a Program, Func, or Block as a textual assembly listing,
// indentation tracked the same way internal/ir.Printer
// does it.
type Printer struct {
	indent int
	b      strings.Builder
}

func NewPrinter() *Printer { return &Printer{} }

func (p *Printer) writeLine(format string, args ...any) {
	p.b.WriteString(strings.Repeat("  ", p.indent))
	if len(args) == 0 {
		p.b.WriteString(format)
	} else {
		p.b.WriteString(fmt.Sprintf(format, args...))
	}
	p.b.WriteString("\n")
}

func (p *Printer) PrintProgram(prog *Program) string {
	for i, f := range prog.Funcs() {
		if i > 0 {
			p.b.WriteString("\n")
		}
		p.PrintFunc(f)
	}
	return p.b.String()
}

func (p *Printer) PrintFunc(f *Func) {
	p.writeLine("@%d %s: # frame %d", f.Number(), f.Name(), f.FrameSize())
	p.indent++
	for _, b := range f.Blocks() {
		p.printBlock(b)
	}
	p.indent--
}

func (p *Printer) printBlock(b *Block) {
	p.writeLine("{%d}", b.Number())
	p.indent++
	for _, instr := range b.Instrs() {
		p.writeLine("%s", instr.String())
	}
	p.indent--
}

func (p *Printer) String() string { return p.b.String() }
