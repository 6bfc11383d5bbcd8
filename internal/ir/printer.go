package ir

import (
	"fmt"
	"strings"
)

// Printer renders a Program, Func, or Block to the textual IR format.
// It tracks indentation the way the rest of this codebase's printers do:
// an int depth plus a strings.Builder.
type Printer struct {
	indent int
	b      strings.Builder
}

func NewPrinter() *Printer {
	return &Printer{}
}

func (p *Printer) writeLine(format string, args ...any) {
	p.b.WriteString(strings.Repeat("  ", p.indent))
	if len(args) == 0 {
		p.b.WriteString(format)
	} else {
		p.b.WriteString(fmt.Sprintf(format, args...))
	}
	p.b.WriteString("\n")
}

// PrintProgram renders every func in declaration order.
func (p *Printer) PrintProgram(prog *Program) string {
	for i, f := range prog.Funcs() {
		if i > 0 {
			p.b.WriteString("\n")
		}
		p.PrintFunc(f)
	}
	return p.b.String()
}

// PrintFunc renders a single func: its signature line followed by an
// indented block list.
func (p *Printer) PrintFunc(f *Func) {
	args := make([]string, len(f.ParamTypes()))
	for i, t := range f.ParamTypes() {
		args[i] = fmt.Sprintf("%%%d:%s", i, t)
	}
	results := make([]string, len(f.ResultTypes()))
	for i, t := range f.ResultTypes() {
		results[i] = t.String()
	}
	p.writeLine("@%d %s (%s) => (%s) {", f.Number(), f.Name(), strings.Join(args, ", "), strings.Join(results, ", "))
	p.indent++
	for _, num := range ReversePostorder(f) {
		b, _ := f.Block(num)
		p.printBlock(b)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printBlock(b *Block) {
	p.writeLine("{%d}", b.Number())
	p.indent++
	for _, instr := range b.Instrs() {
		p.writeLine("%s", instr.String())
	}
	p.indent--
}

// String returns everything printed so far.
func (p *Printer) String() string { return p.b.String() }
