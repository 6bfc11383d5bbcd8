package driver

import (
	"fmt"

	"katara/internal/check"
	"katara/internal/ir"
	"katara/internal/ir/parser"
	"katara/internal/issue"
	"katara/internal/liveness"
	"katara/internal/lower"
	"katara/internal/phi"
	"katara/internal/regalloc"
	"katara/internal/translate"
	"katara/internal/x86"
)

// CompileResult is everything a successful Compile produces: the linked
// machine code plus the intermediate programs, kept around for debug
// dumping rather than discarded once consumed.
type CompileResult struct {
	Lowered *ir.Program
	Machine *x86.Program
	Linked  *x86.LinkResult
}

// CompileError wraps a pipeline-stage failure with the stage name it
// occurred in ("check", "translate" or "link"), so cmd/katara can report
// "translate: ..." rather than a bare error.
type CompileError struct {
	Stage string
	Err   error
}

func (e *CompileError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *CompileError) Unwrap() error { return e.Err }

// Compile runs every pass over prog in order and links the result: check,
// lower shared pointers, then per func resolve phis, compute liveness and
// interference, allocate registers, translate to x86-64, and finally link
// every func into one flat code section.
//
// Phi resolution runs before liveness/interference/allocation, not after:
// internal/phi.Resolve can mint fresh scratch value numbers to break a
// parallel-copy cycle, and those values need colors too, so whichever pass
// assigns colors has to see the func in its final, phi-free shape first.
func Compile(prog *ir.Program, ctx translate.ProgramContext) (*CompileResult, *issue.Tracker, error) {
	preTracker := check.Check(prog)
	if preTracker.HasErrors() {
		return nil, preTracker, &CompileError{Stage: "check", Err: fmt.Errorf("IR failed validation before lowering")}
	}

	lower.Lower(prog)

	postTracker := check.Check(prog)
	if postTracker.HasErrors() {
		return nil, postTracker, &CompileError{Stage: "check", Err: fmt.Errorf("IR failed validation after lowering")}
	}

	analyses := make(map[int]*translate.FuncAnalysis, prog.NumFuncs())
	for _, f := range prog.Funcs() {
		phi.Resolve(f)

		info := liveness.Compute(f)
		interference := liveness.BuildInterference(f, info)
		values := regalloc.AllValueNumbers(f)
		allocation := regalloc.Allocate(interference, values)

		analyses[f.Number()] = &translate.FuncAnalysis{
			Liveness:     info,
			Interference: interference,
			Allocation:   allocation,
		}
	}

	machine, err := translate.Translate(prog, analyses, ctx)
	if err != nil {
		return nil, postTracker, &CompileError{Stage: "translate", Err: err}
	}

	linked, err := x86.Link(machine)
	if err != nil {
		return nil, postTracker, &CompileError{Stage: "link", Err: err}
	}

	return &CompileResult{Lowered: prog, Machine: machine, Linked: linked}, postTracker, nil
}

// ParseProgram reads the textual IR format (the form internal/ir.Printer
// emits) back into a Program, for cmd/katara's "build" subcommand when
// given a .ir file directly rather than higher-level source.
func ParseProgram(src string) (*ir.Program, error) {
	return parser.Parse(src)
}
