// Package main is cmd/katara, the driver CLI: build/doc/run over a
// directory or explicit list of `.ir` text files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"katara/internal/config"
	"katara/internal/driver"
	"katara/internal/interp"
	"katara/internal/ir"
	"katara/internal/issue"
	"katara/internal/translate"
	"katara/internal/x86"
)

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(args []string) driver.ExitCode {
	if len(args) < 1 {
		printUsage()
		return driver.ExitUsageError
	}

	switch args[0] {
	case "build":
		return runBuild(args[1:])
	case "doc":
		return runDoc(args[1:])
	case "run":
		return runRun(args[1:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return driver.ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "katara: unknown subcommand %q\n", args[0])
		printUsage()
		return driver.ExitUsageError
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: katara <build|doc|run> [flags] <paths...>")
}

// settingsFlags is the -o/-malloc/-free/-stdlib/-optimize/-v flag set the
// build subcommand resolves through internal/config.Load.
func settingsFlags(fs *flag.FlagSet) (stdlib, output, malloc, free *string, optimize *bool, verbosity *int) {
	stdlib = fs.String("stdlib", "", "path to the host stdlib (or set KATARA_STDLIB)")
	output = fs.String("o", "", "output path (default a.out)")
	malloc = fs.String("malloc", "", "malloc runtime symbol name")
	free = fs.String("free", "", "free runtime symbol name")
	optimize = fs.Bool("optimize", false, "enable optimization passes")
	verbosity = fs.Int("v", 0, "commonlog verbosity (0 = quiet)")
	return
}

func loadConfig(fs *flag.FlagSet, stdlib, output, malloc, free *string, optimize *bool) (config.Config, bool) {
	var optPtr *bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "optimize" {
			optPtr = optimize
		}
	})
	cfg, err := config.Load(*stdlib, *output, *malloc, *free, optPtr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "katara:", err)
		return config.Config{}, false
	}
	return cfg, true
}

func runBuild(args []string) driver.ExitCode {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	stdlib, output, malloc, free, optimize, verbosity := settingsFlags(fs)
	if err := fs.Parse(args); err != nil {
		return driver.ExitUsageError
	}
	commonlog.Configure(*verbosity, nil)
	logger := commonlog.GetLogger("katara")

	cfg, ok := loadConfig(fs, stdlib, output, malloc, free, optimize)
	if !ok {
		return driver.ExitUsageError
	}

	prog, code, err := driver.LoadProgram(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "katara:", err)
		return code
	}

	mallocFunc, freeFunc := resolveRuntimeFuncs(prog, cfg, logger)

	result, tracker, err := driver.Compile(prog, translate.ProgramContext{MallocFunc: mallocFunc, FreeFunc: freeFunc})
	reportIssues(tracker)
	if err != nil {
		fmt.Fprintln(os.Stderr, "katara:", err)
		if ce, ok := err.(*driver.CompileError); ok && ce.Stage == "check" {
			return driver.ExitIRCheckFailure
		}
		return driver.ExitCompileFailure
	}

	if err := os.WriteFile(cfg.OutputPath, result.Linked.Code, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "katara:", err)
		return driver.ExitWriteFailure
	}
	if err := os.WriteFile(cfg.OutputPath+".s", []byte(x86.NewPrinter().PrintProgram(result.Machine)), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "katara:", err)
		return driver.ExitWriteFailure
	}
	logger.Info(fmt.Sprintf("wrote %d bytes to %s", len(result.Linked.Code), cfg.OutputPath))
	return driver.ExitSuccess
}

// resolveRuntimeFuncs looks up the malloc/free func numbers internal/lower's
// shared-pointer allocation calls through, by the names internal/config
// resolved. A program with no shared pointers never references either
// number, so a missing declaration only logs, it doesn't fail the build.
func resolveRuntimeFuncs(prog *ir.Program, cfg config.Config, logger commonlog.Logger) (int, int) {
	mallocFunc, ok := prog.FuncByName(cfg.MallocSymbol)
	if !ok {
		logger.Debug(fmt.Sprintf("no func named %q declared; malloc calls will fail to link", cfg.MallocSymbol))
	}
	freeFunc, ok2 := prog.FuncByName(cfg.FreeSymbol)
	if !ok2 {
		logger.Debug(fmt.Sprintf("no func named %q declared; free calls will fail to link", cfg.FreeSymbol))
	}
	// A missing func resolves to a number no declared func carries.
	unresolved := 0
	for _, fn := range prog.Funcs() {
		if fn.Number() >= unresolved {
			unresolved = fn.Number() + 1
		}
	}
	mallocNum, freeNum := unresolved, unresolved
	if ok {
		mallocNum = mallocFunc.Number()
	}
	if ok2 {
		freeNum = freeFunc.Number()
	}
	return mallocNum, freeNum
}

func runDoc(args []string) driver.ExitCode {
	fs := flag.NewFlagSet("doc", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return driver.ExitUsageError
	}

	prog, code, err := driver.LoadProgram(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "katara:", err)
		return code
	}

	// Full doc generation belongs to the source-language front end, out of
	// this module's scope; this stub lists the funcs a doc tool would
	// expand on.
	for _, f := range prog.Funcs() {
		fmt.Printf("func %s(%d params) -> %d results\n", f.Name(), len(f.Params()), len(f.ResultTypes()))
	}
	return driver.ExitSuccess
}

func runRun(args []string) driver.ExitCode {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return driver.ExitUsageError
	}

	prog, code, err := driver.LoadProgram(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "katara:", err)
		return code
	}

	result, err := interp.New(prog).Run(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "katara:", err)
		return driver.ExitCompileFailure
	}
	if result.Exited {
		return driver.ExitCode(result.ExitCode)
	}
	if len(result.Values) > 0 {
		return driver.ExitCode(result.Values[0].Int().AsInt64())
	}
	return driver.ExitSuccess
}

func reportIssues(tracker *issue.Tracker) {
	reporter := issue.NewReporter("", "")
	for _, i := range tracker.Issues() {
		fmt.Fprint(os.Stderr, reporter.Format(i))
	}
}
