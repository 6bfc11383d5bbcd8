// Package driver wires the compiler's passes into the one pipeline
// cmd/katara drives: check, lower, resolve phis, analyze, allocate,
// translate, link. It owns the stable process exit codes the CLI returns.
package driver

// ExitCode is the process exit status cmd/katara returns. The numbering is
// this module's own invention -- the retrieved original_source/ tree never
// kept the concrete error_codes.h enum that src/cmd/load.cc's ErrorCode
// values come from, only the call sites naming each category (see
// DESIGN.md) -- but it is fixed here and never renumbered across releases,
// the same stability contract load.cc's enum gave its callers.
type ExitCode int

const (
	ExitSuccess ExitCode = 0

	// Argument / package resolution failures.
	ExitNoPathsProvided        ExitCode = 1
	ExitMixedFileAndPackageArgs ExitCode = 2
	ExitMultiplePackagePaths   ExitCode = 3
	ExitPackageLoadFailure     ExitCode = 4
	ExitNoMainPackage          ExitCode = 5

	// Compilation failures.
	ExitIRTranslationFailure ExitCode = 6
	ExitIRCheckFailure       ExitCode = 7
	ExitCompileFailure       ExitCode = 8

	// Output failures.
	ExitWriteFailure ExitCode = 9

	// CLI usage failures.
	ExitUsageError ExitCode = 64
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitNoPathsProvided:
		return "no paths provided"
	case ExitMixedFileAndPackageArgs:
		return "arguments mix file and package paths"
	case ExitMultiplePackagePaths:
		return "more than one package path given"
	case ExitPackageLoadFailure:
		return "package failed to load"
	case ExitNoMainPackage:
		return "no main package found"
	case ExitIRTranslationFailure:
		return "translation to IR failed"
	case ExitIRCheckFailure:
		return "IR checker reported errors"
	case ExitCompileFailure:
		return "compilation failed"
	case ExitWriteFailure:
		return "failed to write output"
	case ExitUsageError:
		return "usage error"
	default:
		return "unknown error"
	}
}
