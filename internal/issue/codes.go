package issue

// Kind identifies the class of a reported issue. Kinds are grouped into
// ranges by the component that raises them, E0xxx-style:
//
//	I0xxx: IR structural / checker violations
//	I1xxx: shared-pointer lowering
//	I2xxx: phi resolution
//	I3xxx: register allocation
//	I4xxx: x86-64 translation
//	I9xxx: driver / CLI
type Kind string

const (
	// Value and type well-formedness.
	ValueHasNullptrType     Kind = "I0001"
	InstrDefinesNullptrValue Kind = "I0002"
	InstrUsesNullptrValue   Kind = "I0003"

	// Phi-argument misuse.
	NonPhiInstrUsesInheritedValue         Kind = "I0010"
	PhiInstrHasNoArgumentForParentBlock   Kind = "I0011"
	PhiInstrHasArgumentForNonParentBlock  Kind = "I0012"
	PhiInBlockWithoutMultipleParents      Kind = "I0013"
	PhiAfterRegularInstrInBlock           Kind = "I0014"
	PhiInstrMismatchedTypes               Kind = "I0015"

	// Mov / conversion type mismatches.
	MovInstrMismatchedTypes Kind = "I0020"

	// Operand/result type-kind mismatches, by instruction family.
	InstrOperandDoesNotHaveBoolType    Kind = "I0030"
	InstrOperandDoesNotHaveIntType     Kind = "I0031"
	InstrOperandDoesNotHavePointerType Kind = "I0032"
	InstrOperandDoesNotHaveFuncType    Kind = "I0033"
	InstrOperandDoesNotHaveI64Type     Kind = "I0034"
	InstrResultDoesNotHaveBoolType     Kind = "I0035"
	InstrResultDoesNotHaveIntType      Kind = "I0036"
	InstrResultDoesNotHavePointerType  Kind = "I0037"

	IntCompareInstrOperandsHaveDifferentTypes     Kind = "I0040"
	IntBinaryInstrOperandsAndResultHaveDifferentTypes Kind = "I0041"

	// Calls.
	CallInstrCalleeDoesNotHaveFuncType        Kind = "I0050"
	CallInstrStaticCalleeDoesNotExist         Kind = "I0051"
	CallInstrDoesNotMatchStaticCalleeSignature Kind = "I0052"

	// Control flow.
	ReturnInstrDoesNotMatchFuncSignature   Kind = "I0060"
	JumpInstrDestinationIsNotChildBlock    Kind = "I0061"
	JumpCondInstrDestinationIsNotChildBlock Kind = "I0062"
	JumpCondInstrHasDuplicateDestinations  Kind = "I0063"

	// Block/func structure.
	EntryBlockHasParents              Kind = "I0070"
	NonEntryBlockHasNoParents         Kind = "I0071"
	BlockContainsNoInstrs             Kind = "I0072"
	ControlFlowInstrBeforeEndOfBlock  Kind = "I0073"
	ControlFlowInstrMissingAtEndOfBlock Kind = "I0074"
	ControlFlowInstrMismatchedWithBlockGraph Kind = "I0075"
	FuncDefinesNullptrArg             Kind = "I0080"
	FuncHasNullptrResultType          Kind = "I0081"
	FuncHasNoEntryBlock               Kind = "I0082"

	// Value/definition bookkeeping.
	ComputedValueUsedInMultipleFunctions     Kind = "I0090"
	ComputedValueNumberUsedMultipleTimes     Kind = "I0091"
	ComputedValueHasNoDefinition             Kind = "I0092"
	ComputedValueHasMultipleDefinitions      Kind = "I0093"
	ComputedValueDefinitionDoesNotDominateUse Kind = "I0094"

	// Shared-pointer lowering.
	SharedPointerDestructorMissing Kind = "I1001"

	// Phi resolution.
	PhiResolutionUnresolvableCycle Kind = "I2001"

	// Register allocation.
	RegisterAllocatorOutOfStackSlots Kind = "I3001"

	// x86-64 translation.
	TranslatorUnsupportedInstr Kind = "I4001"

	// Driver.
	DriverNoPathsProvided        Kind = "I9001"
	DriverMixedFileAndPackageArgs Kind = "I9002"
	DriverMultiplePackagePaths   Kind = "I9003"
	DriverPackageLoadFailure     Kind = "I9004"
	DriverIRTranslationFailure   Kind = "I9005"
	DriverNoMainPackage          Kind = "I9006"
)

// descriptions gives a one-line human-readable gloss for each kind; used by
// the reporter when a caller doesn't supply its own message.
var descriptions = map[Kind]string{
	ValueHasNullptrType:      "value has no type",
	InstrDefinesNullptrValue: "instruction defines a value with no type",
	InstrUsesNullptrValue:    "instruction uses a value with no type",

	NonPhiInstrUsesInheritedValue:        "only a phi instruction may use a value inherited from a predecessor block",
	PhiInstrHasNoArgumentForParentBlock:  "phi instruction has no argument for one of its block's parents",
	PhiInstrHasArgumentForNonParentBlock: "phi instruction has an argument from a block that is not a parent",
	PhiInBlockWithoutMultipleParents:     "phi instruction appears in a block with fewer than two predecessors",
	PhiAfterRegularInstrInBlock:          "phi instruction follows a non-phi instruction in the same block",
	PhiInstrMismatchedTypes:              "phi instruction arguments do not all share the result type",

	MovInstrMismatchedTypes: "mov instruction operand and result types differ",

	InstrOperandDoesNotHaveBoolType:    "instruction operand does not have bool type",
	InstrOperandDoesNotHaveIntType:     "instruction operand does not have int type",
	InstrOperandDoesNotHavePointerType: "instruction operand does not have pointer type",
	InstrOperandDoesNotHaveFuncType:    "instruction operand does not have func type",
	InstrOperandDoesNotHaveI64Type:     "instruction operand does not have i64 type",
	InstrResultDoesNotHaveBoolType:     "instruction result does not have bool type",
	InstrResultDoesNotHaveIntType:      "instruction result does not have int type",
	InstrResultDoesNotHavePointerType:  "instruction result does not have pointer type",

	IntCompareInstrOperandsHaveDifferentTypes:         "int compare operands have different types",
	IntBinaryInstrOperandsAndResultHaveDifferentTypes: "int binary operands and result do not share one type",

	CallInstrCalleeDoesNotHaveFuncType:         "call instruction callee does not have func type",
	CallInstrStaticCalleeDoesNotExist:          "call instruction refers to a func number that does not exist",
	CallInstrDoesNotMatchStaticCalleeSignature: "call instruction args/results do not match the callee's signature",

	ReturnInstrDoesNotMatchFuncSignature:    "return instruction does not match the func's result types",
	JumpInstrDestinationIsNotChildBlock:     "jump destination is not a recorded child block",
	JumpCondInstrDestinationIsNotChildBlock: "conditional jump destination is not a recorded child block",
	JumpCondInstrHasDuplicateDestinations:   "conditional jump has identical true and false destinations",

	EntryBlockHasParents:                     "entry block has predecessors",
	NonEntryBlockHasNoParents:                "reachable non-entry block has no predecessors",
	BlockContainsNoInstrs:                    "block contains no instructions",
	ControlFlowInstrBeforeEndOfBlock:         "control flow instruction appears before the end of its block",
	ControlFlowInstrMissingAtEndOfBlock:      "block does not end with a control flow instruction",
	ControlFlowInstrMismatchedWithBlockGraph: "control flow instruction targets do not match the func's block graph",
	FuncDefinesNullptrArg:                    "func defines an argument with no type",
	FuncHasNullptrResultType:                 "func declares a result with no type",
	FuncHasNoEntryBlock:                      "func has no entry block",

	ComputedValueUsedInMultipleFunctions:      "computed value is used in more than one func",
	ComputedValueNumberUsedMultipleTimes:      "value number is reused within a func",
	ComputedValueHasNoDefinition:              "computed value is used but never defined",
	ComputedValueHasMultipleDefinitions:       "computed value is defined more than once",
	ComputedValueDefinitionDoesNotDominateUse: "computed value's definition does not dominate one of its uses",

	SharedPointerDestructorMissing: "shared pointer delete requires a destructor for a non-trivial payload",

	PhiResolutionUnresolvableCycle: "phi resolution encountered a copy cycle it could not break",

	RegisterAllocatorOutOfStackSlots: "register allocator could not assign a stack slot",

	TranslatorUnsupportedInstr: "translator has no lowering for this instruction",

	DriverNoPathsProvided:         "no paths provided",
	DriverMixedFileAndPackageArgs: "arguments mix file and package paths",
	DriverMultiplePackagePaths:    "more than one package path given",
	DriverPackageLoadFailure:      "package failed to load",
	DriverIRTranslationFailure:    "translation to IR failed",
	DriverNoMainPackage:           "no main package found",
}

// Describe returns the default human-readable description for a kind.
func Describe(k Kind) string {
	if d, ok := descriptions[k]; ok {
		return d
	}
	return string(k)
}
