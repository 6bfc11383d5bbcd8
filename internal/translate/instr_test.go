package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katara/internal/atomics"
	"katara/internal/ir"
	"katara/internal/liveness"
	"katara/internal/regalloc"
	"katara/internal/x86"
)

// newTestTranslator builds a funcTranslator with no live-after-instr
// pressure (spillClobbered always finds nothing to save) and the given
// value-number -> color assignment, enough to exercise the instruction
// emitters in isolation from a full regalloc/liveness run.
func newTestTranslator(colors map[int]regalloc.Color) *funcTranslator {
	return &funcTranslator{
		info:  &liveness.Info{},
		alloc: &regalloc.Allocation{Colors: colors},
	}
}

func TestEmitMulDivRemMultiply(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("mul", nil, []ir.Type{ir.TInt{Width: atomics.I64}})
	x := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	y := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	result := f.NewComputedValue(ir.TInt{Width: atomics.I64})

	tr := newTestTranslator(map[int]regalloc.Color{
		x.Number():      regalloc.Color(x86.RBX.Num),
		y.Number():      regalloc.Color(x86.RSI.Num),
		result.Number(): regalloc.Color(x86.RDI.Num),
	})
	xb := &x86.Block{}
	tr.emitMulDivRem(xb, 0, 0, result, atomics.IntMul, x, y)

	require.Len(t, xb.Instrs(), 3)
	mov1 := xb.Instrs()[0].(*x86.MovInstr)
	assert.Equal(t, x86.RAX.WithSize(x86.Size64), mov1.Dst)
	assert.Equal(t, x86.RBX.WithSize(x86.Size64), mov1.Src)

	mul := xb.Instrs()[1].(*x86.MulInstr)
	assert.Equal(t, x86.RSI.WithSize(x86.Size64), mul.Src)
	assert.True(t, mul.Signed)

	mov2 := xb.Instrs()[2].(*x86.MovInstr)
	assert.Equal(t, x86.RDI.WithSize(x86.Size64), mov2.Dst)
	assert.Equal(t, x86.RAX.WithSize(x86.Size64), mov2.Src)
}

func TestEmitMulDivRemSignedDivEmulatesCqo(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("div", nil, []ir.Type{ir.TInt{Width: atomics.I64}})
	x := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	y := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	result := f.NewComputedValue(ir.TInt{Width: atomics.I64})

	tr := newTestTranslator(map[int]regalloc.Color{
		x.Number():      regalloc.Color(x86.RBX.Num),
		y.Number():      regalloc.Color(x86.RSI.Num),
		result.Number(): regalloc.Color(x86.RDI.Num),
	})
	xb := &x86.Block{}
	tr.emitMulDivRem(xb, 0, 0, result, atomics.IntDiv, x, y)

	instrs := xb.Instrs()
	require.Len(t, instrs, 5)
	assert.IsType(t, &x86.MovInstr{}, instrs[0]) // rax <- x
	sar, ok := instrs[2].(*x86.ShiftInstr)
	require.True(t, ok, "expected a ShiftInstr emulating cqo's sign extension, got %T", instrs[2])
	assert.Equal(t, x86.Sar, sar.Op)
	assert.Equal(t, x86.RDX.WithSize(x86.Size64), sar.Dst)

	div, ok := instrs[3].(*x86.DivInstr)
	require.True(t, ok)
	assert.True(t, div.Signed)

	last := instrs[4].(*x86.MovInstr)
	assert.Equal(t, x86.RAX.WithSize(x86.Size64), last.Src, "Div's quotient result should come from rax")
}

func TestEmitMulDivRemRemUsesRdx(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("rem", nil, []ir.Type{ir.TInt{Width: atomics.I32}})
	x := f.NewComputedValue(ir.TInt{Width: atomics.U32})
	y := f.NewComputedValue(ir.TInt{Width: atomics.U32})
	result := f.NewComputedValue(ir.TInt{Width: atomics.U32})

	tr := newTestTranslator(map[int]regalloc.Color{
		x.Number():      regalloc.Color(x86.RBX.Num),
		y.Number():      regalloc.Color(x86.RSI.Num),
		result.Number(): regalloc.Color(x86.RDI.Num),
	})
	xb := &x86.Block{}
	tr.emitMulDivRem(xb, 0, 0, result, atomics.IntRem, x, y)

	instrs := xb.Instrs()
	require.Len(t, instrs, 4)
	xorInstr, ok := instrs[1].(*x86.BinaryInstr)
	require.True(t, ok)
	assert.Equal(t, x86.Xor, xorInstr.Op, "unsigned division zeroes rdx rather than sign-extending it")

	div := instrs[2].(*x86.DivInstr)
	assert.False(t, div.Signed)

	last := instrs[3].(*x86.MovInstr)
	assert.Equal(t, x86.RDX.WithSize(x86.Size32), last.Src, "Rem's result should come from rdx, not rax")
}

func TestEmitConversionUnsignedWideningZeroExtendsSubRegister(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("widen_u", nil, []ir.Type{ir.TInt{Width: atomics.U64}})
	src := f.NewComputedValue(ir.TInt{Width: atomics.U32})
	result := f.NewComputedValue(ir.TInt{Width: atomics.U64})

	tr := newTestTranslator(map[int]regalloc.Color{
		src.Number():    regalloc.Color(x86.RSI.Num),
		result.Number(): regalloc.Color(x86.RDI.Num),
	})
	xb := &x86.Block{}
	tr.emitConversion(xb, &ir.ConversionInstr{Result: result, Src: src})

	require.Len(t, xb.Instrs(), 1)
	mov := xb.Instrs()[0].(*x86.MovInstr)
	assert.Equal(t, x86.RDI.WithSize(x86.Size32), mov.Dst, "writing the 32-bit sub-register zero-extends the full register")
	assert.Equal(t, x86.RSI.WithSize(x86.Size32), mov.Src)
}

func TestEmitConversionSignedWideningUsesMovSxD(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("widen_s", nil, []ir.Type{ir.TInt{Width: atomics.I64}})
	src := f.NewComputedValue(ir.TInt{Width: atomics.I32})
	result := f.NewComputedValue(ir.TInt{Width: atomics.I64})

	tr := newTestTranslator(map[int]regalloc.Color{
		src.Number():    regalloc.Color(x86.RSI.Num),
		result.Number(): regalloc.Color(x86.RDI.Num),
	})
	xb := &x86.Block{}
	tr.emitConversion(xb, &ir.ConversionInstr{Result: result, Src: src})

	require.Len(t, xb.Instrs(), 1)
	sxd := xb.Instrs()[0].(*x86.MovSxDInstr)
	assert.Equal(t, x86.RDI, sxd.Dst)
	assert.Equal(t, x86.RSI.WithSize(x86.Size32), sxd.Src)
}

func TestEmitConversionGeneralWideningUsesMovSxAndMovZx(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("widen_general", nil, []ir.Type{ir.TInt{Width: atomics.I32}})
	signedSrc := f.NewComputedValue(ir.TInt{Width: atomics.I8})
	signedResult := f.NewComputedValue(ir.TInt{Width: atomics.I32})
	unsignedSrc := f.NewComputedValue(ir.TInt{Width: atomics.U8})
	unsignedResult := f.NewComputedValue(ir.TInt{Width: atomics.U32})

	tr := newTestTranslator(map[int]regalloc.Color{
		signedSrc.Number():      regalloc.Color(x86.RSI.Num),
		signedResult.Number():   regalloc.Color(x86.RDI.Num),
		unsignedSrc.Number():    regalloc.Color(x86.RSI.Num),
		unsignedResult.Number(): regalloc.Color(x86.RDI.Num),
	})

	xb := &x86.Block{}
	tr.emitConversion(xb, &ir.ConversionInstr{Result: signedResult, Src: signedSrc})
	require.Len(t, xb.Instrs(), 1)
	_, ok := xb.Instrs()[0].(*x86.MovSxInstr)
	assert.True(t, ok, "signed narrow-to-wide conversion should sign-extend via MovSx")

	xb2 := &x86.Block{}
	tr.emitConversion(xb2, &ir.ConversionInstr{Result: unsignedResult, Src: unsignedSrc})
	require.Len(t, xb2.Instrs(), 1)
	_, ok = xb2.Instrs()[0].(*x86.MovZxInstr)
	assert.True(t, ok, "unsigned narrow-to-wide conversion should zero-extend via MovZx")
}

func TestEmitConversionNarrowingReinterpretsOperand(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("narrow", nil, []ir.Type{ir.TInt{Width: atomics.I8}})
	src := f.NewComputedValue(ir.TInt{Width: atomics.I64})
	result := f.NewComputedValue(ir.TInt{Width: atomics.I8})

	tr := newTestTranslator(map[int]regalloc.Color{
		src.Number():    regalloc.Color(x86.RSI.Num),
		result.Number(): regalloc.Color(x86.RDI.Num),
	})
	xb := &x86.Block{}
	tr.emitConversion(xb, &ir.ConversionInstr{Result: result, Src: src})

	require.Len(t, xb.Instrs(), 1)
	mov := xb.Instrs()[0].(*x86.MovInstr)
	assert.Equal(t, x86.RDI.WithSize(x86.Size8), mov.Dst)
	assert.Equal(t, x86.RSI.WithSize(x86.Size8), mov.Src, "narrowing reinterprets the same register at a smaller width")
}

func TestEmitConversionSameSizeIsPlainMov(t *testing.T) {
	prog := ir.NewProgram()
	f := prog.DeclareFunc("same", nil, []ir.Type{ir.TInt{Width: atomics.I32}})
	src := f.NewComputedValue(ir.TInt{Width: atomics.U32})
	result := f.NewComputedValue(ir.TInt{Width: atomics.I32})

	tr := newTestTranslator(map[int]regalloc.Color{
		src.Number():    regalloc.Color(x86.RSI.Num),
		result.Number(): regalloc.Color(x86.RDI.Num),
	})
	xb := &x86.Block{}
	tr.emitConversion(xb, &ir.ConversionInstr{Result: result, Src: src})

	require.Len(t, xb.Instrs(), 1)
	mov := xb.Instrs()[0].(*x86.MovInstr)
	assert.Equal(t, x86.RDI.WithSize(x86.Size32), mov.Dst)
	assert.Equal(t, x86.RSI.WithSize(x86.Size32), mov.Src)
}
