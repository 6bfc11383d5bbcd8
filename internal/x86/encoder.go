package x86

import "encoding/binary"

// RelocKind distinguishes the two relocation record shapes: calls to
// statically known funcs and jumps to labeled blocks.
type RelocKind int

const (
	RelocFunc RelocKind = iota
	RelocBlock
)

// Reloc is a patch site: a 32-bit placeholder at Offset within an
// EncodedFunc's Code, to be overwritten with target - PatchEnd once the
// whole program's layout is known.
type Reloc struct {
	Offset   int
	PatchEnd int
	Kind     RelocKind
	Target   int
}

// EncodedFunc is one func's machine code plus its unresolved relocations
// and the offset of each of its blocks within Code.
type EncodedFunc struct {
	Num          int
	Code         []byte
	Relocs       []Reloc
	BlockOffsets map[int]int
}

// EncodeFunc encodes every block of f in layout order.
func EncodeFunc(f *Func) *EncodedFunc {
	e := &encoder{}
	offsets := make(map[int]int, len(f.Blocks()))
	for _, b := range f.Blocks() {
		offsets[b.Number()] = len(e.code)
		for _, instr := range b.Instrs() {
			e.encodeInstr(instr)
		}
	}
	return &EncodedFunc{Num: f.Number(), Code: e.code, Relocs: e.relocs, BlockOffsets: offsets}
}

type encoder struct {
	code   []byte
	relocs []Reloc
}

func (e *encoder) emit(b ...byte) { e.code = append(e.code, b...) }

func (e *encoder) emitImm(v int64, size Size) {
	switch size {
	case Size8:
		e.emit(byte(v))
	case Size16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		e.emit(b[:]...)
	case Size32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		e.emit(b[:]...)
	default:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		e.emit(b[:]...)
	}
}

// emitRel32Placeholder emits four zero bytes and records a relocation that
// the Linker resolves into target - (offset of the byte right after these
// four), the usual x86 rel32 convention.
func (e *encoder) emitRel32Placeholder(kind RelocKind, target int) {
	offset := len(e.code)
	e.emit(0, 0, 0, 0)
	e.relocs = append(e.relocs, Reloc{Offset: offset, PatchEnd: len(e.code), Kind: kind, Target: target})
}

func rex(w, r, x, b bool) byte {
	return 0x40 | bit(w)<<3 | bit(r)<<2 | bit(x)<<1 | bit(b)
}

func bit(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func fitsInt8(v int64) bool { return v >= -128 && v <= 127 }

func modrmByte(mod, reg, rm int) byte {
	return byte((mod&3)<<6 | (reg&7)<<3 | (rm & 7))
}

// modrmEncoding is the ModR/M + optional SIB + optional displacement for
// one r/m operand, plus the REX.X/REX.B bits it demands.
type modrmEncoding struct {
	modrm byte
	sib   *byte
	disp  []byte
	rexX  bool
	rexB  bool
}

func encodeRM(regField int, rm Operand) modrmEncoding {
	switch op := rm.(type) {
	case Reg:
		return modrmEncoding{modrm: modrmByte(3, regField, op.Num), rexB: op.Num >= 8}
	case Mem:
		return encodeMem(regField, op)
	default:
		panic("x86: immediate cannot be encoded as an r/m operand")
	}
}

func encodeMem(regField int, m Mem) modrmEncoding {
	baseLow := m.Base.Num & 7
	rexB := m.Base.Num >= 8

	mod := 2 // disp32, always safe
	if m.Disp == 0 && baseLow != 5 {
		mod = 0
	}

	var sib *byte
	rm := baseLow
	rexX := false
	if baseLow == 4 || m.Index != nil {
		scale := scaleEncoding(m.Scale)
		indexLow := 4 // "no index" SIB encoding
		if m.Index != nil {
			indexLow = m.Index.Num & 7
			rexX = m.Index.Num >= 8
		}
		sb := scale<<6 | byte(indexLow)<<3 | byte(baseLow)
		sib = &sb
		rm = 4
	}

	enc := modrmEncoding{modrm: modrmByte(mod, regField, rm), sib: sib, rexB: rexB, rexX: rexX}
	if mod == 0 {
		return enc
	}
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(m.Disp))
	enc.disp = d[:]
	return enc
}

func scaleEncoding(scale int) byte {
	switch scale {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		return 0
	}
}

func (e *encoder) emitModRM(enc modrmEncoding) {
	e.emit(enc.modrm)
	if enc.sib != nil {
		e.emit(*enc.sib)
	}
	if enc.disp != nil {
		e.emit(enc.disp...)
	}
}

func (e *encoder) encodeInstr(instr Instr) {
	switch i := instr.(type) {
	case *MovInstr:
		e.encodeMov(i)
	case *MovSxInstr:
		e.encodeExtend(i.Dst, i.Src, 0xBE)
	case *MovZxInstr:
		e.encodeExtend(i.Dst, i.Src, 0xB6)
	case *MovSxDInstr:
		e.encodeStdForm(0x63, i.Dst.Num, i.Dst.Size, i.Src)
	case *XchgInstr:
		e.encodeXchg(i.A, i.B)
	case *PushInstr:
		e.encodePush(i.Src)
	case *PopInstr:
		e.encodePop(i.Dst)
	case *LeaInstr:
		e.encodeLea(i.Dst, i.Src)
	case *BinaryInstr:
		e.encodeALU(i.Op, i.Dst, i.Src)
	case *UnaryInstr:
		e.encodeUnary(i.Op, i.Dst)
	case *MulInstr:
		e.encodeMulDiv(i.Src, i.Signed, true)
	case *DivInstr:
		e.encodeMulDiv(i.Src, i.Signed, false)
	case *SetccInstr:
		e.encodeSetcc(i.Cond, i.Dst)
	case *ShiftInstr:
		e.encodeShift(i.Op, i.Dst, i.Count)
	case *JmpInstr:
		e.emit(0xE9)
		e.emitRel32Placeholder(RelocBlock, i.Block)
	case *JccInstr:
		e.emit(0x0F, 0x80+jccCode(i.Cond))
		e.emitRel32Placeholder(RelocBlock, i.Block)
	case *CallInstr:
		e.encodeCall(i)
	case *RetInstr:
		e.emit(0xC3)
	case *SyscallInstr:
		e.emit(0x0F, 0x05)
	default:
		panic("x86: unsupported instruction in encoder")
	}
}

func (e *encoder) encodeMov(i *MovInstr) {
	if imm, ok := i.Src.(Imm); ok {
		switch dst := i.Dst.(type) {
		case Reg:
			if dst.Size == Size16 {
				e.emit(0x66)
			}
			if dst.Size == Size64 || dst.Num >= 8 {
				e.emit(rex(dst.Size == Size64, false, false, dst.Num >= 8))
			}
			e.emit(0xB8 + byte(dst.Num&7))
			e.emitImm(imm.Value, dst.Size)
			return
		case Mem:
			e.encodeALUImm(0xC7, 0, dst, imm)
			return
		}
	}
	if _, ok := i.Src.(Mem); ok {
		dst, ok := i.Dst.(Reg)
		if !ok {
			panic("x86: mov mem, mem is not directly encodable")
		}
		e.encodeStdForm(0x8B, dst.Num, dst.Size, i.Src)
		return
	}
	src, ok := i.Src.(Reg)
	if !ok {
		panic("x86: unsupported mov source operand")
	}
	e.encodeStdForm(0x89, src.Num, src.Size, i.Dst)
}

// encodeStdForm emits a standard two-byte-opcode-or-less instruction whose
// reg field is regField (at regSize, governing REX.W/0x66) and whose r/m
// field is rm.
func (e *encoder) encodeStdForm(opcode byte, regField int, regSize Size, rm Operand) {
	enc := encodeRM(regField, rm)
	if regSize == Size16 {
		e.emit(0x66)
	}
	if regSize == Size64 || regField >= 8 || enc.rexB || enc.rexX {
		e.emit(rex(regSize == Size64, regField >= 8, enc.rexX, enc.rexB))
	}
	e.emit(opcode)
	e.emitModRM(enc)
}

// encodeExtend emits MovSx/MovZx: two-byte opcode 0x0F 0xB6/0xB7 (zero
// extend) or 0x0F 0xBE/0xBF (sign extend), the low bit selecting an 8-bit
// vs 16-bit source.
func (e *encoder) encodeExtend(dst, src Operand, opcode byte) {
	dstReg, ok := dst.(Reg)
	if !ok {
		panic("x86: movsx/movzx destination must be a register")
	}
	srcSize := src.operandSize()
	if srcSize == Size32 || srcSize == Size64 {
		panic("x86: movsx/movzx source must be narrower than its destination")
	}
	if srcSize == Size16 {
		opcode++
	}
	enc := encodeRM(dstReg.Num, src)
	if dstReg.Size == Size64 || dstReg.Num >= 8 || enc.rexB || enc.rexX {
		e.emit(rex(dstReg.Size == Size64, dstReg.Num >= 8, enc.rexX, enc.rexB))
	}
	e.emit(0x0F, opcode)
	e.emitModRM(enc)
}

func (e *encoder) encodeXchg(a, b Operand) {
	aReg, aOk := a.(Reg)
	bReg, bOk := b.(Reg)
	switch {
	case aOk && bOk:
		e.encodeStdForm(0x87, bReg.Num, bReg.Size, a)
	case aOk:
		e.encodeStdForm(0x87, aReg.Num, aReg.Size, b)
	case bOk:
		e.encodeStdForm(0x87, bReg.Num, bReg.Size, a)
	default:
		panic("x86: xchg needs at least one register operand")
	}
}

func (e *encoder) encodePush(src Operand) {
	switch s := src.(type) {
	case Reg:
		if s.Num >= 8 {
			e.emit(rex(false, false, false, true))
		}
		e.emit(0x50 + byte(s.Num&7))
	case Mem:
		enc := encodeMem(6, s)
		if enc.rexB || enc.rexX {
			e.emit(rex(false, false, enc.rexX, enc.rexB))
		}
		e.emit(0xFF)
		e.emitModRM(enc)
	case Imm:
		e.emit(0x68)
		e.emitImm(s.Value, Size32)
	}
}

func (e *encoder) encodePop(dst Operand) {
	switch d := dst.(type) {
	case Reg:
		if d.Num >= 8 {
			e.emit(rex(false, false, false, true))
		}
		e.emit(0x58 + byte(d.Num&7))
	case Mem:
		enc := encodeMem(0, d)
		if enc.rexB || enc.rexX {
			e.emit(rex(false, false, enc.rexX, enc.rexB))
		}
		e.emit(0x8F)
		e.emitModRM(enc)
	}
}

func (e *encoder) encodeLea(dst Reg, src Mem) {
	e.encodeStdForm(0x8D, dst.Num, dst.Size, src)
}

type aluOp struct {
	rmReg byte // opcode for r/m(dst), reg(src)
	regRm byte // opcode for reg(dst), r/m(src)
	digit byte // ModR/M reg-field digit for the r/m, imm group
}

var aluOps = map[BinaryOp]aluOp{
	Add: {0x01, 0x03, 0},
	Or:  {0x09, 0x0B, 1},
	And: {0x21, 0x23, 4},
	Sub: {0x29, 0x2B, 5},
	Xor: {0x31, 0x33, 6},
	Cmp: {0x39, 0x3B, 7},
}

func (e *encoder) encodeALU(op BinaryOp, dst, src Operand) {
	if op == Test {
		e.encodeTest(dst, src)
		return
	}
	ops := aluOps[op]
	if imm, ok := src.(Imm); ok {
		e.encodeALUImm(0x81, ops.digit, dst, imm)
		return
	}
	if srcReg, ok := src.(Reg); ok {
		e.encodeStdForm(withWidthBit(ops.rmReg, dst), srcReg.Num, srcReg.Size, dst)
		return
	}
	dstReg, ok := dst.(Reg)
	if !ok {
		panic("x86: ALU instruction needs at least one register operand")
	}
	e.encodeStdForm(withWidthBit(ops.regRm, src), dstReg.Num, dstReg.Size, src)
}

// withWidthBit clears opcode bit 0 (the w bit these ALU opcode pairs share)
// when the operand is 8 bits wide; 0x66/REX.W already disambiguate 16/32/64.
func withWidthBit(opcode byte, sized Operand) byte {
	if sized.operandSize() == Size8 {
		return opcode &^ 1
	}
	return opcode
}

func (e *encoder) encodeALUImm(opcode81 byte, digit byte, dst Operand, src Imm) {
	size := dst.operandSize()
	opcode := opcode81
	immSize := size
	if immSize == Size64 {
		immSize = Size32
	}
	useImm8 := size != Size8 && size != Size16 && fitsInt8(src.Value) && opcode81 == 0x81
	if size == Size8 {
		opcode = opcode81 - 1 // 0x81->0x80, 0xC7->0xC6
	} else if useImm8 {
		opcode = 0x83
		immSize = Size8
	}
	enc := encodeRM(int(digit), dst)
	if size == Size16 {
		e.emit(0x66)
	}
	if size == Size64 || enc.rexB || enc.rexX {
		e.emit(rex(size == Size64, false, enc.rexX, enc.rexB))
	}
	e.emit(opcode)
	e.emitModRM(enc)
	e.emitImm(src.Value, immSize)
}

func (e *encoder) encodeTest(dst, src Operand) {
	if imm, ok := src.(Imm); ok {
		e.encodeALUImm(0xF7, 0, dst, imm)
		return
	}
	if imm, ok := dst.(Imm); ok {
		e.encodeALUImm(0xF7, 0, src, imm)
		return
	}
	if srcReg, ok := src.(Reg); ok {
		e.encodeStdForm(withWidthBit(0x85, dst), srcReg.Num, srcReg.Size, dst)
		return
	}
	dstReg := dst.(Reg)
	e.encodeStdForm(withWidthBit(0x85, src), dstReg.Num, dstReg.Size, src)
}

func (e *encoder) encodeUnary(op UnaryOp, dst Operand) {
	digit := 2
	if op == Not {
		digit = 3
	}
	size := dst.operandSize()
	opcode := byte(0xF7)
	if size == Size8 {
		opcode = 0xF6
	}
	enc := encodeRM(digit, dst)
	if size == Size16 {
		e.emit(0x66)
	}
	if size == Size64 || enc.rexB || enc.rexX {
		e.emit(rex(size == Size64, false, enc.rexX, enc.rexB))
	}
	e.emit(opcode)
	e.emitModRM(enc)
}

func (e *encoder) encodeMulDiv(src Operand, signed, mul bool) {
	digit := 4 // mul
	if !mul && !signed {
		digit = 6 // div
	} else if mul && signed {
		digit = 5 // imul (one-operand form)
	} else if !mul && signed {
		digit = 7 // idiv
	}
	size := src.operandSize()
	opcode := byte(0xF7)
	if size == Size8 {
		opcode = 0xF6
	}
	enc := encodeRM(digit, src)
	if size == Size16 {
		e.emit(0x66)
	}
	if size == Size64 || enc.rexB || enc.rexX {
		e.emit(rex(size == Size64, false, enc.rexX, enc.rexB))
	}
	e.emit(opcode)
	e.emitModRM(enc)
}

func (e *encoder) encodeSetcc(cond Cond, dst Operand) {
	enc := encodeRM(0, dst)
	// Setcc's r/m8 needs a REX prefix to reach spl/bpl/sil/dil (regs 4..7)
	// and to reach r8b..r15b; emit one whenever the encoding isn't a plain
	// al/cl/dl/bl-class byte register.
	if r, ok := dst.(Reg); ok && (r.Num >= 4) {
		e.emit(rex(false, false, enc.rexX, enc.rexB))
	} else if enc.rexB || enc.rexX {
		e.emit(rex(false, false, enc.rexX, enc.rexB))
	}
	e.emit(0x0F, 0x90+jccCode(cond))
	e.emitModRM(enc)
}

func (e *encoder) encodeShift(op ShiftOp, dst, count Operand) {
	digit := 4 // shl
	switch op {
	case Shr:
		digit = 5
	case Sar:
		digit = 7
	}
	size := dst.operandSize()
	enc := encodeRM(digit, dst)
	if size == Size16 {
		e.emit(0x66)
	}
	if size == Size64 || enc.rexB || enc.rexX {
		e.emit(rex(size == Size64, false, enc.rexX, enc.rexB))
	}
	if imm, ok := count.(Imm); ok {
		if imm.Value == 1 {
			opcode := byte(0xD1)
			if size == Size8 {
				opcode = 0xD0
			}
			e.emit(opcode)
			e.emitModRM(enc)
			return
		}
		opcode := byte(0xC1)
		if size == Size8 {
			opcode = 0xC0
		}
		e.emit(opcode)
		e.emitModRM(enc)
		e.emitImm(imm.Value, Size8)
		return
	}
	// count must be cl
	opcode := byte(0xD3)
	if size == Size8 {
		opcode = 0xD2
	}
	e.emit(opcode)
	e.emitModRM(enc)
}

func (e *encoder) encodeCall(i *CallInstr) {
	if i.FuncNum >= 0 {
		e.emit(0xE8)
		e.emitRel32Placeholder(RelocFunc, i.FuncNum)
		return
	}
	enc := encodeRM(2, i.Operand)
	if enc.rexB || enc.rexX {
		e.emit(rex(false, false, enc.rexX, enc.rexB))
	}
	e.emit(0xFF)
	e.emitModRM(enc)
}

func jccCode(c Cond) byte {
	switch c {
	case CondE:
		return 0x4
	case CondNE:
		return 0x5
	case CondL:
		return 0xC
	case CondGE:
		return 0xD
	case CondLE:
		return 0xE
	case CondG:
		return 0xF
	case CondB:
		return 0x2
	case CondAE:
		return 0x3
	case CondBE:
		return 0x6
	case CondA:
		return 0x7
	case CondS:
		return 0x8
	case CondNS:
		return 0x9
	}
	panic("x86: unknown condition code")
}
