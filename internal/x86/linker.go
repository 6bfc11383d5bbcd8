package x86

import (
	"encoding/binary"
	"fmt"
)

// LinkResult is a fully laid-out, relocated program: one flat code section
// plus the byte offset each func starts at.
type LinkResult struct {
	Code        []byte
	FuncOffsets map[int]int
	EntryOffset int
	HasEntry    bool
}

// Link encodes every func in prog, concatenates them into one code section
// in declaration order, and patches every relocation now that every func's
// base offset is fixed -- a two-pass scheme: the encoder embeds a rel32
// placeholder, the linker walks the
// patch list after layout and writes the correct displacement.
func Link(prog *Program) (*LinkResult, error) {
	funcs := prog.Funcs()
	encoded := make(map[int]*EncodedFunc, len(funcs))
	funcOffsets := make(map[int]int, len(funcs))

	var code []byte
	for _, f := range funcs {
		ef := EncodeFunc(f)
		funcOffsets[f.Number()] = len(code)
		encoded[f.Number()] = ef
		code = append(code, ef.Code...)
	}

	for _, f := range funcs {
		ef := encoded[f.Number()]
		base := funcOffsets[f.Number()]
		for _, r := range ef.Relocs {
			var targetAbs int
			switch r.Kind {
			case RelocFunc:
				fo, ok := funcOffsets[r.Target]
				if !ok {
					return nil, fmt.Errorf("x86: relocation in func %d references unknown func %d", f.Number(), r.Target)
				}
				targetAbs = fo
			case RelocBlock:
				bo, ok := ef.BlockOffsets[r.Target]
				if !ok {
					return nil, fmt.Errorf("x86: relocation in func %d references unknown block %d", f.Number(), r.Target)
				}
				targetAbs = base + bo
			}
			patchEndAbs := base + r.PatchEnd
			rel := int32(targetAbs - patchEndAbs)
			binary.LittleEndian.PutUint32(code[base+r.Offset:], uint32(rel))
		}
	}

	result := &LinkResult{Code: code, FuncOffsets: funcOffsets}
	if num, ok := prog.EntryFunc(); ok {
		off, ok := funcOffsets[num]
		if !ok {
			return nil, fmt.Errorf("x86: entry func %d was never declared", num)
		}
		result.EntryOffset = off
		result.HasEntry = true
	}
	return result, nil
}
