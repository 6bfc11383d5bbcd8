// Package parser parses the textual IR format internal/ir.Printer emits
// back into an ir.Program. Values are resolved in one top-to-bottom pass:
// a use must come after its definition in the text, so a phi argument
// naming a value defined further down (a loop's back-edge value) is
// rejected as a use of an undefined value.
// It is hand-written over a line-oriented scanner rather than a grammar
// library: each instruction is one line dispatched by its opcode keyword,
// much closer to a lexer/switch than to a struct-tag grammar.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"katara/internal/atomics"
	"katara/internal/ir"
)

// ParseError reports a line-anchored syntax problem in the textual IR.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

var (
	funcHeaderRe = regexp.MustCompile(`^@(\d+)\s+(\S+)\s*\((.*)\)\s*=>\s*\((.*)\)\s*\{$`)
	blockHeaderRe = regexp.MustCompile(`^\{(\d+)\}$`)
)

// Parse parses a complete textual IR program.
func Parse(src string) (*ir.Program, error) {
	prog := ir.NewProgram()
	lines := strings.Split(src, "\n")

	var f *ir.Func
	var b *ir.Block
	values := map[int]*ir.Value{}

	for lineNum, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "@"):
			if f != nil {
				return nil, &ParseError{lineNum + 1, "nested func header before previous func closed"}
			}
			m := funcHeaderRe.FindStringSubmatch(line)
			if m == nil {
				return nil, &ParseError{lineNum + 1, "malformed func header: " + line}
			}
			num, _ := strconv.Atoi(m[1])
			paramTypes, params, err := parseParams(m[3])
			if err != nil {
				return nil, &ParseError{lineNum + 1, err.Error()}
			}
			resultTypes, err := parseTypeList(m[4])
			if err != nil {
				return nil, &ParseError{lineNum + 1, err.Error()}
			}
			f = ir.NewFuncParsed(num, m[2], paramTypes, resultTypes)
			values = map[int]*ir.Value{}
			for i, p := range params {
				values[i] = p
			}
			b = nil

		case line == "}":
			if f == nil {
				return nil, &ParseError{lineNum + 1, "unmatched closing brace"}
			}
			prog.DeclareFuncNum(f)
			f = nil
			b = nil

		case blockHeaderRe.MatchString(line):
			if f == nil {
				return nil, &ParseError{lineNum + 1, "block header outside any func"}
			}
			m := blockHeaderRe.FindStringSubmatch(line)
			num, _ := strconv.Atoi(m[1])
			b = f.NewBlockNum(num)
			if num == 0 {
				f.SetEntryBlockNum(num)
			}

		default:
			if f == nil || b == nil {
				return nil, &ParseError{lineNum + 1, "instruction outside any block"}
			}
			instr, err := parseInstr(line, f, values)
			if err != nil {
				return nil, &ParseError{lineNum + 1, err.Error()}
			}
			b.AddInstr(instr)
		}
	}
	if f != nil {
		return nil, &ParseError{len(lines), "func never closed with '}'"}
	}
	// The entry block is whichever one the text numbered {0}; if a program
	// never names block 0 explicitly (empty func body), leave it unset.
	return prog, nil
}

func parseParams(s string) ([]ir.Type, []*ir.Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	var types []ir.Type
	var vals []*ir.Value
	for i, part := range splitTopLevelComma(s) {
		part = strings.TrimSpace(part)
		name, typStr, ok := strings.Cut(part, ":")
		if !ok || !strings.HasPrefix(name, "%") {
			return nil, nil, fmt.Errorf("malformed parameter %q", part)
		}
		typ, ok := ir.ParseType(strings.TrimSpace(typStr))
		if !ok {
			return nil, nil, fmt.Errorf("unknown type %q", typStr)
		}
		types = append(types, typ)
		vals = append(vals, ir.NewComputed(typ, i))
	}
	return types, vals, nil
}

func parseTypeList(s string) ([]ir.Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []ir.Type
	for _, part := range splitTopLevelComma(s) {
		part = strings.TrimSpace(part)
		typ, ok := ir.ParseType(part)
		if !ok {
			return nil, fmt.Errorf("unknown type %q", part)
		}
		out = append(out, typ)
	}
	return out, nil
}

// splitTopLevelComma splits on commas that are not nested inside parens
// (needed for func-typed parameter/result annotations).
func splitTopLevelComma(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// defValue parses a "%N:type" definition-site token, registers it in
// values, and bumps f's fresh-value-number counter past N.
func defValue(tok string, f *ir.Func, values map[int]*ir.Value) (*ir.Value, error) {
	name, typStr, ok := strings.Cut(tok, ":")
	if !ok || !strings.HasPrefix(name, "%") {
		return nil, fmt.Errorf("malformed definition %q", tok)
	}
	num, err := strconv.Atoi(strings.TrimPrefix(name, "%"))
	if err != nil {
		return nil, fmt.Errorf("malformed value number %q", name)
	}
	typ, ok := ir.ParseType(strings.TrimSpace(typStr))
	if !ok {
		return nil, fmt.Errorf("unknown type %q", typStr)
	}
	v := ir.NewComputed(typ, num)
	values[num] = v
	f.ReserveValueNum(num)
	return v, nil
}

// operand parses a value reference used as an instruction operand: a
// computed reference "%N", a phi-inherited reference "%N@{M}", or a
// constant ("#int:type", "true"/"false", "0x0", "@funcnum").
func operand(tok string, values map[int]*ir.Value) (*ir.Value, error) {
	tok = strings.TrimSpace(tok)
	switch {
	case strings.HasPrefix(tok, "%"):
		body := tok[1:]
		if idx := strings.Index(body, "@{"); idx >= 0 && strings.HasSuffix(body, "}") {
			numStr := body[:idx]
			originStr := body[idx+2 : len(body)-1]
			num, err := strconv.Atoi(numStr)
			if err != nil {
				return nil, fmt.Errorf("malformed inherited value %q", tok)
			}
			origin, err := strconv.Atoi(originStr)
			if err != nil {
				return nil, fmt.Errorf("malformed origin block in %q", tok)
			}
			inner, ok := values[num]
			if !ok {
				return nil, fmt.Errorf("use of undefined value %%%d", num)
			}
			return ir.NewInherited(inner, origin), nil
		}
		num, err := strconv.Atoi(body)
		if err != nil {
			return nil, fmt.Errorf("malformed value reference %q", tok)
		}
		v, ok := values[num]
		if !ok {
			return nil, fmt.Errorf("use of undefined value %%%d", num)
		}
		return v, nil

	case strings.HasPrefix(tok, "#"):
		n, ok := atomics.ParseIntLiteral(tok[1:])
		if !ok {
			return nil, fmt.Errorf("malformed int constant %q", tok)
		}
		return ir.ConstInt(n), nil

	case tok == "true" || tok == "false":
		b, _ := atomics.ParseBool(tok)
		return ir.ConstBool(b), nil

	case tok == "0x0":
		return ir.ConstPointerNil(ir.Strong), nil

	case strings.HasPrefix(tok, "@"):
		num, err := strconv.Atoi(tok[1:])
		if err != nil {
			return nil, fmt.Errorf("malformed func reference %q", tok)
		}
		return ir.ConstFunc(num), nil
	}
	return nil, fmt.Errorf("unrecognized operand %q", tok)
}

func operands(s string, values map[int]*ir.Value) ([]*ir.Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := splitTopLevelComma(s)
	out := make([]*ir.Value, len(parts))
	for i, p := range parts {
		v, err := operand(strings.TrimSpace(p), values)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseBlockRef(tok string) (int, error) {
	tok = strings.TrimSpace(tok)
	if !strings.HasPrefix(tok, "{") || !strings.HasSuffix(tok, "}") {
		return 0, fmt.Errorf("malformed block reference %q", tok)
	}
	return strconv.Atoi(tok[1 : len(tok)-1])
}

func parseStrength(s string) (ir.PointerStrength, error) {
	switch strings.TrimSpace(s) {
	case "strong":
		return ir.Strong, nil
	case "weak":
		return ir.Weak, nil
	default:
		return 0, fmt.Errorf("unknown pointer strength %q", s)
	}
}

// parseInstr parses one non-header, non-block-marker line into an ir.Instr.
func parseInstr(line string, f *ir.Func, values map[int]*ir.Value) (ir.Instr, error) {
	if lhs, rhs, ok := strings.Cut(line, " = "); ok {
		return parseDefiningInstr(lhs, rhs, f, values)
	}
	return parseVoidInstr(line, values)
}

func parseDefiningInstr(lhs, rhs string, f *ir.Func, values map[int]*ir.Value) (ir.Instr, error) {
	defs := splitTopLevelComma(lhs)

	word, rest, _ := strings.Cut(strings.TrimSpace(rhs), " ")
	switch {
	case word == "mov":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		src, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.MovInstr{Result: r, Src: src}, nil

	case word == "phi":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		args, err := operands(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.PhiInstr{Result: r, Args: args}, nil

	case word == "conv":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		src, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.ConversionInstr{Result: r, Src: src}, nil

	case word == "bnot":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		src, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.BoolNotInstr{Result: r, Operand: src}, nil

	case strings.HasPrefix(word, "b") && isBoolBinary(word[1:]):
		op, _ := atomics.ParseBoolBinaryOp(word[1:])
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		xy, err := operands(rest, values)
		if err != nil || len(xy) != 2 {
			return nil, fmt.Errorf("malformed bool binary operands %q", rest)
		}
		return &ir.BoolBinaryInstr{Result: r, Op: op, X: xy[0], Y: xy[1]}, nil

	case strings.HasPrefix(word, "i") && isIntUnary(word[1:]):
		op, _ := atomics.ParseIntUnaryOp(word[1:])
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		src, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.IntUnaryInstr{Result: r, Op: op, Operand: src}, nil

	case strings.HasPrefix(word, "icmp_"):
		op, ok := atomics.ParseIntCompareOp(strings.TrimPrefix(word, "icmp_"))
		if !ok {
			return nil, fmt.Errorf("unknown int compare op %q", word)
		}
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		xy, err := operands(rest, values)
		if err != nil || len(xy) != 2 {
			return nil, fmt.Errorf("malformed int compare operands %q", rest)
		}
		return &ir.IntCompareInstr{Result: r, Op: op, X: xy[0], Y: xy[1]}, nil

	case isIntBinaryOp(word):
		op, _ := atomics.ParseIntBinaryOp(word)
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		xy, err := operands(rest, values)
		if err != nil || len(xy) != 2 {
			return nil, fmt.Errorf("malformed int binary operands %q", rest)
		}
		return &ir.IntBinaryInstr{Result: r, Op: op, X: xy[0], Y: xy[1]}, nil

	case isIntShiftOp(word):
		op, _ := atomics.ParseIntShiftOp(word)
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		xy, err := operands(rest, values)
		if err != nil || len(xy) != 2 {
			return nil, fmt.Errorf("malformed shift operands %q", rest)
		}
		return &ir.IntShiftInstr{Result: r, Op: op, X: xy[0], Y: xy[1]}, nil

	case word == "poff":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		parts := splitTopLevelComma(rest)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed poff operands %q", rest)
		}
		ptr, err := operand(strings.TrimSpace(parts[0]), values)
		if err != nil {
			return nil, err
		}
		off, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed poff offset %q", parts[1])
		}
		return &ir.PointerOffsetInstr{Result: r, Pointer: ptr, Offset: off}, nil

	case word == "niltest":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		ptr, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.NilTestInstr{Result: r, Pointer: ptr}, nil

	case word == "malloc":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		size, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.MallocInstr{Result: r, Size: size}, nil

	case word == "load":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		addr, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.LoadInstr{Result: r, Address: addr}, nil

	case word == "syscall":
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		numTok, argsStr, ok := strings.Cut(rest, " (")
		if !ok || !strings.HasSuffix(argsStr, ")") {
			return nil, fmt.Errorf("malformed syscall %q", rest)
		}
		num, err := operand(numTok, values)
		if err != nil {
			return nil, err
		}
		args, err := operands(argsStr[:len(argsStr)-1], values)
		if err != nil {
			return nil, err
		}
		return &ir.SyscallInstr{Result: r, Number: num, Args: args}, nil

	case word == "call":
		results := make([]*ir.Value, len(defs))
		for i, d := range defs {
			r, err := defValue(strings.TrimSpace(d), f, values)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		callee, argsStr, ok := strings.Cut(rest, " (")
		if !ok || !strings.HasSuffix(argsStr, ")") {
			return nil, fmt.Errorf("malformed call %q", rest)
		}
		calleeVal, err := operand(callee, values)
		if err != nil {
			return nil, err
		}
		args, err := operands(argsStr[:len(argsStr)-1], values)
		if err != nil {
			return nil, err
		}
		return &ir.CallInstr{Results: results, Callee: calleeVal, Args: args}, nil

	case strings.HasPrefix(word, "make_shared("):
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		strengthStr := strings.TrimSuffix(strings.TrimPrefix(word, "make_shared("), ")")
		strength, err := parseStrength(strengthStr)
		if err != nil {
			return nil, err
		}
		size, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.MakeSharedInstr{Result: r, Strength: strength, Size: size}, nil

	case strings.HasPrefix(word, "copy_shared("):
		r, err := defValue(strings.TrimSpace(defs[0]), f, values)
		if err != nil {
			return nil, err
		}
		strengthStr := strings.TrimSuffix(strings.TrimPrefix(word, "copy_shared("), ")")
		strength, err := parseStrength(strengthStr)
		if err != nil {
			return nil, err
		}
		ptr, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.CopySharedInstr{Result: r, Strength: strength, Pointer: ptr}, nil

	default:
		return nil, fmt.Errorf("unknown defining opcode %q", word)
	}
}

func parseVoidInstr(line string, values map[int]*ir.Value) (ir.Instr, error) {
	word, rest, _ := strings.Cut(line, " ")
	switch {
	case word == "ret":
		args, err := operands(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.ReturnInstr{Args: args}, nil

	case word == "jmp":
		target, err := parseBlockRef(rest)
		if err != nil {
			return nil, err
		}
		return &ir.JumpInstr{Target: target}, nil

	case word == "call":
		callee, argsStr, ok := strings.Cut(rest, " (")
		if !ok || !strings.HasSuffix(argsStr, ")") {
			return nil, fmt.Errorf("malformed call %q", rest)
		}
		calleeVal, err := operand(callee, values)
		if err != nil {
			return nil, err
		}
		args, err := operands(argsStr[:len(argsStr)-1], values)
		if err != nil {
			return nil, err
		}
		return &ir.CallInstr{Callee: calleeVal, Args: args}, nil

	case word == "jcc":
		parts := splitTopLevelComma(rest)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed jcc %q", rest)
		}
		cond, err := operand(strings.TrimSpace(parts[0]), values)
		if err != nil {
			return nil, err
		}
		trueTarget, err := parseBlockRef(parts[1])
		if err != nil {
			return nil, err
		}
		falseTarget, err := parseBlockRef(parts[2])
		if err != nil {
			return nil, err
		}
		return &ir.JumpCondInstr{Cond: cond, TrueTarget: trueTarget, FalseTarget: falseTarget}, nil

	case word == "store":
		parts := splitTopLevelComma(rest)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed store %q", rest)
		}
		addr, err := operand(strings.TrimSpace(parts[0]), values)
		if err != nil {
			return nil, err
		}
		val, err := operand(strings.TrimSpace(parts[1]), values)
		if err != nil {
			return nil, err
		}
		return &ir.StoreInstr{Address: addr, Value: val}, nil

	case word == "free":
		addr, err := operand(rest, values)
		if err != nil {
			return nil, err
		}
		return &ir.FreeInstr{Address: addr}, nil

	case strings.HasPrefix(word, "delete_shared("):
		strengthStr := strings.TrimSuffix(strings.TrimPrefix(word, "delete_shared("), ")")
		strength, err := parseStrength(strengthStr)
		if err != nil {
			return nil, err
		}
		ptrTok, dtorTok, hasDtor := strings.Cut(rest, " dtor=")
		ptr, err := operand(ptrTok, values)
		if err != nil {
			return nil, err
		}
		instr := &ir.DeleteSharedInstr{Pointer: ptr, Strength: strength}
		if hasDtor {
			dtor, err := operand(dtorTok, values)
			if err != nil {
				return nil, err
			}
			instr.Destructor = dtor
		}
		return instr, nil

	default:
		return nil, fmt.Errorf("unknown opcode %q", word)
	}
}

func isBoolBinary(s string) bool {
	_, ok := atomics.ParseBoolBinaryOp(s)
	return ok
}

func isIntUnary(s string) bool {
	_, ok := atomics.ParseIntUnaryOp(s)
	return ok
}

func isIntBinaryOp(s string) bool {
	_, ok := atomics.ParseIntBinaryOp(s)
	return ok
}

func isIntShiftOp(s string) bool {
	_, ok := atomics.ParseIntShiftOp(s)
	return ok
}
