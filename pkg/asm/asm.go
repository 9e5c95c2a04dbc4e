package asm

import (
	"strconv"
	"strings"

	"github.com/mach-sim/rmach/pkg/types"
	"github.com/mach-sim/rmach/pkg/vm"
)

type arity int

const (
	arity1 arity = 1 // no inline operand
	arity2 arity = 2 // one inline operand
)

type opSpec struct {
	op    vm.Opcode
	arity arity
	// operand classifies what the single token after the mnemonic means.
	operand operandKind
}

type operandKind int

const (
	operandNone operandKind = iota
	operandAddr             // jump target, integer
	operandName             // environment cell name
	operandPush             // PUSH literal, integer or string
)

var mnemonics = map[string]opSpec{
	"FETCH":       {vm.FETCH, arity2, operandName},
	"STORE":       {vm.STORE, arity2, operandName},
	"PUSH":        {vm.PUSH, arity2, operandPush},
	"POP":         {vm.POP, arity1, operandNone},
	"ADD":         {vm.ADD, arity1, operandNone},
	"SUB":         {vm.SUB, arity1, operandNone},
	"MUL":         {vm.MUL, arity1, operandNone},
	"DIV":         {vm.DIV, arity1, operandNone},
	"LT":          {vm.LT, arity1, operandNone},
	"GT":          {vm.GT, arity1, operandNone},
	"EQ":          {vm.EQ, arity1, operandNone},
	"NOTEQ":       {vm.NOTEQ, arity1, operandNone},
	"JZ":          {vm.JZ, arity2, operandAddr},
	"JNZ":         {vm.JNZ, arity2, operandAddr},
	"JMP":         {vm.JMP, arity2, operandAddr},
	"RECV":        {vm.RECV, arity1, operandNone},
	"SEND":        {vm.SEND, arity1, operandNone},
	"LIST":        {vm.LIST, arity1, operandNone},
	"DICT":        {vm.DICT, arity1, operandNone},
	"INDEX":       {vm.INDEX, arity1, operandNone},
	"CREATE_PORT": {vm.CREATE_PORT, arity1, operandNone},
	"APPEND":      {vm.APPEND, arity2, operandName},
	"RETURN":      {vm.RETURN, arity1, operandNone},
	"PRINT":       {vm.PRINT, arity1, operandNone},
	"HALT":        {vm.HALT, arity1, operandNone},
}

// Assemble compiles source into an instruction stream. It never
// returns an error: an unrecognized mnemonic simply becomes the
// program's final HALT, mirroring the assembler this package
// reimplements rather than rejecting the input.
//
// JMP/JZ/JNZ targets are written in the source as byte offsets into
// the flat opcode+operand stream the instructions were assembled
// from, one slot per argument-less opcode and two per opcode carrying
// an inline operand. Since the VM steps an index into a decoded
// []Instr rather than that flat stream, every jump target is remapped
// from byte offset to instruction index once the whole program has
// been seen.
func Assemble(source string) []vm.Instr {
	expanded := expandMacros(rawLines(source))

	var out []vm.Instr
	var offsets []int
	byteLen := 0
	for _, line := range expanded {
		line = stripComment(line)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := strings.ToUpper(fields[0])
		spec, ok := mnemonics[cmd]
		if !ok {
			offsets = append(offsets, byteLen)
			out = append(out, vm.Instr{Op: vm.HALT})
			break
		}
		offsets = append(offsets, byteLen)
		out = append(out, buildInstr(spec, fields))
		byteLen += int(spec.arity)
	}

	resolveJumpTargets(out, offsets, byteLen)
	return out
}

// resolveJumpTargets rewrites each jump instruction's Addr from a byte
// offset into the source's flat stream to the index of the
// instruction that starts at that offset.
func resolveJumpTargets(out []vm.Instr, offsets []int, totalBytes int) {
	byOffset := make(map[int]int, len(offsets))
	for idx, off := range offsets {
		byOffset[off] = idx
	}
	for i := range out {
		switch out[i].Op {
		case vm.JMP, vm.JZ, vm.JNZ:
			target := out[i].Addr
			if idx, ok := byOffset[target]; ok {
				out[i].Addr = idx
			} else if target >= totalBytes {
				out[i].Addr = len(out)
			}
		}
	}
}

func rawLines(source string) []string {
	var lines []string
	for _, l := range strings.Split(source, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// expandMacros inlines every ".func NAME" ... ".end" body at each
// later line whose first token names that macro.
func expandMacros(rawLines []string) []string {
	macros := make(map[string][]string)
	var expanded []string
	var current string
	var inMacro bool

	for _, line := range rawLines {
		switch {
		case strings.HasPrefix(line, ".func "):
			current = strings.ToUpper(strings.Fields(line)[1])
			macros[current] = nil
			inMacro = true
			continue
		case line == ".end":
			inMacro = false
			continue
		}

		if inMacro {
			macros[current] = append(macros[current], line)
			continue
		}

		first := strings.ToUpper(strings.Fields(line)[0])
		if body, isMacro := macros[first]; isMacro {
			expanded = append(expanded, body...)
		} else {
			expanded = append(expanded, line)
		}
	}
	return expanded
}

func stripComment(line string) string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

func buildInstr(spec opSpec, fields []string) vm.Instr {
	instr := vm.Instr{Op: spec.op}
	if spec.arity == arity1 {
		return instr
	}

	var arg string
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch spec.operand {
	case operandAddr:
		instr.Addr = atomInt(arg)
	case operandName:
		instr.Name = arg
	case operandPush:
		if n, ok := atom(arg); ok {
			instr.Val = types.Int(n)
		} else {
			instr.Val = types.Str(arg)
		}
	}
	return instr
}

func atomInt(s string) int {
	n, _ := atom(s)
	return int(n)
}

// atom classifies a token the way the source assembler's atom() did:
// an optional leading '-' followed only by digits is an integer;
// anything else is left as a string (callers decide what to do with
// a non-numeric token in an integer-only slot).
func atom(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}
	trimmed := strings.TrimPrefix(s, "-")
	if trimmed == "" {
		return 0, false
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
