package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Printer renders a Program's IR as readable text: one block label per
// line, one instruction per line beneath it, constants shown inline.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter returns an empty Printer.
func NewPrinter() *Printer {
	return &Printer{}
}

// Print returns the textual IR for prog.
func Print(prog *Program) string {
	p := NewPrinter()
	p.printProgram(prog)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printProgram(prog *Program) {
	names := make([]string, 0, len(prog.Functions))
	for name, fn := range prog.Functions {
		if fn.Blocks == nil {
			continue // builtin stub, no body to print
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.printFunction(prog.Functions[name])
		p.writeLine("")
	}
}

func (p *Printer) printFunction(fn *Function) {
	sig := fmt.Sprintf("function %s(%s)", fn.Name, strings.Join(fn.Params, ", "))
	if fn.IsVoid {
		sig += " void"
	}
	p.writeLine("%s", sig)
	p.indent++

	ids := make([]int, 0, len(fn.Blocks))
	for id := range fn.Blocks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		p.printBlock(fn.Blocks[id])
	}
	p.indent--
}

func (p *Printer) printBlock(blk *BasicBlock) {
	p.writeLine("bb%d [%s]:", blk.ID, blk.Kind)
	p.indent++
	for _, inst := range blk.Instrs {
		p.writeLine("%s", InstructionString(inst))
	}
	p.indent--
}

// InstructionString renders a single instruction in disassembly-like form.
func InstructionString(inst *Instruction) string {
	op := inst.Op
	switch op.Kind {
	case KConst:
		return fmt.Sprintf("%d: const #%d", inst.Line, op.Const)
	case KAdd, KSub, KMul, KDiv, KPhi:
		return fmt.Sprintf("%d: %s (%d) (%d)", inst.Line, op.Kind, op.L, op.R)
	case KCmp:
		return fmt.Sprintf("%d: cmp (%d) (%d)", inst.Line, op.L, op.R)
	case KBra:
		return fmt.Sprintf("%d: bra bb%d", inst.Line, op.BB)
	case KBeq, KBne, KBlt, KBge, KBle, KBgt:
		return fmt.Sprintf("%d: %s (%d) bb%d", inst.Line, op.Kind, op.L, op.BB)
	case KJsr:
		return fmt.Sprintf("%d: jsr %d", inst.Line, op.L)
	case KRet:
		return fmt.Sprintf("%d: ret (%d)", inst.Line, op.L)
	case KSetPar1, KSetPar2, KSetPar3:
		return fmt.Sprintf("%d: %s (%d)", inst.Line, op.Kind, op.L)
	case KGetPar1, KGetPar2, KGetPar3:
		return fmt.Sprintf("%d: %s", inst.Line, op.Kind)
	case KRead:
		return fmt.Sprintf("%d: read", inst.Line)
	case KWrite:
		return fmt.Sprintf("%d: write (%d)", inst.Line, op.L)
	case KWriteNL:
		return fmt.Sprintf("%d: writeNL", inst.Line)
	case KEmpty:
		return fmt.Sprintf("%d: empty", inst.Line)
	case KEnd:
		return fmt.Sprintf("%d: end", inst.Line)
	default:
		return fmt.Sprintf("%d: ?%s", inst.Line, op.Kind)
	}
}
