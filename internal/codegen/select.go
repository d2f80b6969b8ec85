package codegen

import (
	"fmt"

	"pl0c/internal/ir"
)

// Calling-convention registers. Parameters and the return value travel
// through a fixed set of registers rather than through the interference
// graph: the allocator colors the full 1..15 range without reserving
// them, so correctness at a call site depends on no ordinary live value
// colliding with one of these four across the call. That is an accepted
// simplification of the teaching core, not a general-purpose convention.
const (
	Param1Reg = 13
	Param2Reg = 14
	Param3Reg = 15
	ReturnReg = 12
)

var paramRegs = [3]int{Param1Reg, Param2Reg, Param3Reg}

var arithOpcodes = map[ir.Kind]struct{ reg, imm Opcode }{
	ir.KAdd: {ADD, ADDI},
	ir.KSub: {SUB, SUBI},
	ir.KMul: {MUL, MULI},
	ir.KDiv: {DIV, DIVI},
}

var branchOpcodes = map[ir.Kind]Opcode{
	ir.KBeq: BEQ,
	ir.KBne: BNE,
	ir.KBlt: BLT,
	ir.KBge: BGE,
	ir.KBle: BLE,
	ir.KBgt: BGT,
}

// Selector lowers one function's scheduled instruction sequence into
// machine words, resolving branch and call displacements against a
// line-number -> output-index map that is shared across every function
// selected into the same program, since line numbers are assigned from a
// single global counter (internal/ir's Builder.lineSeq).
type Selector struct {
	out     []Instr
	lineIdx map[int]int
	pending map[int][]int
}

// NewSelector returns a Selector ready to lower one or more functions in
// program order into a single combined instruction stream.
func NewSelector() *Selector {
	return &Selector{lineIdx: map[int]int{}, pending: map[int][]int{}}
}

// Program returns the combined, fully back-patched instruction stream
// selected so far.
func (s *Selector) Program() []Instr {
	return s.out
}

// Select lowers fn's scheduled instructions (the output of ir.Traverse),
// taking register operands from alloc (regalloc's line -> register
// coloring), and appends them to the combined stream.
func (s *Selector) Select(fn *ir.Function, seq []*ir.Instruction, alloc map[int]int) error {
	for _, inst := range seq {
		if err := s.lower(fn, inst, alloc); err != nil {
			return fmt.Errorf("codegen: function %s: %w", fn.Name, err)
		}
	}
	return nil
}

func (s *Selector) append(in Instr) int {
	idx := len(s.out)
	s.out = append(s.out, in)
	return idx
}

// emitForLine appends in as the machine instruction for the given source
// line, recording the mapping and resolving any branches that were
// already waiting on this line.
func (s *Selector) emitForLine(line int, in Instr) {
	idx := s.append(in)
	s.lineIdx[line] = idx
	for _, p := range s.pending[line] {
		s.out[p].C = idx - p
	}
	delete(s.pending, line)
}

// branchTo records target (a source line) as the destination of the
// branch/call instruction at index idx, patching its C field immediately
// if the target has already been emitted, or registering it as pending
// otherwise.
func (s *Selector) branchTo(idx, target int) {
	if t, ok := s.lineIdx[target]; ok {
		s.out[idx].C = t - idx
		return
	}
	s.pending[target] = append(s.pending[target], idx)
}

// firstCodeLine returns the line of the first instruction in block bb
// that will actually produce a machine word, skipping a leading run of
// phis (which the allocator already coalesces away). A block with no such
// instruction resolves to the first code line of its first successor,
// where control continues from it.
func firstCodeLine(fn *ir.Function, bb int) (int, bool) {
	seen := map[int]bool{}
	for !seen[bb] {
		seen[bb] = true
		blk, ok := fn.Blocks[bb]
		if !ok {
			return 0, false
		}
		for _, inst := range blk.Instrs {
			if inst.Op.Kind == ir.KPhi {
				continue
			}
			return inst.Line, true
		}
		edges := fn.Edges[bb]
		if len(edges) == 0 {
			return 0, false
		}
		bb = edges[0].To
	}
	return 0, false
}

func (s *Selector) lower(fn *ir.Function, inst *ir.Instruction, alloc map[int]int) error {
	line := inst.Line
	op := inst.Op

	switch op.Kind {
	case ir.KConst, ir.KPhi:
		// KConst never reaches the instruction stream (the builder
		// resolves it straight to a Value); KPhi is coalesced by the
		// allocator. Neither produces a word.

	case ir.KAdd, ir.KSub, ir.KMul, ir.KDiv:
		s.emitArith(line, op, alloc)

	case ir.KCmp:
		s.emitCmp(line, op, alloc)

	case ir.KBra:
		target, ok := firstCodeLine(fn, op.BB)
		if !ok {
			return fmt.Errorf("branch target bb%d has no resolvable instruction", op.BB)
		}
		idx := s.append(Instr{Op: JSR, Format: F3})
		s.branchTo(idx, target)
		s.lineIdx[line] = idx

	case ir.KBeq, ir.KBne, ir.KBlt, ir.KBge, ir.KBle, ir.KBgt:
		target, ok := firstCodeLine(fn, op.BB)
		if !ok {
			return fmt.Errorf("branch target bb%d has no resolvable instruction", op.BB)
		}
		opcode := branchOpcodes[op.Kind]
		idx := s.append(Instr{Op: opcode, Format: F1, A: alloc[int(op.L)]})
		s.branchTo(idx, target)
		s.lineIdx[line] = idx

	case ir.KJsr:
		// L carries the callee's global entry line, already resolved by
		// the builder at call-emission time. branchTo patches the call at
		// once if that line has already been selected into this Selector
		// and leaves it pending otherwise.
		target := int(op.L)
		idx := s.append(Instr{Op: JSR, Format: F3})
		s.branchTo(idx, target)
		s.lineIdx[line] = idx
		if dest, ok := alloc[line]; ok {
			// The callee left its return value in ReturnReg; pull it
			// into whatever register this call's result was colored.
			// This move is synthetic and is never itself a branch
			// target, so it needs no line-number bookkeeping.
			s.append(Instr{Op: ADDI, Format: F2, A: dest, B: ReturnReg, C: 0})
		}

	case ir.KRet:
		s.append(Instr{Op: ADDI, Format: F2, A: ReturnReg, B: alloc[int(op.L)], C: 0})
		s.emitForLine(line, Instr{Op: RET, Format: F3})

	case ir.KEnd:
		s.emitForLine(line, Instr{Op: RET, Format: F3})

	case ir.KSetPar1, ir.KSetPar2, ir.KSetPar3:
		reg := paramRegs[setParIndex(op.Kind)]
		s.emitForLine(line, Instr{Op: ADDI, Format: F2, A: reg, B: alloc[int(op.L)], C: 0})

	case ir.KGetPar1, ir.KGetPar2, ir.KGetPar3:
		reg := paramRegs[getParIndex(op.Kind)]
		s.emitForLine(line, Instr{Op: ADDI, Format: F2, A: alloc[line], B: reg, C: 0})

	case ir.KRead:
		s.emitForLine(line, Instr{Op: RDD, Format: F3, C: alloc[line]})

	case ir.KWrite:
		// The parser guarantees write's operand is already a
		// register-resident value (it routes bare literals through a
		// trivial arithmetic emit), so alloc[op.L] is always valid.
		s.emitForLine(line, Instr{Op: WRD, Format: F3, C: alloc[int(op.L)]})

	case ir.KWriteNL:
		s.emitForLine(line, Instr{Op: WRL, Format: F3})

	case ir.KEmpty:
		// A placeholder inserted so a branch always has a concrete
		// landing line; it lowers to an inert ADD R0,R0,R0.
		s.emitForLine(line, Instr{Op: ADD, Format: F1})

	default:
		return fmt.Errorf("unhandled instruction kind %s at line %d", op.Kind, line)
	}
	return nil
}

func setParIndex(k ir.Kind) int {
	switch k {
	case ir.KSetPar1:
		return 0
	case ir.KSetPar2:
		return 1
	default:
		return 2
	}
}

func getParIndex(k ir.Kind) int {
	switch k {
	case ir.KGetPar1:
		return 0
	case ir.KGetPar2:
		return 1
	default:
		return 2
	}
}

// emitArith lowers an Add/Sub/Mul/Div into register or immediate form,
// materializing a constant operand via ADDI when the other operand is
// also a constant (the dominator-scoped CSE pass never folds two
// constants into one at the IR level), and materializing a constant left
// operand of the non-commutative Sub/Div, which has no immediate form.
func (s *Selector) emitArith(line int, op ir.Operation, alloc map[int]int) {
	dest := alloc[line]
	opc := arithOpcodes[op.Kind]
	lConst, rConst := op.L <= 0, op.R <= 0

	switch {
	case lConst && rConst:
		s.append(Instr{Op: ADDI, Format: F2, A: dest, B: ZeroRegister, C: int(-op.L)})
		s.emitForLine(line, Instr{Op: opc.imm, Format: F2, A: dest, B: dest, C: int(-op.R)})
	case lConst && (op.Kind == ir.KAdd || op.Kind == ir.KMul):
		s.emitForLine(line, Instr{Op: opc.imm, Format: F2, A: dest, B: alloc[int(op.R)], C: int(-op.L)})
	case lConst:
		s.append(Instr{Op: ADDI, Format: F2, A: dest, B: ZeroRegister, C: int(-op.L)})
		s.emitForLine(line, Instr{Op: opc.reg, Format: F1, A: dest, B: dest, C: alloc[int(op.R)]})
	case rConst:
		s.emitForLine(line, Instr{Op: opc.imm, Format: F2, A: dest, B: alloc[int(op.L)], C: int(-op.R)})
	default:
		s.emitForLine(line, Instr{Op: opc.reg, Format: F1, A: dest, B: alloc[int(op.L)], C: alloc[int(op.R)]})
	}
}

// emitCmp lowers a Cmp identically to an Add/Sub/Mul/Div but against the
// single CMP/CMPI opcode pair.
func (s *Selector) emitCmp(line int, op ir.Operation, alloc map[int]int) {
	dest := alloc[line]
	lConst, rConst := op.L <= 0, op.R <= 0

	switch {
	case lConst && rConst:
		s.append(Instr{Op: ADDI, Format: F2, A: dest, B: ZeroRegister, C: int(-op.L)})
		s.emitForLine(line, Instr{Op: CMPI, Format: F2, A: dest, B: dest, C: int(-op.R)})
	case lConst:
		s.append(Instr{Op: ADDI, Format: F2, A: dest, B: ZeroRegister, C: int(-op.L)})
		s.emitForLine(line, Instr{Op: CMP, Format: F1, A: dest, B: dest, C: alloc[int(op.R)]})
	case rConst:
		s.emitForLine(line, Instr{Op: CMPI, Format: F2, A: dest, B: alloc[int(op.L)], C: int(-op.R)})
	default:
		s.emitForLine(line, Instr{Op: CMP, Format: F1, A: dest, B: alloc[int(op.L)], C: alloc[int(op.R)]})
	}
}

// Words encodes the selected stream to its final 32-bit binary form.
func Words(in []Instr) []uint32 {
	out := make([]uint32, len(in))
	for i, instr := range in {
		out[i] = instr.Encode()
	}
	return out
}
