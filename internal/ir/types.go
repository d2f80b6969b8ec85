package ir

import "math"

// Value identifies an SSA value by its line number. Positive numbers name
// register-resident values; zero and negative numbers name compile-time
// constants, where the constant k is represented by the value -k.
type Value int

// NotInit marks a variable table entry for a declared-but-unassigned
// variable. It lies outside the range any real line number can occupy.
const NotInit Value = math.MinInt32

// Kind tags the variant of an Operation.
type Kind int

const (
	KConst Kind = iota
	KAdd
	KSub
	KMul
	KDiv
	KCmp
	KPhi
	KBra
	KBeq
	KBne
	KBlt
	KBge
	KBle
	KBgt
	KJsr
	KRet
	KSetPar1
	KSetPar2
	KSetPar3
	KGetPar1
	KGetPar2
	KGetPar3
	KRead
	KWrite
	KWriteNL
	KEmpty
	KEnd
)

// IsArithmetic reports whether the operation is CSE-eligible.
func (k Kind) IsArithmetic() bool {
	switch k {
	case KAdd, KSub, KMul, KDiv:
		return true
	}
	return false
}

// IsBranch reports whether the operation transfers control to a basic block.
func (k Kind) IsBranch() bool {
	switch k {
	case KBra, KBeq, KBne, KBlt, KBge, KBle, KBgt:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KConst:
		return "const"
	case KAdd:
		return "add"
	case KSub:
		return "sub"
	case KMul:
		return "mul"
	case KDiv:
		return "div"
	case KCmp:
		return "cmp"
	case KPhi:
		return "phi"
	case KBra:
		return "bra"
	case KBeq:
		return "beq"
	case KBne:
		return "bne"
	case KBlt:
		return "blt"
	case KBge:
		return "bge"
	case KBle:
		return "ble"
	case KBgt:
		return "bgt"
	case KJsr:
		return "jsr"
	case KRet:
		return "ret"
	case KSetPar1:
		return "setpar1"
	case KSetPar2:
		return "setpar2"
	case KSetPar3:
		return "setpar3"
	case KGetPar1:
		return "getpar1"
	case KGetPar2:
		return "getpar2"
	case KGetPar3:
		return "getpar3"
	case KRead:
		return "read"
	case KWrite:
		return "write"
	case KWriteNL:
		return "writeNL"
	case KEmpty:
		return "empty"
	case KEnd:
		return "end"
	default:
		return "?"
	}
}

// Operation is the tagged sum described by the data model: the fields that
// matter depend on Kind. L and R are operand line numbers; BB names a
// target basic block id for branches; Const carries the literal value of a
// KConst operation (redundant with -Line, kept for readable disassembly).
type Operation struct {
	Kind  Kind
	L, R  Value
	BB    int
	Const int
}

// Instruction pairs a line number with the operation it performs. Once
// finalized, an instruction is immutable except through the builder's
// ModifyInstruction (branch back-patching) and ReplaceValueInBlock (the
// while-header operand fixup).
type Instruction struct {
	Line int
	Op   Operation
}

// BlockKind classifies a basic block's role in the CFG.
type BlockKind int

const (
	Entry BlockKind = iota
	Conditional
	FallThroughBlock
	BranchBlock
	FollowBlock
	JoinBlock
	Exit
)

func (k BlockKind) String() string {
	switch k {
	case Entry:
		return "Entry"
	case Conditional:
		return "Conditional"
	case FallThroughBlock:
		return "FallThrough"
	case BranchBlock:
		return "Branch"
	case FollowBlock:
		return "Follow"
	case JoinBlock:
		return "Join"
	case Exit:
		return "Exit"
	default:
		return "?"
	}
}

// EdgeRole distinguishes the arm an edge plays in structured control flow.
type EdgeRole int

const (
	RoleFallThrough EdgeRole = iota
	RoleBranch
	RoleFollow
	RoleConditional
)

func (r EdgeRole) String() string {
	switch r {
	case RoleFallThrough:
		return "FallThrough"
	case RoleBranch:
		return "Branch"
	case RoleFollow:
		return "Follow"
	case RoleConditional:
		return "Conditional"
	default:
		return "?"
	}
}

// Edge is a directed CFG edge carrying its structural role.
type Edge struct {
	To   int
	Role EdgeRole
}

// domKey identifies a CSE-eligible expression by opcode and ordered operands.
type domKey struct {
	op   Kind
	l, r Value
}

// BasicBlock is a maximal straight-line instruction sequence plus the SSA
// environment (variable_table) valid at its end and the dominator-scoped
// CSE cache (dominator_table) inherited from its immediate dominator.
type BasicBlock struct {
	ID          int
	Kind        BlockKind
	Instrs      []*Instruction
	VarTable    map[string]Value
	DomTable    map[domKey]int
	DominatedBy int
	// CondAncestor is the id of the nearest Conditional block whose arms
	// have not yet been rejoined; it threads dominator-table continuity
	// through an if/while's FallThrough and Branch children to their join.
	// -1 means no conditional construct is currently open.
	CondAncestor int
	// OuterCond is, for a Conditional block only, the CondAncestor that
	// was pending when this conditional was opened; it is restored onto
	// the Join/Follow block that closes this construct.
	OuterCond int
}

func newBlock(id int, kind BlockKind) *BasicBlock {
	return &BasicBlock{
		ID:           id,
		Kind:         kind,
		VarTable:     map[string]Value{},
		DomTable:     map[domKey]int{},
		DominatedBy:  -1,
		CondAncestor: -1,
		OuterCond:    -1,
	}
}

func cloneVarTable(src map[string]Value) map[string]Value {
	dst := make(map[string]Value, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneDomTable(src map[domKey]int) map[domKey]int {
	dst := make(map[domKey]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Function is a directed CFG of basic blocks with one Entry and, once
// finished, one Exit.
type Function struct {
	Name     string
	Params   []string
	IsVoid   bool
	EntryID  int
	ExitID   int
	Blocks   map[int]*BasicBlock
	Edges    map[int][]Edge
	blockSeq int
}

func newFunction(name string, isVoid bool) *Function {
	fn := &Function{
		Name:   name,
		IsVoid: isVoid,
		Blocks: map[int]*BasicBlock{},
		Edges:  map[int][]Edge{},
	}
	entry := newBlock(0, Entry)
	fn.Blocks[0] = entry
	fn.EntryID = 0
	fn.blockSeq = 1
	return fn
}

func (fn *Function) newBlockID() int {
	id := fn.blockSeq
	fn.blockSeq++
	return id
}

// Successors returns the ids of blocks reachable directly from b.
func (fn *Function) Successors(b int) []int {
	edges := fn.Edges[b]
	out := make([]int, len(edges))
	for i, e := range edges {
		out[i] = e.To
	}
	return out
}

// ConstantPool deduplicates literal integers into constant "values" per the
// k -> -k convention, populated on demand.
type ConstantPool struct {
	values map[int]Value
	order  []int
}

func newConstantPool() *ConstantPool {
	return &ConstantPool{values: map[int]Value{}}
}

// Get returns the deduplicated Value for k, installing it on first use.
func (p *ConstantPool) Get(k int) Value {
	if v, ok := p.values[k]; ok {
		return v
	}
	v := Value(-k)
	p.values[k] = v
	p.order = append(p.order, k)
	return v
}

// Values returns the distinct literals installed so far, in install order.
func (p *ConstantPool) Values() []int {
	return append([]int(nil), p.order...)
}

// Program owns every Function, the shared ConstantPool, and the function
// currently being built.
type Program struct {
	Functions map[string]*Function
	Constants *ConstantPool
	Current   *Function
}

// BuiltinNames are the three predefined runtime calls every Program stubs.
var BuiltinNames = []string{"InputNum", "OutputNum", "OutputNewLine"}

func newProgram() *Program {
	p := &Program{
		Functions: map[string]*Function{},
		Constants: newConstantPool(),
	}
	p.Functions["InputNum"] = &Function{Name: "InputNum", IsVoid: false}
	p.Functions["OutputNum"] = &Function{Name: "OutputNum", IsVoid: true, Params: []string{"x"}}
	p.Functions["OutputNewLine"] = &Function{Name: "OutputNewLine", IsVoid: true}
	return p
}
