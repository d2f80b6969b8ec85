package ir

import "testing"

func buildIfElse(t *testing.T) *Function {
	t.Helper()
	b := NewBuilder()
	b.BeginFunction("main", true)
	b.DeclareVar("x")
	one := b.GetConstant(1)
	two := b.GetConstant(2)

	cond := b.AddConditional()
	cmp := b.Emit(Operation{Kind: KCmp, L: one, R: two})
	branchLine := int(b.Emit(Operation{Kind: KBge, L: cmp, BB: -1}))

	leftTail := b.AddFallthru()
	b.AssignVar("x", two)

	rightTail := b.AddBranch(cond)
	if err := b.ModifyInstruction(cond, branchLine, Operation{Kind: KBge, L: cmp, BB: rightTail}); err != nil {
		t.Fatalf("back-patch failed: %v", err)
	}
	b.AssignVar("x", one)

	b.AddJoin(leftTail, rightTail)
	b.FinishFunction()
	return b.Program().Current
}

func TestTraverseVisitsIfArmsThenJoin(t *testing.T) {
	fn := buildIfElse(t)
	seq := Traverse(fn)

	if len(seq) == 0 {
		t.Fatal("expected a non-empty instruction sequence")
	}
	if seq[len(seq)-1].Op.Kind != KEnd {
		t.Fatalf("expected the sequence to end with End, got %s", seq[len(seq)-1].Op.Kind)
	}

	seen := map[int]bool{}
	for _, inst := range seq {
		seen[inst.Line] = true
	}
	for id, blk := range fn.Blocks {
		for _, inst := range blk.Instrs {
			if !seen[inst.Line] {
				t.Fatalf("block %d instruction at line %d missing from traversal", id, inst.Line)
			}
		}
	}
}

func buildWhile(t *testing.T) *Function {
	t.Helper()
	b := NewBuilder()
	b.BeginFunction("main", true)
	b.DeclareVar("x")
	zero := b.GetConstant(0)
	ten := b.GetConstant(10)
	b.AssignVar("x", zero)

	header := b.AddConditional()
	cmp := b.Emit(Operation{Kind: KCmp, L: zero, R: ten})
	branchLine := int(b.Emit(Operation{Kind: KBge, L: cmp, BB: -1}))

	bodyTail := b.AddFallthru()
	b.AssignVar("x", ten)
	b.JoinWithTarget(bodyTail, header)

	follow := b.AddFollow(header)
	if err := b.ModifyInstruction(header, branchLine, Operation{Kind: KBge, L: cmp, BB: follow}); err != nil {
		t.Fatalf("back-patch failed: %v", err)
	}
	b.FinishFunction()
	return b.Program().Current
}

func TestTraverseVisitsLoopHeaderOnce(t *testing.T) {
	fn := buildWhile(t)
	seq := Traverse(fn)

	headerVisits := 0
	for _, inst := range seq {
		for _, hi := range fn.Blocks[fn.EntryID+1].Instrs {
			if hi == inst {
				headerVisits++
			}
		}
	}
	if headerVisits != len(fn.Blocks[fn.EntryID+1].Instrs) {
		t.Fatalf("expected the loop header's instructions to be emitted exactly once each")
	}
}

func assertEveryInstructionTraversed(t *testing.T, fn *Function, seq []*Instruction) {
	t.Helper()
	seen := map[int]bool{}
	for _, inst := range seq {
		seen[inst.Line] = true
	}
	for id, blk := range fn.Blocks {
		for _, inst := range blk.Instrs {
			if !seen[inst.Line] {
				t.Fatalf("block %d instruction at line %d missing from traversal", id, inst.Line)
			}
		}
	}
}

// buildNestedIfInsideElse mirrors:
//
//	if x<1 then let x<-1 else if x<2 then let x<-2 else let x<-3 fi; call OutputNum(x) fi
//
// so the else-arm's own if/else closes its Join before the outer if does,
// and a real instruction (the Write) is appended after the inner "fi" but
// still inside the outer else-arm.
func buildNestedIfInsideElse(t *testing.T) *Function {
	t.Helper()
	b := NewBuilder()
	b.BeginFunction("main", true)
	b.DeclareVar("x")
	one := b.GetConstant(1)
	two := b.GetConstant(2)
	three := b.GetConstant(3)

	cond := b.AddConditional()
	cmp := b.Emit(Operation{Kind: KCmp, L: one, R: two})
	branchLine := int(b.Emit(Operation{Kind: KBge, L: cmp, BB: -1}))

	thenTail := b.AddFallthru()
	b.AssignVar("x", one)

	elseHead := b.AddBranch(cond)
	if err := b.ModifyInstruction(cond, branchLine, Operation{Kind: KBge, L: cmp, BB: elseHead}); err != nil {
		t.Fatalf("back-patch failed: %v", err)
	}

	innerCond := b.AddConditional()
	innerCmp := b.Emit(Operation{Kind: KCmp, L: two, R: three})
	innerBranchLine := int(b.Emit(Operation{Kind: KBge, L: innerCmp, BB: -1}))

	innerThenTail := b.AddFallthru()
	b.AssignVar("x", two)

	innerElseTail := b.AddBranch(innerCond)
	if err := b.ModifyInstruction(innerCond, innerBranchLine, Operation{Kind: KBge, L: innerCmp, BB: innerElseTail}); err != nil {
		t.Fatalf("back-patch failed: %v", err)
	}
	b.AssignVar("x", three)

	innerJoin, _ := b.AddJoin(innerThenTail, innerElseTail)
	xVal, err := b.LookupVar("x")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	b.Emit(Operation{Kind: KWrite, L: xVal})

	b.AddJoin(thenTail, innerJoin)
	b.FinishFunction()
	return b.Program().Current
}

func TestTraverseDrainsNestedIfInsideElseArm(t *testing.T) {
	fn := buildNestedIfInsideElse(t)
	seq := Traverse(fn)
	assertEveryInstructionTraversed(t, fn, seq)
}

// buildNestedIfInsideWhileBody mirrors:
//
//	while x<10 do if x<5 then let x<-1 else let x<-2 fi; call OutputNum(x) od
//
// so the body's nested if/else closes its own Join, with a trailing Write
// appended after its "fi", before the body's back-edge to the header.
func buildNestedIfInsideWhileBody(t *testing.T) *Function {
	t.Helper()
	b := NewBuilder()
	b.BeginFunction("main", true)
	b.DeclareVar("x")
	five := b.GetConstant(5)
	ten := b.GetConstant(10)
	one := b.GetConstant(1)
	two := b.GetConstant(2)

	header := b.AddConditional()
	headerCmp := b.Emit(Operation{Kind: KCmp, L: ten, R: ten})
	headerBranchLine := int(b.Emit(Operation{Kind: KBge, L: headerCmp, BB: -1}))

	b.AddFallthru()

	innerCond := b.AddConditional()
	innerCmp := b.Emit(Operation{Kind: KCmp, L: five, R: five})
	innerBranchLine := int(b.Emit(Operation{Kind: KBge, L: innerCmp, BB: -1}))

	innerThenTail := b.AddFallthru()
	b.AssignVar("x", one)

	innerElseTail := b.AddBranch(innerCond)
	if err := b.ModifyInstruction(innerCond, innerBranchLine, Operation{Kind: KBge, L: innerCmp, BB: innerElseTail}); err != nil {
		t.Fatalf("back-patch failed: %v", err)
	}
	b.AssignVar("x", two)

	innerJoin, _ := b.AddJoin(innerThenTail, innerElseTail)
	xVal, err := b.LookupVar("x")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	b.Emit(Operation{Kind: KWrite, L: xVal})

	bodyTail := innerJoin
	b.EmitIn(bodyTail, Operation{Kind: KBra, BB: header})
	b.JoinWithTarget(bodyTail, header)

	follow := b.AddFollow(header)
	if err := b.ModifyInstruction(header, headerBranchLine, Operation{Kind: KBge, L: headerCmp, BB: follow}); err != nil {
		t.Fatalf("back-patch failed: %v", err)
	}
	b.FinishFunction()
	return b.Program().Current
}

func TestTraverseDrainsNestedConstructInsideWhileBody(t *testing.T) {
	fn := buildNestedIfInsideWhileBody(t)
	seq := Traverse(fn)
	assertEveryInstructionTraversed(t, fn, seq)
}
