package ir

import "testing"

func TestGetConstantDeduplicates(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("main", true)

	a := b.GetConstant(7)
	c := b.GetConstant(7)
	if a != c {
		t.Fatalf("expected same value for repeated constant 7, got %d and %d", a, c)
	}
	if a != -7 {
		t.Fatalf("expected constant 7 to be represented as line -7, got %d", a)
	}
	if len(b.Program().Constants.Values()) != 1 {
		t.Fatalf("expected one distinct constant, got %d", len(b.Program().Constants.Values()))
	}
}

func TestEmitCSEWithinBlock(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("main", true)

	one := b.GetConstant(1)
	two := b.GetConstant(2)

	first := b.Emit(Operation{Kind: KAdd, L: one, R: two})
	second := b.Emit(Operation{Kind: KAdd, L: one, R: two})
	if first != second {
		t.Fatalf("expected repeated add to return the same line, got %d and %d", first, second)
	}

	blk := b.block(b.CurrentBlock())
	count := 0
	for _, inst := range blk.Instrs {
		if inst.Op.Kind == KAdd {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one Add instruction after CSE, found %d", count)
	}
}

func TestEmitCSEAcrossDominatedChild(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("main", true)

	one := b.GetConstant(1)
	two := b.GetConstant(2)
	entryLine := b.Emit(Operation{Kind: KAdd, L: one, R: two})

	cond := b.AddConditional()
	_ = cond
	b.Emit(Operation{Kind: KCmp, L: one, R: two})
	then := b.AddFallthru()
	childLine := b.Emit(Operation{Kind: KAdd, L: one, R: two})
	if childLine != entryLine {
		t.Fatalf("expected CSE to reach into a dominated child block, got %d want %d", childLine, entryLine)
	}
	_ = then
}

func TestDeclareAssignLookup(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("main", true)

	b.DeclareVar("x")
	if _, err := b.LookupVar("x"); err == nil {
		t.Fatal("expected lookup of uninitialized variable to fail")
	}
	one := b.GetConstant(1)
	b.AssignVar("x", one)
	v, err := b.LookupVar("x")
	if err != nil {
		t.Fatalf("unexpected error looking up initialized variable: %v", err)
	}
	if v != one {
		t.Fatalf("expected x to hold %d, got %d", one, v)
	}

	if _, err := b.LookupVar("never declared"); err == nil {
		t.Fatal("expected lookup of undeclared variable to fail")
	}
}

func TestAddJoinInsertsPhiOnlyWhenValuesDiffer(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("main", true)
	b.DeclareVar("x")
	one := b.GetConstant(1)
	two := b.GetConstant(2)
	b.AssignVar("x", one)

	cond := b.AddConditional()
	b.Emit(Operation{Kind: KCmp, L: one, R: two})

	leftTail := b.AddFallthru()
	b.AssignVar("x", two)

	rightTail := b.AddBranch(cond)
	b.AssignVar("x", two)

	_, phis := b.AddJoin(leftTail, rightTail)
	if len(phis) != 0 {
		t.Fatalf("expected no phi when both arms assign the same value, got %d", len(phis))
	}
}

func TestAddJoinInsertsPhiWhenValuesDiffer(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("main", true)
	b.DeclareVar("x")
	one := b.GetConstant(1)
	two := b.GetConstant(2)
	b.AssignVar("x", one)

	cond := b.AddConditional()
	b.Emit(Operation{Kind: KCmp, L: one, R: two})

	leftTail := b.AddFallthru()
	b.AssignVar("x", one)

	rightTail := b.AddBranch(cond)
	b.AssignVar("x", two)

	join, phis := b.AddJoin(leftTail, rightTail)
	if len(phis) != 1 {
		t.Fatalf("expected exactly one phi, got %d", len(phis))
	}
	if phis[0].Name != "x" {
		t.Fatalf("expected phi for x, got %s", phis[0].Name)
	}
	blk := b.block(join)
	if len(blk.Instrs) != 1 || blk.Instrs[0].Op.Kind != KPhi {
		t.Fatalf("expected join block to open with exactly one phi instruction")
	}
	if blk.Instrs[0].Line != phis[0].Line {
		t.Fatalf("expected phi line to match reported PhiRef")
	}
}

func TestLineNumbersMonotonic(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("main", true)
	one := b.GetConstant(1)
	two := b.GetConstant(2)
	l1 := b.Emit(Operation{Kind: KAdd, L: one, R: two})
	l2 := b.Emit(Operation{Kind: KSub, L: one, R: two})
	if !(l1 < l2) {
		t.Fatalf("expected monotonically increasing line numbers, got %d then %d", l1, l2)
	}
}

func TestTooManyParameters(t *testing.T) {
	b := NewBuilder()
	b.BeginFunction("f", false)
	for _, n := range []string{"a", "b", "c"} {
		if err := b.AddParameter(n); err != nil {
			t.Fatalf("unexpected error adding parameter %s: %v", n, err)
		}
	}
	if err := b.AddParameter("d"); err == nil {
		t.Fatal("expected a fourth parameter to be rejected")
	}
}
