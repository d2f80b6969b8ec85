package liveness

import (
	"testing"

	"pl0c/internal/ir"
)

func buildDiamond(t *testing.T) *ir.Function {
	t.Helper()
	b := ir.NewBuilder()
	b.BeginFunction("main", true)
	b.DeclareVar("x")
	one := b.GetConstant(1)
	two := b.GetConstant(2)
	b.AssignVar("x", one)

	cond := b.AddConditional()
	cmp := b.Emit(ir.Operation{Kind: ir.KCmp, L: one, R: two})
	b.Emit(ir.Operation{Kind: ir.KBge, L: cmp, BB: -1})

	leftTail := b.AddFallthru()
	left := b.Emit(ir.Operation{Kind: ir.KAdd, L: one, R: two})
	b.AssignVar("x", left)

	rightTail := b.AddBranch(cond)
	right := b.Emit(ir.Operation{Kind: ir.KSub, L: one, R: two})
	b.AssignVar("x", right)

	b.AddJoin(leftTail, rightTail)
	b.Emit(ir.Operation{Kind: ir.KWrite, L: func() ir.Value {
		v, _ := b.LookupVar("x")
		return v
	}()})
	b.FinishFunction()
	return b.Program().Current
}

func TestComputeProducesSetsForEveryBlock(t *testing.T) {
	fn := buildDiamond(t)
	sets := Compute(fn)
	for id := range fn.Blocks {
		if _, ok := sets[id]; !ok {
			t.Fatalf("missing liveness sets for block %d", id)
		}
	}
}

func TestInterferenceGraphHasNoSelfLoopsAndIsSymmetric(t *testing.T) {
	fn := buildDiamond(t)
	sets := Compute(fn)
	g := BuildInterference(fn, sets)
	for _, n := range g.Nodes() {
		for _, nb := range g.Neighbors(n) {
			if nb == n {
				t.Fatalf("unexpected self-loop at node %d", n)
			}
			found := false
			for _, back := range g.Neighbors(nb) {
				if back == n {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("edge %d-%d is not symmetric", n, nb)
			}
		}
	}
}

func TestPhiClusterUnionsOperands(t *testing.T) {
	fn := buildDiamond(t)
	uf := PhiClusters(fn)

	var phiLine, leftLine, rightLine int
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instrs {
			if inst.Op.Kind == ir.KPhi {
				phiLine = inst.Line
				leftLine = int(inst.Op.L)
				rightLine = int(inst.Op.R)
			}
		}
	}
	if phiLine == 0 {
		t.Fatal("expected a phi instruction in the diamond")
	}
	if uf.find(phiLine) != uf.find(leftLine) {
		t.Fatalf("expected phi %d clustered with left operand %d", phiLine, leftLine)
	}
	if uf.find(phiLine) != uf.find(rightLine) {
		t.Fatalf("expected phi %d clustered with right operand %d", phiLine, rightLine)
	}
}

func TestCoalesceDropsSelfLoops(t *testing.T) {
	fn := buildDiamond(t)
	sets := Compute(fn)
	g := BuildInterference(fn, sets)
	uf := PhiClusters(fn)
	coarse, members := Coalesce(g, uf)

	for _, n := range coarse.Nodes() {
		for _, nb := range coarse.Neighbors(n) {
			if nb == n {
				t.Fatalf("coarse graph retained a self-loop at %d", n)
			}
		}
	}
	if len(members) == 0 {
		t.Fatal("expected at least one cluster")
	}
}
