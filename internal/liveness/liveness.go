// Package liveness computes per-block use/def/in/out sets over a function's
// CFG, builds the undirected interference graph over live SSA values, and
// coalesces phi-operand clusters into a coarser graph fed to the register
// allocator.
package liveness

import (
	"sort"

	"pl0c/internal/ir"
)

// BlockSets holds the four dataflow sets of one basic block.
type BlockSets struct {
	Use map[int]bool
	Def map[int]bool
	In  map[int]bool
	Out map[int]bool
}

// Compute runs the reverse-order fixpoint described in the component
// design and returns each block's use/def/in/out sets, keyed by block id.
func Compute(fn *ir.Function) map[int]*BlockSets {
	preds := predecessors(fn)
	sets := map[int]*BlockSets{}
	order := blockIDs(fn)

	for _, id := range order {
		use, def := defUse(fn, fn.Blocks[id], preds[id])
		sets[id] = &BlockSets{Use: use, Def: def, In: map[int]bool{}, Out: map[int]bool{}}
	}

	for {
		changed := false
		for i := len(order) - 1; i >= 0; i-- {
			id := order[i]
			s := sets[id]

			out := map[int]bool{}
			for _, succID := range fn.Successors(id) {
				for l := range sets[succID].In {
					out[l] = true
				}
			}

			in := map[int]bool{}
			for l := range s.Use {
				in[l] = true
			}
			for l := range out {
				if !s.Def[l] {
					in[l] = true
				}
			}

			if !setsEqual(in, s.In) || !setsEqual(out, s.Out) {
				changed = true
			}
			s.In = in
			s.Out = out
		}
		if !changed {
			break
		}
	}

	return sets
}

func defUse(fn *ir.Function, blk *ir.BasicBlock, preds []int) (use, def map[int]bool) {
	use = map[int]bool{}
	def = map[int]bool{}

	for _, inst := range blk.Instrs {
		switch inst.Op.Kind {
		case ir.KConst, ir.KAdd, ir.KSub, ir.KMul, ir.KDiv, ir.KCmp, ir.KPhi,
			ir.KGetPar1, ir.KGetPar2, ir.KGetPar3, ir.KRead:
			if inst.Line > 0 {
				def[inst.Line] = true
			}
		}
		switch inst.Op.Kind {
		case ir.KPhi, ir.KCmp, ir.KAdd, ir.KSub, ir.KMul, ir.KDiv:
			addIfRegister(use, inst.Op.L)
			addIfRegister(use, inst.Op.R)
		case ir.KWrite, ir.KRet, ir.KSetPar1, ir.KSetPar2, ir.KSetPar3:
			addIfRegister(use, inst.Op.L)
		}
	}

	if len(preds) > 0 {
		for name, v := range blk.VarTable {
			if v == ir.NotInit || v <= 0 {
				continue
			}
			same := true
			for _, p := range preds {
				pv, ok := fn.Blocks[p].VarTable[name]
				if !ok || pv != v {
					same = false
					break
				}
			}
			if same {
				def[int(v)] = true
			}
		}
	}

	return use, def
}

func addIfRegister(set map[int]bool, v ir.Value) {
	if v > 0 {
		set[int(v)] = true
	}
}

func predecessors(fn *ir.Function) map[int][]int {
	preds := map[int][]int{}
	for from, edges := range fn.Edges {
		for _, e := range edges {
			preds[e.To] = append(preds[e.To], from)
		}
	}
	return preds
}

func blockIDs(fn *ir.Function) []int {
	ids := make([]int, 0, len(fn.Blocks))
	for id := range fn.Blocks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func setsEqual(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
