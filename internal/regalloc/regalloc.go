// Package regalloc colors the coalesced interference graph produced by
// internal/liveness with a fixed number of machine registers, using
// depth-first chronological backtracking. The core never spills: a graph
// that is not k-colorable is a hard failure.
package regalloc

import (
	"errors"

	"pl0c/internal/liveness"
)

// NumRegisters is k, the register count the allocator colors with.
// Registers are numbered 1..NumRegisters; register 0 is hard-wired zero
// and is never assigned by the allocator.
const NumRegisters = 15

// ErrNotColorable is returned when the interference graph has no valid
// k-coloring; the teaching core has no spilling fallback.
var ErrNotColorable = errors.New("regalloc: interference graph is not k-colorable")

// Allocate colors coarse (a cluster graph from liveness.Coalesce) and
// expands each cluster's color back to every line number it collapsed,
// returning a line -> register map.
func Allocate(coarse *liveness.Graph, members map[int][]int) (map[int]int, error) {
	colors, ok := colorGraph(coarse, NumRegisters)
	if !ok {
		return nil, ErrNotColorable
	}
	result := make(map[int]int)
	for rep, lines := range members {
		c := colors[rep]
		for _, line := range lines {
			result[line] = c
		}
	}
	return result, nil
}

// colorGraph tries to k-color g by chronological backtracking: at each
// node, colors 1..k are tried in order, skipping colors already used by a
// colored neighbor; a dead end backtracks to the previous node. A node is
// offered at most one color above the highest color assigned so far, since
// any other unused color would only produce a relabeling of a coloring
// already tried; this keeps a failing search from enumerating permutations.
func colorGraph(g *liveness.Graph, k int) (map[int]int, bool) {
	nodes := g.Nodes()
	colors := make(map[int]int, len(nodes))

	var assign func(i, highest int) bool
	assign = func(i, highest int) bool {
		if i == len(nodes) {
			return true
		}
		n := nodes[i]
		used := make(map[int]bool)
		for _, nb := range g.Neighbors(n) {
			if c, ok := colors[nb]; ok {
				used[c] = true
			}
		}
		for c := 1; c <= k && c <= highest+1; c++ {
			if used[c] {
				continue
			}
			colors[n] = c
			if assign(i+1, max(highest, c)) {
				return true
			}
			delete(colors, n)
		}
		return false
	}

	if !assign(0, 0) {
		return nil, false
	}
	return colors, true
}
