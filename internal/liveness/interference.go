package liveness

import (
	"sort"

	"pl0c/internal/ir"
)

// Graph is an undirected interference graph over SSA line numbers.
type Graph struct {
	adj map[int]map[int]bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{adj: map[int]map[int]bool{}}
}

func (g *Graph) addNode(n int) {
	if g.adj[n] == nil {
		g.adj[n] = map[int]bool{}
	}
}

// AddEdge records an interference between a and b; self-loops are ignored.
func (g *Graph) AddEdge(a, b int) {
	if a == b {
		g.addNode(a)
		return
	}
	g.addNode(a)
	g.addNode(b)
	g.adj[a][b] = true
	g.adj[b][a] = true
}

func (g *Graph) clique(nodes []int) {
	for i := range nodes {
		g.addNode(nodes[i])
		for j := i + 1; j < len(nodes); j++ {
			g.AddEdge(nodes[i], nodes[j])
		}
	}
}

// Nodes returns every node in the graph in ascending order.
func (g *Graph) Nodes() []int {
	out := make([]int, 0, len(g.adj))
	for n := range g.adj {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Neighbors returns n's neighbors in ascending order.
func (g *Graph) Neighbors(n int) []int {
	out := make([]int, 0, len(g.adj[n]))
	for nb := range g.adj[n] {
		out = append(out, nb)
	}
	sort.Ints(out)
	return out
}

func setKeys(s map[int]bool) []int {
	out := make([]int, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// BuildInterference adds a clique over in(b) and a clique over out(b) for
// every block, per the component design's interference-graph rule. Every
// defined line is also registered as a node even when it never appears in
// an in/out set (a temporary entirely local to one block, live across no
// edge): it still needs a register, just not one forced to differ from
// any other value's.
func BuildInterference(fn *ir.Function, sets map[int]*BlockSets) *Graph {
	g := NewGraph()
	for id := range fn.Blocks {
		s := sets[id]
		g.clique(setKeys(s.In))
		g.clique(setKeys(s.Out))
		for line := range s.Def {
			g.addNode(line)
		}
	}
	return g
}

// UnionFind is a standard disjoint-set structure over line numbers.
type UnionFind struct {
	parent map[int]int
}

func newUnionFind() *UnionFind {
	return &UnionFind{parent: map[int]int{}}
}

func (u *UnionFind) find(x int) int {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		return x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *UnionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// PhiClusters unions every phi with its left and right operand across the
// whole function, implementing "a phi prefers to share a register with l
// and with r".
func PhiClusters(fn *ir.Function) *UnionFind {
	uf := newUnionFind()
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instrs {
			if inst.Op.Kind != ir.KPhi {
				continue
			}
			p := inst.Line
			uf.find(p)
			if inst.Op.L > 0 {
				uf.union(p, int(inst.Op.L))
			}
			if inst.Op.R > 0 {
				uf.union(p, int(inst.Op.R))
			}
		}
	}
	return uf
}

// Coalesce collapses g's nodes by their phi-cluster representative,
// unioning adjacency sets and dropping self-loops, and returns the coarse
// graph alongside each representative's member line numbers.
func Coalesce(g *Graph, uf *UnionFind) (*Graph, map[int][]int) {
	coarse := NewGraph()
	members := map[int][]int{}

	for _, n := range g.Nodes() {
		rep := uf.find(n)
		members[rep] = append(members[rep], n)
		coarse.addNode(rep)
	}
	for rep := range members {
		sort.Ints(members[rep])
	}

	for _, n := range g.Nodes() {
		rep := uf.find(n)
		for _, nb := range g.Neighbors(n) {
			coarse.AddEdge(rep, uf.find(nb))
		}
	}

	return coarse, members
}
