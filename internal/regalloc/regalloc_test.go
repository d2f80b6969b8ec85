package regalloc

import (
	"testing"

	"pl0c/internal/liveness"
)

func TestAllocateColorsATriangle(t *testing.T) {
	g := liveness.NewGraph()
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	g.AddEdge(1, 3)
	members := map[int][]int{1: {1}, 2: {2}, 3: {3}}

	colors, err := Allocate(g, members)
	if err != nil {
		t.Fatalf("unexpected error coloring a 3-clique with 15 registers: %v", err)
	}
	if colors[1] == colors[2] || colors[2] == colors[3] || colors[1] == colors[3] {
		t.Fatal("expected every pair in a clique to receive distinct colors")
	}
	for _, c := range colors {
		if c < 1 || c > NumRegisters {
			t.Fatalf("color %d out of range 1..%d", c, NumRegisters)
		}
	}
}

func TestAllocateFailsOnOversizedClique(t *testing.T) {
	g := liveness.NewGraph()
	members := map[int][]int{}
	for i := 1; i <= NumRegisters+1; i++ {
		members[i] = []int{i}
		for j := i + 1; j <= NumRegisters+1; j++ {
			g.AddEdge(i, j)
		}
	}

	if _, err := Allocate(g, members); err != ErrNotColorable {
		t.Fatalf("expected ErrNotColorable for a %d-clique, got %v", NumRegisters+1, err)
	}
}

func TestAllocateExpandsClusterToAllMembers(t *testing.T) {
	g := liveness.NewGraph()
	g.AddEdge(10, 20)
	members := map[int][]int{10: {10, 11, 12}, 20: {20}}

	colors, err := Allocate(g, members)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if colors[10] != colors[11] || colors[11] != colors[12] {
		t.Fatal("expected every member of a cluster to receive the cluster's color")
	}
	if colors[10] == colors[20] {
		t.Fatal("expected interfering clusters to receive distinct colors")
	}
}
