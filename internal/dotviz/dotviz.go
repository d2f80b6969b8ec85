// Package dotviz renders a function's CFG as Graphviz DOT source: one
// record-shaped node per basic block listing its instructions, solid
// edges for control flow (labeled by structural role), and dotted blue
// edges for the immediate-dominator tree.
package dotviz

import (
	"fmt"
	"sort"
	"strings"

	"pl0c/internal/ir"
)

// Render returns fn's CFG (named fnName in the program) as a DOT graph
// suitable for `dot -Tsvg`.
func Render(prog *ir.Program, fnName string) (string, error) {
	fn, ok := prog.Functions[fnName]
	if !ok || fn.Blocks == nil {
		return "", fmt.Errorf("dotviz: no such function %q", fnName)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "digraph %s {\n", fnName)
	writeConstantTable(&out, prog)
	writeBlocks(&out, fn)
	writeEdges(&out, fn)
	writeDominators(&out, fn)
	out.WriteString("}\n")
	return out.String(), nil
}

func writeConstantTable(out *strings.Builder, prog *ir.Program) {
	values := prog.Constants.Values()
	cells := make([]string, len(values))
	for i, k := range values {
		cells[i] = fmt.Sprintf("%d", k)
	}
	fmt.Fprintf(out, "\tCB [shape=record, label=\"<b>CB | {%s}\"];\n\n", strings.Join(cells, "|"))
}

func writeBlocks(out *strings.Builder, fn *ir.Function) {
	for _, id := range blockIDs(fn) {
		blk := fn.Blocks[id]
		cells := make([]string, len(blk.Instrs))
		for i, inst := range blk.Instrs {
			cells[i] = escapeRecord(ir.InstructionString(inst))
		}
		fmt.Fprintf(out, "\tbb%d [shape=record, label=\"<b>BB%d [%s] | {%s}\"];\n", id, id, blk.Kind, strings.Join(cells, "|"))
	}
	out.WriteString("\n")
}

func writeEdges(out *strings.Builder, fn *ir.Function) {
	fmt.Fprintf(out, "\tCB:s -> bb%d:n;\n", fn.EntryID)
	for _, id := range blockIDs(fn) {
		for _, e := range fn.Edges[id] {
			fmt.Fprintf(out, "\tbb%d:s -> bb%d:n [label=\"   %s\"];\n", id, e.To, e.Role)
		}
	}
	out.WriteString("\n")
}

func writeDominators(out *strings.Builder, fn *ir.Function) {
	for _, id := range blockIDs(fn) {
		if id == fn.EntryID {
			continue
		}
		if dom := fn.Blocks[id].DominatedBy; dom >= 0 {
			fmt.Fprintf(out, "\tbb%d:b -> bb%d:b [color=blue, style=dotted];\n", dom, id)
		}
	}
	out.WriteString("\n")
}

func blockIDs(fn *ir.Function) []int {
	ids := make([]int, 0, len(fn.Blocks))
	for id := range fn.Blocks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func escapeRecord(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "{", "\\{")
	s = strings.ReplaceAll(s, "}", "\\}")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
