package ir

// Traverse linearizes a function's CFG into a single instruction sequence
// that respects structured control flow: an if's FallThrough subtree is
// drained before its Branch subtree, both converging on the shared Join;
// a while's header is visited once, its body drained, then its Follow
// exit continued. Every loop header is visited at most once, guaranteeing
// termination on the back-edge.
//
// A Join is fed by exactly two predecessors (the then-tail and the
// else-tail that its owning if/else closed over). Whichever arm reaches
// it first cannot drain it: the other arm may itself route through
// further nested if/while constructs, and its own Join, before it ever
// reaches this one, so draining early would scatter this Join's Phis
// (and anything an enclosing arm appended after a nested "fi") out of
// the sequence. follow keeps a Join undrained until both of its
// predecessors have been visited, at which point whichever arm's walk
// arrives second drains it and keeps going, transparently, as if it
// were any other single-successor block.
func Traverse(fn *Function) []*Instruction {
	t := &traverser{fn: fn, visited: map[int]bool{}, preds: predecessorsOf(fn)}
	id := fn.EntryID
	for id >= 0 {
		join := t.follow(id)
		if join < 0 {
			break
		}
		blk := fn.Blocks[join]
		t.visited[join] = true
		t.drain(blk)
		edges := fn.Edges[join]
		if len(edges) == 0 {
			break
		}
		id = edges[0].To
	}
	return t.out
}

type traverser struct {
	fn      *Function
	visited map[int]bool
	out     []*Instruction
	preds   map[int][]int
}

func predecessorsOf(fn *Function) map[int][]int {
	preds := map[int][]int{}
	for from, edges := range fn.Edges {
		for _, e := range edges {
			preds[e.To] = append(preds[e.To], from)
		}
	}
	return preds
}

func (t *traverser) drain(blk *BasicBlock) {
	t.out = append(t.out, blk.Instrs...)
}

// joinReady reports whether every block that feeds the Join named by id
// has already been visited, meaning both of the arms converging here
// have been walked and the Join itself is safe to drain.
func (t *traverser) joinReady(id int) bool {
	for _, p := range t.preds[id] {
		if !t.visited[p] {
			return false
		}
	}
	return true
}

// follow walks straight-line and conditional structure starting at id,
// draining every block it passes through -- including any Join it finds
// ready, which it then treats as an ordinary single-successor block and
// continues past -- and returns the id of the first Join it finds NOT yet
// ready, the point where this walk must hand off to the sibling arm that
// will complete it. It returns -1 when the walk dead-ends (Exit, or a
// block already visited, as happens when a while body's tail reaches
// back to its already-visited header).
func (t *traverser) follow(id int) int {
	for {
		blk := t.fn.Blocks[id]

		if blk.Kind == JoinBlock {
			if !t.joinReady(id) {
				return id
			}
			t.visited[id] = true
			t.drain(blk)
			edges := t.fn.Edges[id]
			if len(edges) == 0 {
				return -1
			}
			id = edges[0].To
			continue
		}

		if t.visited[id] {
			return -1
		}
		t.visited[id] = true
		t.drain(blk)
		if blk.Kind == Exit {
			return -1
		}
		edges := t.fn.Edges[id]
		if len(edges) == 0 {
			return -1
		}
		if blk.Kind != Conditional {
			id = edges[0].To
			continue
		}

		var fallThrough, branch, followID = -1, -1, -1
		for _, e := range edges {
			switch e.Role {
			case RoleFallThrough:
				fallThrough = e.To
			case RoleBranch:
				branch = e.To
			case RoleFollow:
				followID = e.To
			}
		}
		switch {
		case branch >= 0:
			// The FallThrough arm goes first and is fully drained,
			// including any nested construct's own Join -- but the
			// shared Join this if/else closes over can't be ready yet,
			// since the Branch arm hasn't been visited. The Branch arm
			// goes second, so by the time its walk reaches that same
			// Join, both predecessors are visited and it drains straight
			// through; its return is what this walk continues from, not
			// the FallThrough arm's.
			t.follow(fallThrough)
			next := t.follow(branch)
			if next < 0 {
				return -1
			}
			id = next
		case followID >= 0:
			// The loop body is a single arm: any Join nested inside it
			// has both of its own predecessors inside this same walk, so
			// it resolves on its own, with no sibling to reconcile
			// against here. The body's walk always ends by looping back
			// to the already-visited header and returning -1; the
			// loop's exit is the structurally known Follow block, not
			// something derived from the body's return.
			t.follow(fallThrough)
			id = followID
		default:
			return -1
		}
	}
}
