package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"pl0c/internal/codegen"
	"pl0c/internal/dotviz"
	"pl0c/internal/errors"
	"pl0c/internal/ir"
	"pl0c/internal/liveness"
	"pl0c/internal/parser"
	"pl0c/internal/regalloc"
)

// runBuild parses the single source file named by the positional argument
// in args and emits every user-declared function as words or asm, or one
// function's CFG for -emit=dot.
func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	emit := fs.String("emit", "words", "output format: words, asm, or dot")
	fn := fs.String("fn", "", "function to emit for -emit=dot (default: main)")
	out := fs.String("o", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("build: expected exactly one source file")
	}
	path := fs.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	p := parser.New(path, string(source))
	prog, errs := p.Parse()
	if len(errs) > 0 {
		reportAll(p.Filename(), string(source), errs)
		return fmt.Errorf("build: %d error(s)", len(errs))
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch *emit {
	case "dot":
		name := *fn
		if name == "" {
			name = "main"
		}
		text, err := dotviz.Render(prog, name)
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
		fmt.Fprint(w, text)
		return nil
	case "words", "asm":
		return emitFunctions(w, prog, *emit)
	default:
		return fmt.Errorf("build: unknown -emit value %q", *emit)
	}
}

// emitFunctions runs liveness/regalloc/codegen over every user-declared
// function (skipping the built-in stubs, which have no blocks to select
// over) and writes the result in format.
func emitFunctions(w *os.File, prog *ir.Program, format string) error {
	names := make([]string, 0, len(prog.Functions))
	for name, fn := range prog.Functions {
		if fn.Blocks == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fn := prog.Functions[name]

		sets := liveness.Compute(fn)
		graph := liveness.BuildInterference(fn, sets)
		clusters := liveness.PhiClusters(fn)
		coarse, members := liveness.Coalesce(graph, clusters)

		alloc, err := regalloc.Allocate(coarse, members)
		if err != nil {
			return fmt.Errorf("build: function %s: %w", name, err)
		}

		seq := ir.Traverse(fn)
		sel := codegen.NewSelector()
		if err := sel.Select(fn, seq, alloc); err != nil {
			return fmt.Errorf("build: function %s: %w", name, err)
		}

		instrs := sel.Program()
		fmt.Fprintf(w, "; function %s\n", name)
		switch format {
		case "asm":
			for _, in := range instrs {
				fmt.Fprintln(w, in.String())
			}
		case "words":
			for _, word := range codegen.Words(instrs) {
				fmt.Fprintf(w, "%08x\n", word)
			}
		}
	}
	return nil
}

func reportAll(filename, source string, errs []errors.CompilerError) {
	reporter := errors.NewErrorReporter(filename, source)
	for _, e := range errs {
		fmt.Fprint(os.Stderr, reporter.FormatError(e))
	}
}
