// Command pl0c compiles a PL/0-with-functions program to the target ISA.
//
// Usage:
//
//	pl0c build [-emit=words|asm|dot] [-fn=name] [-o file] source.pl0
//	pl0c fmt source.pl0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"pl0c/grammar"
)

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		if err := runBuild(os.Args[2:]); err != nil {
			color.Red("%s", err)
			os.Exit(1)
		}
	case "fmt":
		if err := runFmt(os.Args[2]); err != nil {
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: pl0c build [-emit=words|asm|dot] [-fn=name] [-o file] source.pl0")
	fmt.Println("       pl0c fmt source.pl0")
}

func runFmt(path string) error {
	prog, err := grammar.ParseFile(path)
	if err != nil {
		return err
	}
	fmt.Print(prog.String())
	return nil
}
