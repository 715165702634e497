// Command pregelctl is a small CLI wrapper around the engine's common
// operations: listing the bundled demo workflows and running one of them
// to completion, following any human-in-the-loop pauses it raises.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "pregelctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	switch args[0] {
	case "list":
		listDemos()
		return nil
	case "run":
		fs := flag.NewFlagSet("run", flag.ContinueOnError)
		thread := fs.String("thread", "cli-run", "thread id to run under")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: pregelctl run [-thread ID] <demo>")
		}
		d, ok := findDemo(fs.Arg(0))
		if !ok {
			return fmt.Errorf("unknown demo %q; run %q to list available ones", fs.Arg(0), "pregelctl list")
		}
		return runDemo(d, *thread)
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Println("pregelctl: run and inspect bundled Pregel workflow demos")
	fmt.Println()
	fmt.Println("usage:")
	fmt.Println("  pregelctl list")
	fmt.Println("  pregelctl run [-thread ID] <demo>")
}
