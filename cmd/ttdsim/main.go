package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/meenmo/ttdlib/cmd/ttdsim/internal/runcmd"
	"github.com/meenmo/ttdlib/cmd/ttdsim/internal/solve"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "run":
		return runcmd.Run(args[1:], stdout, stderr)
	case "solve":
		return solve.Run(args[1:], stdin, stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ttdsim <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run    Simulate correlated default times from a YAML/JSON run config")
	fmt.Fprintln(w, "  solve  Invert one survival curve over a window")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run `ttdsim <command> -h` for command-specific help.")
}
