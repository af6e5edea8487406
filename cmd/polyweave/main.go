package main

import (
	"fmt"
	"os"

	"github.com/polyweave/polyweave/internal/cli"
)

// main is a thin boundary: all engine logic lives behind the cobra command
// tree in internal/cli; main only translates its exit result into a
// process exit code.
func main() {
	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
