// Command ctxswitch points at the ctxsim CLI:
//
//	go run ./cmd/ctxsim --help
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "ctxswitch: the CLI lives in ./cmd/ctxsim")
	os.Exit(2)
}
