// Command lazygraddemo exercises the engine end to end: it opens a
// Backend scope, builds a small expression, evaluates it, optionally
// backpropagates and/or dumps the graph as DOT, and prints the resulting
// buffers — the "demonstration programs open a Backend scope and print
// buffers" behavior the engine's ambient CLI tooling is built around.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lazygraddemo",
		Short: "Demonstrates the lazygrad array engine",
	}
	cmd.AddCommand(newRunCmd())
	return cmd
}
