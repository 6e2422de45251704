package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/fidi/pkg/lint"
)

const version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fidilint [file]",
		Short: "Validate a fidi request document and render its call graph",
		Long: `Fidilint parses a fidi request document, including every nested call
payload, runs the same validation the server performs, and writes the
resulting call cascade to standard output as a Graphviz digraph.

With no argument, or with "-", the document is read from standard input.`,
		Args:         cobra.MaximumNArgs(1),
		Version:      version,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := readInput(args)
			if err != nil {
				return err
			}

			res := lint.Emit(string(src))
			if res.Errors != 0 {
				fmt.Fprintf(os.Stderr, "Parse failed!! with %d errors.\n%s\n", res.Errors, res.ErrorMsg)
				fmt.Fprintln(os.Stderr, "Proceeding despite failures. The graph is likely inaccurate.")
			}
			fmt.Print(res.Graph)
			if res.Warnings != 0 {
				fmt.Fprintf(os.Stderr, "Found %d non-syntax errors in the input.\n%s", res.Warnings, res.WarningMsg)
			}
			if !res.Ok() {
				return fmt.Errorf("input has %d syntax and %d validation problems", res.Errors, res.Warnings)
			}
			return nil
		},
	}
	root.Flags().BoolP("version", "v", false, "display version number")
	return root
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read standard input: %w", err)
		}
		return src, nil
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	return src, nil
}
