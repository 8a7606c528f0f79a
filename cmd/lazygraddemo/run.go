package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/lazygrad"
)

func newRunCmd() *cobra.Command {
	var (
		rows, cols int
		dotPath    string
		backward   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build a small (rows, cols) expression, evaluate it, and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rows <= 0 || cols <= 0 {
				return fmt.Errorf("--rows and --cols must be positive")
			}
			return lazygrad.WithBackend(func(s *lazygrad.Scope) error {
				s.Logger().Info().Int("rows", rows).Int("cols", cols).Msg("starting demo run")

				data := make([]float32, rows*cols)
				for i := range data {
					data[i] = float32(i) * 0.5
				}
				x, err := s.FromSlice(data, []int{rows, cols}, lazygrad.Float32)
				if err != nil {
					return err
				}
				two, err := s.Full([]int{rows, cols}, lazygrad.Float32, 2)
				if err != nil {
					return err
				}
				scaled, err := x.Mul(two)
				if err != nil {
					return err
				}
				summed, err := scaled.Sum(false)
				if err != nil {
					return err
				}

				if backward {
					if err := summed.Backward(); err != nil {
						return err
					}
					if grad, ok := x.Grad(); ok {
						buf, err := grad.Download()
						if err != nil {
							return err
						}
						fmt.Printf("d(sum(x*2))/dx = %v\n", buf)
					}
				}

				buf, err := summed.Download()
				if err != nil {
					return err
				}
				fmt.Printf("sum(x*2) = %v\n", buf)

				if dotPath != "" {
					dot, err := s.Graph().DumpDOT()
					if err != nil {
						return err
					}
					return os.WriteFile(dotPath, []byte(dot), 0o644)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 2, "number of rows in the demo array")
	cmd.Flags().IntVar(&cols, "cols", 3, "number of columns in the demo array")
	cmd.Flags().StringVar(&dotPath, "dot", "", "write the expression graph as DOT to this path")
	cmd.Flags().BoolVar(&backward, "backward", false, "also backpropagate and print dx")

	return cmd
}
