package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ndoll1998/cgrad/backend/cpuf32"
	"github.com/ndoll1998/cgrad/tensor"
)

var (
	vizDotFile string
	vizPNGFile string
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize",
	Short: "Dump a small sample graph (matmul -> reduce_sum) as Graphviz DOT",
	RunE:  runVisualize,
}

func init() {
	rootCmd.AddCommand(visualizeCmd)
	visualizeCmd.Flags().StringVar(&vizDotFile, "dot", "graph.dot", "output DOT file path")
	visualizeCmd.Flags().StringVar(&vizPNGFile, "png", "", "also render a PNG at this path (requires graphviz's 'dot')")
}

func runVisualize(cmd *cobra.Command, args []string) error {
	ctx := tensor.NewContext(tensor.WithBackend(cpuf32.New()))
	defer ctx.Teardown()

	a, err := tensor.New(ctx, []int{2, 3}, tensor.WithRequiresGrad(true))
	if err != nil {
		return err
	}
	if err := a.Fill(1); err != nil {
		return err
	}
	b, err := tensor.New(ctx, []int{3, 2})
	if err != nil {
		return err
	}
	if err := b.Fill(2); err != nil {
		return err
	}

	c, err := a.Gemm(b)
	if err != nil {
		return err
	}
	loss, err := c.ReduceSum([]int{1, 1})
	if err != nil {
		return err
	}
	if err := loss.Backward(); err != nil {
		return err
	}

	f, err := os.Create(vizDotFile)
	if err != nil {
		return fmt.Errorf("creating DOT file: %w", err)
	}
	defer f.Close()
	if err := ctx.WriteDOT(f, loss); err != nil {
		return fmt.Errorf("writing DOT: %w", err)
	}
	fmt.Printf("wrote %s\n", vizDotFile)

	if vizPNGFile == "" {
		return nil
	}
	if err := renderDotToPNG(vizDotFile, vizPNGFile); err != nil {
		fmt.Printf("could not render PNG: %v\n", err)
		fmt.Printf("you can still view the DOT file manually: dot -Tpng %s -o %s\n", vizDotFile, vizPNGFile)
		return err
	}
	fmt.Printf("wrote %s\n", vizPNGFile)
	return nil
}

// renderDotToPNG shells out to Graphviz's dot, mirroring the teacher's
// own DOT-to-PNG helper.
func renderDotToPNG(dotFile, pngFile string) error {
	if err := exec.Command("which", "dot").Run(); err != nil {
		return fmt.Errorf("graphviz 'dot' command not found")
	}
	out, err := exec.Command("dot", "-Tpng", dotFile, "-o", pngFile).CombinedOutput()
	if err != nil {
		return fmt.Errorf("graphviz error: %w\noutput: %s", err, out)
	}
	return nil
}
