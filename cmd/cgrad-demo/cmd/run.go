package cmd

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/ndoll1998/cgrad/backend/cpuf32"
	"github.com/ndoll1998/cgrad/optim"
	"github.com/ndoll1998/cgrad/tensor"
)

var (
	runEpochs int
	runLR     float32
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Train a tiny linear model (y = W x + b) against synthetic data",
	RunE:  runLinreg,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runEpochs, "epochs", 50, "number of SGD steps")
	runCmd.Flags().Float32Var(&runLR, "lr", 0.05, "learning rate")
}

func runLinreg(cmd *cobra.Command, args []string) error {
	ctx := tensor.NewContext(tensor.WithBackend(cpuf32.New()))
	defer ctx.Teardown()

	w, err := tensor.New(ctx, []int{1, 4}, tensor.WithRequiresGrad(true))
	if err != nil {
		return err
	}
	if err := w.FillRand(); err != nil {
		return err
	}
	b, err := tensor.New(ctx, []int{1, 1}, tensor.WithRequiresGrad(true))
	if err != nil {
		return err
	}
	if err := b.Fill(0); err != nil {
		return err
	}

	targetW := []float32{1.5, -2, 0.5, 3}
	x, err := tensor.New(ctx, []int{4, 1}, tensor.WithRequiresGrad(false))
	if err != nil {
		return err
	}
	y, err := tensor.New(ctx, []int{1, 1}, tensor.WithRequiresGrad(false))
	if err != nil {
		return err
	}

	opt := optim.NewSGD([]*tensor.Tensor{w, b}, optim.WithLR(runLR), optim.WithMomentum(0.9))

	for epoch := 0; epoch < runEpochs; epoch++ {
		xs := make([]float32, 4)
		var want float32
		for i := range xs {
			xs[i] = rand.Float32()*2 - 1
			want += targetW[i] * xs[i]
			if err := x.Set([]int{i, 0}, xs[i]); err != nil {
				return err
			}
		}
		if err := y.Set([]int{0, 0}, want); err != nil {
			return err
		}

		pred, err := w.Gemm(x)
		if err != nil {
			return err
		}
		pred, err = pred.Add(b)
		if err != nil {
			return err
		}
		diff, err := pred.Sub(y)
		if err != nil {
			return err
		}
		sq, err := diff.Gemm(diff)
		if err != nil {
			return err
		}
		loss, err := sq.ReduceSum([]int{1, 1})
		if err != nil {
			return err
		}

		if err := loss.Backward(); err != nil {
			return err
		}
		if err := opt.Step(); err != nil {
			return err
		}
		if err := opt.ZeroGrad(); err != nil {
			return err
		}

		if verbose {
			lv, err := loss.Get([]int{0, 0})
			if err != nil {
				return err
			}
			fmt.Printf("epoch %3d loss=%.6f\n", epoch, lv)
		}

		if err := pred.Free(); err != nil {
			return err
		}
		if err := diff.Free(); err != nil {
			return err
		}
		if err := sq.Free(); err != nil {
			return err
		}
		if err := loss.Free(); err != nil {
			return err
		}
	}

	fmt.Println("learned weights:")
	for i := 0; i < 4; i++ {
		v, err := w.Get([]int{0, i})
		if err != nil {
			return err
		}
		fmt.Printf("  w[%d] = %+.4f (target %+.4f)\n", i, v, targetW[i])
	}
	return nil
}
