package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "cgrad-demo",
	Short: "Demo driver for the cgrad tensor/autodiff engine",
	Long: `cgrad-demo exercises the cgrad engine end to end: building a small
compute graph, running it forward and backward, and optionally dumping it
as Graphviz DOT for inspection.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print the loss after every training step")
}
