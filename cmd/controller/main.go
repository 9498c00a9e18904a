// Command controller runs the affect-tick engine and inspects what it stored.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// #region root
var configPath string

var rootCmd = &cobra.Command{
	Use:           "controller",
	Short:         "Affect-modulated cognitive engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(runCmd, inspectCmd, replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion root
