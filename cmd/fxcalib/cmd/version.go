package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the fxcalib CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fxcalib version %s\n", version)
		fmt.Println("FX rule set decision engine and calibration optimizer")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
