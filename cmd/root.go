package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wavefm",
	Short: "WaveFM is a multi-channel crowd radio service.",
	Run: func(cmd *cobra.Command, args []string) {
		// 默认直接启动服务器
		serverCmd.Run(cmd, args)
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
