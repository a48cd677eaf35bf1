package cmd

import (
	"WaveFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动WaveFM服务器",
	Long:  `启动WaveFM电台系统的HTTP服务器，提供频道API与监听者WebSocket广播`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
