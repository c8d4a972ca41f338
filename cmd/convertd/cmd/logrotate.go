package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/ytconvert/pkg/logging"
)

var logrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Print a logrotate configuration for file logging",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(logging.GenerateLogrotateConfig("server"))
	},
}

func init() {
	rootCmd.AddCommand(logrotateCmd)
}
