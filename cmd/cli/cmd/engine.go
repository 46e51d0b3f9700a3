package cmd

import (
	"github.com/spf13/cobra"
)

func engineControlCmd(action, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			status, err := newClient().ControlEngine(action)
			if err != nil {
				printError(cmd, err)
				return
			}
			cmd.Printf("✓ Engine %s requested. State: %s\n", action, colorizeStatus(status.State))
		},
	}
}

var (
	startCmd = engineControlCmd("start", "Start the engine",
		`Start the engine after it was stopped or gave up restarting (FAILED).`)
	stopCmd = engineControlCmd("stop", "Stop the engine",
		`Stop the engine. It stays stopped until started again; automatic restarts are cancelled.`)
	restartCmd = engineControlCmd("restart", "Restart the engine",
		`Stop the engine if it is running and start a fresh process. Restart counters are reset.`)
)

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
}
