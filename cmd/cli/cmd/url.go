package cmd

import (
	"backdesk/internal/bridge"

	"github.com/spf13/cobra"
)

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the engine URL",
	Long:  `Print the engine base URL as the UI sees it (the get-backend-url bridge channel).`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		value, err := newClient().Bridge(bridge.ChannelBackendURL)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Println(value)
	},
}

func init() {
	rootCmd.AddCommand(urlCmd)
}
