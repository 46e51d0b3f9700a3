package cmd

import (
	"backdesk/internal/bridge"
	"backdesk/internal/version"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print deskctl and backdesk versions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("deskctl:  %s\n", version.Get())

		client := newClient()
		appVersion, err := client.Bridge(bridge.ChannelAppVersion)
		if err != nil {
			cmd.Printf("backdesk: unavailable (%v)\n", err)
			return
		}
		platform, err := client.Bridge(bridge.ChannelPlatform)
		if err != nil {
			platform = "unknown"
		}
		cmd.Printf("backdesk: %s (%s)\n", appVersion, platform)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
