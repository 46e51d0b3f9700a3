package cmd

import (
	"github.com/spf13/cobra"
)

var strategiesCmd = &cobra.Command{
	Use:     "strategies",
	Aliases: []string{"strategy"},
	Short:   "Manage trading strategies",
	Long:    `List, upload and delete the strategy sources the engine runs backtests with.`,
}

var strategiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded strategies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		names, err := newClient().ListStrategies()
		if err != nil {
			printError(cmd, err)
			return
		}
		printNames(cmd, names, "No strategies found.")
	},
}

var strategiesUploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a strategy source file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().UploadStrategy(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ %s\n", orDefault(result.Message, "Strategy uploaded"))
	},
}

var strategiesDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete an uploaded strategy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().DeleteStrategy(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ %s\n", orDefault(result.Message, "Strategy deleted"))
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
	strategiesCmd.AddCommand(strategiesListCmd)
	strategiesCmd.AddCommand(strategiesUploadCmd)
	strategiesCmd.AddCommand(strategiesDeleteCmd)
}
