package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var backtestsCmd = &cobra.Command{
	Use:     "backtests",
	Aliases: []string{"backtest", "bt"},
	Short:   "Manage stored backtests",
	Long:    `List, inspect, create and delete the backtests stored by the engine.`,
}

var backtestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backtests",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		names, err := newClient().ListBacktests()
		if err != nil {
			printError(cmd, err)
			return
		}
		printNames(cmd, names, "No backtests found.")
	},
}

var backtestsGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Show a stored backtest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw, _ := cmd.Flags().GetBool("raw")

		backtest, err := newClient().GetBacktest(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}

		if raw {
			out, _ := json.MarshalIndent(backtest, "", "  ")
			cmd.Println(string(out))
			return
		}

		cmd.Printf("%sBacktest %s%s\n", colorBold, args[0], colorReset)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sEnd Result:%s  %s\n", colorDim, colorReset, orDash(string(backtest.EndResult)))
		cmd.Printf("%sPredictions:%s %s\n", colorDim, colorReset, seriesSummary(backtest.Predictions))
		cmd.Printf("%sResults:%s     %s\n", colorDim, colorReset, seriesSummary(backtest.Results))
	},
}

var backtestsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Run a backtest on a price file",
	Long: `Upload a price file and run a strategy on it. The request returns once the
engine has finished the backtest.

Example:
  deskctl backtests create --name aapl-sma --amount 10000 --strategy sma_cross --file aapl.csv`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		amount, _ := flags.GetFloat64("amount")
		strategy, _ := flags.GetString("strategy")
		file, _ := flags.GetString("file")

		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}
		if amount == 0 {
			cmd.Println("Error: --amount is required")
			return
		}
		if strategy == "" {
			cmd.Println("Error: --strategy is required")
			return
		}
		if file == "" {
			cmd.Println("Error: --file is required")
			return
		}

		result, err := newClient().CreateBacktest(name, amount, strategy, file)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ %s\n", orDefault(result.Message, "Backtest created"))
	},
}

var backtestsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a stored backtest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().DeleteBacktest(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ %s\n", orDefault(result.Message, "Backtest deleted"))
	},
}

func printNames(cmd *cobra.Command, names []string, empty string) {
	if len(names) == 0 {
		cmd.Println(empty)
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tNAME")
	for i, name := range names {
		fmt.Fprintf(w, "%d\t%s\n", i+1, name)
	}
	w.Flush()
}

// seriesSummary describes an engine series without printing all of it.
func seriesSummary(raw json.RawMessage) string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return orDash(string(raw))
	}
	return fmt.Sprintf("%d entries", len(items))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func init() {
	rootCmd.AddCommand(backtestsCmd)
	backtestsCmd.AddCommand(backtestsListCmd)
	backtestsCmd.AddCommand(backtestsGetCmd)
	backtestsCmd.AddCommand(backtestsCreateCmd)
	backtestsCmd.AddCommand(backtestsDeleteCmd)

	backtestsGetCmd.Flags().Bool("raw", false, "Print the engine's JSON")

	flags := backtestsCreateCmd.Flags()
	flags.StringP("name", "n", "", "Name of the backtest (required)")
	flags.Float64P("amount", "a", 0, "Starting capital (required)")
	flags.StringP("strategy", "s", "", "Strategy name (required)")
	flags.StringP("file", "f", "", "Price data file (required)")
}
