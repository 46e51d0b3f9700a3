package cmd

import (
	"fmt"
	"os"

	"backdesk/internal/auth"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "deskctl",
	Short: "deskctl is a command line tool for a running backdesk",
	Long: `deskctl is the command-line interface for backdesk, the desktop shell that
supervises the backtesting engine.

It talks to backdesk's local API, which is available whether backdesk runs with
a window or headless (backdesk --headless).

Common workflows:

  Check the engine:
    deskctl status

  Restart a wedged engine:
    deskctl restart

  Work with stored backtests and strategies:
    deskctl strategies upload sma_cross.py
    deskctl backtests create --name aapl-sma --amount 10000 --strategy sma_cross --file aapl.csv
    deskctl backtests list
    deskctl backtests get aapl-sma

Configuration:
  Set the API endpoint and token via flags, environment variables or a config file:
    DESKCTL_URL      Local API endpoint (default: http://127.0.0.1:8765)
    DESKCTL_TOKEN    Bearer token for engine control (backdesk's bridge.token)

  When backdesk runs with bridge.token set to "auto", deskctl reads the
  generated token from the shared token file.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".deskctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".deskctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "DESKCTL_VARNAME"
	viper.SetEnvPrefix("DESKCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.deskctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://127.0.0.1:8765", "backdesk local API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Token for engine control")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.PersistentFlags().String("token-file", "", "File holding a generated token (default is backdesk's shared token file)")
	viper.BindPFlag("token_file", rootCmd.PersistentFlags().Lookup("token-file"))
}

func newClient() *DeskClient {
	return NewDeskClient(viper.GetString("url"), resolveToken())
}

// resolveToken prefers an explicit token over the shared token file.
func resolveToken() string {
	if token := viper.GetString("token"); token != "" {
		return token
	}
	path := viper.GetString("token_file")
	if path == "" {
		var err error
		if path, err = auth.DefaultPath(); err != nil {
			return ""
		}
	}
	token, err := auth.Load(path)
	if err != nil {
		return ""
	}
	return token
}

// printError reports a failed request the same way for every command.
func printError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}
