package cmd

import (
	"fmt"
	"time"

	"backdesk/pkg/api"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the engine status",
	Long:  `Show the supervisor's view of the engine: its state (STOPPED, STARTING, RUNNING, CRASHED, FAILED), process, restart counters, last exit code and resource usage.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		status, err := newClient().EngineStatus()
		if err != nil {
			printError(cmd, err)
			return
		}
		printStatus(cmd, *status)
	},
}

func printStatus(cmd *cobra.Command, status api.EngineStatusResponse) {
	icon := statusIcon(status.State)
	cmd.Printf("%s %sEngine%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, colorizeStatus(status.State))
	cmd.Printf("%sURL:%s         %s\n", colorDim, colorReset, orDash(status.URL))
	cmd.Printf("%sRuntime:%s     %s\n", colorDim, colorReset, orDash(status.Runtime))

	if status.PID > 0 {
		cmd.Printf("%sPID:%s         %d\n", colorDim, colorReset, status.PID)
	} else if status.HandleID != "" {
		cmd.Printf("%sHandle:%s      %s\n", colorDim, colorReset, status.HandleID)
	}

	cmd.Printf("%sRestarts:%s    %d\n", colorDim, colorReset, status.Restarts)
	if status.ConsecutiveFailures > 0 {
		cmd.Printf("%sFailures:%s    %s%d%s\n", colorDim, colorReset, colorRed, status.ConsecutiveFailures, colorReset)
	}

	if status.LastExitCode != nil {
		exitCode := *status.LastExitCode
		if exitCode == 0 {
			cmd.Printf("%sLast Exit:%s   %s%d%s\n", colorDim, colorReset, colorGreen, exitCode, colorReset)
		} else {
			cmd.Printf("%sLast Exit:%s   %s%d%s\n", colorDim, colorReset, colorRed, exitCode, colorReset)
		}
	}

	if status.LastError != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, status.LastError, colorReset)
	}

	if status.StartedAt != nil {
		cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(status.StartedAt))
	}

	if status.Stats != nil {
		cmd.Printf("%sCPU:%s         %.1f%%\n", colorDim, colorReset, status.Stats.CPUPercent)
		cmd.Printf("%sMemory:%s      %s\n", colorDim, colorReset, formatBytes(status.Stats.RSSBytes))
		cmd.Printf("%sThreads:%s     %d\n", colorDim, colorReset, status.Stats.Threads)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(state string) string {
	switch state {
	case "RUNNING":
		return colorGreen + "✓" + colorReset
	case "FAILED":
		return colorRed + "✗" + colorReset
	case "CRASHED":
		return colorYellow + "↻" + colorReset
	case "STARTING":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(state string) string {
	icon := statusIcon(state)
	switch state {
	case "RUNNING":
		return icon + " " + colorGreen + state + colorReset
	case "FAILED":
		return icon + " " + colorRed + state + colorReset
	case "CRASHED":
		return icon + " " + colorYellow + state + colorReset
	case "STARTING":
		return icon + " " + colorCyan + state + colorReset
	default:
		return state
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
