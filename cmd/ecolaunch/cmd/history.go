package cmd

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/ecolaunch/internal/history"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [name]",
	Short: "List past runs recorded by start",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show, 0 for all")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := viper.GetString("history_db")
	if path == "" {
		return fmt.Errorf("no history database configured (set history_db or pass --history-db)")
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	app := ""
	if len(args) == 1 {
		app = args[0]
	}
	runs, err := store.List(app, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if printed, err := printStructured(out, runs); printed || err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Run ID", "App", "Started", "Duration", "Exit", "Reason")
	for _, r := range runs {
		table.Append(
			r.RunID[:8],
			r.App,
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			r.Duration.Round(100*time.Millisecond).String(),
			fmt.Sprintf("%d", r.ExitCode),
			string(r.ExitReason),
		)
	}
	table.Render()
	return nil
}
