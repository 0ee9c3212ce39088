package cmd

import (
	"fmt"

	"github.com/psantana5/ecolaunch/internal/logging"
	"github.com/psantana5/ecolaunch/pkg/descriptor"
	"github.com/spf13/cobra"
)

var rotateOpts = logging.DefaultRotateOptions()

// logrotateCmd represents the logrotate command
var logrotateCmd = &cobra.Command{
	Use:   "logrotate [name]",
	Short: "Print a logrotate configuration for the apps' log files",
	Long: `Generate logrotate stanzas covering each app's log_file, out_file and
error_file. Install the output under /etc/logrotate.d/.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogrotate,
}

func init() {
	rootCmd.AddCommand(logrotateCmd)
	logrotateCmd.Flags().StringVar(&rotateOpts.Frequency, "frequency", rotateOpts.Frequency, "rotation frequency: daily, weekly, monthly")
	logrotateCmd.Flags().IntVar(&rotateOpts.Keep, "keep", rotateOpts.Keep, "number of rotated files to keep")
	logrotateCmd.Flags().StringVar(&rotateOpts.MaxSize, "maxsize", "", "also rotate when a file exceeds this size (e.g. 100M)")
}

func runLogrotate(cmd *cobra.Command, args []string) error {
	eco, err := descriptor.Load(ecosystemFile(), descriptor.WithDeferredPathChecks())
	if err != nil {
		return err
	}

	apps := eco.Apps
	if len(args) == 1 {
		app, ok := eco.Find(args[0])
		if !ok {
			return fmt.Errorf("app %q not found in %s", args[0], ecosystemFile())
		}
		apps = []descriptor.LaunchDescriptor{app}
	}

	out := cmd.OutOrStdout()
	for i, app := range apps {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprint(out, logging.GenerateLogrotateConfig(app, rotateOpts))
	}
	return nil
}
