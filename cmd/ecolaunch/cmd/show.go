package cmd

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/ecolaunch/pkg/descriptor"
	"github.com/spf13/cobra"
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print the spawn specification of each app",
	Long: `Print the command line, working directory and log targets that start
would use. Paths are resolved but not checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

type appSpec struct {
	Name string               `json:"name" yaml:"name"`
	Spec descriptor.SpawnSpec `json:"spec" yaml:"spec"`
}

func runShow(cmd *cobra.Command, args []string) error {
	path := ecosystemFile()

	var apps []descriptor.LaunchDescriptor
	if len(args) == 1 {
		app, err := descriptor.LoadApp(path, args[0], descriptor.WithDeferredPathChecks())
		if err != nil {
			return err
		}
		apps = append(apps, app)
	} else {
		eco, err := descriptor.Load(path, descriptor.WithDeferredPathChecks())
		if err != nil {
			return err
		}
		apps = eco.Apps
	}

	specs := make([]appSpec, 0, len(apps))
	for _, app := range apps {
		specs = append(specs, appSpec{Name: app.Name, Spec: app.ToSpawnSpec()})
	}

	out := cmd.OutOrStdout()
	if printed, err := printStructured(out, specs); printed || err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header("Name", "Command", "Stdout", "Stderr", "Combined")
	for _, s := range specs {
		table.Append(s.Name, strings.Join(s.Spec.Argv(), " "), s.Spec.Stdout, s.Spec.Stderr, s.Spec.CombinedLog)
	}
	table.Render()
	return nil
}
