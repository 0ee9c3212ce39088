package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/ecolaunch/pkg/descriptor"
	"github.com/spf13/cobra"
)

var validateDeferPaths bool

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every app in the ecosystem file",
	Long: `Load the ecosystem file and validate each app: required fields, args
splitting, script and interpreter paths and log directory writability.
Missing log directories are created.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateDeferPaths, "defer-paths", false,
		"only check fields, leave path checks to launch time")
}

type appValidation struct {
	Name   string `json:"name" yaml:"name"`
	Valid  bool   `json:"valid" yaml:"valid"`
	Kind   string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
	Script string `json:"script" yaml:"script"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := ecosystemFile()

	// Field-level problems and duplicates abort the whole file
	eco, err := descriptor.Load(path, descriptor.WithDeferredPathChecks())
	if err != nil {
		return err
	}

	var opts []descriptor.Option
	if validateDeferPaths {
		opts = append(opts, descriptor.WithDeferredPathChecks())
	}

	results := make([]appValidation, 0, len(eco.Apps))
	invalid := 0
	var firstErr error
	for _, app := range eco.Apps {
		v := appValidation{Name: app.Name, Valid: true, Script: app.Script}
		if err := app.Validate(opts...); err != nil {
			v.Valid = false
			v.Error = err.Error()
			if kind, ok := descriptor.KindOf(err); ok {
				v.Kind = kind.String()
			}
			if firstErr == nil {
				firstErr = err
			}
			invalid++
		}
		results = append(results, v)
	}

	out := cmd.OutOrStdout()
	printed, err := printStructured(out, results)
	if err != nil {
		return err
	}
	if !printed {
		table := tablewriter.NewWriter(out)
		table.Header("Name", "Status", "Script", "Error")
		for _, v := range results {
			status := "ok"
			if !v.Valid {
				status = v.Kind
			}
			table.Append(v.Name, status, v.Script, v.Error)
		}
		table.Render()
		fmt.Fprintf(out, "\n%d of %d apps valid\n", len(results)-invalid, len(results))
	}

	return firstErr
}
