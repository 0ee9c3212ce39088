package cmd

import (
	"fmt"
	"os"

	"github.com/psantana5/ecolaunch/pkg/descriptor"
	"github.com/spf13/cobra"
)

var (
	initFormat string
	initForce  bool
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example ecosystem file",
	Long: `Write an ecosystem file with one uvicorn app to the --file path. The
format follows the file extension unless --format is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initFormat, "format", "", "file format: yaml, json or toml")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := ecosystemFile()

	var (
		format descriptor.Format
		err    error
	)
	if initFormat != "" {
		format, err = descriptor.ParseFormat(initFormat)
	} else {
		format, err = descriptor.FormatFromPath(path)
	}
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	data, err := descriptor.Marshal(descriptor.Example(), format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", path, format)
	return nil
}
