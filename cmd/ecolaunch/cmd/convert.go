package cmd

import (
	"fmt"
	"os"

	"github.com/psantana5/ecolaunch/pkg/descriptor"
	"github.com/spf13/cobra"
)

var (
	convertTo  string
	convertOut string
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Re-serialize the ecosystem file in another format",
	Long: `Decode the ecosystem file and encode it as yaml, json or toml. Paths are
written as they appear in the source file.`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVar(&convertTo, "to", "", "target format: yaml, json or toml")
	convertCmd.Flags().StringVar(&convertOut, "out", "", "write to this file instead of stdout")
	convertCmd.MarkFlagRequired("to")
}

func runConvert(cmd *cobra.Command, args []string) error {
	path := ecosystemFile()

	to, err := descriptor.ParseFormat(convertTo)
	if err != nil {
		return err
	}
	from, err := descriptor.FormatFromPath(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	eco, err := descriptor.Parse(data, from)
	if err != nil {
		return err
	}
	if err := eco.Validate(descriptor.WithDeferredPathChecks()); err != nil {
		return err
	}

	converted, err := descriptor.Marshal(eco, to)
	if err != nil {
		return err
	}

	if convertOut == "" {
		_, err = cmd.OutOrStdout().Write(converted)
		return err
	}
	if err := os.WriteFile(convertOut, converted, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", convertOut, err)
	}
	return nil
}
