package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/psantana5/ecolaunch/internal/logging"
	"github.com/psantana5/ecolaunch/pkg/descriptor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ecolaunch",
	Short: "Launch processes described by an ecosystem file",
	Long: `ecolaunch reads PM2-style ecosystem descriptors (name, script, args,
interpreter and log files), validates them and launches one process with
its output redirected to the configured log files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCodeError carries the exit status of a launched child
type exitCodeError struct {
	app  string
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.app, e.code)
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	err := rootCmd.Execute()
	var exitErr *exitCodeError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

// ExitCode maps an error returned by Execute to a process exit status
func ExitCode(err error) int {
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	if _, ok := descriptor.KindOf(err); ok {
		return 2
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ecolaunch/config.yaml)")
	flags.StringP("file", "f", descriptor.DefaultFile, "ecosystem file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "emit logs as JSON lines")
	flags.String("log-file", "", "also append ecolaunch's own logs to this file")
	flags.StringP("output", "o", "table", "output format: table, json or yaml")
	flags.String("history-db", "", "SQLite database recording runs of start")

	viper.BindPFlag("file", flags.Lookup("file"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_json", flags.Lookup("log-json"))
	viper.BindPFlag("log_file", flags.Lookup("log-file"))
	viper.BindPFlag("output", flags.Lookup("output"))
	viper.BindPFlag("history_db", flags.Lookup("history-db"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".ecolaunch"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ecolaunch")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // ECOLAUNCH_FILE, ECOLAUNCH_LOG_LEVEL, ...

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config %s: %v\n", cfgFile, err)
	}
}

// ecosystemFile returns the ecosystem file path from flag, env or config
func ecosystemFile() string {
	return viper.GetString("file")
}

func outputFormat() string {
	return strings.ToLower(viper.GetString("output"))
}

// newLogger builds the CLI logger from the log_* settings
func newLogger(cmd *cobra.Command) (*logging.Logger, error) {
	level := logging.ParseLevel(viper.GetString("log_level"))
	jsonFormat := viper.GetBool("log_json")

	if path := viper.GetString("log_file"); path != "" {
		return logging.NewFileLogger(path, level, jsonFormat)
	}
	logger := logging.NewLogger(level, jsonFormat)
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

// printStructured writes v as JSON or YAML. It returns false for table output.
func printStructured(out io.Writer, v interface{}) (bool, error) {
	switch outputFormat() {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return true, nil
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return true, enc.Close()
	case "table", "":
		return false, nil
	default:
		return true, fmt.Errorf("unsupported output format %q", outputFormat())
	}
}
