package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/psantana5/ecolaunch/internal/history"
	"github.com/psantana5/ecolaunch/internal/launcher"
	"github.com/psantana5/ecolaunch/internal/report"
	"github.com/psantana5/ecolaunch/internal/shutdown"
	"github.com/psantana5/ecolaunch/pkg/descriptor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start [name]",
	Short: "Launch one app and wait for it to exit",
	Long: `Validate the named app, launch it with its output redirected to its log
files and wait for it. SIGINT or SIGTERM stop the app's process group,
escalating to SIGKILL after --kill-timeout. The exit status follows the app.

The name may be omitted when the ecosystem file defines a single app.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	flags := startCmd.Flags()
	flags.String("metrics-addr", "", "serve /metrics, /health and /status on this address (e.g. :9105)")
	flags.String("textfile", "", "write a node_exporter textfile here when the app exits")
	flags.Duration("kill-timeout", launcher.DefaultKillTimeout, "wait this long after SIGTERM before SIGKILL")
	flags.Duration("sample-interval", 5*time.Second, "resource sampling interval")

	viper.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	viper.BindPFlag("textfile", flags.Lookup("textfile"))
	viper.BindPFlag("kill_timeout", flags.Lookup("kill-timeout"))
	viper.BindPFlag("sample_interval", flags.Lookup("sample-interval"))
}

func runStart(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	app, err := descriptor.LoadApp(ecosystemFile(), name)
	if err != nil {
		return err
	}

	var runs *history.Store
	if path := viper.GetString("history_db"); path != "" {
		if runs, err = history.Open(path); err != nil {
			return err
		}
		defer runs.Close()
	}

	metrics := report.NewMetrics()
	l := launcher.New(
		launcher.WithLogger(logger),
		launcher.WithMetrics(metrics),
		launcher.WithKillTimeout(viper.GetDuration("kill_timeout")),
		launcher.WithSampleInterval(viper.GetDuration("sample_interval")),
	)

	sm := shutdown.New(10*time.Second, logger)
	ctx, cancel := sm.NotifyContext(cmd.Context())
	defer cancel()

	if addr := viper.GetString("metrics_addr"); addr != "" {
		server := &http.Server{
			Addr: addr,
			Handler: report.NewRouter(metrics, func() interface{} {
				return l.Status()
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Metrics server listening", map[string]interface{}{"addr": addr})
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", map[string]interface{}{"error": err.Error()})
			}
		}()
		sm.Register("metrics server", shutdown.StopHTTPServer(server))
	}

	// Registered last so it runs before the server stops
	if path := viper.GetString("textfile"); path != "" {
		sm.Register("textfile", func(context.Context) error {
			return metrics.WriteTextfile(path)
		})
	}

	result, runErr := l.Run(ctx, app)
	cancel()
	shutdownErr := sm.Shutdown()
	if runErr != nil {
		return runErr
	}

	if runs != nil {
		if err := runs.Record(result); err != nil {
			logger.Warn("Failed to record run history", map[string]interface{}{"error": err.Error()})
		}
	}

	out := cmd.OutOrStdout()
	printed, err := printStructured(out, result)
	if err != nil {
		return err
	}
	if !printed {
		if err := result.WriteReport(out); err != nil {
			return err
		}
	}

	if code := exitCodeFor(result); code != 0 {
		return &exitCodeError{app: result.App, code: code}
	}
	return shutdownErr
}

// exitCodeFor maps a run result to ecolaunch's own exit status
func exitCodeFor(r *report.Result) int {
	switch {
	case r.Success(), r.ExitReason == report.ExitReasonCancelled:
		return 0
	case r.ExitCode > 0:
		return r.ExitCode
	default:
		return 1
	}
}
