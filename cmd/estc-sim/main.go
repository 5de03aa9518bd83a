package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/estc-blue/config"
	"github.com/user/estc-blue/logger"
)

var (
	// Global flags
	configPath string
	logLevel   string
	tracing    bool
	tracePath  string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "estc-sim",
		Short: "Simulated ESTC peripheral with notification flow control",
		Long: `estc-sim runs the ESTC GATT service against a simulated stack and central.
The hello characteristic is notified on a timer; pushes are throttled by the
stack's queue credits and skipped while the peer is not subscribed.`,
		PersistentPreRunE: loadConfig,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: TRACE, DEBUG, INFO, WARN, ERROR")
	rootCmd.PersistentFlags().BoolVar(&tracing, "trace", false, "Record a CBOR link trace")
	rootCmd.PersistentFlags().StringVar(&tracePath, "trace-file", "", "Trace file (default: data dir, one per session)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newConsoleCommand())
	rootCmd.AddCommand(newTraceCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if tracing || tracePath != "" {
		cfg.Trace.Enabled = true
	}
	if tracePath != "" {
		cfg.Trace.Path = tracePath
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.SetLevel(cfg.Level())
	return nil
}
