package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/daimatz/ramclass/internal/logger"
	"github.com/daimatz/ramclass/pkg/config"
)

var (
	// Global flags
	configPath string
	logLevel   string
	jsonOut    bool

	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "ramclass",
	Short: "Build runtime classes and inspect their layout",
	Long: `ramclass loads Java classes from class directories, jars and the JDK's
java.base.jmod, builds their dispatch tables and lays them out in
per-loader class memory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error or off")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

// setup loads the configuration and initialises logging.
func setup(cmd *cobra.Command) error {
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	level := cfg.Log.Level
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	lvl, enabled, err := logger.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.Init(logger.Options{Enabled: enabled, Level: lvl, JSON: cfg.Log.JSON, Writer: cmd.ErrOrStderr()})
	return nil
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
