package main

import (
	"fmt"
	"os"

	"github.com/hollowdb/hollow/internal/log"
	"github.com/hollowdb/hollow/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build).
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hollowd",
	Short: "hollowd - embeddable schema-driven document database",
	Long: `hollowd runs a hollow database as a standalone process, exposing
the same Connection facade an embedding application would use in-process,
over a raw-bytes gRPC listener.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("hollowd version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (falls back to built-in defaults)")
	rootCmd.PersistentFlags().String("log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "force JSON log output regardless of config")
	rootCmd.PersistentFlags().String("addr", "", "override the configured gRPC listen address")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(databaseCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(compactCmd)
}

// loadConfig layers --config over config.Default(), then applies any
// persistent flag overrides, mirroring cmd/warren's flag-over-file pattern.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if json, _ := cmd.Flags().GetBool("log-json"); json {
		cfg.Log.JSON = true
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Listen.Address = addr
	}
	return cfg, nil
}

func initLogging() {
	cfg := config.Default()
	if path, _ := rootCmd.PersistentFlags().GetString("config"); path != "" {
		if loaded, err := config.Load(path); err == nil {
			cfg = loaded
		}
	}
	if level, _ := rootCmd.PersistentFlags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json"); jsonOut {
		cfg.Log.JSON = true
	}
	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
}
