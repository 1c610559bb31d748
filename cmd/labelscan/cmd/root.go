package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/labelforge/labelscan/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	globalConfig *config.Config
	cfgFile      string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "labelscan",
	Short: "Hybrid DOM and OCR product data extraction",
	Long: `labelscan reconciles product data from two sources: structured DOM
snapshots captured by the crawler and OCR of rendered label crops.
Each field is taken from whichever source the validator trusts more.

Examples:
  labelscan run 100234 100235
  labelscan run --crops-dir data/crops --output results.json
  labelscan run --config labelscan.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersion injects build metadata from the linker.
func SetVersion(version, commit, date string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// GetRootCommand returns the root command so tests can execute commands
// without calling os.Exit.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME/.config/labelscan, /etc/labelscan)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("crops-dir", "", "directory containing per-product crop directories")
	rootCmd.PersistentFlags().String("dom-dir", "", "directory containing DOM snapshot files")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("crops_dir", rootCmd.PersistentFlags().Lookup("crops-dir"))
	_ = viper.BindPFlag("dom_dir", rootCmd.PersistentFlags().Lookup("dom-dir"))

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if globalConfig == nil {
			initConfig()
		}

		var level slog.Level
		switch globalConfig.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)
	}
}

// initConfig reads the config file and LABELSCAN_* environment variables.
func initConfig() {
	loader := config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = loader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = loader.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// GetConfig returns the loaded configuration, loading it on first use.
func GetConfig() *config.Config {
	if globalConfig == nil {
		initConfig()
	}
	return globalConfig
}
