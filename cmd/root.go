package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Protects enforcement files in a target repository from tampering",
	Long: `guardian watches a set of protected paths in a target git repository from
an access-isolated location. Each scheduled cycle it:
  - fetches the target repository's current state and recent history
  - compares protected paths against trusted reference copies
  - on divergence, restores the last known-good state and pushes a
    correction commit (never force-pushed)
  - raises a de-duplicated alert in the issue tracker

The reference store is updated only by the operator-driven
"update-reference" command, never by the cycle itself.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(handler))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/guardian/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "guardian")
		viper.AddConfigPath(configDir)
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("GUARDIAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("repo.branch", "main")
	viper.SetDefault("repo.max_history_depth", 50)
	viper.SetDefault("guardian.author_name", "Guardian Bot")
	viper.SetDefault("guardian.author_email", "guardian@ironverse.bot")
	viper.SetDefault("tracker.labels", []string{"guardian", "security"})
	viper.SetDefault("timeouts.fetch", "60s")
	viper.SetDefault("timeouts.push", "120s")
	viper.SetDefault("timeouts.tracker", "30s")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
