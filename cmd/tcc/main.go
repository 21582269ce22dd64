package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "tcc",
		Short: "Track cache control - inspect and maintain the analysis cache",
		Long: `tcc manages the per-track analysis cache used by the player:
loudness envelopes, beat grids, spectra and waveform proxies, all keyed
by file identity and persisted in a single SQLite database.

Use it to register music into playlists, inspect cache usage, prune
stale entries and diagnose database problems.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/tcc.yaml)")
	rootCmd.PersistentFlags().String("db", "", "cache database file (default is the user data dir)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("tcc")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TCC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		log.Debug("using config file", "path", viper.ConfigFileUsed())
	}

	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}
	if viper.GetBool("quiet") {
		log.SetLevel(log.ErrorLevel)
	}
}

// dbPath resolves the database location: flag/env/config first, then a
// per-user data directory.
func dbPath() (string, error) {
	if p := viper.GetString("db"); p != "" {
		return p, nil
	}

	scope := gap.NewScope(gap.User, "trackcache")
	dir, err := scope.DataPath("")
	if err != nil {
		return "", fmt.Errorf("failed to resolve data dir: %w", err)
	}
	return filepath.Join(dir, "trackcache.db"), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
