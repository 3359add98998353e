// Command cardsync keeps a SQLite index of a card store current and
// answers queries against it.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cardsync/cardsync/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cardsync",
	Short: "Card store indexer",
	Long: `cardsync mirrors a directory of JSON cards into a SQLite index.

Cards live in one directory per type (cards/book/17.json, cards/task/3.json).
The files are the source of truth; the index is rebuilt from them at startup
and kept current by watching the card directories.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddGroup(
		&cobra.Group{ID: "index", Title: "Index Commands:"},
		&cobra.Group{ID: "query", Title: "Query Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default .cardsync.toml)")
	flags.String("cards", "", "card store directory (default ./cards)")
	flags.String("db", "", "index database path (default .cardsync/index.db)")
	flags.String("log-file", "", "also write logs to this file, rotated by size")
	flags.BoolP("verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("cards_dir", flags.Lookup("cards"))
	_ = viper.BindPFlag("db_path", flags.Lookup("db"))
	_ = viper.BindPFlag("log.file", flags.Lookup("log-file"))
	_ = viper.BindPFlag("log.verbose", flags.Lookup("verbose"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".cardsync")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := readConfig(viper.GetViper()); err != nil {
		fatalf("%v", err)
	}
}

// readConfig reads the config file. Not finding one in the search paths
// is fine and leaves the defaults; a file that does not parse is an error.
func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
