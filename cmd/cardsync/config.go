package main

import (
	"fmt"
	"os"

	"github.com/cardsync/cardsync/internal/config"
	"github.com/cardsync/cardsync/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage the cardsync configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .cardsync.toml",
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")

		if err := config.WriteDefault(path, force); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	Run: func(cmd *cobra.Command, args []string) {
		data, err := config.Encode(mustLoadConfig())
		if err != nil {
			fatalf("%v", err)
		}
		_, _ = os.Stdout.Write(data)
	},
}

func init() {
	configInitCmd.Flags().String("path", ".cardsync.toml", "Where to write the file")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
