package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/cardsync/cardsync/internal/index/schema"
	"github.com/cardsync/cardsync/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// statusReport is the --yaml form of the status command.
type statusReport struct {
	Index    string         `yaml:"index"`
	Cards    string         `yaml:"cards"`
	Size     int64          `yaml:"size_bytes"`
	Modified string         `yaml:"modified"`
	Types    map[string]int `yaml:"types"`
	Total    int            `yaml:"total"`
	Tags     int            `yaml:"tags"`
	Taggings int            `yaml:"taggings"`
	Links    int            `yaml:"links"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "index",
	Short:   "Show index status",
	Long: `Display the current status of the index.

Shows:
  - Index file location, size and modification time
  - Number of indexed cards per type
  - Number of tags, taggings and links`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		asYAML, _ := cmd.Flags().GetBool("yaml")

		info, err := os.Stat(cfg.DBPath)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Printf("\n%s Index not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'cardsync sync' to create it\n\n")
			return
		}
		if err != nil {
			fatalf("checking index: %v", err)
		}

		database := mustOpenIndex(cfg)
		defer database.Close()

		stats, err := database.Stats(context.Background())
		if err != nil {
			fatalf("reading index stats: %v", err)
		}

		report := statusReport{
			Index:    cfg.DBPath,
			Cards:    cfg.CardsDir,
			Size:     info.Size(),
			Modified: info.ModTime().Format("2006-01-02 15:04:05"),
			Types:    make(map[string]int),
			Total:    stats.Total(),
			Tags:     stats.Tags,
			Taggings: stats.Taggings,
			Links:    stats.Links,
		}
		rows := make([][]string, 0, len(schema.Variants()))
		for _, v := range schema.Variants() {
			report.Types[v.Tag()] = stats.Cards[v]
			rows = append(rows, []string{v.Tag(), v.Table(), strconv.Itoa(stats.Cards[v])})
		}

		if asYAML {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				fatalf("encoding status: %v", err)
			}
			_ = enc.Close()
			return
		}

		fmt.Printf("\n%s Index Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Location: %s\n", report.Index)
		fmt.Printf("Cards: %s\n", report.Cards)
		fmt.Printf("Size: %s\n", formatSize(report.Size))
		fmt.Printf("Modified: %s\n\n", report.Modified)
		fmt.Print(ui.Table([]string{"TYPE", "TABLE", "CARDS"}, rows))
		fmt.Printf("\nTotal: %d cards, %d tags, %d taggings, %d links\n\n",
			report.Total, report.Tags, report.Taggings, report.Links)
	},
}

func init() {
	statusCmd.Flags().Bool("yaml", false, "Output as YAML")
	rootCmd.AddCommand(statusCmd)
}
