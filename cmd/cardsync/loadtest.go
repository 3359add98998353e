package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cardsync/cardsync/internal/index/loadtest"
	"github.com/cardsync/cardsync/internal/ui"
	"github.com/spf13/cobra"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "index",
	Short:   "Measure query latency under concurrent clients",
	Long: `Generate a synthetic card store in a temporary directory, index it, and run
concurrent list, lookup and count queries against it.

The configured card store and index are not touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		tasks, _ := cmd.Flags().GetInt("tasks")
		clients, _ := cmd.Flags().GetInt("clients")
		queries, _ := cmd.Flags().GetInt("queries")
		consistency, _ := cmd.Flags().GetDuration("consistency")

		dir, err := os.MkdirTemp("", "cardsync-loadtest-")
		if err != nil {
			fatalf("%v", err)
		}
		defer os.RemoveAll(dir)

		fmt.Printf("%s Generating %d tasks in %s...\n", ui.RenderAccent("🔄"), tasks, dir)
		start := time.Now()
		ts, err := loadtest.CreateTestStore(dir, tasks, 0.3)
		if err != nil {
			fatalf("%v", err)
		}
		defer ts.Close()
		fmt.Printf("%s Indexed %d cards in %v\n\n", ui.RenderPass("✓"), ts.TotalCards, time.Since(start).Round(time.Millisecond))

		stats, err := ts.RunConcurrentQueries(clients, queries)
		if err != nil {
			fatalf("%v", err)
		}
		stats.PrintStats(os.Stdout)

		if consistency > 0 {
			fmt.Printf("\n%s Checking read consistency for %v...\n", ui.RenderAccent("🔍"), consistency)
			if err := ts.VerifyConsistency(clients, consistency); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s No inconsistent reads\n", ui.RenderPass("✓"))
		}

		counts, err := ts.GetStats(context.Background())
		if err == nil {
			fmt.Printf("\nIndex: %d cards, %d tags, %d links\n", counts["total_cards"], counts["tags"], counts["links"])
		}
		if stats.Errors > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	loadtestCmd.Flags().Int("tasks", 1000, "Number of task cards to generate")
	loadtestCmd.Flags().Int("clients", 100, "Number of concurrent clients")
	loadtestCmd.Flags().Int("queries", 10, "Queries per client")
	loadtestCmd.Flags().Duration("consistency", 0, "Also run readers against a writer for this long")
	rootCmd.AddCommand(loadtestCmd)
}
