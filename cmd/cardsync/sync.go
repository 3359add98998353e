package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cardsync/cardsync/internal/config"
	indexsync "github.com/cardsync/cardsync/internal/index/sync"
	"github.com/cardsync/cardsync/internal/ui"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "index",
	Short:   "Rebuild the index from the card store",
	Long: `Rebuild the index from the card store and exit.

Without --type every table is dropped and recreated and every card type is
loaded. With --type only that type's rows, taggings and outgoing links are
replaced. Cards that fail to load are logged and skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		typ, _ := cmd.Flags().GetString("type")

		logs := config.NewLogs(cfg.Log)
		defer logs.Close()

		database := mustOpenIndex(cfg)
		defer database.Close()

		syncer := indexsync.New(database, cfg.CardsDir, logs.Logger("sync"))
		ctx := context.Background()

		fmt.Printf("%s Syncing from %s...\n", ui.RenderAccent("🔄"), cfg.CardsDir)
		start := time.Now()

		var results []indexsync.Stats
		if typ == "" {
			all, err := syncer.Rebuild(ctx)
			if err != nil {
				fatalf("during sync: %v", err)
			}
			results = all
		} else {
			if err := database.InitSchema(ctx); err != nil {
				fatalf("initializing schema: %v", err)
			}
			st, err := syncer.FullSync(ctx, mustParseType(typ))
			if err != nil {
				fatalf("during sync: %v", err)
			}
			results = []indexsync.Stats{st}
		}

		printSyncResults(results)
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Index: %s\n", cfg.DBPath)
	},
}

// printSyncResults prints one row per card type that had any files.
func printSyncResults(results []indexsync.Stats) {
	rows := make([][]string, 0, len(results))
	failed := 0
	for _, st := range results {
		failed += st.Failed
		if st.Indexed == 0 && st.Failed == 0 {
			continue
		}
		rows = append(rows, []string{
			st.Variant.Tag(),
			strconv.Itoa(st.Indexed),
			strconv.Itoa(st.Failed),
			st.Duration.Round(time.Microsecond).String(),
		})
	}
	if len(rows) == 0 {
		fmt.Printf("%s No cards found\n", ui.RenderWarn("⚠"))
		return
	}
	fmt.Print(ui.Table([]string{"TYPE", "INDEXED", "FAILED", "TIME"}, rows))
	if failed > 0 {
		fmt.Printf("%s %d cards could not be loaded (see log)\n", ui.RenderWarn("⚠"), failed)
	}
}

func init() {
	syncCmd.Flags().StringP("type", "t", "", "Sync only this card type")
	rootCmd.AddCommand(syncCmd)
}
