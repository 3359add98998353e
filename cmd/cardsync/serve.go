package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cardsync/cardsync/internal/config"
	"github.com/cardsync/cardsync/internal/index/catalog"
	"github.com/cardsync/cardsync/internal/index/daemon"
	"github.com/cardsync/cardsync/internal/index/dashboard"
	indexsync "github.com/cardsync/cardsync/internal/index/sync"
	"github.com/cardsync/cardsync/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "index",
	Short:   "Rebuild the index, watch the card store and serve queries",
	Long: `Rebuild the index from the card store, then keep it current and serve it.

At startup every index table is dropped and recreated, and every card type is
bulk-loaded from disk. A failed rebuild is fatal. After that one watcher per
card type applies file creates, modifications and deletions to the index. A
watcher that drops events reloads its card type and announces the result as
a sync_complete message on the WebSocket stream.

HTTP routes:
  GET /{type}               card ids, filtered by query parameters
  GET /{type}/count         number of indexed cards
  GET /{type}/{nameOrID}    card document, exactly as on disk
  GET /ws                   WebSocket stream of index changes
  GET /health               health check

Example usage:
  cardsync serve                  # Start on the configured port (default 8080)
  cardsync serve --port 9000      # Start on a custom port
  curl 'localhost:8080/book?tag=fiction&year=1999'`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		logs := config.NewLogs(cfg.Log)
		defer logs.Close()

		database := mustOpenIndex(cfg)
		defer database.Close()

		syncer := indexsync.New(database, cfg.CardsDir, logs.Logger("sync"))
		reports := daemon.NewReportQueue()

		server := dashboard.NewServer(&dashboard.Config{
			Port:    cfg.Dashboard.Port,
			Catalog: catalog.New(database, cfg.CardsDir),
			Logger:  logs.Logger("dashboard"),
		})
		handler := dashboard.NewHandler(server, nil)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		d, err := daemon.NewWithConfig(syncer, cfg.CardsDir, reports, &daemon.Config{
			Logger: logs.Logger("daemon"),
			OnRebuild: func(results []indexsync.Stats) {
				printSyncResults(results)
			},
			OnResync: func(st indexsync.Stats) {
				handler.OnSyncComplete(ctx, []indexsync.Stats{st})
			},
		})
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Rebuilding index %s from %s...\n", ui.RenderAccent("🔄"), cfg.DBPath, cfg.CardsDir)
		if err := d.Start(ctx); err != nil {
			fatalf("%v", err)
		}

		if err := server.Start(); err != nil {
			_ = d.Stop()
			fatalf("failed to start dashboard: %v", err)
		}

		consumed := make(chan struct{})
		go func() {
			defer close(consumed)
			handler.Consume(ctx, reports)
		}()

		fmt.Printf("%s Serving on http://%s\n", ui.RenderPass("✓"), server.GetAddr())
		fmt.Printf("   WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := d.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping watchers: %v\n", err)
		}
		reports.Close()
		<-consumed
		if err := server.Stop(); err != nil {
			fatalf("during shutdown: %v", err)
		}
		fmt.Println("Stopped")
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	_ = viper.BindPFlag("dashboard.port", serveCmd.Flags().Lookup("port"))

	rootCmd.AddCommand(serveCmd)
}
