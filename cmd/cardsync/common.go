package main

import (
	"fmt"
	"os"

	"github.com/cardsync/cardsync/internal/config"
	"github.com/cardsync/cardsync/internal/index/db"
	"github.com/cardsync/cardsync/internal/index/schema"
	"github.com/cardsync/cardsync/internal/ui"
	"github.com/spf13/viper"
)

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func mustLoadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatalf("%v", err)
	}
	if viper.ConfigFileUsed() != "" && cfg.Log.Verbose {
		fmt.Fprintf(os.Stderr, "%s\n", ui.RenderMuted("Using config "+viper.ConfigFileUsed()))
	}
	return cfg
}

func mustOpenIndex(cfg config.Config) *db.DB {
	opts := db.DefaultOptions()
	opts.AllowRawPredicates = cfg.AllowRawWhere
	database, err := db.Open(cfg.DBPath, opts)
	if err != nil {
		fatalf("opening index: %v", err)
	}
	return database
}

func mustParseType(tag string) schema.Variant {
	v, err := schema.ParseVariant(tag)
	if err != nil {
		fatalf("%v", err)
	}
	return v
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
