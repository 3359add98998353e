package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/cardsync/cardsync/internal/index/catalog"
	"github.com/cardsync/cardsync/internal/index/db"
	"github.com/cardsync/cardsync/internal/index/schema"
	"github.com/cardsync/cardsync/internal/ui"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list <type>",
	GroupID: "query",
	Short:   "List the ids of matching cards",
	Long: `List the ids of the cards of one type, one per line.

Filters are ANDed together. Column filters compare for equality; the value
"null" matches missing values. Tags match case-insensitively, and a tag that
no card carries matches nothing.

Example usage:
  cardsync list book --tag fiction --filter year=1999
  cardsync list task --where "completed IS NULL AND title LIKE 'Fix%'"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		v := mustParseType(args[0])
		filters, _ := cmd.Flags().GetStringArray("filter")
		tags, _ := cmd.Flags().GetStringArray("tag")
		where, _ := cmd.Flags().GetString("where")

		f := db.Filter{}
		for _, kv := range filters {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				fatalf("filter %q is not key=value", kv)
			}
			f[key] = append(f[key], value)
		}
		if len(tags) > 0 {
			f[db.TagKey] = tags
		}
		if where != "" {
			f[db.WhereKey] = []string{url.QueryEscape(where)}
		}

		cfg := mustLoadConfig()
		database := mustOpenIndex(cfg)
		defer database.Close()

		ids, err := catalog.New(database, cfg.CardsDir).List(context.Background(), v, f)
		if err != nil {
			fatalf("%v", err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

var countCmd = &cobra.Command{
	Use:     "count <type>",
	GroupID: "query",
	Short:   "Count indexed cards of a type",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		v := mustParseType(args[0])

		cfg := mustLoadConfig()
		database := mustOpenIndex(cfg)
		defer database.Close()

		n, err := catalog.New(database, cfg.CardsDir).Count(context.Background(), v)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(n)
	},
}

var getCmd = &cobra.Command{
	Use:     "get <type> <name-or-id>",
	GroupID: "query",
	Short:   "Print a card document",
	Long: `Print a card document exactly as it is stored on disk.

A token made of digits is taken as the card id. Anything else is matched as
a substring of card titles and must match exactly one card.

Example usage:
  cardsync get book 17
  cardsync get book dune --path '$.Tags[*]'
  cardsync get book dune --links`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		v := mustParseType(args[0])
		path, _ := cmd.Flags().GetString("path")
		links, _ := cmd.Flags().GetBool("links")

		cfg := mustLoadConfig()
		database := mustOpenIndex(cfg)
		defer database.Close()

		c := catalog.New(database, cfg.CardsDir)
		ctx := context.Background()

		switch {
		case links:
			e, err := c.Describe(ctx, v, args[1])
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s %s\n", ui.RenderAccent("●"), e.Card)
			fmt.Printf("   Tags: %s\n", strings.Join(e.Tags, ", "))
			for _, l := range e.Outgoing {
				fmt.Printf("   %s %s\n", ui.RenderMuted("→"), l)
			}
			for _, l := range e.Incoming {
				fmt.Printf("   %s %s\n", ui.RenderMuted("←"), l)
			}
		case path != "":
			results, err := c.Select(ctx, v, args[1], path)
			if err != nil {
				fatalf("%v", err)
			}
			for _, r := range results {
				fmt.Println(r)
			}
		default:
			raw, err := c.Get(ctx, v, args[1])
			if err != nil {
				fatalf("%v", err)
			}
			_, _ = os.Stdout.Write(raw)
		}
	},
}

var resolveCmd = &cobra.Command{
	Use:     "resolve <type/id>",
	GroupID: "query",
	Short:   "Check a qualified card id",
	Long: `Parse a qualified card id such as book/17 and print the card file it
names. Fails on unknown types and malformed ids.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		q, err := catalog.Resolve(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		cfg := mustLoadConfig()
		fmt.Printf("%s %s %s\n", q, ui.RenderMuted("type="+strconv.Itoa(int(q.Variant))),
			schema.CardPath(cfg.CardsDir, q.Variant, q.ID))
	},
}

func init() {
	listCmd.Flags().StringArrayP("filter", "f", nil, "Column filter as key=value (repeatable)")
	listCmd.Flags().StringArray("tag", nil, "Require this tag (repeatable)")
	listCmd.Flags().String("where", "", "Raw SQL predicate (if allow_raw_where is set)")

	getCmd.Flags().String("path", "", "Print the values selected by this JSONPath")
	getCmd.Flags().Bool("links", false, "Print the card's tags and links from the index")

	rootCmd.AddCommand(listCmd, countCmd, getCmd, resolveCmd)
}
