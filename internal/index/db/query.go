package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/cardsync/cardsync/internal/index/schema"
)

// Reserved filter keys.
const (
	// TagKey filters on tag membership. Each value names one tag.
	TagKey = "tag"
	// WhereKey carries a URL-encoded raw SQL predicate.
	WhereKey = "_where"
)

var (
	// ErrBadFilter is the class of filter errors caused by the caller.
	ErrBadFilter = errors.New("bad filter")
	// ErrUnknownColumn means a filter key names no column of the variant.
	ErrUnknownColumn = fmt.Errorf("%w: unknown column", ErrBadFilter)
	// ErrRawPredicateDisabled means _where was used on an index opened
	// without AllowRawPredicates.
	ErrRawPredicateDisabled = fmt.Errorf("%w: raw predicates are disabled", ErrBadFilter)
)

// Filter maps filter keys to their values, as decoded from a query string.
// Conditions are conjunctive.
type Filter map[string][]string

// ListIDs returns the ids of the cards of v matching f, in storage order.
//
// Tags that do not exist are dropped from the filter. If tags were asked
// for and none exist, the result is empty and the variant table is not
// scanned.
func (db *DB) ListIDs(ctx context.Context, v schema.Variant, f Filter) ([]uint64, error) {
	if err := checkVariant(v); err != nil {
		return nil, err
	}

	ids := []uint64{}
	err := db.View(ctx, func(tx *sql.Tx) error {
		query, args, ok, err := db.buildListQuery(ctx, tx, v, f)
		if err != nil || !ok {
			return err
		}

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return &schema.IndexError{Op: fmt.Sprintf("failed to list %s cards", v.Tag()), Err: err}
		}
		defer rows.Close()

		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return &schema.IndexError{Op: "failed to scan card id", Err: err}
			}
			ids = append(ids, uint64(id))
		}
		if err := rows.Err(); err != nil {
			return &schema.IndexError{Op: "error iterating card ids", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// buildListQuery translates f into SQL. ok is false when the result is
// known to be empty without running a query.
func (db *DB) buildListQuery(ctx context.Context, tx *sql.Tx, v schema.Variant, f Filter) (query string, args []any, ok bool, err error) {
	spec := v.Spec()
	var conditions []string

	for _, key := range slices.Sorted(maps.Keys(f)) {
		values := f[key]
		switch key {
		case TagKey:
			// resolved below
		case WhereKey:
			if !db.opts.AllowRawPredicates {
				return "", nil, false, ErrRawPredicateDisabled
			}
			for _, raw := range values {
				pred, err := url.QueryUnescape(raw)
				if err != nil {
					return "", nil, false, fmt.Errorf("%w: cannot decode %s: %v", ErrBadFilter, WhereKey, err)
				}
				if strings.TrimSpace(pred) == "" {
					continue
				}
				conditions = append(conditions, "("+pred+")")
			}
		default:
			col, found := spec.LookupColumn(key)
			if !found {
				return "", nil, false, fmt.Errorf("%w %q for %s", ErrUnknownColumn, key, v.Tag())
			}
			for _, raw := range values {
				conditions = append(conditions, quoteIdent(col.Name)+" IS ?")
				args = append(args, filterValue(col.Kind, raw))
			}
		}
	}

	if names := f[TagKey]; len(names) > 0 {
		tagIDs, err := resolveTags(ctx, tx, names)
		if err != nil {
			return "", nil, false, err
		}
		if len(tagIDs) == 0 {
			return "", nil, false, nil
		}
		for _, tagID := range tagIDs {
			conditions = append(conditions,
				"id IN (SELECT card_id FROM Taggings WHERE tag_id = ? AND card_type = ?)")
			args = append(args, tagID, int(v))
		}
	}

	query = "SELECT id FROM " + quoteIdent(spec.Table)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query, args, true, nil
}

// resolveTags looks up tag ids by name, case-insensitively. Unknown names
// are dropped.
func resolveTags(ctx context.Context, tx *sql.Tx, names []string) ([]int64, error) {
	var ids []int64
	for _, name := range names {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM Tags WHERE name = ?`, name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, &schema.IndexError{Op: fmt.Sprintf("failed to look up tag %q", name), Err: err}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// filterValue converts a raw filter value to the value bound for a column
// of the given kind. "null" matches NULL and a single-quoted value is taken
// literally.
func filterValue(kind schema.Kind, raw string) any {
	if raw == "null" {
		return nil
	}
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		return strings.ReplaceAll(raw[1:len(raw)-1], "''", "'")
	}

	switch kind {
	case schema.KindBool:
		switch strings.ToLower(raw) {
		case "true", "1":
			return 1
		case "false", "0":
			return 0
		}
	case schema.KindInt:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case schema.KindReal:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
	}
	return raw
}

// Count returns the number of indexed cards of v.
func (db *DB) Count(ctx context.Context, v schema.Variant) (int, error) {
	if err := checkVariant(v); err != nil {
		return 0, err
	}
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(v.Table())).Scan(&count)
	if err != nil {
		return 0, &schema.IndexError{Op: fmt.Sprintf("failed to count %s cards", v.Tag()), Err: err}
	}
	return count, nil
}

// Stats summarizes the index contents.
type Stats struct {
	Cards    map[schema.Variant]int
	Tags     int
	Taggings int
	Links    int
}

// Total returns the number of cards across all variants.
func (s Stats) Total() int {
	total := 0
	for _, n := range s.Cards {
		total += n
	}
	return total
}

// Stats counts the rows of every index table in one read transaction.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Cards: make(map[schema.Variant]int)}
	err := db.View(ctx, func(tx *sql.Tx) error {
		for _, v := range schema.Variants() {
			var n int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(v.Table())).Scan(&n); err != nil {
				return &schema.IndexError{Op: fmt.Sprintf("failed to count %s cards", v.Tag()), Err: err}
			}
			stats.Cards[v] = n
		}
		for table, dst := range map[string]*int{"Tags": &stats.Tags, "Taggings": &stats.Taggings, "Links": &stats.Links} {
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(dst); err != nil {
				return &schema.IndexError{Op: fmt.Sprintf("failed to count %s", table), Err: err}
			}
		}
		return nil
	})
	return stats, err
}

// LinksFrom returns the outgoing links of the card q.
func (db *DB) LinksFrom(ctx context.Context, q schema.QualifiedID) ([]schema.Link, error) {
	return db.scanLinks(ctx,
		`SELECT role, to_type, to_id FROM Links WHERE from_type = ? AND from_id = ?`,
		int(q.Variant), int64(q.ID))
}

// LinksTo returns the links that target the card q. The Target of each
// returned link is the source card.
func (db *DB) LinksTo(ctx context.Context, q schema.QualifiedID) ([]schema.Link, error) {
	return db.scanLinks(ctx,
		`SELECT role, from_type, from_id FROM Links WHERE to_type = ? AND to_id = ?`,
		int(q.Variant), int64(q.ID))
}

func (db *DB) scanLinks(ctx context.Context, query string, args ...any) ([]schema.Link, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &schema.IndexError{Op: "failed to query links", Err: err}
	}
	defer rows.Close()

	links := []schema.Link{}
	for rows.Next() {
		var l schema.Link
		var typ int
		var id int64
		if err := rows.Scan(&l.Role, &typ, &id); err != nil {
			return nil, &schema.IndexError{Op: "failed to scan link", Err: err}
		}
		l.Target = schema.QualifiedID{Variant: schema.Variant(typ), ID: uint64(id)}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, &schema.IndexError{Op: "error iterating links", Err: err}
	}
	return links, nil
}

// TagsOf returns the tag names of the card q, sorted case-insensitively.
func (db *DB) TagsOf(ctx context.Context, q schema.QualifiedID) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT t.name FROM Tags t
	JOIN Taggings g ON g.tag_id = t.id
	WHERE g.card_type = ? AND g.card_id = ?
	ORDER BY t.name
	`, int(q.Variant), int64(q.ID))
	if err != nil {
		return nil, &schema.IndexError{Op: "failed to query tags", Err: err}
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &schema.IndexError{Op: "failed to scan tag", Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &schema.IndexError{Op: "error iterating tags", Err: err}
	}
	return names, nil
}
