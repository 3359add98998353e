package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/cardsync/cardsync/internal/index/schema"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FindID resolves a name-or-id token to a card id of variant v.
//
// A plain non-negative integer is returned as is, without checking that
// the card exists. Anything else is matched as a case-insensitive
// substring of the title. No match yields a not-found LookupError and more
// than one match an ambiguous one.
func (db *DB) FindID(ctx context.Context, v schema.Variant, token string) (uint64, error) {
	if err := checkVariant(v); err != nil {
		return 0, err
	}
	if id, err := schema.ParseID(token); err == nil {
		return id, nil
	}

	query := fmt.Sprintf(`SELECT id FROM %s WHERE title LIKE '%%' || ? || '%%' ESCAPE '\' LIMIT 2`,
		quoteIdent(v.Table()))
	rows, err := db.conn.QueryContext(ctx, query, likeEscaper.Replace(token))
	if err != nil {
		return 0, &schema.IndexError{Op: fmt.Sprintf("failed to look up %s %q", v.Tag(), token), Err: err}
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, &schema.IndexError{Op: "failed to scan card id", Err: err}
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return 0, &schema.IndexError{Op: "error iterating card ids", Err: err}
	}

	switch len(ids) {
	case 0:
		return 0, &schema.LookupError{Variant: v, Token: token}
	case 1:
		return ids[0], nil
	default:
		return 0, &schema.LookupError{Variant: v, Token: token, Ambiguous: true}
	}
}
