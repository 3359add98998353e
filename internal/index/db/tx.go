package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cardsync/cardsync/internal/index/schema"
)

// Tx is one write transaction against the index.
//
// InsertCard, WriteLinks and WriteTags are additive. Callers replacing a
// card must RemoveCard first.
type Tx struct {
	tx *sql.Tx
	sp int
}

// Update runs fn inside an IMMEDIATE transaction on a pooled connection.
// The transaction commits if fn returns nil and rolls back otherwise.
func (db *DB) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &schema.IndexError{Op: "failed to begin transaction", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &schema.IndexError{Op: "failed to commit transaction", Err: err}
	}
	return nil
}

// View runs fn inside a read-only transaction.
func (db *DB) View(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &schema.IndexError{Op: "failed to begin read transaction", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return &schema.IndexError{Op: "failed to end read transaction", Err: err}
	}
	return nil
}

// Savepoint runs fn inside a nested savepoint. If fn fails, only the work
// done since the savepoint is rolled back and the transaction stays usable.
func (tx *Tx) Savepoint(ctx context.Context, fn func() error) error {
	tx.sp++
	name := fmt.Sprintf("card_%d", tx.sp)

	if _, err := tx.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return &schema.IndexError{Op: "failed to create savepoint", Err: err}
	}

	if err := fn(); err != nil {
		if _, rbErr := tx.tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return &schema.IndexError{Op: "failed to roll back savepoint", Err: rbErr}
		}
		if _, relErr := tx.tx.ExecContext(ctx, "RELEASE "+name); relErr != nil {
			return &schema.IndexError{Op: "failed to release savepoint", Err: relErr}
		}
		return err
	}

	if _, err := tx.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return &schema.IndexError{Op: "failed to release savepoint", Err: err}
	}
	return nil
}

// InsertCard upserts the card's row in its variant table.
func (tx *Tx) InsertCard(ctx context.Context, c *schema.Card) error {
	if err := checkVariant(c.Variant); err != nil {
		return err
	}
	if _, err := tx.tx.ExecContext(ctx, insertSQL(c.Variant), c.Values()...); err != nil {
		return &schema.IndexError{Op: fmt.Sprintf("failed to insert card %s", c.QualifiedID()), Err: err}
	}
	return nil
}

// WriteLinks inserts one Links row per link descriptor of c. It fails on
// the first malformed descriptor.
func (tx *Tx) WriteLinks(ctx context.Context, c *schema.Card) error {
	links, err := c.ParsedLinks()
	if err != nil {
		return err
	}

	const query = `
	INSERT INTO Links (role, from_type, from_id, to_type, to_id)
	VALUES (?, ?, ?, ?, ?)
	`
	for _, l := range links {
		_, err := tx.tx.ExecContext(ctx, query,
			l.Role,
			int(c.Variant),
			int64(c.ID),
			int(l.Target.Variant),
			int64(l.Target.ID),
		)
		if err != nil {
			return &schema.IndexError{Op: fmt.Sprintf("failed to insert link %s -> %s", c.QualifiedID(), l), Err: err}
		}
	}
	return nil
}

// WriteTags inserts one Taggings row per distinct tag of c, creating tags
// on first use. Tag identity is the NOCASE collation of Tags.name, which
// folds ASCII letters only, and the first spelling seen is the one stored.
// Empty names are skipped.
func (tx *Tx) WriteTags(ctx context.Context, c *schema.Card) error {
	seen := make(map[int64]bool, len(c.Tags))
	for _, name := range c.Tags {
		if name == "" {
			continue
		}

		tagID, err := tx.ensureTag(ctx, name)
		if err != nil {
			return err
		}
		if seen[tagID] {
			continue
		}
		seen[tagID] = true

		_, err = tx.tx.ExecContext(ctx,
			`INSERT INTO Taggings (tag_id, card_type, card_id) VALUES (?, ?, ?)`,
			tagID, int(c.Variant), int64(c.ID))
		if err != nil {
			return &schema.IndexError{Op: fmt.Sprintf("failed to tag %s with %q", c.QualifiedID(), name), Err: err}
		}
	}
	return nil
}

func (tx *Tx) ensureTag(ctx context.Context, name string) (int64, error) {
	_, err := tx.tx.ExecContext(ctx, `INSERT INTO Tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return 0, &schema.IndexError{Op: fmt.Sprintf("failed to create tag %q", name), Err: err}
	}

	var id int64
	if err := tx.tx.QueryRowContext(ctx, `SELECT id FROM Tags WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, &schema.IndexError{Op: fmt.Sprintf("failed to look up tag %q", name), Err: err}
	}
	return id, nil
}

// RemoveCard deletes the card's row, its taggings and its outgoing links.
// With includeIncoming it also deletes links that target the card.
// Removing a card that is not indexed is not an error.
func (tx *Tx) RemoveCard(ctx context.Context, q schema.QualifiedID, includeIncoming bool) error {
	if err := checkVariant(q.Variant); err != nil {
		return err
	}

	typ, id := int(q.Variant), int64(q.ID)
	stmts := []stmt{
		{"DELETE FROM " + quoteIdent(q.Variant.Table()) + " WHERE id = ?", []any{id}},
		{"DELETE FROM Taggings WHERE card_type = ? AND card_id = ?", []any{typ, id}},
		{"DELETE FROM Links WHERE from_type = ? AND from_id = ?", []any{typ, id}},
	}
	if includeIncoming {
		stmts = append(stmts, stmt{"DELETE FROM Links WHERE to_type = ? AND to_id = ?", []any{typ, id}})
	}

	for _, s := range stmts {
		if _, err := tx.tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return &schema.IndexError{Op: fmt.Sprintf("failed to remove card %s", q), Err: err}
		}
	}
	return nil
}

// ClearVariant deletes every row of v's table along with the taggings and
// outgoing links of its cards. Links from other variants into v are kept.
func (tx *Tx) ClearVariant(ctx context.Context, v schema.Variant) error {
	if err := checkVariant(v); err != nil {
		return err
	}
	for _, s := range []stmt{
		{"DELETE FROM " + quoteIdent(v.Table()), nil},
		{"DELETE FROM Taggings WHERE card_type = ?", []any{int(v)}},
		{"DELETE FROM Links WHERE from_type = ?", []any{int(v)}},
	} {
		if _, err := tx.tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return &schema.IndexError{Op: fmt.Sprintf("failed to clear %s cards", v.Tag()), Err: err}
		}
	}
	return nil
}

type stmt struct {
	query string
	args  []any
}

var insertStatements = func() map[schema.Variant]string {
	stmts := make(map[schema.Variant]string)
	for _, v := range schema.Variants() {
		names := v.Spec().ColumnNames()
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = quoteIdent(n)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
		stmts[v] = fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
			quoteIdent(v.Table()), strings.Join(quoted, ", "), placeholders)
	}
	return stmts
}()

func insertSQL(v schema.Variant) string {
	return insertStatements[v]
}
