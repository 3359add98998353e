// Package catalog is the read side of the card index: the operations the
// HTTP shell and the CLI expose.
package catalog

import (
	"context"
	"fmt"

	"github.com/cardsync/cardsync/internal/index/db"
	"github.com/cardsync/cardsync/internal/index/schema"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Catalog answers read requests from the index and the card store.
type Catalog struct {
	db   *db.DB
	root string
}

// New creates a Catalog over an opened index and the card root it mirrors.
func New(database *db.DB, root string) *Catalog {
	return &Catalog{db: database, root: root}
}

// Root returns the card store directory.
func (c *Catalog) Root() string {
	return c.root
}

// List returns the ids of the cards of v that match f.
func (c *Catalog) List(ctx context.Context, v schema.Variant, f db.Filter) ([]uint64, error) {
	return c.db.ListIDs(ctx, v, f)
}

// Count returns the number of indexed cards of v.
func (c *Catalog) Count(ctx context.Context, v schema.Variant) (int, error) {
	return c.db.Count(ctx, v)
}

// Get resolves nameOrID and returns the card file exactly as it is on
// disk. The index is only used for the lookup.
func (c *Catalog) Get(ctx context.Context, v schema.Variant, nameOrID string) ([]byte, error) {
	id, err := c.db.FindID(ctx, v, nameOrID)
	if err != nil {
		return nil, err
	}
	return schema.ReadRaw(c.root, v, id)
}

// Resolve parses a qualified id such as "book/17".
func Resolve(qualified string) (schema.QualifiedID, error) {
	return schema.ParseQualifiedID(qualified)
}

// Select resolves nameOrID and evaluates a JSONPath expression such as
// "$.Tags[*]" against the card document.
func (c *Catalog) Select(ctx context.Context, v schema.Variant, nameOrID, path string) ([]any, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", path, err)
	}

	raw, err := c.Get(ctx, v, nameOrID)
	if err != nil {
		return nil, err
	}
	doc, err := oj.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %s/%s: %v", schema.ErrCardFormat, v.Tag(), nameOrID, err)
	}
	return x.Get(doc), nil
}

// Entry is a card's index view: its tags plus the links in both
// directions.
type Entry struct {
	Card     schema.QualifiedID
	Tags     []string
	Outgoing []schema.Link
	// Incoming holds links that other cards hold to this one. The Target
	// of each is the linking card.
	Incoming []schema.Link
}

// Describe returns the index view of the card nameOrID.
func (c *Catalog) Describe(ctx context.Context, v schema.Variant, nameOrID string) (*Entry, error) {
	id, err := c.db.FindID(ctx, v, nameOrID)
	if err != nil {
		return nil, err
	}
	q := schema.QualifiedID{Variant: v, ID: id}

	e := &Entry{Card: q}
	if e.Tags, err = c.db.TagsOf(ctx, q); err != nil {
		return nil, err
	}
	if e.Outgoing, err = c.db.LinksFrom(ctx, q); err != nil {
		return nil, err
	}
	if e.Incoming, err = c.db.LinksTo(ctx, q); err != nil {
		return nil, err
	}
	return e, nil
}

// Stats summarizes the index.
func (c *Catalog) Stats(ctx context.Context) (db.Stats, error) {
	return c.db.Stats(ctx)
}
