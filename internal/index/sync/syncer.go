package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cardsync/cardsync/internal/index/db"
	"github.com/cardsync/cardsync/internal/index/schema"
)

// syncer implements the Syncer interface.
type syncer struct {
	db     *db.DB
	root   string
	logger *log.Logger
}

// New creates a Syncer that indexes the card store under root.
//
// If logger is nil, a default logger writing to stderr is used.
func New(database *db.DB, root string, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		db:     database,
		root:   root,
		logger: logger,
	}
}

// SyncCard implements Syncer.SyncCard.
func (s *syncer) SyncCard(ctx context.Context, q schema.QualifiedID) error {
	card, err := schema.ReadCard(s.root, q.Variant, q.ID)
	if err != nil {
		return err
	}

	err = s.db.Update(ctx, func(tx *db.Tx) error {
		if err := tx.RemoveCard(ctx, q, false); err != nil {
			return err
		}
		return writeCard(ctx, tx, card)
	})
	if err != nil {
		return fmt.Errorf("failed to sync card %s: %w", q, err)
	}

	s.logger.Printf("Synced card: %s (%s)", q, card.Title)
	return nil
}

// DeleteCard implements Syncer.DeleteCard.
func (s *syncer) DeleteCard(ctx context.Context, q schema.QualifiedID) error {
	err := s.db.Update(ctx, func(tx *db.Tx) error {
		return tx.RemoveCard(ctx, q, true)
	})
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", q, err)
	}

	s.logger.Printf("Deleted card: %s", q)
	return nil
}

// FullSync implements Syncer.FullSync.
func (s *syncer) FullSync(ctx context.Context, v schema.Variant) (Stats, error) {
	start := time.Now()
	stats := Stats{Variant: v}

	ids, err := schema.ListCardIDs(s.root, v)
	if err != nil {
		return stats, err
	}

	err = s.db.Update(ctx, func(tx *db.Tx) error {
		if err := tx.ClearVariant(ctx, v); err != nil {
			return err
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			q := schema.QualifiedID{Variant: v, ID: id}

			card, err := schema.ReadCard(s.root, v, id)
			if err != nil {
				s.logger.Printf("WARNING: Failed to load card %s: %v", q, err)
				stats.Failed++
				continue
			}

			if err := tx.Savepoint(ctx, func() error { return writeCard(ctx, tx, card) }); err != nil {
				s.logger.Printf("WARNING: Failed to index card %s: %v", q, err)
				stats.Failed++
				continue
			}
			stats.Indexed++
		}
		return nil
	})
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, fmt.Errorf("failed to sync %s cards: %w", v.Tag(), err)
	}

	s.logger.Printf("Full sync of %s complete: indexed=%d failed=%d (%s)",
		v.Tag(), stats.Indexed, stats.Failed, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// Rebuild implements Syncer.Rebuild.
func (s *syncer) Rebuild(ctx context.Context) ([]Stats, error) {
	s.logger.Printf("Rebuilding index %s from %s", s.db.Path(), s.root)

	lock, err := s.db.LockRebuild()
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	defer lock.Release()

	if err := s.db.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	all := make([]Stats, 0, len(schema.Variants()))
	for _, v := range schema.Variants() {
		stats, err := s.FullSync(ctx, v)
		if err != nil {
			return all, err
		}
		all = append(all, stats)
	}
	return all, nil
}

// writeCard adds the card's row, links and tags.
func writeCard(ctx context.Context, tx *db.Tx, card *schema.Card) error {
	if err := tx.InsertCard(ctx, card); err != nil {
		return err
	}
	if err := tx.WriteLinks(ctx, card); err != nil {
		return err
	}
	return tx.WriteTags(ctx, card)
}
