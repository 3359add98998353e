package sync

import (
	"context"
	"time"

	"github.com/cardsync/cardsync/internal/index/schema"
)

// Syncer keeps the card index in sync with the card files on disk.
type Syncer interface {
	// SyncCard loads one card and replaces its index entry: the row, its
	// taggings and its outgoing links are removed and written again inside
	// one transaction. Links that other cards hold to it are kept.
	//
	// Returns the load error if the file cannot be read or parsed; the
	// index is left untouched in that case.
	SyncCard(ctx context.Context, q schema.QualifiedID) error

	// DeleteCard removes a card from the index together with its taggings
	// and both its outgoing and incoming links. Deleting a card that is not
	// indexed is not an error.
	DeleteCard(ctx context.Context, q schema.QualifiedID) error

	// FullSync replaces the index slice of one variant with the contents
	// of its directory, inside one transaction. Cards that fail to load or
	// index are logged, counted in Stats.Failed and skipped.
	FullSync(ctx context.Context, v schema.Variant) (Stats, error)

	// Rebuild drops and recreates every index table, then runs FullSync
	// for every variant. Any error means the index is unusable.
	//
	// The index rebuild lock is held from the drop until the last variant
	// is loaded, so a rebuild from another handle fails with
	// db.ErrIndexLocked instead of dropping tables mid-load.
	Rebuild(ctx context.Context) ([]Stats, error)
}

// Stats reports the outcome of a FullSync.
type Stats struct {
	Variant  schema.Variant
	Indexed  int
	Failed   int
	Duration time.Duration
}
