// Package sync drives the loader and the index writer to keep the SQLite
// index consistent with the card store.
//
// # Architecture
//
//	cards/
//	  ├── project/*.json  ─┐
//	  ├── task/*.json      ├─→ schema.ReadCard ─→ Syncer ─→ db.Tx
//	  └── .../*.json      ─┘
//
// # Usage
//
// At startup the whole index is rebuilt:
//
//	database, err := db.Open(".cardsync/index.db", db.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//
//	syncer := sync.New(database, "cards", nil)
//	if _, err := syncer.Rebuild(ctx); err != nil {
//	    return err // a half-built index cannot be served
//	}
//
// After that, single cards are kept current:
//
//	// A card file was created or changed
//	err := syncer.SyncCard(ctx, schema.QualifiedID{Variant: schema.Task, ID: 42})
//
//	// A card file was deleted
//	err := syncer.DeleteCard(ctx, schema.QualifiedID{Variant: schema.Task, ID: 42})
//
// # Error Handling
//
// A card that fails to load or to index is logged and skipped during a
// full sync; it never aborts the rest of the variant. Failures to begin or
// commit the variant's transaction are returned.
package sync
