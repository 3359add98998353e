// Package daemon keeps the card index current while the process runs.
//
// The daemon:
//  1. Rebuilds the index from the card store at startup
//  2. Runs one FileWatcher and one goroutine per card variant
//  3. Applies each file event in its own transaction, in delivery order
//  4. Pushes a Report for every index change onto an unbounded queue
//  5. Handles graceful shutdown
//
// # Event Handling
//
//	create, modify  →  remove row, tags, outgoing links; load; reinsert
//	delete          →  remove row, tags, outgoing and incoming links
//
// A create or modify whose file has disappeared by the time it is handled
// is treated as a delete. Events of different variants run concurrently
// and are not ordered relative to each other.
//
// Links held by other cards are derived from those cards' files only, so
// a card that is deleted and later recreated does not get its incoming
// links back until the linking cards are touched or the index is rebuilt.
//
// # Usage
//
//	reports := daemon.NewReportQueue()
//	d, err := daemon.New(syncer, "cards", reports)
//	if err != nil {
//	    return err
//	}
//	go reports.Consume(ctx, func(r daemon.Report) {
//	    log.Printf("%s %s", r.Op, r.Card)
//	})
//	return d.Run(ctx)
package daemon
