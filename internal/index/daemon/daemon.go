package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cardsync/cardsync/internal/index/schema"
	indexsync "github.com/cardsync/cardsync/internal/index/sync"
	"github.com/fsnotify/fsnotify"
)

// Config holds configuration for the daemon.
type Config struct {
	// Variants limits watching to these card variants (nil = all).
	Variants []schema.Variant

	// SkipRebuild starts watching without the initial rebuild. Only useful
	// when the index is known to be current.
	SkipRebuild bool

	// OnRebuild receives the per-variant results of the startup rebuild.
	OnRebuild func([]indexsync.Stats)

	// OnResync receives the result of a variant resync after its watcher
	// lost events.
	OnResync func(indexsync.Stats)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon rebuilds the index at startup and then keeps it current with
// one watcher goroutine per card variant.
type Daemon struct {
	syncer  indexsync.Syncer
	root    string
	config  *Config
	reports *ReportQueue

	watchers []*FileWatcher

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a daemon that keeps syncer's index in step with the card
// store under root. Index changes are announced on reports, which may be
// nil when nobody listens.
func New(syncer indexsync.Syncer, root string, reports *ReportQueue) (*Daemon, error) {
	return NewWithConfig(syncer, root, reports, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer indexsync.Syncer, root string, reports *ReportQueue, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if len(config.Variants) == 0 {
		config.Variants = schema.Variants()
	}

	return &Daemon{
		syncer:  syncer,
		root:    root,
		config:  config,
		reports: reports,
	}, nil
}

// Start starts one watcher per variant, rebuilds the index and then
// begins applying file events. It returns once every watcher is running.
// A failed rebuild is returned as an error since a half-built index cannot
// be served.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("daemon already started")
	}

	d.config.Logger.Println("Starting daemon")
	d.ctx, d.cancel = context.WithCancel(ctx)

	// Watchers go up before the rebuild lists any directory. Events for
	// files written during the rebuild wait in the watcher and are applied
	// once it is done.
	for _, v := range d.config.Variants {
		fw, err := d.watch(v)
		if err != nil {
			d.abortStart()
			return err
		}
		d.watchers = append(d.watchers, fw)
	}

	if !d.config.SkipRebuild {
		results, err := d.syncer.Rebuild(ctx)
		if err != nil {
			d.abortStart()
			return fmt.Errorf("initial sync failed: %w", err)
		}
		if d.config.OnRebuild != nil {
			d.config.OnRebuild(results)
		}
	}

	for _, fw := range d.watchers {
		d.wg.Add(1)
		go d.runVariant(fw)
	}

	d.started = true
	d.config.Logger.Printf("Watching %d card directories under %s", len(d.watchers), d.root)
	return nil
}

func (d *Daemon) abortStart() {
	d.cancel()
	d.stopWatchers()
}

func (d *Daemon) watch(v schema.Variant) (*FileWatcher, error) {
	dir := schema.Dir(d.root, v)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", v.Tag(), err)
	}

	fw, err := NewFileWatcher(v)
	if err != nil {
		return nil, err
	}
	if err := fw.Start(dir); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return fw, nil
}

// Running reports whether the watchers are active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.config.Logger.Println("Shutdown signal received")
	return d.Stop()
}

// Stop gracefully shuts down the daemon. Events already delivered to a
// variant goroutine finish processing first.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false

	d.config.Logger.Println("Stopping daemon")
	d.cancel()
	d.wg.Wait()
	d.stopWatchers()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

func (d *Daemon) stopWatchers() {
	for _, fw := range d.watchers {
		if err := fw.Stop(); err != nil {
			d.config.Logger.Printf("Error closing %s watcher: %v", fw.Variant().Tag(), err)
		}
	}
	d.watchers = nil
}

// runVariant handles the events of one variant strictly in delivery order.
func (d *Daemon) runVariant(fw *FileWatcher) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-fw.Events():
			if !ok {
				return
			}
			d.HandleEvent(d.ctx, event)

		case err, ok := <-fw.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error (%s): %v", fw.Variant().Tag(), err)
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				if _, err := d.Resync(d.ctx, fw.Variant()); err != nil {
					d.config.Logger.Printf("Resync of %s failed: %v", fw.Variant().Tag(), err)
				}
			}
		}
	}
}

// Resync reloads every card of variant v with a full sync and hands the
// result to Config.OnResync. The daemon calls it when a watcher reports
// lost events, since any card of the variant may have changed unseen.
func (d *Daemon) Resync(ctx context.Context, v schema.Variant) (indexsync.Stats, error) {
	stats, err := d.syncer.FullSync(ctx, v)
	if err != nil {
		return stats, err
	}
	if d.config.OnResync != nil {
		d.config.OnResync(stats)
	}
	return stats, nil
}

// HandleEvent applies one file event to the index inside its own
// transaction and reports the change.
//
// Create and modify replace the card's row, tags and outgoing links. If
// the file is already gone, or the event is a delete, the card is removed
// along with incoming links. A card that fails to load is logged and the
// event dropped; whatever row it had stays until the file is fixed.
//
// It returns whether the index changed.
func (d *Daemon) HandleEvent(ctx context.Context, event FileEvent) bool {
	op := event.Op
	if op != OpDelete && fileGone(event.Path) {
		op = OpDelete
	}

	var err error
	if op != OpDelete {
		err = d.syncer.SyncCard(ctx, event.Card)
		if errors.Is(err, schema.ErrCardAccess) && fileGone(event.Path) {
			op = OpDelete
		}
	}
	if op == OpDelete {
		err = d.syncer.DeleteCard(ctx, event.Card)
	}
	if err != nil {
		d.config.Logger.Printf("Dropped %s event for %s: %v", event.Op, event.Card, err)
		return false
	}

	if d.reports != nil {
		d.reports.Push(Report{Card: event.Card, Op: op, At: time.Now()})
	}
	return true
}

func fileGone(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}
