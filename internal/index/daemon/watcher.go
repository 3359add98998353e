package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cardsync/cardsync/internal/index/schema"
	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new card file was created.
	OpCreate EventOp = iota
	// OpModify indicates a card file was written or renamed.
	OpModify
	// OpDelete indicates a card file was deleted.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a change to one card file.
type FileEvent struct {
	// Path is the path of the file that changed.
	Path string
	// Card identifies the card the file holds.
	Card schema.QualifiedID
	// Op is the operation that occurred.
	Op EventOp
}

// FileWatcher watches the directory of one card variant. Subdirectories
// are not watched.
type FileWatcher struct {
	variant schema.Variant
	dir     string

	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewFileWatcher creates a watcher for cards of variant v.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher(v schema.Variant) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		variant: v,
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Variant returns the card variant this watcher reports on.
func (fw *FileWatcher) Variant() schema.Variant {
	return fw.variant
}

// Start begins watching dir for card file events.
func (fw *FileWatcher) Start(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := fw.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch %s directory %s: %w", fw.variant.Tag(), dir, err)
	}
	fw.dir = abs

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and releases the underlying watcher.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications in the
// order the file system delivered them. It is closed by Stop.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits watcher errors.
// It is closed by Stop.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to a FileEvent. Files that are not
// card documents and chmod-only events are ignored.
//
// A rename is reported as a modification of the old name; the handler
// finds the file gone and removes the card. The new name, if it is inside
// the directory, arrives as its own create event.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	if filepath.Dir(event.Name) != fw.dir {
		return FileEvent{}, false
	}
	id, ok := schema.ParseFilename(filepath.Base(event.Name))
	if !ok {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Write), event.Has(fsnotify.Rename):
		op = OpModify
	default:
		return FileEvent{}, false
	}

	return FileEvent{
		Path: event.Name,
		Card: schema.QualifiedID{Variant: fw.variant, ID: id},
		Op:   op,
	}, true
}
