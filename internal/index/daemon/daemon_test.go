package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/cardsync/cardsync/internal/index/db"
	"github.com/cardsync/cardsync/internal/index/schema"
	indexsync "github.com/cardsync/cardsync/internal/index/sync"
	"github.com/fsnotify/fsnotify"
)

type testEnv struct {
	db      *db.DB
	root    string
	reports *ReportQueue
	daemon  *Daemon
}

func setupDaemon(t *testing.T) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Open(filepath.Join(tmpDir, "index.db"), db.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	root := filepath.Join(tmpDir, "cards")
	quiet := log.New(io.Discard, "", 0)
	reports := NewReportQueue()

	config := DefaultConfig()
	config.Logger = quiet
	d, err := NewWithConfig(indexsync.New(database, root, quiet), root, reports, config)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	return &testEnv{db: database, root: root, reports: reports, daemon: d}
}

func writeCard(t *testing.T, root string, v schema.Variant, id uint64, title string, extra map[string]any) string {
	t.Helper()
	doc := map[string]any{
		"Title":    title,
		"Created":  "2024-01-01T00:00:00Z",
		"Modified": "2024-01-01T00:00:00Z",
	}
	for k, val := range extra {
		doc[k] = val
	}
	if err := schema.WriteCard(root, v, id, doc); err != nil {
		t.Fatalf("failed to write card: %v", err)
	}
	return schema.CardPath(root, v, id)
}

func listTasks(t *testing.T, database *db.DB) []uint64 {
	t.Helper()
	ids, err := database.ListIDs(context.Background(), schema.Task, nil)
	if err != nil {
		t.Fatalf("ListIDs failed: %v", err)
	}
	return ids
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew(t *testing.T) {
	if _, err := New(nil, "cards", nil); err == nil {
		t.Error("New with nil syncer should fail")
	}

	env := setupDaemon(t)
	if _, err := New(indexsync.New(env.db, env.root, nil), "", nil); err == nil {
		t.Error("New with empty root should fail")
	}
	if len(env.daemon.config.Variants) != len(schema.Variants()) {
		t.Errorf("default variants = %v", env.daemon.config.Variants)
	}
}

func TestHandleEvent_CreateModifyDelete(t *testing.T) {
	env := setupDaemon(t)
	ctx := context.Background()
	if err := env.db.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	task := schema.QualifiedID{Variant: schema.Task, ID: 42}
	before, _ := env.db.Count(ctx, schema.Task)

	path := writeCard(t, env.root, schema.Task, 42, "Plan", map[string]any{
		"Tags": []any{"urgent"}, "Links": []any{"project/1"},
	})
	if !env.daemon.HandleEvent(ctx, FileEvent{Path: path, Card: task, Op: OpCreate}) {
		t.Fatal("create was not applied")
	}

	if !slices.Contains(listTasks(t, env.db), 42) {
		t.Error("task 42 missing after create")
	}
	if after, _ := env.db.Count(ctx, schema.Task); after != before+1 {
		t.Errorf("Count = %d, want %d", after, before+1)
	}

	// A second create for the same file does not duplicate tags or links.
	env.daemon.HandleEvent(ctx, FileEvent{Path: path, Card: task, Op: OpCreate})
	stats, _ := env.db.Stats(ctx)
	if stats.Taggings != 1 || stats.Links != 1 {
		t.Errorf("after repeated create: taggings=%d links=%d", stats.Taggings, stats.Links)
	}

	writeCard(t, env.root, schema.Task, 42, "Plan v2", map[string]any{"Tags": []any{"later"}})
	env.daemon.HandleEvent(ctx, FileEvent{Path: path, Card: task, Op: OpModify})
	if tags, _ := env.db.TagsOf(ctx, task); len(tags) != 1 || tags[0] != "later" {
		t.Errorf("tags after modify = %v", tags)
	}

	// Another card links to task/42.
	notePath := writeCard(t, env.root, schema.Note, 1, "ref", map[string]any{"Text": "x", "Links": []any{"task/42"}})
	env.daemon.HandleEvent(ctx, FileEvent{Path: notePath, Card: schema.QualifiedID{Variant: schema.Note, ID: 1}, Op: OpCreate})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !env.daemon.HandleEvent(ctx, FileEvent{Path: path, Card: task, Op: OpDelete}) {
		t.Fatal("delete was not applied")
	}

	if slices.Contains(listTasks(t, env.db), 42) {
		t.Error("task 42 still listed after delete")
	}
	var refs int
	err := env.db.RawDB().QueryRow(`
		SELECT (SELECT COUNT(*) FROM Taggings WHERE card_type = ? AND card_id = 42)
		     + (SELECT COUNT(*) FROM Links WHERE (from_type = ? AND from_id = 42) OR (to_type = ? AND to_id = 42))`,
		int(schema.Task), int(schema.Task), int(schema.Task)).Scan(&refs)
	if err != nil {
		t.Fatal(err)
	}
	if refs != 0 {
		t.Errorf("%d taggings/links still reference task/42", refs)
	}

	ops := []EventOp{}
	for env.reports.Len() > 0 {
		r, _ := env.reports.Pop(ctx)
		ops = append(ops, r.Op)
	}
	want := []EventOp{OpCreate, OpCreate, OpModify, OpCreate, OpDelete}
	if !slices.Equal(ops, want) {
		t.Errorf("reports = %v, want %v", ops, want)
	}
}

func TestHandleEvent_MissingFileIsDelete(t *testing.T) {
	env := setupDaemon(t)
	ctx := context.Background()
	if err := env.db.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	task := schema.QualifiedID{Variant: schema.Task, ID: 9}

	path := writeCard(t, env.root, schema.Task, 9, "gone soon", nil)
	env.daemon.HandleEvent(ctx, FileEvent{Path: path, Card: task, Op: OpCreate})
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if !env.daemon.HandleEvent(ctx, FileEvent{Path: path, Card: task, Op: OpModify}) {
		t.Fatal("modify of missing file was not applied")
	}
	if len(listTasks(t, env.db)) != 0 {
		t.Error("card still indexed after its file vanished")
	}
}

func TestHandleEvent_InvalidFileDropped(t *testing.T) {
	env := setupDaemon(t)
	ctx := context.Background()
	if err := env.db.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	task := schema.QualifiedID{Variant: schema.Task, ID: 5}

	path := writeCard(t, env.root, schema.Task, 5, "valid", nil)
	env.daemon.HandleEvent(ctx, FileEvent{Path: path, Card: task, Op: OpCreate})

	if err := os.WriteFile(path, []byte(`not json`), 0644); err != nil {
		t.Fatal(err)
	}
	if env.daemon.HandleEvent(ctx, FileEvent{Path: path, Card: task, Op: OpModify}) {
		t.Error("invalid card should be dropped")
	}
	if ids := listTasks(t, env.db); len(ids) != 1 {
		t.Errorf("stale row should remain, ids = %v", ids)
	}
	if env.reports.Len() != 1 {
		t.Errorf("reports = %d, want only the create", env.reports.Len())
	}
}

func TestDaemon_FileWatching(t *testing.T) {
	env := setupDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writeCard(t, env.root, schema.Task, 1, "existing", nil)

	if err := env.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := env.daemon.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	waitFor(t, "initial rebuild", func() bool {
		return slices.Equal(listTasks(t, env.db), []uint64{1})
	})

	path := writeCard(t, env.root, schema.Task, 2, "watched", nil)
	waitFor(t, "create of task/2", func() bool {
		return slices.Contains(listTasks(t, env.db), 2)
	})

	writeCard(t, env.root, schema.Task, 2, "watched and renamed", nil)
	waitFor(t, "modify of task/2", func() bool {
		id, err := env.db.FindID(context.Background(), schema.Task, "renamed")
		return err == nil && id == 2
	})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "delete of task/2", func() bool {
		return !slices.Contains(listTasks(t, env.db), 2)
	})

	// Directories for every variant were created for watching.
	for _, v := range schema.Variants() {
		if _, err := os.Stat(schema.Dir(env.root, v)); err != nil {
			t.Errorf("%s directory missing: %v", v, err)
		}
	}

	if err := env.daemon.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := env.daemon.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestDaemon_Run(t *testing.T) {
	env := setupDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- env.daemon.Run(ctx) }()

	waitFor(t, "watchers", env.daemon.Running)
	writeCard(t, env.root, schema.Task, 8, "late", nil)

	waitFor(t, "report for task/8", func() bool { return env.reports.Len() > 0 })

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDaemon_VariantSubset(t *testing.T) {
	env := setupDaemon(t)
	env.daemon.config.Variants = []schema.Variant{schema.Note}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.daemon.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer env.daemon.Stop()

	if len(env.daemon.watchers) != 1 || env.daemon.watchers[0].Variant() != schema.Note {
		t.Errorf("watchers = %d", len(env.daemon.watchers))
	}
}

func TestDaemon_OnRebuild(t *testing.T) {
	env := setupDaemon(t)
	writeCard(t, env.root, schema.Task, 1, "one", nil)
	writeCard(t, env.root, schema.Task, 2, "two", nil)

	var results []indexsync.Stats
	env.daemon.config.OnRebuild = func(r []indexsync.Stats) { results = r }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.daemon.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer env.daemon.Stop()

	if len(results) != len(schema.Variants()) {
		t.Fatalf("OnRebuild got %d results, want %d", len(results), len(schema.Variants()))
	}
	for _, st := range results {
		want := 0
		if st.Variant == schema.Task {
			want = 2
		}
		if st.Indexed != want || st.Failed != 0 {
			t.Errorf("%s: indexed %d failed %d, want %d/0", st.Variant, st.Indexed, st.Failed, want)
		}
	}

	// With SkipRebuild the hook is not called.
	env2 := setupDaemon(t)
	env2.daemon.config.SkipRebuild = true
	env2.daemon.config.OnRebuild = func([]indexsync.Stats) { t.Error("OnRebuild called with SkipRebuild") }
	if err := env2.db.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if err := env2.daemon.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer env2.daemon.Stop()
}

func TestDaemon_CardWrittenDuringRebuild(t *testing.T) {
	env := setupDaemon(t)
	writeCard(t, env.root, schema.Task, 1, "before", nil)

	// Every directory has been listed by the time OnRebuild runs.
	env.daemon.config.OnRebuild = func([]indexsync.Stats) {
		writeCard(t, env.root, schema.Task, 2, "during", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.daemon.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer env.daemon.Stop()

	waitFor(t, "task/2 written during rebuild", func() bool {
		return slices.Equal(listTasks(t, env.db), []uint64{1, 2})
	})
}

func TestDaemon_ResyncOnOverflow(t *testing.T) {
	env := setupDaemon(t)
	env.daemon.config.Variants = []schema.Variant{schema.Task}

	resynced := make(chan indexsync.Stats, 1)
	env.daemon.config.OnResync = func(st indexsync.Stats) { resynced <- st }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.daemon.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer env.daemon.Stop()

	writeCard(t, env.root, schema.Task, 1, "one", nil)
	writeCard(t, env.root, schema.Task, 2, "two", nil)
	env.daemon.watchers[0].errors <- fsnotify.ErrEventOverflow

	select {
	case st := <-resynced:
		if st.Variant != schema.Task || st.Indexed != 2 {
			t.Errorf("resync stats = %+v, want 2 tasks indexed", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no resync after overflow")
	}
	if got := listTasks(t, env.db); !slices.Equal(got, []uint64{1, 2}) {
		t.Errorf("tasks after resync = %v", got)
	}
}

func TestDaemon_StrayZeroPaddedFile(t *testing.T) {
	env := setupDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writeCard(t, env.root, schema.Task, 42, "answer", nil)
	if err := env.daemon.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer env.daemon.Stop()

	stray := filepath.Join(schema.Dir(env.root, schema.Task), "042.json")
	if err := os.WriteFile(stray, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(stray); err != nil {
		t.Fatal(err)
	}

	// A real event after the stray ones marks when they have been handled.
	writeCard(t, env.root, schema.Task, 43, "marker", nil)
	waitFor(t, "marker task/43", func() bool {
		return slices.Contains(listTasks(t, env.db), 43)
	})
	if got := listTasks(t, env.db); !slices.Equal(got, []uint64{42, 43}) {
		t.Errorf("tasks = %v, want [42 43]", got)
	}
}
