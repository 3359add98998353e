// Package loadtest measures the card index under concurrent readers.
//
// A synthetic card store is written to disk, rebuilt into a fresh index,
// and then queried by many goroutines at once the way HTTP clients would:
// tag-filtered lists, name lookups and counts.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cardsync/cardsync/internal/index/db"
	"github.com/cardsync/cardsync/internal/index/schema"
	indexsync "github.com/cardsync/cardsync/internal/index/sync"
)

// CommonTag is carried by every generated task.
const CommonTag = "loadtest"

// TestStore is a populated card store plus its index.
type TestStore struct {
	DB     *db.DB
	Root   string
	Syncer indexsync.Syncer

	TaskIDs    []uint64
	ProjectIDs []uint64
	TotalCards int
	LinkPct    float64
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// CreateTestStore writes numTasks task cards under dir/cards and indexes
// them into dir/index.db.
//
// Tasks are grouped into projects of 100, tagged with CommonTag and
// "batch-N", and roughly linkPct of them link to an earlier task.
func CreateTestStore(dir string, numTasks int, linkPct float64) (*TestStore, error) {
	root := filepath.Join(dir, "cards")

	opts := db.DefaultOptions()
	opts.MaxOpenConns = 150
	database, err := db.Open(filepath.Join(dir, "index.db"), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ts := &TestStore{
		DB:         database,
		Root:       root,
		Syncer:     indexsync.New(database, root, log.New(io.Discard, "", 0)),
		TaskIDs:    make([]uint64, 0, numTasks),
		ProjectIDs: make([]uint64, 0, numTasks/100+1),
		LinkPct:    linkPct,
	}

	for p := 0; p*100 < numTasks; p++ {
		id := uint64(p + 1)
		if err := schema.WriteCard(root, schema.Project, id, projectDoc(p)); err != nil {
			_ = database.Close()
			return nil, err
		}
		ts.ProjectIDs = append(ts.ProjectIDs, id)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < numTasks; i++ {
		id := uint64(i + 1)
		if err := schema.WriteCard(root, schema.Task, id, taskDoc(i, rng, linkPct)); err != nil {
			_ = database.Close()
			return nil, err
		}
		ts.TaskIDs = append(ts.TaskIDs, id)
	}
	ts.TotalCards = len(ts.TaskIDs) + len(ts.ProjectIDs)

	if _, err := ts.Syncer.Rebuild(context.Background()); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	return ts, nil
}

// Close closes the index.
func (ts *TestStore) Close() error {
	if ts.DB != nil {
		return ts.DB.Close()
	}
	return nil
}

// TaskTitle is the title of the i-th generated task. Each title contains
// a unique "Card NNNNN" token that name lookups resolve.
func TaskTitle(i int) string {
	return fmt.Sprintf("Card %05d of batch %d", i, i/100)
}

func taskDoc(i int, rng *rand.Rand, linkPct float64) map[string]any {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	links := []any{fmt.Sprintf("parent:project/%d", i/100+1)}
	if i > 0 && rng.Float64() < linkPct {
		links = append(links, fmt.Sprintf("after:task/%d", rng.Intn(i)+1))
	}
	doc := map[string]any{
		"Title":    TaskTitle(i),
		"Created":  created.Format(time.RFC3339),
		"Modified": created.Format(time.RFC3339),
		"Tags":     []any{CommonTag, fmt.Sprintf("batch-%d", i/100)},
		"Links":    links,
	}
	if i%3 == 0 {
		doc["Completed"] = created.Add(time.Hour).Format(time.RFC3339)
	}
	if i%10 == 0 {
		doc["Obsolete"] = true
	}
	return doc
}

func projectDoc(p int) map[string]any {
	return map[string]any{
		"Title":    fmt.Sprintf("Project %d", p),
		"Created":  "2024-01-01T00:00:00Z",
		"Modified": "2024-01-01T00:00:00Z",
		"Active":   p%2 == 0,
	}
}

// query runs the n-th query of the mix.
func (ts *TestStore) query(ctx context.Context, n int) error {
	switch n % 3 {
	case 0:
		batch := n % (len(ts.TaskIDs)/100 + 1)
		_, err := ts.DB.ListIDs(ctx, schema.Task, db.Filter{
			db.TagKey:  {fmt.Sprintf("batch-%d", batch)},
			"obsolete": {"false"},
		})
		return err
	case 1:
		i := n % len(ts.TaskIDs)
		id, err := ts.DB.FindID(ctx, schema.Task, fmt.Sprintf("Card %05d", i))
		if err != nil {
			return err
		}
		if id != ts.TaskIDs[i] {
			return fmt.Errorf("lookup of task %d resolved to %d", ts.TaskIDs[i], id)
		}
		return nil
	default:
		_, err := ts.DB.Count(ctx, schema.Task)
		return err
	}
}

// RunConcurrentQueries runs numClients goroutines that each issue
// queriesPerClient queries, and returns the aggregated latencies.
func (ts *TestStore) RunConcurrentQueries(numClients int, queriesPerClient int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numClients)
	errorsChan := make(chan error, numClients)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerClient)
			ctx := context.Background()

			for j := 0; j < queriesPerClient; j++ {
				start := time.Now()
				err := ts.query(ctx, clientID*queriesPerClient+j)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("client %d query %d failed: %w", clientID, j, err)
					return
				}
			}
			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var firstErr error
	errorCount := 0
	for err := range errorsChan {
		errorCount++
		if firstErr == nil {
			firstErr = err
		}
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}

	if len(allDurations) == 0 {
		if firstErr != nil {
			return nil, fmt.Errorf("no successful queries completed: %w", firstErr)
		}
		return nil, fmt.Errorf("no successful queries completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// VerifyConsistency runs numReaders tag-filtered list queries against a
// writer that keeps re-syncing cards. Every list must see every task:
// a modify replaces a card within one transaction and never exposes a
// window where it is missing.
func (ts *TestStore) VerifyConsistency(numReaders int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(7))
		for n := 0; ctx.Err() == nil; n++ {
			i := n % len(ts.TaskIDs)
			q := schema.QualifiedID{Variant: schema.Task, ID: ts.TaskIDs[i]}
			if err := schema.WriteCard(ts.Root, schema.Task, q.ID, taskDoc(i, rng, ts.LinkPct)); err != nil {
				errorsChan <- err
				return
			}
			if err := ts.Syncer.SyncCard(ctx, q); err != nil && ctx.Err() == nil {
				errorsChan <- fmt.Errorf("writer sync of %s failed: %w", q, err)
				return
			}
		}
	}()

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()
			for ctx.Err() == nil {
				ids, err := ts.DB.ListIDs(ctx, schema.Task, db.Filter{db.TagKey: {CommonTag}})
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d list failed: %w", readerID, err)
					}
					return
				}
				if len(ids) != len(ts.TaskIDs) {
					errorsChan <- fmt.Errorf("reader %d saw %d tasks, want %d", readerID, len(ids), len(ts.TaskIDs))
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)

	if err, ok := <-errorsChan; ok {
		return err
	}
	return nil
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
		Durations:    sorted,
	}
}

// PrintStats writes the latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

// GetStats returns statistics about the test store's index.
func (ts *TestStore) GetStats(ctx context.Context) (map[string]any, error) {
	st, err := ts.DB.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total_cards": st.Total(),
		"tasks":       st.Cards[schema.Task],
		"projects":    st.Cards[schema.Project],
		"tags":        st.Tags,
		"taggings":    st.Taggings,
		"links":       st.Links,
	}, nil
}
