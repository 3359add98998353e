package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cardsync/cardsync/internal/index/catalog"
	"github.com/cardsync/cardsync/internal/index/daemon"
	"github.com/cardsync/cardsync/internal/index/db"
	"github.com/cardsync/cardsync/internal/index/schema"
	indexsync "github.com/cardsync/cardsync/internal/index/sync"
	"github.com/coder/websocket"
)

const gardenDoc = `{"Title": "Plan the garden", "Created": "a", "Modified": "b", "Tags": ["urgent"]}
`

var quiet = log.New(io.Discard, "", 0)

// setupCatalog indexes two tasks and a project under a temp root.
func setupCatalog(t *testing.T, opts db.Options) *catalog.Catalog {
	t.Helper()
	tmp := t.TempDir()
	root := filepath.Join(tmp, "cards")

	files := map[string]string{
		"task/1.json":    gardenDoc,
		"task/2.json":    `{"Title": "Plan a trip", "Created": "a", "Modified": "b"}`,
		"project/1.json": `{"Title": "House", "Created": "a", "Modified": "b", "Links": ["task/1"]}`,
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	database, err := db.Open(filepath.Join(tmp, "index.db"), opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if _, err := indexsync.New(database, root, quiet).Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	return catalog.New(database, root)
}

func newTestServer(t *testing.T, c *catalog.Catalog) *Server {
	t.Helper()
	return NewServer(&Config{Port: 0, Catalog: c, Logger: quiet})
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, setupCatalog(t, db.DefaultOptions()))
	h := s.Handler()

	where := url.Values{"_where": {"title LIKE 'Plan a%'"}}.Encode()

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
		wantIDs  []uint64
		wantBody string
	}{
		{name: "list", method: "GET", target: "/task", wantCode: 200, wantIDs: []uint64{1, 2}},
		{name: "list by tag", method: "GET", target: "/task?tag=URGENT", wantCode: 200, wantIDs: []uint64{1}},
		{name: "list unknown tag", method: "GET", target: "/task?tag=someday", wantCode: 200, wantIDs: []uint64{}},
		{name: "list by column", method: "GET", target: "/task?title=Plan+a+trip", wantCode: 200, wantIDs: []uint64{2}},
		{name: "list raw predicate", method: "GET", target: "/task?" + where, wantCode: 200, wantIDs: []uint64{2}},
		{name: "list empty type", method: "GET", target: "/book", wantCode: 200, wantIDs: []uint64{}},
		{name: "list unknown column", method: "GET", target: "/task?color=red", wantCode: 400},
		{name: "count", method: "GET", target: "/task/count", wantCode: 200, wantBody: "2"},
		{name: "get by id", method: "GET", target: "/task/1", wantCode: 200, wantBody: gardenDoc},
		{name: "get by name", method: "GET", target: "/task/garden", wantCode: 200, wantBody: gardenDoc},
		{name: "get ambiguous", method: "GET", target: "/task/plan", wantCode: 400},
		{name: "get not found", method: "GET", target: "/task/bicycle", wantCode: 404},
		{name: "get missing file", method: "GET", target: "/task/99", wantCode: 404},
		{name: "unknown type", method: "GET", target: "/spaceship", wantCode: 404},
		{name: "unknown type count", method: "GET", target: "/spaceship/count", wantCode: 404},
		{name: "wrong method", method: "POST", target: "/task", wantCode: 405},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("%s %s = %d, want %d (body %q)", tt.method, tt.target, rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantIDs != nil {
				var ids []uint64
				if err := json.Unmarshal(rec.Body.Bytes(), &ids); err != nil {
					t.Fatalf("body %q is not an id list: %v", rec.Body.String(), err)
				}
				if !slices.Equal(ids, tt.wantIDs) {
					t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
				}
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRoutes_RawPredicateDisabled(t *testing.T) {
	opts := db.DefaultOptions()
	opts.AllowRawPredicates = false
	h := newTestServer(t, setupCatalog(t, opts)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/task?_where=id%3D1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["clients"] != float64(0) {
		t.Errorf("health = %v", body)
	}

	// Without a catalog the card routes are not mounted.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/task", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /task without catalog = %d, want 404", rec.Code)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&schema.LookupError{Variant: schema.Task, Token: "x"}, 404},
		{&schema.LookupError{Variant: schema.Task, Token: "x", Ambiguous: true}, 400},
		{db.ErrUnknownColumn, 400},
		{db.ErrRawPredicateDisabled, 400},
		{schema.ErrCardAccess, 404},
		{&schema.IndexError{Op: "boom", Err: io.EOF}, 500},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	server := newTestServer(t, nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Errorf("GetAddr() = %q, want a bound address", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

// dial connects a websocket client and returns it with the welcome message.
func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, readMessage(t, ctx, conn)
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func decodeStats(t *testing.T, msg Message) StatsData {
	t.Helper()
	if msg.Type != MessageTypeStats {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeStats)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	return stats
}

func TestWebSocketWelcomeStats(t *testing.T) {
	server := newTestServer(t, setupCatalog(t, db.DefaultOptions()))
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	stats := decodeStats(t, welcome)
	if stats.Total != 3 || stats.Cards["task"] != 2 || stats.Cards["project"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Tags != 1 || stats.Links != 1 {
		t.Errorf("tags/links = %d/%d, want 1/1", stats.Tags, stats.Links)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("ClientCount() = %d, want 1", count)
	}
}

func TestMultipleClients(t *testing.T) {
	server := newTestServer(t, nil)
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i], _ = dial(t, ctx, server)
	}
	if count := server.ClientCount(); count != numClients {
		t.Errorf("ClientCount() = %d, want %d", count, numClients)
	}

	server.Broadcast(Message{Type: MessageTypeCardUpdate})
	for i, conn := range clients {
		if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeCardUpdate {
			t.Errorf("client %d got %s", i, msg.Type)
		}
	}
}

func TestHandlerConsumesReports(t *testing.T) {
	server := newTestServer(t, setupCatalog(t, db.DefaultOptions()))
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	reports := daemon.NewReportQueue()
	handler := NewHandler(server, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Consume(ctx, reports)
	}()

	reports.Push(daemon.Report{
		Card: schema.QualifiedID{Variant: schema.Task, ID: 2},
		Op:   daemon.OpDelete,
		At:   time.Now(),
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeCardUpdate {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeCardUpdate)
	}
	var update CardUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatal(err)
	}
	want := CardUpdateData{Card: "task/2", Type: "task", ID: 2, Action: "deleted"}
	if update != want {
		t.Errorf("update = %+v, want %+v", update, want)
	}
	decodeStats(t, readMessage(t, ctx, conn))

	reports.Close()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("Consume did not return after Close")
	}
}

func TestHandlerSyncComplete(t *testing.T) {
	server := newTestServer(t, nil)
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	NewHandler(server, quiet).OnSyncComplete(ctx, []indexsync.Stats{
		{Variant: schema.Book, Indexed: 100, Failed: 2, Duration: 2 * time.Second},
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeSyncComplete)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Types) != 1 || data.Types[0].Type != "book" || data.Types[0].Indexed != 100 || data.Types[0].Failed != 2 {
		t.Errorf("sync data = %+v", data)
	}
}

func TestHandlerSyncComplete_DaemonResync(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "cards")
	database, err := db.Open(filepath.Join(tmp, "index.db"), db.DefaultOptions())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer database.Close()

	server := newTestServer(t, catalog.New(database, root))
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handler := NewHandler(server, quiet)
	d, err := daemon.NewWithConfig(indexsync.New(database, root, quiet), root, nil, &daemon.Config{
		Variants: []schema.Variant{schema.Task},
		Logger:   quiet,
		OnResync: func(st indexsync.Stats) {
			handler.OnSyncComplete(ctx, []indexsync.Stats{st})
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer d.Stop()
	conn, _ := dial(t, ctx, server)

	if err := schema.WriteCard(root, schema.Task, 1, map[string]any{
		"Title": "resynced", "Created": "a", "Modified": "b",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Resync(ctx, schema.Task); err != nil {
		t.Fatalf("Resync() failed: %v", err)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeSyncComplete)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Types) != 1 || data.Types[0].Type != "task" || data.Types[0].Indexed != 1 {
		t.Errorf("sync data = %+v", data)
	}
}
