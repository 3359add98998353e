package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/cardsync/cardsync/internal/index/daemon"
	"github.com/cardsync/cardsync/internal/index/db"
	indexsync "github.com/cardsync/cardsync/internal/index/sync"
)

// CardUpdateData describes one index mutation.
type CardUpdateData struct {
	Card   string `json:"card"`
	Type   string `json:"type"`
	ID     uint64 `json:"id"`
	Action string `json:"action"` // created, modified, deleted
}

// StatsData holds index totals. Cards is keyed by type tag.
type StatsData struct {
	Total    int            `json:"total"`
	Cards    map[string]int `json:"cards"`
	Tags     int            `json:"tags"`
	Taggings int            `json:"taggings"`
	Links    int            `json:"links"`
}

func newStatsData(s db.Stats) StatsData {
	cards := make(map[string]int, len(s.Cards))
	for v, n := range s.Cards {
		cards[v.Tag()] = n
	}
	return StatsData{
		Total:    s.Total(),
		Cards:    cards,
		Tags:     s.Tags,
		Taggings: s.Taggings,
		Links:    s.Links,
	}
}

// SyncTypeData is the outcome of a bulk sync of one type.
type SyncTypeData struct {
	Type     string        `json:"type"`
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// SyncCompleteData contains bulk sync results
type SyncCompleteData struct {
	Types []SyncTypeData `json:"types"`
}

// Handler is the report consumer: it turns daemon reports into dashboard
// messages.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new report handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{server: server, logger: logger}
}

// Consume broadcasts every report from reports until ctx is done or the
// queue is closed.
func (h *Handler) Consume(ctx context.Context, reports *daemon.ReportQueue) {
	reports.Consume(ctx, func(r daemon.Report) {
		h.OnReport(ctx, r)
	})
}

// OnReport broadcasts a card update followed by fresh stats.
func (h *Handler) OnReport(ctx context.Context, r daemon.Report) {
	h.broadcast(MessageTypeCardUpdate, r.At, CardUpdateData{
		Card:   r.Card.String(),
		Type:   r.Card.Variant.Tag(),
		ID:     r.Card.ID,
		Action: action(r.Op),
	})
	h.server.Broadcast(h.server.statsMessage(ctx))
}

// OnSyncComplete broadcasts the results of a rebuild or bulk sync.
func (h *Handler) OnSyncComplete(ctx context.Context, results []indexsync.Stats) {
	data := SyncCompleteData{Types: make([]SyncTypeData, 0, len(results))}
	for _, st := range results {
		data.Types = append(data.Types, SyncTypeData{
			Type:     st.Variant.Tag(),
			Indexed:  st.Indexed,
			Failed:   st.Failed,
			Duration: st.Duration,
		})
	}
	h.logger.Printf("Sync complete: %d types", len(results))
	h.broadcast(MessageTypeSyncComplete, time.Now(), data)
	h.server.Broadcast(h.server.statsMessage(ctx))
}

func (h *Handler) broadcast(typ MessageType, at time.Time, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: dataJSON})
}

func action(op daemon.EventOp) string {
	switch op {
	case daemon.OpCreate:
		return "created"
	case daemon.OpModify:
		return "modified"
	case daemon.OpDelete:
		return "deleted"
	default:
		return "unknown"
	}
}
