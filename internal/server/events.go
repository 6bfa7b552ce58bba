package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Event types published on the hub.
const (
	EventState   = "state"
	EventCommand = "command"
	EventSpeech  = "speech"
	EventTimer   = "timer"
)

// subscriberBuffer is the number of events queued per client before new
// events are dropped for that client.
const subscriberBuffer = 32

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// Event is one message on the /ws/events stream.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Hub fans events out to websocket subscribers. Publishing never blocks: a
// client that falls behind loses events instead of stalling the publisher.
//
// The zero value is ready to use. A Hub is safe for concurrent use.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub { return &Hub{} }

// Publish sends an event of type typ to every subscriber.
func (h *Hub) Publish(typ string, data any) {
	ev := Event{Type: typ, Time: time.Now().UTC(), Data: data}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("event hub: subscriber lagging, event dropped", "type", typ)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release it; the channel is not closed.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan Event]struct{})
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ── WebSocket endpoint ───────────────────────────────────────────────────────

// acceptOptions derives the websocket origin check from the CORS origins.
// Origins carry a scheme, so they are matched against "scheme://host".
func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			continue
		}
		opts.OriginPatterns = append(opts.OriginPatterns, o)
	}
	return opts
}

// handleEvents streams hub events to a websocket client until either side
// closes the connection. Messages from the client are ignored.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, acceptOptions(s.cfg.CORSOrigins))
	if err != nil {
		slog.Warn("server: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	events, cancel := s.hub.Subscribe()
	defer cancel()
	s.metrics.EventSubscribers.Add(ctx, 1)
	defer s.metrics.EventSubscribers.Add(context.WithoutCancel(ctx), -1)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				slog.Debug("server: websocket write failed", "err", err)
				return
			}
		}
	}
}
