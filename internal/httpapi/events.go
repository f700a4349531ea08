package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMsgSize     = 1 << 10
	statusInterval = time.Second
	eventBuffer    = 16
)

// Event is one message pushed to websocket subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans events out to connected websocket clients.  Slow subscribers
// lose events rather than backpressuring the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// PublishAlarm adapts the liveness monitor's alarm callback.
func (h *Hub) PublishAlarm(deviceID string, raised bool) {
	h.Publish(Event{Type: "alarm", Data: map[string]any{
		"device_id": deviceID,
		"raised":    raised,
	}})
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, eventBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents upgrades the connection and streams periodic status
// snapshots plus alarm transitions until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine handles control frames and detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := s.hub.subscribe()
	defer s.hub.unsubscribe(events)

	status := time.NewTicker(statusInterval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		status.Stop()
		ping.Stop()
	}()

	if err := s.writeEvent(conn, s.statusEvent()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case ev := <-events:
			if err := s.writeEvent(conn, ev); err != nil {
				return
			}
		case <-status.C:
			if err := s.writeEvent(conn, s.statusEvent()); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) statusEvent() Event {
	alarms, rooms := s.core.AlarmSnapshot()
	return Event{Type: "status", Data: statusResponse{
		Status:      s.core.GetDeviceStatus(),
		Alarms:      alarms,
		Maintenance: rooms,
		ServerTime:  time.Now().UTC().Format(time.RFC3339Nano),
	}}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
