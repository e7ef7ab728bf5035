// Package schedulefeed pushes committed appointment changes to front-desk
// screens over websockets, one channel per clinic.
package schedulefeed

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
	"golang.org/x/net/websocket"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 16
)

// Message is what subscribers receive.
type Message struct {
	Type        string                  `json:"type"` // "subscribed", "appointment", "pong", "error"
	ClinicID    string                  `json:"clinic_id,omitempty"`
	Kind        scheduling.ChangeKind   `json:"kind,omitempty"`
	Appointment *scheduling.Appointment `json:"appointment,omitempty"`
	OccurredAt  string                  `json:"occurred_at,omitempty"`
	Text        string                  `json:"text,omitempty"`
}

// inbound is what a subscriber may send; only pings are understood.
type inbound struct {
	Type string `json:"type"`
}

// subscriber owns one connection. Only its writer goroutine writes to conn.
type subscriber struct {
	send chan Message
	done chan struct{}
	once sync.Once
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{send: make(chan Message, buffer), done: make(chan struct{})}
}

// offer queues msg without blocking and reports whether it fit.
func (s *subscriber) offer(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub tracks open feed connections per clinic.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clinics map[string]map[*subscriber]struct{}
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:  logger,
		clinics: make(map[string]map[*subscriber]struct{}),
	}
}

// HandleWebSocket upgrades the request and streams the clinic's changes.
// The clinic is taken from the "clinic" query parameter since browsers
// cannot set headers on websocket handshakes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn, r *http.Request) {
	clinicID := strings.TrimSpace(r.URL.Query().Get("clinic"))
	if clinicID == "" {
		_ = websocket.JSON.Send(conn, Message{Type: "error", Text: "missing clinic parameter"})
		return
	}

	sub := newSubscriber(sendBuffer)
	sub.offer(Message{Type: "subscribed", ClinicID: clinicID})
	h.add(clinicID, sub)
	defer h.remove(clinicID, sub)
	go h.writeLoop(conn, clinicID, sub)

	logger := h.logger.WithClinic(clinicID)
	logger.Info("schedulefeed: subscriber connected")

	for {
		var msg inbound
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("schedulefeed: subscriber disconnected", "error", err)
			return
		}
		if msg.Type == "ping" {
			sub.offer(Message{Type: "pong"})
		}
	}
}

// writeLoop drains the subscriber's queue. A failed or timed-out write closes
// the connection, which ends the read loop and unsubscribes.
func (h *Hub) writeLoop(conn *websocket.Conn, clinicID string, sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := websocket.JSON.Send(conn, msg); err != nil {
				h.logger.WithClinic(clinicID).Warn("schedulefeed: send failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (h *Hub) add(clinicID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clinics[clinicID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.clinics[clinicID] = subs
	}
	subs[sub] = struct{}{}
}

func (h *Hub) remove(clinicID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.close()
	subs := h.clinics[clinicID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.clinics, clinicID)
	}
}

// Subscribers returns the number of open connections for a clinic.
func (h *Hub) Subscribers(clinicID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clinics[clinicID])
}

// Notify queues a change for each of the clinic's subscribers and returns
// without waiting on the network. A subscriber whose queue is full misses
// the change.
func (h *Hub) Notify(_ context.Context, change scheduling.Change) error {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.clinics[change.ClinicID]))
	for sub := range h.clinics[change.ClinicID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	if len(subs) == 0 {
		return nil
	}

	msg := Message{
		Type:        "appointment",
		ClinicID:    change.ClinicID,
		Kind:        change.Kind,
		Appointment: change.Appointment,
		OccurredAt:  change.OccurredAt.UTC().Format(time.RFC3339),
	}
	dropped := 0
	for _, sub := range subs {
		if !sub.offer(msg) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.WithClinic(change.ClinicID).Warn("schedulefeed: subscriber queue full, change dropped",
			"kind", change.Kind,
			"dropped", dropped,
		)
	}
	return nil
}
