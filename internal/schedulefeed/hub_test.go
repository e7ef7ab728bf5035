package schedulefeed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
	"golang.org/x/net/websocket"
)

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		t.Fatalf("receive: %v", err)
	}
	return msg
}

func TestHub_BroadcastsToClinicSubscribers(t *testing.T) {
	hub := NewHub(logging.NewWithWriter(io.Discard, "error"))
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	c1 := dial(t, server, "clinic=c1")
	if msg := receive(t, c1); msg.Type != "subscribed" || msg.ClinicID != "c1" {
		t.Fatalf("unexpected greeting: %+v", msg)
	}
	c2 := dial(t, server, "clinic=c2")
	receive(t, c2)

	appt := &scheduling.Appointment{ID: "a1", ClinicID: "c1", AssignedVet: "v1"}
	err := hub.Notify(context.Background(), scheduling.Change{
		Kind:        scheduling.ChangeCreated,
		ClinicID:    "c1",
		Appointment: appt,
		OccurredAt:  time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	msg := receive(t, c1)
	if msg.Type != "appointment" || msg.Kind != scheduling.ChangeCreated {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Appointment == nil || msg.Appointment.ID != "a1" {
		t.Fatalf("missing appointment: %+v", msg)
	}
	if msg.OccurredAt != "2030-01-01T09:00:00Z" {
		t.Errorf("occurred_at = %q", msg.OccurredAt)
	}

	// the other clinic only sees its pong
	if err := websocket.JSON.Send(c2, inbound{Type: "ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if msg := receive(t, c2); msg.Type != "pong" {
		t.Fatalf("expected pong for other clinic, got %+v", msg)
	}
}

func TestHub_RejectsMissingClinic(t *testing.T) {
	hub := NewHub(logging.NewWithWriter(io.Discard, "error"))
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server, "")
	msg := receive(t, conn)
	if msg.Type != "error" {
		t.Fatalf("expected error message, got %+v", msg)
	}
}

func TestHub_UnsubscribesOnClose(t *testing.T) {
	hub := NewHub(logging.NewWithWriter(io.Discard, "error"))
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server, "clinic=c1")
	receive(t, conn)
	if n := hub.Subscribers("c1"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("c1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_NotifyWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	if err := hub.Notify(context.Background(), scheduling.Change{ClinicID: "nobody"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestHub_NotifyDoesNotWaitOnSlowSubscribers(t *testing.T) {
	hub := NewHub(logging.NewWithWriter(io.Discard, "error"))
	// no writer drains this queue, like a peer that stopped reading
	stalled := newSubscriber(2)
	hub.add("c1", stalled)
	healthy := newSubscriber(8)
	hub.add("c1", healthy)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_ = hub.Notify(context.Background(), scheduling.Change{Kind: scheduling.ChangeCreated, ClinicID: "c1"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stalled subscriber")
	}

	if n := len(stalled.send); n != 2 {
		t.Errorf("expected the stalled queue to hold 2 changes, got %d", n)
	}
	if n := len(healthy.send); n != 5 {
		t.Errorf("expected every change queued for the healthy subscriber, got %d", n)
	}

	hub.remove("c1", stalled)
	if stalled.offer(Message{Type: "appointment"}) {
		t.Error("expected a removed subscriber to refuse messages")
	}
}
