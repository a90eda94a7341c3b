package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/auralis/internal/auth"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("alice")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("alice")
	defer b.Unsubscribe(ch)

	b.Publish("alice", Event{Type: "note.created", Data: map[string]string{"id": "n1"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: note.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":"n1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishScopedToOwner(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	alice := b.Subscribe("alice")
	bob := b.Subscribe("bob")
	all := b.Subscribe("")

	b.Publish("alice", Event{Type: "note.updated", Data: map[string]string{"id": "n1"}})
	time.Sleep(50 * time.Millisecond)

	if got := len(drain(alice)); got != 1 {
		t.Errorf("alice got %d events, want 1", got)
	}
	if got := len(drain(bob)); got != 0 {
		t.Errorf("bob got %d events, want 0", got)
	}
	if got := len(drain(all)); got != 1 {
		t.Errorf("unscoped client got %d events, want 1", got)
	}
}

func TestPublishNoteEvent_InsightsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("alice")
	defer b.Unsubscribe(ch)

	// First event should trigger insights.stale; the second one is throttled.
	b.PublishNoteEvent("created", "alice", "n1")
	b.PublishNoteEvent("summarized", "alice", "n1")

	time.Sleep(50 * time.Millisecond)
	staleCount, noteCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "insights.stale") {
			staleCount++
		} else {
			noteCount++
		}
	}

	if noteCount != 2 {
		t.Errorf("note events = %d, want 2", noteCount)
	}
	if staleCount != 1 {
		t.Errorf("insights events = %d, want 1 (throttled)", staleCount)
	}
}

func TestPublishNoteEvent_ThrottleIsPerOwner(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "alice", "n1")
	b.PublishNoteEvent("created", "bob", "n2")

	time.Sleep(50 * time.Millisecond)
	stale := 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "insights.stale") {
			stale++
		}
	}
	if stale != 2 {
		t.Errorf("insights events = %d, want one per owner", stale)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(auth.WithOwner(context.Background(), "alice"))
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish("bob", Event{Type: "note.deleted", Data: map[string]string{"id": "other"}})
	b.Publish("alice", Event{Type: "note.updated", Data: map[string]string{"id": "n1"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if strings.Contains(body, "note.deleted") {
		t.Errorf("handler leaked another owner's event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("alice")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish("alice", Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("alice")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish("alice", Event{Type: "note.updated", Data: map[string]string{"id": "n1"}})
	b.PublishNoteEvent("updated", "alice", "n1")
}
