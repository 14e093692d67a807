package stream

import (
	"context"
	"testing"
	"time"

	"amanat.org/internal/escrow"
)

func recv(t *testing.T, ch <-chan escrow.Event) escrow.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return escrow.Event{}
}

func TestFanOut(t *testing.T) {
	s := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	a := s.Subscribe(ctx, "")
	b := s.Subscribe(ctx, "")

	s.Emit(context.Background(), escrow.Event{ID: "01", Type: escrow.EventNewDonation})
	if recv(t, a).ID != "01" || recv(t, b).ID != "01" {
		t.Fatal("both subscribers must see the event")
	}

	cancel()
	if _, ok := <-a; ok {
		t.Fatal("expected channel to close after cancel")
	}
}

func TestReplayAfterID(t *testing.T) {
	s := New(2)
	for _, id := range []string{"01", "02", "03"} {
		s.Emit(context.Background(), escrow.Event{ID: id})
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx, "01")
	// "01" fell out of the two-event backlog; "02" and "03" are replayed.
	if got := recv(t, ch).ID; got != "02" {
		t.Fatalf("first replayed = %s", got)
	}
	if got := recv(t, ch).ID; got != "03" {
		t.Fatalf("second replayed = %s", got)
	}
}
