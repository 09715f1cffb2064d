package relay

import (
	"testing"
	"time"
)

func msgAt(id, conv, page, sender, text string, at time.Time) StoredMessage {
	return StoredMessage{
		ID:             id,
		ConversationID: conv,
		Message:        text,
		From:           Sender{ID: sender, Name: "Tester"},
		CreatedTime:    at.UTC().Format(time.RFC3339),
		PageID:         page,
		SenderID:       sender,
	}
}

func TestStoreNoDuplicateIndexing(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	s.AddMessage(msgAt("m1", "p1_u1", "p1", "u1", "hello", base))
	s.AddMessage(msgAt("m1", "p1_u1", "p1", "u1", "hello edited", base))

	got := s.Messages("p1_u1")
	count := 0
	for _, m := range got {
		if m.ID == "m1" {
			count++
			if m.Message != "hello edited" {
				t.Fatalf("overwrite did not update content: %q", m.Message)
			}
		}
	}
	if count != 1 {
		t.Fatalf("id m1 appears %d times, want 1", count)
	}

	if byPage := s.MessagesByPage("p1"); len(byPage) != 1 {
		t.Fatalf("page index has %d entries, want 1", len(byPage))
	}
}

func TestStoreOrderInvariant(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	// Insert out of created-time order, with a tie to exercise stability.
	s.AddMessage(msgAt("m3", "c1", "p1", "u1", "third", base.Add(2*time.Minute)))
	s.AddMessage(msgAt("m1", "c1", "p1", "u1", "first", base))
	s.AddMessage(msgAt("tie-a", "c1", "p1", "u1", "tie a", base.Add(time.Minute)))
	s.AddMessage(msgAt("tie-b", "c1", "p1", "u1", "tie b", base.Add(time.Minute)))

	got := s.Messages("c1")
	if len(got) != 4 {
		t.Fatalf("len=%d want 4", len(got))
	}

	wantOrder := []string{"m1", "tie-a", "tie-b", "m3"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("position %d = %q, want %q (full: %v)", i, got[i].ID, want, ids(got))
		}
	}

	for i := 1; i < len(got); i++ {
		prev, _ := time.Parse(time.RFC3339, got[i-1].CreatedTime)
		cur, _ := time.Parse(time.RFC3339, got[i].CreatedTime)
		if cur.Before(prev) {
			t.Fatalf("created_time decreases at position %d", i)
		}
	}
}

func ids(msgs []StoredMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestStoreUnknownKeyIsEmptyNotError(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	if got := s.Messages("nope"); len(got) != 0 {
		t.Fatalf("unknown conversation returned %d messages", len(got))
	}
	if got := s.MessagesByPage("nope"); len(got) != 0 {
		t.Fatalf("unknown page returned %d messages", len(got))
	}
	if _, ok := s.LatestMessage("nope"); ok {
		t.Fatal("LatestMessage reported ok for unknown conversation")
	}
}

func TestStoreLatestMessage(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	s.AddMessage(msgAt("m1", "c1", "p1", "u1", "first", base))
	s.AddMessage(msgAt("m2", "c1", "p1", "u1", "last", base.Add(time.Hour)))

	last, ok := s.LatestMessage("c1")
	if !ok || last.ID != "m2" {
		t.Fatalf("LatestMessage=%q ok=%v, want m2", last.ID, ok)
	}
}

func TestStoreListenerIsolation(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())

	var second *StoredMessage
	s.Subscribe(EventNewMessage, func(_ string, _ any) { panic("first listener fails") })
	s.Subscribe(EventNewMessage, func(_ string, payload any) {
		if ev, ok := payload.(MessageEvent); ok {
			m := ev.Message
			second = &m
		}
	})

	// Must not panic through AddMessage.
	s.AddMessage(msgAt("m1", "c1", "p1", "u1", "hello", time.Now()))

	if second == nil || second.ID != "m1" {
		t.Fatal("second listener did not receive the event")
	}
}

func TestStoreSnapshotReads(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.AddMessage(msgAt("m1", "c1", "p1", "u1", "hello", base))

	snap := s.Messages("c1")
	s.AddMessage(msgAt("m2", "c1", "p1", "u1", "more", base.Add(time.Minute)))

	if len(snap) != 1 {
		t.Fatalf("snapshot mutated by concurrent write: len=%d", len(snap))
	}
}

func TestStoreOverwriteEventFlagsUpdate(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())

	var events []MessageEvent
	s.Subscribe(EventNewMessage, func(_ string, payload any) {
		if ev, ok := payload.(MessageEvent); ok {
			events = append(events, ev)
		}
	})

	now := time.Now()
	s.AddMessage(msgAt("m1", "c1", "p1", "u1", "v1", now))
	s.AddMessage(msgAt("m1", "c1", "p1", "u1", "v2", now))

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Overwrite || !events[1].Overwrite {
		t.Fatalf("overwrite flags = %v,%v want false,true", events[0].Overwrite, events[1].Overwrite)
	}
}

func TestStoreClear(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	s.AddMessage(msgAt("m1", "c1", "p1", "u1", "hello", time.Now()))
	s.Subscribe(EventNewMessage, func(_ string, _ any) {})

	s.Clear()

	if len(s.Messages("c1")) != 0 {
		t.Fatal("messages survived Clear")
	}
	if s.ListenerCount(EventNewMessage) != 0 {
		t.Fatal("listeners survived Clear")
	}
}

func TestStoreSynthesizesMissingFields(t *testing.T) {
	t.Parallel()

	s := NewStore(testLogger())
	s.AddMessage(StoredMessage{ConversationID: "c1", PageID: "p1", SenderID: "u1", Message: "hi"})

	got := s.Messages("c1")
	if len(got) != 1 {
		t.Fatalf("len=%d want 1", len(got))
	}
	if got[0].ID == "" {
		t.Fatal("id was not synthesized")
	}
	if got[0].CreatedTime == "" {
		t.Fatal("created_time was not defaulted")
	}
}
