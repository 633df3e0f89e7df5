package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGeneratorPrefixes(t *testing.T) {
	g := New()

	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"conversation", g.GenerateConversationID(), "cv_"},
		{"message", g.GenerateMessageID(), "cm_"},
		{"user", g.GenerateUserID(), "cu_"},
	}
	for _, tt := range tests {
		if !strings.HasPrefix(tt.id, tt.prefix) {
			t.Errorf("%s id %q missing prefix %q", tt.name, tt.id, tt.prefix)
		}
		if len(tt.id) != len(tt.prefix)+21 {
			t.Errorf("%s id %q has unexpected length", tt.name, tt.id)
		}
	}
}

func TestGenerateRoomIDUniqueUnderFrozenClock(t *testing.T) {
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New()
	g.now = func() time.Time { return frozen }

	first := g.GenerateRoomID("u1")
	second := g.GenerateRoomID("u1")
	if first == second {
		t.Fatalf("expected distinct room ids, both %q", first)
	}
	if !strings.HasPrefix(first, "room_u1_") {
		t.Errorf("unexpected room id %q", first)
	}
}

func TestGenerateRoomIDConcurrent(t *testing.T) {
	g := New()
	const n = 200

	var mu sync.Mutex
	seen := make(map[string]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.GenerateRoomID("u1")
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("expected %d unique room ids, got %d", n, len(seen))
	}
}
