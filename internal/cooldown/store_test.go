package cooldown

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cooldown.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	t1 := Timers{"example.com": now.Add(time.Minute).UnixMilli()}
	if err := s.Save("client-a", t1, now); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded := s.Load("client-a", now)
	if loaded["example.com"] != t1["example.com"] {
		t.Errorf("Load() = %v, want %v", loaded, t1)
	}
}

func TestStoreSurvivesRestart(t *testing.T) {
	// Simulates spec scenario 6: a client dispatched a long cooldown, the
	// process restarts (Store is reopened against the same file), and the
	// cooldown is still observed.
	dbPath := filepath.Join(t.TempDir(), "cooldown.db")
	now := time.Now()

	s1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s1.Save("client-c", Timers{"q": now.Add(time.Minute).UnixMilli()}, now); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen Open() failed: %v", err)
	}
	defer s2.Close()

	loaded := s2.Load("client-c", now)
	if unlockAt, ok := loaded["q"]; !ok || unlockAt <= now.UnixMilli() {
		t.Errorf("cooldown did not survive restart: %v", loaded)
	}
}

func TestStoreSaveEmptyDeletesEntry(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	if err := s.Save("client-a", Timers{"q": now.Add(time.Minute).UnixMilli()}, now); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := s.Save("client-a", Timers{}, now); err != nil {
		t.Fatalf("Save(empty) failed: %v", err)
	}

	loaded := s.Load("client-a", now)
	if len(loaded) != 0 {
		t.Errorf("expected entry to be deleted, got %v", loaded)
	}
}

func TestSweepDropsExpiredAndReportsRemaining(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	if err := s.Save("client-a", Timers{"live": now.Add(time.Hour).UnixMilli()}, now); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	// client-b's entry is still live when saved, so Save's own filter keeps
	// it; like client-a's, it has expired by the time Sweep runs below.
	if err := s.Save("client-b", Timers{"expired": now.Add(time.Hour).UnixMilli()}, now); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	remaining, err := s.Sweep(now.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("Sweep() failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Sweep() remaining = %d, want 0 after both entries expire", remaining)
	}

	if loaded := s.Load("client-a", now.Add(2*time.Hour)); len(loaded) != 0 {
		t.Errorf("expected client-a entry to be swept, got %v", loaded)
	}
}
